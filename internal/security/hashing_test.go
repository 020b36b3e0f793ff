package security

import (
	"testing"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash([]byte("Secret123"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" {
		t.Fatal("Hash returned empty")
	}
	if !h.Verify([]byte("Secret123"), hash) {
		t.Fatal("Verify should accept the hashed secret")
	}
	if h.Verify([]byte("wrong"), hash) {
		t.Fatal("Verify should reject a different secret")
	}
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	h := NewHasher(4)
	a, _ := h.Hash([]byte("123456"))
	b, _ := h.Hash([]byte("123456"))
	if a == b {
		t.Error("two hashes of the same OTP should differ (salt)")
	}
}

func TestHasher_VerifyMalformedHash(t *testing.T) {
	h := NewHasher(4)
	for _, hash := range []string{"", "not-a-bcrypt-hash", "$2a$04$short"} {
		if h.Verify([]byte("secret"), hash) {
			t.Errorf("Verify(%q) = true, want false", hash)
		}
	}
}

func TestHasher_Cost(t *testing.T) {
	if h := NewHasher(12); h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h := NewHasher(0); h.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h.Cost)
	}
	if h := NewHasher(99); h.Cost != 31 {
		t.Errorf("cost should be clamped to MaxCost, got %d", h.Cost)
	}
}
