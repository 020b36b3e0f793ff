package domain

import (
	"testing"
	"time"
)

func TestToken_Usable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	base := Token{ExpiresAt: now.Add(30 * time.Minute)}

	tests := []struct {
		name string
		tok  Token
		at   time.Time
		want bool
	}{
		{"fresh", base, now, true},
		{"at expiry", base, now.Add(30 * time.Minute), true},
		{"after expiry", base, now.Add(31 * time.Minute), false},
		{"used", Token{ExpiresAt: base.ExpiresAt, IsUsed: true}, now, false},
		{"superseded", Token{ExpiresAt: base.ExpiresAt, SupersededAt: now}, now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Usable(tt.at); got != tt.want {
				t.Errorf("Usable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToken_Stale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		tok  Token
		want bool
	}{
		{"live", Token{ExpiresAt: now.Add(time.Minute)}, false},
		{"expired", Token{ExpiresAt: now.Add(-time.Minute)}, true},
		{"superseded", Token{ExpiresAt: now.Add(time.Minute), SupersededAt: now}, true},
		{"consumed and expired", Token{ExpiresAt: now.Add(-time.Minute), IsUsed: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Stale(now); got != tt.want {
				t.Errorf("Stale = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToken_Validate(t *testing.T) {
	ok := Token{ID: "t", UserID: "u", TokenHash: "h", ExpiresAt: time.Now()}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	missing := ok
	missing.TokenHash = ""
	if missing.Validate() == nil {
		t.Error("expected error for missing hash")
	}
}
