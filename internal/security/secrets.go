package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// DefaultOTPLength is the number of digits in an OTP when no length is configured.
const DefaultOTPLength = 6

// resetTokenBytes is the entropy of a reset token (256 bits).
const resetTokenBytes = 32

// GenerateOTP returns a numeric code of exactly length digits, zero-padded.
// Digits are drawn uniformly from crypto/rand; length <= 0 means DefaultOTPLength.
func GenerateOTP(length int) (string, error) {
	if length <= 0 {
		length = DefaultOTPLength
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// GenerateResetToken returns an opaque, URL-safe password reset token.
func GenerateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns a SHA-256 hash of token, hex-encoded.
// Used for storing and looking up reset tokens without storing the raw token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
