package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// Length is the fixed size of generated access tokens.
	Length = 32
)

// Generate returns a 32-character alphanumeric token drawn from a CSPRNG.
// Each character is picked with rand.Int so the 62-symbol alphabet carries
// no modulo bias.
func Generate() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// ExpiryFrom returns the expiration deadline for a token issued at now.
func ExpiryFrom(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}
