package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// NewOpaqueToken returns a high-entropy single-use secret: 32 random bytes,
// hex encoded. The plaintext only ever travels out of band through the
// notifier; the store keeps its hash.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashOpaqueToken maps a plaintext token to its stored form
func HashOpaqueToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
