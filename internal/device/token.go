package device

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// HashToken returns the SHA-256 hex digest of an agent token. Tokens are
// stored and compared only in this form, never as plaintext.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// NewToken generates a fresh random agent token. The plaintext is handed to
// the caller exactly once; only its digest is retained by the registry.
func NewToken() string {
	return uuid.NewString()
}

// NewID generates a fresh random device ID.
func NewID() string {
	return uuid.NewString()
}
