package session

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns hex encoded SHA-256 of the raw token value
// Only hashes are stored in blacklist, never the tokens themselves
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
