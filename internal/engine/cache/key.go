package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns the hex SHA256 of raw. File names derived from it are
// filesystem safe and fixed length.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
