package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// CacheKey joins prefix with a short digest of parts. Parts are separated
// before hashing so ("a", "bc") and ("ab", "c") give different keys.
func CacheKey(prefix string, parts ...string) string {
	return prefix + ":" + HashString(strings.Join(parts, "\x1f"))[:16]
}
