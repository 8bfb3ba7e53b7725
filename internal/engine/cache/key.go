package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key returns the cache key for a source URL. Surrounding whitespace is
// ignored; everything else, including query strings, is significant.
func Key(url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(sum[:])
}
