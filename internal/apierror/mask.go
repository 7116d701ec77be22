package apierror

import (
	"crypto/sha256"
	"fmt"
)

// MaskKey returns a display-safe form of a credential: short prefix and
// suffix around a fixed-length mask. The full key never appears in logs,
// metrics, or error payloads.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// HashKey returns the SHA-256 hex digest of a credential, used as the
// persistence and rate-limit identifier.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}
