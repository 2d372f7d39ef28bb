// Package checksum provides content digests for snapshot integrity
// verification.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the SHA-256 hex digest of payload. Deterministic and pure;
// the same payload always yields the same digest.
func Sum(payload []byte) string {
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:])
}

// Verify reports whether payload hashes to the expected digest.
func Verify(payload []byte, want string) bool {
	return Sum(payload) == want
}
