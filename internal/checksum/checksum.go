// Package checksum fingerprints stored project sets. The store, the
// history index and the watcher compare these digests to tell our own
// writes from external edits and to skip re-indexing unchanged content.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 of a stored value. A nil value, meaning the
// key is absent, sums to the empty string so that it never matches content.
func Sum(data []byte) string {
	if data == nil {
		return ""
	}
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}
