// Package digest computes the fixed-width hex digest used to link chain
// records together. It mirrors the original source's field order: index,
// data, timestamp, prev_digest.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Of hashes the concatenation of the stringified fields in the order
// (index, data, timestamp, prevDigest) and returns the full hex digest.
func Of(index uint64, data string, timestamp int64, prevDigest string) string {
	buf := fmt.Sprintf("%d%s%d%s", index, data, timestamp, prevDigest)
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}
