// Package fingerprint produces stable content hashes for imported
// cards so that re-importing the same source does not duplicate them.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// normalize lowercases, trims, and settles line endings so cosmetic
// edits in the source file do not change the hash.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// Of returns the SHA-256 hex digest of a card's normalized content.
// The front and back are hashed with a separator between them so that
// content cannot shift from one side to the other unnoticed.
func Of(front, back string) string {
	sum := sha256.Sum256([]byte(normalize(front) + "\x00" + normalize(back)))
	return hex.EncodeToString(sum[:])
}
