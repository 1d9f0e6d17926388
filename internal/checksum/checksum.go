// Package checksum fingerprints rendered invoice documents.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Prefix tags the digest algorithm in stored checksums.
const Prefix = "sha256:"

// Document returns the prefixed SHA-256 digest of a rendered document.
func Document(doc []byte) string {
	h := sha256.Sum256(doc)
	return Prefix + hex.EncodeToString(h[:])
}

// Verify reports whether doc matches a checksum produced by Document.
func Verify(doc []byte, sum string) bool {
	return sum != "" && Document(doc) == sum
}
