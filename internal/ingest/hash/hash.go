// Package hash computes the deterministic content/context hashes used by
// dedup and version tracking throughout the pipeline.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Content returns the lowercase hex SHA-256 of content, optionally appended
// with context (stable serialization is the caller's responsibility — pass
// an already-canonicalized string). Empty content yields "".
func Content(content, context string) string {
	if content == "" {
		return ""
	}
	h := sha256.New()
	h.Write([]byte(content))
	if context != "" {
		h.Write([]byte(context))
	}
	return hex.EncodeToString(h.Sum(nil))
}
