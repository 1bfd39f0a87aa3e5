// Package fileid derives deterministic document IDs from file paths and content.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	pathPrefix    = "doc-"
	contentPrefix = "upl-"
	idHexLen      = 16
)

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID. Used for ingest/update/delete by path.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return pathPrefix + hex.EncodeToString(hash[:])[:idHexLen]
}

// ContentDocID returns a stable document ID for uploaded bytes, so re-uploading the
// same file replaces the earlier document instead of duplicating it.
func ContentDocID(content []byte) string {
	hash := sha256.Sum256(content)
	return contentPrefix + hex.EncodeToString(hash[:])[:idHexLen]
}
