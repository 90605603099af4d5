// Package fileid derives stable document IDs from knowledge base file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "file:"

// DocID returns the ID of the document read from path. Files inside root are named by
// their slash-separated path relative to root ("policies/returns.md"), which is also
// what answers cite. Files elsewhere fall back to FileDocID.
func DocID(root, path string) string {
	if root != "" {
		rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
		if err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return FileDocID(path)
}

// FileDocID returns an opaque ID for an absolute path: the same cleaned path always
// yields the same ID.
func FileDocID(absolutePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return prefix + hex.EncodeToString(hash[:16])
}
