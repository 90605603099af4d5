package vector

import (
	"fmt"
	"path/filepath"
)

// IndexType names an Index implementation.
type IndexType string

const (
	// IndexTypeMemory is brute-force search saved to a single file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeChromem is the embedded chromem-go database.
	IndexTypeChromem IndexType = "chromem"
)

// New creates an index of the given type. path is the memory index file; the chromem
// database lives in a "chromem" directory beside it. An empty path keeps either
// index purely in memory.
func New(indexType string, dimensions int, path string) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeChromem:
		dir := ""
		if path != "" {
			dir = filepath.Join(filepath.Dir(path), "chromem")
		}
		return NewChromemIndex(dimensions, dir)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, chromem)", indexType)
	}
}
