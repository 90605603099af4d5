package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// memoryMagic prefixes saved MemoryIndex files.
const memoryMagic = "OTVX"

const memoryFormatVersion uint32 = 1

// MemoryIndex is a brute-force inner product index held in memory.
type MemoryIndex struct {
	dimensions int
	mu         sync.RWMutex
	entries    []memoryEntry
	pos        map[string]int
}

type memoryEntry struct {
	id  string
	seq int64
	vec []float32
}

// NewMemoryIndex creates an in-memory index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{dimensions: dimensions, pos: make(map[string]int)}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add inserts items. An item whose ID is already present replaces the old vector.
func (m *MemoryIndex) Add(ctx context.Context, items []Item) error {
	for _, it := range items {
		if len(it.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", it.ID, len(it.Vector), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		vec := make([]float32, m.dimensions)
		copy(vec, it.Vector)
		e := memoryEntry{id: it.ID, seq: it.Seq, vec: vec}
		if i, ok := m.pos[it.ID]; ok {
			m.entries[i] = e
			continue
		}
		m.pos[it.ID] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return nil
}

// Search returns the top-k entries by inner product.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	results := make([]Result, len(m.entries))
	for i, e := range m.entries {
		results[i] = Result{ID: e.id, Seq: e.seq, Score: InnerProduct(query, e.vec)}
	}
	sortResults(results)
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Remove deletes entries by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !drop[e.id] {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	m.pos = make(map[string]int, len(kept))
	for i, e := range kept {
		m.pos[e.id] = i
	}
	return nil
}

// Save writes the index to path, creating the directory if needed.
// Layout: magic, version, dimension, count, then per entry idLen, id, seq, vector.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	werr := m.write(w)
	if werr == nil {
		werr = w.Flush()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write index: %w", werr)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) write(w io.Writer) error {
	if _, err := io.WriteString(w, memoryMagic); err != nil {
		return err
	}
	header := []uint32{memoryFormatVersion, uint32(m.dimensions), uint32(len(m.entries))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, e := range m.entries {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.id))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.seq); err != nil {
			return err
		}
		if _, err := w.Write(float32SliceToBytes(e.vec)); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the contents with the index saved at path. A missing file leaves
// the index unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	entries, err := m.read(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("read index %s: %w", path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	m.pos = make(map[string]int, len(entries))
	for i, e := range entries {
		m.pos[e.id] = i
	}
	return nil
}

func (m *MemoryIndex) read(r io.Reader) ([]memoryEntry, error) {
	magic := make([]byte, len(memoryMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if string(magic) != memoryMagic {
		return nil, errors.New("not a vector index file")
	}
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header[0] != memoryFormatVersion {
		return nil, fmt.Errorf("unsupported index version %d", header[0])
	}
	if int(header[1]) != m.dimensions {
		return nil, fmt.Errorf("dimension mismatch: file has %d, index expects %d", header[1], m.dimensions)
	}
	n := header[2]
	entries := make([]memoryEntry, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, err
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(r, id); err != nil {
			return nil, err
		}
		var seq int64
		if err := binary.Read(r, binary.LittleEndian, &seq); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		entries = append(entries, memoryEntry{id: string(id), seq: seq, vec: bytesToFloat32Slice(buf)})
	}
	return entries, nil
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}
