// Package checkpointer persists the final state of a training run as
// named blobs
package checkpointer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Store stores named blobs
type Store interface {
	// Create returns a writer for the blob called name, replacing any
	// blob of the same name once the writer is closed
	Create(name string) (io.WriteCloser, error)
}

// Write writes the blob called name to s using write
func Write(s Store, name string, write func(io.Writer) error) error {
	w, err := s.Create(name)
	if err != nil {
		return fmt.Errorf("write %v: %v", name, err)
	}
	if err := write(w); err != nil {
		w.Close()
		return fmt.Errorf("write %v: %w", name, err)
	}
	return w.Close()
}

// Gob gob encodes v as the blob called name in s
func Gob(s Store, name string, v interface{}) error {
	return Write(s, name, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(v)
	})
}

// DirStore stores each blob as the file <name>.gob in a directory
type DirStore struct {
	dir string
}

// NewDirStore returns a DirStore in dir, creating dir if needed
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newDirStore: %v", err)
	}
	return &DirStore{dir}, nil
}

// Path returns the path of the file holding the blob called name
func (d *DirStore) Path(name string) string {
	return filepath.Join(d.dir, name+".gob")
}

// Create implements the Store interface
func (d *DirStore) Create(name string) (io.WriteCloser, error) {
	return os.Create(d.Path(name))
}

// MemStore keeps blobs in memory
type MemStore struct {
	blobs map[string][]byte
}

// NewMemStore returns an empty MemStore
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Create implements the Store interface
func (m *MemStore) Create(name string) (io.WriteCloser, error) {
	return &memBlob{store: m, name: name}, nil
}

// Names returns the names of the stored blobs in sorted order
func (m *MemStore) Names() []string {
	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns a reader of the blob called name
func (m *MemStore) Open(name string) (io.Reader, error) {
	blob, ok := m.blobs[name]
	if !ok {
		return nil, fmt.Errorf("open: no blob %q", name)
	}
	return bytes.NewReader(blob), nil
}

type memBlob struct {
	bytes.Buffer
	store *MemStore
	name  string
}

func (b *memBlob) Close() error {
	b.store.blobs[b.name] = b.Bytes()
	return nil
}
