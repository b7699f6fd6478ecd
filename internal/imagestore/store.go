// Package imagestore loads and saves images as raw little-endian float32
// sample streams with dimensions supplied by the caller.
package imagestore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/localburg/internal/grid"
)

// Ext is appended to dataset names that carry no extension.
const Ext = ".dat"

// Store loads and saves named images.
type Store interface {
	Load(name string) (*grid.Grid, error)
	Save(name string, g *grid.Grid) error
}

// FileStore keeps each image in one file under a directory.
type FileStore struct {
	backend Backend
	dir     string
	shape   grid.Shape
}

// NewFileStore returns a store reading images of the given shape from dir.
// A nil backend selects OSBackend.
func NewFileStore(backend Backend, dir string, shape grid.Shape) (*FileStore, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		backend = OSBackend{}
	}
	return &FileStore{backend: backend, dir: dir, shape: shape}, nil
}

// Shape returns the image dimensions the store expects.
func (s *FileStore) Shape() grid.Shape { return s.shape }

// Path returns the file holding the named image: <dir>/<name>.dat, or
// <dir>/<name> when name already has an extension. Absolute names are used
// as given.
func (s *FileStore) Path(name string) string {
	if filepath.Ext(name) == "" {
		name += Ext
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// Exists reports whether the named image is present.
func (s *FileStore) Exists(name string) bool { return s.backend.Exists(s.Path(name)) }

// Load reads the named image. The file must hold exactly n1*n2*n3 samples.
func (s *FileStore) Load(name string) (*grid.Grid, error) {
	path := s.Path(name)
	f, err := s.backend.Open(path)
	if err != nil {
		return nil, &StorageError{Op: "load", Name: name, Err: err}
	}
	defer f.Close()

	n := s.shape.Len()
	if info, err := f.Stat(); err == nil && info.Size() > int64(4*n) {
		return nil, &StorageError{Op: "load", Name: name,
			Err: fmt.Errorf("%w: %d bytes, %s needs %d", grid.ErrShapeMismatch, info.Size(), s.shape, 4*n)}
	}

	data := make([]float32, n)
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &StorageError{Op: "load", Name: name, Err: fmt.Errorf("reading %s samples: %w", s.shape, err)}
	}
	g, err := grid.FromSlice(s.shape, data)
	if err != nil {
		return nil, &StorageError{Op: "load", Name: name, Err: err}
	}
	return g, nil
}

// Save writes g under name, creating the directory if needed.
func (s *FileStore) Save(name string, g *grid.Grid) error {
	if g == nil {
		return &StorageError{Op: "save", Name: name, Err: grid.ErrInvalidParameter}
	}
	if g.Shape() != s.shape {
		return &StorageError{Op: "save", Name: name,
			Err: fmt.Errorf("%w: store %s vs grid %s", grid.ErrShapeMismatch, s.shape, g.Shape())}
	}
	path := s.Path(name)
	if err := s.backend.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StorageError{Op: "save", Name: name, Err: err}
	}
	f, err := s.backend.Create(path)
	if err != nil {
		return &StorageError{Op: "save", Name: name, Err: err}
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, g.Data()); err != nil {
		f.Close()
		return &StorageError{Op: "save", Name: name, Err: err}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return &StorageError{Op: "save", Name: name, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "save", Name: name, Err: err}
	}
	return nil
}
