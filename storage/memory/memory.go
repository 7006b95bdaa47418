// Package memory provides an in-memory Store used for tests and small runs.
package memory

import (
	"fmt"
	"sync"

	"github.com/DmitriyVTitov/size"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/tomo"
)

var engine = storage.NewEngine("memory", "In-memory arrays", "0.1.0")

// Store keeps every array in process memory.
type Store struct {
	mu     sync.Mutex
	arrays map[string]*Array
}

// New returns an empty store.
func New() *Store {
	return &Store{arrays: make(map[string]*Array)}
}

func (s *Store) Engine() storage.Engine {
	return engine
}

// CreateArray allocates a zeroed array.
func (s *Store) CreateArray(meta storage.Metadata) (storage.Array, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	a := NewArray(meta, ndarray.New(meta.Shape...))
	s.mu.Lock()
	s.arrays[meta.Name] = a
	s.mu.Unlock()
	tomo.Debugf("memory store: created %q %v\n", meta.Name, meta.Shape)
	return a, nil
}

// OpenArray returns a previously created array.
func (s *Store) OpenArray(name string) (storage.Array, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, found := s.arrays[name]
	if !found {
		return nil, fmt.Errorf("no array %q in memory store", name)
	}
	a.reopen()
	return a, nil
}

// DeleteArray drops an array.
func (s *Store) DeleteArray(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.arrays[name]; !found {
		return fmt.Errorf("no array %q in memory store", name)
	}
	delete(s.arrays, name)
	return nil
}

// Names returns the arrays held.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.arrays))
	for name := range s.arrays {
		names = append(names, name)
	}
	return names
}

// Size returns the approximate number of bytes held by the store.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return size.Of(s.arrays)
}

func (s *Store) Close() error {
	tomo.Debugf("memory store closing with %s resident\n", tomo.Bytes(uint64(s.Size())))
	return nil
}

// Array wraps an ndarray.Array with a lock.
type Array struct {
	mu     sync.RWMutex
	meta   storage.Metadata
	data   *ndarray.Array
	closed bool
}

// NewArray wraps data, which must match meta.Shape.
func NewArray(meta storage.Metadata, data *ndarray.Array) *Array {
	return &Array{meta: meta.Duplicate(), data: data}
}

func (a *Array) reopen() {
	a.mu.Lock()
	a.closed = false
	a.mu.Unlock()
}

func (a *Array) Metadata() storage.Metadata {
	return a.meta.Duplicate()
}

// Data returns the backing array.  Callers must not use it concurrently with Write.
func (a *Array) Data() *ndarray.Array {
	return a.data
}

func (a *Array) Read(idx ndarray.Index) (*ndarray.Array, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, fmt.Errorf("read from closed array %q", a.meta.Name)
	}
	return a.data.Region(idx)
}

func (a *Array) Write(idx ndarray.Index, data *ndarray.Array) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("write to closed array %q", a.meta.Name)
	}
	if err := storage.CheckWrite(a.meta.Shape, idx, data); err != nil {
		return err
	}
	return a.data.SetRegion(idx, data)
}

func (a *Array) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
