/*
	Package storage defines the backing stores for pipeline datasets.  A Store
	creates and opens named N-dimensional arrays; an Array supports reading and
	writing rectangular, possibly strided, regions addressed by an ndarray.Index.

	Arrays are shared by all worker ranks of a run.  Implementations must allow
	concurrent Read and Write calls on disjoint regions, including disjoint
	regions that fall within the same on-disk chunk.
*/
package storage

import (
	"fmt"

	"github.com/blang/semver"
	"github.com/janelia-flyem/tomoflow/ndarray"
)

// Array is a named N-dimensional array held by a Store.
type Array interface {
	// Metadata returns the shape, chunking and labelling of the array.
	Metadata() Metadata

	// Read returns a copy of the region selected by idx.
	Read(idx ndarray.Index) (*ndarray.Array, error)

	// Write stores data into the region selected by idx.
	Write(idx ndarray.Index, data *ndarray.Array) error

	// Close flushes and releases the array.  Calling Close more than once is
	// not an error.
	Close() error
}

// Flusher is implemented by arrays that buffer writes.  Flush makes every
// write so far durable while leaving the array open.
type Flusher interface {
	Flush() error
}

// Store creates and opens arrays.
type Store interface {
	// Engine describes the storage engine.
	Engine() Engine

	// CreateArray allocates a new array, replacing any array of the same name.
	CreateArray(meta Metadata) (Array, error)

	// OpenArray opens an existing array.
	OpenArray(name string) (Array, error)

	// DeleteArray removes an array and its data.
	DeleteArray(name string) error

	// Close releases the store.  Arrays should be closed first.
	Close() error
}

// Engine describes a storage engine implementation.
type Engine struct {
	Name        string
	Description string
	SemVer      semver.Version
}

// NewEngine returns an engine description, panicking on a malformed version.
func NewEngine(name, desc, version string) Engine {
	return Engine{Name: name, Description: desc, SemVer: semver.MustParse(version)}
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.Name, e.SemVer)
}

// Compatible returns true if data written by an engine with the given version
// can be read by this one.
func (e Engine) Compatible(version string) bool {
	v, err := semver.Parse(version)
	if err != nil {
		return false
	}
	return v.Major == e.SemVer.Major && v.LTE(e.SemVer)
}

// CheckWrite verifies that data matches the region selected by idx within shape.
func CheckWrite(shape []int, idx ndarray.Index, data *ndarray.Array) error {
	if err := idx.Check(shape); err != nil {
		return err
	}
	want := idx.Shape(shape)
	got := data.Shape()
	if len(want) != len(got) {
		return fmt.Errorf("region %s has shape %v, data has shape %v", idx, want, got)
	}
	for d := range want {
		if want[d] != got[d] {
			return fmt.Errorf("region %s has shape %v, data has shape %v", idx, want, got)
		}
	}
	return nil
}
