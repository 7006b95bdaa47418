package runner

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/hdf5"
	"github.com/janelia-flyem/tomoflow/storage/memory"
)

var (
	errFullDisk   = errors.New("disk full")
	errLostHandle = errors.New("handle lost")
)

// failingStore hands out arrays that fail every write and every close.
type failingStore struct {
	*memory.Store
}

func (s failingStore) CreateArray(meta storage.Metadata) (storage.Array, error) {
	a, err := s.Store.CreateArray(meta)
	if err != nil {
		return nil, err
	}
	return failingArray{a}, nil
}

type failingArray struct {
	storage.Array
}

func (failingArray) Write(ndarray.Index, *ndarray.Array) error { return errFullDisk }
func (failingArray) Close() error { return errLostHandle }

func TestSyntheticReportsCloseFailure(t *testing.T) {
	_, err := Synthetic(failingStore{memory.New()}, "tomo", []int{3, 2, 2})
	if err == nil {
		t.Fatal("expected synthetic input to fail on a failing store")
	}
	if !errors.Is(err, errFullDisk) {
		t.Errorf("expected write failure in %v", err)
	}
	if !strings.Contains(err.Error(), errLostHandle.Error()) {
		t.Errorf("expected close failure in %v", err)
	}
}

func TestLoadInputFromHDF5(t *testing.T) {
	dir := t.TempDir()
	s, err := hdf5.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := Synthetic(s, "scan", []int{3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Complete(); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadInput(memory.New(), filepath.Join(dir, "scan.h5"))
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Name() != InputName || !loaded.Patterns().Has(pattern.Sinogram) {
		t.Errorf("unexpected input %s with patterns %v", loaded, loaded.Patterns().Names())
	}
	v, err := loaded.Read(ndarray.Index{ndarray.At(2), ndarray.At(3), ndarray.At(4)})
	if err != nil {
		t.Fatal(err)
	}
	if v.Data()[0] != 59 {
		t.Errorf("expected ramp value 59, got %v", v.Data()[0])
	}
	if err := loaded.Complete(); err != nil {
		t.Fatal(err)
	}
}

func TestSplitDatasetPath(t *testing.T) {
	tests := []struct {
		arg, file, ds string
	}{
		{"scan.nxs:/entry1/tomo_entry/data/data", "scan.nxs", "/entry1/tomo_entry/data/data"},
		{"/data/run 7/raw.h5:/entry/data", "/data/run 7/raw.h5", "/entry/data"},
		{"out/tomo.h5", "out/tomo.h5", ""},
	}
	for _, tc := range tests {
		file, ds := hdf5.SplitDatasetPath(tc.arg)
		if file != tc.file || ds != tc.ds {
			t.Errorf("splitting %q: expected %q %q, got %q %q", tc.arg, tc.file, tc.ds, file, ds)
		}
	}
}
