// Package storagetest holds conformance checks run against every Store.
package storagetest

import (
	"sync"
	"testing"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// Metadata returns a small 3-d array description with the given chunks.
func Metadata(name string, shape, chunks []int) storage.Metadata {
	axes, _ := tomo.ParseAxisLabels("rotation_angle.degrees", "detector_y.pixel", "detector_x.pixel")
	return storage.Metadata{
		Name:   name,
		Shape:  shape,
		Chunks: chunks,
		DType:  tomo.Float32,
		Axes:   axes,
		Patterns: []pattern.Pattern{
			{Name: pattern.Projection, CoreDims: []int{1, 2}, SliceDims: []int{0}},
			{Name: pattern.Sinogram, CoreDims: []int{0, 2}, SliceDims: []int{1}},
		},
	}
}

// Check runs the conformance checks against a store.
func Check(t *testing.T, s storage.Store) {
	t.Helper()
	checkRegions(t, s)
	checkConcurrentWrites(t, s)
	checkReopen(t, s)
}

func checkRegions(t *testing.T, s storage.Store) {
	shape := []int{5, 6, 7}
	a, err := s.CreateArray(Metadata("regions", shape, []int{2, 4, 3}))
	if err != nil {
		t.Fatalf("%s: CreateArray: %v", s.Engine(), err)
	}
	defer a.Close()

	src := ndarray.Ramp(shape...)
	whole := ndarray.Index{ndarray.All(), ndarray.All(), ndarray.All()}
	if err := a.Write(whole, src); err != nil {
		t.Fatalf("%s: Write: %v", s.Engine(), err)
	}
	got, err := a.Read(whole)
	if err != nil {
		t.Fatalf("%s: Read: %v", s.Engine(), err)
	}
	if !got.Equal(src) {
		t.Fatalf("%s: read back differs from write", s.Engine())
	}

	strided := ndarray.Index{ndarray.Range(1, 5, 2), ndarray.At(3), ndarray.Range(0, 7, 3)}
	region, err := a.Read(strided)
	if err != nil {
		t.Fatalf("%s: strided Read: %v", s.Engine(), err)
	}
	want, _ := src.Region(strided)
	if !region.Equal(want) {
		t.Errorf("%s: strided read gave %v, expected %v", s.Engine(), region.Data(), want.Data())
	}

	patch := ndarray.New(2, 1, 3)
	patch.Fill(-1)
	if err := a.Write(strided, patch); err != nil {
		t.Fatalf("%s: strided Write: %v", s.Engine(), err)
	}
	got, err = a.Read(whole)
	if err != nil {
		t.Fatal(err)
	}
	if v := got.At(3, 3, 6); v != -1 {
		t.Errorf("%s: expected -1 at (3,3,6), got %v", s.Engine(), v)
	}
	if v := got.At(2, 3, 6); v != src.At(2, 3, 6) {
		t.Errorf("%s: strided write touched (2,3,6)", s.Engine())
	}

	if err := a.Write(strided, ndarray.New(2, 2, 3)); err == nil {
		t.Errorf("%s: expected error writing mismatched shape", s.Engine())
	}
	if _, err := a.Read(ndarray.Index{ndarray.At(5), ndarray.All(), ndarray.All()}); err == nil {
		t.Errorf("%s: expected error reading out of bounds", s.Engine())
	}
}

// checkConcurrentWrites has several goroutines write disjoint frames that share chunks.
func checkConcurrentWrites(t *testing.T, s storage.Store) {
	shape := []int{16, 4, 4}
	a, err := s.CreateArray(Metadata("concurrent", shape, []int{8, 4, 4}))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	var wg sync.WaitGroup
	errs := make(chan error, shape[0])
	for i := 0; i < shape[0]; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			frame := ndarray.New(1, 4, 4)
			frame.Fill(float32(i + 1))
			errs <- a.Write(ndarray.Index{ndarray.At(i), ndarray.All(), ndarray.All()}, frame)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("%s: concurrent write: %v", s.Engine(), err)
		}
	}
	got, err := a.Read(ndarray.Index{ndarray.All(), ndarray.At(2), ndarray.At(3)})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got.Data() {
		if v != float32(i+1) {
			t.Fatalf("%s: frame %d lost its write (got %v)", s.Engine(), i, v)
		}
	}
}

func checkReopen(t *testing.T, s storage.Store) {
	shape := []int{3, 4, 5}
	meta := Metadata("reopen", shape, []int{1, 4, 5})
	a, err := s.CreateArray(meta)
	if err != nil {
		t.Fatal(err)
	}
	src := ndarray.Ramp(shape...)
	whole := ndarray.Index{ndarray.All(), ndarray.All(), ndarray.All()}
	if err := a.Write(whole, src); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("%s: second Close: %v", s.Engine(), err)
	}
	b, err := s.OpenArray("reopen")
	if err != nil {
		t.Fatalf("%s: OpenArray: %v", s.Engine(), err)
	}
	defer b.Close()
	got, err := b.Read(whole)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(src) {
		t.Errorf("%s: reopened data differs", s.Engine())
	}
	m := b.Metadata()
	if !tomo.IntsEqual(m.Shape, shape) || !tomo.IntsEqual(m.Chunks, meta.Chunks) || len(m.Patterns) != 2 {
		t.Errorf("%s: reopened metadata %+v", s.Engine(), m)
	}
	if m.Axes[0].Name != "rotation_angle" {
		t.Errorf("%s: axis labels lost: %v", s.Engine(), m.Axes)
	}
	if _, err := s.OpenArray("missing"); err == nil {
		t.Errorf("%s: expected error opening missing array", s.Engine())
	}
	if err := s.DeleteArray("reopen"); err != nil {
		t.Errorf("%s: DeleteArray: %v", s.Engine(), err)
	}
}
