package slicing

import (
	"errors"
	"testing"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
)

var tomoShape = []int{91, 135, 160}

func tomoRegistry(t *testing.T) *pattern.Registry {
	r := pattern.NewRegistry(3)
	if err := r.AddTomoPatterns(0, 1, 2); err != nil {
		t.Fatalf("AddTomoPatterns: %v", err)
	}
	return r
}

func TestProjectionSingleFrames(t *testing.T) {
	list, err := Generate(tomoRegistry(t), tomoShape, pattern.Projection, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 91 {
		t.Fatalf("expected 91 entries, got %d", len(list))
	}
	for i, idx := range list {
		want := ndarray.Index{ndarray.At(i), ndarray.All(), ndarray.All()}
		if idx.String() != want.String() {
			t.Fatalf("entry %d: expected %s, got %s", i, want, idx)
		}
	}
}

func TestSinogramSingleFrames(t *testing.T) {
	list, err := Generate(tomoRegistry(t), tomoShape, pattern.Sinogram, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 135 {
		t.Fatalf("expected 135 entries, got %d", len(list))
	}
	if s := list[134].String(); s != "(:, 134, :)" {
		t.Errorf("unexpected last entry %s", s)
	}
}

func TestProjectionGrouped(t *testing.T) {
	r := tomoRegistry(t)
	list, err := Generate(r, tomoShape, pattern.Projection, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 12 {
		t.Fatalf("expected 12 groups, got %d", len(list))
	}
	if s := list[0].String(); s != "(0:8:1, :, :)" {
		t.Errorf("unexpected first group %s", s)
	}
	if s := list[11].String(); s != "(88:91:1, :, :)" {
		t.Errorf("unexpected last group %s", s)
	}
	p, _ := r.Get(pattern.Projection)
	if n := TotalFrames(list, p, tomoShape); n != 91 {
		t.Errorf("expected 91 frames, got %d", n)
	}
	if err := CheckCoverage(list, p, tomoShape); err != nil {
		t.Error(err)
	}
}

func TestGroupOfOneStaysScalar(t *testing.T) {
	r := pattern.NewRegistry(2)
	if err := r.Add("ROWS", []int{1}, []int{0}); err != nil {
		t.Fatal(err)
	}
	list, err := Generate(r, []int{9, 4}, "ROWS", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(list))
	}
	if s := list[2].String(); s != "(8, :)" {
		t.Errorf("expected scalar last group, got %s", s)
	}
}

func TestMultipleSliceDims(t *testing.T) {
	r := pattern.NewRegistry(4)
	if err := r.AddTomoPatterns(0, 1, 2); err != nil {
		t.Fatal(err)
	}
	shape := []int{5, 3, 4, 2}
	p, _ := r.Get(pattern.Projection)
	for _, mf := range []int{1, 2, 3, 5, 7, 100} {
		list, err := ForPattern(p, shape, mf)
		if err != nil {
			t.Fatal(err)
		}
		if err := CheckCoverage(list, p, shape); err != nil {
			t.Errorf("max frames %d: %v", mf, err)
		}
		for _, idx := range list {
			if n := NumFrames(idx, p, shape); n > mf {
				t.Errorf("max frames %d: group %s has %d frames", mf, idx, n)
			}
		}
	}
	// Groups never span the wrap of the fastest dimension.
	list, _ := ForPattern(p, shape, 100)
	if len(list) != 2 || list[0].String() != "(0:5:1, :, :, 0)" {
		t.Errorf("unexpected grouping %v", list)
	}
}

func TestDegenerateFastestDim(t *testing.T) {
	r := pattern.NewRegistry(3)
	if err := r.Add("FRAMES", []int{2}, []int{0, 1}); err != nil {
		t.Fatal(err)
	}
	list, err := Generate(r, []int{1, 6, 3}, "FRAMES", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].String() != "(0, 0:4:1, :)" {
		t.Errorf("unexpected grouping %v", list)
	}
}

func TestAllCorePattern(t *testing.T) {
	r := pattern.NewRegistry(3)
	if err := r.AddVolumePatterns(0, 1, 2); err != nil {
		t.Fatal(err)
	}
	list, err := Generate(r, []int{4, 5, 6}, pattern.Volume3D, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].String() != "(:, :, :)" {
		t.Errorf("expected a single complete entry, got %v", list)
	}
}

func TestUnsupportedPattern(t *testing.T) {
	_, err := Generate(tomoRegistry(t), tomoShape, pattern.VolumeXZ, 1)
	var unsupported *pattern.UnsupportedPatternError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedPatternError, got %v", err)
	}
	if _, err := Generate(tomoRegistry(t), tomoShape, pattern.Projection, 0); err == nil {
		t.Errorf("expected error for zero max frames")
	}
}

func TestCacheSharesLists(t *testing.T) {
	p, _ := tomoRegistry(t).Get(pattern.Sinogram)
	c := NewCache(4)
	a, err := c.Get(p, tomoShape, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Get(p, tomoShape, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) || &a[0] != &b[0] {
		t.Errorf("expected the cached list to be returned")
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d and %d", hits, misses)
	}
}
