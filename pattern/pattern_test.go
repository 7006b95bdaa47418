package pattern

import (
	"errors"
	"testing"
)

func TestAddValidation(t *testing.T) {
	r := NewRegistry(3)
	tests := []struct {
		name        string
		core, slice []int
		valid       bool
	}{
		{"PROJECTION", []int{1, 2}, []int{0}, true},
		{"SINOGRAM", []int{0, -1}, []int{1}, true},
		{"OVERLAP", []int{0, 1}, []int{1, 2}, false},
		{"MISSING", []int{1}, []int{0}, false},
		{"RANGE", []int{1, 3}, []int{0}, false},
		{"", []int{1, 2}, []int{0}, false},
	}
	for _, tc := range tests {
		err := r.Add(tc.name, tc.core, tc.slice)
		if tc.valid && err != nil {
			t.Errorf("pattern %q: unexpected error %v", tc.name, err)
		}
		if !tc.valid {
			var invalid *InvalidPatternError
			if !errors.As(err, &invalid) {
				t.Errorf("pattern %q: expected InvalidPatternError, got %v", tc.name, err)
			}
		}
	}
	p, err := r.Get("SINOGRAM")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.CoreDims[1] != 2 {
		t.Errorf("negative dim not normalized: %v", p)
	}
	if p.MainDim() != 1 {
		t.Errorf("expected main dim 1, got %d", p.MainDim())
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 registered patterns, got %v", r.Names())
	}
}

func TestPartitionProperty(t *testing.T) {
	r := NewRegistry(4)
	if err := r.AddTomoPatterns(0, 1, 2); err != nil {
		t.Fatalf("AddTomoPatterns: %v", err)
	}
	if err := r.AddVolumePatterns(2, 1, 0); err != nil {
		t.Fatalf("AddVolumePatterns: %v", err)
	}
	for _, p := range r.Patterns() {
		seen := make(map[int]int)
		for _, d := range p.CoreDims {
			seen[d]++
		}
		for _, d := range p.SliceDims {
			seen[d]++
		}
		for d := 0; d < 4; d++ {
			if seen[d] != 1 {
				t.Errorf("pattern %s covers dim %d %d times", p, d, seen[d])
			}
		}
	}
	proj, _ := r.Get(Projection)
	if len(proj.SliceDims) != 2 || proj.SliceDims[1] != 3 {
		t.Errorf("extra dim should be appended to slice dims: %v", proj)
	}
}

func TestUnknownPattern(t *testing.T) {
	r := NewRegistry(3)
	_, err := r.Get("VOLUME_XZ")
	var unknown *UnknownPatternError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownPatternError, got %v", err)
	}
	if err := r.Remove("VOLUME_XZ"); err == nil {
		t.Errorf("expected error removing unregistered pattern")
	}
}

func TestCopyIsIndependent(t *testing.T) {
	r := NewRegistry(3)
	if err := r.AddTomoPatterns(0, 1, 2); err != nil {
		t.Fatal(err)
	}
	c := r.Copy()
	if err := c.Remove(Sinogram); err != nil {
		t.Fatal(err)
	}
	if !r.Has(Sinogram) {
		t.Errorf("removing from copy changed original")
	}
	only, err := r.CopyNames(Projection)
	if err != nil {
		t.Fatal(err)
	}
	if only.Len() != 1 || !only.Has(Projection) {
		t.Errorf("CopyNames gave %v", only.Names())
	}
	if _, err := r.CopyNames("SPECTRUM"); err == nil {
		t.Errorf("expected error copying unknown pattern")
	}
}

func TestRemoveAxis(t *testing.T) {
	r := NewRegistry(3)
	if err := r.AddTomoPatterns(0, 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(Spectrum, []int{0}, []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	removed, err := r.RemoveAxis(0)
	if err != nil {
		t.Fatal(err)
	}
	if removed.Rank() != 2 {
		t.Errorf("expected rank 2, got %d", removed.Rank())
	}
	if removed.Has(Spectrum) {
		t.Errorf("pattern without core dims should be dropped")
	}
	proj, err := removed.Get(Projection)
	if err != nil {
		t.Fatal(err)
	}
	if len(proj.CoreDims) != 2 || proj.CoreDims[0] != 0 || proj.CoreDims[1] != 1 || len(proj.SliceDims) != 0 {
		t.Errorf("unexpected remapped projection %v", proj)
	}
	sino, err := removed.Get(Sinogram)
	if err != nil {
		t.Fatal(err)
	}
	if len(sino.CoreDims) != 1 || sino.CoreDims[0] != 1 || sino.SliceDims[0] != 0 {
		t.Errorf("unexpected remapped sinogram %v", sino)
	}
	if _, err := r.RemoveAxis(3); err == nil {
		t.Errorf("expected error removing out of range axis")
	}
}
