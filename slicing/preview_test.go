package slicing

import (
	"testing"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/tomo"
)

func TestParsePreview(t *testing.T) {
	tests := []struct {
		entries []string
		shape   []int
		str     string
	}{
		{[]string{":", "10:20", "0:end:4"}, []int{91, 10, 40}, "(:, 10:20:1, 0:160:4)"},
		{[]string{"mid", "", "-10:"}, []int{1, 135, 10}, "(45:46:1, :, 150:160:1)"},
		{[]string{"1:200:3", ":", "mid:end"}, []int{30, 135, 80}, "(1:91:3, :, 80:160:1)"},
	}
	for _, tc := range tests {
		pv, err := ParsePreview(tc.entries, tomoShape)
		if err != nil {
			t.Errorf("parsing %v: %v", tc.entries, err)
			continue
		}
		if got := pv.Shape(tomoShape); !tomo.IntsEqual(got, tc.shape) {
			t.Errorf("preview %v: expected shape %v, got %v", tc.entries, tc.shape, got)
		}
		if s := pv.String(); s != tc.str {
			t.Errorf("preview %v: expected %s, got %s", tc.entries, tc.str, s)
		}
	}

	bad := [][]string{
		{":", ":"},
		{"50:10", ":", ":"},
		{"0:10:0", ":", ":"},
		{"first", ":", ":"},
		{"0:1:2:3", ":", ":"},
		{"200", ":", ":"},
	}
	for _, entries := range bad {
		if _, err := ParsePreview(entries, tomoShape); err == nil {
			t.Errorf("expected error for preview %v", entries)
		}
	}

	if pv, err := ParsePreview(nil, tomoShape); err != nil || pv != nil {
		t.Errorf("no entries should give no preview, got %v, %v", pv, err)
	}
}

func TestPreviewEntries(t *testing.T) {
	pv, err := ParsePreview([]string{"1:90:3", ":", "mid"}, tomoShape)
	if err != nil {
		t.Fatal(err)
	}
	entries := pv.Entries(tomoShape)
	again, err := ParsePreview(entries, tomoShape)
	if err != nil {
		t.Fatal(err)
	}
	if again.String() != pv.String() {
		t.Errorf("entries %v gave preview %s, want %s", entries, again, pv)
	}
}

func TestProjectionsWithinPreview(t *testing.T) {
	r := tomoRegistry(t)
	p, _ := r.Get(pattern.Projection)
	pv, err := ParsePreview([]string{"1:90:3", "10:20", ":"}, tomoShape)
	if err != nil {
		t.Fatal(err)
	}
	list, err := ForPreview(p, tomoShape, pv, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 8 {
		t.Fatalf("expected 8 groups for 30 previewed projections, got %d", len(list))
	}
	if s := list[0].String(); s != "(1:11:3, 10:20:1, 0:160:1)" {
		t.Errorf("unexpected first group %s", s)
	}
	if s := list[7].String(); s != "(85:89:3, 10:20:1, 0:160:1)" {
		t.Errorf("unexpected last group %s", s)
	}
	if n := TotalFrames(list, p, tomoShape); n != 30 {
		t.Errorf("expected 30 frames, got %d", n)
	}
	if err := CheckPreviewCoverage(list, p, tomoShape, pv); err != nil {
		t.Error(err)
	}
	for _, idx := range list {
		if err := idx.Check(tomoShape); err != nil {
			t.Fatal(err)
		}
	}

	local, err := ForPattern(p, pv.Shape(tomoShape), 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, idx := range local {
		back, err := pv.Local(list[i], tomoShape)
		if err != nil {
			t.Fatal(err)
		}
		if back.String() != idx.String() {
			t.Errorf("group %d: %s maps back to %s, want %s", i, list[i], back, idx)
		}
	}
}

func TestSinogramsWithinPreview(t *testing.T) {
	p, _ := tomoRegistry(t).Get(pattern.Sinogram)
	pv, err := ParsePreview([]string{"0:end:2", "10:20", "40:120"}, tomoShape)
	if err != nil {
		t.Fatal(err)
	}
	list, err := ForPreview(p, tomoShape, pv, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 10 {
		t.Fatalf("expected 10 sinograms, got %d", len(list))
	}
	if s := list[3].String(); s != "(0:91:2, 13, 40:120:1)" {
		t.Errorf("unexpected sinogram %s", s)
	}
	if err := CheckPreviewCoverage(list, p, tomoShape, pv); err != nil {
		t.Error(err)
	}
	if err := CheckPreviewCoverage(list[:9], p, tomoShape, pv); err == nil {
		t.Error("expected coverage error with a sinogram missing")
	}

	whole, err := ForPattern(p, tomoShape, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckPreviewCoverage(whole, p, tomoShape, pv); err == nil {
		t.Error("expected coverage error for frames outside the preview")
	}
}

func TestPreviewedFrameShape(t *testing.T) {
	shape := []int{6, 4, 5}
	r := pattern.NewRegistry(3)
	if err := r.AddTomoPatterns(0, 1, 2); err != nil {
		t.Fatal(err)
	}
	p, _ := r.Get(pattern.Projection)
	pv, err := ParsePreview([]string{"0:end:2", "1:3", ":"}, shape)
	if err != nil {
		t.Fatal(err)
	}
	list, err := ForPreview(p, shape, pv, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 projections, got %d", len(list))
	}
	frame, err := ndarray.Ramp(shape...).Read(list[1])
	if err != nil {
		t.Fatal(err)
	}
	if !tomo.IntsEqual(frame.Shape(), []int{1, 2, 5}) {
		t.Fatalf("expected previewed frame shape [1 2 5], got %v", frame.Shape())
	}
	if v := frame.At(0, 0, 0); v != 45 {
		t.Errorf("expected first previewed value 45, got %v", v)
	}
}

func TestCacheKeepsPreviewsApart(t *testing.T) {
	p, _ := tomoRegistry(t).Get(pattern.Projection)
	pv, err := ParsePreview([]string{"0:10", ":", ":"}, tomoShape)
	if err != nil {
		t.Fatal(err)
	}
	c := NewCache(4)
	whole, err := c.Get(p, tomoShape, 1)
	if err != nil {
		t.Fatal(err)
	}
	part, err := c.GetPreview(p, tomoShape, pv, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(whole) != 91 || len(part) != 10 {
		t.Errorf("expected 91 and 10 projections, got %d and %d", len(whole), len(part))
	}
	if hits, misses := c.Stats(); hits != 0 || misses != 2 {
		t.Errorf("expected 2 misses, got %d hits %d misses", hits, misses)
	}
}
