package dataset

import (
	"errors"
	"testing"

	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/slicing"
)

func TestPluginDataPattern(t *testing.T) {
	ds := tomoDataset(t, "tomo", []int{91, 135, 160})
	pd := NewPluginData(ds)
	if _, err := pd.SliceList(nil); err == nil {
		t.Errorf("expected error with no pattern")
	}
	var unsupported *pattern.UnsupportedPatternError
	if err := pd.SetPattern(pattern.VolumeXZ, Single); !errors.As(err, &unsupported) {
		t.Errorf("expected UnsupportedPatternError, got %v", err)
	}
	if err := pd.SetPattern(pattern.Projection, 0); err == nil {
		t.Errorf("expected error for zero max frames")
	}

	if err := pd.SetPattern(pattern.Projection, Single); err != nil {
		t.Fatal(err)
	}
	list, err := pd.SliceList(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 91 {
		t.Errorf("expected 91 projection groups, got %d", len(list))
	}

	if err := pd.SetPattern(pattern.Projection, 8); err != nil {
		t.Fatal(err)
	}
	pd.ResolveFrames(16)
	cache := slicing.NewCache(4)
	if list, err = pd.SliceList(cache); err != nil {
		t.Fatal(err)
	}
	if len(list) != 12 {
		t.Errorf("expected 12 groups of 8, got %d", len(list))
	}
	if req := pd.Requirement(); req.MaxFrames != 8 || len(req.CoreDims) != 2 {
		t.Errorf("bad requirement %+v", req)
	}
}

func TestResolveFrames(t *testing.T) {
	ds := tomoDataset(t, "tomo", []int{10, 135, 160})
	pd := NewPluginData(ds)
	if err := pd.SetPattern(pattern.Projection, Multiple); err != nil {
		t.Fatal(err)
	}
	if pd.Frames() != Single {
		t.Errorf("unresolved frames should be single")
	}
	if n := pd.ResolveFrames(4); n != 4 {
		t.Errorf("expected 4 frames, got %d", n)
	}
	if n := pd.ResolveFrames(32); n != 10 {
		t.Errorf("expected frames capped at 10, got %d", n)
	}
	if err := pd.SetPattern(pattern.Projection, 3); err != nil {
		t.Fatal(err)
	}
	if n := pd.ResolveFrames(32); n != 3 {
		t.Errorf("explicit max frames should win, got %d", n)
	}
}

func TestPluginDataPadding(t *testing.T) {
	ds := tomoDataset(t, "tomo", []int{10, 20, 30})
	pd := NewPluginData(ds)
	if err := pd.SetPattern(pattern.Projection, Single); err != nil {
		t.Fatal(err)
	}
	pd.PadFrameEdges(2)
	pd.PadMultiFrames(1)
	pads := pd.Pads()
	if pads[0] != 1 || pads[1] != 2 || pads[2] != 2 {
		t.Errorf("bad pads %v", pads)
	}
}

func TestPluginDataWithinPreview(t *testing.T) {
	ds := tomoDataset(t, "tomo", []int{91, 135, 160})
	pv, err := slicing.ParsePreview([]string{"1:90:3", "mid", ":"}, ds.Shape())
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.SetPreview(pv); err != nil {
		t.Fatal(err)
	}
	pd := NewPluginData(ds)
	if err := pd.SetPattern(pattern.Projection, Multiple); err != nil {
		t.Fatal(err)
	}
	if n := pd.ResolveFrames(64); n != 30 {
		t.Errorf("frames should be capped by the 30 previewed projections, got %d", n)
	}
	list, err := pd.SliceList(slicing.NewCache(4))
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].String() != "(1:89:3, 67:68:1, 0:160:1)" {
		t.Errorf("unexpected slice list %v", list)
	}
	if err := pd.CheckCoverage(list); err != nil {
		t.Error(err)
	}

	if err := pd.SetPattern(pattern.Sinogram, Single); err != nil {
		t.Fatal(err)
	}
	if list, err = pd.SliceList(nil); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].String() != "(1:90:3, 67, 0:160:1)" {
		t.Errorf("unexpected sinogram list %v", list)
	}
	if err := pd.CheckCoverage(list); err != nil {
		t.Error(err)
	}
}
