package dataset

import (
	"fmt"

	"github.com/janelia-flyem/tomoflow/chunking"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/slicing"
)

// Frames-per-group requests.  Multiple lets the framework choose.
const (
	Single   = 1
	Multiple = -1
)

// PluginData is one plugin's view of a dataset: the pattern it slices with,
// the frames it takes per call and the padding around each frame-group.
type PluginData struct {
	Dataset *Dataset
	Padding slicing.Padding

	pattern   pattern.Pattern
	hasPat    bool
	maxFrames int
	resolved  int
	list      slicing.List
}

// NewPluginData returns a view of ds with no pattern set.
func NewPluginData(ds *Dataset) *PluginData {
	return &PluginData{Dataset: ds, Padding: slicing.Padding{}}
}

// SetPattern selects the access pattern and the requested frames per group,
// either a positive count or Multiple.
func (pd *PluginData) SetPattern(name string, maxFrames int) error {
	p, err := pd.Dataset.patterns.Get(name)
	if err != nil {
		return &pattern.UnsupportedPatternError{Name: name, Dataset: pd.Dataset.name}
	}
	if maxFrames == 0 || maxFrames < Multiple {
		return fmt.Errorf("dataset %q: bad max frames %d for pattern %s", pd.Dataset.name, maxFrames, name)
	}
	pd.pattern = p
	pd.hasPat = true
	pd.maxFrames = maxFrames
	pd.resolved = 0
	pd.list = nil
	return nil
}

// Pattern returns the selected pattern.
func (pd *PluginData) Pattern() (pattern.Pattern, bool) {
	return pd.pattern, pd.hasPat
}

// RequestedFrames returns the frames per group asked for in SetPattern.
func (pd *PluginData) RequestedFrames() int {
	return pd.maxFrames
}

// ResolveFrames fixes the frames per group, replacing Multiple by multiple
// capped at the extent of the main slice dimension.
func (pd *PluginData) ResolveFrames(multiple int) int {
	n := pd.maxFrames
	if n == Multiple {
		n = multiple
		if d := pd.pattern.MainDim(); d >= 0 {
			if extent := pd.Dataset.PreviewShape()[d]; n > extent {
				n = extent
			}
		}
	}
	if n < 1 {
		n = 1
	}
	if n != pd.resolved {
		pd.list = nil
	}
	pd.resolved = n
	return n
}

// Frames returns the resolved frames per group, or Single if unresolved.
func (pd *PluginData) Frames() int {
	if pd.resolved < 1 {
		return Single
	}
	return pd.resolved
}

// PadFrameEdges pads each core dimension of the selected pattern by n.
func (pd *PluginData) PadFrameEdges(n int) {
	pd.Padding.PadFrameEdges(pd.pattern, n)
}

// PadMultiFrames gives each frame-group n neighbor frames on either side.
func (pd *PluginData) PadMultiFrames(n int) {
	pd.Padding.PadMultiFrames(pd.pattern, n)
}

// Pads returns the padding widths per dimension.
func (pd *PluginData) Pads() []int {
	return pd.Padding.Widths(pd.Dataset.Rank())
}

// Requirement returns the chunking requirement of this access.
func (pd *PluginData) Requirement() chunking.Requirement {
	return chunking.FromPattern(pd.pattern, pd.Frames())
}

// SliceList returns the frame-groups for the selected pattern within the
// dataset preview, generating them once.  A nil cache generates directly.
func (pd *PluginData) SliceList(cache *slicing.Cache) (slicing.List, error) {
	if !pd.hasPat {
		return nil, fmt.Errorf("dataset %q has no pattern selected", pd.Dataset.name)
	}
	if pd.list != nil {
		return pd.list, nil
	}
	var list slicing.List
	var err error
	pv := pd.Dataset.Preview()
	if cache != nil {
		list, err = cache.GetPreview(pd.pattern, pd.Dataset.shape, pv, pd.Frames())
	} else {
		list, err = slicing.ForPreview(pd.pattern, pd.Dataset.shape, pv, pd.Frames())
	}
	if err != nil {
		return nil, err
	}
	pd.list = list
	return list, nil
}

// CheckCoverage verifies that list selects every previewed frame of the
// dataset exactly once.
func (pd *PluginData) CheckCoverage(list slicing.List) error {
	return slicing.CheckPreviewCoverage(list, pd.pattern, pd.Dataset.shape, pd.Dataset.Preview())
}

// Cleanup drops the cached slice list.
func (pd *PluginData) Cleanup() {
	pd.list = nil
}
