package slicing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
)

// Preview restricts a dataset to a stepped sub-region, one range per
// dimension.  A nil Preview selects the whole dataset.  Slice lists built for
// a preview address the full array, so frame-groups read through a preview
// have the previewed shape.
type Preview ndarray.Index

// ParsePreview parses one entry per dimension of shape.  An entry is
// "start:stop:step" where any part may be omitted, a single position, or
// "mid" for the central position.  "end" may stand for the extent in start
// and stop, and negative positions count back from the end.  An empty entry
// or ":" keeps the whole dimension.
func ParsePreview(entries []string, shape []int) (Preview, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if len(entries) != len(shape) {
		return nil, fmt.Errorf("preview %v has %d entries for shape %v", entries, len(entries), shape)
	}
	pv := make(Preview, len(shape))
	for d, e := range entries {
		s, err := parsePreviewDim(strings.TrimSpace(e), shape[d])
		if err != nil {
			return nil, fmt.Errorf("preview entry %q for dim %d: %v", e, d, err)
		}
		pv[d] = s
	}
	if err := pv.Check(shape); err != nil {
		return nil, err
	}
	return pv, nil
}

func parsePreviewDim(e string, extent int) (ndarray.Slice, error) {
	if e == "" || e == ":" {
		return ndarray.All(), nil
	}
	pos := func(s string, def int) (int, error) {
		switch s {
		case "":
			return def, nil
		case "end":
			return extent, nil
		case "mid":
			return extent / 2, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			n += extent
		}
		return n, nil
	}
	parts := strings.Split(e, ":")
	if len(parts) == 1 {
		n, err := pos(parts[0], 0)
		if err != nil {
			return ndarray.Slice{}, err
		}
		return ndarray.Range(n, n+1, 1), nil
	}
	if len(parts) > 3 {
		return ndarray.Slice{}, fmt.Errorf("too many fields")
	}
	start, err := pos(parts[0], 0)
	if err != nil {
		return ndarray.Slice{}, err
	}
	stop, err := pos(parts[1], extent)
	if err != nil {
		return ndarray.Slice{}, err
	}
	step := 1
	if len(parts) == 3 && parts[2] != "" {
		if step, err = strconv.Atoi(parts[2]); err != nil {
			return ndarray.Slice{}, err
		}
		if step < 1 {
			return ndarray.Slice{}, fmt.Errorf("step must be positive")
		}
	}
	if stop > extent {
		stop = extent
	}
	return ndarray.Range(start, stop, step), nil
}

// Check verifies the preview selects at least one position in every
// dimension of shape and nothing outside it.
func (pv Preview) Check(shape []int) error {
	if pv == nil {
		return nil
	}
	if err := ndarray.Index(pv).Check(shape); err != nil {
		return fmt.Errorf("preview: %v", err)
	}
	return nil
}

// Whole returns true if the preview selects every position of shape.
func (pv Preview) Whole(shape []int) bool {
	for d, s := range pv {
		if s.Len(shape[d]) != shape[d] {
			return false
		}
	}
	return true
}

// Shape returns the shape of the previewed region.
func (pv Preview) Shape(shape []int) []int {
	if pv == nil {
		return append([]int(nil), shape...)
	}
	return ndarray.Index(pv).Shape(shape)
}

// Global maps an index into the previewed region onto the full array.
func (pv Preview) Global(idx ndarray.Index, shape []int) ndarray.Index {
	if pv == nil {
		return idx
	}
	local := pv.Shape(shape)
	out := make(ndarray.Index, len(idx))
	for d, s := range idx {
		p := pv[d].Resolve(shape[d])
		if s.IsAll() {
			out[d] = p
			continue
		}
		if s.Scalar {
			out[d] = ndarray.At(p.Start + s.Start*p.Step)
			continue
		}
		r := s.Resolve(local[d])
		last := p.Start + r.Last(local[d])*p.Step
		out[d] = ndarray.Range(p.Start+r.Start*p.Step, last+1, r.Step*p.Step)
	}
	return out
}

// Local maps an index into the full array back onto the previewed region.
// It fails if the index selects a position the preview leaves out.
func (pv Preview) Local(idx ndarray.Index, shape []int) (ndarray.Index, error) {
	if pv == nil {
		return idx, nil
	}
	local := pv.Shape(shape)
	out := make(ndarray.Index, len(idx))
	for d, s := range idx {
		p := pv[d].Resolve(shape[d])
		r := s.Resolve(shape[d])
		first, last := r.Start, r.Last(shape[d])
		stepped := r.Len(shape[d]) > 1
		if first < p.Start || (first-p.Start)%p.Step != 0 || (stepped && r.Step%p.Step != 0) {
			return nil, fmt.Errorf("index %s leaves preview %s in dim %d", idx, ndarray.Index(pv), d)
		}
		i, j := (first-p.Start)/p.Step, (last-p.Start)/p.Step
		if j >= local[d] {
			return nil, fmt.Errorf("index %s leaves preview %s in dim %d", idx, ndarray.Index(pv), d)
		}
		switch {
		case s.Scalar:
			out[d] = ndarray.At(i)
		case i == 0 && j == local[d]-1 && (!stepped || r.Step == p.Step):
			out[d] = ndarray.All()
		case !stepped:
			out[d] = ndarray.Range(i, i+1, 1)
		default:
			out[d] = ndarray.Range(i, j+1, r.Step/p.Step)
		}
	}
	return out, nil
}

// Entries returns the preview in the form read by ParsePreview.
func (pv Preview) Entries(shape []int) []string {
	if pv == nil {
		return nil
	}
	entries := make([]string, len(pv))
	for d, s := range pv {
		if s.IsAll() {
			entries[d] = ":"
			continue
		}
		r := s.Resolve(shape[d])
		entries[d] = fmt.Sprintf("%d:%d:%d", r.Start, r.Stop, r.Step)
	}
	return entries
}

func (pv Preview) String() string {
	if pv == nil {
		return "(whole)"
	}
	return ndarray.Index(pv).String()
}

// ForPreview returns the grouped slice list of a pattern over the previewed
// region of a dataset with the given shape.  The frame-groups are those of
// the previewed shape, addressed in full-array coordinates.
func ForPreview(p pattern.Pattern, shape []int, pv Preview, maxFrames int) (List, error) {
	if pv == nil {
		return ForPattern(p, shape, maxFrames)
	}
	if len(pv) != len(shape) {
		return nil, fmt.Errorf("preview %s does not match shape %v", pv, shape)
	}
	if err := pv.Check(shape); err != nil {
		return nil, err
	}
	list, err := ForPattern(p, pv.Shape(shape), maxFrames)
	if err != nil {
		return nil, err
	}
	out := make(List, len(list))
	for i, idx := range list {
		out[i] = pv.Global(idx, shape)
	}
	return out, nil
}

// CheckPreviewCoverage is CheckCoverage for a list built by ForPreview: every
// previewed slice position must be selected exactly once and nothing outside
// the preview may be touched.
func CheckPreviewCoverage(list List, p pattern.Pattern, shape []int, pv Preview) error {
	if pv == nil {
		return CheckCoverage(list, p, shape)
	}
	local := make(List, len(list))
	for i, idx := range list {
		l, err := pv.Local(idx, shape)
		if err != nil {
			return err
		}
		local[i] = l
	}
	return CheckCoverage(local, p, pv.Shape(shape))
}
