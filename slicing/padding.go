package slicing

import (
	"fmt"
	"sort"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
)

// Padding maps a dimension to the number of extra neighbor positions wanted on
// each side of a frame-group.  Widths are in units of the slice step.
type Padding map[int]int

// PadDims adds widths to the given dimensions.  Repeated requests accumulate.
func (p Padding) PadDims(widths map[int]int) {
	for d, w := range widths {
		p[d] += w
	}
}

// PadFrameEdges pads every core dimension of the pattern by n.
func (p Padding) PadFrameEdges(pat pattern.Pattern, n int) {
	for _, d := range pat.CoreDims {
		p[d] += n
	}
}

// PadMultiFrames pads the main slice dimension of the pattern by n, giving each
// frame-group n neighbor frames on either side.
func (p Padding) PadMultiFrames(pat pattern.Pattern, n int) {
	if d := pat.MainDim(); d >= 0 {
		p[d] += n
	}
}

// Widths returns the padding for each of rank dimensions.
func (p Padding) Widths(rank int) []int {
	w := make([]int, rank)
	for d, n := range p {
		if d >= 0 && d < rank {
			w[d] = n
		}
	}
	return w
}

// Dims returns the padded dimensions in increasing order.
func (p Padding) Dims() []int {
	var dims []int
	for d, n := range p {
		if n > 0 {
			dims = append(dims, d)
		}
	}
	sort.Ints(dims)
	return dims
}

// Empty returns true if no dimension is padded.
func (p Padding) Empty() bool {
	return len(p.Dims()) == 0
}

// CalculateSlicePadding widens sl by pad steps on each side within a dimension of
// the given extent.  It returns the part of the widened slice that lies inside
// [0, extent) together with the number of positions on the left and right that
// fall outside and must be synthesized.
func CalculateSlicePadding(sl ndarray.Slice, pad, extent int) (ndarray.Slice, [2]int) {
	r := sl.Resolve(extent)
	step := r.Step
	first := r.Start - pad*step
	last := r.Last(extent) + pad*step

	var counts [2]int
	if first < 0 {
		counts[0] = (-first + step - 1) / step
		first += counts[0] * step
	}
	if last >= extent {
		counts[1] = (last - extent + step) / step
		last -= counts[1] * step
	}
	return ndarray.Range(first, last+1, step), counts
}

// Reader reads a region of a dataset.
type Reader interface {
	Read(idx ndarray.Index) (*ndarray.Array, error)
}

// GetPaddedSliceData reads the frame-group idx widened by pads[d] on each side
// of every dimension d.  Positions outside the dataset are filled by
// replicating the nearest edge value, so the result always has the full
// padded shape.
func GetPaddedSliceData(r Reader, idx ndarray.Index, pads []int, shape []int) (*ndarray.Array, error) {
	if len(idx) != len(shape) || len(pads) != len(shape) {
		return nil, fmt.Errorf("index %s, pads %v and shape %v disagree in rank", idx, pads, shape)
	}
	read := make(ndarray.Index, len(idx))
	edges := make([][2]int, len(idx))
	padded := false
	for d, sl := range idx {
		if pads[d] == 0 {
			read[d] = sl
			continue
		}
		padded = true
		read[d], edges[d] = CalculateSlicePadding(sl, pads[d], shape[d])
	}
	data, err := r.Read(read)
	if err != nil {
		return nil, err
	}
	if !padded {
		return data, nil
	}
	return data.EdgePad(edges)
}

// GetUnpaddedSliceData strips the halo added by GetPaddedSliceData and returns
// exactly the elements of frame-group idx.
func GetUnpaddedSliceData(data *ndarray.Array, idx ndarray.Index, pads []int, shape []int) (*ndarray.Array, error) {
	if len(idx) != len(shape) || len(pads) != len(shape) {
		return nil, fmt.Errorf("index %s, pads %v and shape %v disagree in rank", idx, pads, shape)
	}
	inner := make(ndarray.Index, len(idx))
	trim := false
	for d, sl := range idx {
		n := sl.Len(shape[d])
		inner[d] = ndarray.Range(pads[d], pads[d]+n, 1)
		if pads[d] > 0 {
			trim = true
		}
	}
	if !trim {
		return data, nil
	}
	return data.Region(inner)
}

// PaddedShape returns the shape of GetPaddedSliceData's result.
func PaddedShape(idx ndarray.Index, pads []int, shape []int) []int {
	out := idx.Shape(shape)
	for d := range out {
		out[d] += 2 * pads[d]
	}
	return out
}
