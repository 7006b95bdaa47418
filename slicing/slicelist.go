package slicing

import (
	"errors"
	"fmt"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
)

// List is an ordered list of frame-group indices.  Every index has one slice
// per dataset dimension: core dimensions are complete and slice dimensions
// select one position or a stepped range.
type List []ndarray.Index

// Generate returns the grouped slice list for the named pattern of a dataset
// with the given shape.  At most maxFrames frames are grouped per entry.
func Generate(reg *pattern.Registry, shape []int, name string, maxFrames int) (List, error) {
	p, err := reg.Get(name)
	if err != nil {
		var unknown *pattern.UnknownPatternError
		if errors.As(err, &unknown) {
			return nil, &pattern.UnsupportedPatternError{Name: name}
		}
		return nil, err
	}
	return ForPattern(p, shape, maxFrames)
}

// ForPattern is Generate for an already resolved pattern.
func ForPattern(p pattern.Pattern, shape []int, maxFrames int) (List, error) {
	if len(p.CoreDims)+len(p.SliceDims) != len(shape) {
		return nil, fmt.Errorf("pattern %s does not match shape %v", p, shape)
	}
	if maxFrames < 1 {
		return nil, fmt.Errorf("max frames must be positive, got %d", maxFrames)
	}
	for d, extent := range shape {
		if extent < 1 {
			return nil, fmt.Errorf("shape %v has empty dim %d", shape, d)
		}
	}
	return group(singles(p, shape), maxFrames), nil
}

// singles enumerates one index per frame.  The first slice dimension varies
// fastest.
func singles(p pattern.Pattern, shape []int) List {
	base := make(ndarray.Index, len(shape))
	for d := range base {
		base[d] = ndarray.All()
	}
	if len(p.SliceDims) == 0 {
		return List{base}
	}
	total := 1
	for _, d := range p.SliceDims {
		total *= shape[d]
	}
	list := make(List, 0, total)
	counter := make([]int, len(p.SliceDims))
	for n := 0; n < total; n++ {
		idx := base.Duplicate()
		for i, d := range p.SliceDims {
			idx[d] = ndarray.At(counter[i])
		}
		list = append(list, idx)
		for i, d := range p.SliceDims {
			counter[i]++
			if counter[i] < shape[d] {
				break
			}
			counter[i] = 0
		}
	}
	return list
}

// stepBetween returns the single dimension in which two scalar indices differ
// and the difference, or -1 if they differ in no dimension or in several.
func stepBetween(a, b ndarray.Index) (dim, step int) {
	dim = -1
	for d := range a {
		if a[d].IsAll() {
			continue
		}
		if diff := b[d].Start - a[d].Start; diff != 0 {
			if dim >= 0 {
				return -1, 0
			}
			dim, step = d, diff
		}
	}
	if step <= 0 {
		return -1, 0
	}
	return dim, step
}

// group batches consecutive scalar indices that advance by a constant step in
// exactly one dimension.  A batch of one keeps its scalar index.
func group(list List, maxFrames int) List {
	if len(list) == 0 {
		return list
	}
	var out List
	batch := List{list[0]}
	dim, step := -1, 0
	flush := func() {
		first := batch[0]
		if len(batch) == 1 {
			out = append(out, first)
			return
		}
		last := batch[len(batch)-1]
		idx := first.Duplicate()
		idx[dim] = ndarray.Range(first[dim].Start, last[dim].Start+1, step)
		out = append(out, idx)
	}
	for _, idx := range list[1:] {
		prev := batch[len(batch)-1]
		d, s := stepBetween(prev, idx)
		extend := len(batch) < maxFrames && d >= 0 &&
			(len(batch) == 1 || (d == dim && s == step))
		if extend {
			if len(batch) == 1 {
				dim, step = d, s
			}
			batch = append(batch, idx)
			continue
		}
		flush()
		batch = List{idx}
		dim, step = -1, 0
	}
	flush()
	return out
}

// NumFrames returns the number of frames selected by a frame-group index.
func NumFrames(idx ndarray.Index, p pattern.Pattern, shape []int) int {
	n := 1
	for _, d := range p.SliceDims {
		n *= idx[d].Len(shape[d])
	}
	return n
}

// TotalFrames returns the number of frames in a list.
func TotalFrames(list List, p pattern.Pattern, shape []int) int {
	n := 0
	for _, idx := range list {
		n += NumFrames(idx, p, shape)
	}
	return n
}

// CheckCoverage verifies that the list selects every slice-dimension position
// exactly once and every core dimension completely.
func CheckCoverage(list List, p pattern.Pattern, shape []int) error {
	sliceShape := make([]int, len(p.SliceDims))
	for i, d := range p.SliceDims {
		sliceShape[i] = shape[d]
	}
	counts := make([]int, 1)
	if len(sliceShape) > 0 {
		n := 1
		for _, e := range sliceShape {
			n *= e
		}
		counts = make([]int, n)
	}
	for _, idx := range list {
		if err := idx.Check(shape); err != nil {
			return err
		}
		for _, d := range p.CoreDims {
			if idx[d].Len(shape[d]) != shape[d] {
				return fmt.Errorf("entry %s does not cover core dim %d", idx, d)
			}
		}
		positions := make([][]int, len(p.SliceDims))
		for i, d := range p.SliceDims {
			positions[i] = idx[d].Positions(shape[d])
		}
		lens := make([]int, len(positions))
		for i := range positions {
			lens[i] = len(positions[i])
		}
		ndarray.ForEach(lens, func(pos []int) {
			flat := 0
			for i := range pos {
				flat = flat*sliceShape[i] + positions[i][pos[i]]
			}
			counts[flat]++
		})
	}
	for flat, n := range counts {
		if n != 1 {
			return fmt.Errorf("slice position %d covered %d times", flat, n)
		}
	}
	return nil
}
