/*
	Package chunking calculates on-disk chunk shapes for datasets so that both the
	plugin writing a dataset and the plugin reading it next access whole chunks
	where possible.
*/
package chunking

import (
	"fmt"

	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// DefaultCeiling is the default byte budget for a chunk before it is divided
// among processes.
const DefaultCeiling = 1000000

// Requirement is how a plugin accesses a dataset: which dimensions it slices,
// which it reads whole, and how many frames it takes at once.
type Requirement struct {
	MaxFrames int
	SliceDims []int
	CoreDims  []int
}

// FromPattern returns the requirement for a pattern and max frames.
func FromPattern(p pattern.Pattern, maxFrames int) Requirement {
	return Requirement{
		MaxFrames: maxFrames,
		SliceDims: append([]int(nil), p.SliceDims...),
		CoreDims:  append([]int(nil), p.CoreDims...),
	}
}

func (r Requirement) isSlice(d int) bool { return contains(r.SliceDims, d) }
func (r Requirement) isCore(d int) bool { return contains(r.CoreDims, d) }

func contains(dims []int, d int) bool {
	for _, x := range dims {
		if x == d {
			return true
		}
	}
	return false
}

// Calculator computes chunk shapes under a byte ceiling shared by Processes
// concurrent writers.
type Calculator struct {
	Ceiling   uint64
	Processes int

	// Spread divides chunks further when there are fewer chunks than processes.
	Spread bool
}

// NewCalculator returns a calculator with the default ceiling.
func NewCalculator(processes int) Calculator {
	return Calculator{Ceiling: DefaultCeiling, Processes: processes}
}

// Budget returns the per-chunk byte limit.
func (c Calculator) Budget() uint64 {
	procs := c.Processes
	if procs < 1 {
		procs = 1
	}
	ceiling := c.Ceiling
	if ceiling == 0 {
		ceiling = DefaultCeiling
	}
	return ceiling / uint64(procs)
}

// Compute returns the chunk shape for a dataset written with the current
// requirement and read next with the next one.  A nil next means the dataset
// is not read again and the current requirement is used for both.
func (c Calculator) Compute(shape []int, itemSize int, current Requirement, next *Requirement) ([]int, error) {
	if next == nil {
		next = &current
	}
	if itemSize < 1 {
		return nil, fmt.Errorf("item size must be positive, got %d", itemSize)
	}
	for _, r := range []Requirement{current, *next} {
		if len(r.SliceDims)+len(r.CoreDims) != len(shape) {
			return nil, fmt.Errorf("requirement (slice %v, core %v) does not match shape %v", r.SliceDims, r.CoreDims, shape)
		}
		if r.MaxFrames < 1 {
			return nil, fmt.Errorf("max frames must be resolved before chunking, got %d", r.MaxFrames)
		}
	}
	for d, extent := range shape {
		if extent < 1 {
			return nil, fmt.Errorf("shape %v has empty dim %d", shape, d)
		}
	}

	chunks := make([]int, len(shape))
	shared := make([]bool, len(shape))
	for d, extent := range shape {
		switch {
		case current.isSlice(d) && next.isSlice(d):
			mf := current.MaxFrames
			if next.MaxFrames < mf {
				mf = next.MaxFrames
			}
			chunks[d] = clip(mf, extent)
			shared[d] = true
		case current.isCore(d) || next.isCore(d):
			chunks[d] = extent
		default:
			chunks[d] = 1
		}
	}

	c.shrink(chunks, shared, itemSize)
	if c.Spread {
		c.spread(chunks, shape, shared)
	}
	tomo.Debugf("chunks %v for shape %v (budget %s)\n", chunks, shape, tomo.Bytes(c.Budget()))
	return chunks, nil
}

func clip(n, extent int) int {
	if n > extent {
		return extent
	}
	if n < 1 {
		return 1
	}
	return n
}

// largest returns the dim with the biggest chunk extent above 1 among dims
// selected by want, or -1.
func largest(chunks []int, shared []bool, want bool) int {
	best := -1
	for d, n := range chunks {
		if shared[d] != want || n <= 1 {
			continue
		}
		if best < 0 || n > chunks[best] {
			best = d
		}
	}
	return best
}

// shrink halves chunk extents until the chunk fits the budget.  Shared slice
// dimensions are reduced first, core dimensions only once those reach 1.
func (c Calculator) shrink(chunks []int, shared []bool, itemSize int) {
	budget := c.Budget()
	for uint64(tomo.Prod(chunks)*itemSize) > budget {
		d := largest(chunks, shared, true)
		if d < 0 {
			d = largest(chunks, shared, false)
		}
		if d < 0 {
			return
		}
		chunks[d] = (chunks[d] + 1) / 2
	}
}

// NumChunks returns the number of chunks needed to tile shape.
func NumChunks(shape, chunks []int) int {
	n := 1
	for d := range shape {
		n *= (shape[d] + chunks[d] - 1) / chunks[d]
	}
	return n
}

// spread halves chunk extents until every process can own a chunk.
func (c Calculator) spread(chunks, shape []int, shared []bool) {
	for NumChunks(shape, chunks) < c.Processes {
		d := largest(chunks, shared, true)
		if d < 0 {
			d = largest(chunks, shared, false)
		}
		if d < 0 {
			return
		}
		chunks[d] = (chunks[d] + 1) / 2
	}
}
