package ndarray

import (
	"fmt"
	"strings"
)

// Slice selects positions along one dimension.  A scalar slice selects a
// single position but, like a unit range, keeps the dimension.  The zero
// value is not meaningful; use At, Range or All.
type Slice struct {
	Start, Stop, Step int
	Scalar            bool
	all               bool
}

// At returns a scalar slice selecting position i.
func At(i int) Slice {
	return Slice{Start: i, Stop: i + 1, Step: 1, Scalar: true}
}

// Range returns the slice start:stop:step.  A zero step is taken as 1.
func Range(start, stop, step int) Slice {
	if step == 0 {
		step = 1
	}
	return Slice{Start: start, Stop: stop, Step: step}
}

// All selects a complete dimension.
func All() Slice {
	return Slice{Step: 1, all: true}
}

// IsAll returns true if the slice selects the complete dimension regardless of extent.
func (s Slice) IsAll() bool {
	return s.all
}

// Resolve returns an explicit range for a dimension of the given extent.
func (s Slice) Resolve(extent int) Slice {
	if s.all {
		return Slice{Start: 0, Stop: extent, Step: 1}
	}
	if s.Step == 0 {
		s.Step = 1
	}
	return s
}

// Len returns the number of positions selected in a dimension of the given extent.
// Positions outside [0, extent) are counted; callers clamp when needed.
func (s Slice) Len(extent int) int {
	r := s.Resolve(extent)
	if r.Stop <= r.Start {
		return 0
	}
	return (r.Stop - r.Start + r.Step - 1) / r.Step
}

// Last returns the final position selected.
func (s Slice) Last(extent int) int {
	r := s.Resolve(extent)
	return r.Start + (s.Len(extent)-1)*r.Step
}

// Positions enumerates the selected positions.
func (s Slice) Positions(extent int) []int {
	r := s.Resolve(extent)
	n := s.Len(extent)
	pos := make([]int, n)
	for i := range pos {
		pos[i] = r.Start + i*r.Step
	}
	return pos
}

func (s Slice) String() string {
	switch {
	case s.all:
		return ":"
	case s.Scalar:
		return fmt.Sprintf("%d", s.Start)
	default:
		return fmt.Sprintf("%d:%d:%d", s.Start, s.Stop, s.Step)
	}
}

// Index is one slice per dimension.
type Index []Slice

// Duplicate returns a copy of the index.
func (idx Index) Duplicate() Index {
	return append(Index(nil), idx...)
}

// Shape returns the shape of the region selected from an array of the given shape.
func (idx Index) Shape(shape []int) []int {
	out := make([]int, len(idx))
	for d, s := range idx {
		out[d] = s.Len(shape[d])
	}
	return out
}

// Resolve replaces All slices with explicit ranges.
func (idx Index) Resolve(shape []int) Index {
	out := make(Index, len(idx))
	for d, s := range idx {
		out[d] = s.Resolve(shape[d])
	}
	return out
}

// Check verifies the index addresses only positions within shape.
func (idx Index) Check(shape []int) error {
	if len(idx) != len(shape) {
		return fmt.Errorf("index %s has rank %d, array has rank %d", idx, len(idx), len(shape))
	}
	for d, s := range idx {
		r := s.Resolve(shape[d])
		if r.Step < 1 {
			return fmt.Errorf("index %s has non-positive step in dim %d", idx, d)
		}
		if r.Len(shape[d]) == 0 {
			return fmt.Errorf("index %s selects nothing in dim %d", idx, d)
		}
		if r.Start < 0 || r.Last(shape[d]) >= shape[d] {
			return fmt.Errorf("index %s out of bounds in dim %d (extent %d)", idx, d, shape[d])
		}
	}
	return nil
}

func (idx Index) String() string {
	parts := make([]string, len(idx))
	for d, s := range idx {
		parts[d] = s.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
