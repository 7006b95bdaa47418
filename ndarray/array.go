package ndarray

import (
	"fmt"
	"math"
)

// Array is a dense, row-major N-dimensional float32 array.
type Array struct {
	shape   []int
	strides []int
	data    []float32
}

func stridesFor(shape []int) []int {
	strides := make([]int, len(shape))
	n := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = n
		n *= shape[d]
	}
	return strides
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// New returns a zeroed array.
func New(shape ...int) *Array {
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("negative extent in shape %v", shape))
		}
	}
	return &Array{
		shape:   append([]int(nil), shape...),
		strides: stridesFor(shape),
		data:    make([]float32, numElements(shape)),
	}
}

// FromData wraps data without copying.
func FromData(data []float32, shape ...int) (*Array, error) {
	if n := numElements(shape); n != len(data) {
		return nil, fmt.Errorf("data of length %d does not fit shape %v (%d elements)", len(data), shape, n)
	}
	return &Array{
		shape:   append([]int(nil), shape...),
		strides: stridesFor(shape),
		data:    data,
	}, nil
}

// Ramp returns an array whose elements are their own flat index, useful for tests
// and synthetic inputs.
func Ramp(shape ...int) *Array {
	a := New(shape...)
	for i := range a.data {
		a.data[i] = float32(i)
	}
	return a
}

func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }
func (a *Array) Rank() int { return len(a.shape) }
func (a *Array) Size() int { return len(a.data) }
func (a *Array) Data() []float32 { return a.data }

func (a *Array) offset(pos []int) int {
	off := 0
	for d, p := range pos {
		off += p * a.strides[d]
	}
	return off
}

// At returns the element at pos.
func (a *Array) At(pos ...int) float32 {
	return a.data[a.offset(pos)]
}

// Set stores v at pos.
func (a *Array) Set(v float32, pos ...int) {
	a.data[a.offset(pos)] = v
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	b := New(a.shape...)
	copy(b.data, a.data)
	return b
}

// Fill sets every element to v.
func (a *Array) Fill(v float32) {
	for i := range a.data {
		a.data[i] = v
	}
}

// Equal returns true for identical shapes and elements.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.shape) != len(b.shape) {
		return false
	}
	for d := range a.shape {
		if a.shape[d] != b.shape[d] {
			return false
		}
	}
	for i := range a.data {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}

// AllClose compares elements within an absolute tolerance.
func (a *Array) AllClose(b *Array, tol float64) bool {
	if len(a.data) != len(b.data) {
		return false
	}
	for i := range a.data {
		if math.Abs(float64(a.data[i]-b.data[i])) > tol {
			return false
		}
	}
	return true
}

// ForEach calls fn with every position of shape in row-major order.  The
// position slice is reused between calls.
func ForEach(shape []int, fn func(pos []int)) {
	if numElements(shape) == 0 {
		return
	}
	pos := make([]int, len(shape))
	for {
		fn(pos)
		d := len(shape) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < shape[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

// Region copies the elements selected by idx into a new array.
func (a *Array) Region(idx Index) (*Array, error) {
	if err := idx.Check(a.shape); err != nil {
		return nil, err
	}
	r := idx.Resolve(a.shape)
	out := New(idx.Shape(a.shape)...)
	src := make([]int, len(a.shape))
	i := 0
	ForEach(out.shape, func(pos []int) {
		for d, p := range pos {
			src[d] = r[d].Start + p*r[d].Step
		}
		out.data[i] = a.data[a.offset(src)]
		i++
	})
	return out, nil
}

// SetRegion copies src into the elements selected by idx.
func (a *Array) SetRegion(idx Index, src *Array) error {
	if err := idx.Check(a.shape); err != nil {
		return err
	}
	want := idx.Shape(a.shape)
	if len(want) != len(src.shape) {
		return fmt.Errorf("region %s has shape %v, source has shape %v", idx, want, src.shape)
	}
	for d := range want {
		if want[d] != src.shape[d] {
			return fmt.Errorf("region %s has shape %v, source has shape %v", idx, want, src.shape)
		}
	}
	r := idx.Resolve(a.shape)
	dst := make([]int, len(a.shape))
	i := 0
	ForEach(src.shape, func(pos []int) {
		for d, p := range pos {
			dst[d] = r[d].Start + p*r[d].Step
		}
		a.data[a.offset(dst)] = src.data[i]
		i++
	})
	return nil
}

// Read implements the region reader used for padding and storage.
func (a *Array) Read(idx Index) (*Array, error) {
	return a.Region(idx)
}

// EdgePad returns a copy extended by pads[d][0] elements before and pads[d][1]
// after each dimension d, replicating the nearest edge value.
func (a *Array) EdgePad(pads [][2]int) (*Array, error) {
	if len(pads) != len(a.shape) {
		return nil, fmt.Errorf("pad widths for %d dims given for rank %d array", len(pads), len(a.shape))
	}
	shape := make([]int, len(a.shape))
	for d := range shape {
		if pads[d][0] < 0 || pads[d][1] < 0 {
			return nil, fmt.Errorf("negative pad width in dim %d", d)
		}
		if a.shape[d] == 0 && pads[d][0]+pads[d][1] > 0 {
			return nil, fmt.Errorf("cannot edge-pad empty dim %d", d)
		}
		shape[d] = a.shape[d] + pads[d][0] + pads[d][1]
	}
	out := New(shape...)
	src := make([]int, len(shape))
	i := 0
	ForEach(shape, func(pos []int) {
		for d, p := range pos {
			q := p - pads[d][0]
			if q < 0 {
				q = 0
			} else if q >= a.shape[d] {
				q = a.shape[d] - 1
			}
			src[d] = q
		}
		out.data[i] = a.data[a.offset(src)]
		i++
	})
	return out, nil
}

// Frame returns a copy of the n-th sub-array along dim, with that dim removed.
func (a *Array) Frame(dim, n int) (*Array, error) {
	if dim < 0 || dim >= len(a.shape) || n < 0 || n >= a.shape[dim] {
		return nil, fmt.Errorf("frame %d along dim %d out of range for shape %v", n, dim, a.shape)
	}
	idx := make(Index, len(a.shape))
	for d := range idx {
		idx[d] = All()
	}
	idx[dim] = At(n)
	region, err := a.Region(idx)
	if err != nil {
		return nil, err
	}
	shape := append(append([]int(nil), a.shape[:dim]...), a.shape[dim+1:]...)
	return FromData(region.data, shape...)
}

// Reshape returns an array sharing data with a new shape of equal size.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	return FromData(a.data, shape...)
}

func (a *Array) String() string {
	return fmt.Sprintf("Array%v", a.shape)
}
