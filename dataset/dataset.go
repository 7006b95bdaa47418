/*
	Package dataset holds pipeline datasets, the per-plugin view of a dataset
	(pattern, frames per group and padding) and the manager that moves datasets
	between plugins.

	A dataset moves through the states Unallocated, Populated, InUse and
	Finalized.  Its backing array is released exactly once, when the dataset is
	completed.
*/
package dataset

import (
	"fmt"
	"sort"
	"sync"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/slicing"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// State is the lifecycle state of a dataset.
type State uint8

const (
	Unallocated State = iota
	Populated
	InUse
	Finalized
)

func (s State) String() string {
	switch s {
	case Unallocated:
		return "unallocated"
	case Populated:
		return "populated"
	case InUse:
		return "in use"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown state %d", uint8(s))
	}
}

// DatasetShapeError is returned when a shape disagrees with the axis labels or
// patterns a dataset would carry.
type DatasetShapeError struct {
	Name   string
	Shape  []int
	Reason string
}

func (e *DatasetShapeError) Error() string {
	return fmt.Sprintf("dataset %q with shape %v: %s", e.Name, e.Shape, e.Reason)
}

// Dataset is a named N-dimensional array with its patterns and backing storage.
type Dataset struct {
	name     string
	shape    []int
	axes     tomo.AxisLabels
	patterns *pattern.Registry
	dtype    tomo.DataType

	// Meta holds free-form settings carried from dataset to derived dataset.
	Meta tomo.Config

	mu     sync.Mutex
	state  State
	users  int
	chunks  []int
	preview slicing.Preview
	array   storage.Array
	shared  bool
	remove  bool
}

// New returns an unallocated dataset.  Empty axes get "dimN" labels.
func New(name string, shape []int, axes tomo.AxisLabels, patterns *pattern.Registry, dtype tomo.DataType) (*Dataset, error) {
	shape = append([]int(nil), shape...)
	if name == "" {
		return nil, fmt.Errorf("dataset name cannot be empty")
	}
	if len(shape) == 0 {
		return nil, &DatasetShapeError{Name: name, Shape: shape, Reason: "no dimensions"}
	}
	for d, n := range shape {
		if n < 1 {
			return nil, &DatasetShapeError{Name: name, Shape: shape, Reason: fmt.Sprintf("non-positive extent in dim %d", d)}
		}
	}
	if len(axes) == 0 {
		axes = make(tomo.AxisLabels, len(shape))
		for d := range axes {
			axes[d] = tomo.AxisLabel{Name: fmt.Sprintf("dim%d", d)}
		}
	}
	if len(axes) != len(shape) {
		return nil, &DatasetShapeError{Name: name, Shape: shape, Reason: fmt.Sprintf("%d axis labels", len(axes))}
	}
	if patterns == nil {
		patterns = pattern.NewRegistry(len(shape))
	}
	if patterns.Rank() != len(shape) {
		return nil, &DatasetShapeError{Name: name, Shape: shape, Reason: fmt.Sprintf("patterns are for rank %d", patterns.Rank())}
	}
	return &Dataset{
		name:     name,
		shape:    shape,
		axes:     axes.Duplicate(),
		patterns: patterns,
		dtype:    dtype,
		Meta:     tomo.NewConfig(),
	}, nil
}

// FromArray returns a populated dataset for an existing array.
func FromArray(array storage.Array) (*Dataset, error) {
	meta := array.Metadata()
	reg, err := meta.Registry()
	if err != nil {
		return nil, err
	}
	ds, err := New(meta.Name, meta.Shape, meta.Axes, reg, meta.DType)
	if err != nil {
		return nil, err
	}
	ds.chunks = meta.ChunkShape()
	ds.array = array
	ds.state = Populated
	return ds, nil
}

// Open returns a populated dataset called name for the array stored under
// key, for example one written by an earlier run.
func Open(s storage.Store, name, key string) (*Dataset, error) {
	array, err := s.OpenArray(key)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %q: %v", name, err)
	}
	ds, err := FromArray(array)
	if err != nil {
		array.Close()
		return nil, err
	}
	ds.name = name
	return ds, nil
}

func (ds *Dataset) Name() string { return ds.name }
func (ds *Dataset) Shape() []int { return append([]int(nil), ds.shape...) }
func (ds *Dataset) Rank() int { return len(ds.shape) }
func (ds *Dataset) Axes() tomo.AxisLabels { return ds.axes.Duplicate() }
func (ds *Dataset) Patterns() *pattern.Registry { return ds.patterns }
func (ds *Dataset) DType() tomo.DataType { return ds.dtype }

func (ds *Dataset) String() string {
	return fmt.Sprintf("dataset %q %v (%s)", ds.name, ds.shape, ds.State())
}

// Chunks returns the chunk shape assigned to the dataset, if any.
func (ds *Dataset) Chunks() []int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return append([]int(nil), ds.chunks...)
}

// SetChunks assigns the on-disk chunk shape used when the array is allocated.
func (ds *Dataset) SetChunks(chunks []int) error {
	if len(chunks) != len(ds.shape) {
		return &DatasetShapeError{Name: ds.name, Shape: ds.shape, Reason: fmt.Sprintf("chunk shape %v", chunks)}
	}
	for d, c := range chunks {
		if c < 1 || c > ds.shape[d] {
			return &DatasetShapeError{Name: ds.name, Shape: ds.shape, Reason: fmt.Sprintf("chunk shape %v", chunks)}
		}
	}
	ds.mu.Lock()
	ds.chunks = append([]int(nil), chunks...)
	ds.mu.Unlock()
	return nil
}

// SetPreview restricts the frames plugins see to a sub-region of the dataset.
// A nil preview restores the whole dataset.  Datasets derived with CreateLike
// take the previewed shape.
func (ds *Dataset) SetPreview(pv slicing.Preview) error {
	if pv != nil {
		if len(pv) != len(ds.shape) {
			return &DatasetShapeError{Name: ds.name, Shape: ds.shape, Reason: fmt.Sprintf("preview %s", pv)}
		}
		if err := pv.Check(ds.shape); err != nil {
			return &DatasetShapeError{Name: ds.name, Shape: ds.shape, Reason: err.Error()}
		}
		if pv.Whole(ds.shape) {
			pv = nil
		}
	}
	if pv != nil {
		pv = append(slicing.Preview(nil), pv...)
	}
	ds.mu.Lock()
	ds.preview = pv
	ds.mu.Unlock()
	return nil
}

// Preview returns the preview set on the dataset, nil if there is none.
func (ds *Dataset) Preview() slicing.Preview {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.preview == nil {
		return nil
	}
	return append(slicing.Preview(nil), ds.preview...)
}

// PreviewShape returns the shape plugins see through the preview.
func (ds *Dataset) PreviewShape() []int {
	return ds.Preview().Shape(ds.shape)
}

// State returns the lifecycle state.
func (ds *Dataset) State() State {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.state
}

// SetRemove marks the dataset for deletion after the current plugin.
func (ds *Dataset) SetRemove(remove bool) {
	ds.mu.Lock()
	ds.remove = remove
	ds.mu.Unlock()
}

// Removed returns true if the dataset is marked for deletion.
func (ds *Dataset) Removed() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.remove
}

// Metadata describes the dataset for storage.
func (ds *Dataset) Metadata() storage.Metadata {
	ds.mu.Lock()
	chunks := append([]int(nil), ds.chunks...)
	ds.mu.Unlock()
	return storage.Metadata{
		Name:     ds.name,
		Shape:    ds.Shape(),
		Chunks:   chunks,
		DType:    ds.dtype,
		Axes:     ds.Axes(),
		Patterns: ds.patterns.Patterns(),
	}
}

// Allocate creates the backing array in the store.
func (ds *Dataset) Allocate(s storage.Store) error {
	return ds.AllocateAs(s, ds.name)
}

// AllocateAs creates the backing array in the store under key, which lets
// several datasets of the same name coexist in one store.
func (ds *Dataset) AllocateAs(s storage.Store, key string) error {
	meta := ds.Metadata()
	meta.Name = key
	array, err := s.CreateArray(meta)
	if err != nil {
		return fmt.Errorf("allocating %s: %v", ds, err)
	}
	if err := ds.Populate(array); err != nil {
		array.Close()
		return err
	}
	return nil
}

// Populate attaches a backing array to an unallocated dataset.
func (ds *Dataset) Populate(array storage.Array) error {
	meta := array.Metadata()
	if !tomo.IntsEqual(meta.Shape, ds.shape) {
		return &DatasetShapeError{Name: ds.name, Shape: ds.shape, Reason: fmt.Sprintf("array has shape %v", meta.Shape)}
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state != Unallocated {
		return fmt.Errorf("cannot populate dataset %q in state %s", ds.name, ds.state)
	}
	ds.array = array
	ds.chunks = meta.ChunkShape()
	ds.state = Populated
	return nil
}

// Share populates ds with the backing array of src without copying.  The
// array stays owned by src until ownership is handed over by the manager.
func (ds *Dataset) Share(src *Dataset) error {
	if !tomo.IntsEqual(src.shape, ds.shape) {
		return &DatasetShapeError{Name: ds.name, Shape: ds.shape, Reason: fmt.Sprintf("cannot share array of shape %v", src.shape)}
	}
	src.mu.Lock()
	array, chunks, state := src.array, src.chunks, src.state
	src.mu.Unlock()
	if array == nil || state == Finalized {
		return fmt.Errorf("cannot share %s: no live array", src)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state != Unallocated {
		return fmt.Errorf("cannot populate dataset %q in state %s", ds.name, ds.state)
	}
	ds.array = array
	ds.chunks = append([]int(nil), chunks...)
	ds.shared = true
	ds.state = Populated
	return nil
}

// SharesArray returns true if both datasets use the same backing array.
func (ds *Dataset) SharesArray(other *Dataset) bool {
	ds.mu.Lock()
	a := ds.array
	ds.mu.Unlock()
	other.mu.Lock()
	b := other.array
	other.mu.Unlock()
	return a != nil && a == b
}

// takeOwnership moves responsibility for closing the shared array from prev
// to ds.  Nothing changes if prev does not own the array.
func (ds *Dataset) takeOwnership(prev *Dataset) {
	prev.mu.Lock()
	owner := !prev.shared
	prev.shared = true
	prev.mu.Unlock()
	if owner {
		ds.mu.Lock()
		ds.shared = false
		ds.mu.Unlock()
	}
}

// Acquire marks the dataset in use by one more plugin.
func (ds *Dataset) Acquire() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	switch ds.state {
	case Populated, InUse:
		ds.state = InUse
		ds.users++
		return nil
	default:
		return fmt.Errorf("cannot use dataset %q in state %s", ds.name, ds.state)
	}
}

// Release undoes one Acquire.
func (ds *Dataset) Release() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state != InUse {
		return
	}
	if ds.users--; ds.users <= 0 {
		ds.users = 0
		ds.state = Populated
	}
}

// Complete finalizes the dataset, closing its backing array unless it is
// shared.  Completing a finalized dataset does nothing.
func (ds *Dataset) Complete() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state == Finalized {
		return nil
	}
	ds.state = Finalized
	ds.users = 0
	if ds.array == nil || ds.shared {
		return nil
	}
	if err := ds.array.Close(); err != nil {
		return fmt.Errorf("closing dataset %q: %v", ds.name, err)
	}
	tomo.Debugf("completed dataset %q\n", ds.name)
	return nil
}

func (ds *Dataset) live() (storage.Array, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state != Populated && ds.state != InUse {
		return nil, fmt.Errorf("dataset %q is %s", ds.name, ds.state)
	}
	return ds.array, nil
}

// Flush makes writes to the backing array durable if its store buffers them.
func (ds *Dataset) Flush() error {
	a, err := ds.live()
	if err != nil {
		return err
	}
	if f, ok := a.(storage.Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flushing dataset %q: %v", ds.name, err)
		}
	}
	return nil
}

// Read returns the region selected by idx.
func (ds *Dataset) Read(idx ndarray.Index) (*ndarray.Array, error) {
	a, err := ds.live()
	if err != nil {
		return nil, err
	}
	return a.Read(idx)
}

// Write stores data in the region selected by idx.
func (ds *Dataset) Write(idx ndarray.Index, data *ndarray.Array) error {
	a, err := ds.live()
	if err != nil {
		return err
	}
	return a.Write(idx, data)
}

// Options override what a derived dataset copies from its predecessor.  Zero
// values mean "same as the predecessor".
type Options struct {
	Shape        []int
	Axes         tomo.AxisLabels
	Patterns     *pattern.Registry
	PatternNames []string
	RemoveAxes   []int
	DType        *tomo.DataType
	Remove       bool
}

// CreateLike returns an unallocated dataset derived from pred.  The derived
// shape starts from the previewed shape of pred; the preview itself is not
// inherited.
func CreateLike(name string, pred *Dataset, opts Options) (*Dataset, error) {
	if pred == nil {
		if opts.Shape == nil {
			return nil, &DatasetShapeError{Name: name, Reason: "no shape and no dataset to copy from"}
		}
		dtype := tomo.Float32
		if opts.DType != nil {
			dtype = *opts.DType
		}
		ds, err := New(name, opts.Shape, opts.Axes, opts.Patterns, dtype)
		if err != nil {
			return nil, err
		}
		ds.SetRemove(opts.Remove)
		return ds, nil
	}

	shape := pred.PreviewShape()
	axes := pred.Axes()
	var reg *pattern.Registry
	var err error
	if len(opts.PatternNames) > 0 {
		if reg, err = pred.patterns.CopyNames(opts.PatternNames...); err != nil {
			return nil, err
		}
	} else {
		reg = pred.patterns.Copy()
	}

	remove := append([]int(nil), opts.RemoveAxes...)
	for i, d := range remove {
		if d < 0 {
			remove[i] = d + len(shape)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(remove)))
	for i, d := range remove {
		if d < 0 || d >= len(shape) || (i > 0 && d == remove[i-1]) {
			return nil, &DatasetShapeError{Name: name, Shape: shape, Reason: fmt.Sprintf("cannot remove axis %v", opts.RemoveAxes)}
		}
		shape = append(shape[:d], shape[d+1:]...)
		if axes, err = axes.Remove(d); err != nil {
			return nil, err
		}
		if reg, err = reg.RemoveAxis(d); err != nil {
			return nil, err
		}
	}

	if opts.Shape != nil {
		shape = append([]int(nil), opts.Shape...)
	}
	if opts.Axes != nil {
		axes = opts.Axes
	}
	if opts.Patterns != nil {
		reg = opts.Patterns
	}
	if len(axes) != len(shape) {
		return nil, &DatasetShapeError{Name: name, Shape: shape, Reason: fmt.Sprintf("%d axis labels copied from %q", len(axes), pred.name)}
	}
	if reg.Rank() != len(shape) {
		return nil, &DatasetShapeError{Name: name, Shape: shape, Reason: fmt.Sprintf("patterns of rank %d copied from %q", reg.Rank(), pred.name)}
	}
	dtype := pred.dtype
	if opts.DType != nil {
		dtype = *opts.DType
	}
	ds, err := New(name, shape, axes, reg, dtype)
	if err != nil {
		return nil, err
	}
	ds.Meta = pred.Meta.Duplicate()
	ds.SetRemove(opts.Remove)
	return ds, nil
}
