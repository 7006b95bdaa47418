package pattern

import (
	"fmt"
	"sort"
)

// Standard pattern names used by loaders and plugins.
const (
	Projection      = "PROJECTION"
	Sinogram        = "SINOGRAM"
	VolumeXY        = "VOLUME_XY"
	VolumeXZ        = "VOLUME_XZ"
	VolumeYZ        = "VOLUME_YZ"
	Volume3D        = "VOLUME_3D"
	Spectrum        = "SPECTRUM"
	Diffraction     = "DIFFRACTION"
	Channel         = "CHANNEL"
	SpectrumStack   = "SPECTRUM_STACK"
	ProjectionStack = "PROJECTION_STACK"
	Metadata        = "METADATA"
)

// Pattern names an access pattern: the core dimensions form one frame and the
// slice dimensions are iterated over.
type Pattern struct {
	Name      string
	CoreDims  []int
	SliceDims []int
}

// MainDim returns the first slice dimension or -1 if the pattern has none.
func (p Pattern) MainDim() int {
	if len(p.SliceDims) == 0 {
		return -1
	}
	return p.SliceDims[0]
}

// IsCore returns true if dim is a core dimension.
func (p Pattern) IsCore(dim int) bool {
	return contains(p.CoreDims, dim)
}

// IsSlice returns true if dim is a slice dimension.
func (p Pattern) IsSlice(dim int) bool {
	return contains(p.SliceDims, dim)
}

func (p Pattern) String() string {
	return fmt.Sprintf("%s{core %v, slice %v}", p.Name, p.CoreDims, p.SliceDims)
}

func (p Pattern) duplicate() Pattern {
	return Pattern{
		Name:      p.Name,
		CoreDims:  append([]int(nil), p.CoreDims...),
		SliceDims: append([]int(nil), p.SliceDims...),
	}
}

func contains(dims []int, dim int) bool {
	for _, d := range dims {
		if d == dim {
			return true
		}
	}
	return false
}

// Registry holds the patterns registered for a dataset of a fixed rank.
// It is not safe for concurrent mutation; it is populated during setup and
// read by workers afterwards.
type Registry struct {
	rank     int
	patterns map[string]Pattern
}

// NewRegistry returns an empty registry for datasets of the given rank.
func NewRegistry(rank int) *Registry {
	return &Registry{rank: rank, patterns: make(map[string]Pattern)}
}

// Rank returns the dataset rank the registry validates against.
func (r *Registry) Rank() int {
	return r.rank
}

func (r *Registry) normalize(dims []int) []int {
	out := make([]int, len(dims))
	for i, d := range dims {
		if d < 0 {
			d += r.rank
		}
		out[i] = d
	}
	return out
}

// Add registers a pattern.  Negative dimensions count from the end.  The core and
// slice dimensions must be disjoint and together cover every dimension exactly
// once.  Adding a name that already exists replaces it.
func (r *Registry) Add(name string, coreDims, sliceDims []int) error {
	core := r.normalize(coreDims)
	slice := r.normalize(sliceDims)
	invalid := func(reason string) error {
		return &InvalidPatternError{Name: name, Rank: r.rank, CoreDims: coreDims, SliceDims: sliceDims, Reason: reason}
	}
	if name == "" {
		return invalid("pattern name is empty")
	}
	if len(core)+len(slice) != r.rank {
		return invalid(fmt.Sprintf("%d dims given", len(core)+len(slice)))
	}
	seen := make([]bool, r.rank)
	for _, dims := range [][]int{core, slice} {
		for _, d := range dims {
			if d < 0 || d >= r.rank {
				return invalid(fmt.Sprintf("dim %d out of range", d))
			}
			if seen[d] {
				return invalid(fmt.Sprintf("dim %d used more than once", d))
			}
			seen[d] = true
		}
	}
	r.patterns[name] = Pattern{Name: name, CoreDims: core, SliceDims: slice}
	return nil
}

// Get returns the named pattern.
func (r *Registry) Get(name string) (Pattern, error) {
	p, found := r.patterns[name]
	if !found {
		return Pattern{}, &UnknownPatternError{Name: name, Known: r.Names()}
	}
	return p.duplicate(), nil
}

// Has returns true if the name is registered.
func (r *Registry) Has(name string) bool {
	_, found := r.patterns[name]
	return found
}

// Remove unregisters a pattern.
func (r *Registry) Remove(name string) error {
	if !r.Has(name) {
		return &UnknownPatternError{Name: name, Known: r.Names()}
	}
	delete(r.patterns, name)
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.patterns))
	for name := range r.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	return len(r.patterns)
}

// Patterns returns every registered pattern sorted by name.
func (r *Registry) Patterns() []Pattern {
	out := make([]Pattern, 0, len(r.patterns))
	for _, name := range r.Names() {
		out = append(out, r.patterns[name].duplicate())
	}
	return out
}

// Copy returns an independent registry with the same patterns.
func (r *Registry) Copy() *Registry {
	c := NewRegistry(r.rank)
	for name, p := range r.patterns {
		c.patterns[name] = p.duplicate()
	}
	return c
}

// CopyNames returns a registry holding only the named patterns.
func (r *Registry) CopyNames(names ...string) (*Registry, error) {
	c := NewRegistry(r.rank)
	for _, name := range names {
		p, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		c.patterns[name] = p
	}
	return c, nil
}

// RemoveAxis returns a registry for a dataset with dimension dim removed.
// Dimensions above dim are renumbered.  A pattern left with no core
// dimensions no longer describes a frame and is dropped.
func (r *Registry) RemoveAxis(dim int) (*Registry, error) {
	if dim < 0 {
		dim += r.rank
	}
	if dim < 0 || dim >= r.rank {
		return nil, fmt.Errorf("cannot remove axis %d from rank %d patterns", dim, r.rank)
	}
	remap := func(dims []int) []int {
		out := make([]int, 0, len(dims))
		for _, d := range dims {
			switch {
			case d == dim:
			case d > dim:
				out = append(out, d-1)
			default:
				out = append(out, d)
			}
		}
		return out
	}
	c := NewRegistry(r.rank - 1)
	for name, p := range r.patterns {
		core := remap(p.CoreDims)
		if len(core) == 0 {
			continue
		}
		c.patterns[name] = Pattern{Name: name, CoreDims: core, SliceDims: remap(p.SliceDims)}
	}
	return c, nil
}

// AddTomoPatterns registers PROJECTION and SINOGRAM for raw tomography data
// given the rotation, detector y and detector x dimensions.  Any further
// dimensions become extra slice dimensions.
func (r *Registry) AddTomoPatterns(rot, y, x int) error {
	extra := r.others(rot, y, x)
	if err := r.Add(Projection, []int{y, x}, append([]int{rot}, extra...)); err != nil {
		return err
	}
	return r.Add(Sinogram, []int{rot, x}, append([]int{y}, extra...))
}

// AddVolumePatterns registers the VOLUME_* patterns for reconstructed data.
func (r *Registry) AddVolumePatterns(x, y, z int) error {
	extra := r.others(x, y, z)
	add := []struct {
		name        string
		core, slice []int
	}{
		{VolumeXZ, []int{x, z}, []int{y}},
		{VolumeXY, []int{x, y}, []int{z}},
		{VolumeYZ, []int{y, z}, []int{x}},
	}
	for _, a := range add {
		if err := r.Add(a.name, a.core, append(a.slice, extra...)); err != nil {
			return err
		}
	}
	return r.Add(Volume3D, []int{x, y, z}, extra)
}

func (r *Registry) others(dims ...int) []int {
	used := r.normalize(dims)
	var extra []int
	for d := 0; d < r.rank; d++ {
		if !contains(used, d) {
			extra = append(extra, d)
		}
	}
	return extra
}
