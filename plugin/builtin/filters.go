package builtin

import (
	"fmt"
	"sort"

	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/plugin"
	"golang.org/x/sync/errgroup"
)

// MedianFilter replaces each element by the median of its neighborhood in the
// core dimensions of the selected pattern.
type MedianFilter struct {
	size    int
	core    []int
	threads int
}

// NewMedianFilter reads the odd "kernel_size" parameter (default 3).
func NewMedianFilter(params plugin.Params) (plugin.Plugin, error) {
	size, err := params.Int("kernel_size", 3)
	if err != nil {
		return nil, err
	}
	if size < 1 || size%2 == 0 {
		return nil, fmt.Errorf("median filter kernel size must be odd and positive, got %d", size)
	}
	return &MedianFilter{size: size, threads: 1}, nil
}

func (m *MedianFilter) Name() string  { return "median_filter" }
func (m *MedianFilter) NInputs() int  { return 1 }
func (m *MedianFilter) NOutputs() int { return 1 }

func (m *MedianFilter) Setup(ctx *plugin.Context) error {
	p, err := setupFilter(ctx, nil)
	if err != nil {
		return err
	}
	r := m.size / 2
	ctx.In[0].PadFrameEdges(r)
	ctx.Out[0].PadFrameEdges(r)
	m.core = append([]int(nil), p.CoreDims...)
	if ctx.Threads > 1 {
		m.threads = ctx.Threads
	}
	return nil
}

// ProcessFrames filters the padded frame-group.  The result keeps the padded
// shape and the halo is trimmed on write.
func (m *MedianFilter) ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error) {
	in := frames[0]
	shape := in.Shape()
	out := ndarray.New(shape...)
	n := out.Size()
	per := (n + m.threads - 1) / m.threads
	var g errgroup.Group
	for lo := 0; lo < n; lo += per {
		hi := min(lo+per, n)
		g.Go(func() error {
			m.filterRange(in, out, shape, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return []*ndarray.Array{out}, nil
}

func (m *MedianFilter) filterRange(in, out *ndarray.Array, shape []int, lo, hi int) {
	r := m.size / 2
	window := make([]int, len(m.core))
	for i := range window {
		window[i] = m.size
	}
	pos := make([]int, len(shape))
	nb := make([]int, len(shape))
	var values []float32
	data := out.Data()
	for i := lo; i < hi; i++ {
		unravel(i, shape, pos)
		values = values[:0]
		ndarray.ForEach(window, func(off []int) {
			copy(nb, pos)
			for k, d := range m.core {
				nb[d] = min(max(pos[d]+off[k]-r, 0), shape[d]-1)
			}
			values = append(values, in.At(nb...))
		})
		sort.Slice(values, func(a, b int) bool { return values[a] < values[b] })
		data[i] = values[len(values)/2]
	}
}

// Downsample averages non-overlapping bins of the core dimensions.  Bins at
// the upper edge may be partial.
type Downsample struct {
	bin  int
	core []int
}

// NewDownsample reads the "bin_size" parameter (default 2).
func NewDownsample(params plugin.Params) (plugin.Plugin, error) {
	bin, err := params.Int("bin_size", 2)
	if err != nil {
		return nil, err
	}
	if bin < 1 {
		return nil, fmt.Errorf("downsample bin size must be positive, got %d", bin)
	}
	return &Downsample{bin: bin}, nil
}

func (ds *Downsample) Name() string  { return "downsample" }
func (ds *Downsample) NInputs() int  { return 1 }
func (ds *Downsample) NOutputs() int { return 1 }

func (ds *Downsample) binned(shape []int, core []int) []int {
	out := append([]int(nil), shape...)
	for _, d := range core {
		out[d] = (shape[d] + ds.bin - 1) / ds.bin
	}
	return out
}

func (ds *Downsample) Setup(ctx *plugin.Context) error {
	p, err := setupFilter(ctx, func(p pattern.Pattern, shape []int) dataset.Options {
		return dataset.Options{Shape: ds.binned(shape, p.CoreDims)}
	})
	if err != nil {
		return err
	}
	ds.core = append([]int(nil), p.CoreDims...)
	return nil
}

func (ds *Downsample) ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error) {
	in := frames[0]
	shape := in.Shape()
	out := ndarray.New(ds.binned(shape, ds.core)...)
	window := make([]int, len(ds.core))
	src := make([]int, len(shape))
	data := out.Data()
	i := 0
	ndarray.ForEach(out.Shape(), func(pos []int) {
		for k, d := range ds.core {
			window[k] = min(ds.bin, shape[d]-pos[d]*ds.bin)
		}
		var sum float64
		var count int
		ndarray.ForEach(window, func(off []int) {
			copy(src, pos)
			for k, d := range ds.core {
				src[d] = pos[d]*ds.bin + off[k]
			}
			sum += float64(in.At(src...))
			count++
		})
		data[i] = float32(sum / float64(count))
		i++
	})
	return []*ndarray.Array{out}, nil
}
