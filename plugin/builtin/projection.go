package builtin

import (
	"fmt"

	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/plugin"
)

// MeanProjection averages its input along one axis, producing a dataset of
// one lower rank.
type MeanProjection struct {
	axis int
}

// NewMeanProjection reads the "axis" parameter (default 0).
func NewMeanProjection(params plugin.Params) (plugin.Plugin, error) {
	axis, err := params.Int("axis", 0)
	if err != nil {
		return nil, err
	}
	return &MeanProjection{axis: axis}, nil
}

func (mp *MeanProjection) Name() string  { return "mean_projection" }
func (mp *MeanProjection) NInputs() int  { return 1 }
func (mp *MeanProjection) NOutputs() int { return 1 }

// Setup reads with a pattern that has the projected axis as one of several
// core dimensions, so the output keeps the same pattern without that axis.
func (mp *MeanProjection) Setup(ctx *plugin.Context) error {
	in := ctx.In[0]
	rank := in.Dataset.Rank()
	if mp.axis < 0 {
		mp.axis += rank
	}
	if mp.axis < 0 || mp.axis >= rank || rank < 2 {
		return fmt.Errorf("mean_projection: cannot project axis %d of dataset %q with rank %d", mp.axis, in.Dataset.Name(), rank)
	}
	name, err := ctx.Params.String("pattern", "")
	if err != nil {
		return err
	}
	if name == "" {
		for _, p := range in.Dataset.Patterns().Patterns() {
			if p.IsCore(mp.axis) && len(p.CoreDims) > 1 {
				name = p.Name
				break
			}
		}
	}
	if name == "" {
		return fmt.Errorf("mean_projection: dataset %q has no pattern with axis %d among several core dimensions", in.Dataset.Name(), mp.axis)
	}
	frames, err := maxFrames(ctx)
	if err != nil {
		return err
	}
	if err := in.SetPattern(name, frames); err != nil {
		return err
	}
	if p, _ := in.Pattern(); !p.IsCore(mp.axis) {
		return fmt.Errorf("mean_projection: axis %d is not a core dimension of pattern %s", mp.axis, p)
	}
	out, err := ctx.CreateOutput(0, in.Dataset, dataset.Options{RemoveAxes: []int{mp.axis}})
	if err != nil {
		return err
	}
	return out.SetPattern(name, frames)
}

func (mp *MeanProjection) ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error) {
	in := frames[0]
	shape := in.Shape()
	outShape := append(append([]int(nil), shape[:mp.axis]...), shape[mp.axis+1:]...)
	out := ndarray.New(outShape...)
	src := make([]int, len(shape))
	data := out.Data()
	i := 0
	ndarray.ForEach(outShape, func(pos []int) {
		copy(src[:mp.axis], pos[:mp.axis])
		copy(src[mp.axis+1:], pos[mp.axis:])
		var sum float64
		for k := 0; k < shape[mp.axis]; k++ {
			src[mp.axis] = k
			sum += float64(in.At(src...))
		}
		data[i] = float32(sum / float64(shape[mp.axis]))
		i++
	})
	return []*ndarray.Array{out}, nil
}
