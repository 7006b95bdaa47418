package builtin

import (
	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/plugin"
)

// PassThrough exposes its input under the output name without copying data.
type PassThrough struct{}

func NewPassThrough(plugin.Params) (plugin.Plugin, error) { return PassThrough{}, nil }

func (PassThrough) Name() string  { return "pass_through" }
func (PassThrough) NInputs() int  { return 1 }
func (PassThrough) NOutputs() int { return 1 }

func (PassThrough) Setup(ctx *plugin.Context) error {
	in := ctx.In[0]
	name, err := choosePattern(ctx, in, pattern.Projection)
	if err != nil {
		return err
	}
	if err := in.SetPattern(name, dataset.Multiple); err != nil {
		return err
	}
	out, err := ctx.PassThrough(0, 0)
	if err != nil {
		return err
	}
	return out.SetPattern(name, dataset.Multiple)
}

// ProcessFrames returns the input frames themselves, which the runner
// recognizes and does not write back.
func (PassThrough) ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error) {
	return frames[:1], nil
}

// Noop copies its input to a new output dataset unchanged.
type Noop struct{}

func NewNoop(plugin.Params) (plugin.Plugin, error) { return Noop{}, nil }

func (Noop) Name() string  { return "noop" }
func (Noop) NInputs() int  { return 1 }
func (Noop) NOutputs() int { return 1 }

func (Noop) Setup(ctx *plugin.Context) error {
	_, err := setupFilter(ctx, nil)
	return err
}

func (Noop) ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error) {
	return []*ndarray.Array{frames[0].Clone()}, nil
}
