/*
	Package plugin defines the contract between the pipeline runner and the
	processing steps it executes, plus an explicit registry of available plugins.

	A plugin declares how many datasets it reads and writes, selects patterns and
	frames per group for each of them in Setup, and is then called once per
	frame-group with the frames of every input.
*/
package plugin

import (
	"fmt"

	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
)

// Plugin is a processing step of a pipeline.
type Plugin interface {
	Name() string
	NInputs() int
	NOutputs() int

	// Setup selects patterns, frames per group and padding on the plugin data
	// of the context and creates the output datasets.
	Setup(ctx *Context) error

	// ProcessFrames receives one frame-group per input dataset and returns one
	// frame-group per output dataset.  It is called concurrently by the worker
	// ranks of a stage and must not modify plugin state.
	ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error)
}

// Preparer is implemented by plugins that need to run once per stage before
// any frames are processed.
type Preparer interface {
	PreProcess(ctx *Context) error
}

// Finisher is implemented by plugins that need to run once per stage after
// all frames are processed.
type Finisher interface {
	PostProcess(ctx *Context) error
}

// Context gives a plugin access to its datasets and parameters.
type Context struct {
	Params  Params
	Driver  Driver
	Kernel  Kernel
	Threads int

	In  []*dataset.PluginData
	Out []*dataset.PluginData

	InNames  []string
	OutNames []string

	manager *dataset.Manager
}

// NewContext binds the named input datasets of m.  Outputs are created by the
// plugin during Setup.
func NewContext(m *dataset.Manager, params Params, inNames, outNames []string) (*Context, error) {
	ctx := &Context{
		Params:   params,
		Threads:  1,
		InNames:  append([]string(nil), inNames...),
		OutNames: append([]string(nil), outNames...),
		Out:      make([]*dataset.PluginData, len(outNames)),
		manager:  m,
	}
	for _, name := range inNames {
		ds, err := m.In(name)
		if err != nil {
			return nil, err
		}
		ctx.In = append(ctx.In, dataset.NewPluginData(ds))
	}
	return ctx, nil
}

// CreateOutput creates output i, derived from pred, and returns its plugin data.
func (ctx *Context) CreateOutput(i int, pred *dataset.Dataset, opts dataset.Options) (*dataset.PluginData, error) {
	if i < 0 || i >= len(ctx.OutNames) {
		return nil, fmt.Errorf("no output dataset %d, plugin has %d", i, len(ctx.OutNames))
	}
	ds, err := ctx.manager.CreateOutput(ctx.OutNames[i], pred, opts)
	if err != nil {
		return nil, err
	}
	ctx.Out[i] = dataset.NewPluginData(ds)
	return ctx.Out[i], nil
}

// PassThrough creates output i sharing the backing array of input src.  The
// output keeps the input's shape, patterns and preview.
func (ctx *Context) PassThrough(i, src int) (*dataset.PluginData, error) {
	if src < 0 || src >= len(ctx.In) {
		return nil, fmt.Errorf("no input dataset %d, plugin has %d", src, len(ctx.In))
	}
	in := ctx.In[src].Dataset
	pd, err := ctx.CreateOutput(i, in, dataset.Options{Shape: in.Shape()})
	if err != nil {
		return nil, err
	}
	if err := pd.Dataset.SetPreview(in.Preview()); err != nil {
		return nil, err
	}
	if err := pd.Dataset.Share(in); err != nil {
		return nil, err
	}
	return pd, nil
}

// DefaultOutputPattern returns the pattern an output should use when the
// plugin reads input in with pattern name.
func (ctx *Context) DefaultOutputPattern(name string) string {
	return ctx.Kernel.OutputPattern(name)
}

// Check verifies that Setup produced a usable context.
func (ctx *Context) Check(pluginName string) error {
	for i, pd := range ctx.In {
		if _, ok := pd.Pattern(); !ok {
			return fmt.Errorf("plugin %q selected no pattern for input dataset %q", pluginName, ctx.InNames[i])
		}
	}
	for i, pd := range ctx.Out {
		if pd == nil {
			return fmt.Errorf("plugin %q did not create output dataset %q", pluginName, ctx.OutNames[i])
		}
		if _, ok := pd.Pattern(); !ok {
			return fmt.Errorf("plugin %q selected no pattern for output dataset %q", pluginName, ctx.OutNames[i])
		}
	}
	return nil
}
