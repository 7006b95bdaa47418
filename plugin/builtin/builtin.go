/*
	Package builtin provides general purpose plugins that make a pipeline
	runnable end to end: element-wise arithmetic, pass-through, neighborhood
	filtering, binning and projection.
*/
package builtin

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/plugin"
)

const Version = "0.1.0"

// Register adds every built-in plugin to r.
func Register(r *plugin.Registry) error {
	regs := []plugin.Registration{
		{Name: "basic_operations", Factory: NewBasicOperations},
		{Name: "pass_through", Factory: NewPassThrough},
		{Name: "noop", Factory: NewNoop},
		{Name: "median_filter", Factory: NewMedianFilter},
		{Name: "median_filter_mt", Factory: NewMedianFilter, Driver: plugin.MultiThreaded},
		{Name: "downsample", Factory: NewDownsample},
		{Name: "mean_projection", Factory: NewMeanProjection},
	}
	for _, reg := range regs {
		reg.Version = Version
		if err := r.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in plugins.
func NewRegistry() *plugin.Registry {
	r := plugin.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

// choosePattern returns the "pattern" parameter if set, else def if the
// dataset has it, else the first pattern of the dataset.
func choosePattern(ctx *plugin.Context, pd *dataset.PluginData, def string) (string, error) {
	name, err := ctx.Params.String("pattern", "")
	if err != nil {
		return "", err
	}
	reg := pd.Dataset.Patterns()
	if name != "" {
		return name, nil
	}
	if reg.Has(def) {
		return def, nil
	}
	names := reg.Names()
	if len(names) == 0 {
		return "", fmt.Errorf("dataset %q has no patterns", pd.Dataset.Name())
	}
	return names[0], nil
}

// maxFrames reads the "max_frames" parameter: a count, "single", or
// "multiple" (the default) to let the framework choose.
func maxFrames(ctx *plugin.Context) (int, error) {
	if s, err := ctx.Params.String("max_frames", "multiple"); err == nil {
		switch strings.ToLower(s) {
		case "multiple":
			return dataset.Multiple, nil
		case "single":
			return dataset.Single, nil
		}
	}
	return ctx.Params.Int("max_frames", dataset.Multiple)
}

// setupFilter selects the same pattern on input 0 and output 0.  The output
// is created from the input with the options returned by opts, which may be
// nil.
func setupFilter(ctx *plugin.Context, opts func(p pattern.Pattern, shape []int) dataset.Options) (pattern.Pattern, error) {
	in := ctx.In[0]
	name, err := choosePattern(ctx, in, pattern.Projection)
	if err != nil {
		return pattern.Pattern{}, err
	}
	frames, err := maxFrames(ctx)
	if err != nil {
		return pattern.Pattern{}, err
	}
	if err := in.SetPattern(name, frames); err != nil {
		return pattern.Pattern{}, err
	}
	p, _ := in.Pattern()
	var o dataset.Options
	if opts != nil {
		o = opts(p, in.Dataset.Shape())
	}
	out, err := ctx.CreateOutput(0, in.Dataset, o)
	if err != nil {
		return pattern.Pattern{}, err
	}
	outName := ctx.DefaultOutputPattern(name)
	if !out.Dataset.Patterns().Has(outName) {
		outName = name
	}
	if err := out.SetPattern(outName, frames); err != nil {
		return pattern.Pattern{}, err
	}
	return p, nil
}

// unravel sets pos to the row-major position of element i within shape.
func unravel(i int, shape, pos []int) {
	for d := len(shape) - 1; d >= 0; d-- {
		pos[d] = i % shape[d]
		i /= shape[d]
	}
}
