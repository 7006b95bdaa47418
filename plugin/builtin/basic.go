package builtin

import (
	"fmt"

	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/plugin"
	"github.com/janelia-flyem/tomoflow/plugin/expr"
)

// BasicOperations computes each output as an arithmetic expression over the
// input datasets, referenced by name.
type BasicOperations struct {
	ops    []*expr.Expr
	inputs []string
	names  []string
}

// NewBasicOperations parses the "operations" parameter, one expression per
// output dataset.
func NewBasicOperations(params plugin.Params) (plugin.Plugin, error) {
	srcs, err := params.Strings("operations", nil)
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("basic_operations needs at least one entry in %q", "operations")
	}
	b := &BasicOperations{}
	seen := make(map[string]bool)
	for _, src := range srcs {
		e, err := expr.Parse(src)
		if err != nil {
			return nil, err
		}
		b.ops = append(b.ops, e)
		for _, ref := range e.Refs {
			if !seen[ref] {
				seen[ref] = true
				b.inputs = append(b.inputs, ref)
			}
		}
	}
	return b, nil
}

func (b *BasicOperations) Name() string  { return "basic_operations" }
func (b *BasicOperations) NInputs() int  { return len(b.inputs) }
func (b *BasicOperations) NOutputs() int { return len(b.ops) }

// Operands returns the dataset names referenced by the operations.
func (b *BasicOperations) Operands() []string {
	return append([]string(nil), b.inputs...)
}

func (b *BasicOperations) Setup(ctx *plugin.Context) error {
	byName := make(map[string]*dataset.PluginData, len(ctx.In))
	for i, name := range ctx.InNames {
		byName[name] = ctx.In[i]
	}
	for _, ref := range b.inputs {
		if byName[ref] == nil {
			return fmt.Errorf("basic_operations: operand %q is not an input dataset %v", ref, ctx.InNames)
		}
	}
	name, err := choosePattern(ctx, ctx.In[0], pattern.Projection)
	if err != nil {
		return err
	}
	frames, err := maxFrames(ctx)
	if err != nil {
		return err
	}
	for _, in := range ctx.In {
		if err := in.SetPattern(name, frames); err != nil {
			return err
		}
	}
	for i, e := range b.ops {
		out, err := ctx.CreateOutput(i, byName[e.Refs[0]].Dataset, dataset.Options{})
		if err != nil {
			return err
		}
		if err := out.SetPattern(name, frames); err != nil {
			return err
		}
	}
	b.names = append([]string(nil), ctx.InNames...)
	return nil
}

func (b *BasicOperations) ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error) {
	operands := make(map[string]*ndarray.Array, len(frames))
	for i, f := range frames {
		operands[b.names[i]] = f
	}
	out := make([]*ndarray.Array, len(b.ops))
	for i, e := range b.ops {
		var err error
		if out[i], err = e.Eval(operands); err != nil {
			return nil, err
		}
	}
	return out, nil
}
