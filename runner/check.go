package runner

import (
	"fmt"

	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/process"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// placeholder stands in for a backing array while stages are checked.  It
// carries metadata only.
type placeholder struct {
	meta storage.Metadata
}

func (p placeholder) Metadata() storage.Metadata { return p.meta.Duplicate() }

func (p placeholder) Read(idx ndarray.Index) (*ndarray.Array, error) {
	return nil, fmt.Errorf("dataset %q has no data while checking the process list", p.meta.Name)
}

func (p placeholder) Write(idx ndarray.Index, data *ndarray.Array) error {
	return fmt.Errorf("dataset %q has no data while checking the process list", p.meta.Name)
}

func (p placeholder) Close() error { return nil }

// check sets up every stage in order against placeholders for the inputs,
// recording how each stage reads its datasets.  Nothing is allocated.
func (r *Runner) check(stages []*process.Stage, inputs []*dataset.Dataset) error {
	m := dataset.NewManager()
	for _, ds := range inputs {
		if s := ds.State(); s != dataset.Populated && s != dataset.InUse {
			return fmt.Errorf("input dataset %q is %s", ds.Name(), s)
		}
		stand, err := dataset.FromArray(placeholder{ds.Metadata()})
		if err != nil {
			return err
		}
		if err := stand.SetPreview(ds.Preview()); err != nil {
			return err
		}
		if err := m.AddInput(stand); err != nil {
			return err
		}
	}
	for _, st := range stages {
		_, ctx, groups, err := r.setup(m, st)
		if err != nil {
			return err
		}
		for _, pd := range ctx.Out {
			if pd.Dataset.State() == dataset.Unallocated {
				if err := pd.Dataset.Populate(placeholder{pd.Dataset.Metadata()}); err != nil {
					return err
				}
			}
		}
		if err := m.Reorganize(); err != nil {
			return err
		}
		tomo.Debugf("checked %s: %d frame-groups\n", st, groups)
	}
	return m.CompleteAll()
}
