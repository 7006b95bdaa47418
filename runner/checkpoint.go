package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/process"
	"github.com/janelia-flyem/tomoflow/slicing"
)

// CheckpointFile is the name of the checkpoint kept in the output directory.
const CheckpointFile = "checkpoint.json"

// HeldDataset is a dataset available to the next stage when a checkpoint was
// written.
type HeldDataset struct {
	Name    string   `json:"name"`
	Key     string   `json:"key"`
	Preview []string `json:"preview,omitempty"`
}

// Checkpoint records the progress of a run after its last completed stage.
type Checkpoint struct {
	RunID     string        `json:"run_id"`
	Plugins   []string      `json:"plugins"`
	Completed int           `json:"completed"`
	Datasets  []HeldDataset `json:"datasets"`
	Time      time.Time     `json:"time"`
}

// LoadCheckpoint reads a checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cp := new(Checkpoint)
	if err := json.Unmarshal(b, cp); err != nil {
		return nil, fmt.Errorf("bad checkpoint %s: %v", path, err)
	}
	if cp.Completed < 0 || cp.Completed > len(cp.Plugins) {
		return nil, fmt.Errorf("bad checkpoint %s: %d of %d stages completed", path, cp.Completed, len(cp.Plugins))
	}
	return cp, nil
}

// Save writes the checkpoint, replacing any earlier one only once the new
// one is complete on disk.
func (cp *Checkpoint) Save(path string) error {
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func stageLabels(stages []*process.Stage) []string {
	labels := make([]string, len(stages))
	for i, st := range stages {
		labels[i] = st.Entry.Label()
	}
	return labels
}

// matches checks that the checkpoint was written for the same stages.
func (cp *Checkpoint) matches(stages []*process.Stage) error {
	labels := stageLabels(stages)
	if len(labels) != len(cp.Plugins) {
		return fmt.Errorf("checkpoint of run %s has %d stages, process list has %d", cp.RunID, len(cp.Plugins), len(labels))
	}
	for i, label := range labels {
		if label != cp.Plugins[i] {
			return fmt.Errorf("checkpoint of run %s has plugin %s at stage %d, process list has %s",
				cp.RunID, cp.Plugins[i], i+1, label)
		}
	}
	return nil
}

// checkpoint flushes every held dataset and records them after completed
// stages.
func (r *Runner) checkpoint(m *dataset.Manager, stages []*process.Stage, res *Result) error {
	cp := &Checkpoint{
		RunID:     res.RunID,
		Plugins:   stageLabels(stages),
		Completed: res.Completed,
		Time:      time.Now(),
	}
	for _, ds := range m.Inputs() {
		if err := ds.Flush(); err != nil {
			return err
		}
		key, found := res.Arrays[ds.Name()]
		if !found {
			return fmt.Errorf("no array recorded for dataset %q", ds.Name())
		}
		cp.Datasets = append(cp.Datasets, HeldDataset{
			Name:    ds.Name(),
			Key:     key,
			Preview: ds.Preview().Entries(ds.Shape()),
		})
	}
	if err := cp.Save(r.CheckpointPath); err != nil {
		return fmt.Errorf("saving checkpoint after stage %d: %v", res.Completed, err)
	}
	return nil
}

// restore fills m with the datasets held at the checkpoint.  Inputs whose
// array is among them are used directly; the rest are retired.  Datasets
// recorded with the same key share one array.
func (r *Runner) restore(m *dataset.Manager, cp *Checkpoint, inputs []*dataset.Dataset) error {
	byKey := make(map[string]*dataset.Dataset)
	used := make(map[*dataset.Dataset]bool)
	for _, ds := range inputs {
		byKey[ds.Metadata().Name] = ds
	}
	for _, held := range cp.Datasets {
		var ds *dataset.Dataset
		var err error
		switch src, found := byKey[held.Key]; {
		case found && src.Name() == held.Name && !used[src]:
			ds = src
		case found:
			if ds, err = dataset.CreateLike(held.Name, src, dataset.Options{Shape: src.Shape()}); err != nil {
				return err
			}
			if err = ds.Share(src); err != nil {
				return err
			}
		default:
			if ds, err = dataset.Open(r.Store, held.Name, held.Key); err != nil {
				return err
			}
			byKey[held.Key] = ds
		}
		used[ds] = true
		pv, err := slicing.ParsePreview(held.Preview, ds.Shape())
		if err != nil {
			return fmt.Errorf("dataset %q in checkpoint: %v", held.Name, err)
		}
		if err := ds.SetPreview(pv); err != nil {
			return err
		}
		if err := m.AddInput(ds); err != nil {
			return err
		}
	}
	var err error
	for _, ds := range inputs {
		if !used[ds] {
			err = multierr.Append(err, m.Retire(ds))
		}
	}
	return err
}
