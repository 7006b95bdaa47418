/*
	Package runner executes a process list over a set of input datasets.

	Every stage is checked before any data is touched: plugins are set up in
	order against metadata-only stand-ins for their datasets, so broken chains,
	unsupported patterns and mismatched frame-group counts surface before the
	first worker starts.  Each stage then runs SPMD style: a number of worker
	ranks, set by the plugin's driver, compute the same slice lists and
	process their own contiguous share of the frame-groups, meeting at a
	barrier before and after.
*/
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twinj/uuid"
	"go.uber.org/multierr"

	"github.com/janelia-flyem/tomoflow/chunking"
	"github.com/janelia-flyem/tomoflow/config"
	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/plugin"
	"github.com/janelia-flyem/tomoflow/process"
	"github.com/janelia-flyem/tomoflow/slicing"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// SliceCacheSize is the number of slice lists kept by a runner.
const SliceCacheSize = 64

// Runner runs process lists against one store.
type Runner struct {
	Config   *config.Config
	Store    storage.Store
	Plugins  *plugin.Registry
	Notifier Notifier
	Metrics  *Metrics

	// CheckpointPath, if set, receives a checkpoint after every completed
	// stage.
	CheckpointPath string

	calc  chunking.Calculator
	cache *slicing.Cache

	mu      sync.Mutex
	running bool
	stop    atomic.Bool
}

// Result describes a finished run.
type Result struct {
	RunID string

	// Completed is the number of stages that ran to the end.
	Completed int
	Stages    int
	Stopped   bool

	// Arrays maps each dataset left at the end of the run to the key of its
	// backing array in the store.
	Arrays map[string]string

	Elapsed time.Duration
}

// New returns a runner that logs events and keeps metrics in a private
// registry.  Either can be replaced before Run.
func New(cfg *config.Config, store storage.Store, plugins *plugin.Registry) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if store == nil {
		return nil, fmt.Errorf("runner needs a store")
	}
	if plugins == nil {
		return nil, fmt.Errorf("runner needs a plugin registry")
	}
	calc, err := cfg.ChunkCalculator()
	if err != nil {
		return nil, err
	}
	return &Runner{
		Config:   cfg,
		Store:    store,
		Plugins:  plugins,
		Notifier: LogNotifier{},
		Metrics:  NewMetrics(prometheus.NewRegistry()),
		calc:     calc,
		cache:    slicing.NewCache(SliceCacheSize),
	}, nil
}

// Stop asks a running pipeline to stop.  Workers finish the frame-group in
// hand, the current stage winds down and no further stage is started.  A
// stopped runner stays stopped.
func (r *Runner) Stop() {
	if !r.stop.Swap(true) {
		tomo.Infof("Stop requested for pipeline run.\n")
	}
}

// Stopped returns true once Stop has been called.
func (r *Runner) Stopped() bool {
	return r.stop.Load()
}

func (r *Runner) processes() int {
	if r.Config.Run.Processes < 1 {
		return 1
	}
	return r.Config.Run.Processes
}

// Run checks and then executes every active entry of list over inputs, which
// must be populated datasets with distinct names.  All datasets, including
// the inputs, are finalized when Run returns.
func (r *Runner) Run(ctx context.Context, list *process.List, inputs []*dataset.Dataset) (*Result, error) {
	return r.run(ctx, list, inputs, nil)
}

// Resume is Run continuing from a checkpoint written by an earlier run of the
// same process list.  Stages completed before the checkpoint are skipped and
// their datasets are reopened from the store.  The whole list is still
// checked against inputs first.
func (r *Runner) Resume(ctx context.Context, list *process.List, inputs []*dataset.Dataset, cp *Checkpoint) (*Result, error) {
	if cp == nil {
		return nil, fmt.Errorf("no checkpoint to resume from")
	}
	return r.run(ctx, list, inputs, cp)
}

func (r *Runner) run(ctx context.Context, list *process.List, inputs []*dataset.Dataset, cp *Checkpoint) (*Result, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner is already running a pipeline")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	timedLog := tomo.NewTimeLog()
	res := &Result{RunID: uuid.NewV4().String(), Arrays: make(map[string]string)}

	names := make([]string, len(inputs))
	for i, ds := range inputs {
		names[i] = ds.Name()
		res.Arrays[ds.Name()] = ds.Metadata().Name
	}
	stages, err := list.Resolve(r.Plugins, names)
	if err != nil {
		return nil, err
	}
	res.Stages = len(stages)
	if err := r.check(stages, inputs); err != nil {
		return nil, err
	}

	m := dataset.NewManager()
	start := 0
	if cp != nil {
		if err := cp.matches(stages); err != nil {
			return nil, err
		}
		if err := r.restore(m, cp, inputs); err != nil {
			err = multierr.Append(err, m.CompleteAll())
			for _, ds := range inputs {
				err = multierr.Append(err, ds.Complete())
			}
			return nil, err
		}
		res.RunID = cp.RunID
		res.Arrays = make(map[string]string)
		for _, held := range cp.Datasets {
			res.Arrays[held.Name] = held.Key
		}
		start, res.Completed = cp.Completed, cp.Completed
		timedLog.Infof("Resuming run %s after stage %d of %d", cp.RunID, cp.Completed, len(stages))
	} else {
		for _, ds := range inputs {
			if err := m.AddInput(ds); err != nil {
				return nil, err
			}
		}
	}
	r.notify(Event{RunID: res.RunID, Kind: RunStarted, Stage: start, Stages: len(stages)})

	for i := start; i < len(stages); i++ {
		if r.Stopped() || ctx.Err() != nil {
			res.Stopped = true
			break
		}
		err = r.runStage(ctx, m, stages, i, res)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				res.Stopped = true
				err = nil
			}
			break
		}
		if r.Stopped() {
			res.Stopped = true
			break
		}
		if err = m.Reorganize(); err != nil {
			break
		}
		res.Completed++
		if r.CheckpointPath != "" {
			if err = r.checkpoint(m, stages, res); err != nil {
				break
			}
		}
	}
	err = multierr.Append(err, m.CompleteAll())
	for name := range res.Arrays {
		if _, inErr := m.In(name); inErr != nil {
			delete(res.Arrays, name)
		}
	}
	res.Elapsed = timedLog.Elapsed()

	e := Event{RunID: res.RunID, Stage: res.Completed, Stages: len(stages), Percent: 100}
	switch {
	case err != nil:
		e.Kind, e.Message = RunFailed, err.Error()
	case res.Stopped:
		e.Kind, e.Message = RunStopped, fmt.Sprintf("stopped after %d of %d stages", res.Completed, len(stages))
	default:
		e.Kind = RunFinished
	}
	r.notify(e)
	timedLog.Infof("Pipeline run %s finished %d of %d stages", res.RunID, res.Completed, len(stages))
	return res, err
}

func (r *Runner) notify(e Event) {
	if r.Notifier == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.Notifier.Notify(e)
}

// setup binds a fresh plugin instance to the datasets held by m, lets it
// choose its patterns and outputs, and fixes frames per group.  It returns
// the number of frame-groups, which is the same for every dataset of the
// stage.
func (r *Runner) setup(m *dataset.Manager, st *process.Stage) (*plugin.Instance, *plugin.Context, int, error) {
	inst, err := st.New()
	if err != nil {
		return nil, nil, 0, err
	}
	label := st.Entry.Label()
	ctx, err := plugin.NewContext(m, inst.Params, st.In, st.Out)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("plugin %s: %v", label, err)
	}
	ctx.Driver = inst.Reg.Driver
	ctx.Kernel = inst.Reg.Kernel
	if ctx.Driver == plugin.MultiThreaded {
		ctx.Threads = r.processes()
	}
	if err := inst.Setup(ctx); err != nil {
		return nil, nil, 0, fmt.Errorf("plugin %s setup: %w", label, err)
	}
	if err := ctx.Check(label); err != nil {
		return nil, nil, 0, err
	}

	groups := -1
	var first string
	check := func(name string, pd *dataset.PluginData) error {
		pd.ResolveFrames(r.Config.Run.MaxFramesMultiple)
		list, err := pd.SliceList(r.cache)
		if err != nil {
			return fmt.Errorf("plugin %s dataset %q: %w", label, name, err)
		}
		if tomo.Verbose {
			if err := pd.CheckCoverage(list); err != nil {
				return fmt.Errorf("plugin %s dataset %q: %v", label, name, err)
			}
		}
		if groups < 0 {
			groups, first = len(list), name
		} else if len(list) != groups {
			p, _ := pd.Pattern()
			return fmt.Errorf("plugin %s: dataset %q has %d frame-groups with pattern %s, dataset %q has %d",
				label, name, len(list), p.Name, first, groups)
		}
		return nil
	}
	for i, pd := range ctx.In {
		if err := check(st.In[i], pd); err != nil {
			return nil, nil, 0, err
		}
		st.Reads[st.In[i]] = pd.Requirement()
	}
	for i, pd := range ctx.Out {
		if err := check(st.Out[i], pd); err != nil {
			return nil, nil, 0, err
		}
	}
	for _, name := range st.Entry.Remove {
		for i, out := range st.Out {
			if out == name {
				ctx.Out[i].Dataset.SetRemove(true)
			}
		}
	}
	return inst, ctx, groups, nil
}

// arrayKey names the backing array of a stage output so that an output
// replacing a dataset of the same name never overwrites the array it reads.
func arrayKey(st *process.Stage, name string) string {
	return fmt.Sprintf("%02d-%s-%s", st.Index, st.Entry.Name, name)
}
