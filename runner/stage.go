package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/tomoflow/chunking"
	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/plugin"
	"github.com/janelia-flyem/tomoflow/process"
	"github.com/janelia-flyem/tomoflow/slicing"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// stageRun is the state shared by the worker ranks of one stage.
type stageRun struct {
	runID  string
	st     *process.Stage
	index  int
	stages int
	inst   *plugin.Instance
	ctx    *plugin.Context
	groups int
	ranks  int

	inLists  []slicing.List
	outLists []slicing.List
	keys     map[string]string

	barrier *Barrier
	log     tomo.TimeLog
}

func (r *Runner) runStage(ctx context.Context, m *dataset.Manager, stages []*process.Stage, i int, res *Result) error {
	st := stages[i]
	label := st.Entry.Label()
	timedLog := tomo.NewStageLog(i+1, len(stages), label)

	inst, pctx, groups, err := r.setup(m, st)
	if err != nil {
		return err
	}
	if err := r.chunk(pctx, st, process.NextPatterns(stages, i)); err != nil {
		return fmt.Errorf("plugin %s: %v", label, err)
	}

	sr := &stageRun{
		runID:  res.RunID,
		st:     st,
		index:  i,
		stages: len(stages),
		inst:   inst,
		ctx:    pctx,
		groups: groups,
		ranks:  inst.Reg.Driver.Ranks(r.processes(), r.Config.Run.GPUs),
		keys:   make(map[string]string),
		log:    timedLog,
	}
	for _, pd := range pctx.In {
		list, err := pd.SliceList(r.cache)
		if err != nil {
			return err
		}
		sr.inLists = append(sr.inLists, list)
	}
	for _, pd := range pctx.Out {
		list, err := pd.SliceList(r.cache)
		if err != nil {
			return err
		}
		sr.outLists = append(sr.outLists, list)
	}
	sr.barrier = NewBarrier(sr.ranks)

	for _, pd := range pctx.In {
		if err := pd.Dataset.Acquire(); err != nil {
			return err
		}
		defer pd.Dataset.Release()
	}

	r.notify(Event{RunID: res.RunID, Kind: StageStarted, Stage: i, Stages: len(stages), Plugin: label,
		Message: fmt.Sprintf("%d frame-groups on %d ranks", groups, sr.ranks)})

	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < sr.ranks; rank++ {
		rank := rank
		g.Go(func() error {
			return r.work(gctx, sr, rank)
		})
	}
	err = g.Wait()
	for _, pd := range pctx.Out {
		pd.Dataset.Release()
	}
	for _, pd := range pctx.In {
		pd.Cleanup()
	}
	for _, pd := range pctx.Out {
		pd.Cleanup()
	}
	if err != nil {
		return err
	}
	if r.Stopped() {
		return nil
	}

	for j, name := range st.Out {
		if key, found := sr.keys[name]; found {
			res.Arrays[name] = key
			continue
		}
		for k, in := range pctx.In {
			if pctx.Out[j].Dataset.SharesArray(in.Dataset) {
				res.Arrays[name] = res.Arrays[st.In[k]]
				break
			}
		}
	}

	elapsed := timedLog.Elapsed()
	r.Metrics.StageSeconds.WithLabelValues(st.Entry.Name).Observe(elapsed.Seconds())
	r.notify(Event{RunID: res.RunID, Kind: StageFinished, Stage: i, Stages: len(stages), Plugin: label, Percent: 100})
	timedLog.Infof("finished %d frame-groups on %d ranks", groups, sr.ranks)
	return nil
}

// chunk sets the chunk shape of every output the stage allocates, taking into
// account how the next stage reads it.
func (r *Runner) chunk(pctx *plugin.Context, st *process.Stage, next map[string]chunking.Requirement) error {
	calc := r.calc
	calc.Processes = r.processes()
	for j, pd := range pctx.Out {
		ds := pd.Dataset
		if ds.State() != dataset.Unallocated {
			continue
		}
		var nextReq *chunking.Requirement
		if req, found := next[st.Out[j]]; found {
			nextReq = &req
		}
		chunks, err := calc.Compute(ds.Shape(), ds.DType().ItemSize(), pd.Requirement(), nextReq)
		if err != nil {
			return fmt.Errorf("chunking dataset %q: %v", st.Out[j], err)
		}
		if err := ds.SetChunks(chunks); err != nil {
			return err
		}
	}
	return nil
}

// work is the body of one rank.  Rank 0 prepares the stage and finishes it;
// every rank processes its own share of the frame-groups in between.
func (r *Runner) work(ctx context.Context, sr *stageRun, rank int) error {
	label := sr.st.Entry.Label()
	if rank == 0 {
		if err := r.prepare(sr); err != nil {
			return err
		}
	}
	if err := sr.barrier.Wait(ctx); err != nil {
		return err
	}

	span, err := slicing.RankSpan(sr.groups, rank, sr.ranks)
	if err != nil {
		return err
	}
	rlog := sr.log.ForRank(rank)
	rlog.Debugf("frame-groups [%d, %d) of %d", span.Start, span.Stop, sr.groups)
	progress := newProgress(span.Len())
	for g := span.Start; g < span.Stop; g++ {
		if r.Stopped() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.processGroup(sr, g); err != nil {
			return err
		}
		if pct, report := progress.done(g - span.Start + 1); report && rank == 0 {
			r.notify(Event{RunID: sr.runID, Kind: StageProgress, Stage: sr.index, Stages: sr.stages,
				Plugin: label, Percent: pct})
		}
	}

	if tomo.Verbose {
		rlog.Infof("processed %d frame-groups", span.Len())
	}
	if err := sr.barrier.Wait(ctx); err != nil {
		return err
	}
	if rank == 0 && !r.Stopped() {
		if f, ok := sr.inst.Plugin.(plugin.Finisher); ok {
			if err := f.PostProcess(sr.ctx); err != nil {
				return fmt.Errorf("plugin %s post-process: %w", label, err)
			}
		}
	}
	return nil
}

// prepare allocates the stage outputs and runs the plugin's pre-process step.
func (r *Runner) prepare(sr *stageRun) error {
	for j, pd := range sr.ctx.Out {
		ds := pd.Dataset
		if ds.State() == dataset.Unallocated {
			key := arrayKey(sr.st, sr.st.Out[j])
			if err := ds.AllocateAs(r.Store, key); err != nil {
				return err
			}
			sr.keys[sr.st.Out[j]] = key
		}
		if err := ds.Acquire(); err != nil {
			return err
		}
	}
	if p, ok := sr.inst.Plugin.(plugin.Preparer); ok {
		if err := p.PreProcess(sr.ctx); err != nil {
			return fmt.Errorf("plugin %s pre-process: %w", sr.st.Entry.Label(), err)
		}
	}
	return nil
}

// processGroup reads frame-group g of every input with its padding, passes
// the frames to the plugin and writes the unpadded results.
func (r *Runner) processGroup(sr *stageRun, g int) error {
	pctx := sr.ctx
	label := sr.st.Entry.Label()
	frames := make([]*ndarray.Array, len(pctx.In))
	for k, pd := range pctx.In {
		idx := sr.inLists[k][g]
		data, err := slicing.GetPaddedSliceData(pd.Dataset, idx, pd.Pads(), pd.Dataset.Shape())
		if err != nil {
			return fmt.Errorf("plugin %s reading %q group %d %s: %w", label, sr.st.In[k], g, idx, err)
		}
		frames[k] = data
	}

	results, err := sr.inst.ProcessFrames(frames)
	if err != nil {
		return fmt.Errorf("plugin %s frame-group %d: %w", label, g, err)
	}
	if len(results) != len(pctx.Out) {
		return fmt.Errorf("plugin %s returned %d frame-groups for %d outputs", label, len(results), len(pctx.Out))
	}

	for j, pd := range pctx.Out {
		if r.unchanged(pctx, j, results[j], frames) {
			continue
		}
		idx := sr.outLists[j][g]
		shape := pd.Dataset.Shape()
		data, err := slicing.GetUnpaddedSliceData(results[j], idx, pd.Pads(), shape)
		if err != nil {
			return fmt.Errorf("plugin %s output %q group %d: %w", label, sr.st.Out[j], g, err)
		}
		if err := pd.Dataset.Write(idx, data); err != nil {
			return fmt.Errorf("plugin %s writing %q group %d %s: %w", label, sr.st.Out[j], g, idx, err)
		}
		r.Metrics.BytesWritten.WithLabelValues(sr.st.Out[j]).Add(float64(data.Size() * pd.Dataset.DType().ItemSize()))
	}

	var n int
	if len(pctx.In) > 0 {
		p, _ := pctx.In[0].Pattern()
		n = slicing.NumFrames(sr.inLists[0][g], p, pctx.In[0].Dataset.Shape())
	} else if len(pctx.Out) > 0 {
		p, _ := pctx.Out[0].Pattern()
		n = slicing.NumFrames(sr.outLists[0][g], p, pctx.Out[0].Dataset.Shape())
	}
	r.Metrics.Frames.WithLabelValues(sr.st.Entry.Name).Add(float64(n))
	r.Metrics.Groups.WithLabelValues(sr.st.Entry.Name).Inc()
	return nil
}

// unchanged returns true if output j shares the backing array of an input and
// the plugin returned that input's frames as they were read.
func (r *Runner) unchanged(pctx *plugin.Context, j int, result *ndarray.Array, frames []*ndarray.Array) bool {
	for k, in := range pctx.In {
		if result == frames[k] && pctx.Out[j].Dataset.SharesArray(in.Dataset) {
			return true
		}
	}
	return false
}

// progress reports completion in steps of ten percent.
type progress struct {
	total int
	last  int
}

func newProgress(total int) *progress {
	return &progress{total: total}
}

func (p *progress) done(n int) (float64, bool) {
	if p.total == 0 {
		return 100, false
	}
	pct := 100 * n / p.total
	if pct/10 > p.last/10 || n == p.total {
		p.last = pct
		return float64(pct), true
	}
	return float64(pct), false
}
