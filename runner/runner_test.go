package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/janelia-flyem/tomoflow/config"
	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/plugin"
	"github.com/janelia-flyem/tomoflow/plugin/builtin"
	"github.com/janelia-flyem/tomoflow/process"
	"github.com/janelia-flyem/tomoflow/storage/memory"
	"github.com/janelia-flyem/tomoflow/tomo"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Close() error { return nil }

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []EventKind
	for _, e := range r.events {
		if e.Kind != StageProgress {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

func newRunner(t *testing.T, procs int, plugins *plugin.Registry) (*Runner, *memory.Store, *recorder) {
	cfg := config.Default()
	cfg.Run.Processes = procs
	cfg.Run.MaxFramesMultiple = 2
	store := memory.New()
	r, err := New(cfg, store, plugins)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	r.Notifier = rec
	r.Metrics = NewMetrics(prometheus.NewRegistry())
	return r, store, rec
}

func all(rank int) ndarray.Index {
	idx := make(ndarray.Index, rank)
	for d := range idx {
		idx[d] = ndarray.All()
	}
	return idx
}

func TestRunPipeline(t *testing.T) {
	r, store, rec := newRunner(t, 3, builtin.NewRegistry())
	tomoData, err := Synthetic(store, "tomo", []int{6, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	list := &process.List{Plugins: []process.Entry{
		{Name: "basic_operations", Params: map[string]interface{}{"operations": []string{"tomo * 2"}},
			InDatasets: []string{"tomo"}, OutDatasets: []string{"double"}},
		{Name: "mean_projection", Params: map[string]interface{}{"axis": 0},
			InDatasets: []string{"double"}, OutDatasets: []string{"mean"}},
		{Name: "noop", InDatasets: []string{"double"}, OutDatasets: []string{"double"}, Remove: []string{"double"}},
	}}
	res, err := r.Run(context.Background(), list, []*dataset.Dataset{tomoData})
	if err != nil {
		t.Fatal(err)
	}
	if res.Completed != 3 || res.Stages != 3 || res.Stopped {
		t.Errorf("unexpected result %+v", res)
	}
	if _, found := res.Arrays["double"]; found {
		t.Errorf("removed dataset still listed: %v", res.Arrays)
	}
	if res.Arrays["tomo"] != "tomo" {
		t.Errorf("bad input key in %v", res.Arrays)
	}
	if tomoData.State() != dataset.Finalized {
		t.Errorf("input left in state %s", tomoData.State())
	}

	array, err := store.OpenArray(res.Arrays["mean"])
	if err != nil {
		t.Fatal(err)
	}
	got, err := array.Read(all(2))
	if err != nil {
		t.Fatal(err)
	}
	want := ndarray.New(4, 5)
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			want.Set(float32(100+10*y+2*x), y, x)
		}
	}
	if !got.AllClose(want, 1e-4) {
		t.Errorf("mean projection got %v, want %v", got.Data(), want.Data())
	}

	if n := testutil.ToFloat64(r.Metrics.Groups.WithLabelValues("mean_projection")); n != 2 {
		t.Errorf("expected 2 mean_projection groups, got %v", n)
	}
	if n := testutil.ToFloat64(r.Metrics.Frames.WithLabelValues("mean_projection")); n != 4 {
		t.Errorf("expected 4 mean_projection frames, got %v", n)
	}
	if n := testutil.ToFloat64(r.Metrics.BytesWritten.WithLabelValues("mean")); n != 80 {
		t.Errorf("expected 80 bytes written to mean, got %v", n)
	}
	if n := testutil.CollectAndCount(r.Metrics.StageSeconds); n != 3 {
		t.Errorf("expected stage durations for 3 plugins, got %d", n)
	}

	kinds := rec.kinds()
	if len(kinds) != 8 || kinds[0] != RunStarted || kinds[7] != RunFinished {
		t.Errorf("unexpected events %v", kinds)
	}
}

func TestRunInPlace(t *testing.T) {
	r, store, _ := newRunner(t, 2, builtin.NewRegistry())
	tomoData, err := Synthetic(store, "tomo", []int{4, 3, 3})
	if err != nil {
		t.Fatal(err)
	}
	list := &process.List{Plugins: []process.Entry{
		{Name: "basic_operations", Params: map[string]interface{}{"operations": []string{"tomo + 1"}}},
		{Name: "pass_through"},
	}}
	res, err := r.Run(context.Background(), list, []*dataset.Dataset{tomoData})
	if err != nil {
		t.Fatal(err)
	}
	key := res.Arrays["tomo"]
	if key == "tomo" || !strings.Contains(key, "basic_operations") {
		t.Fatalf("replaced dataset should have its own array, got %v", res.Arrays)
	}
	array, err := store.OpenArray(key)
	if err != nil {
		t.Fatal(err)
	}
	got, err := array.Read(all(3))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got.Data() {
		if v != float32(i+1) {
			t.Fatalf("element %d is %v, want %d", i, v, i+1)
		}
	}
	orig, err := store.OpenArray("tomo")
	if err != nil {
		t.Fatal(err)
	}
	data, err := orig.Read(all(3))
	if err != nil {
		t.Fatal(err)
	}
	if !data.Equal(ndarray.Ramp(4, 3, 3)) {
		t.Error("input array was modified")
	}
}

// stopper copies its input and asks the runner to stop on the first group.
type stopper struct {
	stop func()
}

func (s *stopper) Name() string  { return "stopper" }
func (s *stopper) NInputs() int  { return 1 }
func (s *stopper) NOutputs() int { return 1 }

func (s *stopper) Setup(ctx *plugin.Context) error {
	if err := ctx.In[0].SetPattern(pattern.Projection, dataset.Single); err != nil {
		return err
	}
	out, err := ctx.CreateOutput(0, ctx.In[0].Dataset, dataset.Options{})
	if err != nil {
		return err
	}
	return out.SetPattern(pattern.Projection, dataset.Single)
}

func (s *stopper) ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error) {
	s.stop()
	return []*ndarray.Array{frames[0].Clone()}, nil
}

type failer struct {
	stopper
}

func (f *failer) ProcessFrames(frames []*ndarray.Array) ([]*ndarray.Array, error) {
	return nil, fmt.Errorf("detector saturated")
}

func TestRunStop(t *testing.T) {
	plugins := builtin.NewRegistry()
	var r *Runner
	err := plugins.Register(plugin.Registration{Name: "stopper", Factory: func(plugin.Params) (plugin.Plugin, error) {
		return &stopper{stop: func() { r.Stop() }}, nil
	}})
	if err != nil {
		t.Fatal(err)
	}
	r, store, rec := newRunner(t, 1, plugins)
	tomoData, err := Synthetic(store, "tomo", []int{5, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	list := &process.List{Plugins: []process.Entry{
		{Name: "stopper", OutDatasets: []string{"copy"}},
		{Name: "noop", InDatasets: []string{"copy"}},
	}}
	res, err := r.Run(context.Background(), list, []*dataset.Dataset{tomoData})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stopped || res.Completed != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if n := testutil.ToFloat64(r.Metrics.Groups.WithLabelValues("stopper")); n != 1 {
		t.Errorf("expected 1 group before stopping, got %v", n)
	}
	if n := testutil.ToFloat64(r.Metrics.Groups.WithLabelValues("noop")); n != 0 {
		t.Errorf("stage after stop ran %v groups", n)
	}
	kinds := rec.kinds()
	if kinds[len(kinds)-1] != RunStopped {
		t.Errorf("unexpected events %v", kinds)
	}
	if tomoData.State() != dataset.Finalized {
		t.Errorf("input left in state %s", tomoData.State())
	}
}

func TestRunCancelled(t *testing.T) {
	r, store, _ := newRunner(t, 2, builtin.NewRegistry())
	tomoData, err := Synthetic(store, "tomo", []int{3, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Run(ctx, &process.List{Plugins: []process.Entry{{Name: "noop"}}}, []*dataset.Dataset{tomoData})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stopped || res.Completed != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRunFailure(t *testing.T) {
	plugins := builtin.NewRegistry()
	err := plugins.Register(plugin.Registration{Name: "failer", Factory: func(plugin.Params) (plugin.Plugin, error) {
		return &failer{}, nil
	}})
	if err != nil {
		t.Fatal(err)
	}
	r, store, rec := newRunner(t, 4, plugins)
	tomoData, err := Synthetic(store, "tomo", []int{8, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	list := &process.List{Plugins: []process.Entry{
		{Name: "noop"},
		{Name: "failer", ID: "flatfield", OutDatasets: []string{"corrected"}},
	}}
	res, err := r.Run(context.Background(), list, []*dataset.Dataset{tomoData})
	if err == nil {
		t.Fatal("expected plugin failure")
	}
	if !strings.Contains(err.Error(), "flatfield (failer)") || !strings.Contains(err.Error(), "detector saturated") {
		t.Errorf("error does not name the plugin: %v", err)
	}
	if res.Completed != 1 {
		t.Errorf("expected 1 completed stage, got %d", res.Completed)
	}
	kinds := rec.kinds()
	if kinds[len(kinds)-1] != RunFailed {
		t.Errorf("unexpected events %v", kinds)
	}
}

func TestRunChecksBeforeAllocating(t *testing.T) {
	r, store, _ := newRunner(t, 2, builtin.NewRegistry())
	tomoData, err := Synthetic(store, "tomo", []int{4, 3, 2})
	if err != nil {
		t.Fatal(err)
	}
	list := &process.List{Plugins: []process.Entry{
		{Name: "noop", OutDatasets: []string{"copy"}},
		{Name: "mean_projection", Params: map[string]interface{}{"axis": 5}, InDatasets: []string{"copy"}},
	}}
	if _, err := r.Run(context.Background(), list, []*dataset.Dataset{tomoData}); err == nil {
		t.Fatal("expected setup error for bad axis")
	}
	if names := store.Names(); len(names) != 1 || names[0] != "tomo" {
		t.Errorf("arrays allocated before failed check: %v", names)
	}
	if tomoData.State() != dataset.Populated {
		t.Errorf("input should be untouched by a failed check, is %s", tomoData.State())
	}
}

func TestRunBrokenChain(t *testing.T) {
	r, store, _ := newRunner(t, 1, builtin.NewRegistry())
	tomoData, err := Synthetic(store, "tomo", []int{2, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	list := &process.List{Plugins: []process.Entry{
		{Name: "basic_operations", Params: map[string]interface{}{"operations": []string{"tomo + dark"}}},
	}}
	_, err = r.Run(context.Background(), list, []*dataset.Dataset{tomoData})
	var broken *process.BrokenChainError
	if !errors.As(err, &broken) {
		t.Fatalf("expected broken chain error, got %v", err)
	}
}

func TestSyntheticAndShape(t *testing.T) {
	if _, err := ParseShape("91x0x160"); err == nil {
		t.Error("expected error for zero extent")
	}
	shape, err := ParseShape("91x135x160")
	if err != nil || len(shape) != 3 || shape[0] != 91 || shape[2] != 160 {
		t.Errorf("got %v, %v", shape, err)
	}
	store := memory.New()
	ds, err := LoadInput(store, "synthetic:3x4x5")
	if err != nil {
		t.Fatal(err)
	}
	if ds.Name() != InputName || !ds.Patterns().Has(pattern.Projection) || !ds.Patterns().Has(pattern.Sinogram) {
		t.Errorf("unexpected synthetic dataset %s with patterns %v", ds, ds.Patterns().Names())
	}
	v, err := ds.Read(ndarray.Index{ndarray.At(2), ndarray.At(3), ndarray.At(4)})
	if err != nil {
		t.Fatal(err)
	}
	if v.Data()[0] != 59 {
		t.Errorf("expected ramp value 59, got %v", v.Data()[0])
	}
	if _, err := LoadInput(store, "data.tiff"); err == nil {
		t.Error("expected error for unsupported input")
	}
	if _, err := Synthetic(store, "flat", []int{4, 4}); err == nil {
		t.Error("expected error for 2D synthetic data")
	}
}

func TestRunWithPreview(t *testing.T) {
	r, store, _ := newRunner(t, 2, builtin.NewRegistry())
	tomoData, err := Synthetic(store, "tomo", []int{6, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	if err := ApplyPreview(tomoData, []string{"0:end:2", "1:3", ":"}); err != nil {
		t.Fatal(err)
	}
	list := &process.List{Plugins: []process.Entry{
		{Name: "basic_operations", Params: map[string]interface{}{"operations": []string{"tomo * 2"}},
			InDatasets: []string{"tomo"}, OutDatasets: []string{"double"}},
		{Name: "mean_projection", Params: map[string]interface{}{"axis": 0},
			InDatasets: []string{"double"}, OutDatasets: []string{"mean"}},
	}}
	res, err := r.Run(context.Background(), list, []*dataset.Dataset{tomoData})
	if err != nil {
		t.Fatal(err)
	}

	array, err := store.OpenArray(res.Arrays["double"])
	if err != nil {
		t.Fatal(err)
	}
	if shape := array.Metadata().Shape; len(shape) != 3 || shape[0] != 3 || shape[1] != 2 || shape[2] != 5 {
		t.Fatalf("expected previewed shape [3 2 5], got %v", shape)
	}
	got, err := array.Read(all(3))
	if err != nil {
		t.Fatal(err)
	}
	ramp := ndarray.Ramp(6, 4, 5)
	ndarray.ForEach([]int{3, 2, 5}, func(pos []int) {
		want := 2 * ramp.At(2*pos[0], 1+pos[1], pos[2])
		if v := got.At(pos...); v != want {
			t.Errorf("double%v is %v, want %v", pos, v, want)
		}
	})

	array, err = store.OpenArray(res.Arrays["mean"])
	if err != nil {
		t.Fatal(err)
	}
	mean, err := array.Read(all(2))
	if err != nil {
		t.Fatal(err)
	}
	if !tomo.IntsEqual(mean.Shape(), []int{2, 5}) || mean.At(0, 0) != 90 {
		t.Errorf("mean of previewed projections: shape %v, first value %v, want [2 5] and 90", mean.Shape(), mean.At(0, 0))
	}
}
