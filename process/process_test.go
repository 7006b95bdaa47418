package process

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janelia-flyem/tomoflow/chunking"
	"github.com/janelia-flyem/tomoflow/plugin/builtin"
)

const testList = `{
	"version": "1.0.0",
	"plugins": [
		{"name": "median_filter", "id": "denoise", "params": {"kernel_size": 3}},
		{"name": "noop", "active": false},
		{"name": "basic_operations", "params": {"operations": ["tomo * 2", "tomo - 1"]},
		 "out_datasets": ["double", "tmp"], "remove": ["tmp"]},
		{"name": "mean_projection", "in_datasets": ["double"], "out_datasets": ["mean"]}
	]
}`

func TestParse(t *testing.T) {
	l, err := Parse([]byte(testList))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Plugins) != 4 || l.Plugins[0].Label() != "denoise (median_filter)" {
		t.Errorf("bad list %+v", l)
	}
	if l.Plugins[1].IsActive() || !l.Plugins[0].IsActive() {
		t.Errorf("bad active flags")
	}

	bad := []string{
		`{"plugins": []}`,
		`{"version": "1.0.0", "plugins": [{"id": "x"}]}`,
		`{"version": "1.0.0", "plugins": [{"name": "noop", "colour": "red"}]}`,
		`{"version": "2.0.0", "plugins": []}`,
		`{"version": "1.1.0", "plugins": []}`,
		`{"version": "one", "plugins": []}`,
		`not json`,
	}
	for _, doc := range bad {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("expected error parsing %s", doc)
		}
	}
	if _, err := Parse([]byte(`{"version": "1.0.0", "plugins": []}`)); err != nil {
		t.Errorf("older compatible version rejected: %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	l, err := Parse([]byte(testList))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "process.json")
	if err := l.Save(path); err != nil {
		t.Fatal(err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Plugins) != len(l.Plugins) || again.Plugins[2].Remove[0] != "tmp" {
		t.Errorf("list changed on round trip: %+v", again)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestResolve(t *testing.T) {
	l, err := Parse([]byte(testList))
	if err != nil {
		t.Fatal(err)
	}
	stages, err := l.Resolve(builtin.NewRegistry(), []string{"tomo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 active stages, got %d", len(stages))
	}
	s := stages[0]
	if s.In[0] != "tomo" || s.Out[0] != "tomo" || s.Index != 0 {
		t.Errorf("bad defaults: %s", s)
	}
	if s := stages[1]; s.Index != 2 || len(s.In) != 1 || s.Out[1] != "tmp" {
		t.Errorf("bad stage: %s", s)
	}
	inst, err := stages[2].New()
	if err != nil {
		t.Fatal(err)
	}
	if inst.Name() != "mean_projection" {
		t.Errorf("bad instance %s", inst.Name())
	}
}

func TestBrokenChain(t *testing.T) {
	doc := `{"version": "1.0.0", "plugins": [{"name": "noop", "out_datasets": ["a", "b"]}]}`
	l, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.Resolve(builtin.NewRegistry(), []string{"tomo"})
	var broken *BrokenChainError
	if !errors.As(err, &broken) || broken.Kind != "output" || !strings.Contains(err.Error(), "broken plugin chain") {
		t.Errorf("expected broken chain error, got %v", err)
	}

	// Two inputs available but noop reads one.
	doc = `{"version": "1.0.0", "plugins": [{"name": "noop"}]}`
	l, _ = Parse([]byte(doc))
	if _, err = l.Resolve(builtin.NewRegistry(), []string{"a", "b"}); !errors.As(err, &broken) {
		t.Errorf("expected broken chain error, got %v", err)
	}

	doc = `{"version": "1.0.0", "plugins": [{"name": "noop", "in_datasets": ["x"]}]}`
	l, _ = Parse([]byte(doc))
	if _, err = l.Resolve(builtin.NewRegistry(), []string{"tomo"}); err == nil {
		t.Errorf("expected error for unavailable dataset")
	}

	doc = `{"version": "1.0.0", "plugins": [{"name": "unknown"}]}`
	l, _ = Parse([]byte(doc))
	if _, err = l.Resolve(builtin.NewRegistry(), []string{"tomo"}); err == nil {
		t.Errorf("expected error for unknown plugin")
	}
}

func TestNextPatterns(t *testing.T) {
	proj := chunking.Requirement{MaxFrames: 1, SliceDims: []int{0}, CoreDims: []int{1, 2}}
	sino := chunking.Requirement{MaxFrames: 4, SliceDims: []int{1}, CoreDims: []int{0, 2}}
	stages := []*Stage{
		{Out: []string{"a", "b", "c"}, Entry: Entry{Remove: []string{"c"}}},
		{In: []string{"x"}, Out: []string{"b"}, Reads: map[string]chunking.Requirement{"x": proj}},
		{In: []string{"a", "b"}, Out: []string{"y"}, Reads: map[string]chunking.Requirement{"a": sino, "b": proj, "c": proj}},
	}
	next := NextPatterns(stages, 0)
	if len(next) != 1 {
		t.Fatalf("expected only dataset a to have a next reader, got %v", next)
	}
	if req := next["a"]; req.MaxFrames != 4 || req.SliceDims[0] != 1 {
		t.Errorf("bad requirement %+v", req)
	}
	if next := NextPatterns(stages, 2); len(next) != 0 {
		t.Errorf("last stage has no next reader, got %v", next)
	}
}
