package process

import (
	"fmt"

	"github.com/janelia-flyem/tomoflow/chunking"
	"github.com/janelia-flyem/tomoflow/plugin"
)

// Stage is an active entry of a process list with its dataset names resolved.
type Stage struct {
	Index int
	Entry Entry
	Reg   plugin.Registration
	In    []string
	Out   []string

	// Reads records how the stage accesses each input dataset.  It is filled
	// in when the stage is set up.
	Reads map[string]chunking.Requirement
}

// New constructs a fresh instance of the stage's plugin.
func (s *Stage) New() (*plugin.Instance, error) {
	params := plugin.NewParams(s.Entry.Params)
	p, err := s.Reg.Factory(params)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %v", s.Entry.Label(), err)
	}
	return &plugin.Instance{Plugin: p, Reg: s.Reg, Params: params}, nil
}

func (s *Stage) String() string {
	return fmt.Sprintf("stage %d %s %v -> %v", s.Index, s.Entry.Label(), s.In, s.Out)
}

// BrokenChainError is returned when the datasets named for a plugin do not
// match the number it reads or writes.
type BrokenChainError struct {
	Plugin string
	Kind   string
	Want   int
	Names  []string
}

func (e *BrokenChainError) Error() string {
	return fmt.Sprintf("broken plugin chain: plugin %s needs %d %s datasets, got %v; name them in the process list",
		e.Plugin, e.Want, e.Kind, e.Names)
}

// Resolve checks every active entry against the registry and resolves its
// dataset names, starting from the named input datasets.
func (l *List) Resolve(r *plugin.Registry, inputs []string) ([]*Stage, error) {
	avail := append([]string(nil), inputs...)
	has := func(name string) bool {
		for _, a := range avail {
			if a == name {
				return true
			}
		}
		return false
	}
	var stages []*Stage
	for i, e := range l.Plugins {
		if !e.IsActive() {
			continue
		}
		inst, err := r.New(e.Name, plugin.NewParams(e.Params))
		if err != nil {
			return nil, fmt.Errorf("process list entry %d: %v", i, err)
		}
		in := e.InDatasets
		if len(in) == 0 {
			in = avail
		}
		out := e.OutDatasets
		if len(out) == 0 {
			out = in
		}
		if len(in) != inst.NInputs() {
			return nil, &BrokenChainError{Plugin: e.Label(), Kind: "input", Want: inst.NInputs(), Names: in}
		}
		if len(out) != inst.NOutputs() {
			return nil, &BrokenChainError{Plugin: e.Label(), Kind: "output", Want: inst.NOutputs(), Names: out}
		}
		for _, name := range in {
			if !has(name) {
				return nil, fmt.Errorf("plugin %s reads dataset %q, which is not available; have %v", e.Label(), name, avail)
			}
		}
		for _, name := range e.Remove {
			found := false
			for _, o := range out {
				found = found || o == name
			}
			if !found {
				return nil, fmt.Errorf("plugin %s removes %q, which is not one of its outputs %v", e.Label(), name, out)
			}
		}
		stages = append(stages, &Stage{
			Index: i,
			Entry: e,
			Reg:   inst.Reg,
			In:    append([]string(nil), in...),
			Out:   append([]string(nil), out...),
			Reads: make(map[string]chunking.Requirement),
		})
		for _, name := range out {
			if !has(name) {
				avail = append(avail, name)
			}
		}
		for _, name := range e.Remove {
			for j, a := range avail {
				if a == name {
					avail = append(avail[:j], avail[j+1:]...)
					break
				}
			}
		}
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("process list has no active plugins")
	}
	return stages, nil
}

// NextPatterns returns, for each output of stage i, how the next stage that
// reads it accesses it.  Outputs that are removed, overwritten before being
// read, or never read again are absent.
func NextPatterns(stages []*Stage, i int) map[string]chunking.Requirement {
	next := make(map[string]chunking.Requirement)
	for _, name := range stages[i].Out {
		if contains(stages[i].Entry.Remove, name) {
			continue
		}
		for _, s := range stages[i+1:] {
			if req, found := s.Reads[name]; found {
				next[name] = req
				break
			}
			if contains(s.Out, name) {
				break
			}
		}
	}
	return next
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
