package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a plugin from its parameters.
type Factory func(params Params) (Plugin, error)

// Registration describes a plugin known to a registry.
type Registration struct {
	Name    string
	Version string
	Driver  Driver
	Kernel  Kernel
	Factory Factory
}

// Instance is a constructed plugin with its registration and parameters.
type Instance struct {
	Plugin
	Reg    Registration
	Params Params
}

// Registry holds the plugins available to a run.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Registration)}
}

// Register adds a plugin.  Names must be unique.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" || reg.Factory == nil {
		return fmt.Errorf("plugin registration needs a name and factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.plugins[reg.Name]; found {
		return fmt.Errorf("plugin %q already registered", reg.Name)
	}
	r.plugins[reg.Name] = reg
	return nil
}

// Lookup returns the registration of the named plugin.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, found := r.plugins[name]
	return reg, found
}

// New constructs the named plugin.
func (r *Registry) New(name string, params Params) (*Instance, error) {
	reg, found := r.Lookup(name)
	if !found {
		return nil, fmt.Errorf("no plugin %q registered, known plugins: %v", name, r.Names())
	}
	if params.Config == nil {
		params = NewParams(nil)
	}
	p, err := reg.Factory(params)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %v", name, err)
	}
	return &Instance{Plugin: p, Reg: reg, Params: params}, nil
}

// Names returns the sorted names of registered plugins.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns a chart of registered plugins and their versions.
func (r *Registry) Versions() string {
	text := "\nPlugins available to this executable:\n\n"
	writeLine := func(name, version, driver string) {
		text += fmt.Sprintf("%-20s   %-10s %s\n", name, version, driver)
	}
	writeLine("Name", "Version", "Driver")
	for _, name := range r.Names() {
		reg, _ := r.Lookup(name)
		writeLine(name, reg.Version, reg.Driver.String())
	}
	return text
}
