package dataset

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Manager tracks the datasets available to the next plugin (in) and those
// created by the current plugin (out).
type Manager struct {
	mu       sync.Mutex
	in       map[string]*Dataset
	inOrder  []string
	out      map[string]*Dataset
	outOrder []string
}

func NewManager() *Manager {
	return &Manager{
		in:  make(map[string]*Dataset),
		out: make(map[string]*Dataset),
	}
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}

// AddInput makes ds available to the next plugin.
func (m *Manager) AddInput(ds *Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.in[ds.name]; found {
		return fmt.Errorf("input dataset %q already exists", ds.name)
	}
	m.in[ds.name] = ds
	m.inOrder = append(m.inOrder, ds.name)
	return nil
}

// AddOutput registers ds as created by the current plugin.
func (m *Manager) AddOutput(ds *Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.out[ds.name]; found {
		return fmt.Errorf("output dataset %q already exists", ds.name)
	}
	m.out[ds.name] = ds
	m.outOrder = append(m.outOrder, ds.name)
	return nil
}

// CreateOutput derives an output dataset from pred and registers it.
func (m *Manager) CreateOutput(name string, pred *Dataset, opts Options) (*Dataset, error) {
	ds, err := CreateLike(name, pred, opts)
	if err != nil {
		return nil, err
	}
	if err := m.AddOutput(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// In returns the named input dataset.
func (m *Manager) In(name string) (*Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, found := m.in[name]
	if !found {
		return nil, fmt.Errorf("no input dataset %q", name)
	}
	return ds, nil
}

// Out returns the named output dataset.
func (m *Manager) Out(name string) (*Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, found := m.out[name]
	if !found {
		return nil, fmt.Errorf("no output dataset %q", name)
	}
	return ds, nil
}

// InNames returns input dataset names in the order they were added.
func (m *Manager) InNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inOrder...)
}

// OutNames returns output dataset names in the order they were created.
func (m *Manager) OutNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outOrder...)
}

// Inputs returns the input datasets in order.
func (m *Manager) Inputs() []*Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	datasets := make([]*Dataset, len(m.inOrder))
	for i, name := range m.inOrder {
		datasets[i] = m.in[name]
	}
	return datasets
}

// retire completes prev.  If another held dataset shares its backing array,
// ownership of the array passes to that dataset instead of closing it.
func (m *Manager) retire(prev *Dataset) error {
	for _, ds := range m.in {
		if ds != prev && ds.State() != Finalized && ds.SharesArray(prev) {
			ds.takeOwnership(prev)
			break
		}
	}
	return prev.Complete()
}

// Retire completes ds, which m does not hold.  If a held dataset shares its
// backing array, ownership passes to that dataset instead of closing it.
func (m *Manager) Retire(ds *Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retire(ds)
}

// Reorganize moves the current plugin's outputs into the inputs of the next.
// Outputs marked for removal are completed and dropped along with any input
// of the same name.  Other outputs replace a same-named input, completing it
// unless both share a backing array.
func (m *Manager) Reorganize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	for _, name := range m.outOrder {
		ds := m.out[name]
		prev, found := m.in[name]
		if found {
			delete(m.in, name)
		}
		if ds.Removed() {
			err = multierr.Append(err, ds.Complete())
			if found {
				if prev != ds {
					err = multierr.Append(err, m.retire(prev))
				}
				m.inOrder = removeName(m.inOrder, name)
			}
			continue
		}
		m.in[name] = ds
		if !found {
			m.inOrder = append(m.inOrder, name)
		} else if prev != ds {
			err = multierr.Append(err, m.retire(prev))
		}
	}
	m.out = make(map[string]*Dataset)
	m.outOrder = nil
	return err
}

// CompleteAll completes every dataset still held, returning all failures.
func (m *Manager) CompleteAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	for _, name := range m.outOrder {
		err = multierr.Append(err, m.out[name].Complete())
	}
	for _, name := range m.inOrder {
		err = multierr.Append(err, m.in[name].Complete())
	}
	return err
}
