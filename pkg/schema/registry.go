package schema

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ajitpratap0/sweepline/pkg/errors"
)

// Experiment is a named experiment kind: the schema its runs are extracted
// with and a short description for the CLI.
type Experiment struct {
	Name        string
	Description string
	Schema      *Schema
}

// Registry maps experiment kinds to schemas. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{experiments: make(map[string]*Experiment)}
}

// DefaultRegistry returns a registry holding the built-in experiment kinds
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(&Experiment{Name: "default", Description: "schedule count and elapsed time", Schema: Default})
	r.MustRegister(&Experiment{Name: "coverage", Description: "Line-Up violations vs. Operation-Counting coverage", Schema: Coverage})
	r.MustRegister(&Experiment{Name: "runtime", Description: "per-mode running time for overhead reports", Schema: Runtime})
	return r
}

// Register adds an experiment. Names must be unique.
func (r *Registry) Register(e *Experiment) error {
	if e == nil || e.Name == "" || e.Schema == nil {
		return errors.New(errors.ErrorTypeValidation, "experiment needs a name and a schema")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experiments[e.Name]; ok {
		return errors.New(errors.ErrorTypeValidation, "experiment already registered").
			WithDetail("experiment", e.Name)
	}
	r.experiments[e.Name] = e
	return nil
}

// MustRegister is Register for built-ins
func (r *Registry) MustRegister(e *Experiment) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Lookup returns the experiment registered under name. Names of the form
// "depth:N" resolve to the coverage-depth family for depths 0..N without
// prior registration.
func (r *Registry) Lookup(name string) (*Experiment, error) {
	r.mu.RLock()
	e, ok := r.experiments[name]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	if rest, found := strings.CutPrefix(name, "depth:"); found {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid coverage depth").
				WithDetail("experiment", name)
		}
		s, err := CoverageDepth(n)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid coverage depth").
				WithDetail("experiment", name)
		}
		return &Experiment{
			Name:        name,
			Description: "coverage with per-depth Operation-Counting columns",
			Schema:      s,
		}, nil
	}

	return nil, errors.New(errors.ErrorTypeNotFound, "unknown experiment").
		WithDetail("experiment", name)
}

// List returns registered experiments sorted by name
func (r *Registry) List() []*Experiment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Experiment, 0, len(r.experiments))
	for _, e := range r.experiments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
