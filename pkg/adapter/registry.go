package adapter

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Registry is an immutable catalog mapping adapter ids to the single shared
// instance of each variant. It is built once and then only read.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry builds a registry from an ordered list of adapters. Ids must be
// non-empty, free of surrounding whitespace and unique.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		order:    make([]string, 0, len(adapters)),
	}
	for _, a := range adapters {
		if a == nil {
			return nil, errors.New("adapter registry: nil adapter")
		}
		id := a.ID()
		if strings.TrimSpace(id) == "" {
			return nil, errors.Errorf("adapter registry: adapter %T has empty id", a)
		}
		if strings.TrimSpace(id) != id {
			return nil, errors.Errorf("adapter registry: adapter id %q has surrounding whitespace", id)
		}
		if _, exists := r.adapters[id]; exists {
			return nil, errors.Errorf("adapter registry: adapter %s already registered", id)
		}
		r.adapters[id] = a
		r.order = append(r.order, id)
		log.Debug().Str("adapter", id).Msg("registered adapter")
	}
	return r, nil
}

// Get returns the adapter registered under id.
func (r *Registry) Get(id string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
