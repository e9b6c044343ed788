package memory

import (
	"context"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

// Registry exposes the memory repositories through repositories.Registry.
type Registry struct {
	*Store
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wraps store, creating an empty one when nil.
func NewRegistry(store *Store) (*Registry, error) {
	if store == nil {
		store = NewStore()
	}
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}})
	if err != nil {
		return nil, err
	}
	return &Registry{Store: store, health: health}, nil
}

func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

func (r *Registry) Close(context.Context) error {
	return nil
}
