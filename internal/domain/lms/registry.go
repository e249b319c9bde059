package lms

import (
	"fmt"

	"softcascade/internal/metadata"
)

// NewRegistry builds the Reference Edge registry for the schema and checks
// that it can be ordered.
func NewRegistry() (*metadata.Registry, error) {
	r := metadata.NewRegistry()
	if err := r.RegisterModels(Models()...); err != nil {
		return nil, fmt.Errorf("register lms models: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry() *metadata.Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}
