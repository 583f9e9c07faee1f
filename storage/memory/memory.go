// Package memory provides a thread-safe in-memory implementation of
// storage.Repository. Suitable for testing, demos, and single-process use.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/syncgate/tokenserver/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
type Repository struct {
	mu   sync.RWMutex
	data map[string]*storage.Assignment
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]*storage.Assignment)}
}

func (r *Repository) GetAssignment(_ context.Context, key string) (*storage.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return a.Clone(), nil
}

func (r *Repository) PutAssignment(_ context.Context, key string, a *storage.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = a.Clone()
	return nil
}

func (r *Repository) DeleteAssignment(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; !ok {
		return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	delete(r.data, key)
	return nil
}

func (r *Repository) ListAssignments(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (r *Repository) Check(_ context.Context) error {
	return nil
}
