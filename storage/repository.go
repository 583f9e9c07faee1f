// Package storage provides the node-assignment lookup store: the mapping
// from an account's lookup key to the storage node and node-scoped numeric
// id it should use.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no assignment exists for a lookup key.
var ErrNotFound = errors.New("assignment not found")

// Assignment maps an account to its storage node. It is immutable for the
// duration of one request; the issuing flow never caches it across requests.
type Assignment struct {
	// Node is the storage node endpoint URL.
	Node string `json:"node"`
	// UID is the numeric user id scoped to that node.
	UID int64 `json:"uid"`
	// ClientState is the opaque client-state fingerprint.
	ClientState []byte `json:"client_state"`
	// KeysChangedAt is the monotonic key-rotation counter, absent until the
	// account has rotated keys at least once.
	KeysChangedAt *uint64 `json:"keys_changed_at,omitempty"`
	// Generation is the default generation number for the account.
	Generation uint64 `json:"generation"`
}

// Clone returns a deep copy so callers can hand out assignments without
// sharing mutable state with the store.
func (a *Assignment) Clone() *Assignment {
	if a == nil {
		return nil
	}
	c := *a
	c.ClientState = append([]byte(nil), a.ClientState...)
	if a.KeysChangedAt != nil {
		v := *a.KeysChangedAt
		c.KeysChangedAt = &v
	}
	return &c
}

// Repository defines the interface for node-assignment storage.
type Repository interface {
	GetAssignment(ctx context.Context, key string) (*Assignment, error)
	PutAssignment(ctx context.Context, key string, a *Assignment) error
	DeleteAssignment(ctx context.Context, key string) error
	ListAssignments(ctx context.Context) ([]string, error)
	// Check probes the backing store for the heartbeat endpoint.
	Check(ctx context.Context) error
}
