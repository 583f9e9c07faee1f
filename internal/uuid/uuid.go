// Package uuid wraps UUID generation so callers don't depend on the
// underlying library directly.
package uuid

import "github.com/google/uuid"

// New returns a random (v4) UUID string.
func New() string {
	return uuid.NewString()
}
