// Package bbolt provides a BBolt-backed node-assignment store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/syncgate/tokenserver/storage"
)

var assignmentsBucket = []byte("assignments")

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(assignmentsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating assignments bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns
// a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetAssignment(_ context.Context, key string) (*storage.Assignment, error) {
	var a storage.Assignment
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(assignmentsBucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) PutAssignment(_ context.Context, key string, a *storage.Assignment) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(assignmentsBucket).Put([]byte(key), data)
	})
}

func (s *Store) DeleteAssignment(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(assignmentsBucket)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) ListAssignments(_ context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(assignmentsBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (s *Store) Check(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(assignmentsBucket) == nil {
			return fmt.Errorf("assignments bucket missing")
		}
		return nil
	})
}
