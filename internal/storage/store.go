package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrConflict is returned when creating a record whose ID already exists,
// or when an atomic update loses a concurrent write race.
var ErrConflict = errors.New("storage: record conflict")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Configs() ConfigStore
}

// ConfigStore manages focusmunk configuration records.
//
// Update must execute the supplied function as a single atomic
// read-modify-write: two concurrent updates of the same configuration
// must never both observe the same starting state and both commit. An
// error returned by fn aborts the update and persists nothing.
type ConfigStore interface {
	Get(ctx context.Context, id string) (*Config, error)
	Create(ctx context.Context, cfg Config) error
	Update(ctx context.Context, id string, fn func(*Config) error) (*Config, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
