package bolt

import (
	"context"
	"fmt"

	"github.com/focusmunk/focusmunkd/internal/storage"
	"go.etcd.io/bbolt"
)

type configStore struct {
	db *bbolt.DB
}

func (s *configStore) Get(ctx context.Context, id string) (*storage.Config, error) {
	var cfg *storage.Config
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketConfigs))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		var result storage.Config
		if err := unmarshal(value, &result); err != nil {
			return err
		}
		result.Normalize()
		cfg = &result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *configStore) Create(ctx context.Context, cfg storage.Config) error {
	data, err := marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketConfigs))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketConfigs)
		}
		if b.Get([]byte(cfg.ID)) != nil {
			return storage.ErrConflict
		}
		return b.Put([]byte(cfg.ID), data)
	})
}

// Update runs fn inside a single bbolt write transaction. bbolt serializes
// writers, so the read, mutation and write commit as one unit.
func (s *configStore) Update(ctx context.Context, id string, fn func(*storage.Config) error) (*storage.Config, error) {
	var updated *storage.Config
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketConfigs))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}

		var cfg storage.Config
		if err := unmarshal(value, &cfg); err != nil {
			return err
		}
		cfg.Normalize()

		if err := fn(&cfg); err != nil {
			return err
		}

		data, err := marshal(cfg)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), data); err != nil {
			return err
		}
		updated = &cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *configStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketConfigs))
		if b == nil {
			return storage.ErrNotFound
		}
		if b.Get([]byte(id)) == nil {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *configStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketConfigs))
		if b == nil {
			return nil
		}
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}
