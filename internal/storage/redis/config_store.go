package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/focusmunk/focusmunkd/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	configKeyPrefix = "focusmunk:config:"
	configIndexKey  = "focusmunk:configs"

	// maxUpdateRetries bounds the optimistic retry loop when a WATCHed
	// key changes underneath an update.
	maxUpdateRetries = 5
)

type configStore struct {
	client *redis.Client
}

func configKey(id string) string {
	return configKeyPrefix + id
}

func (s *configStore) Get(ctx context.Context, id string) (*storage.Config, error) {
	data, err := s.client.Get(ctx, configKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return parseConfig(data)
}

func (s *configStore) Create(ctx context.Context, cfg storage.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	script := redis.NewScript(createConfigScript)
	keys := []string{configKey(cfg.ID), configIndexKey}

	created, err := script.Run(ctx, s.client, keys, cfg.ID, data).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return storage.ErrConflict
	}
	return nil
}

// Update implements the atomic read-modify-write with a WATCH-based
// compare-and-swap: if another writer commits between the read and the
// transaction, the attempt is retried against the fresh state.
func (s *configStore) Update(ctx context.Context, id string, fn func(*storage.Config) error) (*storage.Config, error) {
	key := configKey(id)
	var updated *storage.Config

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return storage.ErrNotFound
			}
			return err
		}

		cfg, err := parseConfig(data)
		if err != nil {
			return err
		}

		if err := fn(cfg); err != nil {
			return err
		}

		out, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = cfg
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, storage.ErrConflict
}

func (s *configStore) Delete(ctx context.Context, id string) error {
	script := redis.NewScript(deleteConfigScript)
	keys := []string{configKey(id), configIndexKey}

	deleted, err := script.Run(ctx, s.client, keys, id).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *configStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.SCard(ctx, configIndexKey).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func parseConfig(data []byte) (*storage.Config, error) {
	var cfg storage.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}
