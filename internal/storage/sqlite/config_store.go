package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/focusmunk/focusmunkd/internal/storage"
)

type configStore struct {
	db *sql.DB
}

func (s *configStore) Get(ctx context.Context, id string) (*storage.Config, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM configs WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO configs (id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		cfg.ID, data,
	)
	if err != nil {
		// The only constraint on the table is the primary key.
		if isConstraintViolation(err) {
			return storage.ErrConflict
		}
		return err
	}
	return nil
}

// Update runs fn inside a single SQL transaction. The pool is limited to
// one connection, so the read and write commit as one serialized unit.
func (s *configStore) Update(ctx context.Context, id string, fn func(*storage.Config) error) (*storage.Config, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var data []byte
	if err := tx.QueryRowContext(ctx, "SELECT data FROM configs WHERE id = ?", id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return nil, err
	}

	if err := fn(cfg); err != nil {
		return nil, err
	}

	out, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE configs SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		out, id,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *configStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM configs WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *configStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM configs").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func parseConfig(data []byte) (*storage.Config, error) {
	var cfg storage.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

func isConstraintViolation(err error) bool {
	// modernc.org/sqlite reports SQLITE_CONSTRAINT errors by message; we
	// avoid depending on driver-internal error types.
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}
