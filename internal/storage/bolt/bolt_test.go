package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/focusmunk/focusmunkd/internal/budget"
	"github.com/focusmunk/focusmunkd/internal/storage"
)

func TestConfigStoreCreateGet(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	cfg := testConfig("ABCD-1234")
	if err := store.Configs().Create(context.Background(), cfg); err != nil {
		t.Fatalf("create config: %v", err)
	}

	got, err := store.Configs().Get(context.Background(), "ABCD-1234")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got.PasswordHash != cfg.PasswordHash {
		t.Errorf("expected password hash %q, got %q", cfg.PasswordHash, got.PasswordHash)
	}
	if got.Budget.Weekly["mon"] != 600 {
		t.Errorf("expected mon allowance 600, got %d", got.Budget.Weekly["mon"])
	}
	if got.Whitelist == nil {
		t.Error("expected whitelist normalized to empty slice")
	}
}

func TestConfigStoreCreateConflict(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	cfg := testConfig("ABCD-1234")
	if err := store.Configs().Create(context.Background(), cfg); err != nil {
		t.Fatalf("create config: %v", err)
	}
	if err := store.Configs().Create(context.Background(), cfg); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate create, got %v", err)
	}
}

func TestConfigStoreGetMissing(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	if _, err := store.Configs().Get(context.Background(), "ZZZZ-0000"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfigStoreUpdate(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	if err := store.Configs().Create(context.Background(), testConfig("ABCD-1234")); err != nil {
		t.Fatalf("create config: %v", err)
	}

	updated, err := store.Configs().Update(context.Background(), "ABCD-1234", func(c *storage.Config) error {
		c.Budget.UsedToday = 42
		return nil
	})
	if err != nil {
		t.Fatalf("update config: %v", err)
	}
	if updated.Budget.UsedToday != 42 {
		t.Errorf("expected returned record updated, got %d", updated.Budget.UsedToday)
	}

	got, err := store.Configs().Get(context.Background(), "ABCD-1234")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got.Budget.UsedToday != 42 {
		t.Errorf("expected persisted UsedToday 42, got %d", got.Budget.UsedToday)
	}
}

func TestConfigStoreUpdateAbortPersistsNothing(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	if err := store.Configs().Create(context.Background(), testConfig("ABCD-1234")); err != nil {
		t.Fatalf("create config: %v", err)
	}

	boom := errors.New("boom")
	_, err := store.Configs().Update(context.Background(), "ABCD-1234", func(c *storage.Config) error {
		c.Budget.UsedToday = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error surfaced, got %v", err)
	}

	got, err := store.Configs().Get(context.Background(), "ABCD-1234")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got.Budget.UsedToday != 0 {
		t.Errorf("aborted update must not persist, got UsedToday %d", got.Budget.UsedToday)
	}
}

func TestConfigStoreDeleteAndCount(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	for _, id := range []string{"AAAA-0001", "AAAA-0002"} {
		if err := store.Configs().Create(context.Background(), testConfig(id)); err != nil {
			t.Fatalf("create config %s: %v", id, err)
		}
	}

	count, err := store.Configs().Count(context.Background())
	if err != nil {
		t.Fatalf("count configs: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 configs, got %d", count)
	}

	if err := store.Configs().Delete(context.Background(), "AAAA-0001"); err != nil {
		t.Fatalf("delete config: %v", err)
	}
	if err := store.Configs().Delete(context.Background(), "AAAA-0001"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	count, err = store.Configs().Count(context.Background())
	if err != nil {
		t.Fatalf("count configs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 config after delete, got %d", count)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "focusmunk.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func testConfig(id string) storage.Config {
	rec := budget.NewRecord()
	rec.Weekly["mon"] = 600
	now := time.Now().UTC()
	return storage.Config{
		ID:           id,
		PasswordHash: "$2a$12$examplehash",
		Budget:       rec,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
