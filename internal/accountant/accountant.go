// Package accountant is the service layer binding storage, the budget
// state machine, the password gate and metrics. Every operation that
// reads or mutates budget state runs the rollover-and-accrue transition
// inside the store's atomic read-modify-write, so accrual is never lost
// and never double-counted across concurrent requests.
package accountant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/focusmunk/focusmunkd/internal/auth"
	"github.com/focusmunk/focusmunkd/internal/budget"
	"github.com/focusmunk/focusmunkd/internal/metrics"
	"github.com/focusmunk/focusmunkd/internal/storage"
)

var (
	// ErrUnauthorized is returned when the password gate failed for an
	// operation that requires it.
	ErrUnauthorized = errors.New("accountant: password verification failed")

	// ErrInvalidDuration is returned for a non-positive disable duration.
	ErrInvalidDuration = errors.New("accountant: disable duration must be positive")
)

// maxIDAttempts bounds config ID regeneration on collision.
const maxIDAttempts = 10

// Service implements the configuration and budget operations.
type Service struct {
	store  storage.Store
	clock  budget.Clock
	logger zerolog.Logger
}

// New creates a new accountant service.
func New(store storage.Store, clock budget.Clock, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		clock:  clock,
		logger: logger.With().Str("component", "accountant").Logger(),
	}
}

// CreateRequest carries the fields for a new configuration.
type CreateRequest struct {
	Password         string
	Whitelist        []string
	YouTubeKeywords  []string
	YouTubeCreators  []string
	DailyFreeMinutes map[string]int
}

// CreateConfig creates a new configuration with a freshly generated ID,
// regenerating on the (unlikely) ID collision.
func (s *Service) CreateConfig(ctx context.Context, req CreateRequest) (*storage.Config, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	rec := budget.NewRecord()
	rec.SetAllowanceMinutes(req.DailyFreeMinutes)

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := auth.NewConfigID()
		if err != nil {
			return nil, err
		}

		cfg := storage.Config{
			ID:              id,
			PasswordHash:    hash,
			Whitelist:       req.Whitelist,
			YouTubeKeywords: req.YouTubeKeywords,
			YouTubeCreators: req.YouTubeCreators,
			Budget:          rec,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		cfg.Normalize()

		err = s.store.Configs().Create(ctx, cfg)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create config: %w", err)
		}

		metrics.ConfigsCreated.Inc()
		s.logger.Info().Str("config_id", id).Msg("Configuration created")
		return &cfg, nil
	}

	return nil, fmt.Errorf("create config: could not generate a unique ID after %d attempts", maxIDAttempts)
}

// GetView runs the budget transition, persists it and returns the
// current configuration. This is the polling path: the extension calls
// it on every sync, so the transition must be idempotent at an instant.
func (s *Service) GetView(ctx context.Context, id string) (*storage.Config, budget.View, error) {
	now := s.clock.Now()

	// The update fn may run more than once under optimistic concurrency;
	// observations are taken from the last run only.
	var (
		view      budget.View
		consumed  int64
		exhausted bool
	)
	cfg, err := s.store.Configs().Update(ctx, id, func(c *storage.Config) error {
		before := c.Budget
		view = c.Budget.View(now)
		consumed = consumedDelta(before, c.Budget)
		exhausted = before.Active() && !c.Budget.Active()
		return nil
	})
	if err != nil {
		return nil, budget.View{}, err
	}

	s.observe(consumed, exhausted)
	return cfg, view, nil
}

// ConfigExists reports whether a configuration exists without running
// the budget transition.
func (s *Service) ConfigExists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Configs().Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// VerifyPassword reports whether the password matches the stored hash.
func (s *Service) VerifyPassword(ctx context.Context, id, password string) (bool, error) {
	cfg, err := s.store.Configs().Get(ctx, id)
	if err != nil {
		return false, err
	}
	ok := auth.VerifyPassword(password, cfg.PasswordHash)
	if !ok {
		metrics.PasswordFailures.Inc()
	}
	return ok, nil
}

// ChangePassword replaces the stored password hash. The caller supplies
// authOK from the password gate.
func (s *Service) ChangePassword(ctx context.Context, id, newPassword string, authOK bool) error {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	_, err = s.store.Configs().Update(ctx, id, func(c *storage.Config) error {
		if !authOK {
			return ErrUnauthorized
		}
		c.PasswordHash = hash
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("config_id", id).Msg("Password changed")
	return nil
}

// UpdateRequest carries a partial configuration update. Nil fields are
// left untouched.
type UpdateRequest struct {
	Whitelist        *[]string
	YouTubeKeywords  *[]string
	YouTubeCreators  *[]string
	DailyFreeMinutes *map[string]int
}

// UpdateConfig applies a partial update (filter lists, weekly allowance
// in whole minutes). The budget transition runs before persisting so
// the returned view is current.
func (s *Service) UpdateConfig(ctx context.Context, id string, req UpdateRequest, authOK bool) (*storage.Config, budget.View, error) {
	now := s.clock.Now()

	var (
		view      budget.View
		consumed  int64
		exhausted bool
	)
	cfg, err := s.store.Configs().Update(ctx, id, func(c *storage.Config) error {
		if !authOK {
			return ErrUnauthorized
		}
		if req.Whitelist != nil {
			c.Whitelist = *req.Whitelist
		}
		if req.YouTubeKeywords != nil {
			c.YouTubeKeywords = *req.YouTubeKeywords
		}
		if req.YouTubeCreators != nil {
			c.YouTubeCreators = *req.YouTubeCreators
		}
		if req.DailyFreeMinutes != nil {
			c.Budget.SetAllowanceMinutes(*req.DailyFreeMinutes)
		}

		before := c.Budget
		view = c.Budget.View(now)
		consumed = consumedDelta(before, c.Budget)
		exhausted = before.Active() && !c.Budget.Active()

		c.Normalize()
		c.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return nil, budget.View{}, err
	}

	s.observe(consumed, exhausted)
	s.logger.Debug().Str("config_id", id).Msg("Configuration updated")
	return cfg, view, nil
}

// EditAllowance replaces the weekly allowance with per-day minute values.
func (s *Service) EditAllowance(ctx context.Context, id string, perDayMinutes map[string]int, authOK bool) (budget.View, error) {
	_, view, err := s.UpdateConfig(ctx, id, UpdateRequest{DailyFreeMinutes: &perDayMinutes}, authOK)
	return view, err
}

// StartSession begins a free time session. No password required.
func (s *Service) StartSession(ctx context.Context, id string) (budget.Status, error) {
	now := s.clock.Now()

	var status budget.Status
	_, err := s.store.Configs().Update(ctx, id, func(c *storage.Config) error {
		st, err := c.Budget.Start(now)
		if err != nil {
			return err
		}
		status = st
		c.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return budget.Status{}, err
	}

	metrics.SessionsStarted.Inc()
	s.logger.Info().Str("config_id", id).Int64("remaining", status.Remaining).Msg("Free time session started")
	return status, nil
}

// EndSession stops the active session, accruing its elapsed time first.
// Ending with no active session is a no-op that reports current state.
func (s *Service) EndSession(ctx context.Context, id string) (budget.Status, error) {
	now := s.clock.Now()

	var (
		status    budget.Status
		wasActive bool
		consumed  int64
		exhausted bool
	)
	_, err := s.store.Configs().Update(ctx, id, func(c *storage.Config) error {
		before := c.Budget
		wasActive = c.Budget.Active()

		// Accrue first so an already-exhausted session is distinguishable
		// from an explicit end.
		c.Budget.Apply(now)
		exhausted = wasActive && !c.Budget.Active()

		status = c.Budget.End(now)
		consumed = consumedDelta(before, c.Budget)
		c.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return budget.Status{}, err
	}

	s.observe(consumed, false)
	if wasActive {
		reason := metrics.EndReasonExplicit
		if exhausted {
			reason = metrics.EndReasonExhausted
			metrics.BudgetExhaustions.Inc()
		}
		metrics.SessionsEnded.WithLabelValues(reason).Inc()
		s.logger.Info().Str("config_id", id).Str("reason", reason).Msg("Free time session ended")
	}
	return status, nil
}

// TemporaryDisable suspends blocking until now plus the given number of
// hours. An active free time session is ended first via the accrual
// path, so used time is preserved.
func (s *Service) TemporaryDisable(ctx context.Context, id string, hours float64, authOK bool) (time.Time, error) {
	now := s.clock.Now().UTC()

	var (
		until     time.Time
		wasActive bool
		consumed  int64
	)
	_, err := s.store.Configs().Update(ctx, id, func(c *storage.Config) error {
		if !authOK {
			return ErrUnauthorized
		}
		if hours <= 0 {
			return ErrInvalidDuration
		}

		before := c.Budget
		wasActive = c.Budget.Active()
		c.Budget.End(now)
		consumed = consumedDelta(before, c.Budget)

		until = now.Add(time.Duration(hours * float64(time.Hour)))
		c.DisabledUntil = &until
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	s.observe(consumed, false)
	if wasActive {
		metrics.SessionsEnded.WithLabelValues(metrics.EndReasonDisable).Inc()
	}
	s.logger.Info().Str("config_id", id).Time("disabled_until", until).Msg("Blocking temporarily disabled")
	return until, nil
}

// CancelDisable clears the disable-until timestamp. No password required:
// re-enabling restrictions is always permitted.
func (s *Service) CancelDisable(ctx context.Context, id string) error {
	now := s.clock.Now().UTC()
	_, err := s.store.Configs().Update(ctx, id, func(c *storage.Config) error {
		c.DisabledUntil = nil
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("config_id", id).Msg("Temporary disable cancelled")
	return nil
}

// consumedDelta reports the seconds newly accrued by a transition. A
// rollover resets the counter, so only post-rollover usage counts then.
func consumedDelta(before, after budget.Record) int64 {
	var delta int64
	if before.LastResetDate != after.LastResetDate {
		delta = after.UsedToday
	} else {
		delta = after.UsedToday - before.UsedToday
	}
	if delta < 0 {
		return 0
	}
	return delta
}

func (s *Service) observe(consumed int64, exhausted bool) {
	if consumed > 0 {
		metrics.FreeSecondsConsumed.Add(float64(consumed))
	}
	if exhausted {
		metrics.BudgetExhaustions.Inc()
		metrics.SessionsEnded.WithLabelValues(metrics.EndReasonExhausted).Inc()
	}
}
