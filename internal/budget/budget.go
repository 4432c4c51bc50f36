// Package budget implements the free-time budget accountant: a weekly
// per-day allowance consumed by explicit sessions, with lazy accrual,
// automatic day rollover and automatic termination at exhaustion.
//
// All accounting is computed on demand from wall-clock time; there are no
// background timers. Dates and day-of-week lookups use UTC.
package budget

import (
	"errors"
	"time"
)

const dateLayout = "2006-01-02"

var (
	// ErrSessionActive is returned when starting a session while one is running.
	ErrSessionActive = errors.New("budget: free time session already active")

	// ErrBudgetExhausted is returned when starting a session with no time remaining.
	ErrBudgetExhausted = errors.New("budget: no free time remaining today")
)

// DayKeys lists the weekly allowance keys in week order, Monday first.
// These match the wire format used by the extension.
var DayKeys = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// Weekly maps a day-of-week key (mon..sun) to an allowance in seconds.
type Weekly map[string]int64

// ZeroWeekly returns a weekly allowance with every day set to zero.
func ZeroWeekly() Weekly {
	w := make(Weekly, len(DayKeys))
	for _, day := range DayKeys {
		w[day] = 0
	}
	return w
}

// FromMinutes converts per-day whole minutes into a Weekly in seconds.
// Unknown keys are ignored, missing days default to zero and negative
// values are treated as zero.
func FromMinutes(perDay map[string]int) Weekly {
	w := ZeroWeekly()
	for _, day := range DayKeys {
		minutes := perDay[day]
		if minutes < 0 {
			minutes = 0
		}
		w[day] = int64(minutes) * 60
	}
	return w
}

// DayKey returns the allowance key for the given time's UTC day-of-week.
func DayKey(t time.Time) string {
	// time.Weekday is Sunday-based; DayKeys is Monday-based.
	return DayKeys[(int(t.UTC().Weekday())+6)%7]
}

// Allowance returns the allowance in seconds for the given time's UTC day.
// Missing entries count as zero.
func (w Weekly) Allowance(t time.Time) int64 {
	if w == nil {
		return 0
	}
	return w[DayKey(t)]
}

// Record holds the per-configuration budget accounting state.
type Record struct {
	// Weekly is the per-day-of-week allowance in seconds.
	Weekly Weekly `json:"daily_free_seconds"`

	// UsedToday is the number of seconds consumed on LastResetDate.
	UsedToday int64 `json:"used_today"`

	// LastResetDate is the UTC calendar date (YYYY-MM-DD) of the last
	// rollover. Empty until the first transition runs.
	LastResetDate string `json:"last_reset_date,omitempty"`

	// SessionStartedAt anchors the in-progress session. Nil means no
	// active session; accrual only happens while it is set.
	SessionStartedAt *time.Time `json:"session_started_at,omitempty"`
}

// NewRecord returns a zeroed budget record.
func NewRecord() Record {
	return Record{Weekly: ZeroWeekly()}
}

// Status reports the derived values returned by session operations.
type Status struct {
	Remaining       int64
	TodaysAllowance int64
}

// Apply runs the rollover-and-accrue transition for the given instant and
// returns the remaining seconds for today.
//
// The transition, in order: reset UsedToday when the UTC date advanced
// (reanchoring any session that spans the boundary so only post-rollover
// time accrues), accrue whole elapsed seconds since the session anchor and
// move the anchor to now, then clamp UsedToday to today's allowance and
// end the session automatically once the allowance is spent.
//
// Apply is idempotent at a fixed instant: zero elapsed time accrues zero,
// so it is safe to invoke on every poll. Clock anomalies never produce
// negative accrual.
func (r *Record) Apply(now time.Time) int64 {
	now = now.UTC()
	today := now.Format(dateLayout)

	if r.LastResetDate != today {
		r.UsedToday = 0
		r.LastResetDate = today
		if r.SessionStartedAt != nil {
			anchor := now
			r.SessionStartedAt = &anchor
		}
	}

	if r.SessionStartedAt != nil {
		elapsed := int64(now.Sub(*r.SessionStartedAt) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		r.UsedToday += elapsed
		anchor := now
		r.SessionStartedAt = &anchor
	}

	allowance := r.Weekly.Allowance(now)
	if r.UsedToday >= allowance {
		r.UsedToday = allowance
		r.SessionStartedAt = nil
	}

	remaining := allowance - r.UsedToday
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Start begins a free-time session. It applies the transition first so the
// decision is made against current state, then rejects if a session is
// already running or the budget is spent.
func (r *Record) Start(now time.Time) (Status, error) {
	remaining := r.Apply(now)
	if r.SessionStartedAt != nil {
		return Status{}, ErrSessionActive
	}
	if remaining <= 0 {
		return Status{}, ErrBudgetExhausted
	}

	anchor := now.UTC()
	r.SessionStartedAt = &anchor
	return Status{Remaining: remaining, TodaysAllowance: r.Weekly.Allowance(now)}, nil
}

// End stops the active session after accruing its elapsed time. Ending
// when no session is active is a no-op that still reports current state.
func (r *Record) End(now time.Time) Status {
	remaining := r.Apply(now)
	r.SessionStartedAt = nil
	return Status{Remaining: remaining, TodaysAllowance: r.Weekly.Allowance(now)}
}

// SetAllowanceMinutes replaces the weekly allowance with per-day minute
// values. UsedToday and the session anchor are left untouched; callers
// run Apply before persisting so returned values stay current.
func (r *Record) SetAllowanceMinutes(perDay map[string]int) {
	r.Weekly = FromMinutes(perDay)
}

// Active reports whether a free-time session is in progress.
func (r *Record) Active() bool {
	return r.SessionStartedAt != nil
}

// View is the externally visible budget state, derived after a transition.
type View struct {
	UsedToday        int64      `json:"used_today"`
	TodaysAllowance  int64      `json:"todays_allowance"`
	Remaining        int64      `json:"remaining"`
	SessionStartedAt *time.Time `json:"session_started_at,omitempty"`
	Weekly           Weekly     `json:"daily_free_seconds"`
}

// View applies the transition and returns the derived read-only view.
// It never reports stale pre-rollover values.
func (r *Record) View(now time.Time) View {
	remaining := r.Apply(now)
	return View{
		UsedToday:        r.UsedToday,
		TodaysAllowance:  r.Weekly.Allowance(now),
		Remaining:        remaining,
		SessionStartedAt: r.SessionStartedAt,
		Weekly:           r.Weekly,
	}
}
