package storage

import (
	"time"

	"github.com/focusmunk/focusmunkd/internal/budget"
)

// Config is a stored focusmunk configuration. One record per shareable
// config ID; the browser extension fetches it and enforces blocking
// locally.
type Config struct {
	ID              string        `json:"id"`
	PasswordHash    string        `json:"password_hash"`
	Whitelist       []string      `json:"whitelist"`
	YouTubeKeywords []string      `json:"youtube_keywords"`
	YouTubeCreators []string      `json:"youtube_creators"`
	DisabledUntil   *time.Time    `json:"disabled_until,omitempty"`
	Budget          budget.Record `json:"budget"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Normalize fills nil slice and map fields so records read back from
// storage always marshal as empty collections rather than null.
func (c *Config) Normalize() {
	if c.Whitelist == nil {
		c.Whitelist = []string{}
	}
	if c.YouTubeKeywords == nil {
		c.YouTubeKeywords = []string{}
	}
	if c.YouTubeCreators == nil {
		c.YouTubeCreators = []string{}
	}
	if c.Budget.Weekly == nil {
		c.Budget.Weekly = budget.ZeroWeekly()
	}
}
