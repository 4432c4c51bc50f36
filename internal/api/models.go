package api

import (
	"time"

	"github.com/focusmunk/focusmunkd/internal/budget"
	"github.com/focusmunk/focusmunkd/internal/storage"
)

// Request payloads. Field names match what the extension sends.

type createConfigRequest struct {
	SetupCode        string         `json:"setupCode"`
	Password         string         `json:"password"`
	Whitelist        []string       `json:"whitelist"`
	YouTubeKeywords  []string       `json:"youtubeKeywords"`
	YouTubeCreators  []string       `json:"youtubeCreators"`
	DailyFreeMinutes map[string]int `json:"dailyFreeMinutes"`
}

type updateConfigRequest struct {
	Password         string          `json:"password"`
	Whitelist        *[]string       `json:"whitelist"`
	YouTubeKeywords  *[]string       `json:"youtubeKeywords"`
	YouTubeCreators  *[]string       `json:"youtubeCreators"`
	DailyFreeMinutes *map[string]int `json:"dailyFreeMinutes"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type changePasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

type temporaryDisableRequest struct {
	Password string   `json:"password"`
	Hours    *float64 `json:"hours"`
}

type setupCodeRequest struct {
	SetupCode string `json:"setupCode"`
}

// configResponse is the full configuration view returned by GET and PUT.
// The password hash is never included.
type configResponse struct {
	ID                string        `json:"id"`
	Whitelist         []string      `json:"whitelist"`
	YouTubeKeywords   []string      `json:"youtubeKeywords"`
	YouTubeCreators   []string      `json:"youtubeCreators"`
	DisabledUntil     *string       `json:"disabledUntil"`
	DailyFreeSeconds  budget.Weekly `json:"dailyFreeSeconds"`
	FreeTimeUsedToday int64         `json:"freeTimeUsedToday"`
	FreeTimeStartedAt *string       `json:"freeTimeStartedAt"`
	FreeTimeRemaining int64         `json:"freeTimeRemaining"`
	TodaysAllowance   int64         `json:"todaysAllowance"`
}

type sessionResponse struct {
	Success           bool  `json:"success"`
	FreeTimeRemaining int64 `json:"freeTimeRemaining"`
	TodaysAllowance   int64 `json:"todaysAllowance"`
}

func newConfigResponse(cfg *storage.Config, view budget.View) configResponse {
	return configResponse{
		ID:                cfg.ID,
		Whitelist:         cfg.Whitelist,
		YouTubeKeywords:   cfg.YouTubeKeywords,
		YouTubeCreators:   cfg.YouTubeCreators,
		DisabledUntil:     formatTime(cfg.DisabledUntil),
		DailyFreeSeconds:  view.Weekly,
		FreeTimeUsedToday: view.UsedToday,
		FreeTimeStartedAt: formatTime(view.SessionStartedAt),
		FreeTimeRemaining: view.Remaining,
		TodaysAllowance:   view.TodaysAllowance,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
