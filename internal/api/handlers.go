package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/focusmunk/focusmunkd/internal/accountant"
	"github.com/focusmunk/focusmunkd/internal/auth"
	"github.com/focusmunk/focusmunkd/internal/budget"
	"github.com/focusmunk/focusmunkd/internal/storage"
	"github.com/focusmunk/focusmunkd/internal/youtube"
)

// handleCreateConfig creates a new configuration. Requires the setup
// code; returns the generated config ID.
func (s *Server) handleCreateConfig(ctx *gin.Context) {
	var req createConfigRequest
	_ = ctx.ShouldBindJSON(&req)

	if !auth.VerifySetupCode(req.SetupCode, s.setupCode) {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid setup code"})
		return
	}

	cfg, err := s.accountant.CreateConfig(ctx.Request.Context(), accountant.CreateRequest{
		Password:         req.Password,
		Whitelist:        req.Whitelist,
		YouTubeKeywords:  req.YouTubeKeywords,
		YouTubeCreators:  req.YouTubeCreators,
		DailyFreeMinutes: req.DailyFreeMinutes,
	})
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 4 characters"})
			return
		}
		s.internalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"id": cfg.ID})
}

// handleGetConfig fetches a configuration. No password required; config
// data isn't secret, only modification is protected. This is the
// extension's polling path, so it also runs the free time transition.
func (s *Server) handleGetConfig(ctx *gin.Context) {
	cfg, view, err := s.accountant.GetView(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.configError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newConfigResponse(cfg, view))
}

// handleUpdateConfig applies a partial update. Requires password.
func (s *Server) handleUpdateConfig(ctx *gin.Context) {
	var req updateConfigRequest
	_ = ctx.ShouldBindJSON(&req)

	if !s.passwordGate(ctx, ctx.Param("id"), req.Password) {
		return
	}

	cfg, view, err := s.accountant.UpdateConfig(ctx.Request.Context(), ctx.Param("id"), accountant.UpdateRequest{
		Whitelist:        req.Whitelist,
		YouTubeKeywords:  req.YouTubeKeywords,
		YouTubeCreators:  req.YouTubeCreators,
		DailyFreeMinutes: req.DailyFreeMinutes,
	}, true)
	if err != nil {
		s.configError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newConfigResponse(cfg, view))
}

// handleVerifyPassword checks a password without mutating anything.
func (s *Server) handleVerifyPassword(ctx *gin.Context) {
	var req passwordRequest
	_ = ctx.ShouldBindJSON(&req)

	if req.Password == "" {
		// Still requires the config to exist.
		if _, err := s.accountant.VerifyPassword(ctx.Request.Context(), ctx.Param("id"), ""); errors.Is(err, storage.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Configuration not found"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"valid": false})
		return
	}

	ok, err := s.accountant.VerifyPassword(ctx.Request.Context(), ctx.Param("id"), req.Password)
	if err != nil {
		s.configError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"valid": ok})
}

// handleChangePassword replaces the password. Requires the current one.
func (s *Server) handleChangePassword(ctx *gin.Context) {
	var req changePasswordRequest
	_ = ctx.ShouldBindJSON(&req)

	if !s.passwordGate(ctx, ctx.Param("id"), req.Password) {
		return
	}

	err := s.accountant.ChangePassword(ctx.Request.Context(), ctx.Param("id"), req.NewPassword, true)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "New password must be at least 4 characters"})
			return
		}
		s.configError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// handleStartFreeTime starts a free time session. No password required.
func (s *Server) handleStartFreeTime(ctx *gin.Context) {
	status, err := s.accountant.StartSession(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, budget.ErrSessionActive):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Already in free time session"})
		case errors.Is(err, budget.ErrBudgetExhausted):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "No free time remaining today"})
		default:
			s.configError(ctx, err)
		}
		return
	}

	ctx.JSON(http.StatusOK, sessionResponse{
		Success:           true,
		FreeTimeRemaining: status.Remaining,
		TodaysAllowance:   status.TodaysAllowance,
	})
}

// handleEndFreeTime ends a free time session. No password required
// (the user can always re-enable restrictions). Ending without an
// active session is a no-op.
func (s *Server) handleEndFreeTime(ctx *gin.Context) {
	status, err := s.accountant.EndSession(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.configError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, sessionResponse{
		Success:           true,
		FreeTimeRemaining: status.Remaining,
		TodaysAllowance:   status.TodaysAllowance,
	})
}

// handleTemporaryDisable suspends blocking for a number of hours.
// Requires password.
func (s *Server) handleTemporaryDisable(ctx *gin.Context) {
	var req temporaryDisableRequest
	_ = ctx.ShouldBindJSON(&req)

	if !s.passwordGate(ctx, ctx.Param("id"), req.Password) {
		return
	}

	hours := 0.0
	if req.Hours != nil {
		hours = *req.Hours
	}

	until, err := s.accountant.TemporaryDisable(ctx.Request.Context(), ctx.Param("id"), hours, true)
	if err != nil {
		if errors.Is(err, accountant.ErrInvalidDuration) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Hours must be positive"})
			return
		}
		s.configError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "disabledUntil": *formatTime(&until)})
}

// handleCancelDisable re-enables blocking. No password required.
func (s *Server) handleCancelDisable(ctx *gin.Context) {
	if err := s.accountant.CancelDisable(ctx.Request.Context(), ctx.Param("id")); err != nil {
		s.configError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// handleVerifySetupCode checks a setup code during extension setup.
func (s *Server) handleVerifySetupCode(ctx *gin.Context) {
	var req setupCodeRequest
	_ = ctx.ShouldBindJSON(&req)
	ctx.JSON(http.StatusOK, gin.H{"valid": auth.VerifySetupCode(req.SetupCode, s.setupCode)})
}

// handleYouTubeInfo fetches video metadata for the extension's filter
// checks. Requires a valid config ID to prevent abuse.
func (s *Server) handleYouTubeInfo(ctx *gin.Context) {
	configID := ctx.Query("configId")
	if configID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "configId required"})
		return
	}
	exists, err := s.accountant.ConfigExists(ctx.Request.Context(), configID)
	if err != nil {
		s.internalError(ctx, err)
		return
	}
	if !exists {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid configId"})
		return
	}

	rawURL := ctx.Query("url")
	if rawURL == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "url required"})
		return
	}

	info, err := s.youtube.Lookup(ctx.Request.Context(), rawURL)
	if err != nil {
		switch {
		case errors.Is(err, youtube.ErrInvalidURL):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse video ID from URL"})
		case errors.Is(err, youtube.ErrNotConfigured):
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "YouTube API not configured"})
		case errors.Is(err, youtube.ErrVideoNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		case errors.Is(err, youtube.ErrUpstream):
			ctx.JSON(http.StatusBadGateway, gin.H{"error": "YouTube API error"})
		default:
			s.internalError(ctx, err)
		}
		return
	}

	ctx.JSON(http.StatusOK, info)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// passwordGate verifies the password for a protected route, writing the
// error response itself when the gate fails.
func (s *Server) passwordGate(ctx *gin.Context, id, password string) bool {
	if password == "" {
		// Config existence is still checked first.
		if _, err := s.accountant.VerifyPassword(ctx.Request.Context(), id, ""); errors.Is(err, storage.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Configuration not found"})
			return false
		}
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Password required"})
		return false
	}

	ok, err := s.accountant.VerifyPassword(ctx.Request.Context(), id, password)
	if err != nil {
		s.configError(ctx, err)
		return false
	}
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return false
	}
	return true
}

func (s *Server) configError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Configuration not found"})
	case errors.Is(err, accountant.ErrUnauthorized):
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
	case errors.Is(err, storage.ErrConflict):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Concurrent update, please retry"})
	default:
		s.internalError(ctx, err)
	}
}

func (s *Server) internalError(ctx *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("Request failed")
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
