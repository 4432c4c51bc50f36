package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/focusmunk/focusmunkd/internal/accountant"
	"github.com/focusmunk/focusmunkd/internal/budget"
	"github.com/focusmunk/focusmunkd/internal/config"
	"github.com/focusmunk/focusmunkd/internal/storage/bolt"
	"github.com/focusmunk/focusmunkd/internal/youtube"
)

const testSetupCode = "test-setup-code"

// Monday, 2025-02-03 12:00 UTC
var monday = time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)

func setupTestServer(t *testing.T) (*Server, *budget.TestClock) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "focusmunk.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := &budget.TestClock{CurrentTime: monday}
	svc := accountant.New(store, clock, zerolog.Nop())

	yt, err := youtube.NewClient("", 10, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("new youtube client: %v", err)
	}

	cfg := config.Config{
		Server: config.ServerConfig{BindAddress: "127.0.0.1", HTTPPort: 0},
		Auth:   config.AuthConfig{SetupCode: testSetupCode},
		API: config.APIConfig{
			CORSAllowedOrigins: []string{"*"},
			RateLimit:          1000,
			RateLimitWindow:    "1m",
		},
	}

	srv, err := NewServer(cfg, svc, yt, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, clock
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createConfig(t *testing.T, srv *Server) string {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/config", map[string]any{
		"setupCode":        testSetupCode,
		"password":         "hunter2",
		"whitelist":        []string{"*.wikipedia.org"},
		"dailyFreeMinutes": map[string]int{"mon": 10},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create config: status %d body %s", rec.Code, rec.Body.String())
	}
	id, _ := decodeBody(t, rec)["id"].(string)
	if id == "" {
		t.Fatal("expected generated config ID")
	}
	return id
}

func TestCreateConfigRejectsBadSetupCode(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/config", map[string]any{
		"setupCode": "wrong",
		"password":  "hunter2",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateConfigRejectsShortPassword(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/config", map[string]any{
		"setupCode": testSetupCode,
		"password":  "abc",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetConfig(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createConfig(t, srv)

	rec := doRequest(t, srv, http.MethodGet, "/config/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["id"] != id {
		t.Errorf("unexpected id %v", body["id"])
	}
	if _, ok := body["password_hash"]; ok {
		t.Error("password hash must not be in the response")
	}
	daily, ok := body["dailyFreeSeconds"].(map[string]any)
	if !ok {
		t.Fatalf("expected dailyFreeSeconds object, got %v", body["dailyFreeSeconds"])
	}
	if daily["mon"] != float64(600) {
		t.Errorf("expected mon 600s, got %v", daily["mon"])
	}
	if body["freeTimeRemaining"] != float64(600) {
		t.Errorf("expected 600s remaining, got %v", body["freeTimeRemaining"])
	}
	if body["todaysAllowance"] != float64(600) {
		t.Errorf("expected 600s allowance, got %v", body["todaysAllowance"])
	}
	if body["freeTimeStartedAt"] != nil {
		t.Errorf("expected null freeTimeStartedAt, got %v", body["freeTimeStartedAt"])
	}
}

func TestGetConfigNotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/config/ZZZZ-0000", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFreeTimeSessionFlow(t *testing.T) {
	srv, clock := setupTestServer(t)
	id := createConfig(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/config/"+id+"/start-free-time", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["freeTimeRemaining"] != float64(600) {
		t.Errorf("expected 600s remaining at start, got %v", body["freeTimeRemaining"])
	}

	// Starting again is rejected.
	rec = doRequest(t, srv, http.MethodPost, "/config/"+id+"/start-free-time", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("double start: expected 400, got %d", rec.Code)
	}

	clock.Advance(30 * time.Second)
	rec = doRequest(t, srv, http.MethodPost, "/config/"+id+"/end-free-time", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end: expected 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["freeTimeRemaining"] != float64(570) {
		t.Errorf("expected 570s remaining after 30s session, got %v", body["freeTimeRemaining"])
	}

	// Ending again is a harmless no-op.
	rec = doRequest(t, srv, http.MethodPost, "/config/"+id+"/end-free-time", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second end: expected 200, got %d", rec.Code)
	}
}

func TestUpdateConfigPasswordGate(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createConfig(t, srv)

	rec := doRequest(t, srv, http.MethodPut, "/config/"+id, map[string]any{
		"password":  "wrong",
		"whitelist": []string{"*.example.com"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, "/config/"+id, map[string]any{
		"whitelist": []string{"*.example.com"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing password: expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, "/config/"+id, map[string]any{
		"password":         "hunter2",
		"dailyFreeMinutes": map[string]int{"tue": 5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	daily := body["dailyFreeSeconds"].(map[string]any)
	if daily["tue"] != float64(300) {
		t.Errorf("expected tue 300s, got %v", daily["tue"])
	}
	// Whitelist untouched by this update.
	wl, _ := body["whitelist"].([]any)
	if len(wl) != 1 || wl[0] != "*.wikipedia.org" {
		t.Errorf("unexpected whitelist %v", body["whitelist"])
	}
}

func TestVerifyPasswordEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createConfig(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/config/"+id+"/verify", map[string]any{"password": "hunter2"})
	if rec.Code != http.StatusOK || decodeBody(t, rec)["valid"] != true {
		t.Fatalf("expected valid=true, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/config/"+id+"/verify", map[string]any{"password": "wrong"})
	if rec.Code != http.StatusOK || decodeBody(t, rec)["valid"] != false {
		t.Fatalf("expected valid=false, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/config/ZZZZ-0000/verify", map[string]any{"password": "hunter2"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createConfig(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/config/"+id+"/change-password", map[string]any{
		"password":    "hunter2",
		"newPassword": "abc",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short new password: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/config/"+id+"/change-password", map[string]any{
		"password":    "hunter2",
		"newPassword": "newpass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/config/"+id+"/verify", map[string]any{"password": "newpass"})
	if decodeBody(t, rec)["valid"] != true {
		t.Fatal("expected new password to verify")
	}
}

func TestTemporaryDisableFlow(t *testing.T) {
	srv, clock := setupTestServer(t)
	id := createConfig(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/config/"+id+"/temporary-disable", map[string]any{
		"password": "hunter2",
		"hours":    0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero hours: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/config/"+id+"/temporary-disable", map[string]any{
		"password": "hunter2",
		"hours":    2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	want := clock.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)
	if body["disabledUntil"] != want {
		t.Errorf("expected disabledUntil %s, got %v", want, body["disabledUntil"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/config/"+id, nil)
	if decodeBody(t, rec)["disabledUntil"] != want {
		t.Error("expected disabledUntil persisted in config view")
	}

	rec = doRequest(t, srv, http.MethodPost, "/config/"+id+"/cancel-disable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/config/"+id, nil)
	if decodeBody(t, rec)["disabledUntil"] != nil {
		t.Error("expected disabledUntil cleared")
	}
}

func TestVerifySetupCodeEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/setup-code/verify", map[string]any{"setupCode": testSetupCode})
	if decodeBody(t, rec)["valid"] != true {
		t.Error("expected valid=true for correct setup code")
	}

	rec = doRequest(t, srv, http.MethodPost, "/setup-code/verify", map[string]any{"setupCode": "wrong"})
	if decodeBody(t, rec)["valid"] != false {
		t.Error("expected valid=false for wrong setup code")
	}
}

func TestYouTubeInfoValidation(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createConfig(t, srv)

	rec := doRequest(t, srv, http.MethodGet, "/youtube-info", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing configId: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/youtube-info?configId=ZZZZ-0000&url=x", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid configId: expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/youtube-info?configId="+id, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing url: expected 400, got %d", rec.Code)
	}

	// No API key configured in tests.
	rec = doRequest(t, srv, http.MethodGet, "/youtube-info?configId="+id+"&url=https://youtu.be/abc", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured API: expected 500, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeBody(t, rec)["status"] != "ok" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
