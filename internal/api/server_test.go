package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/callwatch/callwatch/internal/auth"
	"github.com/callwatch/callwatch/internal/authz"
	"github.com/callwatch/callwatch/internal/broadcast"
	"github.com/callwatch/callwatch/internal/config"
	"github.com/callwatch/callwatch/internal/directory"
	"github.com/callwatch/callwatch/internal/esl"
	"github.com/callwatch/callwatch/internal/session"
	"github.com/callwatch/callwatch/internal/store"
)

type noopCommander struct{}

func (noopCommander) ListAgents(context.Context) ([]esl.Agent, error) { return nil, nil }
func (noopCommander) ListQueues(context.Context) ([]esl.Queue, error) { return nil, nil }
func (noopCommander) ListTiers(context.Context, string) ([]esl.Tier, error) {
	return nil, nil
}
func (noopCommander) ListChannels(context.Context, string) ([]esl.Channel, error) {
	return nil, nil
}
func (noopCommander) Originate(context.Context, string, string, string) (string, error) {
	return "", nil
}
func (noopCommander) Raw(context.Context, string, string) (string, error) { return "", nil }

func setupServer(t *testing.T) (*httptest.Server, *auth.Service, store.Store) {
	t.Helper()

	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Addr:           ":0",
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1024 * 1024,
			MaxFrameBytes:  64 * 1024,
		},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret-at-least-32-chars-long!!",
			JWTExpiry: config.Duration{Duration: time.Hour},
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 200},
	}

	as := auth.NewService(s, cfg.Auth)
	d := session.NewDispatcher(session.Deps{
		Hub:       broadcast.New(logger),
		Directory: directory.NewService(s),
		Commander: noopCommander{},
		Store:     s,
		Authz:     authz.NewEngine(logger),
		Logger:    logger,
	})

	srv := NewServer(s, as, d, cfg, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, as, s
}

func registerUser(t *testing.T, as *auth.Service, username, password, role string) *store.Account {
	t.Helper()
	acct := &store.Account{
		Agent:    "9000-" + username,
		Username: username,
		FullName: username,
		Role:     role,
	}
	if err := as.Register(context.Background(), acct, password); err != nil {
		t.Fatal(err)
	}
	return acct
}

func login(t *testing.T, ts *httptest.Server, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out["token"]
}

func doJSON(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("missing security header, got %q", got)
	}

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d", resp.StatusCode)
	}
}

func TestLoginAndMe(t *testing.T) {
	ts, as, _ := setupServer(t)
	registerUser(t, as, "Api_Me", "a strong password", "user")

	token := login(t, ts, "Api_Me", "a strong password")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/me", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	var me map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatal(err)
	}
	if me["username"] != "Api_Me" || me["agent"] != "9000-Api_Me" || me["role"] != "user" {
		t.Errorf("me = %v", me)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	ts, as, _ := setupServer(t)
	registerUser(t, as, "Api_Bad", "a strong password", "user")

	body, _ := json.Marshal(map[string]string{"username": "Api_Bad", "password": "wrong"})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthenticatedRoutes_RejectMissingToken(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/me", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/me", "garbage-token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	ts, as, _ := setupServer(t)
	registerUser(t, as, "Api_Plain", "a strong password", "user")
	token := login(t, ts, "Api_Plain", "a strong password")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/accounts", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestAdmin_AccountAndPermissionFlow(t *testing.T) {
	ts, as, _ := setupServer(t)
	registerUser(t, as, "Api_Admin", "a strong password", "admin")
	token := login(t, ts, "Api_Admin", "a strong password")

	// Create a manager account through the API.
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/accounts", token, map[string]any{
		"agent":     "9100-Api_Mgr",
		"username":  "Api_Mgr",
		"full_name": "Api Mgr",
		"extension": "9100",
		"manager":   true,
		"password":  "another strong one",
	})
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created store.Account
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if created.ID == "" || !created.Manager {
		t.Fatalf("created account = %+v", created)
	}

	// Duplicate username conflicts.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/accounts", token, map[string]any{
		"username": "Api_Mgr",
		"password": "another strong one",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}

	// Grant, list, revoke.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/permissions", token, permissionRequest{
		AccountID: created.ID, Extension: "9200",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grant status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/accounts/%s/permissions", ts.URL, created.ID), token, nil)
	var exts []string
	if err := json.NewDecoder(resp.Body).Decode(&exts); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(exts) != 1 || exts[0] != "9200" {
		t.Errorf("permissions = %v", exts)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/permissions", token, permissionRequest{
		AccountID: created.ID, Extension: "9200",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/accounts/%s/permissions", ts.URL, created.ID), token, nil)
	exts = nil
	if err := json.NewDecoder(resp.Body).Decode(&exts); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(exts) != 0 {
		t.Errorf("permissions after revoke = %v", exts)
	}
}

func TestWS_RejectsBadToken(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/ws?token=garbage")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
