package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "callwatch.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `{
	"server": {"addr": ":8080"},
	"auth": {"jwt_secret": "0123456789abcdef0123456789abcdef"},
	"switches": {
		"servers": {
			"sw1.test": {"addr": "sw1.test:8021", "password": "ClueCon"}
		}
	}
}`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "callwatch.db" {
		t.Errorf("storage defaults: %+v", cfg.Storage)
	}
	if cfg.Auth.JWTExpiry.Duration != 24*time.Hour {
		t.Errorf("jwt expiry default = %v", cfg.Auth.JWTExpiry.Duration)
	}
	if cfg.Switches.Timeout.Duration != 5*time.Second {
		t.Errorf("switch timeout default = %v", cfg.Switches.Timeout.Duration)
	}
	if cfg.Switches.Default != "sw1.test" {
		t.Errorf("single server should become the default, got %q", cfg.Switches.Default)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults: %+v", cfg.Logging)
	}
	if cfg.RateLimit.RequestsPerSecond != 10 || cfg.RateLimit.Burst != 20 {
		t.Errorf("rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Server.MaxBodyBytes != 1024*1024 || cfg.Server.MaxFrameBytes != 64*1024 {
		t.Errorf("size defaults: %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("origin default: %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_RequiresAddr(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"auth": {"jwt_secret": "0123456789abcdef0123456789abcdef"}
	}`))
	if err == nil || !strings.Contains(err.Error(), "server.addr") {
		t.Errorf("expected addr validation error, got %v", err)
	}
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"server": {"addr": ":8080"},
		"auth": {"jwt_secret": "short"}
	}`))
	if err == nil || !strings.Contains(err.Error(), "32 characters") {
		t.Errorf("expected secret length error, got %v", err)
	}
}

func TestLoad_RejectsUnlistedDefaultSwitch(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"server": {"addr": ":8080"},
		"auth": {"jwt_secret": "0123456789abcdef0123456789abcdef"},
		"switches": {
			"default": "missing.test",
			"servers": {
				"sw1.test": {"addr": "sw1.test:8021"}
			}
		}
	}`))
	if err == nil || !strings.Contains(err.Error(), "missing.test") {
		t.Errorf("expected default-switch validation error, got %v", err)
	}
}

func TestDuration_UnmarshalForms(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"server": {"addr": ":8080"},
		"auth": {
			"jwt_secret": "0123456789abcdef0123456789abcdef",
			"jwt_expiry": "90m"
		},
		"switches": {
			"servers": {"sw1.test": {"addr": "sw1.test:8021"}},
			"timeout": 10
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Auth.JWTExpiry.Duration != 90*time.Minute {
		t.Errorf("string duration = %v", cfg.Auth.JWTExpiry.Duration)
	}
	if cfg.Switches.Timeout.Duration != 10*time.Second {
		t.Errorf("numeric duration (seconds) = %v", cfg.Switches.Timeout.Duration)
	}
}

func TestGenerateRandomSecret(t *testing.T) {
	a, err := GenerateRandomSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateRandomSecret()
	if err != nil {
		t.Fatal(err)
	}

	if len(a) != 64 {
		t.Errorf("secret length = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("two generated secrets are identical")
	}
}
