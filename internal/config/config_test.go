package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Fatalf("expected default port 8080 got %d", cfg.API.Port)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Fatalf("unexpected default model %q", cfg.Gemini.Model)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr())
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-flash")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Fatalf("expected port 9090 got %d", cfg.API.Port)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected model %q", cfg.Gemini.Model)
	}
	if cfg.Auth.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.Auth.AccessTokenTTL)
	}
	origins := cfg.API.Origins()
	if len(origins) != 2 || origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", origins)
	}
}

func TestLoad_RejectsMissingStorageCredentials(t *testing.T) {
	t.Setenv("MINIO_ACCESS_KEY_ID", "")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing minio credentials")
	}
	for _, name := range []string{"MINIO_ACCESS_KEY_ID", "MINIO_SECRET_ACCESS_KEY"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q should mention %s", err, name)
		}
	}
}

func TestLoad_WorkerRenderSettings(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHROME_BIN", "/usr/bin/chromium")
	t.Setenv("CV_RENDER_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Worker.ChromeBin != "/usr/bin/chromium" || cfg.Worker.RenderTimeout != 90*time.Second {
		t.Fatalf("unexpected worker config %+v", cfg.Worker)
	}
	if cfg.Database.MaxOpen != 25 || cfg.Database.MaxIdle != 5 {
		t.Fatalf("unexpected pool defaults %+v", cfg.Database)
	}
}
