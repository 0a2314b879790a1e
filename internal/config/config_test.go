package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "socialmetrics.yaml")
	cfg := Default()
	cfg.Refresh.Profiles = []string{"golang", "gopher"}
	cfg.Cache.RecentPosts = 40
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cache.RecentPosts != 40 || len(got.Refresh.Profiles) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Upstream.BaseBackoff != 500*time.Millisecond {
		t.Fatalf("duration not preserved: %v", got.Upstream.BaseBackoff)
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  recentPosts: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cache.RecentPosts != 5 {
		t.Fatalf("expected override, got %d", got.Cache.RecentPosts)
	}
	if got.Storage.DBPath != "./socialmetrics.db" || got.Upstream.MaxAttempts != 5 {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("X_BEARER_TOKEN", "tok")
	t.Setenv("SOCIALMETRICS_API_KEYS", "a, b,,")
	cfg := Default()
	cfg.ResolveEnv()
	if cfg.Upstream.BearerToken != "tok" {
		t.Fatalf("token not resolved")
	}
	if len(cfg.Server.APIKeys) != 2 || cfg.Server.APIKeys[1] != "b" {
		t.Fatalf("api keys not parsed: %v", cfg.Server.APIKeys)
	}
}

func TestResolveEnvOverridesUpstreamTuning(t *testing.T) {
	t.Setenv("X_API_RPS", "0.5")
	t.Setenv("X_API_BURST", "3")
	t.Setenv("X_API_MAX_ATTEMPTS", "2")
	t.Setenv("X_API_BASE_BACKOFF_MS", "250")
	cfg := Default()
	cfg.ResolveEnv()
	up := cfg.Upstream
	if up.RequestsPerSecond != 0.5 || up.Burst != 3 || up.MaxAttempts != 2 || up.BaseBackoff != 250*time.Millisecond {
		t.Fatalf("env did not override defaults: %+v", up)
	}

	t.Setenv("X_API_MAX_ATTEMPTS", "zero")
	cfg = Default()
	cfg.ResolveEnv()
	if cfg.Upstream.MaxAttempts != 5 {
		t.Fatalf("invalid value must keep default, got %d", cfg.Upstream.MaxAttempts)
	}
}
