package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures upstream access, caching policy, storage, the HTTP surface and refresh jobs.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type UpstreamConfig struct {
	BaseURL string `yaml:"baseURL"`
	// X/Twitter API bearer token. If empty, read from env X_BEARER_TOKEN
	BearerToken string `yaml:"bearerToken"`
	// Client-side rate limit
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	// Retry policy for 429/5xx and transport errors
	MaxAttempts    int           `yaml:"maxAttempts"`
	BaseBackoff    time.Duration `yaml:"baseBackoff"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type CacheConfig struct {
	// Number of most recent posts averaged into the snapshot
	RecentPosts int `yaml:"recentPosts"`
	// Upper bound for one shared fetch-aggregate-write cycle
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	// Default history span when the query gives no lower bound
	HistoryDays int `yaml:"historyDays"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Accepted X-API-Key values; empty disables the check. Env SOCIALMETRICS_API_KEYS (comma-separated)
	APIKeys []string `yaml:"apiKeys"`
}

type RefreshConfig struct {
	// Cron expression evaluated in UTC
	Schedule    string   `yaml:"schedule"`
	Profiles    []string `yaml:"profiles"`
	Parallelism int      `yaml:"parallelism"`
}

type MetricsConfig struct {
	// Standalone metrics listener for the refresh daemon. If empty, read METRICS_ADDR
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Upstream: UpstreamConfig{
			BaseURL:           "https://api.twitter.com/2",
			RequestsPerSecond: 2,
			Burst:             10,
			MaxAttempts:       5,
			BaseBackoff:       500 * time.Millisecond,
			RequestTimeout:    15 * time.Second,
		},
		Cache:   CacheConfig{RecentPosts: 20, FetchTimeout: 60 * time.Second, HistoryDays: 30},
		Storage: StorageConfig{DBPath: "./socialmetrics.db"},
		Server:  ServerConfig{Addr: ":8080"},
		Refresh: RefreshConfig{Schedule: "5 0 * * *", Parallelism: 4},
		Log:     LogConfig{Level: "info"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Upstream.BearerToken == "" {
		c.Upstream.BearerToken = os.Getenv("X_BEARER_TOKEN")
	}
	if len(c.Server.APIKeys) == 0 {
		for _, k := range strings.Split(os.Getenv("SOCIALMETRICS_API_KEYS"), ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Server.APIKeys = append(c.Server.APIKeys, k)
			}
		}
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
	// upstream tuning knobs override the file
	if f, err := strconv.ParseFloat(os.Getenv("X_API_RPS"), 64); err == nil && f > 0 {
		c.Upstream.RequestsPerSecond = f
	}
	if n := envInt("X_API_BURST"); n > 0 {
		c.Upstream.Burst = n
	}
	if n := envInt("X_API_MAX_ATTEMPTS"); n > 0 {
		c.Upstream.MaxAttempts = n
	}
	if n := envInt("X_API_BASE_BACKOFF_MS"); n > 0 {
		c.Upstream.BaseBackoff = time.Duration(n) * time.Millisecond
	}
}

func envInt(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}

// Load reads YAML config from path. Fields absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
