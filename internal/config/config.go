package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level coordinator configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Sync     SyncConfig     `yaml:"sync"`
	Report   ReportConfig   `yaml:"report"`
}

// APIConfig holds the backend endpoint settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`        // backend origin, e.g. http://localhost:8000
	AIAgentURL     string        `yaml:"ai_agent_url"`    // overrides {base_url}/agent/run when set
	RequestTimeout time.Duration `yaml:"request_timeout"` // default requests (default: 30s)
	UploadTimeout  time.Duration `yaml:"upload_timeout"`  // uploads and file processing (default: 3m)
	StorageTimeout time.Duration `yaml:"storage_timeout"` // direct storage PUT, per attempt (default: 30s)
	HealthTimeout  time.Duration `yaml:"health_timeout"`  // health probes (default: 5s)
}

// SnapshotConfig holds local persistence settings.
type SnapshotConfig struct {
	Path        string        `yaml:"path"`         // JSON snapshot file (default: chocosync.json)
	TokenPath   string        `yaml:"token_path"`   // persisted bearer token file (default: access_token)
	DatabaseURL string        `yaml:"database_url"` // optional PostgreSQL mirror
	Debounce    time.Duration `yaml:"debounce"`     // write coalescing window (default: 100ms)
}

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	Schedule     string `yaml:"schedule"`       // optional cron expression for periodic resync
	Timezone     string `yaml:"timezone"`       // cron timezone (default: UTC)
	FetchLimit   int    `yaml:"fetch_limit"`    // parallel content fetches (default: 6)
	ListPageSize int    `yaml:"list_page_size"` // server list page size (default: 100)
}

// ReportConfig holds report pipeline settings.
type ReportConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // job status poll interval (default: 5s)
	MaxPolls     int           `yaml:"max_polls"`     // poll attempts before timing out (default: 60)
	GeminiAPIKey string        `yaml:"gemini_api_key"`
	GeminiModel  string        `yaml:"gemini_model"`
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: 30 * time.Second,
			UploadTimeout:  3 * time.Minute,
			StorageTimeout: 30 * time.Second,
			HealthTimeout:  5 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Path:      "chocosync.json",
			TokenPath: "access_token",
			Debounce:  100 * time.Millisecond,
		},
		Sync: SyncConfig{
			Timezone:     "UTC",
			FetchLimit:   6,
			ListPageSize: 100,
		},
		Report: ReportConfig{
			PollInterval: 5 * time.Second,
			MaxPolls:     60,
			GeminiModel:  "gemini-2.0-flash",
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
// Environment variables override the file where set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns defaults with environment overrides.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// applyEnv copies recognized environment variables into the config.
// CHOCO_API_URL takes precedence; NEXT_PUBLIC_API_URL is honored for
// compatibility with the web client's configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHOCO_API_URL"); v != "" {
		c.API.BaseURL = v
	} else if v := os.Getenv("NEXT_PUBLIC_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("AI_API_URL"); v != "" {
		c.API.AIAgentURL = v
	}
	if v := os.Getenv("CHOCO_DATABASE_URL"); v != "" {
		c.Snapshot.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Report.GeminiAPIKey = v
	}
}
