// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumehart/cadenza/internal/match"
	"github.com/lumehart/cadenza/internal/provider"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Enrichment  EnrichmentConfig  `yaml:"enrichment"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path,omitempty"`
}

// EnrichmentConfig holds the resolution engine settings.
type EnrichmentConfig struct {
	AutoApplyThreshold      float64         `yaml:"auto_apply_threshold"`
	ManualReviewThreshold   float64         `yaml:"manual_review_threshold"`
	CircuitFailureThreshold int             `yaml:"circuit_failure_threshold"`
	CircuitCooldownSeconds  int             `yaml:"circuit_cooldown_seconds"`
	BatchSize               int             `yaml:"batch_size"`
	MaxConcurrency          int             `yaml:"max_concurrency"`
	InterCallDelayMS        int             `yaml:"inter_call_delay_ms"`
	ProviderPriorityMeta    []provider.Name `yaml:"provider_priority_metadata"`
	ProviderPriorityImages  []provider.Name `yaml:"provider_priority_images"`
}

// CircuitCooldown returns the circuit cooldown as a duration.
func (e EnrichmentConfig) CircuitCooldown() time.Duration {
	return time.Duration(e.CircuitCooldownSeconds) * time.Second
}

// InterCallDelay returns the per-provider call spacing as a duration.
func (e EnrichmentConfig) InterCallDelay() time.Duration {
	return time.Duration(e.InterCallDelayMS) * time.Millisecond
}

// Thresholds returns the configured confidence bands in the scorer's shape.
func (e EnrichmentConfig) Thresholds() match.Thresholds {
	return match.Thresholds{
		AutoApply:    e.AutoApplyThreshold,
		ManualReview: e.ManualReviewThreshold,
	}
}

// ProvidersConfig holds per-provider credentials.
type ProvidersConfig struct {
	FanartTVAPIKey string `yaml:"fanarttv_api_key,omitempty"`
}

// MaintenanceConfig holds database upkeep settings used in watch mode.
type MaintenanceConfig struct {
	OptimizeIntervalHours int    `yaml:"optimize_interval_hours"`
	BackupEnabled         bool   `yaml:"backup_enabled"`
	BackupDir             string `yaml:"backup_dir"`
	BackupIntervalHours   int    `yaml:"backup_interval_hours"`
	BackupRetention       int    `yaml:"backup_retention"`
	BackupMaxAgeDays      int    `yaml:"backup_max_age_days"`
}

// OptimizeInterval returns the optimize cadence as a duration.
func (m MaintenanceConfig) OptimizeInterval() time.Duration {
	return time.Duration(m.OptimizeIntervalHours) * time.Hour
}

// BackupInterval returns the backup cadence as a duration.
func (m MaintenanceConfig) BackupInterval() time.Duration {
	return time.Duration(m.BackupIntervalHours) * time.Hour
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "/data/cadenza.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Enrichment: EnrichmentConfig{
			AutoApplyThreshold:      0.75,
			ManualReviewThreshold:   0.50,
			CircuitFailureThreshold: 3,
			CircuitCooldownSeconds:  1800,
			BatchSize:               50,
			MaxConcurrency:          5,
			InterCallDelayMS:        50,
			ProviderPriorityMeta: []provider.Name{
				provider.NameMusicBrainz,
				provider.NameDeezer,
			},
			ProviderPriorityImages: []provider.Name{
				provider.NameFanartTV,
				provider.NameDeezer,
			},
		},
		Maintenance: MaintenanceConfig{
			OptimizeIntervalHours: 24,
			BackupEnabled:         false,
			BackupDir:             "/data/backups",
			BackupIntervalHours:   24,
			BackupRetention:       7,
			BackupMaxAgeDays:      0,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("CADENZA_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CADENZA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CADENZA_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CADENZA_FANARTTV_API_KEY"); v != "" {
		c.Providers.FanartTVAPIKey = v
	}
	if v := os.Getenv("CADENZA_AUTO_APPLY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Enrichment.AutoApplyThreshold = f
		}
	}
	if v := os.Getenv("CADENZA_MANUAL_REVIEW_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Enrichment.ManualReviewThreshold = f
		}
	}
	if v := os.Getenv("CADENZA_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Enrichment.BatchSize = n
		}
	}
	if v := os.Getenv("CADENZA_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Enrichment.MaxConcurrency = n
		}
	}
	if v := os.Getenv("CADENZA_PROVIDER_PRIORITY_METADATA"); v != "" {
		c.Enrichment.ProviderPriorityMeta = parsePriorityList(v)
	}
	if v := os.Getenv("CADENZA_PROVIDER_PRIORITY_IMAGES"); v != "" {
		c.Enrichment.ProviderPriorityImages = parsePriorityList(v)
	}
}

func parsePriorityList(v string) []provider.Name {
	parts := strings.Split(v, ",")
	names := make([]provider.Name, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			names = append(names, provider.Name(p))
		}
	}
	return names
}

// Validate checks the configuration. Violations are fatal at startup and
// at batch start, before any provider call is made.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	e := c.Enrichment
	if e.AutoApplyThreshold < 0 || e.AutoApplyThreshold > 1 {
		return fmt.Errorf("auto_apply_threshold must be in [0,1], got %v", e.AutoApplyThreshold)
	}
	if e.ManualReviewThreshold < 0 || e.ManualReviewThreshold > 1 {
		return fmt.Errorf("manual_review_threshold must be in [0,1], got %v", e.ManualReviewThreshold)
	}
	if e.ManualReviewThreshold > e.AutoApplyThreshold {
		return fmt.Errorf("manual_review_threshold (%v) must not exceed auto_apply_threshold (%v)",
			e.ManualReviewThreshold, e.AutoApplyThreshold)
	}
	if e.CircuitFailureThreshold < 1 {
		return fmt.Errorf("circuit_failure_threshold must be at least 1, got %d", e.CircuitFailureThreshold)
	}
	if e.CircuitCooldownSeconds < 1 {
		return fmt.Errorf("circuit_cooldown_seconds must be at least 1, got %d", e.CircuitCooldownSeconds)
	}
	if e.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", e.BatchSize)
	}
	if e.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", e.MaxConcurrency)
	}
	if e.InterCallDelayMS < 0 {
		return fmt.Errorf("inter_call_delay_ms must not be negative, got %d", e.InterCallDelayMS)
	}
	if len(e.ProviderPriorityMeta) == 0 {
		return fmt.Errorf("provider_priority_metadata must not be empty")
	}

	m := c.Maintenance
	if m.OptimizeIntervalHours < 1 {
		return fmt.Errorf("optimize_interval_hours must be at least 1, got %d", m.OptimizeIntervalHours)
	}
	if m.BackupEnabled {
		if m.BackupDir == "" {
			return fmt.Errorf("backup_dir is required when backups are enabled")
		}
		if m.BackupIntervalHours < 1 {
			return fmt.Errorf("backup_interval_hours must be at least 1, got %d", m.BackupIntervalHours)
		}
		if m.BackupRetention < 1 {
			return fmt.Errorf("backup_retention must be at least 1, got %d", m.BackupRetention)
		}
	}

	return nil
}
