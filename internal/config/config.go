package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// NOTE: Load creates the file with defaults on first run; Save writes
// atomically with 0600 permissions since basic_auth holds a password.

const (
	defaultListen            = "127.0.0.1:8080"
	defaultTimezone          = "UTC"
	defaultWeekStart         = "monday"
	defaultLogLevel          = "info"
	defaultDigestCron        = "0 7 * * *"
	defaultUpcomingLimit     = 5
	defaultPreviewLimit      = 3
	defaultImportHorizonDays = 90
	defaultCacheDir          = "./var/ics-cache"
)

// DefaultCategories are the categories offered when none are configured.
var DefaultCategories = []string{"meeting", "personal", "work", "social"}

// SourceConfig describes one calendar feed imported at startup.
type SourceConfig struct {
	// ID names the feed in logs.
	ID string `yaml:"id" json:"id"`
	// URL is an http(s) URL, a file:// URL or a local path.
	URL string `yaml:"url" json:"url"`
	// Name is a human-friendly label.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that decides "today" and the display zone
	// of imported feeds (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogFile, if set, also writes logs to a size-rotated file.
	LogFile      string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb,omitempty" json:"log_max_size_mb,omitempty"`
	LogKeepDays  int    `yaml:"log_keep_days,omitempty" json:"log_keep_days,omitempty"`

	// DigestCron is a standard 5-field cron spec for the agenda digest.
	// Empty disables the digest.
	DigestCron string `yaml:"digest_cron" json:"digest_cron"`

	// UpcomingLimit caps the upcoming list.
	UpcomingLimit int `yaml:"upcoming_limit" json:"upcoming_limit"`

	// PreviewLimit is the number of titles shown per month cell.
	PreviewLimit int `yaml:"preview_limit" json:"preview_limit"`

	// Categories lists the category filter options, in display order.
	Categories []string `yaml:"categories" json:"categories"`

	// Sources are imported once at startup.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// ImportHorizonDays bounds recurrence expansion of imported feeds,
	// counted from today.
	ImportHorizonDays int `yaml:"import_horizon_days" json:"import_horizon_days"`

	// CacheDir holds the ETag/body cache of remote feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            defaultListen,
		Timezone:          defaultTimezone,
		WeekStart:         defaultWeekStart,
		LogLevel:          defaultLogLevel,
		DigestCron:        defaultDigestCron,
		UpcomingLimit:     defaultUpcomingLimit,
		PreviewLimit:      defaultPreviewLimit,
		Categories:        append([]string(nil), DefaultCategories...),
		Sources:           []SourceConfig{},
		ImportHorizonDays: defaultImportHorizonDays,
		CacheDir:          defaultCacheDir,
	}
}

// Normalize fills in missing or out-of-range values with defaults so that
// partially-filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = defaultWeekStart
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.UpcomingLimit <= 0 {
		c.UpcomingLimit = defaultUpcomingLimit
	}
	if c.PreviewLimit <= 0 {
		c.PreviewLimit = defaultPreviewLimit
	}
	if len(c.Categories) == 0 {
		c.Categories = append([]string(nil), DefaultCategories...)
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		if c.Sources[i].ID == "" {
			c.Sources[i].ID = fmt.Sprintf("source-%d", i+1)
		}
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = defaultImportHorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if c.DigestCron != "" {
		if _, err := cron.ParseStandard(c.DigestCron); err != nil {
			return fmt.Errorf("config: digest_cron %q: %w", c.DigestCron, err)
		}
	}
	for _, s := range c.Sources {
		if s.URL == "" {
			return fmt.Errorf("config: source %s has no url", s.ID)
		}
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		return errors.New("config: basic_auth needs both username and password")
	}
	return nil
}

// Location loads Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there
//     (parent directory created, 0600 perms) and returned.
//   - Otherwise the YAML is decoded, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller may still run on the defaults.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path via a temp file + rename in the same directory.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schedcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
