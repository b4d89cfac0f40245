package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all burnmeter configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	ClaudeAI   ClaudeAIConfig   `toml:"claude_ai"`
	Limits     LimitsConfig     `toml:"limits"`
	Daemon     DaemonConfig     `toml:"daemon"`
	Thresholds ThresholdsConfig `toml:"thresholds"`
	Logging    LoggingConfig    `toml:"logging"`
	Pricing    PricingOverrides `toml:"pricing"`
	Projects   []ProjectConfig  `toml:"projects,omitempty"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	ClaudeDir string `toml:"claude_dir,omitempty"`
	// Plan is one of "pro", "max5x", "max20x"; empty means auto-detect.
	Plan string `toml:"plan,omitempty"`
	// Theme names the watch dashboard palette.
	Theme string `toml:"theme,omitempty"`
}

// ClaudeAIConfig holds claude.ai web API settings.
type ClaudeAIConfig struct {
	SessionKey       string   `toml:"session_key,omitempty"`
	OrgID            string   `toml:"org_id,omitempty"`
	FetchTimeout     Duration `toml:"fetch_timeout"`
	MinFetchInterval Duration `toml:"min_fetch_interval"`
}

// LimitsConfig holds explicit token budgets. Zero fields fall back to the
// plan preset.
type LimitsConfig struct {
	WeeklyTokens   int64 `toml:"weekly_tokens,omitempty"`
	DailyTokens    int64 `toml:"daily_tokens,omitempty"`
	SessionTokens  int64 `toml:"session_tokens,omitempty"`
	WeeklyResetDay *int  `toml:"weekly_reset_day,omitempty"`
}

// DaemonConfig holds background refresh settings.
type DaemonConfig struct {
	Interval              Duration `toml:"interval"`
	Addr                  string   `toml:"addr"`
	EventsBuffer          int      `toml:"events_buffer"`
	ScanPruneInterval     Duration `toml:"scan_prune_interval"`
	WorktimePruneInterval Duration `toml:"worktime_prune_interval"`
	Watch                 bool     `toml:"watch"`
}

// ThresholdsConfig holds warning and critical usage ratios.
type ThresholdsConfig struct {
	SessionWarning  float64 `toml:"session_warning"`
	SessionCritical float64 `toml:"session_critical"`
	WeeklyWarning   float64 `toml:"weekly_warning"`
	WeeklyCritical  float64 `toml:"weekly_critical"`
}

// LoggingConfig selects the zap logger flavor.
type LoggingConfig struct {
	Env   string `toml:"env,omitempty"`
	Level string `toml:"level,omitempty"`
}

// ProjectConfig names a project explicitly instead of discovering it.
type ProjectConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// PricingOverrides allows user-defined pricing for specific models.
type PricingOverrides struct {
	Overrides map[string]ModelPricingOverride `toml:"overrides,omitempty"`
}

// ModelPricingOverride holds per-model pricing overrides.
type ModelPricingOverride struct {
	InputPerMTok        *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok       *float64 `toml:"output_per_mtok,omitempty"`
	CacheWrite5mPerMTok *float64 `toml:"cache_write_5m_per_mtok,omitempty"`
	CacheWrite1hPerMTok *float64 `toml:"cache_write_1h_per_mtok,omitempty"`
	CacheReadPerMTok    *float64 `toml:"cache_read_per_mtok,omitempty"`
}

// Duration is a time.Duration that reads and writes as a TOML string
// such as "5s" or "1h30m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ClaudeAI: ClaudeAIConfig{
			FetchTimeout:     Duration{10 * time.Second},
			MinFetchInterval: Duration{30 * time.Second},
		},
		Daemon: DaemonConfig{
			Interval:              Duration{5 * time.Second},
			Addr:                  "127.0.0.1:8787",
			EventsBuffer:          200,
			ScanPruneInterval:     Duration{time.Hour},
			WorktimePruneInterval: Duration{6 * time.Hour},
			Watch:                 true,
		},
		Thresholds: ThresholdsConfig{
			SessionWarning:  0.62,
			SessionCritical: 0.93,
			WeeklyWarning:   0.65,
			WeeklyCritical:  0.80,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "burnmeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "burnmeter")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path over the defaults.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // user-owned config path
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes the config to path with owner-only permissions.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // user-owned config path
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// GetSessionKey returns the claude.ai session key from env var or config,
// in that order.
func GetSessionKey(cfg Config) string {
	if key := os.Getenv("CLAUDE_SESSION_KEY"); key != "" {
		return key
	}
	return cfg.ClaudeAI.SessionKey
}

// ClaudeDir returns the Claude data directory: BURNMETER_CLAUDE_DIR, then
// the config value, then ~/.claude.
func ClaudeDir(cfg Config) string {
	if dir := os.Getenv("BURNMETER_CLAUDE_DIR"); dir != "" {
		return dir
	}
	if cfg.General.ClaudeDir != "" {
		return cfg.General.ClaudeDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude")
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
