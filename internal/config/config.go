// Package config loads foreman settings through viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mpataki/foreman/internal/logging"
	"github.com/mpataki/foreman/internal/prompt"
	"github.com/mpataki/foreman/internal/retry"
	"github.com/mpataki/foreman/internal/workspace"
)

// FileName is the config file name looked up in each config directory.
const FileName = "config.yaml"

type Config struct {
	DataDir       string        `mapstructure:"data_dir"`
	Root          string        `mapstructure:"root"`
	PendingDir    string        `mapstructure:"pending_dir"`
	DoneDir       string        `mapstructure:"done_dir"`
	LedgerFile    string        `mapstructure:"ledger_file"`
	TaskPatterns  []string      `mapstructure:"task_patterns"`
	Planner       string        `mapstructure:"planner"`
	Worker        string        `mapstructure:"worker"`
	MaxIterations int           `mapstructure:"max_iterations"`
	Retry         RetryConfig   `mapstructure:"retry"`
	Prompt        PromptConfig  `mapstructure:"prompt"`
	Hooks         HooksConfig   `mapstructure:"hooks"`
	Logging       LoggingConfig `mapstructure:"logging"`
}

type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseInterval      time.Duration `mapstructure:"base_interval"`
	IntervalIncrement time.Duration `mapstructure:"interval_increment"`
}

type PromptConfig struct {
	MaxPayloadBytes int `mapstructure:"max_payload_bytes"`
}

// HooksConfig points at an optional Lua script. A relative path is resolved
// against the root directory.
type HooksConfig struct {
	Script string `mapstructure:"script"`
}

type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	policy := retry.DefaultConfig()
	layout := workspace.DefaultLayout()
	return &Config{
		DataDir:       defaultDataDir(),
		Root:          layout.Root,
		PendingDir:    layout.Pending,
		DoneDir:       layout.Done,
		LedgerFile:    layout.Ledger,
		TaskPatterns:  layout.TaskPatterns,
		Planner:       "claude",
		Worker:        "claude",
		MaxIterations: 0,
		Retry: RetryConfig{
			MaxAttempts:       policy.MaxAttempts,
			BaseInterval:      policy.BaseInterval,
			IntervalIncrement: policy.IntervalIncrement,
		},
		Prompt:  PromptConfig{MaxPayloadBytes: prompt.DefaultMaxPayloadBytes},
		Hooks:   HooksConfig{Script: layout.Hooks},
		Logging: LoggingConfig{Enabled: true, Level: logging.LevelInfo},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "foreman")
	}
	return filepath.Join(home, ".foreman")
}

// SetDefaults registers every key with viper so environment overrides and
// Unmarshal see them.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("data_dir", defaults.DataDir)
	viper.SetDefault("root", defaults.Root)
	viper.SetDefault("pending_dir", defaults.PendingDir)
	viper.SetDefault("done_dir", defaults.DoneDir)
	viper.SetDefault("ledger_file", defaults.LedgerFile)
	viper.SetDefault("task_patterns", defaults.TaskPatterns)
	viper.SetDefault("planner", defaults.Planner)
	viper.SetDefault("worker", defaults.Worker)
	viper.SetDefault("max_iterations", defaults.MaxIterations)

	viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	viper.SetDefault("retry.base_interval", defaults.Retry.BaseInterval)
	viper.SetDefault("retry.interval_increment", defaults.Retry.IntervalIncrement)

	viper.SetDefault("prompt.max_payload_bytes", defaults.Prompt.MaxPayloadBytes)

	viper.SetDefault("hooks.script", defaults.Hooks.Script)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Init wires viper: defaults, config file search and FOREMAN_ environment
// overrides. An explicit cfgFile must exist; otherwise a missing config file
// is not an error.
func Init(cfgFile string) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(Default().Root)
		viper.AddConfigPath(ConfigDir())
	}

	viper.SetEnvPrefix("FOREMAN")
	// FOREMAN_RETRY_MAX_ATTEMPTS overrides retry.max_attempts
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "foreman")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".foreman"
	}
	return filepath.Join(home, ".config", "foreman")
}

// ProjectConfigFile returns the per-project config path.
func ProjectConfigFile(projectDir string) string {
	return filepath.Join(projectDir, Default().Root, FileName)
}

// Layout returns the workspace layout described by the config.
func (c *Config) Layout() workspace.Layout {
	return workspace.Layout{
		Root:    c.Root,
		Pending: c.PendingDir,
		Done:    c.DoneDir,
		Ledger:  c.LedgerFile,
		Hooks:   c.Hooks.Script,

		TaskPatterns: c.TaskPatterns,
	}
}

// RetryPolicy returns the backoff policy described by the config.
func (c *Config) RetryPolicy() retry.Config {
	return retry.Config{
		MaxAttempts:       c.Retry.MaxAttempts,
		BaseInterval:      c.Retry.BaseInterval,
		IntervalIncrement: c.Retry.IntervalIncrement,
	}
}

// DBPath is the run journal location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "foreman.db")
}

// LogDir is where the log file lives. Empty when logging is disabled.
func (c *Config) LogDir() string {
	if !c.Logging.Enabled {
		return ""
	}
	return filepath.Join(c.DataDir, "logs")
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// fileConfig is the on-disk shape written by WriteFile. Durations are
// kept as strings so the file stays readable.
type fileConfig struct {
	Root          string   `yaml:"root"`
	PendingDir    string   `yaml:"pending_dir"`
	DoneDir       string   `yaml:"done_dir"`
	LedgerFile    string   `yaml:"ledger_file"`
	TaskPatterns  []string `yaml:"task_patterns"`
	Planner       string   `yaml:"planner"`
	Worker        string   `yaml:"worker"`
	MaxIterations int      `yaml:"max_iterations"`
	Retry         struct {
		MaxAttempts       int    `yaml:"max_attempts"`
		BaseInterval      string `yaml:"base_interval"`
		IntervalIncrement string `yaml:"interval_increment"`
	} `yaml:"retry"`
	Prompt struct {
		MaxPayloadBytes int `yaml:"max_payload_bytes"`
	} `yaml:"prompt"`
	Hooks struct {
		Script string `yaml:"script"`
	} `yaml:"hooks"`
	Logging struct {
		Enabled bool   `yaml:"enabled"`
		Level   string `yaml:"level"`
	} `yaml:"logging"`
}

// Marshal renders c as YAML. The data directory is machine specific and is
// left to FOREMAN_DATA_DIR.
func (c *Config) Marshal() ([]byte, error) {
	var f fileConfig
	f.Root = c.Root
	f.PendingDir = c.PendingDir
	f.DoneDir = c.DoneDir
	f.LedgerFile = c.LedgerFile
	f.TaskPatterns = c.TaskPatterns
	f.Planner = c.Planner
	f.Worker = c.Worker
	f.MaxIterations = c.MaxIterations
	f.Retry.MaxAttempts = c.Retry.MaxAttempts
	f.Retry.BaseInterval = c.Retry.BaseInterval.String()
	f.Retry.IntervalIncrement = c.Retry.IntervalIncrement.String()
	f.Prompt.MaxPayloadBytes = c.Prompt.MaxPayloadBytes
	f.Hooks.Script = c.Hooks.Script
	f.Logging.Enabled = c.Logging.Enabled
	f.Logging.Level = c.Logging.Level
	return yaml.Marshal(&f)
}

// ErrConfigExists is returned by WriteFile when the target already exists
// and overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// WriteFile writes c as YAML to path.
func (c *Config) WriteFile(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
