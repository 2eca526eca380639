package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/idlewatch/pkg/inactivity"
)

// Config holds all configuration for idlewatch
type Config struct {
	// Inactivity policy
	Timeout            time.Duration `yaml:"timeout" env:"IDLEWATCH_TIMEOUT"`
	WarningThreshold   time.Duration `yaml:"warning_threshold" env:"IDLEWATCH_WARNING"`
	MinActivitySpacing time.Duration `yaml:"min_activity_spacing" env:"IDLEWATCH_SPACING"`

	// Notification settings
	NtfyTopic  string `yaml:"ntfy_topic" env:"IDLEWATCH_TOPIC"`
	NtfyServer string `yaml:"ntfy_server" env:"IDLEWATCH_SERVER"`

	// Behavior flags
	Quiet              bool `yaml:"quiet" env:"IDLEWATCH_QUIET"`
	StartupNotify      bool `yaml:"startup_notify" env:"IDLEWATCH_STARTUP"`
	TerminateOnTimeout bool `yaml:"terminate_on_timeout" env:"IDLEWATCH_TERMINATE"`
	FocusTracking      bool `yaml:"focus_tracking" env:"IDLEWATCH_FOCUS"`

	// Live state bridge listen address; empty disables the listener
	ListenAddr string `yaml:"listen_addr" env:"IDLEWATCH_LISTEN"`

	// Command to wrap when none is given on the command line
	DefaultCommand string   `yaml:"default_command" env:"IDLEWATCH_COMMAND"`
	DefaultArgs    []string `yaml:"default_args"`

	// Output lines matching these patterns never count as activity
	IgnorePatterns []Pattern `yaml:"ignore_patterns"`
}

// Pattern represents a configurable ignore pattern.
type Pattern struct {
	Name     string         `yaml:"name"`
	Regex    string         `yaml:"regex"`
	Enabled  bool           `yaml:"enabled"`
	compiled *regexp.Regexp `yaml:"-"`
}

// CompiledRegex returns the compiled regular expression
func (p *Pattern) CompiledRegex() *regexp.Regexp {
	return p.compiled
}

// SetCompiledRegex sets the compiled regular expression
func (p *Pattern) SetCompiledRegex(re *regexp.Regexp) {
	p.compiled = re
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:            10 * time.Minute,
		WarningThreshold:   1 * time.Minute,
		MinActivitySpacing: 1 * time.Second,
		NtfyServer:         "https://ntfy.sh",
		StartupNotify:      true,
		FocusTracking:      true,
		IgnorePatterns: []Pattern{
			{
				Name:    "blank",
				Regex:   `^\s*$`,
				Enabled: true,
			},
			{
				Name:    "spinner",
				Regex:   `^[\s|/\\.⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏-]+$`,
				Enabled: true,
			},
			{
				Name:    "clock",
				Regex:   `^\s*\d{1,2}:\d{2}(:\d{2})?\s*$`,
				Enabled: true,
			},
		},
	}
}

// Load loads configuration from the default file location and the
// environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	configPath := DefaultPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from an explicit file, which must
// exist, then applies environment overrides
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies environment overrides, compiles patterns, and
// validates
func finish(cfg *Config) error {
	if err := loadFromEnv(cfg); err != nil {
		return fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := compilePatterns(cfg); err != nil {
		return fmt.Errorf("failed to compile patterns: %w", err)
	}

	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// Policy returns the inactivity policy portion of the configuration
func (c *Config) Policy() inactivity.Policy {
	return inactivity.Policy{
		Timeout:            c.Timeout,
		WarningThreshold:   c.WarningThreshold,
		MinActivitySpacing: c.MinActivitySpacing,
	}
}

// DefaultPath returns the config file path
func DefaultPath() string {
	// Check for explicit config path
	if path := os.Getenv("IDLEWATCH_CONFIG"); path != "" {
		return path
	}

	// Check XDG config directory
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "idlewatch", "config.yaml")
	}

	// Fall back to home directory
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "idlewatch", "config.yaml")
	}

	return ""
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - The config file path comes from trusted sources (env var or standard locations)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if err := durationFromEnv("IDLEWATCH_TIMEOUT", &cfg.Timeout); err != nil {
		return err
	}
	if err := durationFromEnv("IDLEWATCH_WARNING", &cfg.WarningThreshold); err != nil {
		return err
	}
	if err := durationFromEnv("IDLEWATCH_SPACING", &cfg.MinActivitySpacing); err != nil {
		return err
	}

	if topic := os.Getenv("IDLEWATCH_TOPIC"); topic != "" {
		cfg.NtfyTopic = topic
	}
	if server := os.Getenv("IDLEWATCH_SERVER"); server != "" {
		cfg.NtfyServer = server
	}
	if listen := os.Getenv("IDLEWATCH_LISTEN"); listen != "" {
		cfg.ListenAddr = listen
	}
	if command := os.Getenv("IDLEWATCH_COMMAND"); command != "" {
		cfg.DefaultCommand = command
	}

	if err := boolFromEnv("IDLEWATCH_QUIET", &cfg.Quiet); err != nil {
		return err
	}
	if err := boolFromEnv("IDLEWATCH_STARTUP", &cfg.StartupNotify); err != nil {
		return err
	}
	if err := boolFromEnv("IDLEWATCH_TERMINATE", &cfg.TerminateOnTimeout); err != nil {
		return err
	}
	if err := boolFromEnv("IDLEWATCH_FOCUS", &cfg.FocusTracking); err != nil {
		return err
	}

	return nil
}

// durationFromEnv overrides dst when the variable is set
func durationFromEnv(name string, dst *time.Duration) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

// boolFromEnv overrides dst when the variable is set
func boolFromEnv(name string, dst *bool) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	switch value {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		return fmt.Errorf("invalid %s value: %q (use true/false)", name, value)
	}
	return nil
}

// compilePatterns compiles all regex patterns
func compilePatterns(cfg *Config) error {
	for i := range cfg.IgnorePatterns {
		pattern := &cfg.IgnorePatterns[i]
		if pattern.Enabled && pattern.Regex != "" {
			re, err := regexp.Compile(pattern.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile pattern %q: %w", pattern.Name, err)
			}
			pattern.SetCompiledRegex(re)
		}
	}
	return nil
}

// validate validates the configuration. The topic is deliberately not
// required here; the command decides how to notify when none is set.
func validate(cfg *Config) error {
	if err := cfg.Policy().Validate(); err != nil {
		return err
	}

	if cfg.NtfyServer != "" {
		u, err := url.Parse(cfg.NtfyServer)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("ntfy_server must be an http or https URL, got %q", cfg.NtfyServer)
		}
	}

	return nil
}
