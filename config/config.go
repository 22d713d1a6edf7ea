package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"driftwatch/paths"
)

// Default values applied when the config file is missing or fields are unset
const (
	DefaultDebounceSeconds = 5
	DefaultPollSeconds     = 5
	DefaultThreshold       = 50
	DefaultMessageTemplate = "checkpoint: complexity delta {delta}"
)

// Config is the structure of $DRIFTWATCH_HOME/config.json
type Config struct {
	Daemon   DaemonConfig   `json:"daemon"`
	Defaults DefaultsConfig `json:"defaults"`
	Repos    []RepoConfig   `json:"repos"`
}

// DaemonConfig holds process-wide daemon settings
type DaemonConfig struct {
	DebounceSeconds int    `json:"debounce_seconds,omitempty"`
	LogLevel        string `json:"log_level,omitempty"`
	PollSeconds     int    `json:"poll_seconds,omitempty"`
}

// DefaultsConfig holds per-repository defaults
type DefaultsConfig struct {
	Threshold       int      `json:"threshold,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	MessageTemplate string   `json:"message_template,omitempty"`
}

// RepoConfig is one watched repository entry. Nil pattern slices and a zero
// threshold fall back to the defaults section.
type RepoConfig struct {
	Path            string   `json:"path"`
	Enabled         bool     `json:"enabled"`
	Threshold       int      `json:"threshold,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	MessageTemplate string   `json:"message_template,omitempty"`
}

// RepoSettings is a fully resolved view of one repository's configuration
// after defaults have been applied.
type RepoSettings struct {
	Path            string
	Threshold       int
	IncludePatterns []string
	ExcludePatterns []string
	MessageTemplate string
}

// Default returns a config populated with documented defaults
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			DebounceSeconds: DefaultDebounceSeconds,
			LogLevel:        "info",
			PollSeconds:     DefaultPollSeconds,
		},
		Defaults: DefaultsConfig{
			Threshold:       DefaultThreshold,
			MessageTemplate: DefaultMessageTemplate,
		},
		Repos: []RepoConfig{},
	}
}

// Load reads the config file. A missing file yields Default(), not an error.
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigPath())
}

// LoadFrom reads a config file from an explicit path
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	for i := range cfg.Repos {
		cfg.Repos[i].Path = paths.ExpandPath(cfg.Repos[i].Path)
	}

	return &cfg, nil
}

// Save writes the config file, creating the directory if needed
func (c *Config) Save() error {
	return c.SaveTo(paths.ConfigPath())
}

// SaveTo writes the config to an explicit path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DebounceSeconds returns the configured debounce in seconds, defaulted
func (c *Config) DebounceSeconds() int {
	if c.Daemon.DebounceSeconds <= 0 {
		return DefaultDebounceSeconds
	}
	return c.Daemon.DebounceSeconds
}

// PollSeconds returns the git state poll interval in seconds, defaulted
func (c *Config) PollSeconds() int {
	if c.Daemon.PollSeconds <= 0 {
		return DefaultPollSeconds
	}
	return c.Daemon.PollSeconds
}

// FindRepo returns the repo entry whose path matches, or nil
func (c *Config) FindRepo(path string) *RepoConfig {
	for i := range c.Repos {
		if c.Repos[i].Path == path {
			return &c.Repos[i]
		}
	}
	return nil
}

// AddRepo appends a new enabled repo entry. Duplicate paths are rejected.
func (c *Config) AddRepo(path string) error {
	if c.FindRepo(path) != nil {
		return fmt.Errorf("repository already configured: %s", path)
	}
	c.Repos = append(c.Repos, RepoConfig{Path: path, Enabled: true})
	return nil
}

// RemoveRepo deletes a repo entry by path
func (c *Config) RemoveRepo(path string) error {
	for i := range c.Repos {
		if c.Repos[i].Path == path {
			c.Repos = append(c.Repos[:i], c.Repos[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("repository not configured: %s", path)
}

// Resolve merges a repo entry with the defaults section
func (c *Config) Resolve(repo RepoConfig) RepoSettings {
	settings := RepoSettings{
		Path:            repo.Path,
		Threshold:       repo.Threshold,
		IncludePatterns: repo.IncludePatterns,
		ExcludePatterns: repo.ExcludePatterns,
		MessageTemplate: repo.MessageTemplate,
	}
	if settings.Threshold <= 0 {
		settings.Threshold = c.Defaults.Threshold
	}
	if settings.Threshold <= 0 {
		settings.Threshold = DefaultThreshold
	}
	if settings.IncludePatterns == nil {
		settings.IncludePatterns = c.Defaults.IncludePatterns
	}
	if settings.ExcludePatterns == nil {
		settings.ExcludePatterns = c.Defaults.ExcludePatterns
	}
	if settings.MessageTemplate == "" {
		settings.MessageTemplate = c.Defaults.MessageTemplate
	}
	if settings.MessageTemplate == "" {
		settings.MessageTemplate = DefaultMessageTemplate
	}
	return settings
}

// forbiddenWatchPaths are roots that must never be put under watch
var forbiddenWatchPaths = []string{"/", "/bin", "/boot", "/dev", "/etc", "/lib", "/proc", "/root", "/sbin", "/sys", "/tmp", "/usr", "/var"}

// ValidateRepoPath rejects non-directories and forbidden system paths.
// Returns the cleaned absolute path on success.
func ValidateRepoPath(path string) (string, error) {
	abs, err := filepath.Abs(paths.ExpandPath(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	abs = filepath.Clean(abs)

	for _, forbidden := range forbiddenWatchPaths {
		if abs == forbidden {
			return "", fmt.Errorf("refusing to watch system path: %s", abs)
		}
	}
	if homeDir, err := os.UserHomeDir(); err == nil && abs == filepath.Clean(homeDir) {
		return "", fmt.Errorf("refusing to watch home directory: %s", abs)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}

	return abs, nil
}
