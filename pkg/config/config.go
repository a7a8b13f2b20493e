/*
Package config manages the TOML configuration of ghostserve.

Configuration is resolved with priority: an explicit --config path, then
[UserConfigDir]/ghostserve/config.toml (created with defaults when
missing), then builtin defaults. A file that does not fully match the
schema is salvaged section by section:

	cfg, path, err := config.LoadConfigWithPriority(flagPath)
	timeout := cfg.Completion.Timeout()
	format := cfg.FormatFor("file:///src/main.go")
*/
package config

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bastiangx/ghostserve/internal/utils"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure.
type Config struct {
	Completion   CompletionConfig `toml:"completion"`
	Editor       EditorConfig     `toml:"editor"`
	Server       ServerConfig     `toml:"server"`
	Capabilities Capabilities     `toml:"capabilities"`
}

// CompletionConfig tunes the request coordinator.
type CompletionConfig struct {
	TimeoutMs            int     `toml:"timeout_ms"`
	DebounceMs           int     `toml:"debounce_ms"`
	MaxRequestsPerSecond float64 `toml:"max_requests_per_second"`
}

// Timeout returns the completion call ceiling.
func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Debounce returns the delay before a scheduled request runs.
func (c CompletionConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// EditorConfig holds formatting preferences, optionally per extension.
type EditorConfig struct {
	TabSize      int                            `toml:"tab_size"`
	InsertSpaces bool                           `toml:"insert_spaces"`
	Languages    map[string]ghost.FormatOptions `toml:"languages,omitempty"`
}

// ServerConfig has options of the local completion backend and IPC server.
type ServerConfig struct {
	MaxItems   int     `toml:"max_items"`
	MinPrefix  int     `toml:"min_prefix"`
	MaxPrefix  int     `toml:"max_prefix"`
	RateLimit  float64 `toml:"rate_limit"`
	Dictionary string  `toml:"dictionary,omitempty"`
}

// Capabilities are negotiated once at startup and injected into sessions.
type Capabilities struct {
	PartialAccept bool `toml:"partial_accept"`
	MultiLine     bool `toml:"multi_line"`
	Cycle         bool `toml:"cycle"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Completion: CompletionConfig{
			TimeoutMs:            5000,
			DebounceMs:           0,
			MaxRequestsPerSecond: 0,
		},
		Editor: EditorConfig{
			TabSize:      4,
			InsertSpaces: true,
		},
		Server: ServerConfig{
			MaxItems:  8,
			MinPrefix: 1,
			MaxPrefix: 60,
			RateLimit: 100,
		},
		Capabilities: Capabilities{
			PartialAccept: true,
			MultiLine:     true,
			Cycle:         true,
		},
	}
}

// FormatFor returns the formatting options for uri, using the override
// for its extension when one exists.
func (c *Config) FormatFor(uri string) ghost.FormatOptions {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(uri)), ".")
	if opts, ok := c.Editor.Languages[ext]; ok && ext != "" {
		if opts.TabSize <= 0 {
			opts.TabSize = c.Editor.TabSize
		}
		return opts
	}
	return ghost.FormatOptions{
		TabSize:      c.Editor.TabSize,
		InsertSpaces: c.Editor.InsertSpaces,
	}
}

// Validate replaces out-of-range values with defaults.
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.Completion.TimeoutMs <= 0 {
		log.Warnf("completion.timeout_ms must be positive, using %d", def.Completion.TimeoutMs)
		c.Completion.TimeoutMs = def.Completion.TimeoutMs
	}
	if c.Completion.DebounceMs < 0 {
		c.Completion.DebounceMs = 0
	}
	if c.Completion.MaxRequestsPerSecond < 0 {
		c.Completion.MaxRequestsPerSecond = 0
	}
	if c.Editor.TabSize <= 0 {
		c.Editor.TabSize = def.Editor.TabSize
	}
	if c.Server.MaxItems <= 0 {
		c.Server.MaxItems = def.Server.MaxItems
	}
	if c.Server.MinPrefix < 1 {
		c.Server.MinPrefix = def.Server.MinPrefix
	}
	if c.Server.MaxPrefix < c.Server.MinPrefix {
		log.Warnf("server.max_prefix %d below min_prefix %d, using %d",
			c.Server.MaxPrefix, c.Server.MinPrefix, def.Server.MaxPrefix)
		c.Server.MaxPrefix = def.Server.MaxPrefix
	}
	if c.Server.RateLimit < 0 {
		c.Server.RateLimit = 0
	}
}

// GetConfigDir returns the config directory with fallback priority:
// 1. platform config dir (~/.config/ghostserve)
// 2. ~/Library/Application Support/ghostserve
// 3. current executable dir
func GetConfigDir() (string, error) {
	resolver := utils.NewPathResolver()
	primary := resolver.ConfigDir()
	if result := utils.CheckDirStatus(primary); result.Writable {
		return primary, nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		macOSPath := filepath.Join(home, "Library", "Application Support", utils.AppName)
		if result := utils.CheckDirStatus(macOSPath); result.Writable {
			return macOSPath, nil
		}
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml.
func GetDefaultConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/ghostserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customPath string) (*Config, string, error) {
	if customPath != "" {
		if _, statErr := os.Stat(customPath); statErr == nil {
			cfg, err := LoadConfig(customPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customPath)
				return cfg, customPath, nil
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customPath, err)
		} else {
			log.Warnf("Custom config file not found at %s. Trying default path...", customPath)
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}
	cfg, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return cfg, defaultPath, nil
}

// InitConfig loads config from file or creates it with defaults if missing.
func InitConfig(configPath string) (*Config, error) {
	if err := utils.EnsureDir(filepath.Dir(configPath)); err != nil {
		log.Warnf("Failed to create config directory: %v. Using built-in defaults...", err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return cfg, nil
	}
	return LoadConfig(configPath)
}

// LoadConfig loads from a TOML file, salvaging valid sections when the
// file does not decode as a whole.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if err := utils.LoadTOMLFile(configPath, cfg); err != nil {
		return tryPartialParse(configPath)
	}
	cfg.Validate()
	return cfg, nil
}

func tryPartialParse(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	raw, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s. Using all defaults.", configPath)
		return cfg, nil
	}

	if section, ok := utils.ExtractSection(raw, "completion"); ok {
		extractCompletionConfig(section, &cfg.Completion)
	}
	if section, ok := utils.ExtractSection(raw, "editor"); ok {
		extractEditorConfig(section, &cfg.Editor)
	}
	if section, ok := utils.ExtractSection(raw, "server"); ok {
		extractServerConfig(section, &cfg.Server)
	}
	if section, ok := utils.ExtractSection(raw, "capabilities"); ok {
		extractCapabilities(section, &cfg.Capabilities)
	}
	cfg.Validate()
	return cfg, nil
}

func extractCompletionConfig(data map[string]any, c *CompletionConfig) {
	if val, ok := utils.ExtractInt64(data, "timeout_ms"); ok {
		c.TimeoutMs = val
	}
	if val, ok := utils.ExtractInt64(data, "debounce_ms"); ok {
		c.DebounceMs = val
	}
	if val, ok := utils.ExtractFloat(data, "max_requests_per_second"); ok {
		c.MaxRequestsPerSecond = val
	}
}

func extractFormat(data map[string]any, f *ghost.FormatOptions) {
	if val, ok := utils.ExtractInt64(data, "tab_size"); ok {
		f.TabSize = val
	}
	if val, ok := utils.ExtractBool(data, "insert_spaces"); ok {
		f.InsertSpaces = val
	}
}

func extractEditorConfig(data map[string]any, e *EditorConfig) {
	base := ghost.FormatOptions{TabSize: e.TabSize, InsertSpaces: e.InsertSpaces}
	extractFormat(data, &base)
	e.TabSize, e.InsertSpaces = base.TabSize, base.InsertSpaces

	languages, ok := utils.ExtractSection(data, "languages")
	if !ok {
		return
	}
	for ext, raw := range languages {
		section, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		opts := base
		extractFormat(section, &opts)
		if e.Languages == nil {
			e.Languages = make(map[string]ghost.FormatOptions)
		}
		e.Languages[ext] = opts
	}
}

func extractServerConfig(data map[string]any, s *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_items"); ok {
		s.MaxItems = val
	}
	if val, ok := utils.ExtractInt64(data, "min_prefix"); ok {
		s.MinPrefix = val
	}
	if val, ok := utils.ExtractInt64(data, "max_prefix"); ok {
		s.MaxPrefix = val
	}
	if val, ok := utils.ExtractFloat(data, "rate_limit"); ok {
		s.RateLimit = val
	}
	if val, ok := utils.ExtractString(data, "dictionary"); ok {
		s.Dictionary = val
	}
}

func extractCapabilities(data map[string]any, c *Capabilities) {
	if val, ok := utils.ExtractBool(data, "partial_accept"); ok {
		c.PartialAccept = val
	}
	if val, ok := utils.ExtractBool(data, "multi_line"); ok {
		c.MultiLine = val
	}
	if val, ok := utils.ExtractBool(data, "cycle"); ok {
		c.Cycle = val
	}
}

// RebuildConfigFile force creates a new config.toml at the default path.
func RebuildConfigFile() (string, error) {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return "", err
	}
	return defaultPath, SaveConfig(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of the loaded config file.
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		return "builtin defaults"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file.
func SaveConfig(cfg *Config, configPath string) error {
	return utils.SaveTOMLFile(cfg, configPath)
}
