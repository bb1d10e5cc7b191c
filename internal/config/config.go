package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"asmexplorer/internal/compiler"
	"asmexplorer/internal/logging"
)

// Config holds all explorer configuration.
type Config struct {
	// HTTP listener
	Server ServerConfig `yaml:"server"`

	// Resource limits applied to every compilation
	Limits LimitsConfig `yaml:"limits"`

	// Per-job temporary directories
	Workspace WorkspaceConfig `yaml:"workspace"`

	// User option policy
	Options OptionsConfig `yaml:"options"`

	// Site-wide compile settings
	Compile CompileConfig `yaml:"compile"`

	// Persistent result cache
	Cache CacheConfig `yaml:"cache"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Compilers served by this instance
	Compilers []compiler.Descriptor `yaml:"compilers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	settings := compiler.DefaultSettings()
	return &Config{
		Server: ServerConfig{
			Listen:         ":10240",
			MaxConnections: 256,
			ReadTimeout:    "30s",
			WriteTimeout:   "60s",
			ProxyTimeout:   "60s",
			MaxBodyBytes:   1 << 20,
		},

		Limits: LimitsConfig{
			MaxConcurrentCompiles: 2,
			CompileTimeoutMs:      settings.TimeoutMs,
			MaxErrorOutput:        settings.MaxErrorOutput,
			MaxAsmSize:            settings.MaxAsmSize,
			CacheBytes:            200 * 1024 * 1024,
			TempDirCleanupSecs:    600,
		},

		Workspace: WorkspaceConfig{
			Prefix: "explorer-compiler",
		},

		Options: OptionsConfig{
			AllowRe: compiler.DefaultAllowedOptions,
			DenyRe:  compiler.DefaultDeniedOptions,
		},

		Compile: CompileConfig{
			Filename: settings.Filename,
			Wine:     settings.Wine,
			Objdump:  settings.Objdump,
			StubRe:   settings.StubRe,
			StubText: settings.StubText,
			AllowedEnvVars: []string{
				"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR", "TEMP", "TMP",
				"SYSTEMROOT", "WINEPREFIX",
			},
		},

		Cache: CacheConfig{
			MaxAge: "168h",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logging.ConfigInfo("No config at %s, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if listen := os.Getenv("EXPLORER_LISTEN"); listen != "" {
		c.Server.Listen = listen
	}
	if n, ok := envInt("EXPLORER_MAX_CONCURRENT"); ok {
		c.Limits.MaxConcurrentCompiles = int(n)
	}
	if n, ok := envInt("EXPLORER_COMPILE_TIMEOUT_MS"); ok {
		c.Limits.CompileTimeoutMs = n
	}
	if n, ok := envInt("EXPLORER_CACHE_BYTES"); ok {
		c.Limits.CacheBytes = n
	}
	if path := os.Getenv("EXPLORER_CACHE_DB"); path != "" {
		c.Cache.PersistPath = path
	}
}

func envInt(key string) (int64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logging.ConfigWarn("Ignoring %s=%q: %v", key, raw, err)
		return 0, false
	}
	return n, true
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set")
	}
	if err := c.ValidateLimits(); err != nil {
		return err
	}
	if err := c.ValidatePatterns(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return ValidateCompilers(c.Compilers)
}
