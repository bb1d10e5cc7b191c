package config

import (
	"fmt"
	"time"
)

// LimitsConfig bounds the resources a compilation may use.
type LimitsConfig struct {
	MaxConcurrentCompiles int   `yaml:"max_concurrent_compiles"` // Jobs running at once
	CompileTimeoutMs      int64 `yaml:"compile_timeout_ms"`      // Wall clock per compiler run
	MaxErrorOutput        int64 `yaml:"max_error_output"`        // Per stream, bytes
	MaxAsmSize            int64 `yaml:"max_asm_size"`            // Largest assembly read back
	CacheBytes            int64 `yaml:"cache_bytes"`             // In-memory result cache, 0 = off
	TempDirCleanupSecs    int   `yaml:"temp_dir_cleanup_secs"`   // Orphan sweep interval, 0 = off
}

// ValidateLimits checks that limits are within acceptable ranges.
func (c *Config) ValidateLimits() error {
	if c.Limits.MaxConcurrentCompiles < 1 {
		return fmt.Errorf("max_concurrent_compiles must be >= 1")
	}
	if c.Limits.CompileTimeoutMs < 1 {
		return fmt.Errorf("compile_timeout_ms must be >= 1")
	}
	if c.Limits.MaxErrorOutput < 1 {
		return fmt.Errorf("max_error_output must be >= 1")
	}
	if c.Limits.MaxAsmSize < 1 {
		return fmt.Errorf("max_asm_size must be >= 1")
	}
	if c.Limits.CacheBytes < 0 {
		return fmt.Errorf("cache_bytes must be >= 0")
	}
	if c.Limits.TempDirCleanupSecs < 0 {
		return fmt.Errorf("temp_dir_cleanup_secs must be >= 0")
	}
	return nil
}

// CompileTimeout returns the per-run wall clock limit.
func (c *Config) CompileTimeout() time.Duration {
	return time.Duration(c.Limits.CompileTimeoutMs) * time.Millisecond
}

// TempDirCleanupInterval returns how often orphaned workspaces are swept.
// Zero disables the sweep.
func (c *Config) TempDirCleanupInterval() time.Duration {
	return time.Duration(c.Limits.TempDirCleanupSecs) * time.Second
}
