package config

import (
	"fmt"
	"net/url"
	"regexp"

	"asmexplorer/internal/compiler"
	"asmexplorer/internal/tactile"
)

// WorkspaceConfig places per-job directories.
type WorkspaceConfig struct {
	Root   string `yaml:"root"` // empty = system temp dir
	Prefix string `yaml:"prefix"`
}

// OptionsConfig is the user option policy. An option must match AllowRe
// and must not match DenyRe.
type OptionsConfig struct {
	AllowRe string `yaml:"allow_re"`
	DenyRe  string `yaml:"deny_re"`
}

// CompileConfig holds site-wide compile settings.
type CompileConfig struct {
	Filename         string   `yaml:"filename"`
	CompileToAsm     string   `yaml:"compile_to_asm"`
	CompileToBinary  string   `yaml:"compile_to_binary"`
	CompilerWrapper  string   `yaml:"compiler_wrapper"`
	Wine             string   `yaml:"wine"`
	Objdump          string   `yaml:"objdump"`
	StubRe           string   `yaml:"stub_re"`
	StubText         string   `yaml:"stub_text"`
	Multiarch        string   `yaml:"multiarch"`
	AllowedEnvVars   []string `yaml:"allowed_env_vars"`
	BinaryHideFuncRe string   `yaml:"binary_hide_func_re"`
}

// CompilerSettings returns the settings shared by all compilers.
func (c *Config) CompilerSettings() compiler.Settings {
	return compiler.Settings{
		Filename:        c.Compile.Filename,
		CompileToAsm:    c.Compile.CompileToAsm,
		CompileToBinary: c.Compile.CompileToBinary,
		CompilerWrapper: c.Compile.CompilerWrapper,
		Wine:            c.Compile.Wine,
		Objdump:         c.Compile.Objdump,
		StubRe:          c.Compile.StubRe,
		StubText:        c.Compile.StubText,
		Multiarch:       c.Compile.Multiarch,
		TimeoutMs:       c.Limits.CompileTimeoutMs,
		MaxErrorOutput:  c.Limits.MaxErrorOutput,
		MaxAsmSize:      c.Limits.MaxAsmSize,
		HideFunctions:   c.Compile.BinaryHideFuncRe,
	}
}

// ExecutorConfig returns the subprocess executor settings.
func (c *Config) ExecutorConfig() tactile.ExecutorConfig {
	cfg := tactile.DefaultExecutorConfig()
	cfg.DefaultTimeout = c.CompileTimeout()
	cfg.MaxOutputBytes = c.Limits.MaxErrorOutput
	if c.Compile.AllowedEnvVars != nil {
		cfg.AllowedEnvironment = append([]string(nil), c.Compile.AllowedEnvVars...)
	}
	return cfg
}

// OptionsPolicy compiles the option policy.
func (c *Config) OptionsPolicy() (*compiler.OptionsPolicy, error) {
	return compiler.NewOptionsPolicy(c.Options.AllowRe, c.Options.DenyRe)
}

// ValidatePatterns checks that every configured regular expression compiles.
func (c *Config) ValidatePatterns() error {
	patterns := map[string]string{
		"options.allow_re":            c.Options.AllowRe,
		"options.deny_re":             c.Options.DenyRe,
		"compile.stub_re":             c.Compile.StubRe,
		"compile.binary_hide_func_re": c.Compile.BinaryHideFuncRe,
	}
	for key, pattern := range patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

// ValidateCompilers checks compiler descriptors for missing and duplicate
// ids and for entries that can neither run locally nor be forwarded.
func ValidateCompilers(descs []compiler.Descriptor) error {
	seen := make(map[string]bool, len(descs))
	for i, d := range descs {
		if d.ID == "" {
			return fmt.Errorf("compilers[%d]: id must be set", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("compilers[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true

		if d.Exe == "" && d.Remote == "" {
			return fmt.Errorf("compiler %q: one of exe or remote must be set", d.ID)
		}
		if d.Remote != "" {
			u, err := url.Parse(d.Remote)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("compiler %q: invalid remote %q", d.ID, d.Remote)
			}
		}
		switch d.LineFormat {
		case compiler.LineFormatNone, compiler.LineFormat6g:
		default:
			return fmt.Errorf("compiler %q: unknown line_format %q", d.ID, d.LineFormat)
		}
	}
	return nil
}
