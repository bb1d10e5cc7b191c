package compiler

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"sync"

	"asmexplorer/internal/asm"
	"asmexplorer/internal/logging"
	"asmexplorer/internal/tactile"
	"asmexplorer/internal/workspace"
)

// OutputFilename is the assembly file every compiler is told to write.
// Kept lower case: some compilers lower-case the name they are given.
const OutputFilename = "output.s"

// Settings are the site-wide compilation settings shared by all compilers.
type Settings struct {
	// Filename is the name the source is written under, e.g. example.cpp.
	Filename string
	// CompileToAsm overrides each descriptor's AsmFlag when set.
	CompileToAsm string
	// CompileToBinary are the flags used instead when a binary is wanted.
	CompileToBinary string
	// CompilerWrapper, when set, is run with the real command as arguments.
	CompilerWrapper string
	Wine            string
	Objdump         string
	// StubRe recognises a program entry point; StubText is appended to
	// binary-mode sources that lack one.
	StubRe   string
	StubText string
	// Multiarch is the Debian multiarch triple for NeedsMulti compilers.
	Multiarch string

	TimeoutMs      int64
	MaxErrorOutput int64
	MaxAsmSize     int64
	// HideFunctions overrides the functions hidden from disassembly.
	HideFunctions string
}

// DefaultSettings returns the stock settings.
func DefaultSettings() Settings {
	return Settings{
		Filename:       "example.cpp",
		Wine:           "wine",
		Objdump:        "objdump",
		StubRe:         `\bmain\b`,
		StubText:       "int main(void){return 0;}",
		TimeoutMs:      7500,
		MaxErrorOutput: 5000,
		MaxAsmSize:     8 * 1024 * 1024,
	}
}

// Environment is the state shared by every compiler: settings, the
// workspace manager, the process executor and the options policy.
type Environment struct {
	settings   Settings
	workspaces *workspace.Manager
	executor   tactile.Executor
	options    *OptionsPolicy
	processor  *asm.Processor
	stubRe     *regexp.Regexp
}

// NewEnvironment validates settings and builds the shared environment.
func NewEnvironment(settings Settings, workspaces *workspace.Manager, executor tactile.Executor, options *OptionsPolicy) (*Environment, error) {
	defaults := DefaultSettings()
	if settings.Filename == "" {
		settings.Filename = defaults.Filename
	}
	if settings.Wine == "" {
		settings.Wine = defaults.Wine
	}
	if settings.Objdump == "" {
		settings.Objdump = defaults.Objdump
	}
	if settings.StubRe == "" {
		settings.StubRe = defaults.StubRe
	}
	if settings.StubText == "" {
		settings.StubText = defaults.StubText
	}
	if settings.TimeoutMs <= 0 {
		settings.TimeoutMs = defaults.TimeoutMs
	}
	if settings.MaxErrorOutput <= 0 {
		settings.MaxErrorOutput = defaults.MaxErrorOutput
	}
	if settings.MaxAsmSize <= 0 {
		settings.MaxAsmSize = defaults.MaxAsmSize
	}

	stubRe, err := regexp.Compile(settings.StubRe)
	if err != nil {
		return nil, fmt.Errorf("invalid stub pattern: %w", err)
	}
	processor, err := asm.NewProcessor(asm.Options{
		InputFilename: path.Base(settings.Filename),
		HideFunctions: settings.HideFunctions,
	})
	if err != nil {
		return nil, err
	}
	if options == nil {
		if options, err = NewOptionsPolicy("", ""); err != nil {
			return nil, err
		}
	}
	if workspaces == nil {
		workspaces = workspace.NewManager("", "")
	}
	if executor == nil {
		executor = tactile.NewDirectExecutor()
	}

	return &Environment{
		settings:   settings,
		workspaces: workspaces,
		executor:   executor,
		options:    options,
		processor:  processor,
		stubRe:     stubRe,
	}, nil
}

// Settings returns the effective settings.
func (e *Environment) Settings() Settings {
	return e.settings
}

// Options returns the options policy.
func (e *Environment) Options() *OptionsPolicy {
	return e.options
}

// Workspaces returns the workspace manager.
func (e *Environment) Workspaces() *workspace.Manager {
	return e.workspaces
}

// Validate runs the checks that must pass before any file or process work.
func (e *Environment) Validate(source string, options []string) error {
	if err := e.options.CheckOptions(options); err != nil {
		return err
	}
	return CheckSource(source)
}

var warnMultiarch sync.Once

// processEnv returns the variables a compiler runs with on top of the
// executor's allowed host variables.
func (e *Environment) processEnv(d Descriptor) []string {
	var env []string
	if d.NeedsMulti {
		if e.settings.Multiarch != "" {
			env = append(env, "LIBRARY_PATH=/usr/lib/"+e.settings.Multiarch)
		} else {
			warnMultiarch.Do(func() {
				logging.CompileWarn("Compiler %s needs multiarch but no multiarch triple is configured", d.ID)
			})
		}
	}

	keys := make([]string, 0, len(d.Env))
	for key := range d.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+d.Env[key])
	}
	return env
}
