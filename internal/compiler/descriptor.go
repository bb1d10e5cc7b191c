package compiler

import (
	"strings"
)

// Line formats a compiler may print instead of writing an assembly file.
const (
	LineFormatNone = ""
	LineFormat6g   = "6g"
)

// Descriptor describes one configured compiler. Descriptors are loaded from
// configuration and never modified afterwards.
type Descriptor struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Exe    string `yaml:"exe,omitempty" json:"exe,omitempty"`
	Remote string `yaml:"remote,omitempty" json:"remote,omitempty"`

	// Options are appended to every user option list.
	Options string `yaml:"options,omitempty" json:"options,omitempty"`
	// IntelAsm holds the flags selecting Intel syntax in -S output.
	IntelAsm   string `yaml:"intel_asm,omitempty" json:"intelAsm,omitempty"`
	AsmFlag    string `yaml:"asm_flag,omitempty" json:"asmFlag,omitempty"`
	OutputFlag string `yaml:"output_flag,omitempty" json:"outputFlag,omitempty"`

	SupportsBinary bool `yaml:"supports_binary,omitempty" json:"supportsBinary"`
	NeedsMulti     bool `yaml:"needs_multi,omitempty" json:"needsMulti,omitempty"`
	NeedsWine      bool `yaml:"needs_wine,omitempty" json:"needsWine,omitempty"`
	IsCl           bool `yaml:"is_cl,omitempty" json:"isCl,omitempty"`

	// PostProcess is a shell pipeline the assembly is streamed through.
	PostProcess []string `yaml:"post_process,omitempty" json:"postProcess,omitempty"`
	// LineFormat selects a trace converter for compilers that print a
	// numbered listing on stdout instead of writing assembly.
	LineFormat string `yaml:"line_format,omitempty" json:"lineFormat,omitempty"`

	// Env is added to the compiler's environment.
	Env map[string]string `yaml:"env,omitempty" json:"-"`
}

// IsRemote reports whether requests for this compiler are forwarded to
// another service instead of being compiled locally.
func (d Descriptor) IsRemote() bool {
	return d.Exe == "" && d.Remote != ""
}

// DisplayName returns Name, falling back to ID.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

func (d Descriptor) asmFlag() string {
	if d.AsmFlag != "" {
		return d.AsmFlag
	}
	return "-S"
}

func (d Descriptor) outputFlag() string {
	if d.OutputFlag != "" {
		return d.OutputFlag
	}
	return "-o"
}

func (d Descriptor) postProcess() []string {
	var steps []string
	for _, step := range d.PostProcess {
		if s := strings.TrimSpace(step); s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}
