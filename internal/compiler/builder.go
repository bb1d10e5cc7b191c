package compiler

import (
	"strings"
)

// job is what a command builder needs to know about one compilation.
// Paths are host paths; builders translate them for the target.
type job struct {
	input   string
	output  string
	options []string
	// modeFlags select assembly or binary output.
	modeFlags []string
}

// commandBuilder turns a job into a program and argument vector. Each
// descriptor gets one builder when it is registered.
type commandBuilder interface {
	build(exe string, j job) (string, []string)
	// targetPath is how the compiler sees a host path.
	targetPath(path string) string
}

// unixBuilder: -g <outflag> <out> <options> <mode> <input>.
type unixBuilder struct {
	outputFlag string
}

func (b unixBuilder) build(exe string, j job) (string, []string) {
	args := []string{"-g", b.outputFlag, j.output}
	args = append(args, j.options...)
	args = append(args, j.modeFlags...)
	args = append(args, j.input)
	return exe, args
}

func (unixBuilder) targetPath(path string) string { return path }

// msvcBuilder: <options> /FAsc /c /Fa<out> /Fo<out>.obj <mode> <input>.
type msvcBuilder struct{}

func (msvcBuilder) build(exe string, j job) (string, []string) {
	args := append([]string{}, j.options...)
	args = append(args, "/FAsc", "/c", "/Fa"+j.output, "/Fo"+j.output+".obj")
	args = append(args, j.modeFlags...)
	args = append(args, j.input)
	return exe, args
}

func (msvcBuilder) targetPath(path string) string { return path }

// emulatedBuilder runs the inner command under an emulation layer such as
// wine. The real compiler becomes the emulator's first argument and paths
// are mapped onto the emulator's Z: drive.
type emulatedBuilder struct {
	inner    commandBuilder
	emulator string
}

func (b emulatedBuilder) build(exe string, j job) (string, []string) {
	j.input = b.targetPath(j.input)
	j.output = b.targetPath(j.output)
	prog, args := b.inner.build(exe, j)
	return b.emulator, append([]string{prog}, args...)
}

func (b emulatedBuilder) targetPath(path string) string {
	return "Z:" + b.inner.targetPath(path)
}

// wrapperBuilder prefixes the command with a site-wide compiler wrapper.
type wrapperBuilder struct {
	inner   commandBuilder
	wrapper string
}

func (b wrapperBuilder) build(exe string, j job) (string, []string) {
	prog, args := b.inner.build(exe, j)
	return b.wrapper, append([]string{prog}, args...)
}

func (b wrapperBuilder) targetPath(path string) string {
	return b.inner.targetPath(path)
}

// newCommandBuilder picks the builder for d.
func newCommandBuilder(d Descriptor, settings Settings) commandBuilder {
	var b commandBuilder
	if d.IsCl {
		b = msvcBuilder{}
	} else {
		b = unixBuilder{outputFlag: d.outputFlag()}
	}
	if d.NeedsWine {
		b = emulatedBuilder{inner: b, emulator: settings.Wine}
	}
	if settings.CompilerWrapper != "" {
		b = wrapperBuilder{inner: b, wrapper: settings.CompilerWrapper}
	}
	return b
}

// buildCommand assembles the full invocation, dropping empty tokens.
func buildCommand(b commandBuilder, exe string, j job) (string, []string) {
	prog, args := b.build(exe, j)
	kept := args[:0]
	for _, arg := range args {
		if arg != "" {
			kept = append(kept, arg)
		}
	}
	return prog, kept
}

func splitFlags(s string) []string {
	return strings.Fields(s)
}
