// Package compiler runs one compilation end to end: validation, workspace
// setup, command construction, the compiler process itself, retrieval of
// the produced assembly and its post-processing into a listing.
package compiler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"asmexplorer/internal/asm"
	"asmexplorer/internal/logging"
	"asmexplorer/internal/tactile"
)

// Result markers. Clients display these verbatim.
const (
	killedMarker    = "\nKilled - processing time exceeded"
	truncatedMarker = "\n[Truncated]"

	compilationFailed = "<Compilation failed>"
	noOutputFile      = "<No output file>"
)

// Compiler compiles sources with one configured compiler.
type Compiler struct {
	desc    Descriptor
	env     *Environment
	builder commandBuilder
}

// New binds a descriptor to the shared environment.
func New(desc Descriptor, env *Environment) *Compiler {
	return &Compiler{
		desc:    desc,
		env:     env,
		builder: newCommandBuilder(desc, env.settings),
	}
}

// Descriptor returns the compiler's descriptor.
func (c *Compiler) Descriptor() Descriptor {
	return c.desc
}

// EffectiveFilters clears the binary switch for compilers that cannot
// produce binaries.
func (c *Compiler) EffectiveFilters(filters asm.Filters) asm.Filters {
	if filters.Binary && !c.desc.SupportsBinary {
		filters.Binary = false
	}
	return filters
}

// Compile runs the compiler on req. Validation failures and failure to start
// the compiler are returned as errors; every other outcome, including a
// timeout, is a Result.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	if c.desc.IsRemote() {
		return nil, InternalError(fmt.Sprintf("compiler %s is remote", c.desc.ID), nil)
	}
	timer := logging.StartTimer(logging.CategoryCompile, "compile "+c.desc.ID)
	defer timer.Stop()

	filters := c.EffectiveFilters(req.Filters)
	if err := c.env.Validate(req.Source, req.Options); err != nil {
		logging.CompileDebug("Rejected request for %s: %v", c.desc.ID, err)
		return nil, err
	}

	source := req.Source
	if filters.Binary && !c.env.stubRe.MatchString(source) {
		source += "\n" + c.env.settings.StubText + "\n"
	}

	ws, err := c.env.workspaces.Acquire()
	if err != nil {
		return nil, InternalError("unable to create workspace", err)
	}
	release := sync.OnceFunc(func() {
		if err := c.env.workspaces.Release(ws); err != nil {
			logging.CompileWarn("Workspace cleanup failed for %s: %v", ws.Path, err)
		}
	})
	defer release()

	inputFile := ws.File(c.env.settings.Filename)
	outputFile := ws.File(OutputFilename)
	if err := os.WriteFile(inputFile, []byte(source), 0600); err != nil {
		return nil, InternalError("unable to write source", err)
	}

	prog, args := buildCommand(c.builder, c.desc.Exe, job{
		input:     inputFile,
		output:    outputFile,
		options:   c.options(req.Options, filters),
		modeFlags: c.modeFlags(filters),
	})

	run, err := c.env.executor.Execute(ctx, tactile.Command{
		Binary:           prog,
		Arguments:        args,
		WorkingDirectory: ws.Path,
		Environment:      c.env.processEnv(c.desc),
		Limits: &tactile.ResourceLimits{
			TimeoutMs:      c.env.settings.TimeoutMs,
			MaxStdoutBytes: c.env.settings.MaxErrorOutput,
			MaxStderrBytes: c.env.settings.MaxErrorOutput,
		},
		RequestID: ws.ID,
		Tags:      map[string]string{"compiler": c.desc.ID},
	})
	if err != nil {
		logging.CompileError("Failed to start %s: %v", c.desc.ID, err)
		return nil, SpawnError(err)
	}

	result, rawStdout := c.collect(run, c.builder.targetPath(inputFile))
	result.DirPath = ws.Path

	var text string
	switch {
	case result.Code != 0:
		text = compilationFailed
	case c.desc.LineFormat == LineFormat6g:
		text = asm.ConvertTrace(rawStdout)
		result.Stdout = []OutputLine{}
	case filters.Binary && !c.desc.IsCl:
		text = c.disassemble(ctx, outputFile, filters.Intel)
	default:
		text = c.readAssembly(ctx, outputFile)
	}

	release()
	result.DirPath = ""

	if result.OkToCache {
		result.Asm = Listing(c.env.processor.Process(text, filters))
	} else {
		result.Asm = RawText(text)
	}

	logging.Compile("Compiled with %s: exit=%d, asm=%d bytes, cacheable=%v, wall=%s, cpu=%s",
		c.desc.ID, result.Code, len(text), result.OkToCache, run.Duration, cpuTime(run))
	return result, nil
}

// cpuTime reports the compiler's CPU time, or "n/a" when the executor did
// not collect resource usage.
func cpuTime(run *tactile.ExecutionResult) string {
	if run.ResourceUsage == nil {
		return "n/a"
	}
	return (time.Duration(run.ResourceUsage.TotalCPUTimeMs()) * time.Millisecond).String()
}

// options returns the user options followed by the descriptor's fixed
// options and, for -S output, its Intel syntax flags.
func (c *Compiler) options(user []string, filters asm.Filters) []string {
	opts := append([]string{}, user...)
	opts = append(opts, splitFlags(c.desc.Options)...)
	if c.desc.IntelAsm != "" && filters.Intel && !filters.Binary {
		opts = append(opts, splitFlags(c.desc.IntelAsm)...)
	}
	return opts
}

func (c *Compiler) modeFlags(filters asm.Filters) []string {
	if filters.Binary {
		return splitFlags(c.env.settings.CompileToBinary)
	}
	if c.env.settings.CompileToAsm != "" {
		return splitFlags(c.env.settings.CompileToAsm)
	}
	return splitFlags(c.desc.asmFlag())
}

// collect turns an execution into a Result, applying the truncation and
// timeout markers. It also returns stdout before parsing.
func (c *Compiler) collect(run *tactile.ExecutionResult, inputName string) (*Result, string) {
	stdout, stderr := run.Stdout, run.Stderr
	if run.StdoutTruncated {
		stdout += truncatedMarker
	}
	if run.StderrTruncated {
		stderr += truncatedMarker
	}

	okToCache := true
	if run.TimedOut() {
		stderr += killedMarker
		okToCache = false
		logging.CompileWarn("%s exceeded %dms", c.desc.ID, c.env.settings.TimeoutMs)
	}

	return &Result{
		Code:      run.ExitCode,
		Stdout:    ParseOutput(stdout, inputName),
		Stderr:    ParseOutput(stderr, inputName),
		OkToCache: okToCache,
	}, run.Stdout
}

// disassemble runs objdump over the produced binary. Failures become a
// sentinel listing rather than an error.
func (c *Compiler) disassemble(ctx context.Context, binary string, intel bool) string {
	args := []string{"-d", "-C", binary, "-l", "--insn-width=16"}
	if intel {
		args = append(args, "-M", "intel")
	}
	run, err := c.env.executor.Execute(ctx, tactile.Command{
		Binary:    c.env.settings.Objdump,
		Arguments: args,
		Limits: &tactile.ResourceLimits{
			TimeoutMs:      c.env.settings.TimeoutMs,
			MaxStdoutBytes: c.env.settings.MaxAsmSize,
			MaxStderrBytes: c.env.settings.MaxErrorOutput,
		},
		Tags: map[string]string{"compiler": c.desc.ID, "stage": "disassemble"},
	})
	return c.helperOutput("disassembly", run, err)
}

// readAssembly reads the assembly file, through the post-process pipeline
// when the descriptor has one.
func (c *Compiler) readAssembly(ctx context.Context, outputFile string) string {
	info, err := os.Stat(outputFile)
	if err != nil {
		return noOutputFile
	}
	maxSize := c.env.settings.MaxAsmSize
	if info.Size() >= maxSize {
		return fmt.Sprintf("<No output: generated assembly was too large (%d > %d bytes)>", info.Size(), maxSize)
	}

	data, err := os.ReadFile(outputFile)
	if err != nil {
		return noOutputFile
	}

	steps := c.desc.postProcess()
	if len(steps) == 0 {
		return string(data)
	}

	run, err := c.env.executor.Execute(ctx, tactile.Command{
		Binary:    "sh",
		Arguments: []string{"-c", strings.Join(steps, " | ")},
		Stdin:     string(data),
		Limits: &tactile.ResourceLimits{
			TimeoutMs:      c.env.settings.TimeoutMs,
			MaxStdoutBytes: maxSize,
			MaxStderrBytes: c.env.settings.MaxErrorOutput,
		},
		Tags: map[string]string{"compiler": c.desc.ID, "stage": "postprocess"},
	})
	return c.helperOutput("post-process", run, err)
}

// helperOutput returns a helper's stdout, or a sentinel explaining why
// there is none.
func (c *Compiler) helperOutput(stage string, run *tactile.ExecutionResult, err error) string {
	var reason string
	switch {
	case err != nil:
		reason = err.Error()
	case run.TimedOut():
		reason = stage + " timed out"
	case run.StdoutTruncated:
		reason = fmt.Sprintf("%s exceeded %d bytes", stage, c.env.settings.MaxAsmSize)
	case run.ExitCode != 0:
		reason = fmt.Sprintf("%s failed with exit code %d", stage, run.ExitCode)
		if msg := strings.TrimSpace(run.Stderr); msg != "" {
			// sentinels stay on one line
			reason += ": " + strings.Join(strings.Fields(strings.ReplaceAll(msg, "\n", " ")), " ")
		}
	default:
		return run.Stdout
	}
	logging.CompileWarn("%s for %s produced no output: %s", stage, c.desc.ID, reason)
	return "<No output: " + reason + ">"
}
