package compiler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"asmexplorer/internal/asm"
	"asmexplorer/internal/logging"
	"asmexplorer/internal/tactile"
	"asmexplorer/internal/workspace"
)

// scriptPreamble leaves the -o argument in $out and the last argument
// (the input file) in $in.
const scriptPreamble = `#!/bin/sh
out=""; in=""; prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"; in="$a"
done
`

type harness struct {
	t      *testing.T
	dir    string
	root   string
	env    *Environment
	spawns atomic.Int32
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compilers are POSIX shell scripts")
	}

	h := &harness{t: t, dir: t.TempDir()}
	h.root = filepath.Join(h.dir, "workspaces")

	executor := tactile.NewDirectExecutor()
	executor.SetAuditCallback(func(e tactile.AuditEvent) {
		if e.Type == tactile.AuditEventStart {
			h.spawns.Add(1)
		}
	})

	env, err := NewEnvironment(settings, workspace.NewManager(h.root, ""), executor, nil)
	require.NoError(t, err)
	h.env = env
	return h
}

// script writes an executable fake tool and returns its path.
func (h *harness) script(name, body string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(scriptPreamble+body), 0755))
	return path
}

// path returns a file in the harness directory for scripts to write to.
func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func (h *harness) readLines(name string) []string {
	h.t.Helper()
	data, err := os.ReadFile(h.path(name))
	require.NoError(h.t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// assertClean checks that no workspace outlived its job.
func (h *harness) assertClean() {
	h.t.Helper()
	assert.Zero(h.t, h.env.Workspaces().Active())
	entries, err := os.ReadDir(h.root)
	if err == nil {
		assert.Empty(h.t, entries, "workspaces left behind")
	}
}

func texts(lines []asm.Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestCompileSuccess(t *testing.T) {
	h := newHarness(t, Settings{})
	exe := h.script("gcc", `printf '%s\n' "$@" > '`+h.path("args")+`'
printf '\t.file 1 "%s"\n\t.globl main\nmain:\n\t.loc 1 2 0\n\tret\n' "$in" > "$out"
`)
	c := New(Descriptor{ID: "gcc", Exe: exe, Options: "-fixed"}, h.env)

	result, err := c.Compile(context.Background(), Request{
		CompilerID: "gcc",
		Source:     "int main() { return 0; }",
		Options:    []string{"-O2"},
		Filters:    asm.Filters{Directives: true},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Code)
	assert.True(t, result.OkToCache)
	assert.Empty(t, result.DirPath)
	require.True(t, result.Asm.Structured)
	assert.Equal(t, []string{"main:", "        ret"}, texts(result.Asm.Lines))
	require.NotNil(t, result.Asm.Lines[1].Source)
	assert.Nil(t, result.Asm.Lines[1].Source.File)
	assert.Equal(t, 2, result.Asm.Lines[1].Source.Line)

	args := h.readLines("args")
	require.Len(t, args, 7)
	assert.Equal(t, []string{"-g", "-o"}, args[:2])
	assert.Equal(t, OutputFilename, filepath.Base(args[2]))
	assert.Equal(t, []string{"-O2", "-fixed", "-S"}, args[3:6])
	assert.Equal(t, "example.cpp", filepath.Base(args[6]))
	assert.Equal(t, filepath.Dir(args[2]), filepath.Dir(args[6]))

	assert.NoDirExists(t, filepath.Dir(args[2]))
	assert.EqualValues(t, 1, h.spawns.Load())
	h.assertClean()
}

func TestCompileFailureTagsDiagnostics(t *testing.T) {
	h := newHarness(t, Settings{})
	exe := h.script("gcc", `echo "$in:3:5: error: expected ';'" 1>&2
exit 1
`)
	c := New(Descriptor{ID: "gcc", Exe: exe}, h.env)

	result, err := c.Compile(context.Background(), Request{Source: "int f() { return 1 }"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Code)
	assert.True(t, result.OkToCache)
	require.Len(t, result.Stderr, 1)
	assert.Equal(t, OutputLine{
		Text: "<source>:3:5: error: expected ';'",
		Tag:  &OutputTag{Line: 3, Column: 5, Text: "error: expected ';'"},
	}, result.Stderr[0])
	require.Equal(t, []string{"<Compilation failed>"}, texts(result.Asm.Lines))
	h.assertClean()
}

func TestCompileTimeout(t *testing.T) {
	h := newHarness(t, Settings{TimeoutMs: 300})
	exe := h.script("gcc", "sleep 10\n")
	c := New(Descriptor{ID: "gcc", Exe: exe}, h.env)

	result, err := c.Compile(context.Background(), Request{Source: "int x;"})
	require.NoError(t, err)

	assert.Equal(t, -1, result.Code)
	assert.False(t, result.OkToCache)
	assert.False(t, result.Asm.Structured)
	assert.Equal(t, "<Compilation failed>", result.Asm.Text)
	require.NotEmpty(t, result.Stderr)
	assert.Equal(t, "Killed - processing time exceeded", result.Stderr[len(result.Stderr)-1].Text)
	h.assertClean()
}

func TestCompileTruncatesOutput(t *testing.T) {
	h := newHarness(t, Settings{MaxErrorOutput: 64})
	exe := h.script("gcc", `yes error | head -c 10000 1>&2
exit 1
`)
	c := New(Descriptor{ID: "gcc", Exe: exe}, h.env)

	result, err := c.Compile(context.Background(), Request{Source: "int x;"})
	require.NoError(t, err)

	assert.True(t, result.OkToCache, "truncation alone does not prevent caching")
	require.NotEmpty(t, result.Stderr)
	assert.Equal(t, "[Truncated]", result.Stderr[len(result.Stderr)-1].Text)
	total := 0
	for _, line := range result.Stderr[:len(result.Stderr)-1] {
		total += len(line.Text) + 1
	}
	assert.LessOrEqual(t, total, 64+1)
	h.assertClean()
}

func TestCompileRejectsBeforeSpawning(t *testing.T) {
	h := newHarness(t, Settings{})
	c := New(Descriptor{ID: "gcc", Exe: h.script("gcc", "exit 0\n")}, h.env)

	_, err := c.Compile(context.Background(), Request{Source: "int x;", Options: []string{"-O2", "-o/tmp/pwned"}})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "Bad options: -o/tmp/pwned", err.Error())

	_, err = c.Compile(context.Background(), Request{Source: "int x;\n#include \"/etc/passwd\"\n"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "<stdin>:2:1: no absolute or relative includes please", err.Error())

	assert.Zero(t, h.spawns.Load())
	_, statErr := os.Stat(h.root)
	assert.True(t, os.IsNotExist(statErr), "no filesystem work before validation")
}

func TestCompileSpawnFailure(t *testing.T) {
	h := newHarness(t, Settings{})
	c := New(Descriptor{ID: "ghost", Exe: h.path("no-such-compiler")}, h.env)

	_, err := c.Compile(context.Background(), Request{Source: "int x;"})
	require.Error(t, err)
	assert.True(t, IsSpawn(err))
	h.assertClean()
}

const fakeObjdump = `printf '%s\n' "$@" > 'OBJARGS'
cat <<'EOF'
0000000000401106 <square>:
/ws/example.cpp:1
  401106:	55                   	push   %rbp
  401107:	c3                   	ret
EOF
`

func TestCompileBinary(t *testing.T) {
	h := newHarness(t, Settings{})
	h.env.settings.Objdump = h.script("objdump", strings.ReplaceAll(fakeObjdump, "OBJARGS", h.path("objargs")))
	exe := h.script("gcc", `printf '%s\n' "$@" > '`+h.path("args")+`'
cp "$in" '`+h.path("source")+`'
: > "$out"
`)
	c := New(Descriptor{ID: "gcc", Exe: exe, SupportsBinary: true, IntelAsm: "-masm=intel"}, h.env)

	result, err := c.Compile(context.Background(), Request{
		Source:  "int square(int x) { return x * x; }",
		Filters: asm.Filters{Binary: true, Intel: true},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(h.path("source"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\nint main(void){return 0;}\n"), "stub appended: %q", data)

	assert.NotContains(t, h.readLines("args"), "-S")
	assert.NotContains(t, h.readLines("args"), "-masm=intel")

	objArgs := h.readLines("objargs")
	assert.Equal(t, []string{"-d", "-C"}, objArgs[:2])
	assert.Equal(t, OutputFilename, filepath.Base(objArgs[2]))
	assert.Equal(t, []string{"-l", "--insn-width=16", "-M", "intel"}, objArgs[3:])

	require.Len(t, result.Asm.Lines, 3)
	assert.Equal(t, "square:", result.Asm.Lines[0].Text)
	require.NotNil(t, result.Asm.Lines[1].Address)
	assert.Equal(t, uint64(0x401106), *result.Asm.Lines[1].Address)
	assert.Equal(t, 1, result.Asm.Lines[1].Source.Line)
	assert.EqualValues(t, 2, h.spawns.Load())
	h.assertClean()
}

func TestCompileBinaryFailureKeepsMarker(t *testing.T) {
	h := newHarness(t, Settings{})
	h.env.settings.Objdump = h.path("objdump-must-not-run")
	exe := h.script("gcc", `echo "<source>:1:1: error: expected ';'" >&2
exit 1
`)
	c := New(Descriptor{ID: "gcc", Exe: exe, SupportsBinary: true}, h.env)

	result, err := c.Compile(context.Background(), Request{Source: "int x", Filters: asm.Filters{Binary: true}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Code)
	require.Equal(t, []string{"<Compilation failed>"}, texts(result.Asm.Lines))
	assert.Nil(t, result.Asm.Lines[0].Address)
	assert.EqualValues(t, 1, h.spawns.Load())
	h.assertClean()
}

func TestCompileBinaryObjdumpFailureKeepsSentinel(t *testing.T) {
	h := newHarness(t, Settings{})
	h.env.settings.Objdump = h.script("objdump", `echo "objdump: output.s: file format not recognized" >&2
echo "objdump: giving up" >&2
exit 1
`)
	exe := h.script("gcc", `: > "$out"
`)
	c := New(Descriptor{ID: "gcc", Exe: exe, SupportsBinary: true}, h.env)

	result, err := c.Compile(context.Background(), Request{Source: "int main() {}", Filters: asm.Filters{Binary: true}})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Code)
	require.Len(t, result.Asm.Lines, 1)
	assert.Equal(t,
		"<No output: disassembly failed with exit code 1: objdump: output.s: file format not recognized objdump: giving up>",
		result.Asm.Lines[0].Text)
	h.assertClean()
}

func TestCompileBinaryKeepsExistingMain(t *testing.T) {
	h := newHarness(t, Settings{})
	h.env.settings.Objdump = h.script("objdump", strings.ReplaceAll(fakeObjdump, "OBJARGS", h.path("objargs")))
	exe := h.script("gcc", `cp "$in" '`+h.path("source")+`'
: > "$out"
`)
	c := New(Descriptor{ID: "gcc", Exe: exe, SupportsBinary: true}, h.env)

	source := "int main() { return 42; }"
	_, err := c.Compile(context.Background(), Request{Source: source, Filters: asm.Filters{Binary: true}})
	require.NoError(t, err)

	data, err := os.ReadFile(h.path("source"))
	require.NoError(t, err)
	assert.Equal(t, source, string(data))
}

func TestCompileBinaryCoercedWhenUnsupported(t *testing.T) {
	h := newHarness(t, Settings{})
	h.env.settings.Objdump = h.path("objdump-must-not-run")
	exe := h.script("gcc", `printf '%s\n' "$@" > '`+h.path("args")+`'
cp "$in" '`+h.path("source")+`'
printf 'f:\n\tret\n' > "$out"
`)
	c := New(Descriptor{ID: "gcc", Exe: exe}, h.env)

	result, err := c.Compile(context.Background(), Request{
		Source:  "int f() { return 0; }",
		Filters: asm.Filters{Binary: true},
	})
	require.NoError(t, err)

	assert.Contains(t, h.readLines("args"), "-S")
	data, err := os.ReadFile(h.path("source"))
	require.NoError(t, err)
	assert.Equal(t, "int f() { return 0; }", string(data), "no stub without binary support")
	assert.Equal(t, []string{"f:", "        ret"}, texts(result.Asm.Lines))
	assert.EqualValues(t, 1, h.spawns.Load())
}

func TestCompileRetrievalSentinels(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		body     string
		want     string
	}{
		{
			name:     "too large",
			settings: Settings{MaxAsmSize: 16},
			body:     "printf '%0100d' 0 > \"$out\"\n",
			want:     "<No output: generated assembly was too large (100 > 16 bytes)>",
		},
		{
			name: "no output file",
			body: "exit 0\n",
			want: "<No output file>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.settings)
			c := New(Descriptor{ID: "gcc", Exe: h.script("gcc", tt.body)}, h.env)

			result, err := c.Compile(context.Background(), Request{Source: "int x;"})
			require.NoError(t, err)
			assert.Equal(t, 0, result.Code)
			assert.Equal(t, []string{tt.want}, texts(result.Asm.Lines))
			h.assertClean()
		})
	}
}

func TestCompilePostProcess(t *testing.T) {
	h := newHarness(t, Settings{})
	exe := h.script("gcc", `printf 'main:\n\tret\n' > "$out"
`)

	c := New(Descriptor{ID: "gcc", Exe: exe, PostProcess: []string{"sed s/ret/retq/", "", "cat"}}, h.env)
	result, err := c.Compile(context.Background(), Request{Source: "int x;"})
	require.NoError(t, err)
	assert.Equal(t, []string{"main:", "        retq"}, texts(result.Asm.Lines))

	failing := New(Descriptor{ID: "gcc", Exe: exe, PostProcess: []string{"cat", "exit 3"}}, h.env)
	result, err = failing.Compile(context.Background(), Request{Source: "int x;"})
	require.NoError(t, err)
	require.Len(t, result.Asm.Lines, 1)
	assert.Equal(t, "<No output: post-process failed with exit code 3>", result.Asm.Lines[0].Text)
	h.assertClean()
}

func TestCompileLineFormat6g(t *testing.T) {
	h := newHarness(t, Settings{Filename: "example.go"})
	exe := h.script("6g", `echo "0001 ($in:7) MOVQ    \$1,AX"
echo "0002 ($in:7) RET     ,"
`)
	c := New(Descriptor{ID: "6g", Exe: exe, LineFormat: LineFormat6g}, h.env)

	result, err := c.Compile(context.Background(), Request{Source: "package main", Filters: asm.Filters{Directives: true}})
	require.NoError(t, err)

	assert.Empty(t, result.Stdout)
	assert.Equal(t, []string{"        movq    $1,AX", "        ret     ,"}, texts(result.Asm.Lines))
	require.NotNil(t, result.Asm.Lines[0].Source)
	assert.Nil(t, result.Asm.Lines[0].Source.File)
	assert.Equal(t, 7, result.Asm.Lines[0].Source.Line)
}

func TestCompileEmulatedAndWrapped(t *testing.T) {
	t.Run("wine", func(t *testing.T) {
		h := newHarness(t, Settings{})
		h.env.settings.Wine = h.script("wine", `printf '%s\n' "$@" > '`+h.path("args")+`'
echo "$in: warning: something" 1>&2
echo "fixme:heap:HeapSetInformation stub" 1>&2
`)
		c := New(Descriptor{ID: "cl", Exe: "cl.exe", IsCl: true, NeedsWine: true, AsmFlag: " "}, h.env)

		result, err := c.Compile(context.Background(), Request{Source: "int x;", Options: []string{"/O2"}})
		require.NoError(t, err)

		args := h.readLines("args")
		assert.Equal(t, "cl.exe", args[0])
		assert.Equal(t, "/O2", args[1])
		assert.Equal(t, []string{"/FAsc", "/c"}, args[2:4])
		assert.True(t, strings.HasPrefix(args[4], "/FaZ:/"), args[4])
		assert.True(t, strings.HasPrefix(args[len(args)-1], "Z:/"), args[len(args)-1])

		require.Len(t, result.Stderr, 1, "fixme noise is dropped")
		assert.Equal(t, "<source>: warning: something", result.Stderr[0].Text)
	})

	t.Run("wrapper", func(t *testing.T) {
		h := newHarness(t, Settings{})
		h.env.settings.CompilerWrapper = h.script("wrap", `printf '%s\n' "$@" > '`+h.path("args")+`'
`)
		c := New(Descriptor{ID: "gcc", Exe: "/opt/gcc/bin/g++"}, h.env)

		_, err := c.Compile(context.Background(), Request{Source: "int x;"})
		require.NoError(t, err)

		args := h.readLines("args")
		assert.Equal(t, []string{"/opt/gcc/bin/g++", "-g", "-o"}, args[:3])
	})
}

func TestCompileEnvironment(t *testing.T) {
	h := newHarness(t, Settings{Multiarch: "x86_64-linux-gnu"})
	exe := h.script("gcc", `echo "$LIBRARY_PATH|$TARGET" > '`+h.path("env")+`'
`)
	c := New(Descriptor{ID: "gcc", Exe: exe, NeedsMulti: true, Env: map[string]string{"TARGET": "arm"}}, h.env)

	_, err := c.Compile(context.Background(), Request{Source: "int x;"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/lib/x86_64-linux-gnu|arm"}, h.readLines("env"))
}

func TestCompileLogsResourceUsage(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(nil) })

	h := newHarness(t, Settings{})
	exe := h.script("gcc", `printf 'f:\n\tret\n' > "$out"
`)
	c := New(Descriptor{ID: "gcc", Exe: exe}, h.env)

	_, err := c.Compile(context.Background(), Request{Source: "void f(void) {}"})
	require.NoError(t, err)

	done := logs.FilterMessageSnippet("Compiled with gcc").All()
	require.Len(t, done, 1)
	assert.Contains(t, done[0].Message, "wall=")
	assert.Contains(t, done[0].Message, "cpu=")
	assert.NotContains(t, done[0].Message, "cpu=n/a")
}

func TestCPUTime(t *testing.T) {
	assert.Equal(t, "n/a", cpuTime(&tactile.ExecutionResult{}))
	assert.Equal(t, "1.5s", cpuTime(&tactile.ExecutionResult{
		ResourceUsage: &tactile.ResourceUsage{UserTimeMs: 1200, SystemTimeMs: 300},
	}))
}
