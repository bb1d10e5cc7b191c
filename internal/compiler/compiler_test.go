package compiler

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asmexplorer/internal/asm"
)

func TestFindBadOptions(t *testing.T) {
	policy, err := NewOptionsPolicy("", "")
	require.NoError(t, err)

	allowed := []string{"-O2", "-std=c++17", "-I.", "-Iinclude", "-march=native", "-Wall", "-fno-exceptions", "-DFOO=1"}
	assert.Empty(t, policy.FindBadOptions(allowed))

	denied := []string{
		"-o", "-ofoo", "--output=x", "-I", "-I/usr/include", "-I../secret", "-isystem/etc",
		"-include", "-B/tmp", "--sysroot=/", "-fplugin=evil.so", "-wrapper", "-specs=x",
		"-load", "-plugin", "@args.txt", "-Wl,-o/tmp/x", "-Wa,-I/etc", "--",
	}
	for _, opt := range denied {
		t.Run(opt, func(t *testing.T) {
			assert.Equal(t, []string{opt}, policy.FindBadOptions([]string{"-O2", opt}))
		})
	}
}

func TestOptionsPolicyAllowList(t *testing.T) {
	policy, err := NewOptionsPolicy(`^-[OW].*$`, `^-Werror$`)
	require.NoError(t, err)

	assert.Equal(t, []string{"-g", "-Werror"}, policy.FindBadOptions([]string{"-O2", "-g", "-Wall", "-Werror"}))

	err = policy.CheckOptions([]string{"-g", "-Werror"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "Bad options: -g, -Werror", err.Error())

	_, err = NewOptionsPolicy("(", "")
	assert.Error(t, err)
}

func TestCheckSource(t *testing.T) {
	ok := "#include <stdio.h>\n#include \"foo/bar.h\"\nint main() {}\n"
	assert.NoError(t, CheckSource(ok))

	bad := "#include \"/etc/passwd\"\nint x;\n  #  include <../../secret.h>\n#include_next \"../y.h\"\n#import \"/z\"\n"
	err := CheckSource(bad)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t,
		"<stdin>:1:1: no absolute or relative includes please\n"+
			"<stdin>:3:1: no absolute or relative includes please\n"+
			"<stdin>:4:1: no absolute or relative includes please\n"+
			"<stdin>:5:1: no absolute or relative includes please",
		err.Error())
}

func TestCommandBuilders(t *testing.T) {
	j := job{
		input:     "/ws/example.cpp",
		output:    "/ws/output.s",
		options:   []string{"-O2", ""},
		modeFlags: []string{"-S"},
	}

	tests := []struct {
		name     string
		desc     Descriptor
		settings Settings
		wantProg string
		wantArgs []string
	}{
		{
			name:     "unix",
			desc:     Descriptor{Exe: "g++"},
			wantProg: "g++",
			wantArgs: []string{"-g", "-o", "/ws/output.s", "-O2", "-S", "/ws/example.cpp"},
		},
		{
			name:     "unix custom output flag",
			desc:     Descriptor{Exe: "ldc2", OutputFlag: "-of"},
			wantProg: "ldc2",
			wantArgs: []string{"-g", "-of", "/ws/output.s", "-O2", "-S", "/ws/example.cpp"},
		},
		{
			name:     "msvc",
			desc:     Descriptor{Exe: "cl.exe", IsCl: true},
			wantProg: "cl.exe",
			wantArgs: []string{"-O2", "/FAsc", "/c", "/Fa/ws/output.s", "/Fo/ws/output.s.obj", "-S", "/ws/example.cpp"},
		},
		{
			name:     "msvc under wine",
			desc:     Descriptor{Exe: "cl.exe", IsCl: true, NeedsWine: true},
			settings: Settings{Wine: "wine64"},
			wantProg: "wine64",
			wantArgs: []string{"cl.exe", "-O2", "/FAsc", "/c", "/FaZ:/ws/output.s", "/FoZ:/ws/output.s.obj", "-S", "Z:/ws/example.cpp"},
		},
		{
			name:     "wrapped wine",
			desc:     Descriptor{Exe: "gcc.exe", NeedsWine: true},
			settings: Settings{Wine: "wine", CompilerWrapper: "firejail"},
			wantProg: "firejail",
			wantArgs: []string{"wine", "gcc.exe", "-g", "-o", "Z:/ws/output.s", "-O2", "-S", "Z:/ws/example.cpp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newCommandBuilder(tt.desc, tt.settings)
			prog, args := buildCommand(b, tt.desc.Exe, j)
			assert.Equal(t, tt.wantProg, prog)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestTargetPath(t *testing.T) {
	wine := newCommandBuilder(Descriptor{NeedsWine: true}, Settings{Wine: "wine", CompilerWrapper: "wrap"})
	assert.Equal(t, "Z:/ws/example.cpp", wine.targetPath("/ws/example.cpp"))

	native := newCommandBuilder(Descriptor{}, Settings{})
	assert.Equal(t, "/ws/example.cpp", native.targetPath("/ws/example.cpp"))
}

func TestCompilerOptions(t *testing.T) {
	env, err := NewEnvironment(Settings{}, nil, nil, nil)
	require.NoError(t, err)
	c := New(Descriptor{ID: "gcc", Exe: "gcc", Options: "-fixed  -more", IntelAsm: "-masm=intel"}, env)

	assert.Equal(t, []string{"-O2", "-fixed", "-more"}, c.options([]string{"-O2"}, asm.Filters{}))
	assert.Equal(t, []string{"-O2", "-fixed", "-more", "-masm=intel"}, c.options([]string{"-O2"}, asm.Filters{Intel: true}))
	// objdump handles syntax for binaries.
	assert.Equal(t, []string{"-fixed", "-more"}, c.options(nil, asm.Filters{Intel: true, Binary: true}))

	assert.Equal(t, []string{"-S"}, c.modeFlags(asm.Filters{}))
	assert.Empty(t, c.modeFlags(asm.Filters{Binary: true}))
}

func TestEffectiveFilters(t *testing.T) {
	env, err := NewEnvironment(Settings{}, nil, nil, nil)
	require.NoError(t, err)

	plain := New(Descriptor{ID: "cc", Exe: "cc"}, env)
	assert.False(t, plain.EffectiveFilters(asm.Filters{Binary: true}).Binary)

	linker := New(Descriptor{ID: "cc", Exe: "cc", SupportsBinary: true}, env)
	assert.True(t, linker.EffectiveFilters(asm.Filters{Binary: true}).Binary)
}

func TestParseOutput(t *testing.T) {
	input := "/ws/example.cpp: In function 'int f()':\n" +
		"/ws/example.cpp:3:5: error: expected ';' before '}' token   \n" +
		"    3 |   return 1\n" +
		"\n" +
		"fixme:ntdll:NtQuerySystemInformation stub\n" +
		"/ws/example.cpp(12): warning C4700: uninitialized\n"

	got := ParseOutput(input, "/ws/example.cpp")
	require.Len(t, got, 4)

	assert.Equal(t, OutputLine{Text: "<source>: In function 'int f()':"}, got[0])
	assert.Equal(t, OutputLine{
		Text: "<source>:3:5: error: expected ';' before '}' token",
		Tag:  &OutputTag{Line: 3, Column: 5, Text: "error: expected ';' before '}' token"},
	}, got[1])
	assert.Equal(t, "    3 |   return 1", got[2].Text)
	assert.Nil(t, got[2].Tag)
	assert.Equal(t, &OutputTag{Line: 12, Column: 0, Text: "warning C4700: uninitialized"}, got[3].Tag)

	assert.NotNil(t, ParseOutput("", "/ws/example.cpp"), "empty output encodes as []")
}

func TestResultJSON(t *testing.T) {
	listing := &Result{
		Code:      0,
		Stdout:    []OutputLine{},
		Stderr:    []OutputLine{{Text: "warning"}},
		Asm:       Listing([]asm.Line{{Text: "main:"}}),
		OkToCache: true,
		DirPath:   "/tmp/ws",
	}
	data, err := json.Marshal(listing)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":0,"stdout":[],"stderr":[{"text":"warning"}],"asm":[{"text":"main:","source":null}],"okToCache":true}`, string(data))

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Asm.Structured)
	assert.Equal(t, "main:", decoded.Asm.Lines[0].Text)

	raw := &Result{Code: -1, Asm: RawText("<Compilation failed>")}
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"asm":{"text":"\u003cCompilation failed\u003e"}`)

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.False(t, decoded.Asm.Structured)
	assert.Equal(t, "<Compilation failed>", decoded.Asm.Text)

	data, err = json.Marshal(Listing(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestErrorKinds(t *testing.T) {
	validation := ValidationError("Bad options: -o")
	assert.True(t, IsValidation(validation))
	assert.False(t, IsSpawn(validation))
	assert.Equal(t, "Bad options: -o", validation.Error())

	cause := errors.New("exec: \"nope\": executable file not found in $PATH")
	spawn := SpawnError(cause)
	assert.True(t, IsSpawn(spawn))
	assert.ErrorIs(t, spawn, cause)
	assert.Equal(t, cause.Error(), spawn.Error())

	internal := InternalError("unable to create workspace", cause)
	assert.False(t, IsValidation(internal))
	assert.Contains(t, internal.Error(), "unable to create workspace: ")

	assert.False(t, IsValidation(errors.New("plain")))
}
