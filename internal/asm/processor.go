package asm

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"asmexplorer/internal/logging"
)

// DefaultHideFunctions matches the runtime and linker scaffolding that is
// hidden from disassembly listings.
const DefaultHideFunctions = `^(__.*|_(init|start|fini)|(de)?register_tm_clones|call_gmon_start|frame_dummy|_dl_relocate_static_pie|\.plt.*)$`

// Options configures a Processor.
type Options struct {
	// InputFilename is the base name the source was written under. Debug
	// locations in a file of this name belong to the primary input.
	InputFilename string
	// HideFunctions overrides DefaultHideFunctions.
	HideFunctions string
}

// Processor classifies and filters assembly. It is safe for concurrent use.
type Processor struct {
	primary  *regexp.Regexp
	hideFunc *regexp.Regexp
}

// NewProcessor compiles the patterns in opts.
func NewProcessor(opts Options) (*Processor, error) {
	names := []string{`<stdin>`, `<source>`, `-`, `example\.[^/]+`}
	if opts.InputFilename != "" {
		names = append(names, regexp.QuoteMeta(path.Base(opts.InputFilename)))
	}
	primary, err := regexp.Compile(`(^|/)(` + strings.Join(names, "|") + `)$`)
	if err != nil {
		return nil, fmt.Errorf("input filename pattern: %w", err)
	}

	hide := opts.HideFunctions
	if hide == "" {
		hide = DefaultHideFunctions
	}
	hideFunc, err := regexp.Compile(hide)
	if err != nil {
		return nil, fmt.Errorf("hide functions pattern: %w", err)
	}
	return &Processor{primary: primary, hideFunc: hideFunc}, nil
}

var defaultProcessor, _ = NewProcessor(Options{})

// Process runs the default processor over text.
func Process(text string, filters Filters) []Line {
	return defaultProcessor.Process(text, filters)
}

// Process converts compiler output into listing lines. With filters.Binary
// the text is read as objdump output, otherwise as assembler source.
func (p *Processor) Process(text string, filters Filters) []Line {
	lines := splitLines(text)
	var out []Line
	if filters.Binary {
		out = p.processBinary(lines, filters)
	} else {
		out = p.processText(lines, filters)
	}
	logging.AsmDebug("processed %d input lines into %d (binary=%v)", len(lines), len(out), filters.Binary)
	return out
}

func (p *Processor) processText(lines []string, filters Filters) []Line {
	used := usedLabels(lines)
	files := make(map[int]string)
	result := make([]Line, 0, len(lines))

	var source *Source
	inUsedLabel := false

	for _, raw := range lines {
		kind := Classify(raw)

		if kind == KindDirective {
			if m := fileDirective.FindStringSubmatch(raw); m != nil {
				n, _ := strconv.Atoi(m[1])
				name := m[2]
				if m[3] != "" {
					name = path.Join(m[2], m[3])
				}
				files[n] = name
			}
			if m := locDirective.FindStringSubmatch(raw); m != nil {
				n, _ := strconv.Atoi(m[1])
				line, _ := strconv.Atoi(m[2])
				source = p.sourceFor(files, n, line)
			}
			if endBlockDirect.MatchString(raw) {
				source = nil
				inUsedLabel = false
			}
		}

		switch kind {
		case KindBlank:
			if filters.Trim && len(result) > 0 && result[len(result)-1].Text == "" {
				continue
			}
			text := expandTabs(raw)
			if filters.Trim {
				text = ""
			}
			result = append(result, Line{Text: text})
			continue
		case KindComment:
			if filters.CommentOnly {
				continue
			}
		case KindLabel:
			inUsedLabel = used[labelName(raw)]
			if filters.Labels && !inUsedLabel {
				continue
			}
		case KindDirective:
			if filters.Directives {
				continue
			}
		case KindData:
			if filters.Directives && !inUsedLabel {
				continue
			}
		}

		text := expandTabs(raw)
		if filters.Trim {
			text = strings.TrimRight(text, " ")
		}
		line := Line{Text: text}
		if kind == KindInstruction && source != nil {
			s := *source
			line.Source = &s
		}
		result = append(result, line)
	}
	return result
}

// sourceFor resolves a .loc reference. Line zero marks compiler-generated
// code and has no location.
func (p *Processor) sourceFor(files map[int]string, file, line int) *Source {
	if line <= 0 {
		return nil
	}
	name, ok := files[file]
	if !ok {
		return nil
	}
	return p.source(name, line)
}

func (p *Processor) source(name string, line int) *Source {
	if p.primary.MatchString(name) {
		return &Source{Line: line}
	}
	return &Source{File: &name, Line: line}
}

// splitLines splits on newlines, dropping carriage returns and the empty
// element produced by a trailing newline.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// expandTabs replaces tabs with spaces up to the next 8-column stop.
func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := 8 - col%8
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}
