package compiler

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"asmexplorer/internal/asm"
)

// Request is one compilation as received from a client.
type Request struct {
	CompilerID string      `json:"compiler"`
	Source     string      `json:"source"`
	Options    []string    `json:"options"`
	Filters    asm.Filters `json:"filters"`
}

// OutputTag locates a diagnostic in the user's source.
type OutputTag struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text"`
}

// OutputLine is one line of compiler stdout or stderr.
type OutputLine struct {
	Text string     `json:"text"`
	Tag  *OutputTag `json:"tag,omitempty"`
}

// Result is the outcome of a compilation that ran.
type Result struct {
	Code      int          `json:"code"`
	Stdout    []OutputLine `json:"stdout"`
	Stderr    []OutputLine `json:"stderr"`
	Asm       Assembly     `json:"asm"`
	OkToCache bool         `json:"okToCache"`

	// DirPath is the job's workspace. Cleared before the result is returned.
	DirPath string `json:"-"`
}

// Assembly is either a processed listing or, when the run was not
// cacheable, the raw text.
type Assembly struct {
	Lines      []asm.Line
	Text       string
	Structured bool
}

// Listing wraps processed lines.
func Listing(lines []asm.Line) Assembly {
	if lines == nil {
		lines = []asm.Line{}
	}
	return Assembly{Lines: lines, Structured: true}
}

// RawText wraps unprocessed assembly.
func RawText(text string) Assembly {
	return Assembly{Text: text}
}

type rawAssembly struct {
	Text string `json:"text"`
}

// MarshalJSON encodes a listing as an array and raw text as {"text": ...}.
func (a Assembly) MarshalJSON() ([]byte, error) {
	if a.Structured {
		lines := a.Lines
		if lines == nil {
			lines = []asm.Line{}
		}
		return json.Marshal(lines)
	}
	return json.Marshal(rawAssembly{Text: a.Text})
}

// UnmarshalJSON accepts both encodings.
func (a *Assembly) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var lines []asm.Line
		if err := json.Unmarshal(data, &lines); err != nil {
			return err
		}
		*a = Listing(lines)
		return nil
	}
	var raw rawAssembly
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = RawText(raw.Text)
	return nil
}

var sourceTagRe = regexp.MustCompile(`^<source>[:(]([0-9]+)(?::?,?([0-9]+):?)?[):]*\s*(.*)`)

// ParseOutput splits compiler output into lines, replacing the input path
// with <source> and tagging diagnostics that point into it. Blank lines and
// wine "fixme:" noise are dropped.
func ParseOutput(text, inputFilename string) []OutputLine {
	lines := []OutputLine{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if inputFilename != "" {
			line = strings.ReplaceAll(line, inputFilename, "<source>")
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "fixme:") {
			continue
		}
		out := OutputLine{Text: line}
		if m := sourceTagRe.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[1])
			column, _ := strconv.Atoi(m[2])
			out.Tag = &OutputTag{Line: lineNo, Column: column, Text: strings.TrimSpace(m[3])}
		}
		lines = append(lines, out)
	}
	return lines
}
