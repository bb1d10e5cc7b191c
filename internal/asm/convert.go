package asm

import (
	"fmt"
	"regexp"
	"strings"
)

// TraceFormat names a numbered-trace converter.
type TraceFormat string

// TraceGo6g is the `N (file:line) OP args` listing printed by the 6g toolchain.
const TraceGo6g TraceFormat = "6g"

var traceLineRe = regexp.MustCompile(`^[0-9]+\s*\(([^:]+):([0-9]+)\)\s*([A-Z]+)(.*)`)

// ConvertTrace rewrites a numbered trace into assembler text that Process
// understands. Files are numbered in order of first sighting; a .loc is
// emitted whenever the location changes. Lines of any other shape are dropped.
func ConvertTrace(text string) string {
	var b strings.Builder
	files := make(map[string]int)
	prevFile, prevLine := -1, ""

	for _, raw := range splitLines(text) {
		m := traceLineRe.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		name, line, op, args := m[1], m[2], m[3], m[4]

		n, seen := files[name]
		if !seen {
			n = len(files) + 1
			files[name] = n
			fmt.Fprintf(&b, "\t.file %d %q\n", n, name)
		}
		if n != prevFile || line != prevLine {
			fmt.Fprintf(&b, "\t.loc %d %s\n", n, line)
			prevFile, prevLine = n, line
		}
		fmt.Fprintf(&b, "\t%s%s\n", strings.ToLower(op), args)
	}
	return b.String()
}
