package asm

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	objdumpSourceRe = regexp.MustCompile(`^(/[^:]+):([0-9]+).*`)
	objdumpFuncRe   = regexp.MustCompile(`^([0-9a-f]+)\s+<([^>]+)>:$`)
	objdumpInsnRe   = regexp.MustCompile(`^\s*([0-9a-f]+):\s*((?:[0-9a-f][0-9a-f] ?)+)\s*(.*)`)
	objdumpDestRe   = regexp.MustCompile(`.*\s([0-9a-f]+)\s+<([^>]+)>$`)
)

// processBinary reads `objdump -d -l` output. Functions matching the hide
// pattern are skipped entirely; everything that is not a function header,
// a source location or an instruction is dropped. A single `<...>` line is
// a failure marker from the compile step and is returned as is.
func (p *Processor) processBinary(lines []string, filters Filters) []Line {
	if isErrorDocument(lines) {
		return []Line{{Text: lines[0]}}
	}

	result := make([]Line, 0, len(lines))
	var source *Source
	hiding := false

	for _, raw := range lines {
		if m := objdumpFuncRe.FindStringSubmatch(raw); m != nil {
			hiding = p.hideFunc.MatchString(m[2])
			source = nil
			if !hiding {
				result = append(result, Line{Text: m[2] + ":"})
			}
			continue
		}
		if hiding {
			continue
		}

		if m := objdumpSourceRe.FindStringSubmatch(raw); m != nil {
			line, _ := strconv.Atoi(m[2])
			source = p.source(m[1], line)
			continue
		}

		m := objdumpInsnRe.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		address, err := strconv.ParseUint(m[1], 16, 64)
		if err != nil {
			continue
		}
		text := " " + strings.TrimRight(m[3], " \t")
		line := Line{
			Text:    text,
			Address: &address,
			Opcodes: strings.Fields(m[2]),
		}
		if source != nil {
			s := *source
			line.Source = &s
		}
		if dest := objdumpDestRe.FindStringSubmatch(raw); dest != nil {
			if to, err := strconv.ParseUint(dest[1], 16, 64); err == nil {
				if offset := strings.LastIndex(text, dest[1]); offset >= 0 {
					line.Links = []Link{{Offset: offset, Length: len(dest[1]), To: to}}
				}
			}
		}
		result = append(result, line)
	}

	if filters.Trim {
		for i := range result {
			result[i].Text = strings.TrimRight(result[i].Text, " \t")
		}
	}
	return result
}

func isErrorDocument(lines []string) bool {
	return len(lines) == 1 && strings.HasPrefix(lines[0], "<")
}
