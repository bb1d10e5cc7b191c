package asm

import (
	"regexp"
	"strings"
)

// Kind is the syntactic category of one assembly line.
type Kind int

const (
	// KindBlank: the line is empty or whitespace only.
	KindBlank Kind = iota
	// KindComment: the first non-blank text is a comment marker ('#', '@',
	// ';' or "//"), or the whole line is a single /* ... */ block.
	KindComment
	// KindLabel: an identifier followed by ':' with nothing after it but an
	// optional comment.
	KindLabel
	// KindDirective: the first non-blank character is '.', and the line is
	// neither a label definition nor a data definition.
	KindDirective
	// KindInstruction: anything else.
	KindInstruction
	// KindData: a pseudo-op that emits bytes into the object (.string, .long,
	// .byte, .zero, ...). Kept by the directives filter when it sits under a
	// used label.
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindComment:
		return "comment"
	case KindLabel:
		return "label"
	case KindDirective:
		return "directive"
	case KindData:
		return "data"
	default:
		return "instruction"
	}
}

var (
	labelDefRe   = regexp.MustCompile(`^\s*([.a-zA-Z_$][a-zA-Z0-9$_.@]*):\s*(?:(?:#|;|//).*)?$`)
	blockComment = regexp.MustCompile(`^\s*/\*.*\*/\s*$`)
	identRe      = regexp.MustCompile(`[.a-zA-Z_$][a-zA-Z0-9$_.]*`)
	quotedRe     = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)

	dataDefnRe     = regexp.MustCompile(`^\s*\.(string|asciz|ascii|[1248]?byte|short|hword|word|long|int|quad|octa|value|zero|float|double|single|[su]leb128)\b`)
	definesGlobal  = regexp.MustCompile(`^\s*\.globa?l\s+([.a-zA-Z_$][a-zA-Z0-9$_.]*)`)
	definesFunc    = regexp.MustCompile(`^\s*\.type\s+([.a-zA-Z_$][a-zA-Z0-9$_.]*)\s*,\s*[@%]function`)
	fileDirective  = regexp.MustCompile(`^\s*\.file\s+(\d+)\s+"([^"]+)"(?:\s+"([^"]+)")?`)
	locDirective   = regexp.MustCompile(`^\s*\.loc\s+(\d+)\s+(\d+)`)
	endBlockDirect = regexp.MustCompile(`^\s*\.(cfi_endproc|data|text|section)\b`)
)

// Classify returns the kind of a single line.
func Classify(line string) Kind {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return KindBlank
	case strings.HasPrefix(trimmed, "#"),
		strings.HasPrefix(trimmed, "@"),
		strings.HasPrefix(trimmed, ";"),
		strings.HasPrefix(trimmed, "//"),
		blockComment.MatchString(trimmed):
		return KindComment
	case labelDefRe.MatchString(line):
		return KindLabel
	case dataDefnRe.MatchString(line):
		return KindData
	case strings.HasPrefix(trimmed, "."):
		return KindDirective
	default:
		return KindInstruction
	}
}

// labelName returns the label defined on a KindLabel line.
func labelName(line string) string {
	m := labelDefRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

// operandRefs returns the identifiers referenced by the operands of an
// instruction or data directive. The mnemonic, string literals and trailing
// '#' comments are ignored.
func operandRefs(line string) []string {
	trimmed := strings.TrimSpace(line)
	idx := strings.IndexAny(trimmed, " \t")
	if idx < 0 {
		return nil
	}
	operands := quotedRe.ReplaceAllString(trimmed[idx:], "")
	if c := strings.Index(operands, "#"); c >= 0 {
		operands = operands[:c]
	}
	return identRe.FindAllString(operands, -1)
}

// usedLabels reports which labels are referenced. A label is used when an
// instruction refers to it, when it is declared global or a function, or
// when a data definition under an already used label refers to it.
func usedLabels(lines []string) map[string]bool {
	used := make(map[string]bool)
	weak := make(map[string][]string)
	current := ""

	for _, line := range lines {
		switch Classify(line) {
		case KindLabel:
			current = labelName(line)
		case KindDirective:
			if m := definesGlobal.FindStringSubmatch(line); m != nil {
				used[m[1]] = true
			}
			if m := definesFunc.FindStringSubmatch(line); m != nil {
				used[m[1]] = true
			}
		case KindData:
			if current != "" {
				weak[current] = append(weak[current], operandRefs(line)...)
			}
		case KindInstruction:
			for _, ref := range operandRefs(line) {
				used[ref] = true
			}
		}
	}

	pending := make([]string, 0, len(used))
	for label := range used {
		pending = append(pending, label)
	}
	for len(pending) > 0 {
		label := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		for _, ref := range weak[label] {
			if !used[ref] {
				used[ref] = true
				pending = append(pending, ref)
			}
		}
	}
	return used
}
