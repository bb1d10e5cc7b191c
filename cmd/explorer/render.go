package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"asmexplorer/internal/asm"
	"asmexplorer/internal/compiler"
)

var (
	addressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	opcodeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// renderListing renders processed lines with address and opcode gutters
// when the listing came from a disassembly.
func renderListing(lines []asm.Line) string {
	opcodeWidth := 0
	hasAddress := false
	for _, l := range lines {
		if l.Address != nil {
			hasAddress = true
		}
		if w := len(strings.Join(l.Opcodes, " ")); w > opcodeWidth {
			opcodeWidth = w
		}
	}

	var sb strings.Builder
	for _, l := range lines {
		if hasAddress {
			addr := ""
			if l.Address != nil {
				addr = fmt.Sprintf("%x", *l.Address)
			}
			sb.WriteString(addressStyle.Render(fmt.Sprintf("%8s", addr)))
			sb.WriteString("  ")
		}
		if opcodeWidth > 0 {
			sb.WriteString(opcodeStyle.Render(fmt.Sprintf("%-*s", opcodeWidth, strings.Join(l.Opcodes, " "))))
			sb.WriteString("  ")
		}

		if isLabel(l.Text) {
			sb.WriteString(labelStyle.Render(l.Text))
		} else {
			sb.WriteString(l.Text)
		}
		if l.Source != nil {
			sb.WriteString("  ")
			sb.WriteString(sourceStyle.Render("; " + sourceRef(l.Source)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func isLabel(text string) bool {
	return text != "" && text[0] != ' ' && strings.HasSuffix(text, ":")
}

func sourceRef(s *asm.Source) string {
	if s.File == nil {
		return fmt.Sprintf("line %d", s.Line)
	}
	return fmt.Sprintf("%s:%d", *s.File, s.Line)
}

// renderOutput renders compiler diagnostics, highlighting tagged lines.
func renderOutput(lines []compiler.OutputLine) string {
	var sb strings.Builder
	for _, l := range lines {
		if l.Tag != nil {
			sb.WriteString(errorStyle.Render(l.Text))
		} else {
			sb.WriteString(l.Text)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderCompilers renders a compiler table.
func renderCompilers(descs []compiler.Descriptor) string {
	idWidth, nameWidth := len("ID"), len("Name")
	for _, d := range descs {
		idWidth = max(idWidth, len(d.ID))
		nameWidth = max(nameWidth, len(d.DisplayName()))
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %-*s  %s", idWidth, "ID", nameWidth, "Name", "Where")))
	sb.WriteString("\n")
	for _, d := range descs {
		where := d.Exe
		if d.IsRemote() {
			where = "remote " + d.Remote
		}
		var caps []string
		if d.SupportsBinary {
			caps = append(caps, "binary")
		}
		if d.IntelAsm != "" {
			caps = append(caps, "intel")
		}
		if len(caps) > 0 {
			where += " [" + strings.Join(caps, ",") + "]"
		}
		fmt.Fprintf(&sb, "%-*s  %-*s  %s\n", idWidth, d.ID, nameWidth, d.DisplayName(), where)
	}
	return sb.String()
}
