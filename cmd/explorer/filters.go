package main

import (
	"github.com/spf13/pflag"

	"asmexplorer/internal/asm"
)

// filterFlags binds the listing filters to command flags.
type filterFlags struct {
	directives  bool
	labels      bool
	commentOnly bool
	trim        bool
	binary      bool
	intel       bool
}

func (f *filterFlags) register(fs *pflag.FlagSet, binaryUsage string) {
	fs.BoolVar(&f.directives, "directives", true, "Drop assembler directives")
	fs.BoolVar(&f.labels, "labels", true, "Drop labels nothing refers to")
	fs.BoolVar(&f.commentOnly, "comment-only", true, "Drop comment-only lines")
	fs.BoolVar(&f.trim, "trim", false, "Collapse blank lines and trailing whitespace")
	fs.BoolVar(&f.binary, "binary", false, binaryUsage)
	fs.BoolVar(&f.intel, "intel", false, "Intel syntax")
}

func (f *filterFlags) filters() asm.Filters {
	return asm.Filters{
		Directives:  f.directives,
		Labels:      f.labels,
		CommentOnly: f.commentOnly,
		Trim:        f.trim,
		Binary:      f.binary,
		Intel:       f.intel,
	}
}
