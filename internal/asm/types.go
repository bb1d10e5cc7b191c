// Package asm turns raw compiler output into a line-by-line listing that a
// renderer can cross-reference with the source. It covers both textual
// assembly (gcc -S style) and objdump disassembly, and performs no I/O.
package asm

// Filters are the caller-selected output switches. Each one is independent.
type Filters struct {
	// Directives drops assembler pseudo-ops, keeping data that a used label defines.
	Directives bool `json:"directives,omitempty"`
	// Labels drops definitions of labels nothing refers to.
	Labels bool `json:"labels,omitempty"`
	// CommentOnly drops lines consisting solely of a comment.
	CommentOnly bool `json:"commentOnly,omitempty"`
	// Binary selects disassembly of a linked binary instead of -S output.
	Binary bool `json:"binary,omitempty"`
	// Intel requests Intel syntax. Only the command line depends on it.
	Intel bool `json:"intel,omitempty"`
	// Trim collapses runs of blank lines and strips trailing whitespace.
	Trim bool `json:"trim,omitempty"`
}

// Source attributes a line to a location in the compiled input.
// File is nil when the location is in the primary input file.
type Source struct {
	File *string `json:"file"`
	Line int     `json:"line"`
}

// Link marks a byte range of Line.Text that refers to another address,
// typically the target of a jump or call.
type Link struct {
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	To     uint64 `json:"to"`
}

// Line is one line of the processed listing.
type Line struct {
	Text    string   `json:"text"`
	Source  *Source  `json:"source"`
	Address *uint64  `json:"address,omitempty"`
	Opcodes []string `json:"opcodes,omitempty"`
	Links   []Link   `json:"links,omitempty"`
}
