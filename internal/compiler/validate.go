package compiler

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultAllowedOptions accepts every option; the deny list does the work.
const DefaultAllowedOptions = `.*`

// DefaultDeniedOptions rejects options that redirect output, reach for
// headers or tools outside the workspace, or load code into the compiler.
// The optional -Wa,/-Wl,/-Wp, prefix catches the same options passed through
// to the assembler, linker or preprocessor.
const DefaultDeniedOptions = `^(-W[alp],)?(-o.*|--output.*|-I(/.*|\.\..*)?|-i.*|-B.*|--sysroot.*|-fplugin.*|-wrapper.*|-specs.*|-load.*|-plugin.*|@.*|--)$`

// OptionsPolicy decides which user options may reach a compiler.
type OptionsPolicy struct {
	allowed *regexp.Regexp
	denied  *regexp.Regexp
}

// NewOptionsPolicy compiles the allow and deny patterns. Empty patterns
// take the defaults.
func NewOptionsPolicy(allowed, denied string) (*OptionsPolicy, error) {
	if allowed == "" {
		allowed = DefaultAllowedOptions
	}
	if denied == "" {
		denied = DefaultDeniedOptions
	}
	allowRe, err := regexp.Compile(allowed)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed options pattern: %w", err)
	}
	denyRe, err := regexp.Compile(denied)
	if err != nil {
		return nil, fmt.Errorf("invalid denied options pattern: %w", err)
	}
	return &OptionsPolicy{allowed: allowRe, denied: denyRe}, nil
}

// FindBadOptions returns the options that are not allowed, in order.
func (p *OptionsPolicy) FindBadOptions(options []string) []string {
	var bad []string
	for _, opt := range options {
		if !p.allowed.MatchString(opt) || p.denied.MatchString(opt) {
			bad = append(bad, opt)
		}
	}
	return bad
}

// CheckOptions rejects option lists containing bad options.
func (p *OptionsPolicy) CheckOptions(options []string) error {
	if bad := p.FindBadOptions(options); len(bad) > 0 {
		return ValidationError("Bad options: " + strings.Join(bad, ", "))
	}
	return nil
}

var escapingIncludeRe = regexp.MustCompile(`^\s*#\s*i(nclude|mport)(_next)?\s+["<](/|.*\.\.)`)

// CheckSource rejects sources that include files by absolute path or by a
// path leaving the workspace. Every offending line is reported.
func CheckSource(source string) error {
	var failed []string
	for i, line := range strings.Split(source, "\n") {
		if escapingIncludeRe.MatchString(line) {
			failed = append(failed, fmt.Sprintf("<stdin>:%d:1: no absolute or relative includes please", i+1))
		}
	}
	if len(failed) > 0 {
		return ValidationError(strings.Join(failed, "\n"))
	}
	return nil
}
