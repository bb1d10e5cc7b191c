package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"asmexplorer/internal/asm"
	"asmexplorer/internal/compiler"
)

type fingerprintKey struct {
	Compiler string      `json:"compiler"`
	Source   string      `json:"source"`
	Options  []string    `json:"options"`
	Filters  asm.Filters `json:"filters"`
}

// Fingerprint identifies a request for caching and request collapsing. Two
// requests with the same fingerprint produce the same result.
func Fingerprint(req compiler.Request) string {
	options := req.Options
	if options == nil {
		options = []string{}
	}
	data, _ := json.Marshal(fingerprintKey{
		Compiler: req.CompilerID,
		Source:   req.Source,
		Options:  options,
		Filters:  req.Filters,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
