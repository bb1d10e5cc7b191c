package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"asmexplorer/internal/asm"
)

var (
	asmTrace   bool
	asmJSON    bool
	asmBless   string
	asmFilters filterFlags
)

var asmCmd = &cobra.Command{
	Use:   "asm <file|->",
	Short: "Process an existing assembly listing",
	Long: `Runs the listing processor over compiler assembly output (or objdump output
with --binary) without compiling anything. --bless writes the result as a
golden JSON file for regression tests.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsm,
}

func init() {
	asmCmd.Flags().BoolVar(&asmTrace, "trace", false, "Input is a numbered 6g-style trace")
	asmCmd.Flags().BoolVar(&asmJSON, "json", false, "Print the listing as JSON")
	asmCmd.Flags().StringVar(&asmBless, "bless", "", "Write the JSON listing to this golden file")
	asmFilters.register(asmCmd.Flags(), "Input is objdump -d -l output")
}

func runAsm(cmd *cobra.Command, args []string) error {
	input, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	proc, err := asm.NewProcessor(asm.Options{
		InputFilename: path.Base(cfg.Compile.Filename),
		HideFunctions: cfg.Compile.BinaryHideFuncRe,
	})
	if err != nil {
		return err
	}

	text := string(input)
	if asmTrace {
		text = asm.ConvertTrace(text)
	}
	lines := proc.Process(text, asmFilters.filters())

	if asmBless != "" {
		data, err := json.MarshalIndent(lines, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(asmBless, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("failed to write golden: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d lines to %s\n", len(lines), asmBless)
		return nil
	}

	out := cmd.OutOrStdout()
	if asmJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(lines)
	}
	fmt.Fprint(out, renderListing(lines))
	return nil
}
