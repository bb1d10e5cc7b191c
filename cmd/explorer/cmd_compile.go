package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"asmexplorer/internal/compiler"
)

var (
	compileCompiler string
	compileOptions  string
	compileJSON     bool
	compileFilters  filterFlags
)

var compileCmd = &cobra.Command{
	Use:   "compile <file|->",
	Short: "Compile a source file once and print the listing",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileCompiler, "compiler", "c", "", "Compiler id (default: first configured)")
	compileCmd.Flags().StringVarP(&compileOptions, "options", "O", "", "Compiler options, shell quoted")
	compileCmd.Flags().BoolVar(&compileJSON, "json", false, "Print the result as JSON")
	compileFilters.register(compileCmd.Flags(), "Link a binary and disassemble it")
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func runCompile(cmd *cobra.Command, args []string) error {
	source, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	options, err := shellwords.Parse(compileOptions)
	if err != nil {
		return fmt.Errorf("bad --options: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	id := compileCompiler
	if id == "" {
		compilers := a.svc.Compilers()
		if len(compilers) == 0 {
			return fmt.Errorf("no compilers configured in %s", configPath)
		}
		id = compilers[0].ID
	}

	res, err := a.svc.Submit(cmd.Context(), compiler.Request{
		CompilerID: id,
		Source:     string(source),
		Options:    options,
		Filters:    compileFilters.filters(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if compileJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprint(out, renderOutput(res.Stderr))
	if res.Asm.Structured {
		fmt.Fprint(out, renderListing(res.Asm.Lines))
	} else {
		fmt.Fprintln(out, res.Asm.Text)
	}
	fmt.Fprint(out, renderOutput(res.Stdout))
	if res.Code != 0 {
		return fmt.Errorf("compiler exited with code %d", res.Code)
	}
	return nil
}
