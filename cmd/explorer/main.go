package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"asmexplorer/internal/config"
	"asmexplorer/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "explorer",
	Short: "Compile source code and explore the generated assembly",
	Long: `explorer runs configured compilers on source code and turns their assembly
output into annotated listings: unused labels and directives filtered out,
each instruction attributed to the source line it came from.

Run "explorer serve" for the HTTP API, or use "compile" and "asm" directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		lc := loaded.Logging.LoggerConfig()
		switch {
		case verbose:
			lc.Level = "debug"
		case cmd.Name() != "serve":
			// One-shot commands print results on stdout; keep stderr quiet.
			lc.Level = "warn"
		}
		l, err := logging.Initialize(lc)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, logger = loaded, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "explorer.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(asmCmd)
	rootCmd.AddCommand(compilersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
