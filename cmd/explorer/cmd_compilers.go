package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compilersCmd = &cobra.Command{
	Use:   "compilers",
	Short: "List configured compilers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Compilers) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No compilers configured in %s\n", configPath)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), renderCompilers(cfg.Compilers))
		return nil
	},
}
