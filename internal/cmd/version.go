package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "version")
		defer span.End()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Masquerade %s\n", resolvedVersion())
		fmt.Fprintf(out, "Commit: %s\n", Commit)
		fmt.Fprintf(out, "Built:  %s\n", BuildDate)
		fmt.Fprintf(out, "Go:     %s\n", runtime.Version())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
