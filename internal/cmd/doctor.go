package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/masquerade/internal/doctor"
)

var (
	doctorJSON         bool
	doctorSkipUpstream bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, alias store, recognizers, AI provider)",
	Long:  "Verifies the data directory is writable, the alias store opens with the configured key, pattern and tie-break files load, and the AI provider is reachable.",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorSkipUpstream, "skip-upstream", false, "skip AI endpoint connectivity checks")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	report := doctor.Run(ctx, doctor.Options{SkipUpstream: doctorSkipUpstream})
	out := cmd.OutOrStdout()
	if doctorJSON {
		if err := writeEnvelope(out, report, nil); err != nil {
			return err
		}
	} else {
		renderReport(out, report)
	}
	if report.Status == "fail" {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}

func renderReport(w io.Writer, r *doctor.Report) {
	for _, c := range r.Checks {
		mark := "✓"
		switch c.Status {
		case "warn":
			mark = "⚠"
		case "fail":
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, c.Name, c.Message)
		if c.Fix != "" && c.Status != "pass" {
			fmt.Fprintf(w, "    fix: %s\n", c.Fix)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d warnings, %d failed\n", r.Summary.Pass, r.Summary.Warn, r.Summary.Fail)
}
