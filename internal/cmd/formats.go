package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/masquerade/internal/redact"
)

var formatsJSON bool

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported content types and file extensions",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := redact.SupportedFormats()
		if formatsJSON {
			return writeEnvelope(cmd.OutOrStdout(), f, nil)
		}
		renderFormats(cmd.OutOrStdout(), f)
		return nil
	},
}

func init() {
	formatsCmd.Flags().BoolVar(&formatsJSON, "json", false, "print JSON")
	rootCmd.AddCommand(formatsCmd)
}

func renderFormats(w io.Writer, f redact.Formats) {
	fmt.Fprintf(w, "pdf:  %s\n", strings.Join(f.PDF, " "))
	fmt.Fprintf(w, "text: %s\n", strings.Join(f.Text, ", "))
	fmt.Fprintf(w, "code: %s\n", strings.Join(f.Code, " "))
}
