package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/masquerade/internal/config"
	"github.com/dativo-io/masquerade/internal/redact"
)

var (
	redactScope    string
	redactType     string
	redactLanguage string
	redactText     bool
	redactJSON     bool
	redactDiff     bool
	redactNoAI     bool
	redactTimeout  time.Duration
)

var redactCmd = &cobra.Command{
	Use:   "redact [file-or-text...]",
	Short: "Redact a file, a string, or stdin",
	Long: `Redact replaces sensitive values with scope-stable aliases.

An argument naming an existing file is redacted as a file: .pdf files as
documents, source files as code (written next to the original as
<name>_redacted<ext>), anything else as text. Other arguments are redacted
as text. With no argument, or "-", stdin is read.

Several text arguments are redacted in order under one scope, like the
messages of a conversation.`,
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringVarP(&redactScope, "scope", "s", "default", "alias scope (same value, same alias within a scope)")
	redactCmd.Flags().StringVar(&redactType, "type", "auto", "content type: auto, text, code, pdf")
	redactCmd.Flags().StringVar(&redactLanguage, "language", "", "source language for code (default: from file extension)")
	redactCmd.Flags().BoolVar(&redactText, "text", false, "treat arguments as text even if they name files")
	redactCmd.Flags().BoolVar(&redactJSON, "json", false, "print the full result as JSON")
	redactCmd.Flags().BoolVar(&redactDiff, "diff", false, "print a colored diff of original and redacted content")
	redactCmd.Flags().BoolVar(&redactNoAI, "no-ai", false, "pattern-only detection for this run")
	redactCmd.Flags().DurationVar(&redactTimeout, "timeout", 10*time.Minute, "overall timeout")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), redactTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "redact")
	defer span.End()

	hint, ok := redact.ParseContentType(redactType)
	if !ok {
		return fmt.Errorf("%w: unknown --type %q", redact.ErrInvalidInput, redactType)
	}

	inputs, originals, err := redactInputs(cmd.InOrStdin(), args, hint)
	if err != nil {
		return err
	}

	if redactNoAI {
		viper.Set(config.KeyAIEnabled, false)
	}
	st, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	var results []*redact.Result
	for i, in := range inputs {
		res, err := st.engine.Redact(ctx, in)
		if err != nil {
			if redactJSON {
				_ = writeEnvelope(out, nil, err)
			}
			return fmt.Errorf("redacting input %d: %w", i+1, err)
		}
		results = append(results, res)
	}

	if redactJSON {
		if len(results) == 1 {
			return writeEnvelope(out, results[0], nil)
		}
		return writeEnvelope(out, map[string]interface{}{"results": results}, nil)
	}

	for i, res := range results {
		switch {
		case redactDiff && res.ContentType != redact.TypePDF:
			renderDiff(out, originals[i], res.RedactedContent)
		case res.OutputPath == "":
			fmt.Fprintln(out, res.RedactedContent)
		}
		renderSummary(cmd.ErrOrStderr(), res)
	}
	return nil
}

// redactInputs turns arguments into engine inputs and keeps the original
// text of each for --diff.
func redactInputs(stdin io.Reader, args []string, hint redact.ContentType) ([]redact.Input, []string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, nil, fmt.Errorf("reading stdin: %w", err)
		}
		text := strings.TrimSuffix(string(data), "\n")
		return []redact.Input{prepare(redact.Text(text), hint)}, []string{text}, nil
	}

	inputs := make([]redact.Input, 0, len(args))
	originals := make([]string, 0, len(args))
	for _, a := range args {
		in := redact.Auto(a)
		if redactText {
			in = redact.Text(a)
		}
		original := in.Text
		if in.Kind == redact.KindPath && redactDiff {
			data, err := os.ReadFile(in.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", redact.ErrInvalidInput, err)
			}
			original = string(data)
		}
		inputs = append(inputs, prepare(in, hint))
		originals = append(originals, original)
	}
	return inputs, originals, nil
}

func prepare(in redact.Input, hint redact.ContentType) redact.Input {
	return in.WithScope(redactScope).WithHint(hint).WithLanguage(redactLanguage)
}
