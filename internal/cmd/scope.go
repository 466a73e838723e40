package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/entity"
)

var (
	scopeFormat string
	scopeOutput string
	scopeClear  bool
	scopeYes    bool
	scopeJSON   bool
)

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "List, export, inspect and clear alias scopes",
}

var scopeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scopes with stored mappings",
	RunE:  scopeList,
}

var scopeExportCmd = &cobra.Command{
	Use:   "export [scope]",
	Short: "Export a scope's mappings as json, csv or yaml",
	Args:  cobra.ExactArgs(1),
	RunE:  scopeExport,
}

var scopeStatsCmd = &cobra.Command{
	Use:   "stats [scope]",
	Short: "Show mapping counts per entity type",
	Args:  cobra.ExactArgs(1),
	RunE:  scopeStats,
}

var scopeClearCmd = &cobra.Command{
	Use:   "clear [scope]",
	Short: "Irreversibly delete a scope's mappings",
	Args:  cobra.ExactArgs(1),
	RunE:  scopeClearRun,
}

func init() {
	scopeListCmd.Flags().BoolVar(&scopeJSON, "json", false, "print JSON")
	scopeStatsCmd.Flags().BoolVar(&scopeJSON, "json", false, "print JSON")
	scopeExportCmd.Flags().StringVarP(&scopeFormat, "format", "f", alias.FormatJSON, "export format: json, csv, yaml")
	scopeExportCmd.Flags().StringVarP(&scopeOutput, "output", "o", "", "write to file instead of stdout")
	scopeExportCmd.Flags().BoolVar(&scopeClear, "clear", false, "clear the scope after exporting")
	scopeClearCmd.Flags().BoolVarP(&scopeYes, "yes", "y", false, "confirm deletion")

	scopeCmd.AddCommand(scopeListCmd)
	scopeCmd.AddCommand(scopeExportCmd)
	scopeCmd.AddCommand(scopeStatsCmd)
	scopeCmd.AddCommand(scopeClearCmd)
	rootCmd.AddCommand(scopeCmd)
}

func scopeList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	scopes, err := st.registry.Scopes(ctx)
	if err != nil {
		return fmt.Errorf("listing scopes: %w", err)
	}
	if scopeJSON {
		return writeEnvelope(cmd.OutOrStdout(), map[string]interface{}{"scopes": scopes}, nil)
	}
	renderScopeList(cmd.OutOrStdout(), scopes)
	return nil
}

// renderScopeList writes scope lines to w (testable).
func renderScopeList(w io.Writer, scopes []alias.ScopeInfo) {
	if len(scopes) == 0 {
		fmt.Fprintln(w, "No scopes found.")
		return
	}
	fmt.Fprintf(w, "Scopes (%d):\n\n", len(scopes))
	for _, s := range scopes {
		fmt.Fprintf(w, "  %-24s %5d mappings  last used %s\n", s.ID, s.Mappings, s.LastUsed.Format("2006-01-02 15:04:05"))
	}
}

func scopeExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	ctx, span := tracer.Start(ctx, "scope.export")
	defer span.End()

	st, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	scope := args[0]
	// Encode first so an unknown format never clears anything.
	if err := alias.Encode(io.Discard, scopeFormat, alias.NewExport(scope, nil)); err != nil {
		return err
	}
	var mappings []alias.Mapping
	if scopeClear {
		mappings, err = st.registry.ExportAndClear(ctx, scope)
	} else {
		mappings, err = st.registry.Export(ctx, scope)
	}
	if err != nil {
		return fmt.Errorf("exporting scope %s: %w", scope, err)
	}

	var buf bytes.Buffer
	if err := alias.Encode(&buf, scopeFormat, alias.NewExport(scope, mappings)); err != nil {
		return err
	}
	if scopeOutput == "" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(scopeOutput, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d mappings of %s to %s\n", len(mappings), scope, scopeOutput)
	return nil
}

func scopeStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.registry.Stats(ctx, args[0])
	if err != nil {
		return fmt.Errorf("scope stats: %w", err)
	}
	if scopeJSON {
		return writeEnvelope(cmd.OutOrStdout(), stats, nil)
	}
	renderScopeStats(cmd.OutOrStdout(), stats)
	return nil
}

// renderScopeStats writes per-type counts to w (testable).
func renderScopeStats(w io.Writer, stats alias.ScopeStats) {
	fmt.Fprintf(w, "Scope %s: %d mappings\n", stats.ScopeID, stats.Total)
	types := make([]entity.Type, 0, len(stats.ByType))
	for t := range stats.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Fprintf(w, "  %-16s %d\n", t, stats.ByType[t])
	}
	if stats.Resolutions > 0 {
		fmt.Fprintf(w, "  resolutions this process: %d (%d reused)\n", stats.Resolutions, stats.Reused)
	}
}

func scopeClearRun(cmd *cobra.Command, args []string) error {
	if !scopeYes {
		return fmt.Errorf("clearing %s deletes its mappings permanently; pass --yes to confirm", args[0])
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.engine.ClearScope(ctx, args[0])
	if err != nil {
		return fmt.Errorf("clearing scope: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %d mappings from %s\n", n, args[0])
	return nil
}
