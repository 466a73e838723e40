package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/entity"
)

var (
	aliasScope string
	aliasType  string
	aliasJSON  bool
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Resolve values to aliases and aliases back to values",
}

var aliasResolveCmd = &cobra.Command{
	Use:   "resolve [value...]",
	Short: "Return the alias for each value, creating it if needed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  aliasResolve,
}

var aliasLookupCmd = &cobra.Command{
	Use:   "lookup [alias]",
	Short: "Show the mapping behind an alias",
	Args:  cobra.ExactArgs(1),
	RunE:  aliasLookup,
}

func init() {
	for _, c := range []*cobra.Command{aliasResolveCmd, aliasLookupCmd} {
		c.Flags().StringVarP(&aliasScope, "scope", "s", alias.DefaultScope, "alias scope")
		c.Flags().BoolVar(&aliasJSON, "json", false, "print JSON")
	}
	aliasResolveCmd.Flags().StringVarP(&aliasType, "type", "t", "", "entity type (email, phone, person_name, ... or a Presidio name)")
	_ = aliasResolveCmd.MarkFlagRequired("type")

	aliasCmd.AddCommand(aliasResolveCmd)
	aliasCmd.AddCommand(aliasLookupCmd)
	rootCmd.AddCommand(aliasCmd)
}

func aliasResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	ctx, span := tracer.Start(ctx, "alias.resolve")
	defer span.End()

	st, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	t := entity.ParseType(aliasType)
	reqs := make([]alias.Request, len(args))
	for i, v := range args {
		reqs[i] = alias.Request{Type: t, Value: v}
	}
	aliases, err := st.registry.ResolveBatch(ctx, aliasScope, reqs)
	out := cmd.OutOrStdout()
	if aliasJSON {
		if err != nil {
			_ = writeEnvelope(out, nil, err)
			return err
		}
		return writeEnvelope(out, map[string]interface{}{"scope_id": aliasScope, "aliases": aliases}, nil)
	}
	if err != nil {
		return fmt.Errorf("resolving aliases: %w", err)
	}
	for i, a := range aliases {
		fmt.Fprintf(out, "%s\t%s\n", a, args[i])
	}
	return nil
}

func aliasLookup(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	m, ok, err := st.registry.Lookup(ctx, aliasScope, args[0])
	if err != nil {
		return fmt.Errorf("looking up alias: %w", err)
	}
	if !ok {
		return fmt.Errorf("alias %s not found in scope %s", args[0], aliasScope)
	}
	out := cmd.OutOrStdout()
	if aliasJSON {
		return writeEnvelope(out, m, nil)
	}
	fmt.Fprintf(out, "%s → %s (%s, first seen as %q at %s)\n",
		m.Alias, m.CanonicalValue, m.EntityType, m.OriginalValue, m.CreatedAt.Format(time.RFC3339))
	return nil
}
