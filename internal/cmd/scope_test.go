package cmd

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/entity"
)

func TestAliasResolveAndLookup(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "", "alias", "resolve", "-t", "email", "-s", "crm", "jane@Example.COM", "bob@example.com", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "[EMAIL_1]\tjane@Example.COM\n[EMAIL_2]\tbob@example.com\n[EMAIL_1]\tjane@example.com\n", out)

	out, _, err = execute(t, "", "alias", "lookup", "-s", "crm", "[EMAIL_1]")
	require.NoError(t, err)
	assert.Contains(t, out, "[EMAIL_1] → jane@example.com")
	assert.Contains(t, out, `"jane@Example.COM"`)

	_, _, err = execute(t, "", "alias", "lookup", "-s", "crm", "[EMAIL_9]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAliasResolve_RequiresType(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "", "alias", "resolve", "a@x.io")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type")
}

func TestAliasResolve_EmptyValueJSON(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "", "alias", "resolve", "-t", "email", "--json", "  ")
	require.Error(t, err)
	assert.Contains(t, out, `"code": "invalid_input"`)
	assert.Contains(t, out, `"success": false`)
}

func TestScopeCommands(t *testing.T) {
	dir := isolate(t)
	_, _, err := execute(t, "", "redact", "-s", "case-7", scenario)
	require.NoError(t, err)

	out, _, err := execute(t, "", "scope", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Scopes (1)")
	assert.Contains(t, out, "case-7")

	out, _, err = execute(t, "", "scope", "stats", "case-7", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 2`)

	out, _, err = execute(t, "", "scope", "export", "case-7", "-f", "csv")
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two mappings")

	_, _, err = execute(t, "", "scope", "export", "case-7", "-f", "xml")
	require.Error(t, err)

	_, _, err = execute(t, "", "scope", "clear", "case-7")
	require.Error(t, err, "clear needs --yes")

	exportPath := filepath.Join(dir, "case-7.yaml")
	_, errOut, err := execute(t, "", "scope", "export", "case-7", "-f", "yaml", "-o", exportPath, "--clear")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Exported 2 mappings")
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alias: '[EMAIL_1]'")

	out, _, err = execute(t, "", "scope", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No scopes found.")

	_, _, err = execute(t, "", "redact", "-s", "case-7", "x@y.io")
	require.NoError(t, err)
	out, _, err = execute(t, "", "scope", "clear", "case-7", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "✓ Cleared 1 mappings from case-7\n", out)
}

func TestRenderScopeStats(t *testing.T) {
	var buf bytes.Buffer
	renderScopeStats(&buf, alias.ScopeStats{
		ScopeID: "s1",
		Total:   3,
		ByType:  map[entity.Type]int{entity.Phone: 1, entity.Email: 2},
	})
	assert.Equal(t, "Scope s1: 3 mappings\n  email            2\n  phone            1\n", buf.String())
}

func TestRenderScopeList(t *testing.T) {
	var buf bytes.Buffer
	renderScopeList(&buf, nil)
	assert.Equal(t, "No scopes found.\n", buf.String())

	buf.Reset()
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	renderScopeList(&buf, []alias.ScopeInfo{{ID: "a", Mappings: 4, LastUsed: at}})
	assert.Contains(t, buf.String(), "Scopes (1):")
	assert.Contains(t, buf.String(), "2026-03-01 09:30:00")
}
