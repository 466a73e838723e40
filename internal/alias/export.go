package alias

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Export formats accepted by Encode.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned by Encode for unsupported formats.
var ErrUnknownFormat = errors.New("unknown export format")

// Export is the envelope written for a scope export.
type Export struct {
	ExportID   string    `json:"export_id" yaml:"export_id"`
	ScopeID    string    `json:"scope_id" yaml:"scope_id"`
	ExportedAt time.Time `json:"exported_at" yaml:"exported_at"`
	Count      int       `json:"count" yaml:"count"`
	Mappings   []Mapping `json:"mappings" yaml:"mappings"`
}

// NewExport wraps mappings in an envelope with a fresh export id.
func NewExport(scope string, mappings []Mapping) Export {
	if mappings == nil {
		mappings = []Mapping{}
	}
	return Export{
		ExportID:   uuid.New().String(),
		ScopeID:    normalizeScope(scope),
		ExportedAt: time.Now().UTC(),
		Count:      len(mappings),
		Mappings:   mappings,
	}
}

var csvHeader = []string{"scope_id", "entity_type", "sequence_number", "alias", "canonical_value", "original_value", "created_at"}

// Encode writes ex to w as json, csv or yaml. CSV carries the mappings only.
func Encode(w io.Writer, format string, ex Export) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ex)
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(ex); err != nil {
			return fmt.Errorf("encoding yaml export: %w", err)
		}
		return enc.Close()
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, m := range ex.Mappings {
			if err := cw.Write([]string{
				m.ScopeID,
				string(m.EntityType),
				strconv.Itoa(m.Sequence),
				m.Alias,
				m.CanonicalValue,
				m.OriginalValue,
				m.CreatedAt.UTC().Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("%w %q (want json, csv or yaml)", ErrUnknownFormat, format)
	}
}

// ContentType returns the MIME type for an export format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatCSV:
		return "text/csv"
	case FormatYAML, "yml":
		return "application/yaml"
	default:
		return "application/json"
	}
}
