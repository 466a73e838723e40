package alias

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/dativo-io/masquerade/internal/entity"
)

// DefaultTemplate renders aliases like "[EMAIL_1]".
const DefaultTemplate = "[{TYPE}_{N}]"

// Formatter renders aliases from a template. Supported placeholders:
// {TYPE} (entity label), {N} (sequence number, required) and {HASH}
// (first 8 hex characters of SHA-256 over the canonical value).
type Formatter struct {
	template string
}

// NewFormatter validates tmpl. An empty template means DefaultTemplate.
func NewFormatter(tmpl string) (Formatter, error) {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	if !strings.Contains(tmpl, "{N}") {
		return Formatter{}, fmt.Errorf("%w: %q must contain {N}", ErrInvalidTemplate, tmpl)
	}
	return Formatter{template: tmpl}, nil
}

// Template returns the template in use.
func (f Formatter) Template() string {
	if f.template == "" {
		return DefaultTemplate
	}
	return f.template
}

// Format renders one alias.
func (f Formatter) Format(t entity.Type, seq int, canonical string) string {
	r := strings.NewReplacer(
		"{TYPE}", t.Label(),
		"{N}", strconv.Itoa(seq),
		"{HASH}", shortHash(canonical),
	)
	return r.Replace(f.Template())
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}
