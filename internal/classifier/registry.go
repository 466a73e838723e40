package classifier

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dativo-io/masquerade/internal/entity"
	"github.com/dativo-io/masquerade/patterns"
)

// ErrMalformedPattern is returned when a recognizer regex does not compile.
var ErrMalformedPattern = errors.New("malformed pattern")

// PatternError names the recognizer and pattern that failed to compile.
type PatternError struct {
	Recognizer string
	Pattern    string
	Err        error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("compiling pattern %q in recognizer %q: %v", e.Pattern, e.Recognizer, e.Err)
}

// Unwrap lets errors.Is match ErrMalformedPattern as well as the regexp error.
func (e *PatternError) Unwrap() []error { return []error{ErrMalformedPattern, e.Err} }

// RecognizerFile is the top-level structure of a recognizer file (YAML or TOML).
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers" toml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's recognizer schema with masquerade extensions.
type RecognizerConfig struct {
	Name               string            `yaml:"name" toml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" toml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" toml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" toml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	DenyList           []string          `yaml:"deny_list,omitempty" toml:"deny_list,omitempty" json:"deny_list,omitempty"`
	DenyListScore      float64           `yaml:"deny_list_score,omitempty" toml:"deny_list_score,omitempty" json:"deny_list_score,omitempty"`
	// Validator names a hard gate applied to every match: luhn, ssn, ip, email.
	Validator string `yaml:"validator,omitempty" toml:"validator,omitempty" json:"validator,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" toml:"name" json:"name"`
	Regex string  `yaml:"regex" toml:"regex" json:"regex"`
	Score float64 `yaml:"score" toml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" toml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" toml:"context,omitempty" json:"context,omitempty"`
}

func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

func (r *RecognizerConfig) contextWords() []string {
	var words []string
	for _, l := range r.SupportedLanguages {
		words = append(words, l.Context...)
	}
	return words
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// ParseRecognizerTOML parses recognizer TOML bytes ([[recognizers]] tables).
func ParseRecognizerTOML(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if _, err := toml.Decode(string(data), &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer TOML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads a recognizer file from disk, choosing the decoder
// by extension (.toml, otherwise YAML). A missing file returns nil, nil so a
// missing global file is a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseRecognizerTOML(data)
	}
	return ParseRecognizerFile(data)
}

// DefaultRecognizers returns the embedded recognizers. First layer of the merge.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIDefaultYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// MergeRecognizers merges layers in order. Later layers override earlier ones
// by recognizer Name; new recognizers are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig
	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
				continue
			}
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}

// FilterByEntities applies an allow list and then a deny list on supported_entity.
// Entity names are compared after type normalization, so "EMAIL_ADDRESS" and
// "email" select the same recognizers.
func FilterByEntities(recognizers []RecognizerConfig, enabled, disabled []string) []RecognizerConfig {
	toSet := func(names []string) map[entity.Type]bool {
		set := make(map[entity.Type]bool, len(names))
		for _, n := range names {
			set[entity.ParseType(n)] = true
		}
		return set
	}
	allowed, blocked := toSet(enabled), toSet(disabled)

	var result []RecognizerConfig
	for _, r := range recognizers {
		t := entity.ParseType(r.SupportedEntity)
		if len(allowed) > 0 && !allowed[t] {
			continue
		}
		if blocked[t] {
			continue
		}
		result = append(result, r)
	}
	return result
}

// CompileRecognizer compiles every pattern of one recognizer. The first regex
// that fails yields a *PatternError.
func CompileRecognizer(rec RecognizerConfig) ([]Pattern, error) {
	if rec.Name == "" {
		return nil, &PatternError{Recognizer: rec.Name, Err: errors.New("recognizer name is required")}
	}
	if len(rec.Patterns) == 0 && len(rec.DenyList) == 0 {
		return nil, &PatternError{Recognizer: rec.Name, Err: errors.New("recognizer has no patterns")}
	}
	v, ok := validators[rec.Validator]
	if !ok {
		return nil, &PatternError{Recognizer: rec.Name, Pattern: rec.Validator, Err: fmt.Errorf("unknown validator %q", rec.Validator)}
	}

	typ := entity.ParseType(rec.SupportedEntity)
	words := rec.contextWords()
	var out []Pattern
	for _, p := range rec.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, &PatternError{Recognizer: rec.Name, Pattern: p.Name, Err: err}
		}
		out = append(out, Pattern{
			Recognizer:   rec.Name,
			Name:         p.Name,
			Type:         typ,
			Regex:        re,
			Score:        p.Score,
			ContextWords: words,
			valueGroup:   re.SubexpIndex("value"),
			validate:     v,
		})
	}
	if len(rec.DenyList) > 0 {
		quoted := make([]string, len(rec.DenyList))
		for i, w := range rec.DenyList {
			quoted[i] = regexp.QuoteMeta(w)
		}
		score := rec.DenyListScore
		if score == 0 {
			score = 1.0
		}
		out = append(out, Pattern{
			Recognizer:   rec.Name,
			Name:         "deny_list",
			Type:         typ,
			Regex:        regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
			Score:        score,
			ContextWords: words,
			valueGroup:   -1,
			validate:     v,
		})
	}
	return out, nil
}

// CompilePatterns compiles all enabled recognizers in order.
func CompilePatterns(recognizers []RecognizerConfig) ([]Pattern, error) {
	var out []Pattern
	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		ps, err := CompileRecognizer(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}
