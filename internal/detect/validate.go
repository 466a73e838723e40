package detect

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/dativo-io/masquerade/internal/classifier"
	"github.com/dativo-io/masquerade/internal/entity"
)

// Rule reports whether a value is a plausible instance of its type.
type Rule func(value string) bool

var placeholderValues = map[string]bool{
	"n/a": true, "na": true, "none": true, "null": true, "nil": true, "unknown": true,
	"redacted": true, "example": true, "xxx": true, "xxxx": true, "tbd": true, "todo": true,
	"changeme": true, "password": true, "your_api_key": true, "<redacted>": true,
}

var aliasLike = regexp.MustCompile(`^\[[A-Z][A-Z_]*_\d+\]$`)

// Validator applies per-type plausibility rules and exclusion patterns.
type Validator struct {
	mu         sync.RWMutex
	rules      map[entity.Type]Rule
	exclusions []*regexp.Regexp
}

// NewValidator returns a validator with the default rules.
func NewValidator() *Validator {
	return &Validator{rules: defaultRules()}
}

// Register adds or replaces the rule for t.
func (v *Validator) Register(t entity.Type, r Rule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[t] = r
}

// SetExclusions compiles patterns whose full matches are never sensitive
// (test fixtures, known public addresses). A pattern that fails to compile
// returns a *classifier.PatternError and leaves the previous set in place.
func (v *Validator) SetExclusions(patterns []string) error {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			return &classifier.PatternError{Recognizer: "exclusions", Pattern: fmt.Sprintf("#%d %s", i, p), Err: err}
		}
		compiled = append(compiled, re)
	}
	v.mu.Lock()
	v.exclusions = compiled
	v.mu.Unlock()
	return nil
}

// Valid reports whether f should be kept.
func (v *Validator) Valid(f entity.Finding) bool {
	value := strings.TrimSpace(f.Value)
	if value == "" || placeholderValues[strings.ToLower(value)] || aliasLike.MatchString(value) {
		return false
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, re := range v.exclusions {
		if re.MatchString(value) {
			return false
		}
	}
	if r, ok := v.rules[f.Type]; ok {
		return r(value)
	}
	return true
}

func defaultRules() map[entity.Type]Rule {
	return map[entity.Type]Rule{
		entity.Email: classifier.ValidEmail,
		entity.Phone: func(s string) bool {
			n := countDigits(s)
			return len(s) >= 10 && n >= 7 && n <= 15
		},
		entity.SSN: classifier.ValidSSN,
		entity.CreditCard: func(s string) bool {
			d := digits(s)
			return len(d) >= 13 && len(d) <= 19 && classifier.LuhnValid(d)
		},
		entity.APIKey: func(s string) bool {
			return len(s) > 10 && !strings.ContainsFunc(s, unicode.IsSpace)
		},
		entity.IPAddress: classifier.ValidIP,
		entity.PersonName: func(s string) bool {
			n := utf8.RuneCountInString(s)
			return n > 1 && n <= 100 && hasLetter(s) && countDigits(s) == 0 && len(strings.Fields(s)) <= 6
		},
		entity.CompanyName: func(s string) bool {
			return utf8.RuneCountInString(s) > 1 && hasLetter(s)
		},
		entity.Address: func(s string) bool {
			return utf8.RuneCountInString(s) >= 5 && hasLetter(s)
		},
		entity.DateOfBirth: func(s string) bool {
			return len(s) >= 6 && countDigits(s) >= 2
		},
		entity.AccountNumber: func(s string) bool {
			return countDigits(s) >= 4
		},
		entity.Password: func(s string) bool {
			return len(s) >= 4 && !strings.ContainsAny(s, "\r\n")
		},
		entity.PrivateKey: func(s string) bool {
			return strings.Contains(s, "PRIVATE KEY") || len(s) >= 32
		},
		entity.DatabaseURL: func(s string) bool {
			return strings.Contains(s, "://")
		},
		entity.JWT: func(s string) bool {
			return strings.Count(s, ".") == 2 && len(s) >= 20
		},
		entity.MACAddress: func(s string) bool {
			return len(s) == 17
		},
	}
}

func hasLetter(s string) bool {
	return strings.ContainsFunc(s, unicode.IsLetter)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
