// Package alias assigns stable masked aliases to entities within a scope.
package alias

import (
	"errors"
	"time"

	"github.com/dativo-io/masquerade/internal/entity"
)

// DefaultScope is used when a caller does not name a scope.
const DefaultScope = "default"

var (
	// ErrScopeConflict means a second mapping would reuse a sequence number or
	// alias already held in the scope. It signals a broken invariant and is
	// not retried.
	ErrScopeConflict = errors.New("scope conflict")
	// ErrEmptyValue is returned when asked to alias an empty value.
	ErrEmptyValue = errors.New("empty entity value")
	// ErrInvalidTemplate is returned for alias templates without {N}.
	ErrInvalidTemplate = errors.New("invalid alias template")
)

// Mapping binds one canonical value to its alias within a scope. Mappings
// are immutable once created.
type Mapping struct {
	ScopeID        string      `json:"scope_id" yaml:"scope_id"`
	EntityType     entity.Type `json:"entity_type" yaml:"entity_type"`
	CanonicalValue string      `json:"canonical_value" yaml:"canonical_value"`
	OriginalValue  string      `json:"original_value" yaml:"original_value"`
	Alias          string      `json:"alias" yaml:"alias"`
	Sequence       int         `json:"sequence_number" yaml:"sequence_number"`
	CreatedAt      time.Time   `json:"created_at" yaml:"created_at"`
}

// Fold records a partial mention that resolves to an existing mapping's
// alias ("doe" -> the alias of "jane doe"). Folds are persisted so a
// reloaded scope answers the same way even after later mappings make the
// mention ambiguous.
type Fold struct {
	ScopeID        string
	EntityType     entity.Type
	CanonicalValue string
	Alias          string
	CreatedAt      time.Time
}

// Request is one value to resolve in a batch.
type Request struct {
	Type  entity.Type
	Value string
}

// ScopeInfo summarizes a persisted scope.
type ScopeInfo struct {
	ID       string    `json:"scope_id"`
	Mappings int       `json:"mappings"`
	LastUsed time.Time `json:"last_used"`
}

// ScopeStats reports usage of one scope.
type ScopeStats struct {
	ScopeID     string              `json:"scope_id"`
	Total       int                 `json:"total"`
	ByType      map[entity.Type]int `json:"by_type"`
	Resolutions int                 `json:"resolutions"`
	Reused      int                 `json:"reused"`
	LastUsed    time.Time           `json:"last_used,omitempty"`
}
