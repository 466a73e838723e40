package alias

import (
	"context"
	"fmt"
	"time"
)

// Store persists mappings. Implementations must reject a mapping whose
// (scope, type, sequence), (scope, type, canonical) or (scope, alias) is
// already taken with ErrScopeConflict.
type Store interface {
	// Load returns every mapping of scope in creation order.
	Load(ctx context.Context, scope string) ([]Mapping, error)
	Insert(ctx context.Context, m Mapping) error
	// LoadFolds returns the partial-mention folds of scope.
	LoadFolds(ctx context.Context, scope string) ([]Fold, error)
	// InsertFold records a fold. The alias must belong to a mapping of the
	// scope and (type, canonical) must not be taken by a mapping or fold.
	InsertFold(ctx context.Context, f Fold) error
	// Delete removes a scope, folds included, and returns how many mappings it held.
	Delete(ctx context.Context, scope string) (int, error)
	Scopes(ctx context.Context) ([]ScopeInfo, error)
	// Touch records scope activity for idle purging.
	Touch(ctx context.Context, scope string, at time.Time) error
	Close() error
}

// Open returns the store for backend. path is ignored for "memory".
func Open(backend, path string, sealer *Sealer) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path, sealer)
	case "bolt", "bbolt":
		return NewBoltStore(path, sealer)
	default:
		return nil, &BackendError{Backend: backend}
	}
}

// BackendError names an unsupported store backend.
type BackendError struct {
	Backend string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("unsupported alias store backend %q (want memory, sqlite or bolt)", e.Backend)
}
