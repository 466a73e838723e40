package alias

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/masquerade/internal/entity"
	masqotel "github.com/dativo-io/masquerade/internal/otel"
)

var tracer = masqotel.Tracer("github.com/dativo-io/masquerade/internal/alias")

var errScopeActive = errors.New("scope active since cutoff")

type valueKey struct {
	t         entity.Type
	canonical string
}

type scopeState struct {
	mu      sync.Mutex
	loaded  bool
	cleared bool

	order   []Mapping
	byValue map[valueKey]int // index into order
	byAlias map[string]int
	folded  map[valueKey]int // partial mentions folded onto an existing mapping
	last    map[entity.Type]int

	resolutions int
	reused      int
	lastUsed    time.Time
}

func newScopeState() *scopeState {
	return &scopeState{
		byValue: make(map[valueKey]int),
		byAlias: make(map[string]int),
		folded:  make(map[valueKey]int),
		last:    make(map[entity.Type]int),
	}
}

func (st *scopeState) add(m Mapping) {
	idx := len(st.order)
	st.order = append(st.order, m)
	st.byValue[valueKey{m.EntityType, m.CanonicalValue}] = idx
	st.byAlias[m.Alias] = idx
	if m.Sequence > st.last[m.EntityType] {
		st.last[m.EntityType] = m.Sequence
	}
	if m.CreatedAt.After(st.lastUsed) {
		st.lastUsed = m.CreatedAt
	}
}

// Registry hands out aliases per scope. Each scope is guarded by its own
// mutex; different scopes resolve in parallel.
type Registry struct {
	store     Store
	formatter Formatter
	partial   bool
	now       func() time.Time

	mu     sync.Mutex
	scopes map[string]*scopeState
}

// Option configures a Registry.
type Option func(*Registry) error

// WithStore persists mappings in s instead of process memory.
func WithStore(s Store) Option {
	return func(r *Registry) error {
		r.store = s
		return nil
	}
}

// WithTemplate sets the alias template (see Formatter).
func WithTemplate(tmpl string) Option {
	return func(r *Registry) error {
		f, err := NewFormatter(tmpl)
		if err != nil {
			return err
		}
		r.formatter = f
		return nil
	}
}

// WithPartialMentions folds a person or company value onto an existing
// mapping when its tokens are a contiguous run of exactly one mapping's
// tokens ("Smith" after "John Smith").
func WithPartialMentions(enabled bool) Option {
	return func(r *Registry) error {
		r.partial = enabled
		return nil
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) error {
		r.now = now
		return nil
	}
}

// NewRegistry returns a registry backed by a MemoryStore unless WithStore is given.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		store:  NewMemoryStore(),
		now:    time.Now,
		scopes: make(map[string]*scopeState),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Template returns the alias template in use.
func (r *Registry) Template() string { return r.formatter.Template() }

// Close closes the underlying store.
func (r *Registry) Close() error { return r.store.Close() }

// acquire returns the locked, loaded state for scope. A state cleared while
// we waited is discarded and a fresh one taken.
func (r *Registry) acquire(ctx context.Context, scope string) (*scopeState, error) {
	for {
		r.mu.Lock()
		st, ok := r.scopes[scope]
		if !ok {
			st = newScopeState()
			r.scopes[scope] = st
		}
		r.mu.Unlock()

		st.mu.Lock()
		if st.cleared {
			st.mu.Unlock()
			continue
		}
		if !st.loaded {
			mappings, err := r.store.Load(ctx, scope)
			if err != nil {
				st.mu.Unlock()
				return nil, fmt.Errorf("loading scope %s: %w", scope, err)
			}
			for _, m := range mappings {
				st.add(m)
			}
			folds, err := r.store.LoadFolds(ctx, scope)
			if err != nil {
				st.mu.Unlock()
				return nil, fmt.Errorf("loading scope %s: %w", scope, err)
			}
			for _, f := range folds {
				if idx, ok := st.byAlias[f.Alias]; ok {
					st.folded[valueKey{f.EntityType, f.CanonicalValue}] = idx
				}
			}
			st.loaded = true
		}
		return st, nil
	}
}

func normalizeScope(scope string) string {
	if scope = strings.TrimSpace(scope); scope == "" {
		return DefaultScope
	}
	return scope
}

// Resolve returns the alias for value in scope, creating a mapping on first
// sighting. Repeated calls with the same canonical value return the same alias.
func (r *Registry) Resolve(ctx context.Context, scope string, t entity.Type, value string) (string, error) {
	aliases, err := r.ResolveBatch(ctx, scope, []Request{{Type: t, Value: value}})
	if err != nil {
		return "", err
	}
	return aliases[0], nil
}

// ResolveBatch resolves reqs in order under a single scope lock, so sequence
// numbers follow the order given. On error, mappings created for earlier
// requests are kept.
func (r *Registry) ResolveBatch(ctx context.Context, scope string, reqs []Request) ([]string, error) {
	scope = normalizeScope(scope)
	ctx, span := tracer.Start(ctx, "alias.resolve",
		trace.WithAttributes(
			attribute.String("masquerade.scope_id", scope),
			attribute.Int("masquerade.requests", len(reqs)),
		))
	defer span.End()

	for _, req := range reqs {
		if strings.TrimSpace(req.Value) == "" {
			return nil, ErrEmptyValue
		}
	}

	st, err := r.acquire(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	out := make([]string, 0, len(reqs))
	created := 0
	for _, req := range reqs {
		alias, isNew, err := r.resolveLocked(ctx, st, scope, req)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if isNew {
			created++
		}
		out = append(out, alias)
	}

	now := r.now()
	st.lastUsed = now
	if len(st.order) > 0 {
		if err := r.store.Touch(ctx, scope, now); err != nil {
			log.Warn().Err(err).Str("scope_id", scope).Msg("alias_scope_touch_failed")
		}
	}
	recordResolutions(ctx, len(reqs), created)
	span.SetAttributes(attribute.Int("masquerade.aliases_created", created))
	return out, nil
}

func (r *Registry) resolveLocked(ctx context.Context, st *scopeState, scope string, req Request) (string, bool, error) {
	t := req.Type
	if t == "" {
		t = entity.Custom
	}
	key := valueKey{t, entity.Canonicalize(t, req.Value)}
	st.resolutions++

	if idx, ok := st.byValue[key]; ok {
		st.reused++
		return st.order[idx].Alias, false, nil
	}
	if idx, ok := st.folded[key]; ok {
		st.reused++
		return st.order[idx].Alias, false, nil
	}
	if r.partial && (t == entity.PersonName || t == entity.CompanyName) {
		if idx, ok := st.partialMatch(key); ok {
			f := Fold{
				ScopeID:        scope,
				EntityType:     t,
				CanonicalValue: key.canonical,
				Alias:          st.order[idx].Alias,
				CreatedAt:      r.now().UTC(),
			}
			if err := r.store.InsertFold(ctx, f); err != nil {
				return "", false, fmt.Errorf("persisting fold onto %s: %w", f.Alias, err)
			}
			st.folded[key] = idx
			st.reused++
			return st.order[idx].Alias, false, nil
		}
	}

	seq := st.last[t] + 1
	m := Mapping{
		ScopeID:        scope,
		EntityType:     t,
		CanonicalValue: key.canonical,
		OriginalValue:  strings.TrimSpace(req.Value),
		Alias:          r.formatter.Format(t, seq, key.canonical),
		Sequence:       seq,
		CreatedAt:      r.now().UTC(),
	}
	if _, taken := st.byAlias[m.Alias]; taken {
		return "", false, fmt.Errorf("%w: alias %s already assigned in scope %s", ErrScopeConflict, m.Alias, scope)
	}
	if err := r.store.Insert(ctx, m); err != nil {
		return "", false, fmt.Errorf("persisting %s: %w", m.Alias, err)
	}
	st.add(m)
	return m.Alias, true, nil
}

// partialMatch finds the single mapping of key's type whose tokens contain
// key's tokens as a shorter contiguous run.
func (st *scopeState) partialMatch(key valueKey) (int, bool) {
	tokens := entity.Tokens(key.canonical)
	if len(tokens) == 0 {
		return 0, false
	}
	found := -1
	for idx, m := range st.order {
		if m.EntityType != key.t {
			continue
		}
		have := entity.Tokens(m.CanonicalValue)
		if len(have) <= len(tokens) || !containsRun(have, tokens) {
			continue
		}
		if found >= 0 {
			return 0, false
		}
		found = idx
	}
	return found, found >= 0
}

func containsRun(have, run []string) bool {
outer:
	for i := 0; i+len(run) <= len(have); i++ {
		for j := range run {
			if have[i+j] != run[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

// Lookup returns the mapping behind alias in scope, if any.
func (r *Registry) Lookup(ctx context.Context, scope, alias string) (Mapping, bool, error) {
	st, err := r.acquire(ctx, normalizeScope(scope))
	if err != nil {
		return Mapping{}, false, err
	}
	defer st.mu.Unlock()
	idx, ok := st.byAlias[alias]
	if !ok {
		return Mapping{}, false, nil
	}
	return st.order[idx], true, nil
}

// Export returns the scope's mappings in creation order.
func (r *Registry) Export(ctx context.Context, scope string) ([]Mapping, error) {
	st, err := r.acquire(ctx, normalizeScope(scope))
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()
	out := make([]Mapping, len(st.order))
	copy(out, st.order)
	return out, nil
}

// Clear irreversibly removes every mapping of scope and returns how many were removed.
func (r *Registry) Clear(ctx context.Context, scope string) (int, error) {
	_, n, err := r.exportAndClear(ctx, normalizeScope(scope), false, time.Time{})
	return n, err
}

// ExportAndClear returns the scope's mappings and removes them atomically:
// no resolution can interleave between the export and the clear.
func (r *Registry) ExportAndClear(ctx context.Context, scope string) ([]Mapping, error) {
	out, _, err := r.exportAndClear(ctx, normalizeScope(scope), true, time.Time{})
	return out, err
}

// exportAndClear removes scope under its lock. A non-zero idleBefore makes
// the clear conditional: a scope used at or after it is left alone and
// errScopeActive returned.
func (r *Registry) exportAndClear(ctx context.Context, scope string, export bool, idleBefore time.Time) ([]Mapping, int, error) {
	st, err := r.acquire(ctx, scope)
	if err != nil {
		return nil, 0, err
	}
	defer st.mu.Unlock()
	if !idleBefore.IsZero() && !st.lastUsed.Before(idleBefore) {
		return nil, 0, errScopeActive
	}

	var out []Mapping
	if export {
		out = make([]Mapping, len(st.order))
		copy(out, st.order)
	}
	n, err := r.store.Delete(ctx, scope)
	if err != nil {
		return nil, 0, fmt.Errorf("clearing scope %s: %w", scope, err)
	}
	st.cleared = true
	r.mu.Lock()
	if r.scopes[scope] == st {
		delete(r.scopes, scope)
	}
	r.mu.Unlock()

	log.Info().Str("scope_id", scope).Int("mappings", n).Msg("alias_scope_cleared")
	return out, n, nil
}

// Scopes lists persisted scopes.
func (r *Registry) Scopes(ctx context.Context) ([]ScopeInfo, error) {
	return r.store.Scopes(ctx)
}

// Stats reports mapping counts per type and resolution hits for scope.
// Resolution counters cover this process only.
func (r *Registry) Stats(ctx context.Context, scope string) (ScopeStats, error) {
	scope = normalizeScope(scope)
	st, err := r.acquire(ctx, scope)
	if err != nil {
		return ScopeStats{}, err
	}
	defer st.mu.Unlock()
	stats := ScopeStats{
		ScopeID:     scope,
		Total:       len(st.order),
		ByType:      make(map[entity.Type]int),
		Resolutions: st.resolutions,
		Reused:      st.reused,
		LastUsed:    st.lastUsed,
	}
	for _, m := range st.order {
		stats.ByType[m.EntityType]++
	}
	return stats, nil
}

// PurgeIdle clears scopes not used for longer than ttl and returns their ids.
func (r *Registry) PurgeIdle(ctx context.Context, ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		return nil, nil
	}
	infos, err := r.store.Scopes(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := r.now().Add(-ttl)
	var purged []string
	for _, info := range infos {
		if !info.LastUsed.Before(cutoff) {
			continue
		}
		_, _, err := r.exportAndClear(ctx, info.ID, false, cutoff)
		if errors.Is(err, errScopeActive) {
			continue
		}
		if err != nil {
			return purged, err
		}
		purged = append(purged, info.ID)
	}
	return purged, nil
}
