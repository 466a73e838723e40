package alias

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/masquerade/internal/entity"
)

const testKey = "0123456789abcdef0123456789abcdef"

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(testKey)
	require.NoError(t, err)
	return s
}

type storeFactory func(t *testing.T, dir string) Store

func storeBackends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, _ string) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T, dir string) Store {
			s, err := NewSQLiteStore(filepath.Join(dir, "aliases.db"), testSealer(t))
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T, dir string) Store {
			s, err := NewBoltStore(filepath.Join(dir, "aliases.bolt"), testSealer(t))
			require.NoError(t, err)
			return s
		},
	}
}

func mapping(scope string, t entity.Type, seq int, value string, at time.Time) Mapping {
	return Mapping{
		ScopeID:        scope,
		EntityType:     t,
		CanonicalValue: value,
		OriginalValue:  value,
		Alias:          Formatter{}.Format(t, seq, value),
		Sequence:       seq,
		CreatedAt:      at,
	}
}

func TestStores_Contract(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, t.TempDir())
			defer s.Close()

			require.NoError(t, s.Insert(ctx, mapping("s", entity.Email, 1, "a@x.io", at)))
			require.NoError(t, s.Insert(ctx, mapping("s", entity.Phone, 1, "5550001111", at.Add(time.Second))))
			require.NoError(t, s.Insert(ctx, mapping("s", entity.Email, 2, "b@x.io", at.Add(2*time.Second))))
			require.NoError(t, s.Insert(ctx, mapping("other", entity.Email, 1, "a@x.io", at)))

			got, err := s.Load(ctx, "s")
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "[EMAIL_1]", got[0].Alias)
			assert.Equal(t, "[PHONE_1]", got[1].Alias)
			assert.Equal(t, "b@x.io", got[2].CanonicalValue)
			assert.Equal(t, "s", got[2].ScopeID)
			assert.True(t, got[0].CreatedAt.Equal(at))

			t.Run("duplicate sequence", func(t *testing.T) {
				err := s.Insert(ctx, mapping("s", entity.Email, 1, "c@x.io", at))
				assert.ErrorIs(t, err, ErrScopeConflict)
			})
			t.Run("duplicate value", func(t *testing.T) {
				err := s.Insert(ctx, mapping("s", entity.Email, 3, "a@x.io", at))
				assert.ErrorIs(t, err, ErrScopeConflict)
			})

			scopes, err := s.Scopes(ctx)
			require.NoError(t, err)
			require.Len(t, scopes, 2)
			assert.Equal(t, "other", scopes[0].ID)
			assert.Equal(t, 3, scopes[1].Mappings)

			later := at.Add(time.Hour)
			require.NoError(t, s.Touch(ctx, "s", later))
			scopes, err = s.Scopes(ctx)
			require.NoError(t, err)
			assert.True(t, scopes[1].LastUsed.Equal(later), "last used %v", scopes[1].LastUsed)

			n, err := s.Delete(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			got, err = s.Load(ctx, "s")
			require.NoError(t, err)
			assert.Empty(t, got)

			n, err = s.Delete(ctx, "missing")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRegistry_ReloadsFromDurableStore(t *testing.T) {
	for _, name := range []string{"sqlite", "bolt"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			factory := storeBackends()[name]

			first, err := NewRegistry(WithStore(factory(t, dir)))
			require.NoError(t, err)
			a, err := first.Resolve(ctx, "s", entity.Email, "a@x.io")
			require.NoError(t, err)
			require.NoError(t, first.Close())

			second, err := NewRegistry(WithStore(factory(t, dir)))
			require.NoError(t, err)
			defer second.Close()

			again, err := second.Resolve(ctx, "s", entity.Email, "a@x.io")
			require.NoError(t, err)
			assert.Equal(t, a, again)
			next, err := second.Resolve(ctx, "s", entity.Email, "b@x.io")
			require.NoError(t, err)
			assert.Equal(t, "[EMAIL_2]", next)
		})
	}
}

func TestStores_Folds(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, t.TempDir())
			defer s.Close()

			require.NoError(t, s.Insert(ctx, mapping("s", entity.PersonName, 1, "jane doe", at)))
			fold := Fold{ScopeID: "s", EntityType: entity.PersonName, CanonicalValue: "doe", Alias: "[PERSON_1]", CreatedAt: at}
			require.NoError(t, s.InsertFold(ctx, fold))

			folds, err := s.LoadFolds(ctx, "s")
			require.NoError(t, err)
			require.Len(t, folds, 1)
			assert.Equal(t, "doe", folds[0].CanonicalValue)
			assert.Equal(t, "[PERSON_1]", folds[0].Alias)
			assert.Equal(t, "s", folds[0].ScopeID)

			assert.ErrorIs(t, s.InsertFold(ctx, fold), ErrScopeConflict, "fold value taken")
			unknown := fold
			unknown.CanonicalValue, unknown.Alias = "roe", "[PERSON_9]"
			assert.ErrorIs(t, s.InsertFold(ctx, unknown), ErrScopeConflict, "alias not in scope")
			shadow := fold
			shadow.CanonicalValue = "jane doe"
			assert.ErrorIs(t, s.InsertFold(ctx, shadow), ErrScopeConflict, "value already mapped")
			assert.ErrorIs(t, s.Insert(ctx, mapping("s", entity.PersonName, 2, "doe", at)), ErrScopeConflict,
				"folded value cannot become a mapping")

			n, err := s.Delete(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			folds, err = s.LoadFolds(ctx, "s")
			require.NoError(t, err)
			assert.Empty(t, folds)
		})
	}
}

func TestRegistry_PartialMentionStableAcrossReload(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			store := factory(t, dir)
			reopen := func() Store {
				if name == "memory" {
					return store
				}
				return factory(t, dir)
			}

			first, err := NewRegistry(WithStore(store), WithPartialMentions(true))
			require.NoError(t, err)
			full, err := first.Resolve(ctx, "s", entity.PersonName, "Jane Doe")
			require.NoError(t, err)
			short, err := first.Resolve(ctx, "s", entity.PersonName, "Doe")
			require.NoError(t, err)
			assert.Equal(t, full, short)
			other, err := first.Resolve(ctx, "s", entity.PersonName, "John Doe")
			require.NoError(t, err)
			assert.Equal(t, "[PERSON_2]", other)
			require.NoError(t, first.Close())

			second, err := NewRegistry(WithStore(reopen()), WithPartialMentions(true))
			require.NoError(t, err)
			defer second.Close()

			again, err := second.Resolve(ctx, "s", entity.PersonName, "doe")
			require.NoError(t, err)
			assert.Equal(t, full, again, "folded mention keeps its alias after reload")

			ex, err := second.Export(ctx, "s")
			require.NoError(t, err)
			assert.Len(t, ex, 2, "folds are not mappings")
		})
	}
}

func TestSQLiteStore_SealsValuesAtRest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aliases.db")
	s, err := NewSQLiteStore(path, testSealer(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Insert(ctx, mapping("s", entity.Email, 1, "secret@x.io", time.Now())))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var hash string
	var canonical, original []byte
	require.NoError(t, db.QueryRow(
		`SELECT value_hash, canonical_sealed, original_sealed FROM alias_mappings`).Scan(&hash, &canonical, &original))
	assert.NotContains(t, hash, "secret")
	assert.False(t, strings.Contains(string(canonical), "secret@x.io"))
	assert.False(t, strings.Contains(string(original), "secret@x.io"))
}

func TestDurableStores_RequireSealer(t *testing.T) {
	dir := t.TempDir()
	_, err := NewSQLiteStore(filepath.Join(dir, "a.db"), nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = NewBoltStore(filepath.Join(dir, "a.bolt"), nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open("", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open("sqlite", filepath.Join(dir, "a.db"), testSealer(t))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", "", nil)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "redis", be.Backend)
}
