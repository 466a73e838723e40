package alias

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS alias_mappings (
    scope_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    alias TEXT NOT NULL,
    value_hash TEXT NOT NULL,
    canonical_sealed BLOB NOT NULL,
    original_sealed BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (scope_id, entity_type, sequence),
    UNIQUE (scope_id, entity_type, value_hash),
    UNIQUE (scope_id, alias)
);

CREATE TABLE IF NOT EXISTS alias_folds (
    scope_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    alias TEXT NOT NULL,
    value_hash TEXT NOT NULL,
    canonical_sealed BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (scope_id, entity_type, value_hash)
);

CREATE TABLE IF NOT EXISTS alias_scopes (
    scope_id TEXT PRIMARY KEY,
    last_used TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alias_scope_created ON alias_mappings(scope_id, created_at);
`

// SQLiteStore persists mappings in SQLite. Values are sealed at rest and
// looked up through keyed hashes.
type SQLiteStore struct {
	db     *sql.DB
	sealer *Sealer
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string, sealer *Sealer) (*SQLiteStore, error) {
	if sealer == nil {
		return nil, fmt.Errorf("sqlite alias store: %w", ErrInvalidKey)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening alias database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("creating alias schema: %w", err)
	}
	return &SQLiteStore{db: db, sealer: sealer}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, scope string) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_type, sequence, alias, canonical_sealed, original_sealed, created_at
		 FROM alias_mappings WHERE scope_id = ? ORDER BY created_at, rowid`, scope)
	if err != nil {
		return nil, fmt.Errorf("loading scope %s: %w", scope, err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var (
			m                 Mapping
			canonical, origin []byte
		)
		if err := rows.Scan(&m.EntityType, &m.Sequence, &m.Alias, &canonical, &origin, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning mapping: %w", err)
		}
		if m.CanonicalValue, err = s.sealer.Open(canonical); err != nil {
			return nil, fmt.Errorf("mapping %s: %w", m.Alias, err)
		}
		if m.OriginalValue, err = s.sealer.Open(origin); err != nil {
			return nil, fmt.Errorf("mapping %s: %w", m.Alias, err)
		}
		m.ScopeID = scope
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, m Mapping) error {
	canonical, err := s.sealer.Seal(m.CanonicalValue)
	if err != nil {
		return err
	}
	origin, err := s.sealer.Seal(m.OriginalValue)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	hash := s.sealer.Index(string(m.EntityType), m.CanonicalValue)
	var folded int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alias_folds WHERE scope_id = ? AND entity_type = ? AND value_hash = ?`,
		m.ScopeID, string(m.EntityType), hash).Scan(&folded); err != nil {
		return fmt.Errorf("checking folds: %w", err)
	}
	if folded > 0 {
		return fmt.Errorf("%w: value already folded in scope %s", ErrScopeConflict, m.ScopeID)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO alias_mappings (scope_id, entity_type, sequence, alias, value_hash, canonical_sealed, original_sealed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ScopeID, string(m.EntityType), m.Sequence, m.Alias,
		hash, canonical, origin, m.CreatedAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s in scope %s", ErrScopeConflict, m.Alias, m.ScopeID)
		}
		return fmt.Errorf("inserting mapping: %w", err)
	}
	if err := touch(ctx, tx, m.ScopeID, m.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadFolds(ctx context.Context, scope string) ([]Fold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_type, alias, canonical_sealed, created_at
		 FROM alias_folds WHERE scope_id = ? ORDER BY created_at, rowid`, scope)
	if err != nil {
		return nil, fmt.Errorf("loading folds of %s: %w", scope, err)
	}
	defer rows.Close()

	var out []Fold
	for rows.Next() {
		var (
			f         Fold
			canonical []byte
		)
		if err := rows.Scan(&f.EntityType, &f.Alias, &canonical, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning fold: %w", err)
		}
		if f.CanonicalValue, err = s.sealer.Open(canonical); err != nil {
			return nil, fmt.Errorf("fold onto %s: %w", f.Alias, err)
		}
		f.ScopeID = scope
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertFold(ctx context.Context, f Fold) error {
	canonical, err := s.sealer.Seal(f.CanonicalValue)
	if err != nil {
		return err
	}
	hash := s.sealer.Index(string(f.EntityType), f.CanonicalValue)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning fold insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var target, shadow int
	err = tx.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM alias_mappings WHERE scope_id = ? AND alias = ?),
		   (SELECT COUNT(*) FROM alias_mappings WHERE scope_id = ? AND entity_type = ? AND value_hash = ?)`,
		f.ScopeID, f.Alias, f.ScopeID, string(f.EntityType), hash).Scan(&target, &shadow)
	if err != nil {
		return fmt.Errorf("checking fold: %w", err)
	}
	if target == 0 || shadow > 0 {
		return fmt.Errorf("%w: fold onto %s in scope %s", ErrScopeConflict, f.Alias, f.ScopeID)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO alias_folds (scope_id, entity_type, alias, value_hash, canonical_sealed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ScopeID, string(f.EntityType), f.Alias, hash, canonical, f.CreatedAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: fold onto %s in scope %s", ErrScopeConflict, f.Alias, f.ScopeID)
		}
		return fmt.Errorf("inserting fold: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, scope string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM alias_mappings WHERE scope_id = ?`, scope)
	if err != nil {
		return 0, fmt.Errorf("deleting scope %s: %w", scope, err)
	}
	for _, q := range []string{
		`DELETE FROM alias_folds WHERE scope_id = ?`,
		`DELETE FROM alias_scopes WHERE scope_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, scope); err != nil {
			return 0, fmt.Errorf("deleting scope %s: %w", scope, err)
		}
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

func (s *SQLiteStore) Scopes(ctx context.Context) ([]ScopeInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.scope_id, s.last_used, COUNT(m.alias)
		 FROM alias_scopes s LEFT JOIN alias_mappings m ON m.scope_id = s.scope_id
		 GROUP BY s.scope_id, s.last_used ORDER BY s.scope_id`)
	if err != nil {
		return nil, fmt.Errorf("listing scopes: %w", err)
	}
	defer rows.Close()

	var out []ScopeInfo
	for rows.Next() {
		var info ScopeInfo
		if err := rows.Scan(&info.ID, &info.LastUsed, &info.Mappings); err != nil {
			return nil, fmt.Errorf("scanning scope: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Touch(ctx context.Context, scope string, at time.Time) error {
	return touch(ctx, s.db, scope, at)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func touch(ctx context.Context, db execer, scope string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO alias_scopes (scope_id, last_used) VALUES (?, ?)
		 ON CONFLICT(scope_id) DO UPDATE SET last_used = MAX(last_used, excluded.last_used)`,
		scope, at.UTC())
	if err != nil {
		return fmt.Errorf("touching scope %s: %w", scope, err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
