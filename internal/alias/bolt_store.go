package alias

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dativo-io/masquerade/internal/entity"
)

const boltScopesBucket = "alias_scopes"

// Per-scope sub-buckets.
var (
	boltMappings = []byte("mappings") // creation order -> record
	boltSeqs     = []byte("seq")      // type/sequence -> nil
	boltHashes   = []byte("hash")     // value hash -> alias
	boltAliases  = []byte("alias")    // alias -> nil
	boltFolds    = []byte("fold")     // value hash -> foldRecord
	boltLastUsed = []byte("last_used")
)

type boltRecord struct {
	Type      string    `json:"t"`
	Sequence  int       `json:"n"`
	Alias     string    `json:"a"`
	Canonical []byte    `json:"c"`
	Original  []byte    `json:"o"`
	CreatedAt time.Time `json:"at"`
}

type foldRecord struct {
	Type      string    `json:"t"`
	Alias     string    `json:"a"`
	Canonical []byte    `json:"c"`
	CreatedAt time.Time `json:"at"`
}

// BoltStore persists mappings in an embedded bbolt file, one sub-bucket per scope.
type BoltStore struct {
	db     *bolt.DB
	sealer *Sealer
}

// NewBoltStore opens (or creates) the bbolt database at path.
func NewBoltStore(path string, sealer *Sealer) (*BoltStore, error) {
	if sealer == nil {
		return nil, fmt.Errorf("bolt alias store: %w", ErrInvalidKey)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt alias store %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltScopesBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create bbolt bucket: %w", err)
	}
	return &BoltStore{db: db, sealer: sealer}, nil
}

func (s *BoltStore) Load(_ context.Context, scope string) ([]Mapping, error) {
	var out []Mapping
	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket([]byte(boltScopesBucket)).Bucket([]byte(scope))
		if sb == nil {
			return nil
		}
		return sb.Bucket(boltMappings).ForEach(func(_, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding mapping: %w", err)
			}
			m := Mapping{
				ScopeID:    scope,
				EntityType: entity.Type(rec.Type),
				Alias:      rec.Alias,
				Sequence:   rec.Sequence,
				CreatedAt:  rec.CreatedAt,
			}
			var err error
			if m.CanonicalValue, err = s.sealer.Open(rec.Canonical); err != nil {
				return fmt.Errorf("mapping %s: %w", rec.Alias, err)
			}
			if m.OriginalValue, err = s.sealer.Open(rec.Original); err != nil {
				return fmt.Errorf("mapping %s: %w", rec.Alias, err)
			}
			out = append(out, m)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) Insert(_ context.Context, m Mapping) error {
	canonical, err := s.sealer.Seal(m.CanonicalValue)
	if err != nil {
		return err
	}
	origin, err := s.sealer.Seal(m.OriginalValue)
	if err != nil {
		return err
	}
	rec, err := json.Marshal(boltRecord{
		Type:      string(m.EntityType),
		Sequence:  m.Sequence,
		Alias:     m.Alias,
		Canonical: canonical,
		Original:  origin,
		CreatedAt: m.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding mapping: %w", err)
	}
	seqKey := []byte(fmt.Sprintf("%s/%010d", m.EntityType, m.Sequence))
	hashKey := []byte(s.sealer.Index(string(m.EntityType), m.CanonicalValue))

	return s.db.Update(func(tx *bolt.Tx) error {
		sb, err := scopeBucket(tx, m.ScopeID)
		if err != nil {
			return err
		}
		seqs, hashes, aliases := sb.Bucket(boltSeqs), sb.Bucket(boltHashes), sb.Bucket(boltAliases)
		if seqs.Get(seqKey) != nil || hashes.Get(hashKey) != nil || aliases.Get([]byte(m.Alias)) != nil {
			return fmt.Errorf("%w: %s in scope %s", ErrScopeConflict, m.Alias, m.ScopeID)
		}
		mappings := sb.Bucket(boltMappings)
		id, err := mappings.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		for _, put := range []func() error{
			func() error { return mappings.Put(key, rec) },
			func() error { return seqs.Put(seqKey, []byte{1}) },
			func() error { return hashes.Put(hashKey, []byte(m.Alias)) },
			func() error { return aliases.Put([]byte(m.Alias), []byte{1}) },
		} {
			if err := put(); err != nil {
				return err
			}
		}
		return putLastUsed(sb, m.CreatedAt)
	})
}

func (s *BoltStore) LoadFolds(_ context.Context, scope string) ([]Fold, error) {
	var out []Fold
	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket([]byte(boltScopesBucket)).Bucket([]byte(scope))
		if sb == nil || sb.Bucket(boltFolds) == nil {
			return nil
		}
		return sb.Bucket(boltFolds).ForEach(func(_, v []byte) error {
			var rec foldRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding fold: %w", err)
			}
			canonical, err := s.sealer.Open(rec.Canonical)
			if err != nil {
				return fmt.Errorf("fold onto %s: %w", rec.Alias, err)
			}
			out = append(out, Fold{
				ScopeID:        scope,
				EntityType:     entity.Type(rec.Type),
				CanonicalValue: canonical,
				Alias:          rec.Alias,
				CreatedAt:      rec.CreatedAt,
			})
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (s *BoltStore) InsertFold(_ context.Context, f Fold) error {
	canonical, err := s.sealer.Seal(f.CanonicalValue)
	if err != nil {
		return err
	}
	rec, err := json.Marshal(foldRecord{
		Type:      string(f.EntityType),
		Alias:     f.Alias,
		Canonical: canonical,
		CreatedAt: f.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding fold: %w", err)
	}
	hashKey := []byte(s.sealer.Index(string(f.EntityType), f.CanonicalValue))

	return s.db.Update(func(tx *bolt.Tx) error {
		sb, err := scopeBucket(tx, f.ScopeID)
		if err != nil {
			return err
		}
		hashes := sb.Bucket(boltHashes)
		if sb.Bucket(boltAliases).Get([]byte(f.Alias)) == nil || hashes.Get(hashKey) != nil {
			return fmt.Errorf("%w: fold onto %s in scope %s", ErrScopeConflict, f.Alias, f.ScopeID)
		}
		if err := hashes.Put(hashKey, []byte(f.Alias)); err != nil {
			return err
		}
		return sb.Bucket(boltFolds).Put(hashKey, rec)
	})
}

func scopeBucket(tx *bolt.Tx, scope string) (*bolt.Bucket, error) {
	sb, err := tx.Bucket([]byte(boltScopesBucket)).CreateBucketIfNotExists([]byte(scope))
	if err != nil {
		return nil, fmt.Errorf("create scope bucket: %w", err)
	}
	for _, name := range [][]byte{boltMappings, boltSeqs, boltHashes, boltAliases, boltFolds} {
		if _, err := sb.CreateBucketIfNotExists(name); err != nil {
			return nil, fmt.Errorf("create scope bucket: %w", err)
		}
	}
	return sb, nil
}

func putLastUsed(sb *bolt.Bucket, at time.Time) error {
	if prev := sb.Get(boltLastUsed); prev != nil {
		var t time.Time
		if err := t.UnmarshalBinary(prev); err == nil && !at.After(t) {
			return nil
		}
	}
	b, err := at.UTC().MarshalBinary()
	if err != nil {
		return err
	}
	return sb.Put(boltLastUsed, b)
}

func (s *BoltStore) Delete(_ context.Context, scope string) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(boltScopesBucket))
		sb := root.Bucket([]byte(scope))
		if sb == nil {
			return nil
		}
		n = sb.Bucket(boltMappings).Stats().KeyN
		return root.DeleteBucket([]byte(scope))
	})
	return n, err
}

func (s *BoltStore) Scopes(_ context.Context) ([]ScopeInfo, error) {
	var out []ScopeInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(boltScopesBucket))
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			sb := root.Bucket(k)
			info := ScopeInfo{ID: string(k), Mappings: sb.Bucket(boltMappings).Stats().KeyN}
			if raw := sb.Get(boltLastUsed); raw != nil {
				_ = info.LastUsed.UnmarshalBinary(raw)
			}
			out = append(out, info)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *BoltStore) Touch(_ context.Context, scope string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket([]byte(boltScopesBucket)).Bucket([]byte(scope))
		if sb == nil {
			return nil
		}
		return putLastUsed(sb, at)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
