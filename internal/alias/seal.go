package alias

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/dativo-io/masquerade/internal/cryptoutil"
)

// ErrInvalidKey is returned for store keys that are not 32 bytes or 64 hex characters.
var ErrInvalidKey = errors.New("invalid store key")

var errOpen = errors.New("decrypting sealed value")

// Sealer encrypts stored values and derives lookup hashes. Durable stores keep
// only sealed values and keyed hashes, never plaintext.
type Sealer struct {
	sealKey  [32]byte
	indexKey []byte
}

// NewSealer derives sealing and indexing keys from a 32-byte master key given
// as raw bytes or 64 hex characters.
func NewSealer(key string) (*Sealer, error) {
	master, err := resolveKey(key)
	if err != nil {
		return nil, err
	}
	s := &Sealer{indexKey: make([]byte, 32)}
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte("masquerade alias seal")), s.sealKey[:]); err != nil {
		return nil, fmt.Errorf("deriving seal key: %w", err)
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte("masquerade alias index")), s.indexKey); err != nil {
		return nil, fmt.Errorf("deriving index key: %w", err)
	}
	return s, nil
}

func resolveKey(key string) ([]byte, error) {
	master, err := cryptoutil.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("store key: %w: %w", ErrInvalidKey, err)
	}
	return master, nil
}

// Seal encrypts plaintext as nonce||box.
func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.sealKey), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < 24+secretbox.Overhead {
		return "", errOpen
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	out, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.sealKey)
	if !ok {
		return "", errOpen
	}
	return string(out), nil
}

// Index returns the keyed hash identifying (type, canonical) in a scope.
func (s *Sealer) Index(entityType, canonical string) string {
	mac := hmac.New(sha256.New, s.indexKey)
	mac.Write([]byte(entityType))
	mac.Write([]byte{0})
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
