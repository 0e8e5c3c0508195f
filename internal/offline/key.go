package offline

import (
	"encoding/hex"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// keySize contains the size of a Key, in bytes.
const keySize = sha256.Size

// Key is the storage key of a request identity.
type Key [keySize]byte

// KeyFor returns the key for req. Fragments never take part in the identity.
func KeyFor(req *Request) Key {
	return sha256.Sum256([]byte(req.String()))
}

// ParseKey converts the given string to a Key.
func ParseKey(s string) (Key, error) {
	if len(s) != hex.EncodedLen(keySize) {
		return Key{}, errors.Errorf("invalid length for key: %q", s)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, errors.Wrap(err, "invalid key")
	}

	k := Key{}
	copy(k[:], b)

	return k, nil
}

const shortStr = 4

// Str returns the shortened string version of k.
func (k Key) Str() string {
	return hex.EncodeToString(k[:shortStr])
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// KeySet is a set of keys.
type KeySet map[Key]struct{}

// NewKeySet returns a new KeySet, populated with keys.
func NewKeySet(keys ...Key) KeySet {
	m := make(KeySet)
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// Has returns true iff k is contained in the set.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Insert adds k to the set.
func (s KeySet) Insert(k Key) {
	s[k] = struct{}{}
}
