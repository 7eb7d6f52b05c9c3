// Package ids defines the collision-resistant identifiers used throughout the
// consensus core: transaction hashes and conflict tokens flow through the
// same fixed-width ID type so they can be stored, compared, and ordered
// without per-call allocation.
package ids

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// IDLen is the length in bytes of an ID.
const IDLen = 32

// ID is a 32 byte identifier, generally produced by hashing a canonical
// encoding of the thing it identifies.
type ID [IDLen]byte

// Empty is the zero-value ID.
var Empty = ID{}

// NewID wraps a raw 32 byte digest.
func NewID(b [IDLen]byte) ID { return ID(b) }

// ToID copies a byte slice into an ID. Returns an error if b is the wrong
// length.
func ToID(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLen {
		return id, errWrongLength(len(b), IDLen)
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns a copy of the ID's bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, IDLen)
	copy(b, id[:])
	return b
}

// String returns the base58 encoding of the ID, matching the textual
// representation used for peer-facing identifiers throughout this corpus.
func (id ID) String() string {
	return base58.Encode(id[:])
}

// Hex returns the lowercase hex encoding of the ID, useful for log lines
// where base58's mixed case is inconvenient.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Less orders two IDs by their big-endian byte value. Used to produce the
// deterministic iteration order the spec requires whenever IDs must be sorted
// without relying on map iteration order.
func (id ID) Less(other ID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// Compare returns -1, 0, or 1 as id is less than, equal to, or greater than
// other.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

func errWrongLength(got, want int) error {
	return fmt.Errorf("wrong id length: got %d want %d", got, want)
}
