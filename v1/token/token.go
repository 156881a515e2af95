package token

import (
	"fmt"

	"github.com/google/uuid"
)

// Size is the byte length of a token and therefore of a lock segment.
const Size = 16

// Token is the opaque identity of one lock handle. The zero value is the
// all-zero token, which marks a segment that was created but never stamped.
// Tokens are comparable and usable as map keys.
type Token struct {
	id uuid.UUID
}

// New returns a fresh random token. Collision probability is negligible.
func New() Token {
	return Token{id: uuid.New()}
}

// FromString parses the textual form produced by String.
func FromString(s string) (Token, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Token{}, fmt.Errorf("token: malformed text representation %q: %w", s, err)
	}
	return Token{id: id}, nil
}

// FromBytes builds a token from its 16-byte wire form, typically read back
// from a segment.
func FromBytes(b []byte) (Token, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return Token{}, fmt.Errorf("token: malformed byte representation: %w", err)
	}
	return Token{id: id}, nil
}

// String returns the reversible textual representation.
func (t Token) String() string {
	return t.id.String()
}

// Bytes returns the 16-byte wire form written into a held segment.
func (t Token) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, t.id[:])
	return b
}

// Equal reports whether two tokens carry the same identity.
func (t Token) Equal(o Token) bool {
	return t.id == o.id
}

// IsZero reports whether t is the all-zero token, the state of a segment
// between creation and ownership stamping.
func (t Token) IsZero() bool {
	return t.id == uuid.UUID{}
}
