// Package id provides strongly-typed, time-sortable identifiers for every
// control-plane entity. Identifiers are ULIDs (Universally Unique
// Lexicographically Sortable Identifiers) rendered as "<prefix>_<26-char
// base32>"; the prefix is stable per entity kind and display always
// includes it. Equality and hashing follow the raw ULID value.
package id

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a prefixed, time-sortable identifier for one entity kind.
type ID struct {
	prefix string
	ulid   ulid.ULID
}

// New creates a new ID for the given prefix, seeded from the current UTC
// time and a crypto-random entropy source.
func New(prefix string) ID {
	return ID{prefix: prefix, ulid: ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader)}
}

// FromULID wraps an existing ULID under the given prefix.
func FromULID(prefix string, u ulid.ULID) ID {
	return ID{prefix: prefix, ulid: u}
}

// Parse parses s as an ID of the given prefix, accepting both the prefixed
// ("run_01H...") and bare ("01H...") forms. Parsing fails with
// ErrInvalidFormat if the ULID portion is malformed or the prefix does not
// match.
func Parse(prefix, s string) (ID, error) {
	rest := strings.TrimPrefix(s, prefix)
	rest = strings.TrimPrefix(rest, "_")
	u, err := ulid.ParseStrict(rest)
	if err != nil {
		return ID{}, ErrInvalidFormat
	}
	return ID{prefix: prefix, ulid: u}, nil
}

// ULID returns the wrapped ULID value.
func (id ID) ULID() ulid.ULID { return id.ulid }

// Timestamp returns the millisecond UTC timestamp encoded in the ID.
func (id ID) Timestamp() uint64 { return id.ulid.Time() }

// String renders the ID as "<prefix>_<ulid>". It is always equal to
// ToPrefixedString.
func (id ID) String() string { return id.prefix + "_" + id.ulid.String() }

// ToPrefixedString renders the ID as "<prefix>_<ulid>".
func (id ID) ToPrefixedString() string { return id.String() }

// IsZero reports whether the ID is the zero value (never generated or
// parsed).
func (id ID) IsZero() bool { return id.ulid == (ulid.ULID{}) }

// Before reports whether id was generated strictly earlier than other,
// using the underlying ULID's total order (timestamp, then entropy).
func (id ID) Before(other ID) bool { return id.ulid.Compare(other.ulid) < 0 }

// MarshalText implements encoding.TextMarshaler so IDs serialize as plain
// prefixed strings in JSON.
func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// ErrInvalidFormat is returned by Parse when the input is not a valid ULID.
var ErrInvalidFormat = fmt.Errorf("id: invalid format")
