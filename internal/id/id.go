// Package id provides the identifier used across the core: a 128-bit
// time-ordered unique ID (sortable, so insertion order falls out of sort
// order), rendered as 26-character Crockford base-32. Actor ids are values
// of this same type.
package id

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// ID is a lexicographically sortable 128-bit identifier. The zero value is
// the None sentinel (all-zero bits), not a valid generated ID.
type ID ulid.ULID

// None is the all-zero sentinel ID. AttributeReadContext::any and similar
// wildcard matches compare against this value.
var None ID

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New generates a new ID for the current instant, monotonic within this
// process: IDs generated in the same millisecond still sort in call order.
func New() ID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	u, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		// entropy source exhausted; fall back to a fresh non-monotonic read
		u = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	}
	return ID(u)
}

// Parse decodes a 26-character Crockford base-32 string into an ID.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return ID{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID(u), nil
}

// MustParse is Parse but panics on error; intended for constants in tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the ID as its 26-character Crockford base-32 form.
func (i ID) String() string {
	return ulid.ULID(i).String()
}

// IsNone reports whether this is the all-zero sentinel.
func (i ID) IsNone() bool {
	return i == None
}

// Time returns the generation timestamp encoded in the ID's leading bits.
func (i ID) Time() time.Time {
	return ulid.Time(ulid.ULID(i).Time())
}

// Compare orders two IDs; since IDs are time-ordered this also orders by
// creation time, oldest first.
func Compare(a, b ID) int {
	return ulid.ULID(a).Compare(ulid.ULID(b))
}

// Less reports whether a sorts before b. Convenience for sort.Slice.
func Less(a, b ID) bool {
	return Compare(a, b) < 0
}

// MarshalText implements encoding.TextMarshaler so IDs round-trip through
// JSON as their base-32 string form.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
