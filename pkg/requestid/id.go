package requestid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EncodedSize is the length of the text form of an ID.
const EncodedSize = ulid.EncodedSize

// ErrInvalidID is returned when a string cannot be parsed as an ID.
var ErrInvalidID = errors.New("requestid: invalid id")

// ID identifies a single request. The zero value is not a valid generated ID.
type ID struct {
	ulid ulid.ULID
}

// New returns a fresh ID from the default generator.
func New() ID {
	return Default().Generate()
}

// FromULID wraps an existing ULID.
func FromULID(u ulid.ULID) ID {
	return ID{ulid: u}
}

// Parse parses the 26-character text form of an ID.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return ID{}, fmt.Errorf("%w %q: %v", ErrInvalidID, s, err)
	}
	return ID{ulid: u}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level fixtures.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the ID in its canonical 26-character form. It never fails:
// if encoding is impossible the empty string is returned.
func (id ID) String() string {
	var buf [EncodedSize]byte
	if err := id.ulid.MarshalTextTo(buf[:]); err != nil {
		return ""
	}
	return string(buf[:])
}

// ULID returns the underlying ULID value.
func (id ID) ULID() ulid.ULID {
	return id.ulid
}

// Time returns the millisecond timestamp embedded in the ID.
func (id ID) Time() time.Time {
	return ulid.Time(id.ulid.Time())
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.ulid == ulid.ULID{}
}

// Compare returns -1, 0 or +1 depending on whether id sorts before, equal to
// or after other.
func (id ID) Compare(other ID) int {
	return id.ulid.Compare(other.ulid)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Generator produces IDs. Within a single millisecond the random component
// is incremented rather than redrawn, so IDs from one generator are
// increasing except on overflow (see Generate). It is safe for concurrent use.
type Generator struct {
	mu        sync.Mutex
	entropy   io.Reader
	monotonic *ulid.MonotonicEntropy
	now       func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithEntropy sets the randomness source. Defaults to crypto/rand.
// Useful for testing with deterministic entropy.
func WithEntropy(r io.Reader) GeneratorOption {
	return func(g *Generator) {
		g.entropy = r
	}
}

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a generator backed by crypto/rand unless overridden.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		entropy: rand.Reader,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.monotonic = ulid.Monotonic(g.entropy, 0)
	return g
}

var (
	defaultGenerator *Generator
	defaultOnce      sync.Once
)

// Default returns the process-wide generator used by New.
func Default() *Generator {
	defaultOnce.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// Generate returns a new ID. If the monotonic sequence for the current
// millisecond is exhausted, fresh entropy is drawn instead; that ID keeps the
// timestamp but may sort before earlier IDs from the same millisecond.
func (g *Generator) Generate() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now())
	u, err := ulid.New(ms, g.monotonic)
	if err != nil {
		u = ulid.MustNew(ms, g.entropy)
	}
	return ID{ulid: u}
}
