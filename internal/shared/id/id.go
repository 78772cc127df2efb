// Package id generates and validates identifiers for sessions, connections
// and trace spans.
//
// Generated ids are prefixed ULIDs (sess_01H...), so they sort by creation
// time and show their kind in logs. Clients may also pick their own session
// ids; those are checked with ValidateClientID.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a terminal session
type SessionID string

// ConnID identifies one transport connection
type ConnID string

// TraceID identifies a trace
type TraceID string

// SpanID identifies a span within a trace
type SpanID string

const (
	SessionPrefix = "sess"
	ConnPrefix    = "conn"
	TracePrefix   = "trace"
	SpanPrefix    = "span"

	// MaxClientIDLength bounds ids chosen by clients.
	MaxClientIDLength = 128
)

var (
	ErrEmptyID       = errors.New("id is empty")
	ErrIDTooLong     = fmt.Errorf("id exceeds %d characters", MaxClientIDLength)
	ErrInvalidIDChar = errors.New("id may only contain letters, digits, '-', '_' and '.'")
)

// Generator produces monotonic ULIDs. Ids made within the same millisecond
// still sort in generation order.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator drawing randomness from entropy
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
		now:     time.Now,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// WithPrefix creates a ULID string of the form prefix_ULID
func (g *Generator) WithPrefix(prefix string) string {
	return prefix + "_" + g.Generate().String()
}

// NewSessionID generates a session id
func NewSessionID() SessionID {
	return SessionID(Default().WithPrefix(SessionPrefix))
}

// NewConnID generates a connection id
func NewConnID() ConnID {
	return ConnID(Default().WithPrefix(ConnPrefix))
}

// NewTraceID generates a trace id
func NewTraceID() TraceID {
	return TraceID(Default().WithPrefix(TracePrefix))
}

// NewSpanID generates a span id
func NewSpanID() SpanID {
	return SpanID(Default().WithPrefix(SpanPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id ConnID) String() string    { return string(id) }
func (id TraceID) String() string   { return string(id) }
func (id SpanID) String() string    { return string(id) }

// Split separates a generated id into its prefix and ULID
func Split(s string) (string, ulid.ULID, error) {
	prefix, raw, ok := strings.Cut(s, "_")
	if !ok {
		return "", ulid.ULID{}, fmt.Errorf("id %q has no prefix", s)
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id %q: %w", s, err)
	}
	return prefix, u, nil
}

// Timestamp returns the creation time encoded in a generated id
func Timestamp(s string) (time.Time, error) {
	_, u, err := Split(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

// ValidateClientID checks an id supplied by a client. Ids end up in logs,
// metrics and URLs, so only a conservative character set is accepted.
func ValidateClientID(s string) error {
	if s == "" {
		return ErrEmptyID
	}
	if len(s) > MaxClientIDLength {
		return ErrIDTooLong
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return ErrInvalidIDChar
		}
	}
	return nil
}
