package id

import (
	"bytes"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator(rand.Reader)
	assert.NotEqual(t, gen.Generate(), gen.Generate())
}

func TestGenerateMonotonicWithinMillisecond(t *testing.T) {
	gen := NewGenerator(rand.Reader)
	fixed := time.Unix(1_700_000_000, 0)
	gen.now = func() time.Time { return fixed }

	prev := gen.Generate().String()
	for i := 0; i < 100; i++ {
		next := gen.Generate().String()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestDeterministicEntropy(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0)
	a := NewGenerator(bytes.NewReader(make([]byte, 64)))
	b := NewGenerator(bytes.NewReader(make([]byte, 64)))
	a.now = func() time.Time { return fixed }
	b.now = func() time.Time { return fixed }

	assert.Equal(t, a.Generate(), b.Generate())
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"session", NewSessionID().String(), SessionPrefix},
		{"connection", NewConnID().String(), ConnPrefix},
		{"trace", NewTraceID().String(), TracePrefix},
		{"span", NewSpanID().String(), SpanPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.id, tt.prefix+"_"))

			prefix, u, err := Split(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)
			assert.Len(t, u.String(), 26)
		})
	}
}

func TestSplitRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "sess", "sess_", "sess_notaulid", "01HZZZZZZZZZZZZZZZZZZZZZZZ"} {
		_, _, err := Split(s)
		assert.Error(t, err, s)
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	sid := NewSessionID()
	after := time.Now()

	ts, err := Timestamp(sid.String())
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
}

func TestValidateClientID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		err  error
	}{
		{"generated", NewSessionID().String(), nil},
		{"plain", "my-term.1", nil},
		{"empty", "", ErrEmptyID},
		{"too long", strings.Repeat("a", MaxClientIDLength+1), ErrIDTooLong},
		{"max length", strings.Repeat("a", MaxClientIDLength), nil},
		{"slash", "a/b", ErrInvalidIDChar},
		{"space", "a b", ErrInvalidIDChar},
		{"unicode", "tërm", ErrInvalidIDChar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClientID(tt.id)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator(rand.Reader)

	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	ids := make(chan string, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ids <- gen.WithPrefix(SessionPrefix)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for s := range ids {
		require.False(t, seen[s], "duplicate id %s", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func BenchmarkNewSessionID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewSessionID()
	}
}
