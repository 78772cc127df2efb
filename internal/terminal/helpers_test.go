package terminal

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errChannelClosed = errors.New("channel closed")

// fakeChannel is an in-memory Channel. Tests push inbound frames with
// deliver and inspect what the bridge sent.
type fakeChannel struct {
	in     chan []byte
	closed chan struct{}

	mu          sync.Mutex
	sent        [][]byte
	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeChannel) Send(p []byte) error {
	select {
	case <-c.closed:
		return errChannelClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, append([]byte(nil), p...))
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Receive() ([]byte, error) {
	select {
	case p := <-c.in:
		return p, nil
	case <-c.closed:
		return nil, errChannelClosed
	}
}

func (c *fakeChannel) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.closeReason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeChannel) deliver(s string) {
	c.in <- []byte(s)
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeChannel) closeInfo() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

// frames decodes every JSON frame sent so far.
func (c *fakeChannel) frames() []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(c.sent))
	for _, p := range c.sent {
		var m map[string]interface{}
		if err := sonic.Unmarshal(p, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// output joins the data of every output frame, or the raw bytes in raw mode.
func (c *fakeChannel) output(raw bool) string {
	if raw {
		c.mu.Lock()
		defer c.mu.Unlock()
		var b strings.Builder
		for _, p := range c.sent {
			b.Write(p)
		}
		return b.String()
	}

	var b strings.Builder
	for _, f := range c.frames() {
		if f["type"] == "output" {
			b.WriteString(f["data"].(string))
		}
	}
	return b.String()
}

func (c *fakeChannel) framesOfType(t string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, f := range c.frames() {
		if f["type"] == t {
			out = append(out, f)
		}
	}
	return out
}

// testConfig uses a fast poll and short grace periods with the heartbeat
// watchdog disabled.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Shell = "/bin/sh"
	cfg.PollInterval = 10 * time.Millisecond
	cfg.KillGrace = 300 * time.Millisecond
	cfg.HeartbeatTimeout = 0
	cfg.HeartbeatInterval = 0
	cfg.InputRateLimit = 0
	return cfg
}

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	r := NewRegistry(cfg, zap.NewNop())
	t.Cleanup(func() {
		for _, info := range r.List() {
			_ = r.Close(info.ID)
		}
	})
	return r
}

// serve runs Registry.Serve in the background and waits for the session to
// be registered.
func serve(t *testing.T, r *Registry, id string) (*fakeChannel, <-chan error) {
	t.Helper()
	ch := newFakeChannel()
	errc := make(chan error, 1)
	go func() {
		errc <- r.Serve(t.Context(), id, ch)
	}()
	require.Eventually(t, func() bool {
		s, ok := r.Get(id)
		return ok && s.State() == StateRunning
	}, 5*time.Second, 5*time.Millisecond)
	return ch, errc
}

func waitOutput(t *testing.T, ch *fakeChannel, raw bool, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(ch.output(raw), want)
	}, 5*time.Second, 10*time.Millisecond, "output never contained %q; got %q", want, ch.output(raw))
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not close", s.ID())
	}
}

func discard([]byte) error { return nil }

// fakeClock drives HeartbeatMonitor without sleeping.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// Advance moves time forward and fires every live ticker once.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

type fakeTicker struct {
	mu      sync.Mutex
	c       chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.c <- now:
	default:
	}
}
