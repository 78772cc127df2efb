package terminal

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so liveness policy can be driven by tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the monitor uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.t.C }
func (t systemTicker) Stop()               { t.t.Stop() }

// HeartbeatMonitor tracks the last liveness signal from the remote end and
// reports when it has gone quiet for longer than Timeout. A zero Timeout
// disables the check.
type HeartbeatMonitor struct {
	Interval time.Duration
	Timeout  time.Duration

	clock Clock
	mu    sync.Mutex
	last  time.Time
}

// NewHeartbeatMonitor creates a monitor whose clock starts now.
func NewHeartbeatMonitor(interval, timeout time.Duration, clock Clock) *HeartbeatMonitor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &HeartbeatMonitor{
		Interval: interval,
		Timeout:  timeout,
		clock:    clock,
		last:     clock.Now(),
	}
}

// Touch records a heartbeat.
func (m *HeartbeatMonitor) Touch() {
	now := m.clock.Now()
	m.mu.Lock()
	m.last = now
	m.mu.Unlock()
}

// Last returns the time of the most recent heartbeat.
func (m *HeartbeatMonitor) Last() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Check returns ErrHeartbeatTimeout if now is more than Timeout past the last
// heartbeat.
func (m *HeartbeatMonitor) Check(now time.Time) error {
	if m.Timeout <= 0 {
		return nil
	}
	if now.Sub(m.Last()) > m.Timeout {
		return ErrHeartbeatTimeout
	}
	return nil
}

// Run checks liveness every Interval until ctx is done or a breach is found,
// in which case onTimeout is called once before returning.
func (m *HeartbeatMonitor) Run(ctx context.Context, onTimeout func(error)) {
	if m.Timeout <= 0 || m.Interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := m.clock.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := m.Check(m.clock.Now()); err != nil {
				onTimeout(err)
				return
			}
		}
	}
}
