package terminal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/termbridge/internal/infrastructure/monitoring"
)

const maxDimension = 65535

// Output receives pty output in the order the shell produced it. An error
// ends the session.
type Output func(p []byte) error

// SessionInfo is the public representation of a session
type SessionInfo struct {
	ID            string    `json:"id"`
	Shell         string    `json:"shell"`
	Rows          int       `json:"rows"`
	Cols          int       `json:"cols"`
	State         State     `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Session owns one shell process and the master side of its pty. All access
// to the descriptor and the child goes through its methods.
type Session struct {
	id        string
	shell     string
	proc      *Process
	output    Output
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	onClosed  func(*Session)
	startedAt time.Time

	pollInterval time.Duration
	readSize     int
	killGrace    time.Duration

	heartbeat     *HeartbeatMonitor
	hbCtx         context.Context
	stopHeartbeat context.CancelFunc

	state   atomic.Int32
	closing atomic.Bool
	writeMu sync.Mutex
	rows    atomic.Int32
	cols    atomic.Int32

	pumpDone  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	reasonMu  sync.Mutex
	reason    error
}

func newSession(id string, proc *Process, spec LaunchSpec, cfg Config, output Output, logger *zap.Logger, metrics *monitoring.Metrics, onClosed func(*Session)) *Session {
	s := &Session{
		id:           id,
		shell:        spec.Shell,
		proc:         proc,
		output:       output,
		logger:       logger.With(zap.String("session_id", id)),
		metrics:      metrics,
		onClosed:     onClosed,
		startedAt:    time.Now(),
		pollInterval: cfg.PollInterval,
		readSize:     cfg.ReadBufferSize,
		killGrace:    cfg.KillGrace,
		heartbeat:    NewHeartbeatMonitor(cfg.HeartbeatInterval, cfg.HeartbeatTimeout, cfg.Clock),
		pumpDone:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	// The watchdog's cancel func exists before anything can close the session.
	s.hbCtx, s.stopHeartbeat = context.WithCancel(context.Background())
	s.state.Store(int32(StateCreated))
	s.rows.Store(int32(spec.Rows))
	s.cols.Store(int32(spec.Cols))
	return s
}

// start moves the session to Running and launches the pump, the heartbeat
// watchdog and the exit watcher. It fails if the session was closed first.
func (s *Session) start() error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrNotRunning
	}

	go s.runPump()
	go s.heartbeat.Run(s.hbCtx, s.shutdown)
	go s.watchExit()

	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	s.logger.Info("Terminal session started",
		zap.String("shell", s.shell),
		zap.Int("pid", s.proc.pid),
	)
	return nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once teardown has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the reason the session closed, or nil while it is open.
func (s *Session) Err() error {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.reason
}

// Info returns a snapshot of the session
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:            s.id,
		Shell:         s.shell,
		Rows:          int(s.rows.Load()),
		Cols:          int(s.cols.Load()),
		State:         s.State(),
		StartedAt:     s.startedAt,
		LastHeartbeat: s.heartbeat.Last(),
	}
}

// Heartbeat refreshes the liveness timestamp. It never changes state.
func (s *Session) Heartbeat() {
	s.heartbeat.Touch()
}

// Write sends input bytes to the shell. Concurrent writers never interleave
// partial writes.
func (s *Session) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	s.writeMu.Lock()
	if s.State() != StateRunning {
		s.writeMu.Unlock()
		return ErrNotRunning
	}
	n, err := s.proc.ptmx.Write(p)
	s.writeMu.Unlock()

	if s.metrics != nil && n > 0 {
		s.metrics.RecordPTYBytes("in", n)
	}
	if err != nil {
		ioErr := &IOError{Op: "write", Err: err}
		s.fail(ioErr)
		return ioErr
	}
	return nil
}

// Resize applies a new terminal geometry. Invalid sizes and sessions that are
// not running are reported without affecting the session.
func (s *Session) Resize(rows, cols int) error {
	if rows < 1 || rows > maxDimension || cols < 1 || cols > maxDimension {
		return &ResizeError{Rows: rows, Cols: cols, Err: errInvalidGeometry}
	}

	s.writeMu.Lock()
	if s.State() != StateRunning {
		s.writeMu.Unlock()
		return &ResizeError{Rows: rows, Cols: cols, Err: ErrNotRunning}
	}
	err := pty.Setsize(s.proc.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	s.writeMu.Unlock()

	if err != nil {
		ioErr := &IOError{Op: "resize", Err: err}
		s.fail(ioErr)
		return ioErr
	}

	s.rows.Store(int32(rows))
	s.cols.Store(int32(cols))
	return nil
}

// Close tears the session down and waits for teardown to finish. Calling it
// again is a no-op.
func (s *Session) Close() error {
	s.shutdown(ErrClosedByRequest)
	return nil
}

// CloseWithReason is Close with an explicit reason recorded for diagnostics.
func (s *Session) CloseWithReason(reason error) {
	s.shutdown(reason)
}

// fail moves the session to Closing right away and finishes teardown in the
// background so the caller gets its error without waiting on the child.
func (s *Session) fail(err error) {
	s.beginClosing()
	go s.shutdown(err)
}

// beginClosing marks the session Closing and raises the flag the pump polls.
// It reports whether the session had never been started.
func (s *Session) beginClosing() (neverStarted bool) {
	s.closing.Store(true)
	for {
		cur := s.state.Load()
		switch State(cur) {
		case StateCreated:
			if s.state.CompareAndSwap(cur, int32(StateClosing)) {
				return true
			}
		case StateRunning:
			if s.state.CompareAndSwap(cur, int32(StateClosing)) {
				return false
			}
		default:
			return false
		}
	}
}

// shutdown is the single teardown routine. The first caller's reason wins;
// later callers block until teardown has completed.
func (s *Session) shutdown(reason error) {
	s.closeOnce.Do(func() {
		s.reasonMu.Lock()
		s.reason = reason
		s.reasonMu.Unlock()

		neverStarted := s.beginClosing()
		wasRunning := !neverStarted
		s.stopHeartbeat()

		// The pump must acknowledge before the descriptor can be closed.
		if wasRunning {
			<-s.pumpDone
		}

		s.proc.terminate(s.killGrace)

		s.writeMu.Lock()
		s.proc.close()
		s.writeMu.Unlock()

		s.state.Store(int32(StateClosed))

		lifetime := time.Since(s.startedAt)
		if s.metrics != nil && wasRunning {
			s.metrics.SessionClosed(ReasonLabel(reason), lifetime)
		}
		s.logCloseReason(reason, lifetime)

		if s.onClosed != nil {
			s.onClosed(s)
		}
		close(s.done)
	})
	<-s.done
}

func (s *Session) logCloseReason(reason error, lifetime time.Duration) {
	fields := []zap.Field{
		zap.String("reason", ReasonLabel(reason)),
		zap.Duration("lifetime", lifetime),
	}
	if status, ok := s.proc.exitStatus(); ok {
		fields = append(fields, zap.String("exit_status", status))
	}
	var ioErr *IOError
	switch {
	case errors.As(reason, &ioErr):
		s.logger.Warn("Terminal session closed after pty failure", append(fields, zap.Error(reason))...)
	case errors.Is(reason, ErrHeartbeatTimeout):
		s.logger.Warn("Terminal session closed: heartbeat timeout", fields...)
	default:
		s.logger.Info("Terminal session closed", fields...)
	}
}

// runPump drains the pty until EOF, an error or the closing flag, then
// acknowledges so teardown may close the descriptor.
func (s *Session) runPump() {
	reason := s.pump()
	close(s.pumpDone)
	if reason != nil {
		s.shutdown(reason)
	}
}

// pump relays pty output to s.output. It waits for readiness with a short
// poll so the closing flag is observed promptly, and performs one bounded
// read per wakeup. Nothing is buffered.
func (s *Session) pump() error {
	buf := make([]byte, s.readSize)
	fds := []unix.PollFd{{Fd: int32(s.proc.fd), Events: unix.POLLIN}}
	timeout := int(s.pollInterval / time.Millisecond)
	if timeout < 1 {
		timeout = 1
	}

	for !s.closing.Load() {
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return &IOError{Op: "poll", Err: err}
		}
		if n == 0 || s.closing.Load() {
			continue
		}

		r, err := unix.Read(s.proc.fd, buf)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
				continue
			case errors.Is(err, unix.EIO):
				// Linux reports a hung-up slave as EIO on the master.
				return ErrEOF
			default:
				return &IOError{Op: "read", Err: err}
			}
		}
		if r == 0 {
			return ErrEOF
		}

		if s.metrics != nil {
			s.metrics.RecordPTYBytes("out", r)
		}
		if err := s.output(buf[:r]); err != nil {
			s.logger.Debug("Output sink failed", zap.Error(err))
			return ErrTransportClosed
		}
	}
	return nil
}

// watchExit closes the session once the shell has exited. The pump normally
// notices first through EOF; this covers shells whose background jobs keep
// the slave side open.
func (s *Session) watchExit() {
	select {
	case <-s.proc.Exited():
	case <-s.done:
		return
	}

	timer := time.NewTimer(s.killGrace)
	defer timer.Stop()

	select {
	case <-s.pumpDone:
	case <-s.done:
	case <-timer.C:
		s.shutdown(ErrEOF)
	}
}

// ReasonLabel maps a close reason to a short label for logs and metrics.
func ReasonLabel(reason error) string {
	var ioErr *IOError
	switch {
	case reason == nil:
		return "none"
	case errors.Is(reason, ErrEOF):
		return "eof"
	case errors.Is(reason, ErrHeartbeatTimeout):
		return "heartbeat_timeout"
	case errors.Is(reason, ErrClosedByRequest):
		return "closed"
	case errors.Is(reason, ErrReplaced):
		return "replaced"
	case errors.Is(reason, ErrTransportClosed):
		return "transport_closed"
	case errors.Is(reason, ErrServerShutdown):
		return "shutdown"
	case errors.As(reason, &ioErr):
		return "io_error"
	default:
		return "unknown"
	}
}
