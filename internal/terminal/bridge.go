package terminal

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Close codes sent to the remote end when a session ends. They follow the
// WebSocket close code registry.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseTryAgainLater   = 1013
)

// Channel is a duplex message transport bound to one session. Send may be
// called from several goroutines at once. Close unblocks a pending Receive
// and is safe to call more than once.
type Channel interface {
	Send(p []byte) error
	Receive() ([]byte, error)
	Close(code int, reason string) error
}

// Serve launches (or replaces) the session id and relays between it and ch
// until either side ends. The channel is closed when Serve returns.
func (r *Registry) Serve(ctx context.Context, id string, ch Channel) error {
	framed := r.cfg.OutputMode != OutputRaw
	out := newOutputSink(ch, framed, r)

	s, err := r.Create(ctx, id, out.write)
	if err != nil {
		out.open()
		if framed {
			_ = ch.Send(EncodeError(err.Error()))
		}
		code := CloseInternalError
		if errors.Is(err, ErrTooManySessions) {
			code = CloseTryAgainLater
		}
		_ = ch.Close(code, "session start failed")
		return err
	}

	logger := r.logger.With(zap.String("session_id", id))

	// The session frame goes out before any output; the pump holds its first
	// write until the sink is opened.
	var sendErr error
	if framed {
		sendErr = r.send(ch, FrameSession, EncodeSession(id))
	}
	out.open()
	if sendErr != nil {
		s.CloseWithReason(ErrTransportClosed)
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		<-s.Done()
		code, text := CloseCode(s.Err())
		_ = ch.Close(code, text)
	}()

	var wg sync.WaitGroup
	if framed && r.cfg.HeartbeatInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ping(s, ch)
		}()
	}

	limiter := r.inputLimiter()
	for {
		raw, err := ch.Receive()
		if err != nil {
			logger.Debug("Channel receive ended", zap.Error(err))
			// Only this instance is closed; a replacement under the same id
			// is a different *Session.
			s.CloseWithReason(ErrTransportClosed)
			break
		}
		r.dispatch(s, ch, raw, limiter, framed, logger)
	}

	<-closed
	wg.Wait()
	return nil
}

func (r *Registry) dispatch(s *Session, ch Channel, raw []byte, limiter *rate.Limiter, framed bool, logger *zap.Logger) {
	frame := DecodeFrame(raw)
	if r.metrics != nil {
		r.metrics.RecordWSMessage("in", string(frame.Type))
	}

	switch frame.Type {
	case FrameInput:
		if limiter != nil && !limiter.Allow() {
			if r.metrics != nil {
				r.metrics.RecordWSDropped()
			}
			logger.Warn("Input rate limit exceeded, dropping frame", zap.Int("bytes", len(frame.Data)))
			return
		}
		if err := s.Write([]byte(frame.Data)); err != nil && !errors.Is(err, ErrNotRunning) {
			logger.Debug("Input write failed", zap.Error(err))
		}

	case FrameResize:
		err := s.Resize(frame.Rows, frame.Cols)
		if err == nil {
			return
		}
		var resizeErr *ResizeError
		if errors.As(err, &resizeErr) {
			if r.metrics != nil {
				r.metrics.RecordResizeError()
			}
			logger.Debug("Resize rejected", zap.Error(err))
			if framed {
				_ = r.send(ch, FrameError, EncodeError(err.Error()))
			}
		}

	case FrameHeartbeat:
		s.Heartbeat()

	default:
		logger.Debug("Ignoring unknown frame type", zap.String("type", string(frame.Type)))
	}
}

// ping sends heartbeat frames so clients can measure liveness, until the
// session ends.
func (r *Registry) ping(s *Session, ch Channel) {
	ticker := r.cfg.Clock.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			return
		case <-ticker.C():
			if s.State() != StateRunning {
				continue
			}
			if err := r.send(ch, FrameHeartbeat, EncodeHeartbeat(r.cfg.Clock.Now())); err != nil {
				return
			}
		}
	}
}

func (r *Registry) send(ch Channel, t FrameType, p []byte) error {
	if err := ch.Send(p); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordWSMessage("out", string(t))
	}
	return nil
}

func (r *Registry) inputLimiter() *rate.Limiter {
	if r.cfg.InputRateLimit <= 0 {
		return nil
	}
	burst := r.cfg.InputBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r.cfg.InputRateLimit), burst)
}

// CloseCode maps a close reason to a channel close code and reason text.
func CloseCode(reason error) (int, string) {
	var ioErr *IOError
	switch {
	case reason == nil, errors.Is(reason, ErrEOF):
		return CloseNormal, "shell exited"
	case errors.Is(reason, ErrClosedByRequest):
		return CloseNormal, "session closed"
	case errors.Is(reason, ErrReplaced):
		return CloseGoingAway, "session replaced"
	case errors.Is(reason, ErrServerShutdown):
		return CloseGoingAway, "server shutting down"
	case errors.Is(reason, ErrHeartbeatTimeout):
		return ClosePolicyViolation, "heartbeat timeout"
	case errors.Is(reason, ErrTransportClosed):
		return CloseNormal, "transport closed"
	case errors.As(reason, &ioErr):
		return CloseInternalError, "terminal i/o error"
	default:
		return CloseInternalError, "internal error"
	}
}

// outputSink adapts a Channel into the pump's Output. Only the pump calls
// write, so the UTF-8 carry needs no lock.
type outputSink struct {
	ch     Channel
	framed bool
	reg    *Registry
	carry  utf8Carry

	ready    chan struct{}
	openOnce sync.Once
}

func newOutputSink(ch Channel, framed bool, reg *Registry) *outputSink {
	return &outputSink{ch: ch, framed: framed, reg: reg, ready: make(chan struct{})}
}

func (o *outputSink) open() {
	o.openOnce.Do(func() { close(o.ready) })
}

func (o *outputSink) write(p []byte) error {
	<-o.ready
	text := o.carry.take(p)
	if text == "" {
		return nil
	}
	if !o.framed {
		return o.reg.send(o.ch, FrameOutput, []byte(text))
	}
	return o.reg.send(o.ch, FrameOutput, EncodeOutput(text))
}
