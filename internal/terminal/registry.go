package terminal

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/GriffinCanCode/termbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termbridge/internal/infrastructure/tracing"
)

var errEmptyID = errors.New("session id is empty")

// Registry maps session ids to live sessions. Its lock guards only the map;
// no session I/O happens while it is held.
type Registry struct {
	cfg      Config
	launcher Launcher
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	breaker  *resilience.Breaker
	launches *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*Session
	idLocks  map[string]*idLock
	pending  int // launches holding a MaxSessions slot
}

// idLock serializes Create calls for one id so a replacement never overlaps
// with the session it replaces.
type idLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates a registry that launches shells with creack/pty
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		cfg:      cfg,
		launcher: PTYLauncher{},
		logger:   logger,
		launches: semaphore.NewWeighted(int64(cfg.MaxConcurrentLaunches)),
		sessions: make(map[string]*Session),
		idLocks:  make(map[string]*idLock),
	}
	r.breaker = resilience.New("shell-launch", resilience.Settings{
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Launch breaker changed state",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return r
}

// WithLauncher replaces the process launcher
func (r *Registry) WithLauncher(l Launcher) *Registry {
	r.launcher = l
	return r
}

// WithMetrics adds metrics tracking to the registry
func (r *Registry) WithMetrics(metrics *monitoring.Metrics) *Registry {
	r.metrics = metrics
	return r
}

// WithTracer records a span per session lifetime
func (r *Registry) WithTracer(tracer *tracing.Tracer) *Registry {
	r.tracer = tracer
	return r
}

// Config returns the effective configuration
func (r *Registry) Config() Config {
	return r.cfg
}

// Create launches a shell for id. A live session already registered under id
// is torn down first, and only then is the new shell started.
func (r *Registry) Create(ctx context.Context, id string, out Output) (*Session, error) {
	spec := LaunchSpec{
		Shell:      r.cfg.Shell,
		Term:       r.cfg.Term,
		WorkingDir: r.cfg.WorkingDir,
	}.withDefaults()

	if id == "" {
		return nil, &SessionStartError{Shell: spec.Shell, Err: errEmptyID}
	}

	unlock := r.lockID(id)
	defer unlock()

	r.mu.Lock()
	old := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if old != nil {
		r.logger.Info("Replacing terminal session", zap.String("session_id", id))
		old.CloseWithReason(ErrReplaced)
	}

	if !r.reserve() {
		r.recordLaunchFailure("limit")
		return nil, &SessionStartError{Shell: spec.Shell, Err: ErrTooManySessions}
	}

	proc, err := r.launch(ctx, spec)
	if err != nil {
		r.release()
		r.logger.Error("Failed to start terminal session",
			zap.String("session_id", id),
			zap.String("shell", spec.Shell),
			zap.Error(err),
		)
		return nil, err
	}

	s := newSession(id, proc, spec, r.cfg, out, r.logger, r.metrics, r.remove)

	// Registered before it runs so an immediate EOF still finds and removes it.
	r.mu.Lock()
	r.sessions[id] = s
	r.pending--
	r.mu.Unlock()

	if err := s.start(); err != nil {
		return nil, &SessionStartError{Shell: spec.Shell, Err: s.Err()}
	}

	if r.tracer != nil {
		r.traceLifetime(ctx, s)
	}
	return s, nil
}

// launch forks the shell, bounded by the launch semaphore and guarded by the
// circuit breaker.
func (r *Registry) launch(ctx context.Context, spec LaunchSpec) (*Process, error) {
	if err := r.launches.Acquire(ctx, 1); err != nil {
		r.recordLaunchFailure("cancelled")
		return nil, &SessionStartError{Shell: spec.Shell, Err: err}
	}
	defer r.launches.Release(1)

	var proc *Process
	err := r.breaker.Do(func() error {
		var err error
		proc, err = r.launcher.Start(spec)
		return err
	})
	if err != nil {
		var startErr *SessionStartError
		if errors.As(err, &startErr) {
			r.recordLaunchFailure("exec")
			return nil, startErr
		}
		r.recordLaunchFailure("breaker")
		return nil, &SessionStartError{Shell: spec.Shell, Err: err}
	}
	return proc, nil
}

func (r *Registry) recordLaunchFailure(cause string) {
	if r.metrics != nil {
		r.metrics.RecordLaunchFailure(cause)
	}
}

func (r *Registry) traceLifetime(ctx context.Context, s *Session) {
	span, _ := r.tracer.StartSpan(ctx, "terminal.session")
	span.SetTag("session_id", s.ID())
	span.SetTag("shell", s.shell)
	go func() {
		<-s.Done()
		if err := s.Err(); err != nil && !errors.Is(err, ErrClosedByRequest) && !errors.Is(err, ErrEOF) {
			span.SetError(err)
		}
		span.SetTag("reason", ReasonLabel(s.Err()))
		span.Finish()
		r.tracer.Submit(span)
	}()
}

// reserve claims a slot for a launch in progress so that concurrent creates
// under different ids cannot overshoot MaxSessions.
func (r *Registry) reserve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.MaxSessions > 0 && len(r.sessions)+r.pending >= r.cfg.MaxSessions {
		return false
	}
	r.pending++
	return true
}

func (r *Registry) release() {
	r.mu.Lock()
	r.pending--
	r.mu.Unlock()
}

// Get returns the live session registered under id
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close tears down the session registered under id and returns once it is
// fully closed. It is a no-op if no session is registered.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	s.CloseWithReason(ErrClosedByRequest)
	return nil
}

// List returns a snapshot of every registered session, ordered by id
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Count returns the number of registered sessions
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes every session in parallel. It returns ctx.Err() if the
// context ends before all teardowns complete.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.CloseWithReason(ErrServerShutdown)
		}(s)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		r.logger.Info("All terminal sessions closed", zap.Int("count", len(sessions)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remove drops s from the map if it is still the entry for its id. A newer
// session registered under the same id is left alone.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.id]; ok && cur == s {
		delete(r.sessions, s.id)
	}
}

func (r *Registry) lockID(id string) func() {
	r.mu.Lock()
	l, ok := r.idLocks[id]
	if !ok {
		l = &idLock{}
		r.idLocks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.idLocks, id)
		}
		r.mu.Unlock()
	}
}
