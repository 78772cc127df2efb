// Package terminaltest provides test doubles for the terminal package.
package terminaltest

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/termbridge/internal/terminal"
)

var errNoProcess = errors.New("mock launcher has no process to return")

// MockLauncher is a testify mock of terminal.Launcher. When an expectation
// returns (nil, nil) the call is forwarded to Delegate, so tests can assert
// on the LaunchSpec while still getting a real shell.
type MockLauncher struct {
	mock.Mock
	Delegate terminal.Launcher
}

// Start mocks the Start method.
func (m *MockLauncher) Start(spec terminal.LaunchSpec) (*terminal.Process, error) {
	args := m.Called(spec)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	if p, ok := args.Get(0).(*terminal.Process); ok && p != nil {
		return p, nil
	}
	if m.Delegate == nil {
		return nil, &terminal.SessionStartError{Shell: spec.Shell, Err: errNoProcess}
	}
	return m.Delegate.Start(spec)
}

// NewMockLauncher creates a mock that forwards to the real pty launcher and
// verifies its expectations when the test ends.
func NewMockLauncher(t *testing.T) *MockLauncher {
	t.Helper()
	m := &MockLauncher{Delegate: terminal.PTYLauncher{}}
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Recorder is a terminal.Output that keeps everything written to it.
type Recorder struct {
	mu  sync.Mutex
	buf []byte
}

// Write implements terminal.Output.
func (r *Recorder) Write(p []byte) error {
	r.mu.Lock()
	r.buf = append(r.buf, p...)
	r.mu.Unlock()
	return nil
}

// String returns the output received so far.
func (r *Recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.buf)
}
