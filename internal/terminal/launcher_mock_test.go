package terminal_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termbridge/internal/terminal"
	"github.com/GriffinCanCode/termbridge/internal/terminal/terminaltest"
)

func mockConfig() terminal.Config {
	cfg := terminal.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.KillGrace = 300 * time.Millisecond
	cfg.HeartbeatInterval = 0
	cfg.HeartbeatTimeout = 0
	return cfg
}

func TestRegistryLaunchSpecFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig()
	cfg.Term = "vt100"
	cfg.WorkingDir = dir

	launcher := terminaltest.NewMockLauncher(t)
	launcher.On("Start", mock.MatchedBy(func(spec terminal.LaunchSpec) bool {
		return spec.Shell == terminal.DefaultShell &&
			spec.Term == "vt100" &&
			spec.WorkingDir == dir &&
			spec.Rows == terminal.DefaultRows &&
			spec.Cols == terminal.DefaultCols
	})).Return(nil, nil).Once()

	r := terminal.NewRegistry(cfg, zap.NewNop()).WithLauncher(launcher)
	out := &terminaltest.Recorder{}

	s, err := r.Create(t.Context(), "configured", out.Write)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close("configured") })

	require.NoError(t, s.Write([]byte("pwd; echo TERM=$TERM\n")))
	assert.Eventually(t, func() bool {
		got := out.String()
		return strings.Contains(got, dir) && strings.Contains(got, "TERM=vt100")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRegistryLaunchErrorLeavesNothingBehind(t *testing.T) {
	launcher := terminaltest.NewMockLauncher(t)
	startErr := &terminal.SessionStartError{Shell: "/bin/sh", Err: errors.New("no pty devices")}
	launcher.On("Start", mock.Anything).Return(nil, startErr).Twice()

	r := terminal.NewRegistry(mockConfig(), zap.NewNop()).WithLauncher(launcher)

	for i := 0; i < 2; i++ {
		_, err := r.Create(t.Context(), "doomed", (&terminaltest.Recorder{}).Write)
		var se *terminal.SessionStartError
		require.ErrorAs(t, err, &se)
		assert.Contains(t, se.Error(), "no pty devices")
	}

	assert.Equal(t, 0, r.Count())
	_, ok := r.Get("doomed")
	assert.False(t, ok)
}
