package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// Default launch parameters
const (
	DefaultShell = "/bin/sh"
	DefaultTerm  = "xterm-256color"
	DefaultRows  = 24
	DefaultCols  = 80
)

// LaunchSpec describes the shell to start for a session
type LaunchSpec struct {
	Shell      string
	Args       []string
	Term       string
	WorkingDir string
	Env        map[string]string
	Rows       int
	Cols       int
}

func (s LaunchSpec) withDefaults() LaunchSpec {
	if s.Shell == "" {
		s.Shell = DefaultShell
	}
	if s.Term == "" {
		s.Term = DefaultTerm
	}
	if s.Rows <= 0 || s.Rows > maxDimension {
		s.Rows = DefaultRows
	}
	if s.Cols <= 0 || s.Cols > maxDimension {
		s.Cols = DefaultCols
	}
	return s
}

// Launcher starts shell processes attached to a pty.
type Launcher interface {
	Start(spec LaunchSpec) (*Process, error)
}

// PTYLauncher forks shells with creack/pty.
type PTYLauncher struct{}

// Start allocates a pty pair and starts spec.Shell on its slave side. The
// child inherits the parent's environment with TERM overridden.
func (PTYLauncher) Start(spec LaunchSpec) (*Process, error) {
	spec = spec.withDefaults()

	cmd := exec.Command(spec.Shell, spec.Args...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = buildEnv(os.Environ(), spec.Term, spec.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(spec.Rows),
		Cols: uint16(spec.Cols),
	})
	if err != nil {
		return nil, &SessionStartError{Shell: spec.Shell, Err: err}
	}

	// Fd switches the file to blocking mode; the pump polls it itself.
	p := &Process{
		ptmx:   ptmx,
		fd:     int(ptmx.Fd()),
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		exited: make(chan struct{}),
	}
	go p.reap()

	return p, nil
}

// buildEnv returns base with TERM replaced and extra variables appended. The
// term argument always wins over a TERM key in extra.
func buildEnv(base []string, term string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, "TERM=") {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range extra {
		if k == "TERM" {
			continue
		}
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return append(env, "TERM="+term)
}

// Process is a running shell and the master side of its pty. It is owned by
// exactly one Session and never handed out.
type Process struct {
	ptmx *os.File
	fd   int
	cmd  *exec.Cmd
	pid  int

	exited  chan struct{}
	waitErr error
}

func (p *Process) reap() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)
}

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

func (p *Process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// exitStatus describes how the shell ended. ok is false until it is reaped.
func (p *Process) exitStatus() (status string, ok bool) {
	select {
	case <-p.exited:
	default:
		return "", false
	}
	if p.waitErr == nil {
		return "exit status 0", true
	}
	return p.waitErr.Error(), true
}

// sessionGroups lists the process groups with live members in the shell's
// session. Jobs started with & under job control get their own group, so
// signalling only the shell's group would leave them running.
func (p *Process) sessionGroups() []int {
	procs, err := procfs.AllProcs()
	if err != nil {
		return nil
	}
	var groups []int
	for _, proc := range procs {
		stat, err := proc.Stat()
		if err != nil || stat.Session != p.pid || stat.State == "Z" {
			continue
		}
		if !slices.Contains(groups, stat.PGRP) {
			groups = append(groups, stat.PGRP)
		}
	}
	return groups
}

// signalSession delivers sig to every process group in the shell's session.
// creack/pty starts the shell as a session leader, so the session id and the
// shell's own group id both equal its pid.
func (p *Process) signalSession(sig syscall.Signal) {
	groups := p.sessionGroups()
	if !slices.Contains(groups, p.pid) {
		groups = append(groups, p.pid)
	}
	for _, pgid := range groups {
		err := unix.Kill(-pgid, sig)
		if err != nil && !errors.Is(err, unix.ESRCH) && pgid == p.pid && p.alive() {
			_ = p.cmd.Process.Signal(sig)
		}
	}
}

// gone reports whether the shell is reaped and nothing else is left in its
// session.
func (p *Process) gone() bool {
	return !p.alive() && len(p.sessionGroups()) == 0
}

// waitGone polls until gone or d elapses.
func (p *Process) waitGone(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		if p.gone() {
			return true
		}
		select {
		case <-timer.C:
			return p.gone()
		case <-p.exited:
			// Background jobs may outlive the shell; keep polling.
			<-tick.C
		case <-tick.C:
		}
	}
}

// terminate hangs up the shell and its jobs, escalating to SIGKILL for
// anything still in the session after grace. It returns once the session is
// empty or the second wait expires.
func (p *Process) terminate(grace time.Duration) {
	p.signalSession(unix.SIGHUP)
	p.signalSession(unix.SIGTERM)
	if p.waitGone(grace) {
		return
	}

	p.signalSession(unix.SIGKILL)
	p.waitGone(grace)
}

// close releases the pty master. Errors are ignored; the descriptor may
// already be gone.
func (p *Process) close() {
	_ = p.ptmx.Close()
}
