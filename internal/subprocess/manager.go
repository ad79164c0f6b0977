// Package subprocess implements spec §4.1: launching a child in its own
// process group and guaranteeing the entire group is torn down on cancel or
// on any exit path of the run, including crashes in the consumer.
package subprocess

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// GraceTimeout is how long Cancel waits after SIGTERM before force-killing
// the process group, per spec §4.1 ("a short grace period (~2s)").
const GraceTimeout = 2 * time.Second

// TailLimit is the bound on the retained stderr tail, per spec §4.1.
const TailLimit = 64 * 1024

// ExitStatus is the terminal state of a child. Wait never raises for a
// non-zero exit; the caller inspects this value instead.
type ExitStatus struct {
	Code      int
	Signaled  bool
	Cancelled bool
	Err       error // non-nil only for exec errors (binary not found, etc.)
}

// Child is a running or finished subprocess, owned by exactly one Manager
// call to Spawn. Its process group is guaranteed torn down by the time Wait
// returns, by cancellation, or by the context passed to Spawn expiring.
type Child struct {
	cmd *exec.Cmd
	pid int
	mgr *Manager

	stdout io.ReadCloser

	mu         sync.Mutex
	tail       *ringBuffer
	waitOnce   sync.Once
	waitStatus ExitStatus
	waitDone   chan struct{}
	cancelled  bool
}

// PID returns the child's process id.
func (c *Child) PID() int { return c.pid }

// Stdout returns the child's stdout pipe, for the Line Reader to consume.
func (c *Child) Stdout() io.Reader { return c.stdout }

// StderrTail returns the bounded tail of everything the child wrote to
// stderr, retained for diagnostic logging only.
func (c *Child) StderrTail() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tail.Bytes()
}

// Manager spawns and supervises children. Every method is safe for
// concurrent use across unrelated children. It tracks the pids of children
// still running so Shutdown can sweep any process group left behind by a
// caller that exited without cancelling its Child first.
type Manager struct {
	mu       sync.Mutex
	children map[int]struct{}
}

// NewManager constructs a Manager.
func NewManager() *Manager {
	return &Manager{children: map[int]struct{}{}}
}

func (m *Manager) track(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[pid] = struct{}{}
}

func (m *Manager) untrack(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.children, pid)
}

// Shutdown kills the process group of every child this Manager spawned that
// hasn't reported exit yet, per spec §4.1's guarantee that no orphaned
// group survives the process that spawned it. Each Child's own
// watchContext/Cancel path already does this for the common case; Shutdown
// is the belt-and-suspenders sweep for whatever slipped past that, called
// once at process shutdown after the poll loop returns.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	pids := make([]int, 0, len(m.children))
	for pid := range m.children {
		pids = append(pids, pid)
	}
	m.children = map[int]struct{}{}
	m.mu.Unlock()

	for _, pid := range pids {
		KillTree(pid)
	}
}

// Spawn starts argv[0] with argv[1:] as arguments, in a new process group,
// and begins draining stderr into a bounded ring buffer in the background.
// stdin, if non-nil, is piped to the child and closed once fully written.
func (m *Manager) Spawn(ctx context.Context, argv []string, env []string, cwd string, stdin []byte) (*Child, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("subprocess: empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	// env adds to the inherited environment rather than replacing it.
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Dir = cwd
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("subprocess: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("subprocess: stderr pipe: %w", err)
	}

	var stdinPipe io.WriteCloser
	if stdin != nil {
		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("subprocess: stdin pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("subprocess: start %s: %w", argv[0], err)
	}

	c := &Child{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		mgr:      m,
		stdout:   stdoutPipe,
		tail:     newRingBuffer(TailLimit),
		waitDone: make(chan struct{}),
	}
	m.track(c.pid)

	if stdinPipe != nil {
		go func() {
			defer stdinPipe.Close()
			_, _ = stdinPipe.Write(stdin)
		}()
	}

	go c.drainStderr(stderrPipe)
	go c.waitForExit(ctx)
	go c.watchContext(ctx)

	return c, nil
}

// watchContext cancels the child's process group when ctx is done, so a
// caller's cancel scope (spec §5) cascades into subprocess teardown without
// every caller having to remember to call Cancel explicitly.
func (c *Child) watchContext(ctx context.Context) {
	select {
	case <-ctx.Done():
		c.Cancel()
	case <-c.waitDone:
	}
}

func (c *Child) drainStderr(r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.tail.Write(buf[:n])
			c.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (c *Child) waitForExit(ctx context.Context) {
	err := c.cmd.Wait()
	status := statusFromError(err)
	// The leader has exited; kill whatever is left of its process group so
	// no descendant outlives the run.
	signalGroup(c.pid, syscall.SIGKILL)

	c.mu.Lock()
	if c.cancelled {
		status.Cancelled = true
	}
	c.mu.Unlock()

	c.waitOnce.Do(func() {
		c.waitStatus = status
		c.mgr.untrack(c.pid)
		close(c.waitDone)
	})
}

func statusFromError(err error) ExitStatus {
	if err == nil {
		return ExitStatus{Code: 0}
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		ws, ok := exitErr.Sys().(syscall.WaitStatus)
		if ok {
			if ws.Signaled() {
				return ExitStatus{Code: -1, Signaled: true}
			}
			return ExitStatus{Code: ws.ExitStatus()}
		}
		return ExitStatus{Code: exitErr.ExitCode()}
	}
	return ExitStatus{Err: err}
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// Wait blocks until the child has exited and any members of its process
// group still alive have been sent SIGKILL, then returns the terminal
// status. It never returns an error for a non-zero exit code.
func (c *Child) Wait() ExitStatus {
	<-c.waitDone
	return c.waitStatus
}

// Done returns a channel closed once the child has exited.
func (c *Child) Done() <-chan struct{} { return c.waitDone }

// Cancel delivers SIGTERM to the child's process group, waits up to
// GraceTimeout, then sends SIGKILL to the group if it is still alive. It is
// safe to call more than once and safe to call after the child has already
// exited.
func (c *Child) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	pgid := c.pid
	c.mu.Unlock()

	signalGroup(pgid, syscall.SIGTERM)

	select {
	case <-c.waitDone:
		return
	case <-time.After(GraceTimeout):
	}

	if groupAlive(pgid) {
		signalGroup(pgid, syscall.SIGKILL)
	}
}

func signalGroup(pgid int, sig syscall.Signal) {
	_ = unix.Kill(-pgid, sig)
}

func groupAlive(pgid int) bool {
	err := unix.Kill(-pgid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}

// KillTree sends SIGKILL to pid's entire process group. It is the primitive
// Manager.Shutdown sweeps with; a miss (pid already gone) is not an error.
func KillTree(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, syscall.SIGKILL)
}
