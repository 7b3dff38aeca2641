// Package exec provides a testable command execution abstraction.
// Inject Runner instead of calling os/exec directly so process spawning
// can be mocked in tests.
package exec

import (
	"bytes"
	"context"
	"os"
	osexec "os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a handle to a spawned command with captured output.
type Process interface {
	// Pid returns the OS process id, or 0 if the process never started.
	Pid() int

	// Done returns a channel that closes when the process exits.
	// After Done is closed, Err reports the exit error (nil on success).
	Done() <-chan struct{}

	// Err returns the exit error once Done is closed.
	Err() error

	// Stdout returns a snapshot of captured standard output.
	Stdout() []byte

	// Stderr returns a snapshot of captured standard error.
	Stderr() []byte

	// Terminate asks the process to exit (SIGTERM), then SIGKILLs it
	// after the grace period if it has not exited.
	Terminate(grace time.Duration)
}

// Runner defines the interface for executing external commands.
type Runner interface {
	// Run executes a command and returns combined stdout/stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// Spawn starts a command in dir with captured output and returns
	// its handle without waiting for completion.
	Spawn(ctx context.Context, dir, name string, args ...string) (Process, error)
}

// OSRunner implements Runner using os/exec.
type OSRunner struct {
	// Env overrides environment variables (nil = inherit from parent)
	Env []string
}

// NewOSRunner creates a new OS-based command runner.
func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

// Run executes a command and returns combined output.
func (r *OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	return cmd.CombinedOutput()
}

// Spawn starts a command without waiting.
func (r *OSRunner) Spawn(ctx context.Context, dir, name string, args ...string) (Process, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if r.Env != nil {
		cmd.Env = r.Env
	}

	p := &osProcess{cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &lockedBuffer{buf: &p.stdout, mu: &p.mu}
	cmd.Stderr = &lockedBuffer{buf: &p.stderr, mu: &p.mu}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

type osProcess struct {
	cmd    *osexec.Cmd
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	err    error
	done   chan struct{}
}

func (p *osProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *osProcess) Done() <-chan struct{} { return p.done }

func (p *osProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *osProcess) Stdout() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.stdout.Bytes()...)
}

func (p *osProcess) Stderr() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.stderr.Bytes()...)
}

func (p *osProcess) Terminate(grace time.Duration) {
	proc := p.cmd.Process
	if proc == nil {
		return
	}
	proc.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(grace):
		proc.Kill()
	}
}

// lockedBuffer serializes writes against Stdout/Stderr snapshots.
type lockedBuffer struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (w *lockedBuffer) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(b)
}

// ProcessAlive reports whether a PID refers to a live process.
// Used by restart reconciliation; signal 0 probes without delivering.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// MockRunner implements Runner for testing.
type MockRunner struct {
	mu sync.Mutex

	// Calls records all command invocations
	Calls []MockCall

	// Procs holds the mock processes handed out by Spawn, in order.
	Procs []*MockProcess

	// SpawnErr, when set, makes Spawn fail immediately.
	SpawnErr error

	// Script, when non-nil, is invoked per Spawn to pre-program the
	// returned process (complete it, fail it, leave it hanging).
	Script func(call MockCall, p *MockProcess)
}

// MockCall records a single command invocation.
type MockCall struct {
	Name string
	Args []string
	Dir  string
}

// NewMockRunner creates a new mock runner.
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args})
	m.mu.Unlock()
	return nil, nil
}

func (m *MockRunner) Spawn(ctx context.Context, dir, name string, args ...string) (Process, error) {
	call := MockCall{Name: name, Args: args, Dir: dir}

	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	if m.SpawnErr != nil {
		err := m.SpawnErr
		m.mu.Unlock()
		return nil, err
	}
	p := NewMockProcess(1000 + len(m.Procs))
	m.Procs = append(m.Procs, p)
	script := m.Script
	m.mu.Unlock()

	if script != nil {
		script(call, p)
	}
	return p, nil
}

// LastCall returns the most recent invocation, or a zero MockCall.
func (m *MockRunner) LastCall() MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return MockCall{}
	}
	return m.Calls[len(m.Calls)-1]
}

// MockProcess is a controllable Process for tests.
type MockProcess struct {
	mu         sync.Mutex
	pid        int
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	err        error
	done       chan struct{}
	closed     bool
	Terminated bool
}

// NewMockProcess creates an unfinished mock process.
func NewMockProcess(pid int) *MockProcess {
	return &MockProcess{pid: pid, done: make(chan struct{})}
}

// WriteStdout appends to the captured stdout.
func (p *MockProcess) WriteStdout(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stdout.WriteString(s)
}

// WriteStderr appends to the captured stderr.
func (p *MockProcess) WriteStderr(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stderr.WriteString(s)
}

// Exit finishes the process with the given error (nil = clean exit).
func (p *MockProcess) Exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.err = err
	p.closed = true
	close(p.done)
}

func (p *MockProcess) Pid() int              { return p.pid }
func (p *MockProcess) Done() <-chan struct{} { return p.done }

func (p *MockProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *MockProcess) Stdout() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.stdout.Bytes()...)
}

func (p *MockProcess) Stderr() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.stderr.Bytes()...)
}

func (p *MockProcess) Terminate(grace time.Duration) {
	p.mu.Lock()
	p.Terminated = true
	closed := p.closed
	if !closed {
		p.err = context.Canceled
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()
}
