package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// ExitStatus describes how a supervised process ended.
type ExitStatus struct {
	Code   int
	Signal string
	Err    error
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return fmt.Sprintf("code=%d, signal=%s", s.Code, s.Signal)
	}
	return fmt.Sprintf("code=%d", s.Code)
}

// Process is a handle to one run of the server. Done resolves exactly once.
type Process struct {
	ID        string
	PID       int
	StartedAt time.Time

	done   chan struct{}
	once   sync.Once
	status ExitStatus
}

func newProcess(id string, pid int, startedAt time.Time) *Process {
	return &Process{ID: id, PID: pid, StartedAt: startedAt, done: make(chan struct{})}
}

func (p *Process) Done() <-chan struct{} { return p.done }

// Status is only meaningful after Done is closed.
func (p *Process) Status() ExitStatus {
	<-p.done
	return p.status
}

func (p *Process) resolve(st ExitStatus) {
	p.once.Do(func() {
		p.status = st
		close(p.done)
	})
}

// OutputFunc receives server output, one line at a time, in order per stream.
type OutputFunc func(runID string, stream Stream, text string)

type SupervisorConfig struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// Supervisor owns at most one external server process.
type Supervisor struct {
	cfg SupervisorConfig

	mu       sync.Mutex
	cur      *Process
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	onOutput OutputFunc
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// OnOutput sets the handler for output lines. It must be set before Spawn.
func (s *Supervisor) OnOutput(fn OutputFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOutput = fn
}

// Spawn launches the configured command. If a process is already running its
// handle is returned unchanged.
func (s *Supervisor) Spawn() (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		return s.cur, nil
	}

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir
	if len(s.cfg.Env) > 0 {
		cmd.Env = s.cfg.Env
	}
	prepareCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: s.cfg.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Command: s.cfg.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Command: s.cfg.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Command: s.cfg.Command, Err: err}
	}

	p := newProcess(uuid.NewString(), cmd.Process.Pid, time.Now())
	s.cur = p
	s.cmd = cmd
	s.stdin = stdin

	output := s.onOutput
	var pumps sync.WaitGroup
	pumps.Add(2)
	go s.pump(&pumps, p.ID, StreamStdout, stdout, output)
	go s.pump(&pumps, p.ID, StreamStderr, stderr, output)

	go func() {
		// Wait must not be called before the pipes are drained.
		pumps.Wait()
		status := exitStatusOf(cmd.Wait())

		s.mu.Lock()
		if s.cur == p {
			s.cur = nil
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()

		p.resolve(status)
	}()

	return p, nil
}

func (s *Supervisor) pump(wg *sync.WaitGroup, runID string, stream Stream, r io.Reader, output OutputFunc) {
	defer wg.Done()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" && output != nil {
			output(runID, stream, line)
		}
		if err != nil {
			return
		}
	}
}

// WriteLine sends a line to the process stdin.
func (s *Supervisor) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.stdin == nil {
		return ErrNotRunning
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := io.WriteString(s.stdin, line); err != nil {
		return fmt.Errorf("write to server stdin: %w", err)
	}
	return nil
}

// Terminate signals the running process group.
func (s *Supervisor) Terminate(sig syscall.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cmd == nil || s.cmd.Process == nil {
		return ErrNotRunning
	}
	return signalProcess(s.cmd.Process, sig)
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Current returns the running process handle, or nil.
func (s *Supervisor) Current() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func exitStatusOf(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitStatus{Code: exitErr.ExitCode(), Signal: exitSignal(exitErr.ProcessState), Err: err}
	}
	return ExitStatus{Code: -1, Err: err}
}
