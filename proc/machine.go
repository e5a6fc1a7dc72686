package proc

import (
	"context"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type State int

const (
	StateStopped State = iota
	StateStarting
	StateStarted
	StateStopping
	StateRestarting
)

var allStates = []State{StateStopped, StateStarting, StateStarted, StateStopping, StateRestarting}

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateRestarting:
		return "restarting"
	default:
		return "stopped"
	}
}

type Op string

const (
	OpStart   Op = "start"
	OpStop    Op = "stop"
	OpRestart Op = "restart"
)

type NoticeKind int

const (
	NoticeRejected NoticeKind = iota
	NoticeStarting
	NoticeStarted
	NoticeStartedFallback
	NoticeSimulatedStarted
	NoticeStopping
	NoticeStopped
	NoticeRestarting
	NoticeRebooting
	NoticeRestarted
	NoticeCrashed
	NoticeAutoRestart
	NoticeAutoRestartExhausted
	NoticeSpawnFailed
)

// Notice is one progress report from the lifecycle machine.
type Notice struct {
	Kind     NoticeKind
	Op       Op
	State    State
	Endpoint string
	Exit     ExitStatus
	Delay    time.Duration
	Err      error
}

// Reporter receives notices in transition order. Implementations may read
// Status but must not start another transition from inside Report.
type Reporter interface {
	Report(n Notice)
}

type ReporterFunc func(n Notice)

func (f ReporterFunc) Report(n Notice) { f(n) }

// Runner is the process side of the machine. Supervisor implements it.
type Runner interface {
	Spawn() (*Process, error)
	WriteLine(line string) error
	Terminate(sig syscall.Signal) error
	Running() bool
}

// ConsoleWriter receives every output line of the supervised process.
type ConsoleWriter interface {
	Write(stream Stream, text string)
}

type Timings struct {
	StartFallback    time.Duration
	SimulatedStart   time.Duration
	StopKill         time.Duration
	SimulatedStop    time.Duration
	RestartKill      time.Duration
	RestartDelay     time.Duration
	AutoRestartDelay time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		StartFallback:    60 * time.Second,
		SimulatedStart:   10 * time.Second,
		StopKill:         15 * time.Second,
		SimulatedStop:    8 * time.Second,
		RestartKill:      20 * time.Second,
		RestartDelay:     3 * time.Second,
		AutoRestartDelay: 5 * time.Second,
	}
}

type MachineConfig struct {
	// Runner is nil in simulation mode.
	Runner         Runner
	Clock          Clock
	Endpoint       string
	AutoRestart    bool
	AutoRestartMax int
	Console        ConsoleWriter
	Metrics        *Metrics
	Timings        Timings
}

// Snapshot is a point-in-time view of the machine.
type Snapshot struct {
	State     State
	Endpoint  string
	Since     time.Time
	Simulated bool
	Process   *Process
}

// Machine is the server lifecycle state machine.
type Machine struct {
	runner   Runner
	clock    Clock
	endpoint string
	console  ConsoleWriter
	metrics  *Metrics
	timings  Timings

	autoRestart    bool
	restartBackoff backoff.BackOff

	mu             sync.Mutex
	state          State
	since          time.Time
	epoch          uint64
	timers         []Timer
	proc           *Process
	manualStop     bool
	pendingRestart bool
	reporter       Reporter

	emitMu   sync.Mutex
	emitCond *sync.Cond
	issued   uint64
	served   uint64
}

func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Timings == (Timings{}) {
		cfg.Timings = DefaultTimings()
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(cfg.Timings.AutoRestartDelay)
	if cfg.AutoRestartMax > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.AutoRestartMax))
	}

	m := &Machine{
		runner:         cfg.Runner,
		clock:          cfg.Clock,
		endpoint:       cfg.Endpoint,
		console:        cfg.Console,
		metrics:        cfg.Metrics,
		timings:        cfg.Timings,
		autoRestart:    cfg.AutoRestart,
		restartBackoff: b,
		state:          StateStopped,
		since:          cfg.Clock.Now(),
	}
	m.emitCond = sync.NewCond(&m.emitMu)
	m.metrics.observeState(StateStopped)
	return m
}

func (m *Machine) Simulated() bool { return m.runner == nil }

// Status is a pure read and never rejected.
func (m *Machine) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:     m.state,
		Endpoint:  m.endpoint,
		Since:     m.since,
		Simulated: m.runner == nil,
		Process:   m.proc,
	}
}

// --- Operations ---

// Start is accepted only from stopped.
func (m *Machine) Start(rep Reporter) error {
	m.mu.Lock()
	if m.state != StateStopped {
		m.release(rep, m.reject(OpStart))
		return ErrInvalidState
	}

	m.reporter = rep
	m.bump()
	m.setState(StateStarting)
	notes := []Notice{m.notice(NoticeStarting)}

	if m.runner == nil {
		m.after(m.timings.SimulatedStart, func() []Notice {
			m.setState(StateStarted)
			return []Notice{m.notice(NoticeSimulatedStarted)}
		})
		m.release(rep, notes)
		return nil
	}

	// A manual start begins a new crash series.
	m.restartBackoff.Reset()
	m.manualStop = false
	m.pendingRestart = false
	notes, err := m.spawnLocked(notes)
	m.release(rep, notes)
	return err
}

// Stop and Restart are accepted only from started. A transition that is
// already in flight is never interrupted.
func (m *Machine) Stop(rep Reporter) error {
	m.mu.Lock()
	if m.state != StateStarted {
		m.release(rep, m.reject(OpStop))
		return ErrInvalidState
	}

	m.reporter = rep
	m.bump()
	m.setState(StateStopping)
	notes := []Notice{m.notice(NoticeStopping)}

	switch {
	case m.runner == nil:
		m.after(m.timings.SimulatedStop, func() []Notice {
			m.setState(StateStopped)
			return []Notice{m.notice(NoticeStopped)}
		})
	case m.proc == nil:
		m.setState(StateStopped)
		notes = append(notes, m.notice(NoticeStopped))
	default:
		m.manualStop = true
		m.pendingRestart = false
		m.requestStopLocked(m.timings.StopKill)
	}

	m.release(rep, notes)
	return nil
}

func (m *Machine) Restart(rep Reporter) error {
	m.mu.Lock()
	if m.state != StateStarted {
		m.release(rep, m.reject(OpRestart))
		return ErrInvalidState
	}

	m.reporter = rep
	m.bump()
	m.setState(StateRestarting)
	notes := []Notice{m.notice(NoticeRestarting)}

	switch {
	case m.runner == nil:
		m.after(m.timings.SimulatedStop, func() []Notice {
			m.setState(StateStarting)
			m.after(m.timings.SimulatedStart, func() []Notice {
				m.setState(StateStarted)
				return []Notice{m.notice(NoticeRestarted)}
			})
			return []Notice{m.notice(NoticeRebooting)}
		})
	case m.proc == nil:
		m.setState(StateStarting)
		notes = append(notes, m.notice(NoticeRebooting))
		m.after(m.timings.RestartDelay, m.respawn)
	default:
		m.manualStop = false
		m.pendingRestart = true
		m.requestStopLocked(m.timings.RestartKill)
	}

	m.release(rep, notes)
	return nil
}

// Shutdown stops a real server process before the bot exits. It waits for the
// exit event until ctx is done, then terminates the process.
func (m *Machine) Shutdown(ctx context.Context) {
	m.mu.Lock()
	p := m.proc
	m.bump()
	if m.runner == nil || p == nil {
		m.mu.Unlock()
		return
	}
	m.manualStop = true
	m.pendingRestart = false
	m.setState(StateStopping)
	_ = m.runner.WriteLine("stop")
	m.mu.Unlock()

	select {
	case <-p.Done():
	case <-ctx.Done():
		_ = m.runner.Terminate(syscall.SIGTERM)
	}
}

// --- Process events ---

// IsReadyLine reports whether a line of server output marks a finished boot.
func IsReadyLine(text string) bool {
	return strings.Contains(text, "Done") || strings.Contains(strings.ToLower(text), `for help, type "help"`)
}

// HandleOutput forwards a line to the console and advances the machine when
// the line carries the ready marker.
func (m *Machine) HandleOutput(runID string, stream Stream, text string) {
	if m.console != nil {
		m.console.Write(stream, text)
	}
	if stream != StreamStdout || !IsReadyLine(text) {
		return
	}

	m.mu.Lock()
	if m.proc == nil || m.proc.ID != runID || m.pendingRestart ||
		(m.state != StateStarting && m.state != StateRestarting) {
		m.mu.Unlock()
		return
	}
	m.bump()
	m.setState(StateStarted)
	m.restartBackoff.Reset()
	m.release(m.reporter, []Notice{m.notice(NoticeStarted)})
}

// HandleExit resolves the exit of a run. Exits of stale runs are ignored.
func (m *Machine) HandleExit(runID string, st ExitStatus) {
	m.mu.Lock()
	if m.proc == nil || m.proc.ID != runID {
		m.mu.Unlock()
		return
	}
	m.proc = nil
	m.bump()

	var notes []Notice
	switch {
	case m.pendingRestart:
		m.pendingRestart = false
		m.setState(StateStarting)
		notes = append(notes, m.notice(NoticeRebooting))
		m.after(m.timings.RestartDelay, m.respawn)

	case m.manualStop:
		m.manualStop = false
		m.setState(StateStopped)
		notes = append(notes, m.notice(NoticeStopped))

	default:
		m.metrics.crash()
		m.setState(StateStopped)
		crash := m.notice(NoticeCrashed)
		crash.Exit = st
		notes = append(notes, crash)

		if m.autoRestart {
			delay := m.restartBackoff.NextBackOff()
			if delay == backoff.Stop {
				notes = append(notes, m.notice(NoticeAutoRestartExhausted))
				break
			}
			m.setState(StateStarting)
			n := m.notice(NoticeAutoRestart)
			n.Delay = delay
			notes = append(notes, n)
			m.after(delay, m.respawn)
		}
	}

	m.release(m.reporter, notes)
}

func (m *Machine) awaitExit(p *Process) {
	<-p.Done()
	m.HandleExit(p.ID, p.Status())
}

// --- Internals (mu held) ---

func (m *Machine) respawn() []Notice {
	notes, _ := m.spawnLocked(nil)
	return notes
}

func (m *Machine) spawnLocked(notes []Notice) ([]Notice, error) {
	p, err := m.runner.Spawn()
	if err != nil {
		m.bump()
		m.setState(StateStopped)
		n := m.notice(NoticeSpawnFailed)
		n.Err = err
		return append(notes, n), err
	}

	if m.proc == nil || m.proc.ID != p.ID {
		m.proc = p
		go m.awaitExit(p)
	}
	m.setState(StateStarting)
	m.after(m.timings.StartFallback, func() []Notice {
		if m.state != StateStarting {
			return nil
		}
		m.setState(StateStarted)
		m.restartBackoff.Reset()
		return []Notice{m.notice(NoticeStartedFallback)}
	})
	return notes, nil
}

func (m *Machine) requestStopLocked(grace time.Duration) {
	id := m.proc.ID
	if err := m.runner.WriteLine("stop"); err != nil {
		_ = m.runner.Terminate(syscall.SIGTERM)
	}
	m.after(grace, func() []Notice {
		if m.proc != nil && m.proc.ID == id {
			_ = m.runner.Terminate(syscall.SIGTERM)
		}
		return nil
	})
}

func (m *Machine) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.since = m.clock.Now()
	m.metrics.observeState(s)
}

// bump invalidates every armed timer.
func (m *Machine) bump() {
	m.epoch++
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = m.timers[:0]
}

func (m *Machine) after(d time.Duration, fn func() []Notice) {
	epoch := m.epoch
	t := m.clock.AfterFunc(d, func() {
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return
		}
		m.release(m.reporter, fn())
	})
	m.timers = append(m.timers, t)
}

func (m *Machine) notice(kind NoticeKind) Notice {
	return Notice{Kind: kind, State: m.state, Endpoint: m.endpoint}
}

func (m *Machine) reject(op Op) []Notice {
	n := m.notice(NoticeRejected)
	n.Op = op
	n.Err = ErrInvalidState
	return []Notice{n}
}

// release unlocks mu and delivers notes in the order their transitions
// happened, without holding the state lock during delivery.
func (m *Machine) release(rep Reporter, notes []Notice) {
	m.emitMu.Lock()
	ticket := m.issued
	m.issued++
	m.emitMu.Unlock()
	m.mu.Unlock()

	m.emitMu.Lock()
	for m.served != ticket {
		m.emitCond.Wait()
	}
	m.emitMu.Unlock()

	defer func() {
		m.emitMu.Lock()
		m.served++
		m.emitCond.Broadcast()
		m.emitMu.Unlock()
	}()

	if rep != nil {
		for _, n := range notes {
			rep.Report(n)
		}
	}
}
