package proc

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	spawns   int
	spawnErr error
	cur      *Process
	lines    []string
	signals  []syscall.Signal
}

func (r *fakeRunner) Spawn() (*Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spawnErr != nil {
		return nil, &SpawnError{Command: "java", Err: r.spawnErr}
	}
	if r.cur != nil {
		return r.cur, nil
	}
	r.spawns++
	r.cur = newProcess(fmt.Sprintf("run-%d", r.spawns), 1000+r.spawns, time.Now())
	return r.cur, nil
}

func (r *fakeRunner) WriteLine(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return ErrNotRunning
	}
	r.lines = append(r.lines, line)
	return nil
}

func (r *fakeRunner) Terminate(sig syscall.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return ErrNotRunning
	}
	r.signals = append(r.signals, sig)
	return nil
}

func (r *fakeRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

func (r *fakeRunner) exit(code int) {
	r.mu.Lock()
	p := r.cur
	r.cur = nil
	r.mu.Unlock()
	if p != nil {
		p.resolve(ExitStatus{Code: code})
	}
}

func (r *fakeRunner) spawnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawns
}

func (r *fakeRunner) sentLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *fakeRunner) sentSignals() []syscall.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]syscall.Signal(nil), r.signals...)
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Report(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) kinds() []NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recorder) count(kind NoticeKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

var epoch0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newSimMachine() (*Machine, *FakeClock) {
	clock := NewFakeClock(epoch0)
	m := NewMachine(MachineConfig{Clock: clock, Endpoint: "play.darkmc.test"})
	return m, clock
}

func newRealMachine(autoRestart bool, max int) (*Machine, *FakeClock, *fakeRunner) {
	clock := NewFakeClock(epoch0)
	runner := &fakeRunner{}
	m := NewMachine(MachineConfig{
		Runner:         runner,
		Clock:          clock,
		Endpoint:       "play.darkmc.test",
		AutoRestart:    autoRestart,
		AutoRestartMax: max,
	})
	return m, clock, runner
}

func waitState(t *testing.T, m *Machine, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Status().State == want },
		2*time.Second, 5*time.Millisecond, "state never became %s (is %s)", want, m.Status().State)
}

// --- Simulation mode ---

func TestSimulatedStart(t *testing.T) {
	m, clock := newSimMachine()
	rec := &recorder{}

	require.NoError(t, m.Start(rec))
	assert.Equal(t, StateStarting, m.Status().State)

	clock.Advance(9 * time.Second)
	assert.Equal(t, StateStarting, m.Status().State)

	clock.Advance(time.Second)
	assert.Equal(t, StateStarted, m.Status().State)
	assert.Equal(t, []NoticeKind{NoticeStarting, NoticeSimulatedStarted}, rec.kinds())
	assert.Equal(t, "play.darkmc.test", rec.last().Endpoint)
}

func TestStartRejectedWhenStarted(t *testing.T) {
	m, clock := newSimMachine()
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	clock.Advance(10 * time.Second)

	err := m.Start(rec)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateStarted, m.Status().State)

	last := rec.last()
	assert.Equal(t, NoticeRejected, last.Kind)
	assert.Equal(t, OpStart, last.Op)
	assert.Equal(t, StateStarted, last.State)
}

func TestStopAndRestartRejectedWhenStopped(t *testing.T) {
	m, _ := newSimMachine()
	rec := &recorder{}

	assert.ErrorIs(t, m.Stop(rec), ErrInvalidState)
	assert.ErrorIs(t, m.Restart(rec), ErrInvalidState)
	assert.Equal(t, StateStopped, m.Status().State)
	assert.Equal(t, []NoticeKind{NoticeRejected, NoticeRejected}, rec.kinds())
}

func TestStopRejectedWhileStarting(t *testing.T) {
	m, clock := newSimMachine()
	rec := &recorder{}
	require.NoError(t, m.Start(rec))

	assert.ErrorIs(t, m.Stop(rec), ErrInvalidState)
	assert.ErrorIs(t, m.Restart(rec), ErrInvalidState)
	assert.Equal(t, StateStarting, m.Status().State)

	// The in-flight start still completes.
	clock.Advance(10 * time.Second)
	assert.Equal(t, StateStarted, m.Status().State)
}

func TestSimulatedStop(t *testing.T) {
	m, clock := newSimMachine()
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	clock.Advance(10 * time.Second)

	require.NoError(t, m.Stop(rec))
	assert.Equal(t, StateStopping, m.Status().State)
	assert.ErrorIs(t, m.Stop(rec), ErrInvalidState)

	clock.Advance(8 * time.Second)
	assert.Equal(t, StateStopped, m.Status().State)
	assert.Equal(t, NoticeStopped, rec.last().Kind)
}

func TestSimulatedRestart(t *testing.T) {
	m, clock := newSimMachine()
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	clock.Advance(10 * time.Second)

	require.NoError(t, m.Restart(rec))
	assert.Equal(t, StateRestarting, m.Status().State)

	clock.Advance(8 * time.Second)
	assert.Equal(t, StateStarting, m.Status().State)
	assert.Equal(t, NoticeRebooting, rec.last().Kind)

	clock.Advance(10 * time.Second)
	assert.Equal(t, StateStarted, m.Status().State)
	assert.Equal(t, NoticeRestarted, rec.last().Kind)
	assert.Zero(t, clock.Pending())
}

func TestRejectedOperationsNeverChangeState(t *testing.T) {
	m, clock := newSimMachine()
	rec := &recorder{}
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		before := m.Status().State
		var err error
		switch rng.IntN(4) {
		case 0:
			err = m.Start(rec)
		case 1:
			err = m.Stop(rec)
		case 2:
			err = m.Restart(rec)
		default:
			clock.Advance(time.Duration(rng.IntN(12)) * time.Second)
			continue
		}
		after := m.Status().State
		if errors.Is(err, ErrInvalidState) {
			require.Equal(t, before, after, "rejected op %d changed state", i)
		}
		require.Contains(t, allStates, after)
	}
}

// --- Real process mode ---

const readyLine = "[12:00:01 INFO]: Done (4.213s)! For help, type \"help\"\n"

func TestReadyMarkerStartsOnce(t *testing.T) {
	m, clock, runner := newRealMachine(false, 0)
	rec := &recorder{}

	require.NoError(t, m.Start(rec))
	assert.Equal(t, 1, runner.spawnCount())
	assert.Equal(t, StateStarting, m.Status().State)

	m.HandleOutput("run-1", StreamStdout, "[12:00:00 INFO]: Preparing level \"world\"\n")
	assert.Equal(t, StateStarting, m.Status().State)

	m.HandleOutput("run-1", StreamStdout, readyLine)
	m.HandleOutput("run-1", StreamStdout, readyLine)
	assert.Equal(t, StateStarted, m.Status().State)
	assert.Equal(t, 1, rec.count(NoticeStarted))

	clock.Advance(time.Minute)
	assert.Zero(t, rec.count(NoticeStartedFallback))
}

func TestReadyMarkerIgnoresStaleRunAndStderr(t *testing.T) {
	m, _, _ := newRealMachine(false, 0)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))

	m.HandleOutput("run-0", StreamStdout, readyLine)
	m.HandleOutput("run-1", StreamStderr, readyLine)
	assert.Equal(t, StateStarting, m.Status().State)
}

func TestStartFallback(t *testing.T) {
	m, clock, _ := newRealMachine(false, 0)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))

	clock.Advance(59 * time.Second)
	assert.Equal(t, StateStarting, m.Status().State)
	clock.Advance(time.Second)
	assert.Equal(t, StateStarted, m.Status().State)
	assert.Equal(t, NoticeStartedFallback, rec.last().Kind)
}

func TestSpawnFailure(t *testing.T) {
	m, _, runner := newRealMachine(false, 0)
	runner.spawnErr = errors.New("exec: \"java\": executable file not found in $PATH")
	rec := &recorder{}

	err := m.Start(rec)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, StateStopped, m.Status().State)
	assert.Equal(t, []NoticeKind{NoticeStarting, NoticeSpawnFailed}, rec.kinds())
	assert.Error(t, rec.last().Err)
}

func TestManualStop(t *testing.T) {
	m, _, runner := newRealMachine(true, 0)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	m.HandleOutput("run-1", StreamStdout, readyLine)

	require.NoError(t, m.Stop(rec))
	assert.Equal(t, []string{"stop"}, runner.sentLines())
	assert.Equal(t, StateStopping, m.Status().State)

	runner.exit(0)
	waitState(t, m, StateStopped)
	require.Eventually(t, func() bool { return rec.count(NoticeStopped) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, rec.count(NoticeCrashed))
	assert.Zero(t, rec.count(NoticeAutoRestart))
}

func TestStopForceKillsAfterGrace(t *testing.T) {
	m, clock, runner := newRealMachine(false, 0)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	m.HandleOutput("run-1", StreamStdout, readyLine)
	require.NoError(t, m.Stop(rec))

	clock.Advance(14 * time.Second)
	assert.Empty(t, runner.sentSignals())
	clock.Advance(time.Second)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, runner.sentSignals())
}

func TestCrashWithoutAutoRestart(t *testing.T) {
	m, clock, runner := newRealMachine(false, 0)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	m.HandleOutput("run-1", StreamStdout, readyLine)

	runner.exit(1)
	waitState(t, m, StateStopped)
	require.Eventually(t, func() bool { return rec.count(NoticeCrashed) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.last().Exit.Code)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, runner.spawnCount())
	assert.Equal(t, StateStopped, m.Status().State)
}

func TestCrashWithAutoRestart(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := NewFakeClock(epoch0)
	runner := &fakeRunner{}
	m := NewMachine(MachineConfig{
		Runner:      runner,
		Clock:       clock,
		AutoRestart: true,
		Metrics:     NewMetrics(reg),
	})
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	m.HandleOutput("run-1", StreamStdout, readyLine)

	runner.exit(137)
	waitState(t, m, StateStarting)
	require.Eventually(t, func() bool { return rec.count(NoticeAutoRestart) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count(NoticeCrashed))
	assert.Equal(t, 5*time.Second, rec.last().Delay)

	clock.Advance(4 * time.Second)
	assert.Equal(t, 1, runner.spawnCount())
	clock.Advance(time.Second)
	assert.Equal(t, 2, runner.spawnCount())

	m.HandleOutput("run-2", StreamStdout, readyLine)
	assert.Equal(t, StateStarted, m.Status().State)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Crashes))
}

func TestAutoRestartBudget(t *testing.T) {
	m, clock, runner := newRealMachine(true, 1)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))

	// Still starting when it crashes, so wait on the notice rather than the state.
	runner.exit(1)
	require.Eventually(t, func() bool { return rec.count(NoticeAutoRestart) == 1 }, time.Second, 5*time.Millisecond)
	clock.Advance(5 * time.Second)
	require.Equal(t, 2, runner.spawnCount())

	runner.exit(1)
	waitState(t, m, StateStopped)
	require.Eventually(t, func() bool { return rec.count(NoticeAutoRestartExhausted) == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Minute)
	assert.Equal(t, 2, runner.spawnCount())
}

func TestManualStartResetsAutoRestartBudget(t *testing.T) {
	m, clock, runner := newRealMachine(true, 1)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))

	runner.exit(1)
	require.Eventually(t, func() bool { return rec.count(NoticeAutoRestart) == 1 }, time.Second, 5*time.Millisecond)
	clock.Advance(5 * time.Second)
	runner.exit(1)
	require.Eventually(t, func() bool { return rec.count(NoticeAutoRestartExhausted) == 1 }, time.Second, 5*time.Millisecond)
	waitState(t, m, StateStopped)

	require.NoError(t, m.Start(rec))
	require.Equal(t, 3, runner.spawnCount())

	runner.exit(1)
	require.Eventually(t, func() bool { return rec.count(NoticeAutoRestart) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count(NoticeAutoRestartExhausted))

	clock.Advance(5 * time.Second)
	assert.Equal(t, 4, runner.spawnCount())
	assert.Equal(t, StateStarting, m.Status().State)
}

func TestRestartWaitsForExitEvent(t *testing.T) {
	m, clock, runner := newRealMachine(false, 0)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	m.HandleOutput("run-1", StreamStdout, readyLine)

	require.NoError(t, m.Restart(rec))
	assert.Equal(t, []string{"stop"}, runner.sentLines())
	assert.Equal(t, StateRestarting, m.Status().State)

	// The old process can still print the marker while shutting down.
	m.HandleOutput("run-1", StreamStdout, readyLine)
	assert.Equal(t, StateRestarting, m.Status().State)

	clock.Advance(10 * time.Second)
	assert.Equal(t, 1, runner.spawnCount())

	runner.exit(0)
	waitState(t, m, StateStarting)
	require.Eventually(t, func() bool { return rec.count(NoticeRebooting) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, rec.count(NoticeCrashed))

	clock.Advance(3 * time.Second)
	assert.Equal(t, 2, runner.spawnCount())

	m.HandleOutput("run-2", StreamStdout, readyLine)
	assert.Equal(t, StateStarted, m.Status().State)
	assert.Empty(t, runner.sentSignals())
}

func TestRestartSafetyKill(t *testing.T) {
	m, clock, runner := newRealMachine(false, 0)
	rec := &recorder{}
	require.NoError(t, m.Start(rec))
	m.HandleOutput("run-1", StreamStdout, readyLine)
	require.NoError(t, m.Restart(rec))

	clock.Advance(20 * time.Second)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, runner.sentSignals())
}

func TestOutputReachesConsole(t *testing.T) {
	clock := NewFakeClock(epoch0)
	var got []string
	console := consoleFunc(func(stream Stream, text string) { got = append(got, stream.String()+":"+text) })
	m := NewMachine(MachineConfig{Runner: &fakeRunner{}, Clock: clock, Console: console})

	m.HandleOutput("run-1", StreamStdout, "hello\n")
	m.HandleOutput("run-1", StreamStderr, "oops\n")
	assert.Equal(t, []string{"stdout:hello\n", "stderr:oops\n"}, got)
}

type consoleFunc func(stream Stream, text string)

func (f consoleFunc) Write(stream Stream, text string) { f(stream, text) }

func TestIsReadyLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"[Server thread/INFO]: Done (12.5s)! For help, type \"help\"", true},
		{"for help, type \"help\" or \"?\"", true},
		{"FOR HELP, TYPE \"HELP\"", true},
		{"Loading libraries, please wait...", false},
		{"done loading", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsReadyLine(tt.line), tt.line)
	}
}
