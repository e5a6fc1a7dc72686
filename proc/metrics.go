package proc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported on the keep-alive server. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ServerState     *prometheus.GaugeVec
	Transitions     *prometheus.CounterVec
	Crashes         prometheus.Counter
	ConsoleBytes    prometheus.Counter
	ConsoleMessages prometheus.Counter
	Announcements   *prometheus.CounterVec
	MessagesScored  prometheus.Counter
	LevelUps        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "darkmc",
			Name:      "server_state",
			Help:      "1 for the current lifecycle state of the game server, 0 otherwise.",
		}, []string{"state"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darkmc",
			Name:      "server_transitions_total",
			Help:      "Lifecycle state transitions by target state.",
		}, []string{"state"}),
		Crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darkmc",
			Name:      "server_crashes_total",
			Help:      "Unexpected exits of the game server process.",
		}),
		ConsoleBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darkmc",
			Name:      "console_bytes_total",
			Help:      "Bytes of server output accepted by the console relay.",
		}),
		ConsoleMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darkmc",
			Name:      "console_messages_total",
			Help:      "Console chunks handed to the chat sink.",
		}),
		Announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darkmc",
			Name:      "announcements_total",
			Help:      "Announcement sessions by outcome.",
		}, []string{"outcome"}),
		MessagesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darkmc",
			Name:      "level_messages_total",
			Help:      "Chat messages that awarded XP.",
		}),
		LevelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darkmc",
			Name:      "level_ups_total",
			Help:      "Level-ups awarded.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ServerState, m.Transitions, m.Crashes, m.ConsoleBytes,
			m.ConsoleMessages, m.Announcements, m.MessagesScored, m.LevelUps)
	}
	return m
}

func (m *Metrics) observeState(s State) {
	if m == nil {
		return
	}
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.ServerState.WithLabelValues(st.String()).Set(v)
	}
	m.Transitions.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) crash() {
	if m != nil {
		m.Crashes.Inc()
	}
}

func (m *Metrics) consoleIn(n int) {
	if m != nil {
		m.ConsoleBytes.Add(float64(n))
	}
}

func (m *Metrics) consoleOut() {
	if m != nil {
		m.ConsoleMessages.Inc()
	}
}

func (m *Metrics) announcement(outcome string) {
	if m != nil {
		m.Announcements.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) scored(levelUp bool) {
	if m == nil {
		return
	}
	m.MessagesScored.Inc()
	if levelUp {
		m.LevelUps.Inc()
	}
}
