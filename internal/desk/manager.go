// Package desk maintains the live view of desk state over the push channel.
//
// A Manager owns exactly one channel at a time. It requests a full snapshot on
// every successful open, replaces its current Snapshot wholesale on each
// snapshot or desk_update message, and reconnects forever after a fixed delay
// whenever the channel is lost.
package desk

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"

	"deskwatch/internal/common"
)

// State is the lifecycle state of the push channel.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// MetricsInterface defines the metrics the manager reports.
type MetricsInterface interface {
	ReconnectsInc()
	ConnectionOpenSet(open bool)
	SnapshotsInc()
	MalformedInc()
	DroppedSendsInc()
}

type nopMetrics struct{}

func (nopMetrics) ReconnectsInc()         {}
func (nopMetrics) ConnectionOpenSet(bool) {}
func (nopMetrics) SnapshotsInc()          {}
func (nopMetrics) MalformedInc()          {}
func (nopMetrics) DroppedSendsInc()       {}

// Event is published to subscribers on every state or snapshot change.
type Event struct {
	State     State
	Connected bool
	Snapshot  *Snapshot
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	ReconnectDelay time.Duration
	Clock          common.Clock
	Metrics        MetricsInterface
}

// Manager keeps one live push channel open and exposes the latest Snapshot.
type Manager struct {
	url            string
	dialer         Dialer
	clock          common.Clock
	reconnectDelay time.Duration
	metrics        MetricsInterface

	mu       sync.Mutex
	state    State
	conn     Conn
	gen      uint64 // bumped per dial and on teardown; events from older generations are ignored
	timer    clock.Timer
	cancel   context.CancelFunc
	snapshot *Snapshot
	last     Inbound
	subs     map[int]chan Event
	nextSub  int
}

// NewManager creates a manager for url. Nothing is dialed until Connect.
func NewManager(url string, dialer Dialer, opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = common.DefaultReconnectDelay
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Manager{
		url:            url,
		dialer:         dialer,
		clock:          common.OrRealClock(opts.Clock),
		reconnectDelay: opts.ReconnectDelay,
		metrics:        opts.Metrics,
		state:          StateClosed,
		subs:           make(map[int]chan Event),
	}
}

// Connect opens the push channel. It returns immediately; the dial runs in the
// background. Calling it while a channel is open or being dialed is a no-op.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateOpen || m.state == StateConnecting {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setStateLocked(StateConnecting)

	go m.dial(ctx, gen)
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	conn, err := m.dialer.Dial(ctx, m.url)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("url", m.url).Dur("retry_in", m.reconnectDelay).Msg("Desk push channel dial failed")
		m.closeLocked()
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.setStateLocked(StateOpen)
	m.mu.Unlock()

	log.Info().Str("url", m.url).Msg("Desk push channel connected")

	// Pull on connect instead of waiting for the next server push.
	if data, err := json.Marshal(GetSnapshot); err == nil {
		if err := conn.WriteMessage(data); err != nil {
			log.Debug().Err(err).Msg("get_snapshot request failed")
		}
	}

	m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if gen == m.gen && m.state == StateOpen {
				log.Warn().Err(err).Dur("retry_in", m.reconnectDelay).Msg("Desk push channel lost, reconnecting")
				m.closeLocked()
			}
			m.mu.Unlock()
			return
		}

		msg, err := ParseInbound(frame)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(frame)).Msg("Dropping malformed desk message")
			m.metrics.MalformedInc()
			continue
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.last = msg
		if msg.CarriesSnapshot() {
			m.snapshot = &Snapshot{Data: msg.Data, Kind: msg.Kind, ReceivedAt: m.clock.Now()}
			m.metrics.SnapshotsInc()
			m.publishLocked()
		} else {
			log.Debug().Str("type", msg.Type).Msg("Ignoring desk message with unknown type")
		}
		m.mu.Unlock()
	}
}

// closeLocked moves to Closed and arms the single reconnect timer.
func (m *Manager) closeLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.setStateLocked(StateClosed)

	if m.timer != nil {
		return
	}
	gen := m.gen
	m.metrics.ReconnectsInc()
	m.timer = m.clock.AfterFunc(m.reconnectDelay, func() {
		go m.fireReconnect(gen)
	})
}

func (m *Manager) fireReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	log.Info().Str("url", m.url).Msg("Reconnecting desk push channel")
	m.Connect()
}

// Send writes msg as JSON. It is dropped unless the channel is open.
func (m *Manager) Send(msg any) {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		m.metrics.DroppedSendsInc()
		log.Debug().Msg("Push channel not open, dropping outbound message")
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode outbound desk message")
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Debug().Err(err).Msg("Outbound desk message failed")
	}
}

// Teardown cancels any pending reconnect and closes the channel. It is safe to
// call repeatedly; late close events from the old channel are ignored.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.state != StateClosed {
		m.setStateLocked(StateClosed)
	}
}

// Snapshot returns the current snapshot, or nil before the first one arrives.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// State returns the channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the channel is currently usable.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// LastMessage returns the most recently parsed inbound message of any kind.
func (m *Manager) LastMessage() Inbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// ReconnectPending reports whether a reconnect timer is armed.
func (m *Manager) ReconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Subscribe returns a channel holding at most the newest Event. The current
// state is delivered immediately. Call cancel to unsubscribe.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 1)
	m.subs[id] = ch
	ch <- m.eventLocked()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.metrics.ConnectionOpenSet(s == StateOpen)
	m.publishLocked()
}

func (m *Manager) eventLocked() Event {
	return Event{State: m.state, Connected: m.state == StateOpen, Snapshot: m.snapshot}
}

func (m *Manager) publishLocked() {
	ev := m.eventLocked()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			// Replace the unread event with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
