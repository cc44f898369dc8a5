// Package peerconn owns the direct connections to other peers and layers
// bounded-attempt reconnection on top of them. Transport failures feed a
// per-peer state machine; observers receive typed lifecycle events.
package peerconn

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

type EventType string

const (
	EventReconnecting     EventType = "reconnecting"
	EventReconnectSuccess EventType = "reconnectSuccess"
	EventReconnectFailed  EventType = "reconnectFailed"
)

// Event describes one transition of a peer's reconnection state machine.
type Event struct {
	Type    EventType
	PeerID  string
	Attempt int
	Reason  string
}

// ConnectFunc re-establishes the transport to a peer. It blocks until the
// connection is live or ctx is done.
type ConnectFunc func(ctx context.Context, peerID string) error

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
}

// episode is one reconnection cycle for one peer. Its terminal event fires
// exactly once even when several transport signals race.
type episode struct {
	cancel   context.CancelFunc
	terminal bool
}

type peerState struct {
	state   State
	episode *episode
}

type Manager struct {
	mu      sync.Mutex
	peers   map[string]*peerState
	subs    []chan Event
	closed  bool
	connect ConnectFunc
	opts    Options
	log     *slog.Logger
}

func NewManager(connect ConnectFunc, opts Options, log *slog.Logger) *Manager {
	opts.setDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		peers:   make(map[string]*peerState),
		connect: connect,
		opts:    opts,
		log:     log,
	}
}

// Subscribe registers an observer. Events are delivered best-effort: a
// subscriber that stops draining loses events rather than blocking the
// state machine.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// MarkConnected records a live transport for the peer, resetting any
// previous failure state.
func (m *Manager) MarkConnected(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps := m.peerLocked(peerID)
	if ps.episode != nil {
		ps.episode.cancel()
		ps.episode = nil
	}
	ps.state = StateConnected
}

// PeerState returns the current state of the peer's machine.
func (m *Manager) PeerState(peerID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.peers[peerID]
	if !ok {
		return ""
	}
	return ps.state
}

// HandleDisconnect reacts to a transport drop. Duplicate notifications for
// the same drop (ICE failure plus data-channel close) collapse into one
// reconnection episode; a peer already in terminal failure stays there
// until Retry.
func (m *Manager) HandleDisconnect(peerID string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	ps := m.peerLocked(peerID)
	switch ps.state {
	case StateReconnecting, StateFailed:
		return
	}

	m.startEpisodeLocked(peerID, ps, reason)
}

// Retry restarts the machine for a peer whose last episode ended in
// terminal failure.
func (m *Manager) Retry(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	ps := m.peerLocked(peerID)
	if ps.state != StateFailed {
		return
	}

	m.startEpisodeLocked(peerID, ps, "manual retry")
}

// Close cancels all in-flight episodes and closes subscriber channels.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	for _, ps := range m.peers {
		if ps.episode != nil {
			ps.episode.cancel()
			ps.episode = nil
		}
	}
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}

func (m *Manager) peerLocked(peerID string) *peerState {
	ps, ok := m.peers[peerID]
	if !ok {
		ps = &peerState{state: StateConnected}
		m.peers[peerID] = ps
	}
	return ps
}

func (m *Manager) startEpisodeLocked(peerID string, ps *peerState, reason string) {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &episode{cancel: cancel}
	ps.state = StateReconnecting
	ps.episode = ep

	m.log.Info("reconnect started",
		slog.String("peer_id", peerID),
		slog.String("reason", reason),
	)

	go m.run(ctx, peerID, ep, reason)
}

func (m *Manager) run(ctx context.Context, peerID string, ep *episode, reason string) {
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		m.emit(Event{Type: EventReconnecting, PeerID: peerID, Attempt: attempt, Reason: reason})

		select {
		case <-time.After(m.backoff(attempt)):
		case <-ctx.Done():
			return
		}

		err := m.connect(ctx, peerID)
		if err == nil {
			if m.settle(peerID, ep, StateConnected) {
				m.emit(Event{Type: EventReconnectSuccess, PeerID: peerID, Attempt: attempt})
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		reason = err.Error()
	}

	if m.settle(peerID, ep, StateFailed) {
		m.emit(Event{
			Type:    EventReconnectFailed,
			PeerID:  peerID,
			Attempt: m.opts.MaxAttempts,
			Reason:  reason,
		})
	}
}

// settle records the episode outcome. It reports false when the episode
// was already terminal or superseded, which suppresses the event.
func (m *Manager) settle(peerID string, ep *episode, outcome State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ep.terminal {
		return false
	}
	ep.terminal = true

	ps, ok := m.peers[peerID]
	if !ok || ps.episode != ep {
		return false
	}
	ps.state = outcome
	ps.episode = nil
	return true
}

func (m *Manager) backoff(attempt int) time.Duration {
	d := m.opts.BaseDelay << (attempt - 1)
	if d > m.opts.MaxDelay || d <= 0 {
		d = m.opts.MaxDelay
	}
	return d
}

// emit delivers under the mutex so Close cannot close a channel between
// snapshot and send. Sends are non-blocking, so the lock is never held up
// by a slow subscriber.
func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
