package domain

import (
	"regexp"
	"sync"
	"time"
)

const maxIDLength = 64

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Room is a named signaling session between one host and its joiners.
// Every mailbox slot (joiner offer, answer, directed peer signal) holds at
// most one pending value; a new write overwrites an unconsumed one.
type Room struct {
	Mutex          sync.RWMutex
	ID             string
	HostPeerID     string
	Offer          *SessionDescription
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	Peers          map[string]*Peer
	PendingJoiners map[string]struct{}
	JoinerOffers   map[string]*SessionDescription
	Answers        map[string]*SessionDescription
	PeerSignals    map[SignalEdge]*Signal
}

// Peer is one participant known to a room. ConnectedTo is the peer's
// self-reported set of direct mesh connections.
type Peer struct {
	ID          string
	IsHost      bool
	ConnectedTo map[string]struct{}
	LastSeen    time.Time
}

// SignalEdge keys a queued signal by its ordered (sender, recipient) pair.
type SignalEdge struct {
	From string
	To   string
}

// NewRoom constructs an empty room expiring after lifetime.
func NewRoom(id string, hostPeerID string, lifetime time.Duration) *Room {
	now := time.Now().UTC()
	return &Room{
		ID:             id,
		HostPeerID:     hostPeerID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(lifetime),
		LastActivityAt: now,
		Peers:          make(map[string]*Peer),
		PendingJoiners: make(map[string]struct{}),
		JoinerOffers:   make(map[string]*SessionDescription),
		Answers:        make(map[string]*SessionDescription),
		PeerSignals:    make(map[SignalEdge]*Signal),
	}
}

func NewPeer(id string, isHost bool) *Peer {
	return &Peer{
		ID:          id,
		IsHost:      isHost,
		ConnectedTo: make(map[string]struct{}),
		LastSeen:    time.Now().UTC(),
	}
}

// IsExpired reports whether the room is no longer valid. It takes the room
// mutex itself; callers must not hold it.
func (r *Room) IsExpired() bool {
	if r == nil {
		return true
	}
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()
	return time.Now().UTC().After(r.ExpiresAt)
}

// Touch refreshes activity and pushes expiry out to now+lifetime.
// Callers must hold the room mutex.
func (r *Room) Touch(lifetime time.Duration) {
	now := time.Now().UTC()
	r.LastActivityAt = now
	r.ExpiresAt = now.Add(lifetime)
}

// EnsurePeer returns the peer with the given id, creating a bare entry if
// absent. Callers must hold the room mutex.
func (r *Room) EnsurePeer(id string, isHost bool) *Peer {
	if peer, ok := r.Peers[id]; ok {
		if isHost {
			peer.IsHost = true
		}
		return peer
	}
	peer := NewPeer(id, isHost)
	r.Peers[id] = peer
	return peer
}

// ValidID reports whether s is usable as a room or peer identifier:
// non-empty, URL-safe (alphanumeric, hyphen, underscore) and bounded.
func ValidID(s string) bool {
	if s == "" || len(s) > maxIDLength {
		return false
	}
	return idPattern.MatchString(s)
}
