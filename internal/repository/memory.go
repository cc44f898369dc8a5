package repository

import (
	"sync"
	"time"

	"github.com/meshdrop/meshdrop/internal/domain"
)

// DefaultRoomTTL keeps a room alive long enough for a full handshake retry
// cycle without letting abandoned rooms accumulate.
const DefaultRoomTTL = 30 * time.Minute

type InMemoryRoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
	ttl   time.Duration
}

func NewInMemoryRoomStore(ttl time.Duration) *InMemoryRoomStore {
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	return &InMemoryRoomStore{
		rooms: make(map[string]*domain.Room),
		ttl:   ttl,
	}
}

func (s *InMemoryRoomStore) TTL() time.Duration {
	return s.ttl
}

func (s *InMemoryRoomStore) Ensure(roomID string, hostPeerID string) *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok && !room.IsExpired() {
		return room
	}

	room := domain.NewRoom(roomID, hostPeerID, s.ttl)
	s.rooms[roomID] = room
	return room
}

func (s *InMemoryRoomStore) Exists(roomID string) bool {
	_, err := s.Get(roomID)
	return err == nil
}

func (s *InMemoryRoomStore) Get(roomID string) (*domain.Room, error) {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrRoomNotFound
	}

	if room.IsExpired() {
		s.mu.Lock()
		// Re-check under the write lock: the slot may have been replaced.
		if current, ok := s.rooms[roomID]; ok && current == room {
			delete(s.rooms, roomID)
		}
		s.mu.Unlock()
		return nil, ErrRoomNotFound
	}

	return room, nil
}

func (s *InMemoryRoomStore) SetOffer(roomID string, offer domain.SessionDescription, hostPeerID string) *domain.Room {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok || room.IsExpired() {
		room = domain.NewRoom(roomID, hostPeerID, s.ttl)
		s.rooms[roomID] = room
	}
	s.mu.Unlock()

	room.Mutex.Lock()
	if room.HostPeerID != "" && room.HostPeerID != hostPeerID {
		if prev, ok := room.Peers[room.HostPeerID]; ok {
			prev.IsHost = false
		}
	}
	room.HostPeerID = hostPeerID
	room.Offer = &offer
	room.EnsurePeer(hostPeerID, true)
	room.Touch(s.ttl)
	room.Mutex.Unlock()

	return room
}

func (s *InMemoryRoomStore) Stats() RoomStats {
	s.Sweep()

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	stats := RoomStats{ActiveRooms: len(s.rooms)}

	for _, room := range s.rooms {
		room.Mutex.RLock()
		stats.TotalPeers += len(room.Peers)
		age := now.Sub(room.CreatedAt)
		room.Mutex.RUnlock()

		if age > stats.OldestRoomAge {
			stats.OldestRoomAge = age
		}
		if stats.NewestRoomAge == 0 || age < stats.NewestRoomAge {
			stats.NewestRoomAge = age
		}
	}

	return stats
}

func (s *InMemoryRoomStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, room := range s.rooms {
		if room.IsExpired() {
			delete(s.rooms, id)
			removed++
		}
	}
	return removed
}
