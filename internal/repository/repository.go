package repository

import (
	"errors"
	"time"

	"github.com/meshdrop/meshdrop/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomStats is an aggregate snapshot of the store for observability.
type RoomStats struct {
	ActiveRooms   int           `json:"active_rooms"`
	TotalPeers    int           `json:"total_peers"`
	OldestRoomAge time.Duration `json:"oldest_room_age"`
	NewestRoomAge time.Duration `json:"newest_room_age"`
}

// RoomStore is the authoritative keyed table of rooms with TTL expiry.
// A single in-process implementation backs the whole signaling service;
// a multi-instance deployment would swap in a shared store behind this
// interface with the same read/overwrite/TTL contract.
type RoomStore interface {
	// Ensure creates an offer-less room if absent and returns it; an
	// existing room is returned unchanged.
	Ensure(roomID string, hostPeerID string) *domain.Room

	// Exists reports whether a non-expired room is present.
	Exists(roomID string) bool

	// Get returns the room, treating expired rooms as absent and purging
	// them on the way out.
	Get(roomID string) (*domain.Room, error)

	// SetOffer creates the room if absent, else overwrites its offer and
	// host and resets expiry. Never fails.
	SetOffer(roomID string, offer domain.SessionDescription, hostPeerID string) *domain.Room

	// TTL is the room lifetime applied on creation and activity refresh.
	TTL() time.Duration

	// Stats sweeps expired rooms and returns aggregate counts.
	Stats() RoomStats

	// Sweep purges expired rooms and returns how many were removed.
	Sweep() int
}
