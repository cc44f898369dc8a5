package repository

import (
	"testing"
	"time"

	"github.com/meshdrop/meshdrop/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expireRoom(room *domain.Room) {
	room.Mutex.Lock()
	room.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	room.Mutex.Unlock()
}

func TestSetOfferGetRoundTrip(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)
	offer := domain.SessionDescription{Type: "offer", SDP: "v=0"}

	created := store.SetOffer("abc123", offer, "host1")
	require.NotNil(t, created)
	assert.Equal(t, "host1", created.HostPeerID)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), created.ExpiresAt, time.Second)

	room, err := store.Get("abc123")
	require.NoError(t, err)
	require.NotNil(t, room.Offer)
	assert.Equal(t, offer, *room.Offer)
	assert.Equal(t, "host1", room.HostPeerID)
}

func TestSetOfferOverwritesAndRefreshesExpiry(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)
	store.SetOffer("abc123", domain.SessionDescription{Type: "offer", SDP: "first"}, "host1")

	room := store.SetOffer("abc123", domain.SessionDescription{Type: "offer", SDP: "second"}, "host2")
	assert.Equal(t, "second", room.Offer.SDP)
	assert.Equal(t, "host2", room.HostPeerID)
}

func TestSetOfferDemotesPreviousHost(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)
	store.SetOffer("abc123", domain.SessionDescription{Type: "offer", SDP: "first"}, "host1")
	room := store.SetOffer("abc123", domain.SessionDescription{Type: "offer", SDP: "second"}, "host2")

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	assert.False(t, room.Peers["host1"].IsHost)
	assert.True(t, room.Peers["host2"].IsHost)

	hosts := 0
	for _, peer := range room.Peers {
		if peer.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts)
}

func TestExpiryCheckSafeDuringTouch(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)
	room := store.SetOffer("abc123", domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host1")

	// Heartbeats rewrite ExpiresAt while polls check it; the race detector
	// flags any unguarded read.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			room.Mutex.Lock()
			room.Touch(time.Minute)
			room.Mutex.Unlock()
		}
	}()

	for i := 0; i < 500; i++ {
		store.Exists("abc123")
		if _, err := store.Get("abc123"); err != nil {
			t.Errorf("room vanished mid-touch: %v", err)
			break
		}
		store.Sweep()
	}
	<-done

	assert.True(t, store.Exists("abc123"))
}

func TestExistsFalseForUnknownAndExpired(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)
	assert.False(t, store.Exists("never-created"))

	room := store.SetOffer("abc123", domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host1")
	assert.True(t, store.Exists("abc123"))

	expireRoom(room)
	assert.False(t, store.Exists("abc123"))
}

func TestGetPurgesExpiredRoom(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)
	room := store.SetOffer("abc123", domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host1")

	expireRoom(room)

	_, err := store.Get("abc123")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// A fresh room under the same id starts clean.
	recreated := store.Ensure("abc123", "host2")
	assert.Empty(t, recreated.Peers)
	assert.Equal(t, "host2", recreated.HostPeerID)
}

func TestEnsureIdempotent(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)

	first := store.Ensure("abc123", "host1")
	second := store.Ensure("abc123", "other")
	assert.Same(t, first, second)
	assert.Equal(t, "host1", second.HostPeerID)
	assert.Nil(t, second.Offer)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)
	expired := store.SetOffer("old", domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host1")
	store.SetOffer("fresh", domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host2")

	expireRoom(expired)

	assert.Equal(t, 1, store.Sweep())
	assert.False(t, store.Exists("old"))
	assert.True(t, store.Exists("fresh"))
	assert.Equal(t, 0, store.Sweep())
}

func TestStatsCountsAndSweeps(t *testing.T) {
	store := NewInMemoryRoomStore(time.Minute)
	expired := store.SetOffer("old", domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host1")
	room := store.SetOffer("fresh", domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host2")

	room.Mutex.Lock()
	room.EnsurePeer("joiner1", false)
	room.Mutex.Unlock()

	expireRoom(expired)

	stats := store.Stats()
	assert.Equal(t, 1, stats.ActiveRooms)
	assert.Equal(t, 2, stats.TotalPeers)
	assert.GreaterOrEqual(t, stats.OldestRoomAge, stats.NewestRoomAge)
}
