package service

import (
	"context"
	"testing"
	"time"

	"github.com/meshdrop/meshdrop/internal/domain"
	"github.com/meshdrop/meshdrop/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*SignalingService, *repository.InMemoryRoomStore) {
	t.Helper()
	store := repository.NewInMemoryRoomStore(time.Minute)
	return NewSignalingService(store, nil), store
}

func createRoom(t *testing.T, svc *SignalingService, roomID string) {
	t.Helper()
	_, err := svc.CreateRoom(context.Background(), roomID, domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host1")
	require.NoError(t, err)
}

func TestRoomOfferRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	offer := domain.SessionDescription{Type: "offer", SDP: "v=0 host sdp"}
	_, err := svc.CreateRoom(ctx, "abc123", offer, "host1")
	require.NoError(t, err)

	got, err := svc.RoomOffer(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, offer, got.Offer)
	assert.Equal(t, "host1", got.HostPeerID)
}

func TestRoomOfferMissing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.RoomOffer(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)

	// A room that exists but has no offer yet reads the same way.
	store.Ensure("empty", "host1")
	_, err = svc.RoomOffer(ctx, "empty")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestRegisterJoinerIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createRoom(t, svc, "abc123")

	require.NoError(t, svc.RegisterJoiner(ctx, "abc123", "joiner1"))
	require.NoError(t, svc.RegisterJoiner(ctx, "abc123", "joiner1"))

	joiners, err := svc.PendingJoiners(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, []string{"joiner1"}, joiners)
}

func TestRegisterJoinerMissingRoom(t *testing.T) {
	svc, store := newTestService(t)

	err := svc.RegisterJoiner(context.Background(), "nope", "joiner1")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
	assert.False(t, store.Exists("nope"))
}

func TestIssueJoinerOfferClearsPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createRoom(t, svc, "abc123")
	require.NoError(t, svc.RegisterJoiner(ctx, "abc123", "joiner1"))

	offer := domain.SessionDescription{Type: "offer", SDP: "per-joiner sdp"}
	require.NoError(t, svc.IssueJoinerOffer(ctx, "abc123", "joiner1", offer))

	joiners, err := svc.PendingJoiners(ctx, "abc123")
	require.NoError(t, err)
	assert.Empty(t, joiners)

	got, err := svc.JoinerOffer(ctx, "abc123", "joiner1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, offer, *got)

	// Reading does not consume; clearing does.
	got, err = svc.JoinerOffer(ctx, "abc123", "joiner1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	removed, err := svc.ClearJoinerOffer(ctx, "abc123", "joiner1")
	require.NoError(t, err)
	assert.True(t, removed)

	got, err = svc.JoinerOffer(ctx, "abc123", "joiner1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnswerOverwrite(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createRoom(t, svc, "abc123")

	first := domain.SessionDescription{Type: "answer", SDP: "first"}
	second := domain.SessionDescription{Type: "answer", SDP: "second"}
	require.NoError(t, svc.SubmitAnswer(ctx, "abc123", "joiner1", first))
	require.NoError(t, svc.SubmitAnswer(ctx, "abc123", "joiner1", second))

	answers, err := svc.PendingAnswers(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "joiner1", answers[0].PeerID)
	assert.Equal(t, second, answers[0].Answer)
}

func TestClearAnswerSoftFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createRoom(t, svc, "abc123")

	removed, err := svc.ClearAnswer(ctx, "abc123", "joiner1")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = svc.ClearAnswer(ctx, "missing-room", "joiner1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPeerSignalSlotPerDirectedEdge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createRoom(t, svc, "abc123")

	sig1 := domain.Signal{Type: domain.SignalTypeOffer, SDP: "sig1"}
	sig2 := domain.Signal{Type: domain.SignalTypeOffer, SDP: "sig2"}
	sig3 := domain.Signal{Type: domain.SignalTypeAnswer, SDP: "sig3"}

	require.NoError(t, svc.SetPeerSignal(ctx, "abc123", "peerA", "peerB", sig1))
	require.NoError(t, svc.SetPeerSignal(ctx, "abc123", "peerA", "peerB", sig2))
	require.NoError(t, svc.SetPeerSignal(ctx, "abc123", "peerB", "peerA", sig3))

	forB, err := svc.PendingSignalsFor(ctx, "abc123", "peerB")
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, "peerA", forB[0].From)
	assert.Equal(t, sig2, forB[0].Signal)

	forA, err := svc.PendingSignalsFor(ctx, "abc123", "peerA")
	require.NoError(t, err)
	require.Len(t, forA, 1)
	assert.Equal(t, sig3, forA[0].Signal)

	removed, err := svc.ClearPeerSignal(ctx, "abc123", "peerA", "peerB")
	require.NoError(t, err)
	assert.True(t, removed)

	forB, err = svc.PendingSignalsFor(ctx, "abc123", "peerB")
	require.NoError(t, err)
	assert.Empty(t, forB)
}

func TestMutationsOnMissingRoomFail(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.RegisterJoiner(ctx, "ghost", "j"), repository.ErrRoomNotFound)
	assert.ErrorIs(t, svc.IssueJoinerOffer(ctx, "ghost", "j", domain.SessionDescription{Type: "offer", SDP: "x"}), repository.ErrRoomNotFound)
	assert.ErrorIs(t, svc.SubmitAnswer(ctx, "ghost", "j", domain.SessionDescription{Type: "answer", SDP: "x"}), repository.ErrRoomNotFound)
	assert.ErrorIs(t, svc.SetPeerSignal(ctx, "ghost", "a", "b", domain.Signal{Type: domain.SignalTypeOffer, SDP: "x"}), repository.ErrRoomNotFound)
	assert.ErrorIs(t, svc.AddPeer(ctx, "ghost", "p"), repository.ErrRoomNotFound)
	_, err := svc.Heartbeat(ctx, "ghost", "p")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)

	// None of the failed mutations created the room as a side effect.
	assert.False(t, store.Exists("ghost"))
}

func TestUpdatePeerConnectionsCreatesRoomOnDemand(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	err := svc.UpdatePeerConnections(ctx, "implicit", "host1", []string{"peer2"}, true)
	require.NoError(t, err)
	assert.True(t, store.Exists("implicit"))

	peers, hostID, err := svc.ConnectedPeers(ctx, "implicit", "")
	require.NoError(t, err)
	assert.Equal(t, "host1", hostID)
	require.Len(t, peers, 1)
	assert.True(t, peers[0].IsHost)
	assert.Equal(t, []string{"peer2"}, peers[0].ConnectedTo)
}

func TestCreateRoomReplacesHost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRoom(ctx, "abc123", domain.SessionDescription{Type: "offer", SDP: "first"}, "host1")
	require.NoError(t, err)
	_, err = svc.CreateRoom(ctx, "abc123", domain.SessionDescription{Type: "offer", SDP: "second"}, "host2")
	require.NoError(t, err)

	peers, hostID, err := svc.ConnectedPeers(ctx, "abc123", "")
	require.NoError(t, err)
	assert.Equal(t, "host2", hostID)

	var hosts []string
	for _, p := range peers {
		if p.IsHost {
			hosts = append(hosts, p.PeerID)
		}
	}
	assert.Equal(t, []string{"host2"}, hosts)
}

func TestUpdatePeerConnectionsSingleHost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdatePeerConnections(ctx, "abc123", "peerA", nil, true))
	require.NoError(t, svc.UpdatePeerConnections(ctx, "abc123", "peerB", nil, true))

	peers, hostID, err := svc.ConnectedPeers(ctx, "abc123", "")
	require.NoError(t, err)
	assert.Equal(t, "peerB", hostID)

	var hosts []string
	for _, p := range peers {
		if p.IsHost {
			hosts = append(hosts, p.PeerID)
		}
	}
	assert.Equal(t, []string{"peerB"}, hosts)
}

func TestUpdatePeerConnectionsJoinerFirstLeavesHostUnset(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdatePeerConnections(ctx, "implicit", "joiner1", nil, false))
	assert.True(t, store.Exists("implicit"))

	peers, hostID, err := svc.ConnectedPeers(ctx, "implicit", "")
	require.NoError(t, err)
	assert.Empty(t, hostID)
	require.Len(t, peers, 1)
	assert.False(t, peers[0].IsHost)

	// The room gains its host from the first update that claims the role.
	require.NoError(t, svc.UpdatePeerConnections(ctx, "implicit", "host1", nil, true))
	_, hostID, err = svc.ConnectedPeers(ctx, "implicit", "")
	require.NoError(t, err)
	assert.Equal(t, "host1", hostID)
}

func TestConnectedPeersExcludes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createRoom(t, svc, "abc123")
	require.NoError(t, svc.RegisterJoiner(ctx, "abc123", "joiner1"))
	require.NoError(t, svc.RegisterJoiner(ctx, "abc123", "joiner2"))

	peers, hostID, err := svc.ConnectedPeers(ctx, "abc123", "joiner1")
	require.NoError(t, err)
	assert.Equal(t, "host1", hostID)

	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.PeerID)
	}
	assert.Equal(t, []string{"host1", "joiner2"}, ids)
}

func TestHeartbeatExtendsExpiry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	createRoom(t, svc, "abc123")

	room, err := store.Get("abc123")
	require.NoError(t, err)

	// Pull expiry to the brink; a heartbeat must push it back out.
	room.Mutex.Lock()
	room.ExpiresAt = time.Now().UTC().Add(time.Second)
	room.Mutex.Unlock()

	ts, err := svc.Heartbeat(ctx, "abc123", "host1")
	require.NoError(t, err)
	assert.False(t, ts.IsZero())

	room.Mutex.RLock()
	expiresAt := room.ExpiresAt
	room.Mutex.RUnlock()
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), expiresAt, 2*time.Second)

	// An identical room without the heartbeat expires on schedule.
	other := store.SetOffer("silent", domain.SessionDescription{Type: "offer", SDP: "v=0"}, "host2")
	other.Mutex.Lock()
	other.ExpiresAt = time.Now().UTC().Add(-time.Second)
	other.Mutex.Unlock()
	assert.False(t, svc.RoomExists(ctx, "silent"))
	assert.True(t, svc.RoomExists(ctx, "abc123"))
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createRoom(t, svc, "abc123")
	require.NoError(t, svc.RegisterJoiner(ctx, "abc123", "joiner1"))

	stats := svc.Stats(ctx)
	assert.Equal(t, 1, stats.ActiveRooms)
	assert.Equal(t, 2, stats.TotalPeers)
}
