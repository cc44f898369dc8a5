package signalclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	api "github.com/meshdrop/meshdrop/internal/api/http"
	"github.com/meshdrop/meshdrop/internal/domain"
	"github.com/meshdrop/meshdrop/internal/repository"
	"github.com/meshdrop/meshdrop/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewInMemoryRoomStore(time.Minute)
	svc := service.NewSignalingService(store, nil)
	controller := api.NewSignalingController(svc, nil)
	server := httptest.NewServer(api.SetupRouter(controller, nil, nil))
	t.Cleanup(server.Close)
	return server
}

func TestHostJoinerHandshake(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	host := New(server.URL)
	joiner := New(server.URL)
	require.NotEqual(t, host.PeerID(), joiner.PeerID())

	roomOffer := domain.SessionDescription{Type: "offer", SDP: "v=0 room"}
	expires, err := host.CreateRoom(ctx, "room1", roomOffer)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	exists, err := joiner.RoomExists(ctx, "room1")
	require.NoError(t, err)
	assert.True(t, exists)

	gotOffer, hostID, err := joiner.RoomOffer(ctx, "room1")
	require.NoError(t, err)
	require.NotNil(t, gotOffer)
	assert.Equal(t, roomOffer, *gotOffer)
	assert.Equal(t, host.PeerID(), hostID)

	// Joiner registers, host sees it and issues a dedicated offer.
	require.NoError(t, joiner.Join(ctx, "room1"))

	pending, err := host.PendingJoiners(ctx, "room1")
	require.NoError(t, err)
	require.Equal(t, []string{joiner.PeerID()}, pending)

	perJoiner := domain.SessionDescription{Type: "offer", SDP: "v=0 joiner"}
	require.NoError(t, host.IssueJoinerOffer(ctx, "room1", joiner.PeerID(), perJoiner))

	polled, err := joiner.JoinerOffer(ctx, "room1")
	require.NoError(t, err)
	require.NotNil(t, polled)
	assert.Equal(t, perJoiner, *polled)

	// Joiner answers, host absorbs and clears.
	answer := domain.SessionDescription{Type: "answer", SDP: "v=0 answer"}
	require.NoError(t, joiner.SubmitAnswer(ctx, "room1", answer))
	require.NoError(t, joiner.ClearJoinerOffer(ctx, "room1"))

	answers, err := host.PendingAnswers(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, joiner.PeerID(), answers[0].PeerID)
	assert.Equal(t, answer, answers[0].Answer)

	require.NoError(t, host.ClearAnswer(ctx, "room1", joiner.PeerID()))
	answers, err = host.PendingAnswers(ctx, "room1")
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestPeerSignalExchange(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	a := New(server.URL)
	b := New(server.URL)

	_, err := a.CreateRoom(ctx, "room1", domain.SessionDescription{Type: "offer", SDP: "v=0"})
	require.NoError(t, err)

	sig := domain.Signal{Type: domain.SignalTypeOffer, SDP: "v=0 direct"}
	require.NoError(t, a.SendSignal(ctx, "room1", b.PeerID(), sig))

	signals, err := b.PendingSignals(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, a.PeerID(), signals[0].From)
	assert.Equal(t, sig, signals[0].Signal)

	require.NoError(t, b.ClearSignal(ctx, "room1", a.PeerID()))
	signals, err = b.PendingSignals(ctx, "room1")
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestPeersAndHeartbeat(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	host := New(server.URL)
	joiner := New(server.URL)

	require.NoError(t, host.UpdatePeerConnections(ctx, "room1", nil, true))
	require.NoError(t, joiner.UpdatePeerConnections(ctx, "room1", []string{host.PeerID()}, false))

	peers, hostID, err := joiner.Peers(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, host.PeerID(), hostID)
	require.Len(t, peers, 1)
	assert.Equal(t, host.PeerID(), peers[0].PeerID)
	assert.True(t, peers[0].IsHost)

	require.NoError(t, host.Heartbeat(ctx, "room1"))
}

func TestMissingRoomMapsToErrRoomNotFound(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	client := New(server.URL)

	err := client.Join(ctx, "ghost")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, _, err = client.RoomOffer(ctx, "ghost")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	err = client.Heartbeat(ctx, "ghost")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// Polling reads stay quiet on an absent room.
	offer, err := client.JoinerOffer(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, offer)

	signals, err := client.PendingSignals(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, signals)
}
