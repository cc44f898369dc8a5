package peerconn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisconnectHookFeedsManager(t *testing.T) {
	connect := func(ctx context.Context, peerID string) error {
		return errDialFailed
	}
	m := NewManager(connect, fastOptions(2), nil)
	defer m.Close()

	c := NewConnector("room1", nil, nil, nil)
	c.SetDisconnectHook(m.HandleDisconnect)
	m.MarkConnected("peerA")

	// A post-connect transport drop must start a reconnection episode.
	c.notifyDisconnect("peerA", "connection failed")
	waitForState(t, m, "peerA", StateFailed)
	assert.Equal(t, StateFailed, m.PeerState("peerA"))
}

func TestDisconnectWithoutHookIsNoOp(t *testing.T) {
	c := NewConnector("room1", nil, nil, nil)
	c.notifyDisconnect("peerA", "connection failed")
}
