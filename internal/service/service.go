package service

import (
	"context"
	"time"

	"github.com/meshdrop/meshdrop/internal/domain"
	"github.com/meshdrop/meshdrop/internal/repository"
)

// PendingAnswer pairs a joiner with the answer it submitted for the host.
type PendingAnswer struct {
	PeerID string                    `json:"peerId"`
	Answer domain.SessionDescription `json:"answer"`
}

// RoutedSignal is a queued signal together with its directed edge.
type RoutedSignal struct {
	From   string        `json:"fromPeerId"`
	To     string        `json:"toPeerId"`
	Signal domain.Signal `json:"signal"`
}

// PeerInfo is the externally visible view of a room participant.
type PeerInfo struct {
	PeerID      string    `json:"peerId"`
	IsHost      bool      `json:"isHost"`
	ConnectedTo []string  `json:"connectedTo"`
	LastSeen    time.Time `json:"lastSeen"`
}

// RoomOffer is the host's current offer for a room.
type RoomOffer struct {
	Offer      domain.SessionDescription `json:"offer"`
	HostPeerID string                    `json:"hostPeerId"`
}

// SignalingInteractor is the set of atomic, room-scoped mailbox operations
// the protocol handlers are built on. Operations on an absent or expired
// room fail with repository.ErrRoomNotFound; clear operations are advisory
// and report whether anything was removed instead of failing.
type SignalingInteractor interface {
	CreateRoom(ctx context.Context, roomID string, offer domain.SessionDescription, hostPeerID string) (*domain.Room, error)
	RoomExists(ctx context.Context, roomID string) bool
	RoomOffer(ctx context.Context, roomID string) (*RoomOffer, error)

	RegisterJoiner(ctx context.Context, roomID, joinerPeerID string) error
	PendingJoiners(ctx context.Context, roomID string) ([]string, error)
	JoinerOffer(ctx context.Context, roomID, joinerPeerID string) (*domain.SessionDescription, error)
	IssueJoinerOffer(ctx context.Context, roomID, joinerPeerID string, offer domain.SessionDescription) error
	ClearJoinerOffer(ctx context.Context, roomID, joinerPeerID string) (bool, error)

	SubmitAnswer(ctx context.Context, roomID, joinerPeerID string, answer domain.SessionDescription) error
	PendingAnswers(ctx context.Context, roomID string) ([]PendingAnswer, error)
	ClearAnswer(ctx context.Context, roomID, joinerPeerID string) (bool, error)

	SetPeerSignal(ctx context.Context, roomID, fromPeerID, toPeerID string, sig domain.Signal) error
	PendingSignalsFor(ctx context.Context, roomID, toPeerID string) ([]RoutedSignal, error)
	ClearPeerSignal(ctx context.Context, roomID, fromPeerID, toPeerID string) (bool, error)

	AddPeer(ctx context.Context, roomID, peerID string) error
	UpdatePeerConnections(ctx context.Context, roomID, peerID string, connectedTo []string, isHost bool) error
	ConnectedPeers(ctx context.Context, roomID, excludePeerID string) ([]PeerInfo, string, error)
	Heartbeat(ctx context.Context, roomID, peerID string) (time.Time, error)

	Stats(ctx context.Context) repository.RoomStats
}
