package converter

import (
	"time"

	"github.com/meshdrop/meshdrop/internal/domain"
)

type RoomResponse struct {
	RoomID     string    `json:"roomId"`
	HostPeerID string    `json:"hostPeerId"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	PeerCount  int       `json:"peerCount"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()

	return &RoomResponse{
		RoomID:     r.ID,
		HostPeerID: r.HostPeerID,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		PeerCount:  len(r.Peers),
	}
}
