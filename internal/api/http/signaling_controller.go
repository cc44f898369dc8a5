package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meshdrop/meshdrop/internal/api/http/converter"
	"github.com/meshdrop/meshdrop/internal/domain"
	"github.com/meshdrop/meshdrop/internal/repository"
	"github.com/meshdrop/meshdrop/internal/service"
	"github.com/meshdrop/meshdrop/lib/logger/sl"
)

// SignalingController exposes the polling mailbox protocol: room lifecycle,
// offer/answer exchange, directed peer signals, mesh membership, heartbeats.
type SignalingController struct {
	signaling service.SignalingInteractor
	log       *slog.Logger
}

func NewSignalingController(signaling service.SignalingInteractor, log *slog.Logger) *SignalingController {
	if log == nil {
		log = slog.Default()
	}
	return &SignalingController{
		signaling: signaling,
		log:       log,
	}
}

// CreateRoom handles POST /api/room.
func (c *SignalingController) CreateRoom(ctx *gin.Context) {
	type CreateRoomRequest struct {
		RoomID     string                    `json:"roomId" binding:"required"`
		Offer      domain.SessionDescription `json:"offer" binding:"required"`
		HostPeerID string                    `json:"hostPeerId" binding:"required"`
	}
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if !domain.ValidID(req.RoomID) || !domain.ValidID(req.HostPeerID) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "roomId and hostPeerId must be URL-safe identifiers"})
		return
	}
	if err := req.Offer.Validate("offer"); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid offer: %s", err)})
		return
	}

	room, err := c.signaling.CreateRoom(ctx.Request.Context(), req.RoomID, req.Offer, req.HostPeerID)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	resp := converter.RoomToApi(room)
	ctx.JSON(http.StatusOK, gin.H{
		"success":    true,
		"roomId":     resp.RoomID,
		"hostPeerId": resp.HostPeerID,
		"expiresAt":  resp.ExpiresAt,
	})
}

// GetRoom handles GET /api/room?roomId=...
func (c *SignalingController) GetRoom(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}
	exists := c.signaling.RoomExists(ctx.Request.Context(), roomID)
	ctx.JSON(http.StatusOK, gin.H{"success": true, "exists": exists})
}

// GetOffer handles GET /api/offer?roomId=...
func (c *SignalingController) GetOffer(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}

	offer, err := c.signaling.RoomOffer(ctx.Request.Context(), roomID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "No offer available"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":    true,
		"hasOffer":   true,
		"offer":      offer.Offer,
		"hostPeerId": offer.HostPeerID,
	})
}

// Join handles POST /api/join.
func (c *SignalingController) Join(ctx *gin.Context) {
	type JoinRequest struct {
		RoomID       string `json:"roomId" binding:"required"`
		JoinerPeerID string `json:"joinerPeerId" binding:"required"`
	}
	var req JoinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if !domain.ValidID(req.RoomID) || !domain.ValidID(req.JoinerPeerID) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "roomId and joinerPeerId must be URL-safe identifiers"})
		return
	}

	if err := c.signaling.RegisterJoiner(ctx.Request.Context(), req.RoomID, req.JoinerPeerID); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// GetJoinerOffer handles GET /api/join?roomId=...&joinerPeerId=...
func (c *SignalingController) GetJoinerOffer(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}
	joinerID, ok := c.queryID(ctx, "joinerPeerId")
	if !ok {
		return
	}

	offer, err := c.signaling.JoinerOffer(ctx.Request.Context(), roomID, joinerID)
	if err != nil || offer == nil {
		// Absent room and no pending offer look the same to a polling
		// joiner: keep polling or give up on its own schedule.
		ctx.JSON(http.StatusOK, gin.H{"success": true, "hasOffer": false})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "hasOffer": true, "offer": offer})
}

// ClearJoinerOffer handles DELETE /api/join?roomId=...&joinerPeerId=...
func (c *SignalingController) ClearJoinerOffer(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}
	joinerID, ok := c.queryID(ctx, "joinerPeerId")
	if !ok {
		return
	}

	removed, _ := c.signaling.ClearJoinerOffer(ctx.Request.Context(), roomID, joinerID)
	ctx.JSON(http.StatusOK, gin.H{"success": removed})
}

// GetPendingJoiners handles GET /api/pending?roomId=...
func (c *SignalingController) GetPendingJoiners(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}

	joiners, err := c.signaling.PendingJoiners(ctx.Request.Context(), roomID)
	if err != nil {
		joiners = []string{}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":        true,
		"pendingJoiners": joiners,
		"count":          len(joiners),
	})
}

// IssueJoinerOffer handles POST /api/pending.
func (c *SignalingController) IssueJoinerOffer(ctx *gin.Context) {
	type IssueOfferRequest struct {
		RoomID       string                    `json:"roomId" binding:"required"`
		JoinerPeerID string                    `json:"joinerPeerId" binding:"required"`
		Offer        domain.SessionDescription `json:"offer" binding:"required"`
	}
	var req IssueOfferRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := req.Offer.Validate("offer"); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid offer: %s", err)})
		return
	}

	if err := c.signaling.IssueJoinerOffer(ctx.Request.Context(), req.RoomID, req.JoinerPeerID, req.Offer); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// SubmitAnswer handles POST /api/answer.
func (c *SignalingController) SubmitAnswer(ctx *gin.Context) {
	type SubmitAnswerRequest struct {
		RoomID       string                    `json:"roomId" binding:"required"`
		Answer       domain.SessionDescription `json:"answer" binding:"required"`
		JoinerPeerID string                    `json:"joinerPeerId" binding:"required"`
	}
	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := req.Answer.Validate("answer"); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid answer: %s", err)})
		return
	}

	if err := c.signaling.SubmitAnswer(ctx.Request.Context(), req.RoomID, req.JoinerPeerID, req.Answer); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// GetPendingAnswers handles GET /api/answer?roomId=...
func (c *SignalingController) GetPendingAnswers(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}

	answers, err := c.signaling.PendingAnswers(ctx.Request.Context(), roomID)
	if err != nil {
		answers = []service.PendingAnswer{}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"answers": answers,
		"count":   len(answers),
	})
}

// ClearAnswer handles DELETE /api/answer?roomId=...&joinerPeerId=...
func (c *SignalingController) ClearAnswer(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}
	joinerID, ok := c.queryID(ctx, "joinerPeerId")
	if !ok {
		return
	}

	removed, _ := c.signaling.ClearAnswer(ctx.Request.Context(), roomID, joinerID)
	ctx.JSON(http.StatusOK, gin.H{"success": removed})
}

// SetPeerSignal handles POST /api/peer-signal.
func (c *SignalingController) SetPeerSignal(ctx *gin.Context) {
	type PeerSignalRequest struct {
		RoomID     string        `json:"roomId" binding:"required"`
		FromPeerID string        `json:"fromPeerId" binding:"required"`
		ToPeerID   string        `json:"toPeerId" binding:"required"`
		Signal     domain.Signal `json:"signal" binding:"required"`
	}
	var req PeerSignalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := req.Signal.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid signal: %s", err)})
		return
	}

	if err := c.signaling.SetPeerSignal(ctx.Request.Context(), req.RoomID, req.FromPeerID, req.ToPeerID, req.Signal); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// GetPeerSignals handles GET /api/peer-signal?roomId=...&toPeerId=...
func (c *SignalingController) GetPeerSignals(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}
	toPeerID, ok := c.queryID(ctx, "toPeerId")
	if !ok {
		return
	}

	signals, err := c.signaling.PendingSignalsFor(ctx.Request.Context(), roomID, toPeerID)
	if err != nil {
		signals = []service.RoutedSignal{}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"signals": signals,
		"count":   len(signals),
	})
}

// ClearPeerSignal handles DELETE /api/peer-signal.
func (c *SignalingController) ClearPeerSignal(ctx *gin.Context) {
	type ClearSignalRequest struct {
		RoomID     string `json:"roomId" binding:"required"`
		FromPeerID string `json:"fromPeerId" binding:"required"`
		ToPeerID   string `json:"toPeerId" binding:"required"`
	}
	var req ClearSignalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	removed, _ := c.signaling.ClearPeerSignal(ctx.Request.Context(), req.RoomID, req.FromPeerID, req.ToPeerID)
	ctx.JSON(http.StatusOK, gin.H{"success": removed})
}

// GetPeers handles GET /api/peers?roomId=...[&excludePeerId=...]
func (c *SignalingController) GetPeers(ctx *gin.Context) {
	roomID, ok := c.queryID(ctx, "roomId")
	if !ok {
		return
	}
	exclude := ctx.Query("excludePeerId")

	peers, hostPeerID, err := c.signaling.ConnectedPeers(ctx.Request.Context(), roomID, exclude)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":    true,
		"peers":      peers,
		"hostPeerId": hostPeerID,
		"peerCount":  len(peers),
	})
}

// UpdatePeers handles POST /api/peers.
func (c *SignalingController) UpdatePeers(ctx *gin.Context) {
	type UpdatePeersRequest struct {
		RoomID      string   `json:"roomId" binding:"required"`
		PeerID      string   `json:"peerId" binding:"required"`
		ConnectedTo []string `json:"connectedTo"`
		IsHost      bool     `json:"isHost"`
	}
	var req UpdatePeersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if !domain.ValidID(req.RoomID) || !domain.ValidID(req.PeerID) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "roomId and peerId must be URL-safe identifiers"})
		return
	}

	err := c.signaling.UpdatePeerConnections(ctx.Request.Context(), req.RoomID, req.PeerID, req.ConnectedTo, req.IsHost)
	if err != nil {
		c.log.Error("peer connections update failed", sl.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// Heartbeat handles POST /api/heartbeat.
func (c *SignalingController) Heartbeat(ctx *gin.Context) {
	type HeartbeatRequest struct {
		RoomID string `json:"roomId" binding:"required"`
		PeerID string `json:"peerId" binding:"required"`
	}
	var req HeartbeatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	ts, err := c.signaling.Heartbeat(ctx.Request.Context(), req.RoomID, req.PeerID)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "timestamp": ts})
}

// GetStats handles GET /api/stats.
func (c *SignalingController) GetStats(ctx *gin.Context) {
	stats := c.signaling.Stats(ctx.Request.Context())
	ctx.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// queryID extracts a required identifier query parameter, answering 400 on
// a missing or malformed value.
func (c *SignalingController) queryID(ctx *gin.Context, name string) (string, bool) {
	v := ctx.Query(name)
	if v == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": name + " is required"})
		return "", false
	}
	if !domain.ValidID(v) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return "", false
	}
	return v, true
}

func (c *SignalingController) fail(ctx *gin.Context, err error) {
	if errors.Is(err, repository.ErrRoomNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.log.Error("request failed", sl.Err(err))
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
