package http

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meshdrop/meshdrop/internal/domain"
)

type device struct {
	DeviceID string    `json:"deviceId"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"lastSeen"`
}

// PresenceController keeps a small local-device table for LAN discovery.
// It is separate state from the room store: devices announce themselves
// periodically and disappear after the announce TTL lapses.
type PresenceController struct {
	mu      sync.Mutex
	devices map[string]*device
	ttl     time.Duration
}

func NewPresenceController(ttl time.Duration) *PresenceController {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PresenceController{
		devices: make(map[string]*device),
		ttl:     ttl,
	}
}

// Announce handles POST /api/presence.
func (c *PresenceController) Announce(ctx *gin.Context) {
	type AnnounceRequest struct {
		DeviceID string `json:"deviceId" binding:"required"`
		Name     string `json:"name"`
	}
	var req AnnounceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if !domain.ValidID(req.DeviceID) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "deviceId must be a URL-safe identifier"})
		return
	}

	c.mu.Lock()
	c.devices[req.DeviceID] = &device{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		LastSeen: time.Now().UTC(),
	}
	c.mu.Unlock()

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// List handles GET /api/presence.
func (c *PresenceController) List(ctx *gin.Context) {
	cutoff := time.Now().UTC().Add(-c.ttl)

	c.mu.Lock()
	devices := make([]device, 0, len(c.devices))
	for id, d := range c.devices {
		if d.LastSeen.Before(cutoff) {
			delete(c.devices, id)
			continue
		}
		devices = append(devices, *d)
	}
	c.mu.Unlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].DeviceID < devices[j].DeviceID })
	ctx.JSON(http.StatusOK, gin.H{"success": true, "devices": devices, "count": len(devices)})
}
