package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meshdrop/meshdrop/lib/logger/sl"
)

// RelayController forwards a request to another device's own API on the
// local network. A timeout is a distinct failure from a non-2xx answer, so
// callers can tell a silent device from a refusing one.
type RelayController struct {
	client  *http.Client
	timeout time.Duration
	log     *slog.Logger
}

func NewRelayController(timeout time.Duration, log *slog.Logger) *RelayController {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RelayController{
		client:  &http.Client{},
		timeout: timeout,
		log:     log,
	}
}

// Forward handles POST /api/relay.
func (c *RelayController) Forward(ctx *gin.Context) {
	type RelayRequest struct {
		TargetURL string          `json:"targetUrl" binding:"required"`
		Payload   json.RawMessage `json:"payload" binding:"required"`
	}
	var req RelayRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	target, err := url.Parse(req.TargetURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "targetUrl must be an absolute http(s) URL"})
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target.String(), bytes.NewReader(req.Payload))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() != nil {
			ctx.JSON(http.StatusGatewayTimeout, gin.H{"error": "relay timeout"})
			return
		}
		c.log.Warn("relay request failed", slog.String("target", target.Host), sl.Err(err))
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "relay failed"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "relay target rejected request", "status": resp.StatusCode})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "status": resp.StatusCode})
}
