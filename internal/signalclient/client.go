// Package signalclient is the consumer-side HTTP client for the signaling
// mailbox API. Hosts and joiners poll through it; the peer connection
// manager drives its handshake with it.
package signalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meshdrop/meshdrop/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

const defaultRequestTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	peerID  string
}

// New builds a client for the signaling API at baseURL. A fresh peer id is
// generated; it identifies this client in every room it touches.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultRequestTimeout},
		peerID:  uuid.New().String(),
	}
}

// PeerID returns the identifier this client registers under.
func (c *Client) PeerID() string {
	return c.peerID
}

// PendingAnswer mirrors the answer list entries of GET /api/answer.
type PendingAnswer struct {
	PeerID string                    `json:"peerId"`
	Answer domain.SessionDescription `json:"answer"`
}

// RoutedSignal mirrors the signal list entries of GET /api/peer-signal.
type RoutedSignal struct {
	From   string        `json:"fromPeerId"`
	To     string        `json:"toPeerId"`
	Signal domain.Signal `json:"signal"`
}

// PeerInfo mirrors the peer list entries of GET /api/peers.
type PeerInfo struct {
	PeerID      string    `json:"peerId"`
	IsHost      bool      `json:"isHost"`
	ConnectedTo []string  `json:"connectedTo"`
	LastSeen    time.Time `json:"lastSeen"`
}

func (c *Client) CreateRoom(ctx context.Context, roomID string, offer domain.SessionDescription) (time.Time, error) {
	var resp struct {
		ExpiresAt time.Time `json:"expiresAt"`
	}
	body := map[string]any{
		"roomId":     roomID,
		"offer":      offer,
		"hostPeerId": c.peerID,
	}
	if err := c.do(ctx, http.MethodPost, "/api/room", nil, body, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.ExpiresAt, nil
}

func (c *Client) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	err := c.do(ctx, http.MethodGet, "/api/room", url.Values{"roomId": {roomID}}, nil, &resp)
	if err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (c *Client) RoomOffer(ctx context.Context, roomID string) (*domain.SessionDescription, string, error) {
	var resp struct {
		HasOffer   bool                      `json:"hasOffer"`
		Offer      domain.SessionDescription `json:"offer"`
		HostPeerID string                    `json:"hostPeerId"`
	}
	err := c.do(ctx, http.MethodGet, "/api/offer", url.Values{"roomId": {roomID}}, nil, &resp)
	if err != nil {
		return nil, "", err
	}
	if !resp.HasOffer {
		return nil, "", nil
	}
	return &resp.Offer, resp.HostPeerID, nil
}

func (c *Client) Join(ctx context.Context, roomID string) error {
	body := map[string]any{"roomId": roomID, "joinerPeerId": c.peerID}
	return c.do(ctx, http.MethodPost, "/api/join", nil, body, nil)
}

func (c *Client) JoinerOffer(ctx context.Context, roomID string) (*domain.SessionDescription, error) {
	var resp struct {
		HasOffer bool                       `json:"hasOffer"`
		Offer    *domain.SessionDescription `json:"offer"`
	}
	q := url.Values{"roomId": {roomID}, "joinerPeerId": {c.peerID}}
	if err := c.do(ctx, http.MethodGet, "/api/join", q, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.HasOffer {
		return nil, nil
	}
	return resp.Offer, nil
}

func (c *Client) ClearJoinerOffer(ctx context.Context, roomID string) error {
	q := url.Values{"roomId": {roomID}, "joinerPeerId": {c.peerID}}
	return c.do(ctx, http.MethodDelete, "/api/join", q, nil, nil)
}

func (c *Client) PendingJoiners(ctx context.Context, roomID string) ([]string, error) {
	var resp struct {
		PendingJoiners []string `json:"pendingJoiners"`
	}
	err := c.do(ctx, http.MethodGet, "/api/pending", url.Values{"roomId": {roomID}}, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.PendingJoiners, nil
}

func (c *Client) IssueJoinerOffer(ctx context.Context, roomID, joinerPeerID string, offer domain.SessionDescription) error {
	body := map[string]any{
		"roomId":       roomID,
		"joinerPeerId": joinerPeerID,
		"offer":        offer,
	}
	return c.do(ctx, http.MethodPost, "/api/pending", nil, body, nil)
}

func (c *Client) SubmitAnswer(ctx context.Context, roomID string, answer domain.SessionDescription) error {
	body := map[string]any{
		"roomId":       roomID,
		"answer":       answer,
		"joinerPeerId": c.peerID,
	}
	return c.do(ctx, http.MethodPost, "/api/answer", nil, body, nil)
}

func (c *Client) PendingAnswers(ctx context.Context, roomID string) ([]PendingAnswer, error) {
	var resp struct {
		Answers []PendingAnswer `json:"answers"`
	}
	err := c.do(ctx, http.MethodGet, "/api/answer", url.Values{"roomId": {roomID}}, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Answers, nil
}

func (c *Client) ClearAnswer(ctx context.Context, roomID, joinerPeerID string) error {
	q := url.Values{"roomId": {roomID}, "joinerPeerId": {joinerPeerID}}
	return c.do(ctx, http.MethodDelete, "/api/answer", q, nil, nil)
}

func (c *Client) SendSignal(ctx context.Context, roomID, toPeerID string, sig domain.Signal) error {
	body := map[string]any{
		"roomId":     roomID,
		"fromPeerId": c.peerID,
		"toPeerId":   toPeerID,
		"signal":     sig,
	}
	return c.do(ctx, http.MethodPost, "/api/peer-signal", nil, body, nil)
}

func (c *Client) PendingSignals(ctx context.Context, roomID string) ([]RoutedSignal, error) {
	var resp struct {
		Signals []RoutedSignal `json:"signals"`
	}
	q := url.Values{"roomId": {roomID}, "toPeerId": {c.peerID}}
	if err := c.do(ctx, http.MethodGet, "/api/peer-signal", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Signals, nil
}

func (c *Client) ClearSignal(ctx context.Context, roomID, fromPeerID string) error {
	body := map[string]any{
		"roomId":     roomID,
		"fromPeerId": fromPeerID,
		"toPeerId":   c.peerID,
	}
	return c.do(ctx, http.MethodDelete, "/api/peer-signal", nil, body, nil)
}

func (c *Client) UpdatePeerConnections(ctx context.Context, roomID string, connectedTo []string, isHost bool) error {
	body := map[string]any{
		"roomId":      roomID,
		"peerId":      c.peerID,
		"connectedTo": connectedTo,
		"isHost":      isHost,
	}
	return c.do(ctx, http.MethodPost, "/api/peers", nil, body, nil)
}

func (c *Client) Peers(ctx context.Context, roomID string) ([]PeerInfo, string, error) {
	var resp struct {
		Peers      []PeerInfo `json:"peers"`
		HostPeerID string     `json:"hostPeerId"`
	}
	q := url.Values{"roomId": {roomID}, "excludePeerId": {c.peerID}}
	if err := c.do(ctx, http.MethodGet, "/api/peers", q, nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Peers, resp.HostPeerID, nil
}

func (c *Client) Heartbeat(ctx context.Context, roomID string) error {
	body := map[string]any{"roomId": roomID, "peerId": c.peerID}
	return c.do(ctx, http.MethodPost, "/api/heartbeat", nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRoomNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("signaling api: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("signaling api: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
