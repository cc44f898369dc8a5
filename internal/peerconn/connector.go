package peerconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshdrop/meshdrop/internal/domain"
	"github.com/meshdrop/meshdrop/internal/signalclient"
	"github.com/meshdrop/meshdrop/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

const (
	signalPollInterval = 500 * time.Millisecond
	dataChannelLabel   = "meshdrop"
)

var ErrConnectionFailed = errors.New("peer connection failed")

// Connector establishes direct WebRTC connections to room peers, driving
// the offer/answer and ICE exchange through the signaling mailbox. Its
// Dial method satisfies ConnectFunc.
type Connector struct {
	roomID string
	stun   []string
	client *signalclient.Client
	log    *slog.Logger

	mu           sync.Mutex
	conns        map[string]*webrtc.PeerConnection
	onDisconnect func(peerID string, reason string)
}

func NewConnector(roomID string, stunServers []string, client *signalclient.Client, log *slog.Logger) *Connector {
	if log == nil {
		log = slog.Default()
	}
	return &Connector{
		roomID: roomID,
		stun:   stunServers,
		client: client,
		log:    log,
		conns:  make(map[string]*webrtc.PeerConnection),
	}
}

// SetDisconnectHook registers fn to be told when an established connection
// drops. The hook runs on pion callback goroutines and must not block.
func (c *Connector) SetDisconnectHook(fn func(peerID string, reason string)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *Connector) notifyDisconnect(peerID, reason string) {
	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()

	if fn != nil {
		fn(peerID, reason)
	}
}

func (c *Connector) newPeerConnection() (*webrtc.PeerConnection, error) {
	return webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.stun}},
	})
}

// Dial connects to peerID as the offering side: it posts an offer signal,
// trickles local ICE candidates, polls the mailbox for the answer and
// remote candidates, and blocks until the connection is live or ctx ends.
func (c *Connector) Dial(ctx context.Context, peerID string) error {
	pc, err := c.newPeerConnection()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	ordered := true
	if _, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered}); err != nil {
		pc.Close()
		return fmt.Errorf("create data channel: %w", err)
	}

	result := make(chan error, 1)
	var once sync.Once
	var live atomic.Bool

	// The handler stays installed for the life of the connection: before
	// the first Connected it settles the dial result, afterwards it reports
	// transport drops to the disconnect hook.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			live.Store(true)
			once.Do(func() { result <- nil })
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			once.Do(func() { result <- ErrConnectionFailed })
			if live.Swap(false) {
				c.notifyDisconnect(peerID, "connection "+state.String())
			}
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		sig := domain.Signal{Type: domain.SignalTypeCandidate, Candidate: &init}
		if err := c.client.SendSignal(ctx, c.roomID, peerID, sig); err != nil {
			c.log.Debug("candidate send failed", slog.String("peer_id", peerID), sl.Err(err))
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return fmt.Errorf("set local description: %w", err)
	}

	sig := domain.Signal{Type: domain.SignalTypeOffer, SDP: offer.SDP}
	if err := c.client.SendSignal(ctx, c.roomID, peerID, sig); err != nil {
		pc.Close()
		return fmt.Errorf("send offer: %w", err)
	}

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go c.pollSignals(pollCtx, pc, peerID)

	select {
	case err := <-result:
		if err != nil {
			pc.Close()
			return err
		}
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}

	c.track(peerID, pc)
	return nil
}

// pollSignals applies answer and candidate signals addressed to us from
// peerID until ctx is cancelled, clearing each consumed mailbox slot.
func (c *Connector) pollSignals(ctx context.Context, pc *webrtc.PeerConnection, peerID string) {
	ticker := time.NewTicker(signalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		signals, err := c.client.PendingSignals(ctx, c.roomID)
		if err != nil {
			continue
		}

		for _, routed := range signals {
			if routed.From != peerID {
				continue
			}
			if err := c.applySignal(pc, routed.Signal); err != nil {
				c.log.Debug("signal apply failed", slog.String("peer_id", peerID), sl.Err(err))
				continue
			}
			if err := c.client.ClearSignal(ctx, c.roomID, routed.From); err != nil {
				c.log.Debug("signal clear failed", slog.String("peer_id", peerID), sl.Err(err))
			}
		}
	}
}

func (c *Connector) applySignal(pc *webrtc.PeerConnection, sig domain.Signal) error {
	switch sig.Type {
	case domain.SignalTypeAnswer, domain.SignalTypePranswer:
		desc, ok := sig.Description()
		if !ok {
			return domain.ErrEmptySignalBody
		}
		pion, err := desc.ToPion()
		if err != nil {
			return err
		}
		return pc.SetRemoteDescription(pion)
	case domain.SignalTypeCandidate:
		if sig.Candidate == nil {
			return domain.ErrEmptySignalBody
		}
		return pc.AddICECandidate(*sig.Candidate)
	default:
		// Offers from the remote side belong to a fresh negotiation, not
		// this dial; leave them for the answering path.
		return nil
	}
}

func (c *Connector) track(peerID string, pc *webrtc.PeerConnection) {
	c.mu.Lock()
	if old, ok := c.conns[peerID]; ok && old != pc {
		old.Close()
	}
	c.conns[peerID] = pc
	c.mu.Unlock()
}

// Close tears down every tracked connection.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, pc := range c.conns {
		pc.Close()
		delete(c.conns, id)
	}
}
