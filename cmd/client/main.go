// Command client is the meshdrop reference peer: it hosts or joins a room
// over the signaling API, completes the offer/answer exchange, reports its
// connection graph, and keeps the room alive with heartbeats.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshdrop/meshdrop/internal/config"
	"github.com/meshdrop/meshdrop/internal/domain"
	"github.com/meshdrop/meshdrop/internal/peerconn"
	"github.com/meshdrop/meshdrop/internal/signalclient"
	"github.com/meshdrop/meshdrop/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

const pollInterval = time.Second

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "signaling server base URL")
	roomID := flag.String("room", "", "room identifier")
	host := flag.Bool("host", false, "create the room instead of joining it")

	cfg := config.MustLoad()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *roomID == "" || !domain.ValidID(*roomID) {
		log.Error("a valid -room identifier is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := signalclient.New(*serverURL)
	connector := peerconn.NewConnector(*roomID, cfg.WebRTC.STUNServers, client, log)
	defer connector.Close()

	manager := peerconn.NewManager(connector.Dial, peerconn.Options{
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		BaseDelay:   cfg.Reconnect.BaseDelay,
		MaxDelay:    cfg.Reconnect.MaxDelay,
	}, log)
	defer manager.Close()

	// Drops on connections the manager re-established feed back into it.
	connector.SetDisconnectHook(manager.HandleDisconnect)

	go logEvents(manager.Subscribe(), log)
	go heartbeatLoop(ctx, client, *roomID, log)

	var err error
	if *host {
		err = runHost(ctx, client, manager, *roomID, cfg.WebRTC.STUNServers, log)
	} else {
		err = runJoiner(ctx, client, manager, *roomID, cfg.WebRTC.STUNServers, log)
	}
	if err != nil && ctx.Err() == nil {
		log.Error("session ended", sl.Err(err))
		os.Exit(1)
	}
}

func runHost(ctx context.Context, client *signalclient.Client, manager *peerconn.Manager, roomID string, stun []string, log *slog.Logger) error {
	pc, offer, err := offerConnection(stun)
	if err != nil {
		return err
	}
	defer pc.Close()

	expires, err := client.CreateRoom(ctx, roomID, offer)
	if err != nil {
		return err
	}
	log.Info("room created", slog.String("room_id", roomID), slog.Time("expires_at", expires))

	if err := client.UpdatePeerConnections(ctx, roomID, nil, true); err != nil {
		return err
	}

	// One offering connection per joiner: poll for registrations, issue a
	// dedicated offer, then absorb the answer when it lands.
	joinerConns := make(map[string]*webrtc.PeerConnection)
	defer func() {
		for _, jpc := range joinerConns {
			jpc.Close()
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		joiners, err := client.PendingJoiners(ctx, roomID)
		if err != nil {
			log.Warn("pending joiners poll failed", sl.Err(err))
			continue
		}
		for _, joiner := range joiners {
			if _, ok := joinerConns[joiner]; ok {
				continue
			}
			jpc, joinerOffer, err := offerConnection(stun)
			if err != nil {
				log.Warn("joiner offer failed", slog.String("joiner", joiner), sl.Err(err))
				continue
			}
			if err := client.IssueJoinerOffer(ctx, roomID, joiner, joinerOffer); err != nil {
				jpc.Close()
				log.Warn("joiner offer post failed", slog.String("joiner", joiner), sl.Err(err))
				continue
			}
			joinerConns[joiner] = jpc
			log.Info("offer issued", slog.String("joiner", joiner))
		}

		answers, err := client.PendingAnswers(ctx, roomID)
		if err != nil {
			log.Warn("answer poll failed", sl.Err(err))
			continue
		}
		for _, pending := range answers {
			jpc, ok := joinerConns[pending.PeerID]
			if !ok {
				continue
			}
			desc, err := pending.Answer.ToPion()
			if err == nil {
				err = jpc.SetRemoteDescription(desc)
			}
			if err != nil {
				log.Warn("answer apply failed", slog.String("joiner", pending.PeerID), sl.Err(err))
				continue
			}
			if err := client.ClearAnswer(ctx, roomID, pending.PeerID); err != nil {
				log.Warn("answer clear failed", slog.String("joiner", pending.PeerID), sl.Err(err))
			}
			watchConnection(jpc, pending.PeerID, manager)
			log.Info("joiner connected", slog.String("joiner", pending.PeerID))
		}
	}
}

func runJoiner(ctx context.Context, client *signalclient.Client, manager *peerconn.Manager, roomID string, stun []string, log *slog.Logger) error {
	if err := client.Join(ctx, roomID); err != nil {
		return err
	}
	log.Info("registered in room", slog.String("room_id", roomID))

	_, hostID, err := client.RoomOffer(ctx, roomID)
	if err != nil {
		log.Warn("host lookup failed", sl.Err(err))
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		offer, err := client.JoinerOffer(ctx, roomID)
		if err != nil {
			log.Warn("offer poll failed", sl.Err(err))
			continue
		}
		if offer == nil {
			continue
		}

		pc, answer, err := answerConnection(stun, *offer)
		if err != nil {
			return err
		}
		defer pc.Close()

		if err := client.SubmitAnswer(ctx, roomID, answer); err != nil {
			return err
		}
		if err := client.ClearJoinerOffer(ctx, roomID); err != nil {
			log.Warn("offer clear failed", sl.Err(err))
		}
		if err := client.UpdatePeerConnections(ctx, roomID, nil, false); err != nil {
			log.Warn("peer update failed", sl.Err(err))
		}
		if hostID != "" {
			watchConnection(pc, hostID, manager)
		}
		log.Info("answer submitted, waiting for connection")

		<-ctx.Done()
		return ctx.Err()
	}
}

// offerConnection builds a peer connection with a data channel and returns
// its fully gathered offer (non-trickle: the SDP carries all candidates).
func offerConnection(stun []string) (*webrtc.PeerConnection, domain.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stun}},
	})
	if err != nil {
		return nil, domain.SessionDescription{}, err
	}

	if _, err := pc.CreateDataChannel("meshdrop", nil); err != nil {
		pc.Close()
		return nil, domain.SessionDescription{}, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, domain.SessionDescription{}, err
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, domain.SessionDescription{}, err
	}
	<-gathered

	return pc, domain.DescriptionFromPion(*pc.LocalDescription()), nil
}

// answerConnection accepts an offer and returns the fully gathered answer.
func answerConnection(stun []string, offer domain.SessionDescription) (*webrtc.PeerConnection, domain.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stun}},
	})
	if err != nil {
		return nil, domain.SessionDescription{}, err
	}

	remote, err := offer.ToPion()
	if err == nil {
		err = pc.SetRemoteDescription(remote)
	}
	if err != nil {
		pc.Close()
		return nil, domain.SessionDescription{}, err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, domain.SessionDescription{}, err
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, domain.SessionDescription{}, err
	}
	<-gathered

	return pc, domain.DescriptionFromPion(*pc.LocalDescription()), nil
}

// watchConnection hands a live connection over to the reconnection manager:
// the peer is marked connected and later transport drops start a bounded
// reconnection episode.
func watchConnection(pc *webrtc.PeerConnection, peerID string, manager *peerconn.Manager) {
	manager.MarkConnected(peerID)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			manager.HandleDisconnect(peerID, "connection "+state.String())
		}
	})
}

func heartbeatLoop(ctx context.Context, client *signalclient.Client, roomID string, log *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(ctx, roomID); err != nil {
				log.Debug("heartbeat failed", sl.Err(err))
			}
		}
	}
}

func logEvents(events <-chan peerconn.Event, log *slog.Logger) {
	for ev := range events {
		log.Info("peer event",
			slog.String("type", string(ev.Type)),
			slog.String("peer_id", ev.PeerID),
			slog.Int("attempt", ev.Attempt),
			slog.String("reason", ev.Reason),
		)
	}
}
