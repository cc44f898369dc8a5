package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/meshdrop/meshdrop/internal/domain"
	"github.com/meshdrop/meshdrop/internal/repository"
)

type SignalingService struct {
	store repository.RoomStore
	log   *slog.Logger
}

func NewSignalingService(store repository.RoomStore, log *slog.Logger) *SignalingService {
	if log == nil {
		log = slog.Default()
	}
	return &SignalingService{
		store: store,
		log:   log,
	}
}

func (s *SignalingService) CreateRoom(ctx context.Context, roomID string, offer domain.SessionDescription, hostPeerID string) (*domain.Room, error) {
	room := s.store.SetOffer(roomID, offer, hostPeerID)
	s.log.Info("room offer set",
		slog.String("room_id", roomID),
		slog.String("host_peer_id", hostPeerID),
	)
	return room, nil
}

func (s *SignalingService) RoomExists(ctx context.Context, roomID string) bool {
	return s.store.Exists(roomID)
}

func (s *SignalingService) RoomOffer(ctx context.Context, roomID string) (*RoomOffer, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return nil, err
	}

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	if room.Offer == nil {
		return nil, repository.ErrRoomNotFound
	}
	return &RoomOffer{Offer: *room.Offer, HostPeerID: room.HostPeerID}, nil
}

func (s *SignalingService) RegisterJoiner(ctx context.Context, roomID, joinerPeerID string) error {
	room, err := s.store.Get(roomID)
	if err != nil {
		return err
	}

	room.Mutex.Lock()
	room.PendingJoiners[joinerPeerID] = struct{}{}
	room.EnsurePeer(joinerPeerID, false)
	room.Touch(s.store.TTL())
	room.Mutex.Unlock()

	s.log.Info("joiner registered",
		slog.String("room_id", roomID),
		slog.String("joiner_peer_id", joinerPeerID),
	)
	return nil
}

func (s *SignalingService) PendingJoiners(ctx context.Context, roomID string) ([]string, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return nil, err
	}

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	joiners := make([]string, 0, len(room.PendingJoiners))
	for id := range room.PendingJoiners {
		joiners = append(joiners, id)
	}
	sort.Strings(joiners)
	return joiners, nil
}

func (s *SignalingService) JoinerOffer(ctx context.Context, roomID, joinerPeerID string) (*domain.SessionDescription, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return nil, err
	}

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	offer, ok := room.JoinerOffers[joinerPeerID]
	if !ok {
		return nil, nil
	}
	copied := *offer
	return &copied, nil
}

func (s *SignalingService) IssueJoinerOffer(ctx context.Context, roomID, joinerPeerID string, offer domain.SessionDescription) error {
	room, err := s.store.Get(roomID)
	if err != nil {
		return err
	}

	room.Mutex.Lock()
	room.JoinerOffers[joinerPeerID] = &offer
	delete(room.PendingJoiners, joinerPeerID)
	room.EnsurePeer(joinerPeerID, false)
	room.Touch(s.store.TTL())
	room.Mutex.Unlock()

	s.log.Info("joiner offer issued",
		slog.String("room_id", roomID),
		slog.String("joiner_peer_id", joinerPeerID),
	)
	return nil
}

func (s *SignalingService) ClearJoinerOffer(ctx context.Context, roomID, joinerPeerID string) (bool, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return false, nil
	}

	room.Mutex.Lock()
	defer room.Mutex.Unlock()

	if _, ok := room.JoinerOffers[joinerPeerID]; !ok {
		return false, nil
	}
	delete(room.JoinerOffers, joinerPeerID)
	room.Touch(s.store.TTL())
	return true, nil
}

func (s *SignalingService) SubmitAnswer(ctx context.Context, roomID, joinerPeerID string, answer domain.SessionDescription) error {
	room, err := s.store.Get(roomID)
	if err != nil {
		return err
	}

	room.Mutex.Lock()
	room.Answers[joinerPeerID] = &answer
	room.EnsurePeer(joinerPeerID, false)
	room.Touch(s.store.TTL())
	room.Mutex.Unlock()

	s.log.Info("answer submitted",
		slog.String("room_id", roomID),
		slog.String("joiner_peer_id", joinerPeerID),
	)
	return nil
}

func (s *SignalingService) PendingAnswers(ctx context.Context, roomID string) ([]PendingAnswer, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return nil, err
	}

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	answers := make([]PendingAnswer, 0, len(room.Answers))
	for id, answer := range room.Answers {
		answers = append(answers, PendingAnswer{PeerID: id, Answer: *answer})
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].PeerID < answers[j].PeerID })
	return answers, nil
}

func (s *SignalingService) ClearAnswer(ctx context.Context, roomID, joinerPeerID string) (bool, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return false, nil
	}

	room.Mutex.Lock()
	defer room.Mutex.Unlock()

	if _, ok := room.Answers[joinerPeerID]; !ok {
		return false, nil
	}
	delete(room.Answers, joinerPeerID)
	room.Touch(s.store.TTL())
	return true, nil
}

func (s *SignalingService) SetPeerSignal(ctx context.Context, roomID, fromPeerID, toPeerID string, sig domain.Signal) error {
	room, err := s.store.Get(roomID)
	if err != nil {
		return err
	}

	edge := domain.SignalEdge{From: fromPeerID, To: toPeerID}

	room.Mutex.Lock()
	room.PeerSignals[edge] = &sig
	room.Touch(s.store.TTL())
	room.Mutex.Unlock()

	return nil
}

func (s *SignalingService) PendingSignalsFor(ctx context.Context, roomID, toPeerID string) ([]RoutedSignal, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return nil, err
	}

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	signals := make([]RoutedSignal, 0)
	for edge, sig := range room.PeerSignals {
		if edge.To != toPeerID {
			continue
		}
		signals = append(signals, RoutedSignal{From: edge.From, To: edge.To, Signal: *sig})
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].From < signals[j].From })
	return signals, nil
}

func (s *SignalingService) ClearPeerSignal(ctx context.Context, roomID, fromPeerID, toPeerID string) (bool, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return false, nil
	}

	edge := domain.SignalEdge{From: fromPeerID, To: toPeerID}

	room.Mutex.Lock()
	defer room.Mutex.Unlock()

	if _, ok := room.PeerSignals[edge]; !ok {
		return false, nil
	}
	delete(room.PeerSignals, edge)
	room.Touch(s.store.TTL())
	return true, nil
}

func (s *SignalingService) AddPeer(ctx context.Context, roomID, peerID string) error {
	room, err := s.store.Get(roomID)
	if err != nil {
		return err
	}

	room.Mutex.Lock()
	room.EnsurePeer(peerID, false)
	room.Touch(s.store.TTL())
	room.Mutex.Unlock()

	return nil
}

func (s *SignalingService) UpdatePeerConnections(ctx context.Context, roomID, peerID string, connectedTo []string, isHost bool) error {
	// A connection-graph update may arrive before the room is explicitly
	// created; the implicit room starts without a host until a peer claims
	// the role.
	room := s.store.Ensure(roomID, "")

	room.Mutex.Lock()
	peer := room.EnsurePeer(peerID, false)
	if isHost && room.HostPeerID != peerID {
		if prev, ok := room.Peers[room.HostPeerID]; ok {
			prev.IsHost = false
		}
		room.HostPeerID = peerID
	}
	// HostPeerID is authoritative for the host flag.
	peer.IsHost = peerID == room.HostPeerID
	peer.ConnectedTo = make(map[string]struct{}, len(connectedTo))
	for _, id := range connectedTo {
		peer.ConnectedTo[id] = struct{}{}
	}
	peer.LastSeen = time.Now().UTC()
	room.Touch(s.store.TTL())
	room.Mutex.Unlock()

	return nil
}

func (s *SignalingService) ConnectedPeers(ctx context.Context, roomID, excludePeerID string) ([]PeerInfo, string, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return nil, "", err
	}

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	peers := make([]PeerInfo, 0, len(room.Peers))
	for id, peer := range room.Peers {
		if id == excludePeerID {
			continue
		}
		connected := make([]string, 0, len(peer.ConnectedTo))
		for c := range peer.ConnectedTo {
			connected = append(connected, c)
		}
		sort.Strings(connected)
		peers = append(peers, PeerInfo{
			PeerID:      id,
			IsHost:      peer.IsHost,
			ConnectedTo: connected,
			LastSeen:    peer.LastSeen,
		})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].PeerID < peers[j].PeerID })
	return peers, room.HostPeerID, nil
}

func (s *SignalingService) Heartbeat(ctx context.Context, roomID, peerID string) (time.Time, error) {
	room, err := s.store.Get(roomID)
	if err != nil {
		return time.Time{}, err
	}

	now := time.Now().UTC()

	room.Mutex.Lock()
	peer := room.EnsurePeer(peerID, false)
	peer.LastSeen = now
	room.Touch(s.store.TTL())
	room.Mutex.Unlock()

	return now, nil
}

func (s *SignalingService) Stats(ctx context.Context) repository.RoomStats {
	return s.store.Stats()
}
