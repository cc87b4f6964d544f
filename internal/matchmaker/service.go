package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CardRoyale/internal/game/rules"
	"CardRoyale/internal/websocket"

	"github.com/google/uuid"
)

type Service struct {
	repo        Repo
	playerTTL   int // seconds, guards against abandoned queue entries
	hub         HubBroadcaster
	OnRoomReady func(*Room)
	// InSession asks the game layer whether the player is already
	// seated; set by main once the manager exists.
	InSession func(userID string) bool
}

type HubBroadcaster interface {
	BroadcastToPlayers(ids []string, msg websocket.OutgoingMessage)
}

func NewService(repo Repo, playerTTL int, hub HubBroadcaster) *Service {
	return &Service{repo: repo, playerTTL: playerTTL, hub: hub}
}

// Join enqueues the player and tries to fill a table immediately. The
// stake is NOT escrowed here: a player waiting in the queue has not
// paid anything; escrow belongs to session formation.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*Room, bool, error) {
	if req.Stake <= 0 {
		return nil, false, errors.New("invalid stake")
	}
	if req.Players == 0 {
		req.Players = 2
	}
	if !rules.RequiredPlayersOK(rules.Variant(req.Variant), req.Players) {
		return nil, false, fmt.Errorf("variant %s does not support %d players", req.Variant, req.Players)
	}
	if s.InSession != nil && s.InSession(req.UserID) {
		return nil, false, fmt.Errorf("player %s already in a session", req.UserID)
	}
	if checker, ok := s.repo.(interface {
		GetPlayerRoom(ctx context.Context, userID string) (string, error)
	}); ok {
		roomID, _ := checker.GetPlayerRoom(ctx, req.UserID)
		if roomID != "" {
			return nil, false, fmt.Errorf("player %s already in room %s", req.UserID, roomID)
		}
	}

	if err := s.repo.Enqueue(ctx, req.Variant, req.Stake, req.Players, req.UserID, s.playerTTL); err != nil {
		return nil, false, err
	}

	cnt, err := s.repo.Count(ctx, req.Variant, req.Stake, req.Players)
	if err != nil {
		return nil, false, err
	}
	if int(cnt) < req.Players {
		s.notifyQueued(req)
		return nil, true, nil
	}

	// all-or-nothing pop: a concurrent Join either takes the whole
	// table or leaves the bucket untouched
	ids, err := s.repo.PopOldest(ctx, req.Variant, req.Stake, req.Players, req.Players)
	if err != nil {
		return nil, false, err
	}
	if len(ids) < req.Players {
		s.notifyQueued(req)
		return nil, true, nil
	}

	room := &Room{
		ID:        uuid.NewString(),
		Variant:   req.Variant,
		Stake:     req.Stake,
		Players:   ids,
		CreatedAt: time.Now(),
	}

	if saver, ok := s.repo.(interface {
		SaveRoom(context.Context, *Room, int) error
	}); ok {
		if err := saver.SaveRoom(ctx, room, s.playerTTL); err != nil {
			fmt.Println("SaveRoom error:", err)
		}
	}

	s.hub.BroadcastToPlayers(ids, websocket.OutgoingMessage{
		Event: "match_found",
		Data: map[string]any{
			"roomId":  room.ID,
			"variant": room.Variant,
			"stake":   room.Stake,
			"players": room.Players,
		},
	})

	if s.OnRoomReady != nil {
		go s.OnRoomReady(room)
	}

	return room, false, nil
}

func (s *Service) notifyQueued(req JoinRequest) {
	s.hub.BroadcastToPlayers([]string{req.UserID}, websocket.OutgoingMessage{
		Event: "queued",
		Data: map[string]any{
			"variant": req.Variant,
			"stake":   req.Stake,
		},
	})
}

// Release clears the room mapping for seats whose session finished.
// Without it a settled player stays "already in room" until the redis
// TTL lapses. A repo without room records has nothing to clear.
func (s *Service) Release(ctx context.Context, players []string) {
	clearer, ok := s.repo.(interface {
		ClearPlayers(ctx context.Context, players []string) error
	})
	if !ok {
		return
	}
	if err := clearer.ClearPlayers(ctx, players); err != nil {
		fmt.Println("ClearPlayers error:", err)
	}
}

// Cancel drops a pending entry; silently succeeds when the player was
// already matched.
func (s *Service) Cancel(ctx context.Context, userID string) error {
	if err := s.repo.Remove(ctx, userID); err != nil {
		return err
	}
	s.hub.BroadcastToPlayers([]string{userID}, websocket.OutgoingMessage{
		Event: "queue_canceled",
		Data:  map[string]any{},
	})
	return nil
}
