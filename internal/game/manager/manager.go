package manager

import (
	"errors"
	"sync"
	"time"

	"CardRoyale/internal/game/rules"
	"CardRoyale/internal/game/session"
	"CardRoyale/internal/ledger"
	"CardRoyale/internal/matchmaker"
	"CardRoyale/internal/utils"
	"CardRoyale/internal/websocket"
)

var ErrSessionNotFound = errors.New("session not found")

// Manager owns every live session and routes hub traffic to the right
// actor.
type Manager struct {
	mu              sync.RWMutex
	sessions        map[string]*session.Session // sessionID -> session
	playerToSession map[string]string           // userId -> sessionID
	led             *ledger.Ledger
	hub             websocket.HubInterface
	cfg             session.Config
	seed            func() int64

	// OnSessionEnd receives the seats of every removed session; the
	// matchmaker uses it to release its room bookkeeping.
	OnSessionEnd func(seats []string)
}

func New(led *ledger.Ledger, hub websocket.HubInterface, cfg session.Config) *Manager {
	return &Manager{
		sessions:        make(map[string]*session.Session),
		playerToSession: make(map[string]string),
		led:             led,
		hub:             hub,
		cfg:             cfg,
		seed:            func() int64 { return time.Now().UnixNano() },
	}
}

// StartSession takes the seats the matchmaker collected, escrows and
// deals. Called from the matchmaker's room-ready callback.
func (m *Manager) StartSession(room *matchmaker.Room) error {
	s, err := session.New(rules.Variant(room.Variant), room.Stake, room.Players, m.led, m.hub, m.cfg, m.seed())
	if err != nil {
		return err
	}
	s.OnDone = m.remove

	m.mu.Lock()
	m.sessions[s.ID] = s
	for _, p := range room.Players {
		m.playerToSession[p] = s.ID
	}
	m.mu.Unlock()

	utils.Info.Printf("session %s starting: variant=%s stake=%d players=%v", s.ID, room.Variant, room.Stake, room.Players)
	go s.Start()
	return nil
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		for _, p := range s.Seats {
			if m.playerToSession[p] == sessionID {
				delete(m.playerToSession, p)
			}
		}
	}
	m.mu.Unlock()
	if ok {
		s.Stop()
		if m.OnSessionEnd != nil {
			m.OnSessionEnd(s.Seats)
		}
	}
}

// InSession reports whether a player is currently seated; the
// matchmaker uses it to refuse double-queueing.
func (m *Manager) InSession(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.playerToSession[userID]
	return ok
}

// HandlePlayerMessage is the single entry point for hub traffic.
func (m *Manager) HandlePlayerMessage(msg websocket.IncomingMessage) {
	switch msg.Event {
	case "move":
		m.handleMove(msg)
	case "chat":
		m.handleChat(msg)
	}
}

func (m *Manager) handleMove(msg websocket.IncomingMessage) {
	s := m.lookup(msg.From, msg.Data.SessionID)
	if s == nil {
		m.sendError(msg.From, "", ErrSessionNotFound)
		return
	}

	move := rules.Move{
		Player: msg.From,
		Action: rules.Action(msg.Data.Action),
		Card:   msg.Data.Card,
		Slot:   msg.Data.Slot,
	}
	if err := s.Submit(move); err != nil {
		// finished sessions answer duplicates with the stored outcome
		if errors.Is(err, session.ErrAlreadySettled) {
			if outcomes, ok := s.Outcomes(); ok {
				m.hub.SendToPlayer(msg.From, websocket.OutgoingMessage{
					Event: "round_settled",
					Data: map[string]any{
						"sessionId": s.ID,
						"roundId":   s.RoundID,
						"stake":     s.Stake,
						"result":    outcomes,
					},
				})
				return
			}
		}
		m.sendError(msg.From, s.ID, err)
	}
}

func (m *Manager) handleChat(msg websocket.IncomingMessage) {
	s := m.lookup(msg.From, msg.Data.SessionID)
	if s == nil {
		return
	}
	m.hub.BroadcastToPlayers(s.Seats, websocket.OutgoingMessage{
		Event: "chat",
		Data: map[string]any{
			"from": msg.From,
			"text": msg.Data.Text,
		},
	})
}

func (m *Manager) lookup(userID, sessionID string) *session.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id := sessionID
	if id == "" {
		id = m.playerToSession[userID]
	}
	return m.sessions[id]
}

func (m *Manager) sendError(userID, sessionID string, err error) {
	m.hub.SendToPlayer(userID, websocket.OutgoingMessage{
		Event: "error_msg",
		Data: map[string]any{
			"sessionId": sessionID,
			"message":   err.Error(),
		},
	})
}
