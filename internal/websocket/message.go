package websocket

import "CardRoyale/internal/game/deck"

type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type IncomingMessage struct {
	From  string   `json:"from"`
	Event string   `json:"event"`
	Data  MoveData `json:"data"`
}

// MoveData is the single tagged move payload: every variant action
// travels through this one shape.
type MoveData struct {
	SessionID string     `json:"sessionId"`
	Action    string     `json:"action"`
	Card      *deck.Card `json:"card,omitempty"`
	Slot      int        `json:"slot"`
	Text      string     `json:"text,omitempty"` // chat only
}
