package matchmaker

import "time"

// JoinRequest is the queue entry a player asks for. UserID comes from
// the authenticated connection, never the body.
type JoinRequest struct {
	UserID  string `json:"-"`
	Variant string `json:"variant" binding:"required"` // "blackjack" | "durak"
	Stake   int64  `json:"stake" binding:"required"`
	Players int    `json:"players"` // required seat count; defaults to 2
}

type JoinResponse struct {
	Queued  bool     `json:"queued"`
	RoomID  string   `json:"roomId,omitempty"`
	Players []string `json:"players,omitempty"`
	Variant string   `json:"variant"`
	Stake   int64    `json:"stake"`
}

// Room is a filled table handed to session creation. The stakes are not
// escrowed yet; that is the session's first job.
type Room struct {
	ID        string
	Variant   string
	Stake     int64
	Players   []string
	CreatedAt time.Time
}
