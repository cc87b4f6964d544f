package ledger

import "errors"

// Kind tags a ledger event. The wire names match the original
// balances backend ("bet" = debit, "win" = credit).
type Kind string

const (
	KindDebit  Kind = "bet"
	KindCredit Kind = "win"
)

// Event is one immutable ledger entry. (PlayerID, RoundID, Kind) is the
// idempotency key: at most one event with that tuple is ever applied.
type Event struct {
	RoundID  string `json:"roundId"`
	PlayerID string `json:"userId"`
	Kind     Kind   `json:"type"`
	Amount   int64  `json:"amount"`
	TS       int64  `json:"ts"` // unix millis
}

// Snapshot is the durable form of the ledger: balances plus the full
// event log, oldest first.
type Snapshot struct {
	Balances map[string]int64 `json:"balances"`
	Events   []Event          `json:"history"`
}

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
