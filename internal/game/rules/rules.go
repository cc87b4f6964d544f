package rules

import (
	"errors"
	"math/rand"

	"CardRoyale/internal/game/deck"
)

type Variant string

const (
	VariantBlackjack Variant = "blackjack"
	VariantDurak     Variant = "durak"
)

type Action string

const (
	ActionHit    Action = "hit"
	ActionStand  Action = "stand"
	ActionAttack Action = "attack"
	ActionThrow  Action = "throw"
	ActionDefend Action = "defend"
	ActionTake   Action = "take"
	ActionBito   Action = "bito"

	// ActionTimeout is the synthetic move injected when a deadline
	// expires. Never accepted from the network.
	ActionTimeout Action = "timeout"
)

// Move is the single tagged message every variant consumes. Card and
// Slot are meaningful only for the actions that need them.
type Move struct {
	Player string
	Action Action
	Card   *deck.Card
	Slot   int
}

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrStaleMove   = errors.New("stale move")
)

type Result string

const (
	ResultWin  Result = "win"
	ResultLose Result = "lose"
	ResultPush Result = "push"
)

// Outcome is one player's settlement: the classification plus the credit
// amount owed against the round's stake.
type Outcome struct {
	Result Result `json:"result"`
	Payout int64  `json:"payout"`
}

// WinPayout applies the fixed house commission: the winner of a
// head-to-head round collects floor(stake*1.9).
func WinPayout(stake int64) int64 {
	return stake * 19 / 10
}

// State is a variant's table state. Concrete types live with their
// engine; callers only move it between Engine methods.
type State interface {
	Players() []string
}

// Engine is pure game logic: no clocks, no ledger, no transport.
// Apply mutates the state in place or returns ErrIllegalMove /
// ErrStaleMove leaving it untouched.
type Engine interface {
	Variant() Variant
	Deal(players []string, rnd *rand.Rand) State
	Apply(s State, m Move) error
	IsTerminal(s State) bool
	// AwaitingMove lists the players whose decision is pending.
	AwaitingMove(s State) []string
	Settle(s State, stake int64) map[string]Outcome
	// Hand is the private per-player view, View the public one.
	Hand(s State, player string) []deck.Card
	View(s State, player string) map[string]any
}

// ForVariant selects an engine.
func ForVariant(v Variant) (Engine, error) {
	switch v {
	case VariantBlackjack:
		return &BlackjackEngine{}, nil
	case VariantDurak:
		return &DurakEngine{}, nil
	}
	return nil, errors.New("unknown variant: " + string(v))
}

// RequiredPlayersOK reports whether a table size is playable for the
// variant. Blackjack is strictly head-to-head; durak supports 2-6 seats
// in the state shape, the turn protocol guarantees the 2-player game.
func RequiredPlayersOK(v Variant, n int) bool {
	switch v {
	case VariantBlackjack:
		return n == 2
	case VariantDurak:
		return n >= 2 && n <= 6
	}
	return false
}
