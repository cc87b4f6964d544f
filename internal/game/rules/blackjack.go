package rules

import (
	"math/rand"

	"CardRoyale/internal/game/deck"
)

// BlackjackState holds a head-to-head round. Both players act in
// parallel; a player's decision point closes once they stand or bust.
type BlackjackState struct {
	Order []string
	Hands map[string][]deck.Card
	Stood map[string]bool

	shoe []deck.Card
}

func (s *BlackjackState) Players() []string { return s.Order }

func (s *BlackjackState) done(player string) bool {
	return s.Stood[player] || HandValue(s.Hands[player]) > 21
}

// HandValue evaluates a blackjack hand. Aces count 11 and drop to 1 one
// at a time while the total exceeds 21.
func HandValue(cards []deck.Card) int {
	total := 0
	aces := 0
	for _, c := range cards {
		switch {
		case c.Rank == deck.RankAce:
			total += 11
			aces++
		case c.Rank >= deck.RankJack:
			total += 10
		default:
			total += c.Rank
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

type BlackjackEngine struct{}

func (e *BlackjackEngine) Variant() Variant { return VariantBlackjack }

func (e *BlackjackEngine) Deal(players []string, rnd *rand.Rand) State {
	shoe := deck.New52()
	deck.Shuffle(shoe, rnd)

	s := &BlackjackState{
		Order: append([]string(nil), players...),
		Hands: make(map[string][]deck.Card, len(players)),
		Stood: make(map[string]bool, len(players)),
		shoe:  shoe,
	}
	// two cards each, dealt around the table like a live shoe
	for i := 0; i < 2; i++ {
		for _, p := range s.Order {
			s.Hands[p] = append(s.Hands[p], s.draw())
		}
	}
	return s
}

func (s *BlackjackState) draw() deck.Card {
	c := s.shoe[len(s.shoe)-1]
	s.shoe = s.shoe[:len(s.shoe)-1]
	return c
}

func (e *BlackjackEngine) Apply(st State, m Move) error {
	s := st.(*BlackjackState)
	if _, seated := s.Hands[m.Player]; !seated {
		return ErrIllegalMove
	}

	switch m.Action {
	case ActionHit:
		if s.done(m.Player) {
			return ErrStaleMove
		}
		s.Hands[m.Player] = append(s.Hands[m.Player], s.draw())
		return nil
	case ActionStand:
		if s.done(m.Player) {
			return ErrStaleMove
		}
		s.Stood[m.Player] = true
		return nil
	case ActionTimeout:
		// deadline expiry auto-stands; harmless if the player already
		// resolved their hand in the meantime
		if !s.done(m.Player) {
			s.Stood[m.Player] = true
		}
		return nil
	}
	return ErrIllegalMove
}

func (e *BlackjackEngine) IsTerminal(st State) bool {
	s := st.(*BlackjackState)
	for _, p := range s.Order {
		if !s.done(p) {
			return false
		}
	}
	return true
}

func (e *BlackjackEngine) AwaitingMove(st State) []string {
	s := st.(*BlackjackState)
	var out []string
	for _, p := range s.Order {
		if !s.done(p) {
			out = append(out, p)
		}
	}
	return out
}

// Settle compares final totals. A bust loses regardless of the other
// hand; two busts push (stakes come back), equal totals push.
func (e *BlackjackEngine) Settle(st State, stake int64) map[string]Outcome {
	s := st.(*BlackjackState)
	a, b := s.Order[0], s.Order[1]
	va, vb := HandValue(s.Hands[a]), HandValue(s.Hands[b])

	outcome := func(mine, theirs int) Outcome {
		switch {
		case mine > 21 && theirs > 21:
			return Outcome{Result: ResultPush, Payout: stake}
		case mine > 21:
			return Outcome{Result: ResultLose, Payout: 0}
		case theirs > 21:
			return Outcome{Result: ResultWin, Payout: WinPayout(stake)}
		case mine > theirs:
			return Outcome{Result: ResultWin, Payout: WinPayout(stake)}
		case mine < theirs:
			return Outcome{Result: ResultLose, Payout: 0}
		}
		return Outcome{Result: ResultPush, Payout: stake}
	}

	return map[string]Outcome{
		a: outcome(va, vb),
		b: outcome(vb, va),
	}
}

func (e *BlackjackEngine) Hand(st State, player string) []deck.Card {
	s := st.(*BlackjackState)
	return append([]deck.Card(nil), s.Hands[player]...)
}

// View exposes both hands: the original PvP table plays open-handed.
func (e *BlackjackEngine) View(st State, player string) map[string]any {
	s := st.(*BlackjackState)
	hands := make(map[string][]deck.Card, len(s.Order))
	sums := make(map[string]int, len(s.Order))
	stood := make(map[string]bool, len(s.Order))
	for _, p := range s.Order {
		hands[p] = append([]deck.Card(nil), s.Hands[p]...)
		sums[p] = HandValue(s.Hands[p])
		stood[p] = s.done(p)
	}
	return map[string]any{
		"players": s.Order,
		"hands":   hands,
		"sums":    sums,
		"stood":   stood,
	}
}
