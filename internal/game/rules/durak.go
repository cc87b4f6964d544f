package rules

import (
	"math/rand"

	"CardRoyale/internal/game/deck"
)

const (
	durakHandSize   = 6
	durakTableSlots = 6
)

// Pair is one table slot: an attack card and, once beaten, the card
// covering it.
type Pair struct {
	Attack  deck.Card  `json:"a"`
	Defense *deck.Card `json:"d,omitempty"`
}

// DurakState is a podkidnoy table. The deck is drawn from the back; the
// trump card sits at index 0 and is the last card dealt out.
type DurakState struct {
	Order     []string
	Hands     map[string][]deck.Card
	Table     []Pair
	Stock     []deck.Card
	Discard   int
	Trump     int // suit
	TrumpCard deck.Card
	Attacker  string
	Defender  string

	// Forfeited names the player whose deadline lapsed; set only by the
	// synthetic timeout move and immediately terminal.
	Forfeited string
}

func (s *DurakState) Players() []string { return s.Order }

func (s *DurakState) undefended() int {
	n := 0
	for _, p := range s.Table {
		if p.Defense == nil {
			n++
		}
	}
	return n
}

func (s *DurakState) rankOnTable(rank int) bool {
	for _, p := range s.Table {
		if p.Attack.Rank == rank {
			return true
		}
		if p.Defense != nil && p.Defense.Rank == rank {
			return true
		}
	}
	return false
}

func (s *DurakState) removeFromHand(player string, c deck.Card) bool {
	hand := s.Hands[player]
	for i, hc := range hand {
		if hc == c {
			s.Hands[player] = append(hand[:i:i], hand[i+1:]...)
			return true
		}
	}
	return false
}

func (s *DurakState) draw() (deck.Card, bool) {
	if len(s.Stock) == 0 {
		return deck.Card{}, false
	}
	c := s.Stock[len(s.Stock)-1]
	s.Stock = s.Stock[:len(s.Stock)-1]
	return c, true
}

// drawUp replenishes hands to six: attacker first, defender last.
func (s *DurakState) drawUp() {
	order := make([]string, 0, len(s.Order))
	order = append(order, s.Attacker)
	for _, p := range s.Order {
		if p != s.Attacker && p != s.Defender {
			order = append(order, p)
		}
	}
	order = append(order, s.Defender)

	for _, p := range order {
		for len(s.Hands[p]) < durakHandSize {
			c, ok := s.draw()
			if !ok {
				return
			}
			s.Hands[p] = append(s.Hands[p], c)
		}
	}
}

// beats reports whether d covers a under the trump suit.
func (s *DurakState) beats(d, a deck.Card) bool {
	if d.Suit == a.Suit {
		return d.Rank > a.Rank
	}
	return d.Suit == s.Trump
}

type DurakEngine struct{}

func (e *DurakEngine) Variant() Variant { return VariantDurak }

func (e *DurakEngine) Deal(players []string, rnd *rand.Rand) State {
	stock := deck.New36()
	deck.Shuffle(stock, rnd)

	s := &DurakState{
		Order:     append([]string(nil), players...),
		Hands:     make(map[string][]deck.Card, len(players)),
		Stock:     stock,
		Trump:     stock[0].Suit,
		TrumpCard: stock[0],
		Attacker:  players[0],
		Defender:  players[1],
	}
	for i := 0; i < durakHandSize; i++ {
		for _, p := range s.Order {
			c, _ := s.draw()
			s.Hands[p] = append(s.Hands[p], c)
		}
	}
	return s
}

func (e *DurakEngine) Apply(st State, m Move) error {
	s := st.(*DurakState)
	if _, seated := s.Hands[m.Player]; !seated {
		return ErrIllegalMove
	}
	if s.Forfeited != "" {
		return ErrStaleMove
	}

	switch m.Action {
	case ActionAttack:
		return s.applyAttack(m)
	case ActionThrow:
		return s.applyThrow(m)
	case ActionDefend:
		return s.applyDefend(m)
	case ActionTake:
		return s.applyTake(m)
	case ActionBito:
		return s.applyBito(m)
	case ActionTimeout:
		s.Forfeited = m.Player
		return nil
	}
	return ErrIllegalMove
}

func (s *DurakState) applyAttack(m Move) error {
	if m.Player != s.Attacker || m.Card == nil || len(s.Table) != 0 {
		return ErrIllegalMove
	}
	if !s.removeFromHand(m.Player, *m.Card) {
		return ErrIllegalMove
	}
	s.Table = append(s.Table, Pair{Attack: *m.Card})
	return nil
}

func (s *DurakState) applyThrow(m Move) error {
	if m.Player != s.Attacker || m.Card == nil || len(s.Table) == 0 {
		return ErrIllegalMove
	}
	if len(s.Table) >= durakTableSlots {
		return ErrIllegalMove
	}
	if !s.rankOnTable(m.Card.Rank) {
		return ErrIllegalMove
	}
	// defender must be able to cover every open slot
	if s.undefended()+1 > len(s.Hands[s.Defender]) {
		return ErrIllegalMove
	}
	if !s.removeFromHand(m.Player, *m.Card) {
		return ErrIllegalMove
	}
	s.Table = append(s.Table, Pair{Attack: *m.Card})
	return nil
}

func (s *DurakState) applyDefend(m Move) error {
	if m.Player != s.Defender || m.Card == nil {
		return ErrIllegalMove
	}
	if m.Slot < 0 || m.Slot >= len(s.Table) {
		return ErrIllegalMove
	}
	if s.Table[m.Slot].Defense != nil {
		return ErrIllegalMove
	}
	if !s.beats(*m.Card, s.Table[m.Slot].Attack) {
		return ErrIllegalMove
	}
	if !s.removeFromHand(m.Player, *m.Card) {
		return ErrIllegalMove
	}
	c := *m.Card
	s.Table[m.Slot].Defense = &c
	return nil
}

// applyTake ends the bout with the defender scooping the table. The
// attacker keeps the role.
func (s *DurakState) applyTake(m Move) error {
	if m.Player != s.Defender || len(s.Table) == 0 || s.undefended() == 0 {
		return ErrIllegalMove
	}
	for _, p := range s.Table {
		s.Hands[s.Defender] = append(s.Hands[s.Defender], p.Attack)
		if p.Defense != nil {
			s.Hands[s.Defender] = append(s.Hands[s.Defender], *p.Defense)
		}
	}
	s.Table = nil
	s.drawUp()
	return nil
}

// applyBito clears a fully beaten wave to the discard and rotates the
// roles.
func (s *DurakState) applyBito(m Move) error {
	if m.Player != s.Attacker || len(s.Table) == 0 || s.undefended() > 0 {
		return ErrIllegalMove
	}
	for _, p := range s.Table {
		s.Discard++
		if p.Defense != nil {
			s.Discard++
		}
	}
	s.Table = nil
	s.drawUp()
	s.Attacker, s.Defender = s.Defender, s.Attacker
	return nil
}

// IsTerminal: a round ends on forfeit, or between bouts once the stock
// is gone and a hand has emptied. Mid-bout empties are not terminal;
// the wave must first resolve with take or bito.
func (e *DurakEngine) IsTerminal(st State) bool {
	s := st.(*DurakState)
	if s.Forfeited != "" {
		return true
	}
	if len(s.Table) != 0 || len(s.Stock) != 0 {
		return false
	}
	for _, p := range s.Order {
		if len(s.Hands[p]) == 0 {
			return true
		}
	}
	return false
}

// AwaitingMove: the defender while any slot is open, otherwise the
// attacker (attack, throw in, or declare bito).
func (e *DurakEngine) AwaitingMove(st State) []string {
	s := st.(*DurakState)
	if s.undefended() > 0 {
		return []string{s.Defender}
	}
	return []string{s.Attacker}
}

// Settle: the player left holding cards is the durak and loses the
// stake; emptying your hand wins. Both hands emptying on the same bito
// is a draw, both stakes come back. A forfeit loses outright.
func (e *DurakEngine) Settle(st State, stake int64) map[string]Outcome {
	s := st.(*DurakState)
	out := make(map[string]Outcome, len(s.Order))

	if s.Forfeited != "" {
		for _, p := range s.Order {
			if p == s.Forfeited {
				out[p] = Outcome{Result: ResultLose, Payout: 0}
			} else {
				out[p] = Outcome{Result: ResultWin, Payout: WinPayout(stake)}
			}
		}
		return out
	}

	empty := 0
	for _, p := range s.Order {
		if len(s.Hands[p]) == 0 {
			empty++
		}
	}
	for _, p := range s.Order {
		switch {
		case empty == len(s.Order):
			out[p] = Outcome{Result: ResultPush, Payout: stake}
		case len(s.Hands[p]) == 0:
			out[p] = Outcome{Result: ResultWin, Payout: WinPayout(stake)}
		default:
			out[p] = Outcome{Result: ResultLose, Payout: 0}
		}
	}
	return out
}

func (e *DurakEngine) Hand(st State, player string) []deck.Card {
	s := st.(*DurakState)
	return append([]deck.Card(nil), s.Hands[player]...)
}

// View never leaks an opponent's hand, only its count. The viewer's own
// hand rides along so takes and draw-ups reach the client on every
// state broadcast, not just at deal time.
func (e *DurakEngine) View(st State, player string) map[string]any {
	s := st.(*DurakState)
	players := make([]map[string]any, 0, len(s.Order))
	for _, p := range s.Order {
		players = append(players, map[string]any{
			"userId":    p,
			"handCount": len(s.Hands[p]),
		})
	}
	view := map[string]any{
		"trump":        s.Trump,
		"trumpCard":    s.TrumpCard,
		"deckCount":    len(s.Stock),
		"discardCount": s.Discard,
		"attacker":     s.Attacker,
		"defender":     s.Defender,
		"table":        s.Table,
		"players":      players,
	}
	if hand, seated := s.Hands[player]; seated {
		view["hand"] = append([]deck.Card(nil), hand...)
	}
	return view
}
