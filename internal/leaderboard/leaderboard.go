package leaderboard

import (
	"sort"
	"sync"

	"CardRoyale/internal/ledger"
)

// Row is one leaderboard entry, derived from ledger events.
type Row struct {
	UserID string `json:"userId"`
	Wins   int64  `json:"wins"`
	Profit int64  `json:"profit"`
}

type Metric string

const (
	MetricWins   Metric = "wins"
	MetricProfit Metric = "profit"
)

// roundState folds a round's debit/credit pair. A round is classified
// only once a debit exists: credits without a stake (topups) stay out of
// the standings.
type roundState struct {
	debit     int64
	credit    int64
	hasDebit  bool
	hasCredit bool
}

func (r *roundState) isWin() bool {
	return r != nil && r.hasDebit && r.hasCredit && r.credit > r.debit
}

func (r *roundState) profit() int64 {
	if r == nil || !r.hasDebit {
		return 0
	}
	return r.credit - r.debit
}

type playerAgg struct {
	wins   int64
	profit int64
	rounds map[string]*roundState
}

// Aggregator maintains the standings incrementally: every applied ledger
// event adjusts the affected player's row in O(1), so queries never
// replay history.
type Aggregator struct {
	mu      sync.RWMutex
	players map[string]*playerAgg
}

func NewAggregator() *Aggregator {
	return &Aggregator{players: make(map[string]*playerAgg)}
}

// OnEvent is wired as the ledger observer.
func (a *Aggregator) OnEvent(e ledger.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.players[e.PlayerID]
	if !ok {
		p = &playerAgg{rounds: make(map[string]*roundState)}
		a.players[e.PlayerID] = p
	}
	rs, ok := p.rounds[e.RoundID]
	if !ok {
		rs = &roundState{}
		p.rounds[e.RoundID] = rs
	}

	// retract the round's previous contribution, re-add after folding
	if rs.isWin() {
		p.wins--
	}
	p.profit -= rs.profit()

	switch e.Kind {
	case ledger.KindDebit:
		rs.debit = e.Amount
		rs.hasDebit = true
	case ledger.KindCredit:
		rs.credit = e.Amount
		rs.hasCredit = true
	}

	if rs.isWin() {
		p.wins++
	}
	p.profit += rs.profit()
}

// Top returns up to limit rows ordered by the metric, ties broken by the
// other metric descending.
func (a *Aggregator) Top(metric Metric, limit int) []Row {
	a.mu.RLock()
	rows := make([]Row, 0, len(a.players))
	for id, p := range a.players {
		rows = append(rows, Row{UserID: id, Wins: p.wins, Profit: p.profit})
	}
	a.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		x, y := rows[i], rows[j]
		if metric == MetricProfit {
			if x.Profit != y.Profit {
				return x.Profit > y.Profit
			}
			return x.Wins > y.Wins
		}
		if x.Wins != y.Wins {
			return x.Wins > y.Wins
		}
		return x.Profit > y.Profit
	})

	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
