package ledger

import (
	"sort"
	"sync"
	"time"
)

const historyCap = 200

// account serializes every balance mutation for one player. The applied
// index lives under the same mutex as the balance, so the idempotency
// check and the mutation are one atomic unit.
type account struct {
	mu      sync.Mutex
	balance int64
	history []Event // append order, oldest first
	applied map[string]struct{}
}

func appliedKey(roundID string, kind Kind) string {
	return roundID + "|" + string(kind)
}

// Ledger owns all accounts. Operations on different accounts never
// contend; the outer lock only guards the account map itself.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	starting int64
	onEvent  func(Event)
}

func New(startingBalance int64) *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		starting: startingBalance,
	}
}

// OnEvent registers an observer invoked for every applied event
// (leaderboard aggregation). Must be set before traffic starts.
func (l *Ledger) OnEvent(fn func(Event)) {
	l.onEvent = fn
}

func (l *Ledger) account(playerID string) *account {
	l.mu.RLock()
	a, ok := l.accounts[playerID]
	l.mu.RUnlock()
	if ok {
		return a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[playerID]; ok {
		return a
	}
	a = &account{
		balance: l.starting,
		applied: make(map[string]struct{}),
	}
	l.accounts[playerID] = a
	return a
}

// Debit withdraws a stake. Replaying the same (playerID, roundID) debit
// returns the current balance without mutating anything.
func (l *Ledger) Debit(playerID, roundID string, amount int64) (int64, error) {
	if playerID == "" || roundID == "" || amount <= 0 {
		return 0, ErrInvalidArgument
	}

	a := l.account(playerID)
	a.mu.Lock()
	defer a.mu.Unlock()

	key := appliedKey(roundID, KindDebit)
	if _, done := a.applied[key]; done {
		return a.balance, nil
	}
	if a.balance < amount {
		return a.balance, ErrInsufficientFunds
	}

	a.balance -= amount
	e := Event{
		RoundID:  roundID,
		PlayerID: playerID,
		Kind:     KindDebit,
		Amount:   amount,
		TS:       time.Now().UnixMilli(),
	}
	a.history = append(a.history, e)
	a.applied[key] = struct{}{}
	if l.onEvent != nil {
		l.onEvent(e)
	}
	return a.balance, nil
}

// Credit pays a result. Amount zero is a legal no-win credit; a credit is
// never rejected for insufficient funds. Same idempotency rule as Debit.
func (l *Ledger) Credit(playerID, roundID string, amount int64) (int64, error) {
	if playerID == "" || roundID == "" || amount < 0 {
		return 0, ErrInvalidArgument
	}

	a := l.account(playerID)
	a.mu.Lock()
	defer a.mu.Unlock()

	key := appliedKey(roundID, KindCredit)
	if _, done := a.applied[key]; done {
		return a.balance, nil
	}

	a.balance += amount
	e := Event{
		RoundID:  roundID,
		PlayerID: playerID,
		Kind:     KindCredit,
		Amount:   amount,
		TS:       time.Now().UnixMilli(),
	}
	a.history = append(a.history, e)
	a.applied[key] = struct{}{}
	if l.onEvent != nil {
		l.onEvent(e)
	}
	return a.balance, nil
}

// GetBalance creates the account on first contact.
func (l *Ledger) GetBalance(playerID string) int64 {
	a := l.account(playerID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// GetHistory returns the player's events, most recent first, capped.
func (l *Ledger) GetHistory(playerID string) []Event {
	a := l.account(playerID)
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.history)
	if n > historyCap {
		n = historyCap
	}
	out := make([]Event, 0, n)
	for i := len(a.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, a.history[i])
	}
	return out
}

// Snapshot copies balances and the full event log for persistence.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	snap := Snapshot{Balances: make(map[string]int64, len(ids))}
	for _, id := range ids {
		a := l.account(id)
		a.mu.Lock()
		snap.Balances[id] = a.balance
		snap.Events = append(snap.Events, a.history...)
		a.mu.Unlock()
	}
	sort.Slice(snap.Events, func(i, j int) bool { return snap.Events[i].TS < snap.Events[j].TS })
	return snap
}

// Restore rebuilds accounts, the idempotency index and, through the
// observer, any derived aggregates. Meant for startup only.
func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	l.accounts = make(map[string]*account, len(snap.Balances))
	for id, bal := range snap.Balances {
		l.accounts[id] = &account{
			balance: bal,
			applied: make(map[string]struct{}),
		}
	}
	l.mu.Unlock()

	for _, e := range snap.Events {
		a := l.account(e.PlayerID)
		a.mu.Lock()
		a.history = append(a.history, e)
		a.applied[appliedKey(e.RoundID, e.Kind)] = struct{}{}
		a.mu.Unlock()
		if l.onEvent != nil {
			l.onEvent(e)
		}
	}
}
