package session

import (
	"sync"
	"testing"
	"time"

	"CardRoyale/internal/game/deck"
	"CardRoyale/internal/game/rules"
	"CardRoyale/internal/ledger"
	ws "CardRoyale/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	mu   sync.Mutex
	msgs map[string][]ws.OutgoingMessage
}

func newRecordingHub() *recordingHub {
	return &recordingHub{msgs: make(map[string][]ws.OutgoingMessage)}
}

func (h *recordingHub) BroadcastToPlayers(ids []string, msg ws.OutgoingMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		h.msgs[id] = append(h.msgs[id], msg)
	}
}

func (h *recordingHub) SendToPlayer(id string, msg ws.OutgoingMessage) {
	h.BroadcastToPlayers([]string{id}, msg)
}

func (h *recordingHub) ClientByUserID(id string) (*ws.Client, bool) { return nil, false }
func (h *recordingHub) Close()                                      {}

func (h *recordingHub) eventsFor(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.msgs[id]))
	for _, m := range h.msgs[id] {
		out = append(out, m.Event)
	}
	return out
}

func testConfig() Config {
	return Config{
		BlackjackDeadline: time.Hour, // tests drive moves themselves
		DurakDeadline:     time.Hour,
		SettleGrace:       10 * time.Millisecond,
	}
}

func newLedger(players ...string) *ledger.Ledger {
	led := ledger.New(1000)
	for _, p := range players {
		led.GetBalance(p)
	}
	return led
}

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached phase %s, still %s", want, s.Phase())
}

func TestSession_EscrowDebitsEverySeat(t *testing.T) {
	led := newLedger("a", "b")
	hub := newRecordingHub()

	s, err := New(rules.VariantBlackjack, 50, []string{"a", "b"}, led, hub, testConfig(), 1)
	require.NoError(t, err)
	defer s.Stop()
	go s.Start()

	waitPhase(t, s, PhaseActive)

	for _, p := range []string{"a", "b"} {
		assert.Equal(t, int64(950), led.GetBalance(p))
		assert.Contains(t, hub.eventsFor(p), "hand")
		assert.Contains(t, hub.eventsFor(p), "state")
	}
}

func TestSession_EscrowFailureRefundsAndAbandons(t *testing.T) {
	led := newLedger("rich")
	// drain the second seat below the stake
	_, err := led.Debit("poor", "setup", 990)
	require.NoError(t, err)

	hub := newRecordingHub()
	s, err := New(rules.VariantBlackjack, 50, []string{"rich", "poor"}, led, hub, testConfig(), 1)
	require.NoError(t, err)
	defer s.Stop()
	go s.Start()

	waitPhase(t, s, PhaseAbandoned)

	// the debited seat got its stake back
	assert.Equal(t, int64(1000), led.GetBalance("rich"))
	assert.Equal(t, int64(10), led.GetBalance("poor"))

	assert.Contains(t, hub.eventsFor("rich"), "error_msg")
	assert.Contains(t, hub.eventsFor("poor"), "error_msg")

	// the actor never started; a stray move bounces off the parked session
	s.Stop()
	err = s.Submit(rules.Move{Player: "rich", Action: rules.ActionStand})
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestSession_PlaysToSettlement(t *testing.T) {
	led := newLedger("a", "b")
	hub := newRecordingHub()

	s, err := New(rules.VariantBlackjack, 50, []string{"a", "b"}, led, hub, testConfig(), 42)
	require.NoError(t, err)
	defer s.Stop()
	go s.Start()

	waitPhase(t, s, PhaseActive)

	require.NoError(t, s.Submit(rules.Move{Player: "a", Action: rules.ActionStand}))
	require.NoError(t, s.Submit(rules.Move{Player: "b", Action: rules.ActionStand}))

	waitPhase(t, s, PhaseSettled)

	outcomes, ok := s.Outcomes()
	require.True(t, ok)
	require.Len(t, outcomes, 2)

	// money is conserved: total payouts never exceed total stakes on a
	// decisive round, and refunds exactly match on a push
	total := led.GetBalance("a") + led.GetBalance("b")
	switch {
	case outcomes["a"].Result == rules.ResultPush:
		assert.Equal(t, int64(2000), total)
	default:
		assert.Equal(t, int64(2000-100+95), total) // two stakes in, floor(50*1.9) out
	}

	assert.Contains(t, hub.eventsFor("a"), "round_settled")
	assert.Contains(t, hub.eventsFor("b"), "round_settled")

	// late moves bounce off the settled round
	err = s.Submit(rules.Move{Player: "a", Action: rules.ActionHit})
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestSession_RejectsSyntheticTimeoutFromNetwork(t *testing.T) {
	led := newLedger("a", "b")
	s, err := New(rules.VariantBlackjack, 50, []string{"a", "b"}, led, newRecordingHub(), testConfig(), 1)
	require.NoError(t, err)
	defer s.Stop()
	go s.Start()

	waitPhase(t, s, PhaseActive)

	err = s.Submit(rules.Move{Player: "a", Action: rules.ActionTimeout})
	assert.ErrorIs(t, err, rules.ErrIllegalMove)
}

func TestSession_DeadlineAutoStands(t *testing.T) {
	led := newLedger("a", "b")
	hub := newRecordingHub()

	cfg := testConfig()
	cfg.BlackjackDeadline = 30 * time.Millisecond

	s, err := New(rules.VariantBlackjack, 50, []string{"a", "b"}, led, hub, cfg, 1)
	require.NoError(t, err)
	defer s.Stop()
	go s.Start()

	// neither player moves; both deadlines expire, both stand, the
	// round settles on the dealt hands
	waitPhase(t, s, PhaseSettled)

	outcomes, ok := s.Outcomes()
	require.True(t, ok)
	assert.Len(t, outcomes, 2)

	err = s.Submit(rules.Move{Player: "a", Action: rules.ActionStand})
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestSession_MoveBeatsDeadline(t *testing.T) {
	led := newLedger("a", "b")
	hub := newRecordingHub()

	cfg := testConfig()
	cfg.BlackjackDeadline = 150 * time.Millisecond

	s, err := New(rules.VariantBlackjack, 50, []string{"a", "b"}, led, hub, cfg, 1)
	require.NoError(t, err)
	defer s.Stop()
	go s.Start()

	waitPhase(t, s, PhaseActive)

	// a real stand resolves the decision point; the pending timer for
	// the same arm must then be discarded, not double-applied
	require.NoError(t, s.Submit(rules.Move{Player: "a", Action: rules.ActionStand}))
	require.NoError(t, s.Submit(rules.Move{Player: "b", Action: rules.ActionStand}))

	waitPhase(t, s, PhaseSettled)
	time.Sleep(200 * time.Millisecond) // let any stale timers fire into the void

	total := led.GetBalance("a") + led.GetBalance("b")
	assert.LessOrEqual(t, total, int64(2000), "stale timers must never mint money")

	debits := 0
	for _, ev := range led.GetHistory("a") {
		if ev.Kind == ledger.KindDebit {
			debits++
		}
	}
	assert.Equal(t, 1, debits, "one escrow per round")
}

func TestSession_SettlementIsIdempotentInLedger(t *testing.T) {
	led := newLedger("a", "b")
	s, err := New(rules.VariantBlackjack, 50, []string{"a", "b"}, led, newRecordingHub(), testConfig(), 3)
	require.NoError(t, err)
	defer s.Stop()
	go s.Start()

	waitPhase(t, s, PhaseActive)
	require.NoError(t, s.Submit(rules.Move{Player: "a", Action: rules.ActionStand}))
	require.NoError(t, s.Submit(rules.Move{Player: "b", Action: rules.ActionStand}))
	waitPhase(t, s, PhaseSettled)

	before := led.GetBalance("a")

	// a replayed credit for the same round is absorbed by the ledger
	_, err = led.Credit("a", s.RoundID, 9999)
	require.NoError(t, err)
	assert.Equal(t, before, led.GetBalance("a"))
}

func TestSession_OnDoneFiresAfterGrace(t *testing.T) {
	led := newLedger("a", "b")
	s, err := New(rules.VariantBlackjack, 50, []string{"a", "b"}, led, newRecordingHub(), testConfig(), 3)
	require.NoError(t, err)
	defer s.Stop()

	done := make(chan string, 1)
	s.OnDone = func(id string) { done <- id }
	go s.Start()

	waitPhase(t, s, PhaseActive)
	require.NoError(t, s.Submit(rules.Move{Player: "a", Action: rules.ActionStand}))
	require.NoError(t, s.Submit(rules.Move{Player: "b", Action: rules.ActionStand}))

	select {
	case id := <-done:
		assert.Equal(t, s.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("OnDone never fired")
	}
}

// After a durak take the defender's hand grows; every state broadcast
// must carry the player's own current cards, not just the deal-time
// hand event.
func TestSession_DurakStateCarriesOwnHand(t *testing.T) {
	led := newLedger("a", "b")
	hub := newRecordingHub()

	s, err := New(rules.VariantDurak, 10, []string{"a", "b"}, led, hub, testConfig(), 5)
	require.NoError(t, err)
	defer s.Stop()
	go s.Start()

	waitPhase(t, s, PhaseActive)

	dealt := dealtHand(t, hub, "a")
	require.Len(t, dealt, 6)
	atk := dealt[0]
	require.NoError(t, s.Submit(rules.Move{Player: "a", Action: rules.ActionAttack, Card: &atk}))
	require.NoError(t, s.Submit(rules.Move{Player: "b", Action: rules.ActionTake}))

	hand := waitStateHand(t, hub, "b", 7) // six dealt plus the taken attack card
	assert.Contains(t, hand, atk)
}

func dealtHand(t *testing.T, hub *recordingHub, id string) []deck.Card {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		for _, m := range hub.msgs[id] {
			if m.Event == "hand" {
				cards := m.Data.(map[string]any)["cards"].([]deck.Card)
				hub.mu.Unlock()
				return cards
			}
		}
		hub.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("player %s never received a hand", id)
	return nil
}

// waitStateHand polls for a state broadcast whose own-hand view reached
// the wanted size.
func waitStateHand(t *testing.T, hub *recordingHub, id string, size int) []deck.Card {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		for i := len(hub.msgs[id]) - 1; i >= 0; i-- {
			m := hub.msgs[id][i]
			if m.Event != "state" {
				continue
			}
			if hand, ok := m.Data.(map[string]any)["hand"].([]deck.Card); ok && len(hand) == size {
				hub.mu.Unlock()
				return hand
			}
			break
		}
		hub.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("player %s never saw a %d-card hand in a state broadcast", id, size)
	return nil
}
