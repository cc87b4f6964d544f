package manager

import (
	"sync"
	"testing"
	"time"

	"CardRoyale/internal/game/session"
	"CardRoyale/internal/ledger"
	"CardRoyale/internal/matchmaker"
	ws "CardRoyale/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHub struct {
	mu   sync.Mutex
	msgs map[string][]ws.OutgoingMessage
}

func newStubHub() *stubHub {
	return &stubHub{msgs: make(map[string][]ws.OutgoingMessage)}
}

func (h *stubHub) BroadcastToPlayers(ids []string, msg ws.OutgoingMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		h.msgs[id] = append(h.msgs[id], msg)
	}
}

func (h *stubHub) SendToPlayer(id string, msg ws.OutgoingMessage) {
	h.BroadcastToPlayers([]string{id}, msg)
}

func (h *stubHub) ClientByUserID(id string) (*ws.Client, bool) { return nil, false }
func (h *stubHub) Close()                                      {}

func (h *stubHub) waitFor(t *testing.T, id, event string) ws.OutgoingMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		for _, m := range h.msgs[id] {
			if m.Event == event {
				h.mu.Unlock()
				return m
			}
		}
		h.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("player %s never received %q", id, event)
	return ws.OutgoingMessage{}
}

func testCfg() session.Config {
	return session.Config{
		BlackjackDeadline: time.Hour,
		DurakDeadline:     time.Hour,
		SettleGrace:       20 * time.Millisecond,
	}
}

func room(players ...string) *matchmaker.Room {
	return &matchmaker.Room{
		ID:      "room-1",
		Variant: "blackjack",
		Stake:   50,
		Players: players,
	}
}

func waitInSession(t *testing.T, m *Manager, userID string, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.InSession(userID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("InSession(%s) never became %v", userID, want)
}

func TestManager_StartSessionSeatsPlayers(t *testing.T) {
	led := ledger.New(1000)
	hub := newStubHub()
	m := New(led, hub, testCfg())

	require.NoError(t, m.StartSession(room("a", "b")))

	waitInSession(t, m, "a", true)
	waitInSession(t, m, "b", true)
	assert.False(t, m.InSession("stranger"))

	hub.waitFor(t, "a", "hand")
	hub.waitFor(t, "b", "state")

	assert.Equal(t, int64(950), led.GetBalance("a"))
	assert.Equal(t, int64(950), led.GetBalance("b"))
}

func TestManager_StartSessionUnknownVariant(t *testing.T) {
	m := New(ledger.New(1000), newStubHub(), testCfg())
	err := m.StartSession(&matchmaker.Room{Variant: "poker", Stake: 10, Players: []string{"a", "b"}})
	assert.Error(t, err)
	assert.False(t, m.InSession("a"))
}

func TestManager_RoutesMovesToSettlement(t *testing.T) {
	led := ledger.New(1000)
	hub := newStubHub()
	m := New(led, hub, testCfg())

	require.NoError(t, m.StartSession(room("a", "b")))
	hub.waitFor(t, "a", "state")

	stand := func(p string) {
		m.HandlePlayerMessage(ws.IncomingMessage{
			From:  p,
			Event: "move",
			Data:  ws.MoveData{Action: "stand"},
		})
	}
	stand("a")
	stand("b")

	hub.waitFor(t, "a", "round_settled")
	hub.waitFor(t, "b", "round_settled")

	// the grace period elapses and the seats free up
	waitInSession(t, m, "a", false)
	waitInSession(t, m, "b", false)
}

// Removing a settled session must hand the seats back to whoever books
// room membership, or finished players stay locked out of the queue.
func TestManager_ReleasesSeatsWhenSessionEnds(t *testing.T) {
	led := ledger.New(1000)
	hub := newStubHub()
	m := New(led, hub, testCfg())

	released := make(chan []string, 1)
	m.OnSessionEnd = func(seats []string) { released <- seats }

	require.NoError(t, m.StartSession(room("a", "b")))
	hub.waitFor(t, "a", "state")

	for _, p := range []string{"a", "b"} {
		m.HandlePlayerMessage(ws.IncomingMessage{
			From:  p,
			Event: "move",
			Data:  ws.MoveData{Action: "stand"},
		})
	}

	select {
	case seats := <-released:
		assert.ElementsMatch(t, []string{"a", "b"}, seats)
	case <-time.After(2 * time.Second):
		t.Fatal("seats never released after settlement")
	}
	assert.False(t, m.InSession("a"))
}

func TestManager_MoveWithoutSessionErrors(t *testing.T) {
	hub := newStubHub()
	m := New(ledger.New(1000), hub, testCfg())

	m.HandlePlayerMessage(ws.IncomingMessage{
		From:  "nobody",
		Event: "move",
		Data:  ws.MoveData{Action: "stand"},
	})

	msg := hub.waitFor(t, "nobody", "error_msg")
	data := msg.Data.(map[string]any)
	assert.Equal(t, ErrSessionNotFound.Error(), data["message"])
}

func TestManager_IllegalMoveReachesOnlyTheMover(t *testing.T) {
	led := ledger.New(1000)
	hub := newStubHub()
	m := New(led, hub, testCfg())

	require.NoError(t, m.StartSession(room("a", "b")))
	hub.waitFor(t, "a", "state")

	m.HandlePlayerMessage(ws.IncomingMessage{
		From:  "a",
		Event: "move",
		Data:  ws.MoveData{Action: "bito"}, // durak move at a blackjack table
	})

	hub.waitFor(t, "a", "error_msg")
	hub.mu.Lock()
	for _, msg := range hub.msgs["b"] {
		assert.NotEqual(t, "error_msg", msg.Event, "opponent must not see the mover's error")
	}
	hub.mu.Unlock()
}

func TestManager_ChatFansOutToTheTable(t *testing.T) {
	led := ledger.New(1000)
	hub := newStubHub()
	m := New(led, hub, testCfg())

	require.NoError(t, m.StartSession(room("a", "b")))
	waitInSession(t, m, "a", true)

	m.HandlePlayerMessage(ws.IncomingMessage{
		From:  "a",
		Event: "chat",
		Data:  ws.MoveData{Text: "gl hf"},
	})

	for _, p := range []string{"a", "b"} {
		msg := hub.waitFor(t, p, "chat")
		data := msg.Data.(map[string]any)
		assert.Equal(t, "a", data["from"])
		assert.Equal(t, "gl hf", data["text"])
	}
}
