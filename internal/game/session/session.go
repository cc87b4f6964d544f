package session

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"CardRoyale/internal/game/rules"
	"CardRoyale/internal/ledger"
	"CardRoyale/internal/utils"
	"CardRoyale/internal/websocket"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseForming   Phase = "forming"
	PhaseEscrowing Phase = "escrowing"
	PhaseActive    Phase = "active"
	PhaseSettling  Phase = "settling"
	PhaseSettled   Phase = "settled"
	PhaseAbandoned Phase = "abandoned"
)

var ErrAlreadySettled = errors.New("session already settled")

type Config struct {
	BlackjackDeadline time.Duration
	DurakDeadline     time.Duration
	SettleGrace       time.Duration
}

// Session is one round's actor: every move, player or synthetic
// timeout, funnels through one channel consumed by one goroutine, so
// the table state is never touched concurrently.
type Session struct {
	ID      string
	RoundID string
	Variant rules.Variant
	Stake   int64
	Seats   []string

	engine rules.Engine
	state  rules.State
	phase  Phase
	led    *ledger.Ledger
	hub    websocket.HubInterface
	cfg    Config
	rnd    *rand.Rand

	actions chan envelope
	quit    chan struct{}
	once    sync.Once

	// timers: armSeq invalidates a pending expiry the moment its
	// decision point is re-armed or resolved
	timers map[string]*time.Timer
	armSeq map[string]int
	deadAt map[string]int64 // unix millis, for client countdowns

	// settlement snapshot, readable after the actor parks
	mu       sync.RWMutex
	outcomes map[string]rules.Outcome

	// OnDone fires once the session reaches a terminal phase and the
	// grace period elapsed; the manager uses it to drop the session.
	OnDone func(sessionID string)
}

type envelope struct {
	move    rules.Move
	seq     int // timeout moves only
	timeout bool
	reply   chan error
}

func New(variant rules.Variant, stake int64, seats []string, led *ledger.Ledger, hub websocket.HubInterface, cfg Config, seed int64) (*Session, error) {
	engine, err := rules.ForVariant(variant)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:      uuid.NewString(),
		RoundID: uuid.NewString(),
		Variant: variant,
		Stake:   stake,
		Seats:   append([]string(nil), seats...),
		engine:  engine,
		phase:   PhaseForming,
		led:     led,
		hub:     hub,
		cfg:     cfg,
		rnd:     rand.New(rand.NewSource(seed)),
		actions: make(chan envelope, 32),
		quit:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
		armSeq:  make(map[string]int),
		deadAt:  make(map[string]int64),
	}, nil
}

// Start escrows the stakes and, on success, deals and runs the actor
// loop. Runs on its own goroutine.
func (s *Session) Start() {
	if !s.escrow() {
		return
	}

	s.setPhase(PhaseActive)
	s.state = s.engine.Deal(s.Seats, s.rnd)

	for _, p := range s.Seats {
		s.hub.SendToPlayer(p, websocket.OutgoingMessage{
			Event: "hand",
			Data: map[string]any{
				"sessionId": s.ID,
				"cards":     s.engine.Hand(s.state, p),
			},
		})
	}
	s.rearmTimers("")
	s.broadcastState()

	s.loop()
}

// escrow debits every seat for this round. Any failed seat refunds the
// ones already debited and abandons the session, the one compensating
// action the core performs on its own.
func (s *Session) escrow() bool {
	s.setPhase(PhaseEscrowing)

	debited := make([]string, 0, len(s.Seats))
	for _, p := range s.Seats {
		if _, err := s.led.Debit(p, s.RoundID, s.Stake); err != nil {
			utils.Error.Printf("session %s: escrow failed for %s: %v", s.ID, p, err)
			for _, d := range debited {
				if _, cerr := s.led.Credit(d, s.RoundID, s.Stake); cerr != nil {
					utils.Error.Printf("session %s: refund failed for %s: %v", s.ID, d, cerr)
				}
			}
			s.abandon(p)
			return false
		}
		debited = append(debited, p)
	}
	return true
}

func (s *Session) abandon(failedSeat string) {
	s.setPhase(PhaseAbandoned)
	s.hub.BroadcastToPlayers(s.Seats, websocket.OutgoingMessage{
		Event: "error_msg",
		Data: map[string]any{
			"sessionId": s.ID,
			"message":   "match aborted: stake could not be escrowed",
			"seat":      failedSeat,
		},
	})
	if s.OnDone != nil {
		go s.OnDone(s.ID)
	}
}

func (s *Session) loop() {
	for {
		select {
		case env := <-s.actions:
			if env.timeout {
				s.handleTimeout(env)
			} else {
				s.handleMove(env)
			}
		case <-s.quit:
			s.stopTimers()
			return
		}
	}
}

// Submit queues a player move and waits for the actor's verdict. The
// error goes back to the offending player only.
func (s *Session) Submit(m rules.Move) error {
	reply := make(chan error, 1)
	select {
	case s.actions <- envelope{move: m, reply: reply}:
	case <-s.quit:
		return ErrAlreadySettled
	}
	select {
	case err := <-reply:
		return err
	case <-s.quit:
		return ErrAlreadySettled
	}
}

func (s *Session) handleMove(env envelope) {
	if s.phase != PhaseActive {
		env.reply <- ErrAlreadySettled
		return
	}
	if env.move.Action == rules.ActionTimeout {
		// synthetic action, not accepted from the network
		env.reply <- rules.ErrIllegalMove
		return
	}
	if err := s.engine.Apply(s.state, env.move); err != nil {
		env.reply <- err
		return
	}
	env.reply <- nil
	s.afterApply(env.move.Player)
}

func (s *Session) handleTimeout(env envelope) {
	if s.phase != PhaseActive {
		return
	}
	// a timer that was re-armed or resolved in the meantime is stale
	if s.armSeq[env.move.Player] != env.seq {
		return
	}
	if err := s.engine.Apply(s.state, rules.Move{Player: env.move.Player, Action: rules.ActionTimeout}); err != nil {
		return
	}
	utils.Info.Printf("session %s: deadline expired for %s", s.ID, env.move.Player)
	s.afterApply(env.move.Player)
}

func (s *Session) afterApply(mover string) {
	if s.engine.IsTerminal(s.state) {
		s.settle()
		return
	}
	s.rearmTimers(mover)
	s.broadcastState()
}

// settle runs exactly once: it is only reachable from the actor
// goroutine while phase is Active, and flips the phase before any
// credit is written.
func (s *Session) settle() {
	s.setPhase(PhaseSettling)
	s.stopTimers()

	outcomes := s.engine.Settle(s.state, s.Stake)
	balances := make(map[string]int64, len(outcomes))
	for p, o := range outcomes {
		bal, err := s.led.Credit(p, s.RoundID, o.Payout)
		if err != nil {
			utils.Error.Printf("session %s: credit failed for %s: %v", s.ID, p, err)
			continue
		}
		balances[p] = bal
	}

	s.mu.Lock()
	s.outcomes = outcomes
	s.mu.Unlock()
	s.setPhase(PhaseSettled)

	s.hub.BroadcastToPlayers(s.Seats, websocket.OutgoingMessage{
		Event: "round_settled",
		Data: map[string]any{
			"sessionId": s.ID,
			"roundId":   s.RoundID,
			"stake":     s.Stake,
			"result":    outcomes,
			"balances":  balances,
			"view":      s.engine.View(s.state, ""),
		},
	})

	if s.OnDone != nil {
		id := s.ID
		time.AfterFunc(s.cfg.SettleGrace, func() { s.OnDone(id) })
	}
}

// Stop parks the actor. Idempotent.
func (s *Session) Stop() {
	s.once.Do(func() { close(s.quit) })
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Outcomes returns the frozen settlement, if any. Late or duplicate
// requests read this instead of re-settling.
func (s *Session) Outcomes() (map[string]rules.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.outcomes == nil {
		return nil, false
	}
	return s.outcomes, true
}

func (s *Session) deadline() time.Duration {
	if s.Variant == rules.VariantDurak {
		return s.cfg.DurakDeadline
	}
	return s.cfg.BlackjackDeadline
}

// rearmTimers disarms players whose decision resolved and gives a fresh
// deadline to whoever now has the move. A still-armed player other than
// the mover keeps their running clock. Expiry enqueues a synthetic
// timeout move tagged with the arm sequence, so a late real move and an
// expired timer can never both resolve the same decision point.
func (s *Session) rearmTimers(mover string) {
	awaiting := make(map[string]bool)
	for _, p := range s.engine.AwaitingMove(s.state) {
		awaiting[p] = true
	}

	d := s.deadline()
	for _, p := range s.Seats {
		if !awaiting[p] {
			if t, ok := s.timers[p]; ok {
				t.Stop()
				delete(s.timers, p)
			}
			s.armSeq[p]++
			delete(s.deadAt, p)
			continue
		}
		if _, armed := s.timers[p]; armed && p != mover {
			continue
		}
		if t, ok := s.timers[p]; ok {
			t.Stop()
		}
		s.armSeq[p]++
		player := p
		seq := s.armSeq[p]
		s.deadAt[p] = time.Now().Add(d).UnixMilli()
		s.timers[p] = time.AfterFunc(d, func() {
			select {
			case s.actions <- envelope{move: rules.Move{Player: player}, seq: seq, timeout: true}:
			case <-s.quit:
			}
		})
	}
}

func (s *Session) stopTimers() {
	for p, t := range s.timers {
		t.Stop()
		delete(s.timers, p)
		s.armSeq[p]++
	}
}

func (s *Session) broadcastState() {
	for _, p := range s.Seats {
		view := s.engine.View(s.state, p)
		view["sessionId"] = s.ID
		view["roundId"] = s.RoundID
		view["stake"] = s.Stake
		view["phase"] = s.phase
		view["deadline"] = s.deadlineView()
		s.hub.SendToPlayer(p, websocket.OutgoingMessage{
			Event: "state",
			Data:  view,
		})
	}
}

// deadlineView: durak runs one shared clock, blackjack one per player.
func (s *Session) deadlineView() any {
	if s.Variant == rules.VariantDurak {
		for _, at := range s.deadAt {
			return at
		}
		return nil
	}
	out := make(map[string]int64, len(s.deadAt))
	for p, at := range s.deadAt {
		out[p] = at
	}
	return out
}
