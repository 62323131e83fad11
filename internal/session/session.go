// Package session runs one live pick/ban exchange per match. All
// mutations flow through a single goroutine draining a typed inbox, so
// the turn-index and selection-set invariants never see concurrent
// writers: an administrative abort racing an in-flight turn timeout
// resolves to whichever message the loop drains first.
package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jsalverda/tourney-draft-backend/internal/engine"
)

var ErrDeadlinePassed = errors.New("turn deadline passed")
var ErrAlreadyStarted = errors.New("session already started")
var ErrClosed = errors.New("session closed")

// AbandonCause marks sessions force-aborted by the registry sweep.
const AbandonCause = "abandoned"

// Snapshot is the read-only view handed to observers. The log slice is
// owned by the receiver; the session never writes to it again.
type Snapshot struct {
	MatchID       string                `json:"match_id"`
	FormatID      string                `json:"format_id"`
	Version       int                   `json:"version"`
	Status        engine.Status         `json:"status"`
	TurnIndex     int                   `json:"turn_index"`
	CurrentActor  engine.Role           `json:"current_actor,omitempty"`
	CurrentAction engine.ActionKind     `json:"current_action,omitempty"`
	Deadline      time.Time             `json:"deadline"`
	CreatedAt     time.Time             `json:"created_at"`
	Log           []engine.ActionRecord `json:"log"`
}

// Hooks fire on the session goroutine after the terminal transition has
// been committed. They must not call back into the session.
type Hooks struct {
	OnComplete func(matchID string, log []engine.ActionRecord)
	OnAbort    func(matchID string, cause string)
}

type Config struct {
	Clock func() time.Time // defaults to time.Now
}

type msg interface{ isSessionMsg() }

type startMsg struct{ reply chan error }
type submitMsg struct {
	actor     engine.Role
	selection string
	reply     chan error
}
type timerFiredMsg struct{ gen int }
type abortMsg struct {
	cause string
	reply chan error
}
type subscribeMsg struct {
	id     string
	outbox chan Snapshot
}
type unsubscribeMsg struct{ id string }

func (startMsg) isSessionMsg()       {}
func (submitMsg) isSessionMsg()      {}
func (timerFiredMsg) isSessionMsg()  {}
func (abortMsg) isSessionMsg()       {}
func (subscribeMsg) isSessionMsg()   {}
func (unsubscribeMsg) isSessionMsg() {}

type Session struct {
	matchID   string
	format    engine.Format
	inbox     chan msg
	state     engine.State
	version   int
	deadline  time.Time
	createdAt time.Time
	timerGen  int
	turnTimer *time.Timer
	subs      map[string]chan Snapshot
	clock     func() time.Time
	hooks     Hooks
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	// published holds the last committed snapshot; readers get it
	// without touching the loop, even after Close.
	published atomic.Pointer[Snapshot]
}

func New(parent context.Context, matchID string, format engine.Format, cfg Config, hooks Hooks, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Session{
		matchID:   matchID,
		format:    format,
		inbox:     make(chan msg, 64),
		state:     engine.NewState(),
		createdAt: clock(),
		subs:      make(map[string]chan Snapshot),
		clock:     clock,
		hooks:     hooks,
		logger:    logger.With(zap.String("match_id", matchID), zap.String("format", format.ID)),
		ctx:       ctx,
		cancel:    cancel,
	}
	initial := s.snapshot()
	s.published.Store(&initial)
	go s.loop()
	return s
}

func (s *Session) MatchID() string { return s.matchID }

// Start moves the session from awaiting_start to active and arms the
// first turn deadline.
func (s *Session) Start() error {
	return s.ask(func(reply chan error) msg { return startMsg{reply: reply} })
}

// SubmitAction commits one pick/ban for the given role. The caller is
// responsible for resolving its token to a role first.
func (s *Session) SubmitAction(role engine.Role, selection string) error {
	return s.ask(func(reply chan error) msg {
		return submitMsg{actor: role, selection: selection, reply: reply}
	})
}

// Abort terminates the session administratively. Racing against a
// pending timeout commit is safe: the loser of the race observes
// engine.ErrSessionNotActive.
func (s *Session) Abort(cause string) error {
	return s.ask(func(reply chan error) msg { return abortMsg{cause: cause, reply: reply} })
}

// ForceAbandon is the sweep entry point; aborting an already-terminal
// session is a no-op.
func (s *Session) ForceAbandon() {
	err := s.Abort(AbandonCause)
	if err != nil && !errors.Is(err, engine.ErrSessionNotActive) && !errors.Is(err, ErrClosed) {
		s.logger.Warn("force abandon failed", zap.Error(err))
	}
}

// Snapshot returns the last committed state. It stays valid after the
// session is closed: a completed draft keeps reporting completed, with
// its full log.
func (s *Session) Snapshot() Snapshot {
	return *s.published.Load()
}

// Subscribe registers an outbox for committed snapshots. The current
// snapshot is delivered immediately; slow subscribers are dropped and
// their channel closed.
func (s *Session) Subscribe(id string, outbox chan Snapshot) {
	s.post(subscribeMsg{id: id, outbox: outbox})
}

func (s *Session) Unsubscribe(id string) {
	s.post(unsubscribeMsg{id: id})
}

// Close stops the loop without a terminal state transition. The
// registry only calls it after the session is already terminal.
func (s *Session) Close() { s.cancel() }

func (s *Session) ask(build func(chan error) msg) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- build(reply):
	case <-s.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *Session) post(m msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch m := m.(type) {
			case startMsg:
				m.reply <- s.handleStart()

			case submitMsg:
				m.reply <- s.handleSubmit(m.actor, m.selection)

			case timerFiredMsg:
				s.handleTimerFired(m.gen)

			case abortMsg:
				m.reply <- s.handleAbort(m.cause)

			case subscribeMsg:
				s.subs[m.id] = m.outbox
				m.outbox <- s.snapshot()

			case unsubscribeMsg:
				if ch, ok := s.subs[m.id]; ok {
					delete(s.subs, m.id)
					close(ch)
				}
			}
		}
	}
}

func (s *Session) handleStart() error {
	if s.state.Status != engine.StatusAwaitingStart {
		return ErrAlreadyStarted
	}
	s.state.Status = engine.StatusActive
	s.version++
	s.armTurn()
	s.logger.Info("draft started", zap.Int("turns", len(s.format.Turns)))
	s.broadcast()
	return nil
}

func (s *Session) handleSubmit(actor engine.Role, selection string) error {
	now := s.clock()
	if s.state.Status == engine.StatusActive && now.After(s.deadline) {
		// The timeout fire for this turn is already on its way.
		return ErrDeadlinePassed
	}
	events, next, err := engine.Apply(s.state, s.format, engine.Command{
		Type:      engine.CmdCommit,
		Actor:     actor,
		Selection: selection,
		Now:       now,
	})
	if err != nil {
		return err
	}
	s.commitApplied(events, next)
	return nil
}

func (s *Session) handleTimerFired(gen int) {
	if gen != s.timerGen {
		// A real commit re-armed the timer; this fire is stale.
		return
	}
	if s.state.Status != engine.StatusActive {
		return
	}
	events, next, err := engine.Apply(s.state, s.format, engine.Command{
		Type: engine.CmdAutoCommit,
		Now:  s.clock(),
	})
	if err != nil {
		// Pool exhaustion means the format is broken; void the draft
		// rather than spin on an unservable turn.
		s.logger.Error("auto-commit failed", zap.Error(err))
		_ = s.handleAbort("auto-commit failed: " + err.Error())
		return
	}
	s.logger.Info("turn timed out, auto-committed",
		zap.Int("turn_index", s.state.TurnIndex),
		zap.String("selection", lastRecord(next).Selection))
	s.commitApplied(events, next)
}

func (s *Session) handleAbort(cause string) error {
	events, next, err := engine.Apply(s.state, s.format, engine.Command{
		Type: engine.CmdAbort,
		Now:  s.clock(),
	})
	if err != nil {
		return err
	}
	s.state = next
	s.version++
	s.stopTimer()
	s.logger.Warn("draft aborted", zap.String("cause", cause))
	s.broadcast()
	if engine.ContainsEvent(events, engine.EvtDraftAborted) && s.hooks.OnAbort != nil {
		s.hooks.OnAbort(s.matchID, cause)
	}
	return nil
}

func (s *Session) commitApplied(events []engine.Event, next engine.State) {
	s.state = next
	s.version++
	s.stopTimer()

	if next.Status == engine.StatusCompleted {
		s.logger.Info("draft completed", zap.Int("actions", len(next.Log)))
		if s.hooks.OnComplete != nil {
			s.hooks.OnComplete(s.matchID, next.Log)
		}
	} else {
		s.armTurn()
	}
	s.broadcast()
}

// armTurn computes the next deadline from the current clock reading,
// never from the previous deadline, so lag cannot accumulate across
// turns. The generation counter invalidates in-flight fires.
func (s *Session) armTurn() {
	step := s.format.Turns[s.state.TurnIndex]
	s.deadline = s.clock().Add(step.TimeLimit)
	s.timerGen++
	gen := s.timerGen
	s.turnTimer = time.AfterFunc(step.TimeLimit, func() {
		s.post(timerFiredMsg{gen: gen})
	})
}

func (s *Session) stopTimer() {
	s.timerGen++
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		MatchID:   s.matchID,
		FormatID:  s.format.ID,
		Version:   s.version,
		Status:    s.state.Status,
		TurnIndex: s.state.TurnIndex,
		Deadline:  s.deadline,
		CreatedAt: s.createdAt,
		Log:       append([]engine.ActionRecord{}, s.state.Log...),
	}
	if step, done := engine.CurrentTurn(s.state, s.format); !done && s.state.Status == engine.StatusActive {
		snap.CurrentActor = step.Actor
		snap.CurrentAction = step.Action
	}
	return snap
}

func (s *Session) broadcast() {
	snap := s.snapshot()
	s.published.Store(&snap)
	for id, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Subscriber is slow or gone; drop it.
			close(ch)
			delete(s.subs, id)
		}
	}
}

func (s *Session) shutdown() {
	s.stopTimer()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.cancel()
}

func lastRecord(s engine.State) engine.ActionRecord {
	if len(s.Log) == 0 {
		return engine.ActionRecord{}
	}
	return s.Log[len(s.Log)-1]
}
