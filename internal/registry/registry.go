// Package registry is the in-memory directory of live draft sessions,
// one per match. A single goroutine owns the session map, so
// concurrent creation for the same match runs the factory at most
// once, and retirement happens only after the terminal event has been
// handed to the progression engine.
package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jsalverda/tourney-draft-backend/internal/engine"
	"github.com/jsalverda/tourney-draft-backend/internal/session"
)

// Progressor receives the durable hand-off of terminal sessions.
type Progressor interface {
	DraftCompleted(ctx context.Context, matchID string, log []engine.ActionRecord) error
	VoidMatch(ctx context.Context, matchID string) error
}

type EventType string

const (
	EventDraftCompleted EventType = "DraftCompleted"
	EventMatchVoided    EventType = "MatchVoided"
)

// Event is relayed to the calling layer (HTTP/WS handlers) so it can
// notify connected clients.
type Event struct {
	Type    EventType
	MatchID string
	Log     []engine.ActionRecord
}

// Factory builds the session for a match; the registry injects the
// hooks that route terminal transitions back through it.
type Factory func(hooks session.Hooks) *session.Session

type Config struct {
	SweepInterval time.Duration
	MaxSessionAge time.Duration
	Grace         time.Duration // slack beyond a turn deadline before abandonment
	OnRetire      func(matchID string)
	Clock         func() time.Time
}

type regMsg interface{ isRegMsg() }

type ensureMsg struct {
	matchID string
	factory Factory
	reply   chan *session.Session
}
type getMsg struct {
	matchID string
	reply   chan *session.Session
}
type retireMsg struct{ matchID string }
type completedMsg struct {
	matchID string
	log     []engine.ActionRecord
}
type abortedMsg struct {
	matchID string
	cause   string
}
type listMsg struct{ reply chan []*session.Session }
type handoffDoneMsg struct {
	matchID string
	h       handoff
	err     error
}

func (ensureMsg) isRegMsg()      {}
func (getMsg) isRegMsg()         {}
func (retireMsg) isRegMsg()      {}
func (completedMsg) isRegMsg()   {}
func (abortedMsg) isRegMsg()     {}
func (listMsg) isRegMsg()        {}
func (handoffDoneMsg) isRegMsg() {}

type handoff struct {
	event EventType
	log   []engine.ActionRecord
}

type Registry struct {
	inbox    chan regMsg
	sessions map[string]*session.Session
	terminal map[string]bool
	pending  map[string]handoff // hand-off failed, retried by sweep
	inflight map[string]bool    // hand-off running off-loop
	events   chan Event
	prog     Progressor
	cfg      Config
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, cfg Config, prog Progressor, logger *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	r := &Registry{
		inbox:    make(chan regMsg, 64),
		sessions: make(map[string]*session.Session),
		terminal: make(map[string]bool),
		pending:  make(map[string]handoff),
		inflight: make(map[string]bool),
		events:   make(chan Event, 64),
		prog:     prog,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.loop()
	if cfg.SweepInterval > 0 {
		go r.sweepLoop()
	}
	return r
}

// GetOrCreate returns the live session for a match, creating it with
// factory if none exists. Exactly one session per match id survives
// concurrent callers.
func (r *Registry) GetOrCreate(matchID string, factory Factory) *session.Session {
	reply := make(chan *session.Session, 1)
	select {
	case r.inbox <- ensureMsg{matchID: matchID, factory: factory, reply: reply}:
	case <-r.ctx.Done():
		return nil
	}
	select {
	case s := <-reply:
		return s
	case <-r.ctx.Done():
		return nil
	}
}

func (r *Registry) Get(matchID string) (*session.Session, bool) {
	reply := make(chan *session.Session, 1)
	select {
	case r.inbox <- getMsg{matchID: matchID, reply: reply}:
	case <-r.ctx.Done():
		return nil, false
	}
	select {
	case s := <-reply:
		return s, s != nil
	case <-r.ctx.Done():
		return nil, false
	}
}

// Retire drops a terminal session. Safe to call repeatedly and for
// unknown matches; a session whose hand-off previously failed gets the
// hand-off retried first.
func (r *Registry) Retire(matchID string) {
	r.post(retireMsg{matchID: matchID})
}

// Events exposes terminal-session notifications for the calling layer.
func (r *Registry) Events() <-chan Event { return r.events }

func (r *Registry) Close() { r.cancel() }

// Hooks builds the session hooks that route a match's terminal
// transitions back into the registry; pass it to the Factory's session.
func (r *Registry) Hooks(matchID string) session.Hooks {
	return session.Hooks{
		OnComplete: func(id string, log []engine.ActionRecord) {
			r.post(completedMsg{matchID: id, log: log})
		},
		OnAbort: func(id, cause string) {
			r.post(abortedMsg{matchID: id, cause: cause})
		},
	}
}

func (r *Registry) post(m regMsg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch m := m.(type) {
			case ensureMsg:
				if s := r.sessions[m.matchID]; s != nil {
					m.reply <- s
					break
				}
				s := m.factory(r.Hooks(m.matchID))
				r.sessions[m.matchID] = s
				r.logger.Info("session created", zap.String("match_id", m.matchID))
				m.reply <- s

			case getMsg:
				m.reply <- r.sessions[m.matchID] // may be nil

			case completedMsg:
				r.terminal[m.matchID] = true
				r.beginHandOff(m.matchID, handoff{event: EventDraftCompleted, log: m.log})

			case abortedMsg:
				r.terminal[m.matchID] = true
				r.logger.Warn("session aborted",
					zap.String("match_id", m.matchID), zap.String("cause", m.cause))
				r.beginHandOff(m.matchID, handoff{event: EventMatchVoided})

			case retireMsg:
				if h, ok := r.pending[m.matchID]; ok {
					r.beginHandOff(m.matchID, h)
					break
				}
				if r.terminal[m.matchID] && !r.inflight[m.matchID] {
					r.retire(m.matchID)
				}

			case handoffDoneMsg:
				delete(r.inflight, m.matchID)
				if m.err != nil {
					r.logger.Error("terminal hand-off failed; will retry",
						zap.String("match_id", m.matchID), zap.Error(m.err))
					r.pending[m.matchID] = m.h
					break
				}
				delete(r.pending, m.matchID)
				r.publish(Event{Type: m.h.event, MatchID: m.matchID, Log: m.h.log})
				r.retire(m.matchID)

			case listMsg:
				out := make([]*session.Session, 0, len(r.sessions))
				for _, s := range r.sessions {
					out = append(out, s)
				}
				m.reply <- out
			}
		}
	}
}

// beginHandOff delivers the terminal event to the progressor on its
// own goroutine, so a slow store call never stalls the registry loop.
// At most one hand-off runs per match; retirement only happens once
// delivery succeeded.
func (r *Registry) beginHandOff(matchID string, h handoff) {
	if r.inflight[matchID] {
		return
	}
	r.inflight[matchID] = true
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
		defer cancel()

		var err error
		switch h.event {
		case EventDraftCompleted:
			err = r.prog.DraftCompleted(ctx, matchID, h.log)
		case EventMatchVoided:
			err = r.prog.VoidMatch(ctx, matchID)
		}
		r.post(handoffDoneMsg{matchID: matchID, h: h, err: err})
	}()
}

func (r *Registry) retire(matchID string) {
	s, ok := r.sessions[matchID]
	if !ok {
		delete(r.terminal, matchID)
		return
	}
	if r.cfg.OnRetire != nil {
		r.cfg.OnRetire(matchID)
	}
	s.Close()
	delete(r.sessions, matchID)
	delete(r.terminal, matchID)
	r.logger.Info("session retired", zap.String("match_id", matchID))
}

func (r *Registry) publish(e Event) {
	select {
	case r.events <- e:
	default:
		r.logger.Warn("event channel full, dropping",
			zap.String("type", string(e.Type)), zap.String("match_id", e.MatchID))
	}
}

// sweepLoop periodically abandons sessions stuck past their deadline
// grace or an absolute age ceiling, and retries blocked retirements.
// It never runs on the registry goroutine: ForceAbandon blocks on the
// session, whose abort hook posts back into the registry inbox.
func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	reply := make(chan []*session.Session, 1)
	select {
	case r.inbox <- listMsg{reply: reply}:
	case <-r.ctx.Done():
		return
	}
	var sessions []*session.Session
	select {
	case sessions = <-reply:
	case <-r.ctx.Done():
		return
	}

	now := r.cfg.Clock()
	for _, s := range sessions {
		snap := s.Snapshot()
		switch snap.Status {
		case engine.StatusCompleted, engine.StatusAborted:
			r.Retire(snap.MatchID)
		case engine.StatusActive:
			if r.cfg.Grace > 0 && now.After(snap.Deadline.Add(r.cfg.Grace)) {
				r.logger.Warn("session stalled past deadline grace",
					zap.String("match_id", snap.MatchID))
				s.ForceAbandon()
			} else if r.overAge(snap.CreatedAt, now) {
				s.ForceAbandon()
			}
		case engine.StatusAwaitingStart:
			if r.overAge(snap.CreatedAt, now) {
				r.logger.Warn("session never started",
					zap.String("match_id", snap.MatchID))
				s.ForceAbandon()
			}
		}
	}
}

func (r *Registry) overAge(createdAt, now time.Time) bool {
	return r.cfg.MaxSessionAge > 0 && now.Sub(createdAt) > r.cfg.MaxSessionAge
}

func (r *Registry) shutdown() {
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
	close(r.events)
	r.cancel()
}
