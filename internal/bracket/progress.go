package bracket

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jsalverda/tourney-draft-backend/internal/engine"
)

// Advancement records one team landing in a downstream slot.
type Advancement struct {
	MatchID string `json:"match_id"`
	Slot    Slot   `json:"slot"`
	Team    string `json:"team"`
}

// Outcome describes what a recorded result changed. When the same
// result is recorded twice, AlreadyRecorded is set and nothing else
// happened.
type Outcome struct {
	MatchID            string        `json:"match_id"`
	Winner             string        `json:"winner"`
	AlreadyRecorded    bool          `json:"already_recorded,omitempty"`
	Advanced           []Advancement `json:"advanced,omitempty"`
	ReadyMatches       []string      `json:"ready_matches,omitempty"`
	TournamentComplete bool          `json:"tournament_complete,omitempty"`
	Champion           string        `json:"champion,omitempty"`
}

// Engine threads match results through the bracket. Every public
// operation runs inside store.Atomically, so readers observe either
// the pre-result or the fully propagated state, never a half-updated
// bracket.
type Engine struct {
	store  Store
	logger *zap.Logger
}

func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// RecordResult sets a match's winner exactly once. An identical retry
// is a no-op; a conflicting retry is rejected and the original result
// stands.
func (e *Engine) RecordResult(ctx context.Context, matchID, winner, score string) (Outcome, error) {
	var out Outcome
	err := e.store.Atomically(ctx, func(tx Store) error {
		m, err := tx.LoadMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.HasResult() {
			if m.Winner == winner && m.Score == score {
				out = Outcome{MatchID: matchID, Winner: winner, AlreadyRecorded: true}
				return nil
			}
			return ErrResultConflict
		}
		if m.Status != MatchReady && m.Status != MatchInDraft {
			return fmt.Errorf("%w: status %s", ErrMatchNotEligible, m.Status)
		}
		if winner == "" || (winner != m.TeamA && winner != m.TeamB) {
			return ErrUnknownWinner
		}

		if err := tx.SetMatchResult(ctx, matchID, winner, score); err != nil {
			return err
		}
		if err := tx.SetMatchStatus(ctx, matchID, MatchCompleted); err != nil {
			return err
		}
		out = Outcome{MatchID: matchID, Winner: winner}
		return e.propagate(ctx, tx, m, winner, &out)
	})
	if err != nil {
		return Outcome{}, err
	}
	if !out.AlreadyRecorded {
		e.logger.Info("result recorded",
			zap.String("match_id", matchID),
			zap.String("winner", winner),
			zap.Bool("tournament_complete", out.TournamentComplete))
	}
	return out, nil
}

// ResolveByes auto-advances every match whose opposing slot is
// structurally empty (no seed and no feeder edge), without ever
// creating a draft session for it. Rounds are walked in order so a bye
// cascading into another bye resolves in a single pass.
func (e *Engine) ResolveByes(ctx context.Context, tournamentID string) ([]Outcome, error) {
	var outs []Outcome
	err := e.store.Atomically(ctx, func(tx Store) error {
		b, err := tx.LoadBracket(ctx, tournamentID)
		if err != nil {
			return err
		}
		fed := feederSlots(b)

		rounds := make([]int, 0, len(b.Rounds))
		for r := range b.Rounds {
			rounds = append(rounds, r)
		}
		sort.Ints(rounds)

		for _, r := range rounds {
			for _, id := range b.Rounds[r] {
				m, err := tx.LoadMatch(ctx, id)
				if err != nil {
					return err
				}
				if m.Status != MatchPending || m.HasResult() {
					continue
				}
				sole := soleOccupant(m, fed[id])
				if sole == "" {
					continue
				}
				if err := tx.SetMatchResult(ctx, id, sole, "bye"); err != nil {
					return err
				}
				if err := tx.SetMatchStatus(ctx, id, MatchCompleted); err != nil {
					return err
				}
				out := Outcome{MatchID: id, Winner: sole}
				if err := e.propagate(ctx, tx, m, sole, &out); err != nil {
					return err
				}
				outs = append(outs, out)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, out := range outs {
		e.logger.Info("bye resolved",
			zap.String("match_id", out.MatchID),
			zap.String("winner", out.Winner))
	}
	return outs, nil
}

// BeginDraft transitions a ready match to in_draft, guaranteeing both
// occupants are present before a session can exist for it.
func (e *Engine) BeginDraft(ctx context.Context, matchID string) (Match, error) {
	var m Match
	err := e.store.Atomically(ctx, func(tx Store) error {
		var err error
		m, err = tx.LoadMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != MatchReady {
			return fmt.Errorf("%w: status %s", ErrMatchNotEligible, m.Status)
		}
		if !m.BothSeeded() {
			return fmt.Errorf("%w: missing occupant", ErrMatchNotEligible)
		}
		if err := tx.SetMatchStatus(ctx, matchID, MatchInDraft); err != nil {
			return err
		}
		m.Status = MatchInDraft
		return nil
	})
	return m, err
}

// DraftCompleted is the durable hand-off of a finished pick/ban
// exchange. The match stays in_draft until its played result arrives
// through RecordResult.
func (e *Engine) DraftCompleted(ctx context.Context, matchID string, log []engine.ActionRecord) error {
	m, err := e.store.LoadMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Status != MatchInDraft {
		return fmt.Errorf("%w: status %s", ErrMatchNotEligible, m.Status)
	}
	e.logger.Info("draft completed",
		zap.String("match_id", matchID),
		zap.Int("actions", len(log)))
	return nil
}

// VoidMatch marks an abandoned or aborted match for administrative
// resolution. A completed match cannot be voided.
func (e *Engine) VoidMatch(ctx context.Context, matchID string) error {
	err := e.store.Atomically(ctx, func(tx Store) error {
		m, err := tx.LoadMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status == MatchCompleted || m.HasResult() {
			return fmt.Errorf("%w: already completed", ErrMatchNotEligible)
		}
		return tx.SetMatchStatus(ctx, matchID, MatchVoided)
	})
	if err != nil {
		return err
	}
	e.logger.Warn("match voided", zap.String("match_id", matchID))
	return nil
}

func (e *Engine) propagate(ctx context.Context, tx Store, m Match, winner string, out *Outcome) error {
	b, err := tx.LoadBracket(ctx, m.TournamentID)
	if err != nil {
		return err
	}

	edge, ok := b.Edges[m.ID]
	if !ok {
		if m.Round != b.FinalRound() {
			return fmt.Errorf("%w: match %s has no downstream edge", ErrBrokenTopology, m.ID)
		}
		if err := tx.SetBracketComplete(ctx, b.TournamentID, winner); err != nil {
			return err
		}
		out.TournamentComplete = true
		out.Champion = winner
		return nil
	}

	if err := e.fill(ctx, tx, edge.WinnerTo, edge.WinnerSlot, winner, out); err != nil {
		return err
	}
	loser := m.TeamA
	if loser == winner {
		loser = m.TeamB
	}
	if edge.LoserTo != "" && loser != "" {
		if err := e.fill(ctx, tx, edge.LoserTo, edge.LoserSlot, loser, out); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fill(ctx context.Context, tx Store, matchID string, slot Slot, team string, out *Outcome) error {
	if err := tx.SetMatchOccupant(ctx, matchID, slot, team); err != nil {
		return err
	}
	out.Advanced = append(out.Advanced, Advancement{MatchID: matchID, Slot: slot, Team: team})

	d, err := tx.LoadMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if d.Status == MatchPending && d.BothSeeded() {
		if err := tx.SetMatchStatus(ctx, matchID, MatchReady); err != nil {
			return err
		}
		out.ReadyMatches = append(out.ReadyMatches, matchID)
	}
	return nil
}

// feederSlots maps each match to the set of slots some edge feeds into.
// A slot with no feeder and no seeded team is structurally empty.
func feederSlots(b Bracket) map[string]map[Slot]bool {
	fed := make(map[string]map[Slot]bool)
	mark := func(id string, slot Slot) {
		if id == "" {
			return
		}
		if fed[id] == nil {
			fed[id] = make(map[Slot]bool)
		}
		fed[id][slot] = true
	}
	for _, edge := range b.Edges {
		mark(edge.WinnerTo, edge.WinnerSlot)
		mark(edge.LoserTo, edge.LoserSlot)
	}
	return fed
}

func soleOccupant(m Match, fed map[Slot]bool) string {
	aEmpty := m.TeamA == "" && !fed[SlotA]
	bEmpty := m.TeamB == "" && !fed[SlotB]
	if m.TeamA != "" && bEmpty {
		return m.TeamA
	}
	if m.TeamB != "" && aEmpty {
		return m.TeamB
	}
	return ""
}
