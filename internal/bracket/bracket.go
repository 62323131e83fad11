// Package bracket owns elimination-bracket topology and the
// progression of match results along its edges. Persistence goes
// through the narrow Store interface; implementations live in
// internal/store.
package bracket

import (
	"context"
	"errors"
)

var ErrMatchNotFound = errors.New("match not found")
var ErrBracketNotFound = errors.New("bracket not found")
var ErrResultConflict = errors.New("conflicting result already recorded")
var ErrMatchNotEligible = errors.New("match not eligible for a result")
var ErrUnknownWinner = errors.New("winner is not an occupant of the match")
var ErrBrokenTopology = errors.New("bracket topology is broken")

type Slot int

const (
	SlotA Slot = 1
	SlotB Slot = 2
)

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchReady     MatchStatus = "ready"
	MatchInDraft   MatchStatus = "in_draft"
	MatchCompleted MatchStatus = "completed"
	MatchVoided    MatchStatus = "voided"
)

// Match is one node of the bracket. TeamA/TeamB are empty until seeded
// or propagated into; Winner is empty until a result is recorded, and
// immutable afterwards.
type Match struct {
	ID           string      `json:"id"`
	TournamentID string      `json:"tournament_id"`
	Round        int         `json:"round"`
	Index        int         `json:"index"`
	TeamA        string      `json:"team_a"`
	TeamB        string      `json:"team_b"`
	Winner       string      `json:"winner,omitempty"`
	Score        string      `json:"score,omitempty"`
	Status       MatchStatus `json:"status"`
}

func (m Match) Occupant(slot Slot) string {
	if slot == SlotA {
		return m.TeamA
	}
	return m.TeamB
}

func (m Match) BothSeeded() bool { return m.TeamA != "" && m.TeamB != "" }

func (m Match) HasResult() bool { return m.Winner != "" }

// Edge routes a finished match's teams downstream. LoserTo is empty for
// single elimination.
type Edge struct {
	WinnerTo   string `json:"winner_to"`
	WinnerSlot Slot   `json:"winner_slot"`
	LoserTo    string `json:"loser_to,omitempty"`
	LoserSlot  Slot   `json:"loser_slot,omitempty"`
}

// Bracket is the tournament-scoped topology: ordered match ids per
// round plus the edges between them. Edges are fixed at tournament
// creation; only match occupants change as results propagate.
type Bracket struct {
	TournamentID string           `json:"tournament_id"`
	Rounds       map[int][]string `json:"rounds"`
	Edges        map[string]Edge  `json:"edges"`
	Complete     bool             `json:"complete"`
	Champion     string           `json:"champion,omitempty"`
}

// FinalRound is the highest round number in the topology.
func (b Bracket) FinalRound() int {
	max := 0
	for r := range b.Rounds {
		if r > max {
			max = r
		}
	}
	return max
}

// Store is the narrow persistence surface the progression engine
// consumes. Atomically must run fn against a view where either every
// write in fn lands or none do; concurrent Atomically calls touching
// the same match are serialized by the implementation.
type Store interface {
	LoadMatch(ctx context.Context, id string) (Match, error)
	LoadBracket(ctx context.Context, tournamentID string) (Bracket, error)
	SetMatchOccupant(ctx context.Context, matchID string, slot Slot, team string) error
	SetMatchResult(ctx context.Context, matchID, winner, score string) error
	SetMatchStatus(ctx context.Context, matchID string, status MatchStatus) error
	SetBracketComplete(ctx context.Context, tournamentID, champion string) error
	Atomically(ctx context.Context, fn func(Store) error) error
}
