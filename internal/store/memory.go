// Package store provides the persistence implementations behind the
// bracket.Store interface: an in-memory store for tests and dev mode,
// and a gorm/postgres store for deployments.
package store

import (
	"context"
	"sync"

	"github.com/jsalverda/tourney-draft-backend/internal/bracket"
)

type memData struct {
	matches  map[string]bracket.Match
	brackets map[string]bracket.Bracket
}

func (d *memData) clone() *memData {
	next := &memData{
		matches:  make(map[string]bracket.Match, len(d.matches)),
		brackets: make(map[string]bracket.Bracket, len(d.brackets)),
	}
	for id, m := range d.matches {
		next.matches[id] = m
	}
	for id, b := range d.brackets {
		next.brackets[id] = cloneBracket(b)
	}
	return next
}

func cloneBracket(b bracket.Bracket) bracket.Bracket {
	out := b
	out.Rounds = make(map[int][]string, len(b.Rounds))
	for r, ids := range b.Rounds {
		out.Rounds[r] = append([]string{}, ids...)
	}
	out.Edges = make(map[string]bracket.Edge, len(b.Edges))
	for id, e := range b.Edges {
		out.Edges[id] = e
	}
	return out
}

// MemoryStore keeps everything behind one mutex. Atomically runs its
// body against a copy and swaps it in only on success, so a failed
// propagation never leaves a half-updated bracket behind.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

func NewMemory() *MemoryStore {
	return &MemoryStore{data: &memData{
		matches:  make(map[string]bracket.Match),
		brackets: make(map[string]bracket.Bracket),
	}}
}

// PutMatch seeds or replaces a match row; used by tests and dev
// fixtures (match CRUD proper lives outside this service).
func (s *MemoryStore) PutMatch(m bracket.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.matches[m.ID] = m
}

// PutBracket seeds or replaces a bracket topology.
func (s *MemoryStore) PutBracket(b bracket.Bracket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.brackets[b.TournamentID] = cloneBracket(b)
}

func (s *MemoryStore) LoadMatch(ctx context.Context, id string) (bracket.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{s.data}).LoadMatch(ctx, id)
}

func (s *MemoryStore) LoadBracket(ctx context.Context, tournamentID string) (bracket.Bracket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{s.data}).LoadBracket(ctx, tournamentID)
}

func (s *MemoryStore) SetMatchOccupant(ctx context.Context, matchID string, slot bracket.Slot, team string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{s.data}).SetMatchOccupant(ctx, matchID, slot, team)
}

func (s *MemoryStore) SetMatchResult(ctx context.Context, matchID, winner, score string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{s.data}).SetMatchResult(ctx, matchID, winner, score)
}

func (s *MemoryStore) SetMatchStatus(ctx context.Context, matchID string, status bracket.MatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{s.data}).SetMatchStatus(ctx, matchID, status)
}

func (s *MemoryStore) SetBracketComplete(ctx context.Context, tournamentID, champion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{s.data}).SetBracketComplete(ctx, tournamentID, champion)
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(bracket.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := s.data.clone()
	if err := fn(&memView{scratch}); err != nil {
		return err
	}
	s.data = scratch
	return nil
}

// memView operates on memData without locking; it only ever runs while
// the owning MemoryStore's mutex is held.
type memView struct {
	data *memData
}

func (v *memView) LoadMatch(_ context.Context, id string) (bracket.Match, error) {
	m, ok := v.data.matches[id]
	if !ok {
		return bracket.Match{}, bracket.ErrMatchNotFound
	}
	return m, nil
}

func (v *memView) LoadBracket(_ context.Context, tournamentID string) (bracket.Bracket, error) {
	b, ok := v.data.brackets[tournamentID]
	if !ok {
		return bracket.Bracket{}, bracket.ErrBracketNotFound
	}
	return cloneBracket(b), nil
}

func (v *memView) SetMatchOccupant(_ context.Context, matchID string, slot bracket.Slot, team string) error {
	m, ok := v.data.matches[matchID]
	if !ok {
		return bracket.ErrMatchNotFound
	}
	if slot == bracket.SlotA {
		m.TeamA = team
	} else {
		m.TeamB = team
	}
	v.data.matches[matchID] = m
	return nil
}

func (v *memView) SetMatchResult(_ context.Context, matchID, winner, score string) error {
	m, ok := v.data.matches[matchID]
	if !ok {
		return bracket.ErrMatchNotFound
	}
	m.Winner = winner
	m.Score = score
	v.data.matches[matchID] = m
	return nil
}

func (v *memView) SetMatchStatus(_ context.Context, matchID string, status bracket.MatchStatus) error {
	m, ok := v.data.matches[matchID]
	if !ok {
		return bracket.ErrMatchNotFound
	}
	m.Status = status
	v.data.matches[matchID] = m
	return nil
}

func (v *memView) SetBracketComplete(_ context.Context, tournamentID, champion string) error {
	b, ok := v.data.brackets[tournamentID]
	if !ok {
		return bracket.ErrBracketNotFound
	}
	b.Complete = true
	b.Champion = champion
	v.data.brackets[tournamentID] = b
	return nil
}

func (v *memView) Atomically(_ context.Context, fn func(bracket.Store) error) error {
	// Already inside the store's critical section.
	return fn(v)
}
