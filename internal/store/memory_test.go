package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsalverda/tourney-draft-backend/internal/bracket"
)

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.LoadMatch(ctx, "nope")
	assert.ErrorIs(t, err, bracket.ErrMatchNotFound)

	_, err = s.LoadBracket(ctx, "nope")
	assert.ErrorIs(t, err, bracket.ErrBracketNotFound)

	assert.ErrorIs(t, s.SetMatchStatus(ctx, "nope", bracket.MatchReady), bracket.ErrMatchNotFound)
	assert.ErrorIs(t, s.SetBracketComplete(ctx, "nope", "x"), bracket.ErrBracketNotFound)
}

func TestMemory_OccupantSlots(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.PutMatch(bracket.Match{ID: "m1", Status: bracket.MatchPending})

	require.NoError(t, s.SetMatchOccupant(ctx, "m1", bracket.SlotA, "TeamX"))
	require.NoError(t, s.SetMatchOccupant(ctx, "m1", bracket.SlotB, "TeamY"))

	m, err := s.LoadMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "TeamX", m.TeamA)
	assert.Equal(t, "TeamY", m.TeamB)
	assert.True(t, m.BothSeeded())
}

func TestMemory_AtomicallyRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.PutMatch(bracket.Match{ID: "m1", Status: bracket.MatchReady})

	boom := errors.New("boom")
	err := s.Atomically(ctx, func(tx bracket.Store) error {
		if err := tx.SetMatchResult(ctx, "m1", "TeamX", "13-7"); err != nil {
			return err
		}
		if err := tx.SetMatchStatus(ctx, "m1", bracket.MatchCompleted); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	m, err := s.LoadMatch(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, m.HasResult())
	assert.Equal(t, bracket.MatchReady, m.Status)
}

func TestMemory_AtomicallyCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.PutMatch(bracket.Match{ID: "m1", Status: bracket.MatchReady})
	s.PutBracket(bracket.Bracket{TournamentID: "t1", Rounds: map[int][]string{1: {"m1"}}})

	err := s.Atomically(ctx, func(tx bracket.Store) error {
		if err := tx.SetMatchResult(ctx, "m1", "TeamX", "13-7"); err != nil {
			return err
		}
		return tx.SetBracketComplete(ctx, "t1", "TeamX")
	})
	require.NoError(t, err)

	m, err := s.LoadMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "TeamX", m.Winner)

	b, err := s.LoadBracket(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, b.Complete)
}
