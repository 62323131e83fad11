package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jsalverda/tourney-draft-backend/internal/bracket"
)

type matchRow struct {
	ID           string `gorm:"primaryKey"`
	TournamentID string `gorm:"index"`
	Round        int
	Idx          int
	TeamA        string
	TeamB        string
	Winner       string
	Score        string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (matchRow) TableName() string { return "matches" }

type bracketRow struct {
	TournamentID string `gorm:"primaryKey"`
	BracketData  []byte `gorm:"type:jsonb"`
	Complete     bool
	Champion     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (bracketRow) TableName() string { return "tournament_brackets" }

// topology is what lives inside the bracket_data column.
type topology struct {
	Rounds map[int][]string        `json:"rounds"`
	Edges  map[string]bracket.Edge `json:"edges"`
}

// GormStore is the postgres-backed bracket.Store. Atomically maps to a
// transaction, and LoadMatch takes a row lock inside one so concurrent
// RecordResult calls for the same match serialize at the database.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGorm(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&matchRow{}, &bracketRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) LoadMatch(ctx context.Context, id string) (bracket.Match, error) {
	var row matchRow
	q := s.db.WithContext(ctx)
	if s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bracket.Match{}, bracket.ErrMatchNotFound
		}
		return bracket.Match{}, err
	}
	return bracket.Match{
		ID:           row.ID,
		TournamentID: row.TournamentID,
		Round:        row.Round,
		Index:        row.Idx,
		TeamA:        row.TeamA,
		TeamB:        row.TeamB,
		Winner:       row.Winner,
		Score:        row.Score,
		Status:       bracket.MatchStatus(row.Status),
	}, nil
}

func (s *GormStore) LoadBracket(ctx context.Context, tournamentID string) (bracket.Bracket, error) {
	var row bracketRow
	if err := s.db.WithContext(ctx).First(&row, "tournament_id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bracket.Bracket{}, bracket.ErrBracketNotFound
		}
		return bracket.Bracket{}, err
	}
	var topo topology
	if err := json.Unmarshal(row.BracketData, &topo); err != nil {
		return bracket.Bracket{}, err
	}
	return bracket.Bracket{
		TournamentID: row.TournamentID,
		Rounds:       topo.Rounds,
		Edges:        topo.Edges,
		Complete:     row.Complete,
		Champion:     row.Champion,
	}, nil
}

func (s *GormStore) SetMatchOccupant(ctx context.Context, matchID string, slot bracket.Slot, team string) error {
	col := "team_a"
	if slot == bracket.SlotB {
		col = "team_b"
	}
	return s.updateMatch(ctx, matchID, map[string]any{col: team})
}

func (s *GormStore) SetMatchResult(ctx context.Context, matchID, winner, score string) error {
	return s.updateMatch(ctx, matchID, map[string]any{"winner": winner, "score": score})
}

func (s *GormStore) SetMatchStatus(ctx context.Context, matchID string, status bracket.MatchStatus) error {
	return s.updateMatch(ctx, matchID, map[string]any{"status": string(status)})
}

func (s *GormStore) SetBracketComplete(ctx context.Context, tournamentID, champion string) error {
	res := s.db.WithContext(ctx).Model(&bracketRow{}).
		Where("tournament_id = ?", tournamentID).
		Updates(map[string]any{"complete": true, "champion": champion})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return bracket.ErrBracketNotFound
	}
	return nil
}

func (s *GormStore) Atomically(ctx context.Context, fn func(bracket.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

// SaveBracket upserts a topology and its matches; the seam the
// tournament CRUD layer seeds brackets through.
func (s *GormStore) SaveBracket(ctx context.Context, b bracket.Bracket, matches []bracket.Match) error {
	data, err := json.Marshal(topology{Rounds: b.Rounds, Edges: b.Edges})
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := bracketRow{
			TournamentID: b.TournamentID,
			BracketData:  data,
			Complete:     b.Complete,
			Champion:     b.Champion,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		for _, m := range matches {
			mr := matchRow{
				ID:           m.ID,
				TournamentID: m.TournamentID,
				Round:        m.Round,
				Idx:          m.Index,
				TeamA:        m.TeamA,
				TeamB:        m.TeamB,
				Winner:       m.Winner,
				Score:        m.Score,
				Status:       string(m.Status),
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&mr).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) updateMatch(ctx context.Context, matchID string, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(&matchRow{}).
		Where("id = ?", matchID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return bracket.ErrMatchNotFound
	}
	return nil
}
