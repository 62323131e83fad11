package engine

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownFormat = errors.New("unknown draft format")
var ErrInvalidFormat = errors.New("invalid draft format")

// TurnSpec describes one step of a draft order.
type TurnSpec struct {
	Actor     Role          `json:"actor"`
	Action    ActionKind    `json:"action"`
	TimeLimit time.Duration `json:"time_limit"`
}

// Format is the static description of a pick/ban sequence plus the
// closed pool of entities captains may select from. Formats are
// registered at process start and never mutated afterwards.
type Format struct {
	ID    string     `json:"id"`
	Turns []TurnSpec `json:"turns"`
	Pool  []string   `json:"pool"`
}

// defaultMapPool is the seven-map competitive pool the registration
// site runs its vetoes on.
var defaultMapPool = []string{
	"ancient", "anubis", "dust2", "inferno", "mirage", "nuke", "overpass",
}

var formats = map[string]Format{}

func init() {
	mustRegister(bo1Format())
	mustRegister(bo3Format())
}

// LookupFormat resolves a registered format by id.
func LookupFormat(id string) (Format, error) {
	f, ok := formats[id]
	if !ok {
		return Format{}, ErrUnknownFormat
	}
	return f, nil
}

// FormatIDs lists every registered format id.
func FormatIDs() []string {
	ids := make([]string, 0, len(formats))
	for id := range formats {
		ids = append(ids, id)
	}
	return ids
}

// Validate checks a format is internally consistent: at least one
// turn, every turn owned by a captain with a positive time limit, and
// no more picks than the pool can satisfy.
func (f Format) Validate() error {
	if f.ID == "" || len(f.Turns) == 0 {
		return ErrInvalidFormat
	}
	picks := 0
	for i, t := range f.Turns {
		if t.Actor != RoleCaptain1 && t.Actor != RoleCaptain2 {
			return fmt.Errorf("%w: turn %d actor %q", ErrInvalidFormat, i, t.Actor)
		}
		if t.Action != ActionBan && t.Action != ActionPick {
			return fmt.Errorf("%w: turn %d action %q", ErrInvalidFormat, i, t.Action)
		}
		if t.TimeLimit <= 0 {
			return fmt.Errorf("%w: turn %d has no time limit", ErrInvalidFormat, i)
		}
		if t.Action == ActionPick {
			picks++
		}
	}
	if picks > len(f.Pool) {
		return fmt.Errorf("%w: %d picks but pool holds %d entities", ErrInvalidFormat, picks, len(f.Pool))
	}
	return nil
}

func mustRegister(f Format) {
	if err := f.Validate(); err != nil {
		panic(err)
	}
	if _, dup := formats[f.ID]; dup {
		panic("duplicate format id " + f.ID)
	}
	formats[f.ID] = f
}

// bo1Format is the standard best-of-one veto: alternating bans down to
// a single map, which the higher seed's opponent picks last.
func bo1Format() Format {
	const limit = 30 * time.Second
	return Format{
		ID: "bo1",
		Turns: []TurnSpec{
			{Actor: RoleCaptain1, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain2, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain1, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain2, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain2, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain1, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain2, Action: ActionPick, TimeLimit: limit},
		},
		Pool: defaultMapPool,
	}
}

// bo3Format alternates ban/pick so each captain picks one map and the
// decider falls to a final pick.
func bo3Format() Format {
	const limit = 30 * time.Second
	return Format{
		ID: "bo3",
		Turns: []TurnSpec{
			{Actor: RoleCaptain1, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain2, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain1, Action: ActionPick, TimeLimit: limit},
			{Actor: RoleCaptain2, Action: ActionPick, TimeLimit: limit},
			{Actor: RoleCaptain1, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain2, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain1, Action: ActionPick, TimeLimit: limit},
		},
		Pool: defaultMapPool,
	}
}
