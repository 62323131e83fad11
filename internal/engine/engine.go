package engine

import (
	"errors"
	"slices"
	"time"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrWrongRole = errors.New("role cannot act in a draft")
var ErrAlreadySelected = errors.New("selection already taken")
var ErrUnknownSelection = errors.New("selection not in the entity pool")
var ErrSessionNotActive = errors.New("session not active")
var ErrPoolExhausted = errors.New("no selectable entity left in the pool")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Role string

const (
	RoleCaptain1  Role = "captain1"
	RoleCaptain2  Role = "captain2"
	RoleSpectator Role = "spectator"
)

type ActionKind string

const (
	ActionBan  ActionKind = "ban"
	ActionPick ActionKind = "pick"
)

// SkipSelection is the sentinel committed when a ban turn times out
// with no input. It never enters the taken-selection set.
const SkipSelection = "skip"

type Status string

const (
	StatusAwaitingStart Status = "awaiting_start"
	StatusActive        Status = "active"
	StatusCompleted     Status = "completed"
	StatusAborted       Status = "aborted"
)

// ActionRecord is one committed entry of the draft log.
type ActionRecord struct {
	TurnIndex   int        `json:"turn_index"`
	Actor       Role       `json:"actor"`
	Action      ActionKind `json:"action"`
	Selection   string     `json:"selection"`
	CommittedAt time.Time  `json:"committed_at"`
}

// State is the full draft state for one match. It is a value: Apply
// never mutates its input, it returns a successor with a cloned log.
type State struct {
	Status    Status         `json:"status"`
	TurnIndex int            `json:"turn_index"`
	Log       []ActionRecord `json:"log"`
}

func NewState() State {
	return State{Status: StatusAwaitingStart, TurnIndex: 0, Log: []ActionRecord{}}
}

type CommandType string

const (
	CmdCommit     CommandType = "Commit"
	CmdAutoCommit CommandType = "AutoCommit"
	CmdAbort      CommandType = "Abort"
)

type Command struct {
	Type      CommandType
	Actor     Role
	Selection string
	Now       time.Time
}

type EventType string

const (
	EvtActionCommitted EventType = "ActionCommitted"
	EvtAutoCommitted   EventType = "AutoCommitted"
	EvtTurnAdvanced    EventType = "TurnAdvanced"
	EvtDraftCompleted  EventType = "DraftCompleted"
	EvtDraftAborted    EventType = "DraftAborted"
)

type Event struct {
	Type   EventType
	Record ActionRecord
}

// Apply runs one command against the current state and returns the
// events it produced plus the successor state. On error the returned
// state is the input, unchanged.
func Apply(s State, f Format, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdCommit:
		if s.Status != StatusActive {
			return nil, s, ErrSessionNotActive
		}
		if cmd.Actor != RoleCaptain1 && cmd.Actor != RoleCaptain2 {
			return nil, s, ErrWrongRole
		}
		step := f.Turns[s.TurnIndex]
		if step.Actor != cmd.Actor {
			return nil, s, ErrNotYourTurn
		}
		if err := checkSelection(s, f, step.Action, cmd.Selection); err != nil {
			return nil, s, err
		}
		return commit(s, f, step, cmd.Selection, cmd.Now, false)

	case CmdAutoCommit:
		if s.Status != StatusActive {
			return nil, s, ErrSessionNotActive
		}
		step := f.Turns[s.TurnIndex]
		sel, err := DefaultSelection(s, f)
		if err != nil {
			return nil, s, err
		}
		return commit(s, f, step, sel, cmd.Now, true)

	case CmdAbort:
		if s.Status == StatusCompleted || s.Status == StatusAborted {
			return nil, s, ErrSessionNotActive
		}
		next := s
		next.Status = StatusAborted
		return []Event{{Type: EvtDraftAborted}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func commit(s State, f Format, step TurnSpec, selection string, now time.Time, auto bool) ([]Event, State, error) {
	rec := ActionRecord{
		TurnIndex:   s.TurnIndex,
		Actor:       step.Actor,
		Action:      step.Action,
		Selection:   selection,
		CommittedAt: now,
	}

	next := s
	next.Log = append(slices.Clone(s.Log), rec)
	next.TurnIndex = s.TurnIndex + 1

	events := []Event{{Type: EvtActionCommitted, Record: rec}}
	if auto {
		events = append(events, Event{Type: EvtAutoCommitted, Record: rec})
	}
	if next.TurnIndex >= len(f.Turns) {
		next.Status = StatusCompleted
		events = append(events, Event{Type: EvtDraftCompleted})
	} else {
		events = append(events, Event{Type: EvtTurnAdvanced})
	}
	return events, next, nil
}

func checkSelection(s State, f Format, action ActionKind, selection string) error {
	if selection == SkipSelection {
		// Captains may decline a ban, never a pick.
		if action == ActionBan {
			return nil
		}
		return ErrUnknownSelection
	}
	if !slices.Contains(f.Pool, selection) {
		return ErrUnknownSelection
	}
	if Taken(s, selection) {
		return ErrAlreadySelected
	}
	return nil
}

// Taken reports whether selection was already banned or picked,
// regardless of which captain committed it.
func Taken(s State, selection string) bool {
	if selection == SkipSelection {
		return false
	}
	for _, rec := range s.Log {
		if rec.Selection == selection {
			return true
		}
	}
	return false
}

// DefaultSelection is the deterministic auto-commit choice for the
// current turn: skip for bans, the first untaken pool entity for picks.
func DefaultSelection(s State, f Format) (string, error) {
	step := f.Turns[s.TurnIndex]
	if step.Action == ActionBan {
		return SkipSelection, nil
	}
	for _, e := range f.Pool {
		if !Taken(s, e) {
			return e, nil
		}
	}
	return "", ErrPoolExhausted
}

// Selections returns the non-skip entries of the log in commit order.
func Selections(s State) []ActionRecord {
	out := make([]ActionRecord, 0, len(s.Log))
	for _, rec := range s.Log {
		if rec.Selection == SkipSelection {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// CurrentTurn returns the spec of the turn awaiting an action, or
// done=true when every turn has been committed.
func CurrentTurn(s State, f Format) (TurnSpec, bool) {
	if s.TurnIndex >= len(f.Turns) {
		return TurnSpec{}, true
	}
	return f.Turns[s.TurnIndex], false
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
