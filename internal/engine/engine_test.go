package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func testFormat() Format {
	const limit = 10 * time.Second
	return Format{
		ID: "test-ban-pick",
		Turns: []TurnSpec{
			{Actor: RoleCaptain1, Action: ActionBan, TimeLimit: limit},
			{Actor: RoleCaptain2, Action: ActionPick, TimeLimit: limit},
		},
		Pool: []string{"alpha", "beta", "gamma"},
	}
}

func activeState() State {
	s := NewState()
	s.Status = StatusActive
	return s
}

func TestApply_RejectsOutOfOrderAction(t *testing.T) {
	s := activeState()
	cmd := Command{Type: CmdCommit, Actor: RoleCaptain2, Selection: "alpha", Now: time.Now()}

	_, _, err := Apply(s, testFormat(), cmd)
	if err == nil || !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn, got %v", err)
	}
}

func TestApply_RejectionTable(t *testing.T) {
	f := testFormat()
	now := time.Now()

	cases := []struct {
		name    string
		setup   State
		cmd     Command
		wantErr error
	}{
		{
			name:    "spectator cannot act",
			setup:   activeState(),
			cmd:     Command{Type: CmdCommit, Actor: RoleSpectator, Selection: "alpha", Now: now},
			wantErr: ErrWrongRole,
		},
		{
			name:    "selection outside pool",
			setup:   activeState(),
			cmd:     Command{Type: CmdCommit, Actor: RoleCaptain1, Selection: "delta", Now: now},
			wantErr: ErrUnknownSelection,
		},
		{
			name: "duplicate selection regardless of committer",
			setup: State{
				Status:    StatusActive,
				TurnIndex: 1,
				Log: []ActionRecord{
					{TurnIndex: 0, Actor: RoleCaptain1, Action: ActionBan, Selection: "alpha"},
				},
			},
			cmd:     Command{Type: CmdCommit, Actor: RoleCaptain2, Selection: "alpha", Now: now},
			wantErr: ErrAlreadySelected,
		},
		{
			name:    "skip is not a legal pick",
			setup:   State{Status: StatusActive, TurnIndex: 1, Log: []ActionRecord{{TurnIndex: 0, Selection: "alpha"}}},
			cmd:     Command{Type: CmdCommit, Actor: RoleCaptain2, Selection: SkipSelection, Now: now},
			wantErr: ErrUnknownSelection,
		},
		{
			name:    "completed session rejects commits",
			setup:   State{Status: StatusCompleted, TurnIndex: 2},
			cmd:     Command{Type: CmdCommit, Actor: RoleCaptain1, Selection: "beta", Now: now},
			wantErr: ErrSessionNotActive,
		},
		{
			name:    "aborted session rejects auto-commit",
			setup:   State{Status: StatusAborted},
			cmd:     Command{Type: CmdAutoCommit, Now: now},
			wantErr: ErrSessionNotActive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.setup
			_, after, err := Apply(tc.setup, f, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if !reflect.DeepEqual(before, after) {
				t.Fatalf("rejection mutated state: %+v -> %+v", before, after)
			}
		})
	}
}

func TestApply_SkipIsLegalForBan(t *testing.T) {
	s := activeState()
	cmd := Command{Type: CmdCommit, Actor: RoleCaptain1, Selection: SkipSelection, Now: time.Now()}

	events, next, err := Apply(s, testFormat(), cmd)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if next.TurnIndex != 1 {
		t.Fatalf("want turn index 1, got %d", next.TurnIndex)
	}
	if !ContainsEvent(events, EvtTurnAdvanced) {
		t.Fatalf("expected EvtTurnAdvanced")
	}
	// A skipped ban must not block later selections.
	if Taken(next, SkipSelection) {
		t.Fatalf("skip sentinel entered the taken set")
	}
}

func TestApply_FullDraftScenario(t *testing.T) {
	f := testFormat()
	s := activeState()
	now := time.Now()

	events, s, err := Apply(s, f, Command{Type: CmdCommit, Actor: RoleCaptain1, Selection: "alpha", Now: now})
	if err != nil {
		t.Fatalf("turn 0: %v", err)
	}
	if ContainsEvent(events, EvtDraftCompleted) {
		t.Fatalf("draft completed too early")
	}

	events, s, err = Apply(s, f, Command{Type: CmdCommit, Actor: RoleCaptain2, Selection: "beta", Now: now})
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if !ContainsEvent(events, EvtDraftCompleted) {
		t.Fatalf("expected EvtDraftCompleted on last turn")
	}
	if s.Status != StatusCompleted {
		t.Fatalf("want status completed, got %s", s.Status)
	}

	want := []ActionRecord{
		{TurnIndex: 0, Actor: RoleCaptain1, Action: ActionBan, Selection: "alpha", CommittedAt: now},
		{TurnIndex: 1, Actor: RoleCaptain2, Action: ActionPick, Selection: "beta", CommittedAt: now},
	}
	if !reflect.DeepEqual(s.Log, want) {
		t.Fatalf("log mismatch:\n got %+v\nwant %+v", s.Log, want)
	}
}

func TestApply_AutoCommitDefaults(t *testing.T) {
	f := testFormat()
	now := time.Now()

	// Ban turn times out: skip, advance, still active.
	events, s, err := Apply(activeState(), f, Command{Type: CmdAutoCommit, Now: now})
	if err != nil {
		t.Fatalf("auto ban: %v", err)
	}
	if !ContainsEvent(events, EvtAutoCommitted) {
		t.Fatalf("expected EvtAutoCommitted")
	}
	if s.Log[0].Selection != SkipSelection {
		t.Fatalf("want skip on timed-out ban, got %q", s.Log[0].Selection)
	}
	if s.Status != StatusActive {
		t.Fatalf("session should remain active after auto ban")
	}

	// Pick turn times out: first untaken pool entity, deterministic.
	events, s, err = Apply(s, f, Command{Type: CmdAutoCommit, Now: now})
	if err != nil {
		t.Fatalf("auto pick: %v", err)
	}
	if s.Log[1].Selection != "alpha" {
		t.Fatalf("want first pool entity alpha, got %q", s.Log[1].Selection)
	}
	if !ContainsEvent(events, EvtDraftCompleted) {
		t.Fatalf("expected completion after final auto pick")
	}
}

func TestApply_AutoPickSkipsTakenEntities(t *testing.T) {
	f := testFormat()
	s := State{
		Status:    StatusActive,
		TurnIndex: 1,
		Log:       []ActionRecord{{TurnIndex: 0, Actor: RoleCaptain1, Action: ActionBan, Selection: "alpha"}},
	}

	_, next, err := Apply(s, f, Command{Type: CmdAutoCommit, Now: time.Now()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := next.Log[1].Selection; got != "beta" {
		t.Fatalf("auto pick should skip banned alpha, got %q", got)
	}
}

func TestApply_UniqueSelectionsProperty(t *testing.T) {
	f, err := LookupFormat("bo3")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	s := activeState()
	now := time.Now()
	for i := 0; i < len(f.Turns); i++ {
		_, next, err := Apply(s, f, Command{Type: CmdAutoCommit, Now: now})
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
		s = next
	}

	if len(s.Log) != len(f.Turns) {
		t.Fatalf("want %d committed turns, got %d", len(f.Turns), len(s.Log))
	}
	seen := map[string]bool{}
	for _, rec := range Selections(s) {
		if seen[rec.Selection] {
			t.Fatalf("duplicate selection %q", rec.Selection)
		}
		seen[rec.Selection] = true
	}
}

func TestFormatValidate(t *testing.T) {
	cases := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{name: "registered bo1 is valid", format: formats["bo1"]},
		{name: "no turns", format: Format{ID: "x", Pool: []string{"a"}}, wantErr: true},
		{
			name: "spectator turn",
			format: Format{ID: "x", Pool: []string{"a"},
				Turns: []TurnSpec{{Actor: RoleSpectator, Action: ActionBan, TimeLimit: time.Second}}},
			wantErr: true,
		},
		{
			name: "missing time limit",
			format: Format{ID: "x", Pool: []string{"a"},
				Turns: []TurnSpec{{Actor: RoleCaptain1, Action: ActionBan}}},
			wantErr: true,
		},
		{
			name: "more picks than pool",
			format: Format{ID: "x", Pool: []string{"a"},
				Turns: []TurnSpec{
					{Actor: RoleCaptain1, Action: ActionPick, TimeLimit: time.Second},
					{Actor: RoleCaptain2, Action: ActionPick, TimeLimit: time.Second},
				}},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.format.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestLookupFormat_Unknown(t *testing.T) {
	_, err := LookupFormat("bo9")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("want ErrUnknownFormat, got %v", err)
	}
}
