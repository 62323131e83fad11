package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jsalverda/tourney-draft-backend/internal/bracket"
	"github.com/jsalverda/tourney-draft-backend/internal/registry"
	"github.com/jsalverda/tourney-draft-backend/internal/store"
	"github.com/jsalverda/tourney-draft-backend/internal/token"
	"github.com/jsalverda/tourney-draft-backend/pkg/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := store.NewMemory()
	s.PutBracket(bracket.Bracket{
		TournamentID: "t1",
		Rounds:       map[int][]string{1: {"sf1", "sf2"}, 2: {"final"}},
		Edges: map[string]bracket.Edge{
			"sf1": {WinnerTo: "final", WinnerSlot: bracket.SlotA},
			"sf2": {WinnerTo: "final", WinnerSlot: bracket.SlotB},
		},
	})
	s.PutMatch(bracket.Match{ID: "sf1", TournamentID: "t1", Round: 1,
		TeamA: "TeamX", TeamB: "TeamW", Status: bracket.MatchReady})
	s.PutMatch(bracket.Match{ID: "sf2", TournamentID: "t1", Round: 1,
		TeamA: "TeamY", TeamB: "TeamZ", Status: bracket.MatchReady})
	s.PutMatch(bracket.Match{ID: "final", TournamentID: "t1", Round: 2,
		Status: bracket.MatchPending})

	logger := zap.NewNop()
	progress := bracket.NewEngine(s, logger)
	issuer := token.NewIssuer(nil)
	reg := registry.New(ctx, registry.Config{OnRetire: issuer.DropMatch}, progress, logger)
	t.Cleanup(reg.Close)

	api := &API{
		Registry: reg,
		Issuer:   issuer,
		Progress: progress,
		Logger:   logger,
		TokenTTL: time.Hour,
		BaseCtx:  ctx,
	}
	srv := httptest.NewServer(SetupRoutes(api))
	t.Cleanup(srv.Close)
	return srv, s
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createDraft(t *testing.T, srv *httptest.Server, matchID string) types.CreateDraftResponse {
	t.Helper()
	resp := postJSON(t, srv.URL+"/matches/"+matchID+"/draft", types.CreateDraftRequest{Format: "bo1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[types.CreateDraftResponse](t, resp)
}

func TestCreateDraft_IssuesTokensAndStartsSession(t *testing.T) {
	srv, s := newTestServer(t)

	created := createDraft(t, srv, "sf1")
	assert.Equal(t, "sf1", created.MatchID)
	assert.Len(t, created.Tokens, 3)
	assert.Equal(t, "active", created.State.Status)
	assert.Equal(t, "captain1", created.State.CurrentActor)

	m, err := s.LoadMatch(context.Background(), "sf1")
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchInDraft, m.Status)

	// A second create races with the first and loses on match status.
	resp := postJSON(t, srv.URL+"/matches/sf1/draft", types.CreateDraftRequest{Format: "bo1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateDraft_Rejections(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/matches/sf1/draft", types.CreateDraftRequest{Format: "bo9"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/matches/ghost/draft", types.CreateDraftRequest{Format: "bo1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// final has no occupants yet
	resp = postJSON(t, srv.URL+"/matches/final/draft", types.CreateDraftRequest{Format: "bo1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitAction_HappyPathAndRejections(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createDraft(t, srv, "sf1")
	url := srv.URL + "/draft/sf1/actions"

	// Garbage token.
	resp := postJSON(t, url, types.SubmitActionRequest{Token: "nope", Selection: "ancient"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", decode[types.ErrorResponse](t, resp).Error)

	// Spectators cannot act.
	resp = postJSON(t, url, types.SubmitActionRequest{Token: created.Tokens["spectator"], Selection: "ancient"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "wrong_role", decode[types.ErrorResponse](t, resp).Error)

	// Captain2 acting on captain1's turn.
	resp = postJSON(t, url, types.SubmitActionRequest{Token: created.Tokens["captain2"], Selection: "ancient"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "not_your_turn", decode[types.ErrorResponse](t, resp).Error)

	// Legal ban.
	resp = postJSON(t, url, types.SubmitActionRequest{Token: created.Tokens["captain1"], Selection: "ancient"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[types.SessionState](t, resp)
	assert.Equal(t, 1, state.TurnIndex)
	require.Len(t, state.Log, 1)
	assert.Equal(t, "ancient", state.Log[0].Selection)

	// Duplicate selection on the next turn.
	resp = postJSON(t, url, types.SubmitActionRequest{Token: created.Tokens["captain2"], Selection: "ancient"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_selected", decode[types.ErrorResponse](t, resp).Error)

	// Selection outside the pool.
	resp = postJSON(t, url, types.SubmitActionRequest{Token: created.Tokens["captain2"], Selection: "vertigo"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "unknown_selection", decode[types.ErrorResponse](t, resp).Error)
}

func TestCreateDraftConflictLeavesTokensValid(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createDraft(t, srv, "sf1")

	// A retried create hits the eligibility check before any re-issue,
	// so the originally issued tokens keep working.
	resp := postJSON(t, srv.URL+"/matches/sf1/draft", types.CreateDraftRequest{Format: "bo1"})
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/draft/sf1/actions",
		types.SubmitActionRequest{Token: created.Tokens["captain1"], Selection: "ancient"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestGetSession(t *testing.T) {
	srv, _ := newTestServer(t)
	createDraft(t, srv, "sf1")

	resp, err := http.Get(srv.URL + "/draft/sf1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[types.SessionState](t, resp)
	assert.Equal(t, "sf1", state.MatchID)
	assert.Equal(t, "bo1", state.FormatID)

	resp, err = http.Get(srv.URL + "/draft/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRecordResult_PropagatesAndRejectsConflicts(t *testing.T) {
	srv, s := newTestServer(t)

	resp := postJSON(t, srv.URL+"/matches/sf1/result", types.RecordResultRequest{Winner: "TeamX", Score: "13-7"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[bracket.Outcome](t, resp)
	assert.Equal(t, "TeamX", out.Winner)

	resp = postJSON(t, srv.URL+"/matches/sf1/result", types.RecordResultRequest{Winner: "TeamX", Score: "13-7"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[bracket.Outcome](t, resp).AlreadyRecorded)

	resp = postJSON(t, srv.URL+"/matches/sf1/result", types.RecordResultRequest{Winner: "TeamW", Score: "13-2"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/matches/sf2/result", types.RecordResultRequest{Winner: "TeamY", Score: "13-10"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	final, err := s.LoadMatch(context.Background(), "final")
	require.NoError(t, err)
	assert.Equal(t, "TeamX", final.TeamA)
	assert.Equal(t, "TeamY", final.TeamB)
	assert.Equal(t, bracket.MatchReady, final.Status)
}

func TestAbortSession(t *testing.T) {
	srv, _ := newTestServer(t)
	createDraft(t, srv, "sf1")

	resp := postJSON(t, srv.URL+"/draft/sf1/abort", struct{}{})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/draft/ghost/abort", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestResolveByes(t *testing.T) {
	srv, s := newTestServer(t)
	// Rebuild sf1 as a structural bye.
	s.PutMatch(bracket.Match{ID: "sf1", TournamentID: "t1", Round: 1,
		TeamA: "TeamX", Status: bracket.MatchPending})

	resp := postJSON(t, srv.URL+"/tournaments/t1/resolve-byes", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outs := decode[[]bracket.Outcome](t, resp)
	require.Len(t, outs, 1)
	assert.Equal(t, "TeamX", outs[0].Winner)

	resp = postJSON(t, srv.URL+"/tournaments/ghost/resolve-byes", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
