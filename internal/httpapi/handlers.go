// Package httpapi exposes the draft coordinator over HTTP: session
// creation with token issuance, action submission, read-only state,
// and result recording for bracket progression.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jsalverda/tourney-draft-backend/internal/bracket"
	"github.com/jsalverda/tourney-draft-backend/internal/engine"
	"github.com/jsalverda/tourney-draft-backend/internal/metrics"
	"github.com/jsalverda/tourney-draft-backend/internal/registry"
	"github.com/jsalverda/tourney-draft-backend/internal/session"
	"github.com/jsalverda/tourney-draft-backend/internal/token"
	"github.com/jsalverda/tourney-draft-backend/internal/ws"
	"github.com/jsalverda/tourney-draft-backend/pkg/types"
)

type API struct {
	Registry   *registry.Registry
	Issuer     *token.Issuer
	Progress   *bracket.Engine
	Logger     *zap.Logger
	TokenTTL   time.Duration
	SessionCfg session.Config

	// BaseCtx parents every session goroutine so shutdown reaps them.
	BaseCtx context.Context
}

// CreateDraft moves a ready match into its pick/ban phase: one session,
// two captain tokens, one spectator token.
func (a *API) CreateDraft(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	var req types.CreateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	format, err := engine.LookupFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_format")
		return
	}

	if _, err := a.Progress.BeginDraft(r.Context(), matchID); err != nil {
		switch {
		case errors.Is(err, bracket.ErrMatchNotFound):
			writeError(w, http.StatusNotFound, "match_not_found")
		case errors.Is(err, bracket.ErrMatchNotEligible):
			writeError(w, http.StatusConflict, "match_not_ready")
		default:
			a.Logger.Error("begin draft failed", zap.String("match_id", matchID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal")
		}
		return
	}

	sess := a.Registry.GetOrCreate(matchID, func(hooks session.Hooks) *session.Session {
		return session.New(a.BaseCtx, matchID, format, a.SessionCfg, hooks, a.Logger)
	})
	if sess == nil {
		writeError(w, http.StatusServiceUnavailable, "shutting_down")
		return
	}
	if err := sess.Start(); err != nil {
		if !errors.Is(err, session.ErrAlreadyStarted) {
			a.Logger.Error("session start failed", zap.String("match_id", matchID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal")
			return
		}
	} else {
		metrics.SessionsActive.Inc()
	}

	tokens := make(map[string]string, 3)
	for _, role := range []engine.Role{engine.RoleCaptain1, engine.RoleCaptain2, engine.RoleSpectator} {
		tok, err := a.Issuer.Issue(matchID, role, a.TokenTTL)
		if err != nil {
			a.Logger.Error("token issue failed", zap.String("match_id", matchID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal")
			return
		}
		tokens[string(role)] = tok
	}

	writeJSON(w, http.StatusCreated, types.CreateDraftResponse{
		MatchID: matchID,
		Tokens:  tokens,
		State:   ws.ToWire(sess.Snapshot()),
	})
}

// SubmitAction commits one pick/ban on behalf of the token's role.
func (a *API) SubmitAction(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	var req types.SubmitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}

	tokMatch, role, err := a.Issuer.Validate(req.Token)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, token.ErrExpiredToken) {
			reason = "expired_token"
		}
		a.Logger.Warn("action auth rejected",
			zap.String("match_id", matchID), zap.String("reason", reason))
		metrics.Rejections.WithLabelValues(reason).Inc()
		writeError(w, http.StatusUnauthorized, reason)
		return
	}
	if tokMatch != matchID {
		a.Logger.Warn("token presented for wrong match",
			zap.String("match_id", matchID), zap.String("token_match", tokMatch))
		metrics.Rejections.WithLabelValues("invalid_token").Inc()
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	sess, ok := a.Registry.Get(matchID)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}

	if err := sess.SubmitAction(role, req.Selection); err != nil {
		reason := session.RejectReason(err)
		metrics.Rejections.WithLabelValues(reason).Inc()
		writeError(w, statusForReason(reason), reason)
		return
	}

	snap := sess.Snapshot()
	if n := len(snap.Log); n > 0 {
		metrics.ActionsCommitted.WithLabelValues(string(snap.Log[n-1].Action)).Inc()
	}
	writeJSON(w, http.StatusOK, ws.ToWire(snap))
}

// GetSession returns the committed snapshot; observers never see
// rejected or in-flight attempts.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	sess, ok := a.Registry.Get(matchID)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}
	writeJSON(w, http.StatusOK, ws.ToWire(sess.Snapshot()))
}

// AbortSession is the administrative kill switch for a stuck draft.
func (a *API) AbortSession(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	sess, ok := a.Registry.Get(matchID)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}
	if err := sess.Abort("administrative"); err != nil {
		writeError(w, http.StatusConflict, session.RejectReason(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordResult feeds a played match's outcome to the bracket engine.
func (a *API) RecordResult(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	var req types.RecordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}

	out, err := a.Progress.RecordResult(r.Context(), matchID, req.Winner, req.Score)
	if err != nil {
		switch {
		case errors.Is(err, bracket.ErrMatchNotFound):
			writeError(w, http.StatusNotFound, "match_not_found")
		case errors.Is(err, bracket.ErrResultConflict):
			writeError(w, http.StatusConflict, "result_conflict")
		case errors.Is(err, bracket.ErrMatchNotEligible):
			writeError(w, http.StatusConflict, "match_not_eligible")
		case errors.Is(err, bracket.ErrUnknownWinner):
			writeError(w, http.StatusUnprocessableEntity, "unknown_winner")
		default:
			a.Logger.Error("record result failed", zap.String("match_id", matchID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal")
		}
		return
	}
	if !out.AlreadyRecorded {
		metrics.ResultsRecorded.Inc()
	}
	writeJSON(w, http.StatusOK, out)
}

// ResolveByes auto-advances structurally unopposed teams.
func (a *API) ResolveByes(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")

	outs, err := a.Progress.ResolveByes(r.Context(), tournamentID)
	if err != nil {
		if errors.Is(err, bracket.ErrBracketNotFound) {
			writeError(w, http.StatusNotFound, "tournament_not_found")
			return
		}
		a.Logger.Error("resolve byes failed", zap.String("tournament_id", tournamentID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, outs)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func statusForReason(reason string) int {
	switch reason {
	case "wrong_role":
		return http.StatusForbidden
	case "unknown_selection":
		return http.StatusUnprocessableEntity
	case "internal":
		return http.StatusInternalServerError
	default:
		// not_your_turn, already_selected, deadline_passed, session_not_active
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, types.ErrorResponse{Error: reason})
}
