// Package ws relays committed draft snapshots to connected clients and
// accepts captain actions over the same socket. Every connection is
// token-gated; spectators get snapshots but cannot act.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jsalverda/tourney-draft-backend/internal/engine"
	"github.com/jsalverda/tourney-draft-backend/internal/registry"
	"github.com/jsalverda/tourney-draft-backend/internal/session"
	"github.com/jsalverda/tourney-draft-backend/internal/token"
	"github.com/jsalverda/tourney-draft-backend/pkg/types"
)

func Handler(reg *registry.Registry, issuer *token.Issuer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		}
		matchID, role, err := issuer.Validate(tok)
		if err != nil {
			logger.Warn("ws auth rejected", zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		sess, ok := reg.Get(matchID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan session.Snapshot, 8)
		clientID := uuid.NewString()

		sess.Subscribe(clientID, out)
		defer sess.Unsubscribe(clientID)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				state := ToWire(snap)
				msg := types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, State: &state}
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad_json")
				continue
			}
			if cm.Type != "SubmitAction" {
				writeError(r.Context(), conn, "unknown_type")
				continue
			}
			if role == engine.RoleSpectator {
				writeError(r.Context(), conn, "wrong_role")
				continue
			}

			if err := sess.SubmitAction(role, cm.Selection); err != nil {
				writeError(r.Context(), conn, session.RejectReason(err))
			}
			// Success needs no ack: the commit broadcast carries it.
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: reason})
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

// ToWire converts a session snapshot to its client-facing shape.
func ToWire(snap session.Snapshot) types.SessionState {
	state := types.SessionState{
		MatchID:       snap.MatchID,
		FormatID:      snap.FormatID,
		Version:       snap.Version,
		Status:        string(snap.Status),
		TurnIndex:     snap.TurnIndex,
		CurrentActor:  string(snap.CurrentActor),
		CurrentAction: string(snap.CurrentAction),
		Deadline:      snap.Deadline,
		Log:           make([]types.Action, 0, len(snap.Log)),
	}
	for _, rec := range snap.Log {
		state.Log = append(state.Log, types.Action{
			TurnIndex:   rec.TurnIndex,
			Actor:       string(rec.Actor),
			Action:      string(rec.Action),
			Selection:   rec.Selection,
			CommittedAt: rec.CommittedAt,
		})
	}
	return state
}
