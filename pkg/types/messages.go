// Package types holds the wire shapes exchanged with clients over the
// HTTP and websocket surfaces.
package types

import "time"

// Client -> Server (websocket)
type ClientMessage struct {
	Type      string `json:"type"` // "SubmitAction"
	Selection string `json:"selection,omitempty"`
}

// Server -> Client (websocket)
type ServerMessage struct {
	Type    string        `json:"type"` // "StateSnapshot" | "Error"
	Version int           `json:"version,omitempty"`
	State   *SessionState `json:"state,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// SessionState is the observer view of a draft: committed state only,
// never in-flight or rejected attempts.
type SessionState struct {
	MatchID       string    `json:"match_id"`
	FormatID      string    `json:"format_id"`
	Version       int       `json:"version"`
	Status        string    `json:"status"`
	TurnIndex     int       `json:"turn_index"`
	CurrentActor  string    `json:"current_actor,omitempty"`
	CurrentAction string    `json:"current_action,omitempty"`
	Deadline      time.Time `json:"deadline"`
	Log           []Action  `json:"log"`
}

type Action struct {
	TurnIndex   int       `json:"turn_index"`
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	Selection   string    `json:"selection"`
	CommittedAt time.Time `json:"committed_at"`
}

// CreateDraftRequest starts the pick/ban phase for a ready match.
type CreateDraftRequest struct {
	Format string `json:"format"`
}

type CreateDraftResponse struct {
	MatchID string            `json:"match_id"`
	Tokens  map[string]string `json:"tokens"` // role -> token
	State   SessionState      `json:"state"`
}

type SubmitActionRequest struct {
	Token     string `json:"token"`
	Selection string `json:"selection"`
}

type RecordResultRequest struct {
	Winner string `json:"winner"`
	Score  string `json:"score"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
