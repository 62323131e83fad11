package session

import (
	"errors"

	"github.com/jsalverda/tourney-draft-backend/internal/engine"
)

// RejectReason maps a submission error to the stable reason string
// clients see. Unknown errors collapse to "internal".
func RejectReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, engine.ErrWrongRole):
		return "wrong_role"
	case errors.Is(err, engine.ErrAlreadySelected):
		return "already_selected"
	case errors.Is(err, engine.ErrUnknownSelection):
		return "unknown_selection"
	case errors.Is(err, engine.ErrSessionNotActive):
		return "session_not_active"
	case errors.Is(err, ErrDeadlinePassed):
		return "deadline_passed"
	case errors.Is(err, ErrClosed):
		return "session_not_active"
	default:
		return "internal"
	}
}
