// Package token mints the opaque credentials captains and spectators
// present with every draft action. Tokens are random values tracked
// server-side, so re-issuing for the same (match, role) pair revokes
// the previous credential and retiring a match discards all bindings.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/jsalverda/tourney-draft-backend/internal/engine"
)

var ErrInvalidToken = errors.New("invalid token")
var ErrExpiredToken = errors.New("expired token")

// tokenBytes gives 128 bits of entropy before encoding.
const tokenBytes = 16

type binding struct {
	matchID   string
	role      engine.Role
	expiresAt time.Time
}

type pairKey struct {
	matchID string
	role    engine.Role
}

type Issuer struct {
	mu      sync.Mutex
	byToken map[string]binding
	active  map[pairKey]string
	clock   func() time.Time
}

func NewIssuer(clock func() time.Time) *Issuer {
	if clock == nil {
		clock = time.Now
	}
	return &Issuer{
		byToken: make(map[string]binding),
		active:  make(map[pairKey]string),
		clock:   clock,
	}
}

// Issue mints a fresh token bound to (matchID, role). Any token
// previously issued for the same pair stops validating, so a captain
// refreshing their invite link cannot be impersonated through the old
// one.
func (i *Issuer) Issue(matchID string, role engine.Role, ttl time.Duration) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	tok := base64.RawURLEncoding.EncodeToString(buf)

	i.mu.Lock()
	defer i.mu.Unlock()

	key := pairKey{matchID: matchID, role: role}
	if prev, ok := i.active[key]; ok {
		delete(i.byToken, prev)
	}
	i.active[key] = tok
	i.byToken[tok] = binding{
		matchID:   matchID,
		role:      role,
		expiresAt: i.clock().Add(ttl),
	}
	return tok, nil
}

// Validate resolves a presented token to its (matchID, role) binding.
func (i *Issuer) Validate(tok string) (string, engine.Role, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	b, ok := i.byToken[tok]
	if !ok {
		return "", "", ErrInvalidToken
	}
	if i.clock().After(b.expiresAt) {
		delete(i.byToken, tok)
		delete(i.active, pairKey{matchID: b.matchID, role: b.role})
		return "", "", ErrExpiredToken
	}
	return b.matchID, b.role, nil
}

// DropMatch discards every binding for a match; called when its
// session retires.
func (i *Issuer) DropMatch(matchID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for key, tok := range i.active {
		if key.matchID == matchID {
			delete(i.byToken, tok)
			delete(i.active, key)
		}
	}
}
