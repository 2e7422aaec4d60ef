package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeSession    = "session"
	TokenTypePending2FA = "pending_2fa"
)

// TokenClaims is the JWT body of both the session token and the pending-2FA token.
// The pending token carries only the subject.
type TokenClaims struct {
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what the Auth Gate exposes to handlers for one request.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	SessionID string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

func (c *TokenClaims) Identity() *Identity {
	id := &Identity{
		ID:        c.Subject,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		SessionID: c.ID,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

// IssuedSession is a freshly signed session token and its lifetime.
type IssuedSession struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
	MaxAge    time.Duration
}
