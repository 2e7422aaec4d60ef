package models

import "time"

// Session is the server-side record of an issued session token, keyed by its jti.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClientMeta describes the request that caused a session to be issued.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}
