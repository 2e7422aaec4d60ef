package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// TwoFactorState is the enrollment state derived from a user's 2FA columns.
type TwoFactorState string

const (
	TwoFactorDisabled          TwoFactorState = "disabled"
	TwoFactorPendingEnrollment TwoFactorState = "pending"
	TwoFactorEnabled           TwoFactorState = "enabled"
)

type User struct {
	ID                   string
	Email                string
	Name                 string
	PasswordHash         *string // nil for OAuth-only accounts
	OAuthID              *string
	AvatarURL            *string
	Role                 string
	EmailVerifiedAt      *time.Time
	TwoFactorSecret      *string // ciphertext envelope, never plaintext
	TwoFactorEnabled     bool
	TwoFactorConfirmedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SafeUser is the user as seen outside the credential boundary.
type SafeUser struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	Name                 string     `json:"name"`
	AvatarURL            *string    `json:"avatar_url,omitempty"`
	Role                 string     `json:"role"`
	EmailVerifiedAt      *time.Time `json:"email_verified_at,omitempty"`
	TwoFactorEnabled     bool       `json:"two_factor_enabled"`
	TwoFactorConfirmedAt *time.Time `json:"two_factor_confirmed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Safe strips the password hash and the 2FA secret.
func (u *User) Safe() *SafeUser {
	if u == nil {
		return nil
	}
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return &SafeUser{
		ID:                   u.ID,
		Email:                u.Email,
		Name:                 u.Name,
		AvatarURL:            u.AvatarURL,
		Role:                 role,
		EmailVerifiedAt:      u.EmailVerifiedAt,
		TwoFactorEnabled:     u.TwoFactorEnabled,
		TwoFactorConfirmedAt: u.TwoFactorConfirmedAt,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) TwoFactorState() TwoFactorState {
	switch {
	case u.TwoFactorSecret == nil || *u.TwoFactorSecret == "":
		return TwoFactorDisabled
	case u.TwoFactorEnabled:
		return TwoFactorEnabled
	default:
		return TwoFactorPendingEnrollment
	}
}

// UserUpdate lists the columns UpdateUser may change. Nil fields are left alone.
type UserUpdate struct {
	Name            *string
	PasswordHash    *string
	OAuthID         *string
	AvatarURL       *string
	EmailVerifiedAt *time.Time
}

// TwoFactorUpdate replaces all three 2FA columns at once.
type TwoFactorUpdate struct {
	Secret      *string
	Enabled     bool
	ConfirmedAt *time.Time
}

// OAuthProfile is the identity returned by an external provider.
type OAuthProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`
}
