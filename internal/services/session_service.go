package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
)

// SessionStore is a server-side registry of issued session tokens, keyed by jti.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}

// SessionConfig holds token lifetimes and the registry failure policy
type SessionConfig struct {
	Lifetime         time.Duration
	RememberLifetime time.Duration
	PendingTTL       time.Duration
	// FailClosed rejects requests when the registry cannot be reached.
	// The default lets signature-valid tokens through.
	FailClosed bool
}

// SessionService issues and verifies session tokens and runs the pending-2FA handshake.
type SessionService struct {
	tokens *auth.TokenManager
	store  SessionStore // nil when sessions are purely stateless
	users  UserRepository
	cfg    SessionConfig
	logger *slog.Logger
}

func NewSessionService(tokens *auth.TokenManager, store SessionStore, users UserRepository, cfg SessionConfig, logger *slog.Logger) *SessionService {
	return &SessionService{
		tokens: tokens,
		store:  store,
		users:  users,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *SessionService) PendingTTL() time.Duration {
	return s.cfg.PendingTTL
}

// Issue signs a session token for user. remember selects the long lifetime.
func (s *SessionService) Issue(ctx context.Context, user *models.SafeUser, remember bool, meta models.ClientMeta) (*models.IssuedSession, error) {
	ttl := s.cfg.Lifetime
	if remember {
		ttl = s.cfg.RememberLifetime
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	token, expiresAt, err := s.tokens.GenerateSessionToken(user, id.String(), ttl)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		err := s.store.Create(ctx, &models.Session{
			ID:        id.String(),
			UserID:    user.ID,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return nil, fmt.Errorf("record session: %w", err)
		}
	}

	return &models.IssuedSession{
		Token:     token,
		SessionID: id.String(),
		ExpiresAt: expiresAt,
		MaxAge:    ttl,
	}, nil
}

// VerifySession validates signature and expiry and, with a registry, that the
// session has not been revoked.
func (s *SessionService) VerifySession(ctx context.Context, token string) (*models.Identity, error) {
	claims, err := s.tokens.ValidateToken(token, models.TokenTypeSession)
	if err != nil {
		return nil, err
	}

	if s.store != nil && claims.ID != "" {
		ok, err := s.store.Exists(ctx, claims.ID)
		switch {
		case err != nil && s.cfg.FailClosed:
			return nil, fmt.Errorf("session registry: %w", err)
		case err != nil:
			s.logger.Warn("session registry unavailable, accepting signed token",
				slog.String("user_id", claims.Subject),
				slog.Any("error", err))
		case !ok:
			return nil, models.ErrInvalidToken
		}
	}

	return claims.Identity(), nil
}

// Revoke deletes the registry record of token if it can be identified at all.
// It never fails; it returns the user id when the token could be decoded.
func (s *SessionService) Revoke(ctx context.Context, token string) string {
	if token == "" {
		return ""
	}

	claims, err := s.tokens.DecodeSessionToken(token)
	if err != nil {
		return ""
	}

	if s.store != nil && claims.ID != "" {
		if err := s.store.Delete(ctx, claims.ID); err != nil {
			s.logger.Warn("failed to delete session record",
				slog.String("user_id", claims.Subject),
				slog.Any("error", err))
		}
	}
	return claims.Subject
}

func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.DeleteForUser(ctx, userID)
}

// BeginPending signs the pending-2FA token that stands in for a session until
// the second factor is verified.
func (s *SessionService) BeginPending(userID string) (string, error) {
	return s.tokens.GeneratePendingToken(userID, s.cfg.PendingTTL)
}

// ResolvePending returns the user a still-valid pending-2FA token was issued for.
func (s *SessionService) ResolvePending(ctx context.Context, token string) (*models.SafeUser, error) {
	claims, err := s.tokens.ValidateToken(token, models.TokenTypePending2FA)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		return nil, fmt.Errorf("load pending user: %w", err)
	}
	return user.Safe(), nil
}
