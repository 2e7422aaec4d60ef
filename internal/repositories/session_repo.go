package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/velist/velist/internal/database"
	"github.com/velist/velist/internal/models"
)

// SessionRepository is the Postgres session registry.
type SessionRepository struct {
	q database.Querier
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{q: db.Pool}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, ip_address, user_agent, last_activity, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $5)
	`

	now := time.Now().UTC()
	_, err := r.q.Exec(ctx, query,
		session.ID, session.UserID, session.IPAddress, session.UserAgent, now, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", database.MapPostgresError(err))
	}
	session.CreatedAt = now
	session.LastActivity = now
	return nil
}

// Exists reports whether an unexpired record for id is present.
func (r *SessionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1 AND expires_at > NOW())`
	if err := r.q.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists, nil
}

// Delete is idempotent.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired purges records whose expiry has passed and returns how many were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
