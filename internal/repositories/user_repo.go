package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/velist/velist/internal/database"
	"github.com/velist/velist/internal/models"
)

const userColumns = `id, email, name, password_hash, oauth_id, avatar_url, role, email_verified_at,
	two_factor_secret, two_factor_enabled, two_factor_confirmed_at, created_at, updated_at`

type UserRepository struct {
	q database.Querier
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.OAuthID, &user.AvatarURL,
		&user.Role, &user.EmailVerifiedAt,
		&user.TwoFactorSecret, &user.TwoFactorEnabled, &user.TwoFactorConfirmedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.q.QueryRow(ctx, query, id))
}

// FindByEmail matches the email exactly as stored.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.q.QueryRow(ctx, query, email))
}

func (r *UserRepository) FindByOAuthID(ctx context.Context, oauthID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE oauth_id = $1`
	return scanUserRow(r.q.QueryRow(ctx, query, oauthID))
}

// Insert assigns a time-ordered id and persists user.
// A duplicate email or oauth id returns models.ErrConflict.
func (r *UserRepository) Insert(ctx context.Context, user *models.User) (*models.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	now := time.Now().UTC()
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
		INSERT INTO users (id, email, name, password_hash, oauth_id, avatar_url, role, email_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING ` + userColumns

	created, err := scanUserRow(r.q.QueryRow(ctx, query,
		id.String(), user.Email, user.Name, user.PasswordHash, user.OAuthID, user.AvatarURL,
		user.Role, user.EmailVerifiedAt, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return created, nil
}

// Update changes the non-nil fields of upd. Columns not listed in UserUpdate are never touched.
func (r *UserRepository) Update(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	query := `
		UPDATE users SET
			name              = COALESCE($2, name),
			password_hash     = COALESCE($3, password_hash),
			oauth_id          = COALESCE($4, oauth_id),
			avatar_url        = COALESCE($5, avatar_url),
			email_verified_at = COALESCE($6, email_verified_at),
			updated_at        = $7
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUserRow(r.q.QueryRow(ctx, query,
		id, upd.Name, upd.PasswordHash, upd.OAuthID, upd.AvatarURL, upd.EmailVerifiedAt, time.Now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := r.q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func updateTwoFactor(ctx context.Context, q database.Querier, id string, upd models.TwoFactorUpdate) error {
	query := `
		UPDATE users
		SET two_factor_secret = $2, two_factor_enabled = $3, two_factor_confirmed_at = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, id, upd.Secret, upd.Enabled, upd.ConfirmedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update two-factor settings: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
