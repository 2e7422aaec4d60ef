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

// BackupCodeRepository stores hashed single-use recovery codes.
type BackupCodeRepository struct {
	q database.Querier
}

func NewBackupCodeRepository(db *database.DB) *BackupCodeRepository {
	return &BackupCodeRepository{q: db.Pool}
}

// ListUnused returns every code of userID that has not been consumed.
func (r *BackupCodeRepository) ListUnused(ctx context.Context, userID string) ([]*models.BackupCode, error) {
	query := `
		SELECT id, user_id, code_hash, used_at, created_at
		FROM two_factor_backup_codes
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup codes: %w", err)
	}
	defer rows.Close()

	codes := make([]*models.BackupCode, 0, models.BackupCodeBatchSize)
	for rows.Next() {
		var c models.BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup code: %w", err)
		}
		codes = append(codes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return codes, nil
}

// MarkUsed consumes the code in a single conditional update.
// It reports false when the code was already used (or no longer exists).
func (r *BackupCodeRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	query := `UPDATE two_factor_backup_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`

	tag, err := r.q.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark backup code used: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BackupCodeRepository) CountUnused(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM two_factor_backup_codes WHERE user_id = $1 AND used_at IS NULL`
	if err := r.q.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}

func insertBackupCodes(ctx context.Context, q database.Querier, userID string, codeHashes []string) error {
	if len(codeHashes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, hash := range codeHashes {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate backup code id: %w", err)
		}
		batch.Queue(
			`INSERT INTO two_factor_backup_codes (id, user_id, code_hash, created_at) VALUES ($1, $2, $3, $4)`,
			id.String(), userID, hash, now,
		)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()
	for range codeHashes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert backup code: %w", database.MapPostgresError(err))
		}
	}
	return nil
}

func deleteBackupCodes(ctx context.Context, q database.Querier, userID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM two_factor_backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", database.MapPostgresError(err))
	}
	return nil
}
