package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/velist/velist/internal/database"
	"github.com/velist/velist/internal/models"
)

// TwoFactorRepository groups the multi-row 2FA writes that must land together.
type TwoFactorRepository struct {
	db *database.DB
}

func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

// ReplaceSecret stores a new (unconfirmed) secret and swaps the user's whole
// backup-code batch in one transaction.
func (r *TwoFactorRepository) ReplaceSecret(ctx context.Context, userID, secretCiphertext string, codeHashes []string) error {
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := updateTwoFactor(ctx, tx, userID, models.TwoFactorUpdate{Secret: &secretCiphertext}); err != nil {
			return err
		}
		if err := deleteBackupCodes(ctx, tx, userID); err != nil {
			return err
		}
		return insertBackupCodes(ctx, tx, userID, codeHashes)
	})
	if err != nil {
		return fmt.Errorf("replace two-factor secret: %w", err)
	}
	return nil
}

// Confirm enables 2FA only while the stored secret is still secretCiphertext.
// It reports false when a concurrent disable or re-enrollment replaced it.
// An existing confirmation time is kept.
func (r *TwoFactorRepository) Confirm(ctx context.Context, userID, secretCiphertext string, confirmedAt time.Time) (bool, error) {
	query := `
		UPDATE users
		SET two_factor_enabled = TRUE,
		    two_factor_confirmed_at = COALESCE(two_factor_confirmed_at, $3),
		    updated_at = $4
		WHERE id = $1 AND two_factor_secret = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, userID, secretCiphertext, confirmedAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to confirm two-factor: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// Clear deletes every backup code and nulls the 2FA columns.
func (r *TwoFactorRepository) Clear(ctx context.Context, userID string) error {
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := deleteBackupCodes(ctx, tx, userID); err != nil {
			return err
		}
		return updateTwoFactor(ctx, tx, userID, models.TwoFactorUpdate{})
	})
	if err != nil {
		return fmt.Errorf("clear two-factor settings: %w", err)
	}
	return nil
}
