package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
)

// BackupCodeRepository is the backup-code half of the Credential Store.
type BackupCodeRepository interface {
	ListUnused(ctx context.Context, userID string) ([]*models.BackupCode, error)
	MarkUsed(ctx context.Context, id string) (bool, error)
	CountUnused(ctx context.Context, userID string) (int, error)
}

// TwoFactorStore performs the multi-row 2FA writes atomically.
type TwoFactorStore interface {
	ReplaceSecret(ctx context.Context, userID, secretCiphertext string, codeHashes []string) error
	Confirm(ctx context.Context, userID, secretCiphertext string, confirmedAt time.Time) (bool, error)
	Clear(ctx context.Context, userID string) error
}

// SecretCipher is satisfied by *auth.SecretCipher.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}

// TOTPEngine is satisfied by *auth.TOTPManager.
type TOTPEngine interface {
	GenerateSecret(accountName string) (*auth.OTPKey, error)
	Verify(secret, code string) bool
	QRCodeDataURL(uri string) (string, error)
}

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// TwoFactorService drives the DISABLED -> PENDING -> ENABLED -> DISABLED state machine.
type TwoFactorService struct {
	users    UserRepository
	codes    BackupCodeRepository
	store    TwoFactorStore
	cipher   SecretCipher
	totp     TOTPEngine
	hasher   PasswordHasher
	notifier Notifier
	sessions SessionRevoker
	logger   *slog.Logger
	now      func() time.Time
}

type TwoFactorDeps struct {
	Users    UserRepository
	Codes    BackupCodeRepository
	Store    TwoFactorStore
	Cipher   SecretCipher
	TOTP     TOTPEngine
	Hasher   PasswordHasher
	Notifier Notifier       // optional
	Sessions SessionRevoker // optional
	Logger   *slog.Logger
}

func NewTwoFactorService(deps TwoFactorDeps) *TwoFactorService {
	return &TwoFactorService{
		users:    deps.Users,
		codes:    deps.Codes,
		store:    deps.Store,
		cipher:   deps.Cipher,
		totp:     deps.TOTP,
		hasher:   deps.Hasher,
		notifier: deps.Notifier,
		sessions: deps.Sessions,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// GenerateSecret enrolls a new secret and a fresh batch of backup codes.
// The plaintext secret and codes are returned here and never again.
func (s *TwoFactorService) GenerateSecret(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	key, err := s.totp.GenerateSecret(email)
	if err != nil {
		return nil, err
	}

	envelope, err := s.cipher.Encrypt(key.Secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt totp secret: %w", err)
	}

	codes, err := auth.GenerateBackupCodes(models.BackupCodeBatchSize)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		if hashes[i], err = s.hasher.Hash(code); err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
	}

	if err := s.store.ReplaceSecret(ctx, userID, envelope, hashes); err != nil {
		return nil, err
	}

	qr, err := s.totp.QRCodeDataURL(key.URI)
	if err != nil {
		// The URI is still usable for manual entry.
		s.logger.Warn("failed to render QR code", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("two-factor secret generated", slog.String("user_id", userID))

	return &models.TwoFactorSetup{
		Secret:          key.Secret,
		ProvisioningURI: key.URI,
		QRCode:          qr,
		BackupCodes:     codes,
	}, nil
}

// VerifyAndEnable confirms enrollment with a TOTP code. A wrong code leaves the
// state unchanged and returns false without an error, as does a secret that was
// replaced or cleared after it was read.
func (s *TwoFactorService) VerifyAndEnable(ctx context.Context, userID, code string) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return false, nil
	}

	ok, err := s.check(user, code)
	if err != nil || !ok {
		return false, err
	}
	if user.TwoFactorState() == models.TwoFactorEnabled {
		return true, nil
	}

	confirmed, err := s.store.Confirm(ctx, userID, *user.TwoFactorSecret, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("enable two-factor: %w", err)
	}
	if !confirmed {
		s.logger.Info("two-factor secret changed during enable", slog.String("user_id", userID))
		return false, nil
	}

	s.logger.Info("two-factor enabled", slog.String("user_id", userID))
	s.notify(ctx, user, NotificationTwoFactorEnabled)
	return true, nil
}

// VerifyToken checks a login-time TOTP code. It is false without decrypting
// anything unless 2FA is enabled.
func (s *TwoFactorService) VerifyToken(ctx context.Context, userID, code string) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if user.TwoFactorState() != models.TwoFactorEnabled {
		return false, nil
	}
	return s.check(user, code)
}

func (s *TwoFactorService) check(user *models.User, code string) (bool, error) {
	secret, err := s.cipher.Decrypt(*user.TwoFactorSecret)
	if err != nil {
		s.logger.Error("failed to decrypt two-factor secret",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return false, fmt.Errorf("decrypt totp secret: %w", err)
	}
	return s.totp.Verify(secret, code), nil
}

// VerifyBackupCode consumes one matching unused code. Every unused code is
// compared even after a match so the duration does not depend on position.
func (s *TwoFactorService) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	code = auth.NormalizeBackupCode(code)

	unused, err := s.codes.ListUnused(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list backup codes: %w", err)
	}

	var match *models.BackupCode
	for _, candidate := range unused {
		if s.hasher.Verify(code, candidate.CodeHash) && match == nil {
			match = candidate
		}
	}
	if match == nil {
		return false, nil
	}

	consumed, err := s.codes.MarkUsed(ctx, match.ID)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	if !consumed {
		// lost a race with a concurrent request using the same code
		return false, nil
	}

	remaining := len(unused) - 1
	s.logger.Info("backup code used",
		slog.String("user_id", userID),
		slog.Int("remaining", remaining))
	return true, nil
}

// Disable clears the secret and every backup code, then ends all sessions of the user.
func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if err := s.store.Clear(ctx, userID); err != nil {
		return err
	}

	if s.sessions != nil {
		if n, err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
			s.logger.Error("failed to revoke sessions after disabling two-factor",
				slog.String("user_id", userID),
				slog.Any("error", err))
		} else {
			s.logger.Info("sessions revoked", slog.String("user_id", userID), slog.Int64("count", n))
		}
	}

	s.logger.Info("two-factor disabled", slog.String("user_id", userID))
	s.notify(ctx, user, NotificationTwoFactorDisabled)
	return nil
}

// Status reports the enrollment state and how many backup codes are left.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	status := &models.TwoFactorStatus{
		State:       user.TwoFactorState(),
		ConfirmedAt: user.TwoFactorConfirmedAt,
	}
	if status.State == models.TwoFactorDisabled {
		return status, nil
	}

	if status.RemainingBackupCodes, err = s.codes.CountUnused(ctx, userID); err != nil {
		return nil, fmt.Errorf("count backup codes: %w", err)
	}
	return status, nil
}

func (s *TwoFactorService) notify(ctx context.Context, user *models.User, kind NotificationKind) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifySecurityEvent(ctx, user.Email, kind); err != nil {
		s.logger.Warn("failed to send security notification",
			slog.String("user_id", user.ID),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
	}
}

// IsCipherFailure reports whether err came from a malformed or tampered secret envelope.
func IsCipherFailure(err error) bool {
	return errors.Is(err, models.ErrCiphertextFormat) || errors.Is(err, models.ErrCiphertextIntegrity)
}
