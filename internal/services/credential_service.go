package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
	pkgauth "github.com/velist/velist/pkg/auth"
	pkglogger "github.com/velist/velist/pkg/logger"
)

// UserRepository is the user half of the Credential Store.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByOAuthID(ctx context.Context, oauthID string) (*models.User, error)
	Insert(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error)
}

// PasswordHasher is satisfied by *pkgauth.Hasher.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// RegisterInput is the registration form after decoding.
type RegisterInput struct {
	Email                string
	Password             string
	PasswordConfirmation string
	Name                 string
}

const (
	dummyPassword = "velist-timing-equalizer"

	// maxNameLength matches users.name VARCHAR(100).
	maxNameLength = 100
)

// CredentialService handles registration, password login and OAuth account resolution.
type CredentialService struct {
	repo   UserRepository
	hasher PasswordHasher
	timing *auth.TimingDelay
	logger *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialService(repo UserRepository, hasher PasswordHasher, timing *auth.TimingDelay, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		repo:   repo,
		hasher: hasher,
		timing: timing,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates a password account with role "user".
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (*models.SafeUser, error) {
	return s.create(ctx, in, models.RoleUser)
}

// CreateAdmin creates a password account with role "admin". Used by the operator CLI.
func (s *CredentialService) CreateAdmin(ctx context.Context, in RegisterInput) (*models.SafeUser, error) {
	return s.create(ctx, in, models.RoleAdmin)
}

func (s *CredentialService) create(ctx context.Context, in RegisterInput, role string) (*models.SafeUser, error) {
	if in.Password != in.PasswordConfirmation {
		return nil, models.NewFieldError("password", "The password confirmation does not match.", models.ErrValidation)
	}
	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, models.NewFieldError("password", err.Error()+".", models.ErrValidation)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.NewFieldError("name", "The name field is required.", models.ErrValidation)
	}

	_, err := s.repo.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, emailTaken()
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.Insert(ctx, &models.User{
		Email:        in.Email,
		Name:         name,
		PasswordHash: &hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, emailTaken()
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", created.ID),
		slog.String("email", pkglogger.SanitizedEmail(created.Email)),
		slog.String("role", created.Role))

	return created.Safe(), nil
}

func emailTaken() error {
	return models.NewFieldError("email", "The email has already been taken.", models.ErrConflict)
}

// Attempt verifies an email/password pair. Unknown emails, OAuth-only accounts
// and wrong passwords all return models.ErrInvalidCredentials after the same
// amount of hashing work.
func (s *CredentialService) Attempt(ctx context.Context, email, password string) (*models.SafeUser, error) {
	start := s.now()

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user == nil || !user.HasPassword() {
		s.hasher.Verify(password, s.dummy())
		s.wait(start, false)
		return nil, models.ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, *user.PasswordHash) {
		s.wait(start, false)
		return nil, models.ErrInvalidCredentials
	}

	s.wait(start, true)
	return user.Safe(), nil
}

// FindOrCreateOAuthUser resolves a provider identity by oauth id, then by
// email (linking the existing account), and creates a password-less account
// otherwise. Linking never touches the password hash and needs a verified
// provider email and a row that is not bound to another subject.
func (s *CredentialService) FindOrCreateOAuthUser(ctx context.Context, profile models.OAuthProfile) (*models.SafeUser, error) {
	if profile.ID == "" || profile.Email == "" {
		return nil, fmt.Errorf("%w: provider profile is missing id or email", models.ErrBadRequest)
	}

	user, err := s.repo.FindByOAuthID(ctx, profile.ID)
	if err == nil {
		return user.Safe(), nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("find by oauth id: %w", err)
	}

	user, err = s.repo.FindByEmail(ctx, profile.Email)
	if err == nil {
		return s.link(ctx, user, profile)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("find by email: %w", err)
	}

	newUser := &models.User{
		Email:   profile.Email,
		Name:    oauthDisplayName(profile),
		OAuthID: &profile.ID,
		Role:    models.RoleUser,
	}
	if profile.Picture != "" {
		newUser.AvatarURL = &profile.Picture
	}
	if profile.EmailVerified {
		now := s.now().UTC()
		newUser.EmailVerifiedAt = &now
	}

	created, err := s.repo.Insert(ctx, newUser)
	if err != nil {
		return nil, fmt.Errorf("create oauth user: %w", err)
	}

	s.logger.Info("oauth user created", slog.String("user_id", created.ID))
	return created.Safe(), nil
}

func (s *CredentialService) link(ctx context.Context, user *models.User, profile models.OAuthProfile) (*models.SafeUser, error) {
	if !profile.EmailVerified {
		s.logger.Warn("oauth link refused: provider email not verified", slog.String("user_id", user.ID))
		return nil, oauthLinkRefused()
	}
	if user.OAuthID != nil && *user.OAuthID != profile.ID {
		s.logger.Warn("oauth link refused: account bound to another subject", slog.String("user_id", user.ID))
		return nil, oauthLinkRefused()
	}

	upd := models.UserUpdate{OAuthID: &profile.ID}
	if user.AvatarURL == nil && profile.Picture != "" {
		upd.AvatarURL = &profile.Picture
	}
	if user.EmailVerifiedAt == nil && profile.EmailVerified {
		now := s.now().UTC()
		upd.EmailVerifiedAt = &now
	}

	linked, err := s.repo.Update(ctx, user.ID, upd)
	if err != nil {
		return nil, fmt.Errorf("link oauth account: %w", err)
	}

	s.logger.Info("oauth account linked", slog.String("user_id", linked.ID))
	return linked.Safe(), nil
}

func oauthLinkRefused() error {
	return models.NewFieldError("email",
		"An account with this email already exists. Sign in with your password instead.",
		models.ErrConflict)
}

func oauthDisplayName(profile models.OAuthProfile) string {
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name, _, _ = strings.Cut(profile.Email, "@")
	}
	if runes := []rune(name); len(runes) > maxNameLength {
		name = strings.TrimSpace(string(runes[:maxNameLength]))
	}
	return name
}

// dummy returns a hash with the hasher's own cost so a miss costs as much as a hit.
func (s *CredentialService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("failed to build dummy hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *CredentialService) wait(start time.Time, success bool) {
	if s.timing != nil {
		s.timing.WaitFrom(start, success)
	}
}
