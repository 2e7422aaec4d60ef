package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
	pkgauth "github.com/velist/velist/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

func newTestCredentialService(repo UserRepository) *CredentialService {
	return NewCredentialService(repo, pkgauth.NewHasher(bcrypt.MinCost), nil, discardLogger())
}

func aliceInput() RegisterInput {
	return RegisterInput{
		Email:                "alice@example.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
		Name:                 "Alice",
	}
}

// ============================================================================
// Register Tests (6 tests)
// ============================================================================

func TestCredentialService_Register_ThenAttempt(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestCredentialService(store)

	registered, err := svc.Register(context.Background(), aliceInput())
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, registered.Role)
	assert.NotEmpty(t, registered.ID)

	stored := store.User(registered.ID)
	require.NotNil(t, stored.PasswordHash)
	assert.NotEqual(t, "password123", *stored.PasswordHash)

	got, err := svc.Attempt(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, got.ID)
}

func TestCredentialService_Register_ConfirmationMismatch(t *testing.T) {
	repo := &MockUserRepository{
		InsertFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			t.Fatal("insert must not be called")
			return nil, nil
		},
	}
	in := aliceInput()
	in.PasswordConfirmation = "password124"

	_, err := newTestCredentialService(repo).Register(context.Background(), in)

	assert.ErrorIs(t, err, models.ErrValidation)
	var fe *models.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "password", fe.Field)
}

func TestCredentialService_Register_ShortPassword(t *testing.T) {
	in := aliceInput()
	in.Password, in.PasswordConfirmation = "short", "short"

	_, err := newTestCredentialService(&MockUserRepository{}).Register(context.Background(), in)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCredentialService_Register_DuplicateEmail(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestCredentialService(store)

	first, err := svc.Register(context.Background(), aliceInput())
	require.NoError(t, err)
	before := store.User(first.ID)

	second := aliceInput()
	second.Name = "Mallory"
	second.Password, second.PasswordConfirmation = "different-pass", "different-pass"
	_, err = svc.Register(context.Background(), second)

	assert.ErrorIs(t, err, models.ErrConflict)
	var fe *models.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "email", fe.Field)

	after := store.User(first.ID)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, *before.PasswordHash, *after.PasswordHash)
}

func TestCredentialService_Register_EmailIsCaseSensitive(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestCredentialService(store)

	_, err := svc.Register(context.Background(), aliceInput())
	require.NoError(t, err)

	upper := aliceInput()
	upper.Email = "Alice@example.com"
	_, err = svc.Register(context.Background(), upper)
	assert.NoError(t, err)
}

func TestCredentialService_Register_InsertRaceMapsToConflict(t *testing.T) {
	repo := &MockUserRepository{
		InsertFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}

	_, err := newTestCredentialService(repo).Register(context.Background(), aliceInput())
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCredentialService_CreateAdmin(t *testing.T) {
	store := NewMemoryStore()
	admin, err := newTestCredentialService(store).CreateAdmin(context.Background(), aliceInput())
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
}

// ============================================================================
// Attempt Tests (5 tests)
// ============================================================================

func TestCredentialService_Attempt_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	store := NewMemoryStore()
	store.Add(NewTestUser("user-1", "alice@example.com", "Alice", "password123"))
	svc := newTestCredentialService(store)

	_, unknownErr := svc.Attempt(context.Background(), "nobody@example.com", "password123")
	_, wrongErr := svc.Attempt(context.Background(), "alice@example.com", "password124")

	assert.ErrorIs(t, unknownErr, models.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, models.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestCredentialService_Attempt_OAuthOnlyAccount(t *testing.T) {
	store := NewMemoryStore()
	store.Add(NewTestOAuthUser("user-1", "alice@example.com", "google-1"))

	_, err := newTestCredentialService(store).Attempt(context.Background(), "alice@example.com", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestCredentialService_Attempt_ReturnsSafeUser(t *testing.T) {
	store := NewMemoryStore()
	u := NewTestUser("user-1", "alice@example.com", "Alice", "password123")
	u.TwoFactorEnabled = true
	u.TwoFactorSecret = strPtr("enc:SECRET")
	store.Add(u)

	got, err := newTestCredentialService(store).Attempt(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.True(t, got.TwoFactorEnabled)
	assert.IsType(t, &models.SafeUser{}, got)
}

func TestCredentialService_Attempt_StoreFailure(t *testing.T) {
	repo := &MockUserRepository{
		FindByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, errors.New("connection reset")
		},
	}

	_, err := newTestCredentialService(repo).Attempt(context.Background(), "alice@example.com", "password123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrUnauthorized)
}

func TestCredentialService_Attempt_FailureIsPadded(t *testing.T) {
	store := NewMemoryStore()
	svc := NewCredentialService(store, pkgauth.NewHasher(bcrypt.MinCost),
		auth.NewTimingDelay(auth.TimingConfig{BaseDelay: 50 * time.Millisecond}), discardLogger())

	start := time.Now()
	_, err := svc.Attempt(context.Background(), "nobody@example.com", "password123")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

// ============================================================================
// FindOrCreateOAuthUser Tests (9 tests)
// ============================================================================

func googleProfile() models.OAuthProfile {
	return models.OAuthProfile{
		ID:            "google-123",
		Email:         "alice@example.com",
		Name:          "Alice G",
		Picture:       "https://example.com/a.png",
		EmailVerified: true,
	}
}

func TestFindOrCreateOAuthUser_ExistingOAuthID(t *testing.T) {
	store := NewMemoryStore()
	existing := store.Add(NewTestOAuthUser("user-1", "old@example.com", "google-123"))

	got, err := newTestCredentialService(store).FindOrCreateOAuthUser(context.Background(), googleProfile())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, "old@example.com", got.Email)
}

func TestFindOrCreateOAuthUser_LinksByEmailKeepingPassword(t *testing.T) {
	store := NewMemoryStore()
	existing := store.Add(NewTestUser("user-1", "alice@example.com", "Alice", "password123"))
	hashBefore := *existing.PasswordHash
	svc := newTestCredentialService(store)

	got, err := svc.FindOrCreateOAuthUser(context.Background(), googleProfile())
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)

	linked := store.User("user-1")
	require.NotNil(t, linked.OAuthID)
	assert.Equal(t, "google-123", *linked.OAuthID)
	assert.Equal(t, hashBefore, *linked.PasswordHash)
	assert.NotNil(t, linked.EmailVerifiedAt)

	_, err = svc.Attempt(context.Background(), "alice@example.com", "password123")
	assert.NoError(t, err, "password login still works after linking")
}

func TestFindOrCreateOAuthUser_CreatesPasswordlessUser(t *testing.T) {
	store := NewMemoryStore()

	got, err := newTestCredentialService(store).FindOrCreateOAuthUser(context.Background(), googleProfile())
	require.NoError(t, err)

	created := store.User(got.ID)
	assert.Nil(t, created.PasswordHash)
	assert.Equal(t, "Alice G", created.Name)
	assert.Equal(t, models.RoleUser, created.Role)
	assert.NotNil(t, created.EmailVerifiedAt)
	require.NotNil(t, created.AvatarURL)
}

func TestFindOrCreateOAuthUser_UnverifiedEmail(t *testing.T) {
	store := NewMemoryStore()
	p := googleProfile()
	p.EmailVerified = false
	p.Name = ""

	got, err := newTestCredentialService(store).FindOrCreateOAuthUser(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, store.User(got.ID).EmailVerifiedAt)
	assert.Equal(t, "alice", got.Name)
}

func TestFindOrCreateOAuthUser_IncompleteProfile(t *testing.T) {
	_, err := newTestCredentialService(NewMemoryStore()).FindOrCreateOAuthUser(context.Background(), models.OAuthProfile{ID: "x"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestFindOrCreateOAuthUser_UnverifiedEmailDoesNotLink(t *testing.T) {
	store := NewMemoryStore()
	store.Add(NewTestUser("user-1", "alice@example.com", "Alice", "password123"))
	p := googleProfile()
	p.EmailVerified = false

	_, err := newTestCredentialService(store).FindOrCreateOAuthUser(context.Background(), p)

	assert.ErrorIs(t, err, models.ErrConflict)
	var fe *models.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "email", fe.Field)
	assert.Nil(t, store.User("user-1").OAuthID)
}

func TestFindOrCreateOAuthUser_DoesNotRebindOtherSubject(t *testing.T) {
	store := NewMemoryStore()
	existing := NewTestUser("user-1", "alice@example.com", "Alice", "password123")
	existing.OAuthID = strPtr("google-original")
	store.Add(existing)

	_, err := newTestCredentialService(store).FindOrCreateOAuthUser(context.Background(), googleProfile())

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, "google-original", *store.User("user-1").OAuthID)
}

func TestFindOrCreateOAuthUser_LongNameIsTruncated(t *testing.T) {
	store := NewMemoryStore()
	p := googleProfile()
	p.Name = strings.Repeat("é", 150)

	got, err := newTestCredentialService(store).FindOrCreateOAuthUser(context.Background(), p)

	require.NoError(t, err)
	assert.Equal(t, 100, utf8.RuneCountInString(got.Name))
}

func TestOAuthDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		profile models.OAuthProfile
		want    string
	}{
		{name: "provider name", profile: models.OAuthProfile{Name: "  Alice G "}, want: "Alice G"},
		{name: "email local part", profile: models.OAuthProfile{Email: "bob@example.com"}, want: "bob"},
		{name: "truncated", profile: models.OAuthProfile{Name: strings.Repeat("a", 101)}, want: strings.Repeat("a", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, oauthDisplayName(tt.profile))
		})
	}
}
