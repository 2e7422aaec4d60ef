package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/velist/velist/internal/models"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	FindByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	FindByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	FindByOAuthIDFunc   func(ctx context.Context, oauthID string) (*models.User, error)
	InsertFunc          func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc          func(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) FindByOAuthID(ctx context.Context, oauthID string) (*models.User, error) {
	if m.FindByOAuthIDFunc != nil {
		return m.FindByOAuthIDFunc(ctx, oauthID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Insert(ctx context.Context, user *models.User) (*models.User, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Update(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, upd)
	}
	return nil, models.ErrInternalServer
}

// MockSessionStore implements SessionStore for testing
type MockSessionStore struct {
	CreateFunc        func(ctx context.Context, session *models.Session) error
	ExistsFunc        func(ctx context.Context, id string) (bool, error)
	DeleteFunc        func(ctx context.Context, id string) error
	DeleteForUserFunc func(ctx context.Context, userID string) (int64, error)
}

func (m *MockSessionStore) Create(ctx context.Context, session *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionStore) Exists(ctx context.Context, id string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, id)
	}
	return true, nil
}

func (m *MockSessionStore) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionStore) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	if m.DeleteForUserFunc != nil {
		return m.DeleteForUserFunc(ctx, userID)
	}
	return 0, nil
}

// MockNotifier records every notification
type MockNotifier struct {
	mu    sync.Mutex
	Sent  []NotificationKind
	Error error
}

func (m *MockNotifier) NotifySecurityEvent(ctx context.Context, email string, kind NotificationKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, kind)
	return m.Error
}

// MockSESClient implements SESAPI for testing
type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

// prefixCipher is a reversible stand-in for the AES-GCM cipher.
type prefixCipher struct {
	failDecrypt error
}

func (c *prefixCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (c *prefixCipher) Decrypt(envelope string) (string, error) {
	if c.failDecrypt != nil {
		return "", c.failDecrypt
	}
	plain, ok := strings.CutPrefix(envelope, "enc:")
	if !ok {
		return "", models.ErrCiphertextFormat
	}
	return plain, nil
}

// MemoryStore is an in-memory Credential Store used to drive full 2FA flows.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	codes  map[string]*models.BackupCode
	nextID int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*models.User),
		codes: make(map[string]*models.BackupCode),
	}
}

func (s *MemoryStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%04d", prefix, s.nextID)
}

func (s *MemoryStore) Add(user *models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[cp.ID] = &cp
	return &cp
}

func (s *MemoryStore) User(id string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.users[id]
	return &cp
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) FindByOAuthID(ctx context.Context, oauthID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.OAuthID != nil && *u.OAuthID == oauthID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) Insert(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return nil, fmt.Errorf("%w: users_email_key", models.ErrConflict)
		}
	}
	cp := *user
	cp.ID = s.id("user")
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = upd.PasswordHash
	}
	if upd.OAuthID != nil {
		u.OAuthID = upd.OAuthID
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = upd.AvatarURL
	}
	if upd.EmailVerifiedAt != nil {
		u.EmailVerifiedAt = upd.EmailVerifiedAt
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) setTwoFactor(id string, upd models.TwoFactorUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.TwoFactorSecret = upd.Secret
	u.TwoFactorEnabled = upd.Enabled
	u.TwoFactorConfirmedAt = upd.ConfirmedAt
	return nil
}

func (s *MemoryStore) ReplaceSecret(ctx context.Context, userID, secretCiphertext string, codeHashes []string) error {
	if err := s.setTwoFactor(userID, models.TwoFactorUpdate{Secret: &secretCiphertext}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCodes(userID)
	for _, h := range codeHashes {
		id := s.id("code")
		s.codes[id] = &models.BackupCode{ID: id, UserID: userID, CodeHash: h, CreatedAt: time.Now()}
	}
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	s.deleteCodes(userID)
	s.mu.Unlock()
	return s.setTwoFactor(userID, models.TwoFactorUpdate{})
}

// Confirm mirrors the conditional update of the Postgres store.
func (s *MemoryStore) Confirm(ctx context.Context, userID, secretCiphertext string, confirmedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.TwoFactorSecret == nil || *u.TwoFactorSecret != secretCiphertext {
		return false, nil
	}
	u.TwoFactorEnabled = true
	if u.TwoFactorConfirmedAt == nil {
		u.TwoFactorConfirmedAt = &confirmedAt
	}
	return true, nil
}

func (s *MemoryStore) deleteCodes(userID string) {
	for id, c := range s.codes {
		if c.UserID == userID {
			delete(s.codes, id)
		}
	}
}

func (s *MemoryStore) ListUnused(ctx context.Context, userID string) ([]*models.BackupCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.BackupCode, 0)
	for _, c := range s.codes {
		if c.UserID == userID && c.UsedAt == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) MarkUsed(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	now := time.Now()
	c.UsedAt = &now
	return true, nil
}

func (s *MemoryStore) CountUnused(ctx context.Context, userID string) (int, error) {
	codes, err := s.ListUnused(ctx, userID)
	return len(codes), err
}

// NewTestUser creates a password user with a bcrypt.MinCost hash of password.
func NewTestUser(id, email, name, password string) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	h := string(hash)
	return &models.User{
		ID:           id,
		Email:        email,
		Name:         name,
		PasswordHash: &h,
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// NewTestOAuthUser creates an account without a password.
func NewTestOAuthUser(id, email, oauthID string) *models.User {
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      "OAuth User",
		OAuthID:   &oauthID,
		Role:      models.RoleUser,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func strPtr(s string) *string { return &s }
