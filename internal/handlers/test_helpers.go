package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
	"github.com/velist/velist/internal/services"
	pkghttp "github.com/velist/velist/pkg/http"
	"github.com/velist/velist/pkg/logger"
)

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestAuthHandler fills the rendering and logging collaborators a test does not care about.
func NewTestAuthHandler(deps AuthHandlerDeps) *AuthHandler {
	if deps.Pages == nil {
		deps.Pages = pkghttp.NewPageRenderer("test")
	}
	if deps.IPs == nil {
		deps.IPs, _ = pkghttp.NewIPResolver(nil)
	}
	if deps.Logger == nil {
		deps.Logger = DiscardLogger()
	}
	if deps.Audit == nil {
		deps.Audit = logger.NewAuditLogger(deps.Logger)
	}
	if deps.Sessions == nil {
		deps.Sessions = &MockSessionService{}
	}
	return NewAuthHandler(deps)
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(pkghttp.HeaderInertia, "true")
	return req
}

// NewFormRequest creates a urlencoded form post as a browser would send it
func NewFormRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// WithIdentity attaches a signed-in identity as the Auth Gate would
func WithIdentity(req *http.Request, userID, email, role string) *http.Request {
	identity := &models.Identity{ID: userID, Email: email, Name: "Test User", Role: role}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

// DecodePage decodes the JSON page object of a client-side navigation response
func DecodePage(t *testing.T, w *httptest.ResponseRecorder) pkghttp.Page {
	t.Helper()
	require.Equal(t, "true", w.Header().Get(pkghttp.HeaderInertia), "expected a page object response")

	var page pkghttp.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page), "Failed to decode page JSON")
	return page
}

// PageErrors returns the errors prop of a rendered page
func PageErrors(t *testing.T, page pkghttp.Page) map[string]any {
	t.Helper()
	errs, ok := page.Props["errors"].(map[string]any)
	require.True(t, ok, "page has no errors prop")
	return errs
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertRedirect checks the status and Location of a redirect
func AssertRedirect(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, location string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, location, w.Header().Get("Location"), "Redirect location mismatch")
}

// FindCookie returns the Set-Cookie entry for name, or nil
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// MockCredentialService implements CredentialServiceInterface for testing
type MockCredentialService struct {
	RegisterFunc              func(ctx context.Context, in services.RegisterInput) (*models.SafeUser, error)
	AttemptFunc               func(ctx context.Context, email, password string) (*models.SafeUser, error)
	FindOrCreateOAuthUserFunc func(ctx context.Context, profile models.OAuthProfile) (*models.SafeUser, error)
}

func (m *MockCredentialService) Register(ctx context.Context, in services.RegisterInput) (*models.SafeUser, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockCredentialService) Attempt(ctx context.Context, email, password string) (*models.SafeUser, error) {
	if m.AttemptFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.AttemptFunc(ctx, email, password)
}

func (m *MockCredentialService) FindOrCreateOAuthUser(ctx context.Context, profile models.OAuthProfile) (*models.SafeUser, error) {
	if m.FindOrCreateOAuthUserFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.FindOrCreateOAuthUserFunc(ctx, profile)
}

// MockSessionService implements SessionServiceInterface for testing.
// Tokens are plain strings so tests can assert on cookie values.
type MockSessionService struct {
	IssueFunc          func(ctx context.Context, user *models.SafeUser, remember bool, meta models.ClientMeta) (*models.IssuedSession, error)
	RevokeFunc         func(ctx context.Context, token string) string
	BeginPendingFunc   func(userID string) (string, error)
	ResolvePendingFunc func(ctx context.Context, token string) (*models.SafeUser, error)
}

func (m *MockSessionService) Issue(ctx context.Context, user *models.SafeUser, remember bool, meta models.ClientMeta) (*models.IssuedSession, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, user, remember, meta)
	}
	ttl := 24 * time.Hour
	if remember {
		ttl = 30 * 24 * time.Hour
	}
	return &models.IssuedSession{Token: "session-" + user.ID, SessionID: "sid", ExpiresAt: time.Now().Add(ttl), MaxAge: ttl}, nil
}

func (m *MockSessionService) Revoke(ctx context.Context, token string) string {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, token)
	}
	return ""
}

func (m *MockSessionService) BeginPending(userID string) (string, error) {
	if m.BeginPendingFunc != nil {
		return m.BeginPendingFunc(userID)
	}
	return "pending-" + userID, nil
}

func (m *MockSessionService) ResolvePending(ctx context.Context, token string) (*models.SafeUser, error) {
	if m.ResolvePendingFunc != nil {
		return m.ResolvePendingFunc(ctx, token)
	}
	return nil, models.ErrInvalidToken
}

func (m *MockSessionService) PendingTTL() time.Duration {
	return 5 * time.Minute
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	GenerateSecretFunc   func(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	VerifyAndEnableFunc  func(ctx context.Context, userID, code string) (bool, error)
	VerifyTokenFunc      func(ctx context.Context, userID, code string) (bool, error)
	VerifyBackupCodeFunc func(ctx context.Context, userID, code string) (bool, error)
	DisableFunc          func(ctx context.Context, userID string) error
	StatusFunc           func(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

func (m *MockTwoFactorService) GenerateSecret(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	if m.GenerateSecretFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.GenerateSecretFunc(ctx, userID, email)
}

func (m *MockTwoFactorService) VerifyAndEnable(ctx context.Context, userID, code string) (bool, error) {
	if m.VerifyAndEnableFunc == nil {
		return false, nil
	}
	return m.VerifyAndEnableFunc(ctx, userID, code)
}

func (m *MockTwoFactorService) VerifyToken(ctx context.Context, userID, code string) (bool, error) {
	if m.VerifyTokenFunc == nil {
		return false, nil
	}
	return m.VerifyTokenFunc(ctx, userID, code)
}

func (m *MockTwoFactorService) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	if m.VerifyBackupCodeFunc == nil {
		return false, nil
	}
	return m.VerifyBackupCodeFunc(ctx, userID, code)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, userID)
}

func (m *MockTwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	if m.StatusFunc == nil {
		return &models.TwoFactorStatus{State: models.TwoFactorDisabled}, nil
	}
	return m.StatusFunc(ctx, userID)
}

// MockOAuthProvider implements services.OAuthProvider for testing
type MockOAuthProvider struct {
	ExchangeFunc func(ctx context.Context, code, verifier string) (*models.OAuthProfile, error)
}

func (m *MockOAuthProvider) AuthCodeURL(state, verifier string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, code, verifier string) (*models.OAuthProfile, error) {
	if m.ExchangeFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.ExchangeFunc(ctx, code, verifier)
}

// MockUserLister implements UserLister for testing
type MockUserLister struct {
	ListFunc  func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CountFunc func(ctx context.Context) (int, error)
}

func (m *MockUserLister) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListFunc(ctx, limit, offset)
}

func (m *MockUserLister) Count(ctx context.Context) (int, error) {
	if m.CountFunc == nil {
		return 0, nil
	}
	return m.CountFunc(ctx)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
