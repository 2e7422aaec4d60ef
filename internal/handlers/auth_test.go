package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/handlers"
	"github.com/velist/velist/internal/models"
	"github.com/velist/velist/internal/services"
)

func safeUser(id, email string, twoFactor bool) *models.SafeUser {
	return &models.SafeUser{ID: id, Email: email, Name: "Alice", Role: models.RoleUser, TwoFactorEnabled: twoFactor}
}

func attemptReturning(user *models.SafeUser, err error) *handlers.MockCredentialService {
	return &handlers.MockCredentialService{
		AttemptFunc: func(ctx context.Context, email, password string) (*models.SafeUser, error) {
			return user, err
		},
	}
}

// ============================================================================
// Login Tests (9 tests)
// ============================================================================

func TestLogin_Success(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: attemptReturning(safeUser("user-1", "alice@example.com", false), nil),
	})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertRedirect(t, w, http.StatusSeeOther, "/dashboard")
	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, "session-user-1", cookie.Value)
	assert.Equal(t, 86400, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Nil(t, handlers.FindCookie(w, auth.PendingTwoFactorCookieName))
}

func TestLogin_RememberExtendsCookie(t *testing.T) {
	var gotRemember bool
	sessions := &handlers.MockSessionService{}
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: attemptReturning(safeUser("user-1", "alice@example.com", false), nil),
		Sessions:    sessions,
	})
	req := handlers.NewFormRequest("POST", "/auth/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"password123"},
		"remember": {"on"},
	})
	sessions.IssueFunc = func(ctx context.Context, user *models.SafeUser, remember bool, meta models.ClientMeta) (*models.IssuedSession, error) {
		gotRemember = remember
		return (&handlers.MockSessionService{}).Issue(ctx, user, remember, meta)
	}

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.True(t, gotRemember)
	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, 30*86400, cookie.MaxAge)
}

func TestLogin_TwoFactorUserGetsPendingCookieOnly(t *testing.T) {
	sessions := &handlers.MockSessionService{
		IssueFunc: func(ctx context.Context, user *models.SafeUser, remember bool, meta models.ClientMeta) (*models.IssuedSession, error) {
			t.Fatal("session issued before the second factor")
			return nil, nil
		},
	}
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: attemptReturning(safeUser("user-1", "alice@example.com", true), nil),
		Sessions:    sessions,
	})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
		Remember: true,
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertRedirect(t, w, http.StatusSeeOther, "/auth/2fa")
	assert.Nil(t, handlers.FindCookie(w, auth.SessionCookieName))
	pending := handlers.FindCookie(w, auth.PendingTwoFactorCookieName)
	require.NotNil(t, pending)
	assert.Equal(t, "pending-user-1", pending.Value)
	assert.Equal(t, 300, pending.MaxAge)
	assert.True(t, pending.HttpOnly)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: attemptReturning(nil, models.ErrInvalidCredentials),
	})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrongpassword",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	page := handlers.DecodePage(t, w)
	assert.Equal(t, handlers.PageLogin, page.Component)
	assert.Equal(t, "These credentials do not match our records.", handlers.PageErrors(t, page)["email"])
	assert.Equal(t, "alice@example.com", page.Props["email"])
	assert.Nil(t, handlers.FindCookie(w, auth.SessionCookieName))
}

func TestLogin_StoreFailureLooksLikeBadCredentials(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: attemptReturning(nil, errors.New("find user: connection reset")),
	})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	page := handlers.DecodePage(t, w)
	assert.Equal(t, "These credentials do not match our records.", handlers.PageErrors(t, page)["email"])
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestLogin_ValidationError(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: &handlers.MockCredentialService{
			AttemptFunc: func(ctx context.Context, email, password string) (*models.SafeUser, error) {
				t.Fatal("Attempt called with invalid input")
				return nil, nil
			},
		},
	})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email: "not-an-email",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errs := handlers.PageErrors(t, handlers.DecodePage(t, w))
	assert.Equal(t, "The email must be a valid email address.", errs["email"])
	assert.Equal(t, "The password field is required.", errs["password"])
}

func TestLogin_EmptyBodyFailsValidation(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{Credentials: &handlers.MockCredentialService{}})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", nil)

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errs := handlers.PageErrors(t, handlers.DecodePage(t, w))
	assert.Contains(t, errs, "email")
}

func TestLogin_MalformedJSON(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{Credentials: &handlers.MockCredentialService{}})
	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Inertia", "true")

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, handlers.PageLogin, handlers.DecodePage(t, w).Component)
}

func TestLogin_FullPageRenderIsHTML(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: attemptReturning(nil, models.ErrInvalidCredentials),
	})
	req := handlers.NewFormRequest("POST", "/auth/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"nope"},
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "data-page=")
}

// ============================================================================
// Register Tests (4 tests)
// ============================================================================

func TestRegister_Success(t *testing.T) {
	var got services.RegisterInput
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: &handlers.MockCredentialService{
			RegisterFunc: func(ctx context.Context, in services.RegisterInput) (*models.SafeUser, error) {
				got = in
				return safeUser("user-1", in.Email, false), nil
			},
		},
	})
	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Name:                 "Alice",
		Email:                "alice@example.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	handlers.AssertRedirect(t, w, http.StatusSeeOther, "/dashboard")
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "password123", got.PasswordConfirmation)

	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, 86400, cookie.MaxAge)
}

func TestRegister_FieldErrorFromService(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		field string
	}{
		{
			name:  "duplicate email",
			err:   models.NewFieldError("email", "The email has already been taken.", models.ErrConflict),
			field: "email",
		},
		{
			name:  "confirmation mismatch",
			err:   models.NewFieldError("password", "The password confirmation does not match.", models.ErrValidation),
			field: "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
				Credentials: &handlers.MockCredentialService{
					RegisterFunc: func(ctx context.Context, in services.RegisterInput) (*models.SafeUser, error) {
						return nil, tt.err
					},
				},
			})
			req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
				Name:                 "Alice",
				Email:                "alice@example.com",
				Password:             "password123",
				PasswordConfirmation: "password124",
			})

			w := httptest.NewRecorder()
			handler.Register(w, req)

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			page := handlers.DecodePage(t, w)
			assert.Equal(t, handlers.PageRegister, page.Component)
			var fe *models.FieldError
			require.True(t, errors.As(tt.err, &fe))
			assert.Equal(t, fe.Message, handlers.PageErrors(t, page)[tt.field])
			assert.Nil(t, handlers.FindCookie(w, auth.SessionCookieName))
		})
	}
}

func TestRegister_ValidationError(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{Credentials: &handlers.MockCredentialService{}})
	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Name:                 "A",
		Email:                "alice@example.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errs := handlers.PageErrors(t, handlers.DecodePage(t, w))
	assert.Equal(t, "The name must be at least 2 characters.", errs["name"])
}

func TestRegister_InternalError(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Credentials: &handlers.MockCredentialService{
			RegisterFunc: func(ctx context.Context, in services.RegisterInput) (*models.SafeUser, error) {
				return nil, errors.New("insert user: pool closed")
			},
		},
	})
	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Name:                 "Alice",
		Email:                "alice@example.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pool closed")
}

// ============================================================================
// Logout Tests (2 tests)
// ============================================================================

func TestLogout_RevokesAndClearsCookie(t *testing.T) {
	var revoked string
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		Sessions: &handlers.MockSessionService{
			RevokeFunc: func(ctx context.Context, token string) string {
				revoked = token
				return "user-1"
			},
		},
	})
	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "token-abc"})

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	handlers.AssertRedirect(t, w, http.StatusSeeOther, "/auth/login")
	assert.Equal(t, "token-abc", revoked)
	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestLogout_WithoutCookieNeverFails(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{})
	req := httptest.NewRequest("POST", "/auth/logout", nil)

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	handlers.AssertRedirect(t, w, http.StatusSeeOther, "/auth/login")
	require.NotNil(t, handlers.FindCookie(w, auth.SessionCookieName))
}

// ============================================================================
// Pages (2 tests)
// ============================================================================

func TestShowLogin_ReportsOAuth(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{OAuth: &handlers.MockOAuthProvider{}})
	req := handlers.NewTestRequest(t, "GET", "/auth/login", nil)

	w := httptest.NewRecorder()
	handler.ShowLogin(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	page := handlers.DecodePage(t, w)
	assert.Equal(t, handlers.PageLogin, page.Component)
	assert.Equal(t, true, page.Props["oauth_enabled"])
}

func TestShowRegister(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{})
	req := handlers.NewTestRequest(t, "GET", "/auth/register", nil)

	w := httptest.NewRecorder()
	handler.ShowRegister(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, handlers.PageRegister, handlers.DecodePage(t, w).Component)
}
