package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/handlers"
	"github.com/velist/velist/internal/models"
)

func callbackRequest(query, state, verifier string) *http.Request {
	req := httptest.NewRequest("GET", "/auth/oauth/callback?"+query, nil)
	req.Header.Set("X-Inertia", "true")
	if state != "" {
		req.AddCookie(&http.Cookie{Name: auth.OAuthStateCookieName, Value: state})
	}
	if verifier != "" {
		req.AddCookie(&http.Cookie{Name: auth.OAuthVerifierCookieName, Value: verifier})
	}
	return req
}

func TestOAuthRedirect_SetsStateAndVerifierCookies(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{OAuth: &handlers.MockOAuthProvider{}})
	req := httptest.NewRequest("GET", "/auth/oauth", nil)

	w := httptest.NewRecorder()
	handler.OAuthRedirect(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	state := handlers.FindCookie(w, auth.OAuthStateCookieName)
	verifier := handlers.FindCookie(w, auth.OAuthVerifierCookieName)
	require.NotNil(t, state)
	require.NotNil(t, verifier)
	assert.NotEqual(t, state.Value, verifier.Value)
	assert.Equal(t, 600, state.MaxAge)
	assert.True(t, state.HttpOnly)
	assert.Contains(t, w.Header().Get("Location"), "state="+state.Value)
}

func TestOAuthRedirect_ClientNavigationGetsExternalLocation(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{OAuth: &handlers.MockOAuthProvider{}})
	req := httptest.NewRequest("GET", "/auth/oauth", nil)
	req.Header.Set("X-Inertia", "true")

	w := httptest.NewRecorder()
	handler.OAuthRedirect(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Header().Get("X-Inertia-Location"), "https://accounts.example.com/auth")
}

func TestOAuthCallback_StateMismatch(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		state    string
		verifier string
	}{
		{name: "different state", query: "code=c&state=attacker", state: "expected", verifier: "v"},
		{name: "missing cookie", query: "code=c&state=expected", state: "", verifier: "v"},
		{name: "missing verifier", query: "code=c&state=expected", state: "expected", verifier: ""},
		{name: "missing query state", query: "code=c", state: "expected", verifier: "v"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
				OAuth: &handlers.MockOAuthProvider{
					ExchangeFunc: func(ctx context.Context, code, verifier string) (*models.OAuthProfile, error) {
						t.Fatal("code exchanged despite a state mismatch")
						return nil, nil
					},
				},
			})

			w := httptest.NewRecorder()
			handler.OAuthCallback(w, callbackRequest(tt.query, tt.state, tt.verifier))

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			page := handlers.DecodePage(t, w)
			assert.Equal(t, handlers.PageLogin, page.Component)
			assert.Equal(t, "Invalid OAuth state", handlers.PageErrors(t, page)["email"])
		})
	}
}

func TestOAuthCallback_Success(t *testing.T) {
	var gotVerifier string
	var gotProfile models.OAuthProfile
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		OAuth: &handlers.MockOAuthProvider{
			ExchangeFunc: func(ctx context.Context, code, verifier string) (*models.OAuthProfile, error) {
				gotVerifier = verifier
				return &models.OAuthProfile{ID: "google-42", Email: "alice@example.com", EmailVerified: true}, nil
			},
		},
		Credentials: &handlers.MockCredentialService{
			FindOrCreateOAuthUserFunc: func(ctx context.Context, profile models.OAuthProfile) (*models.SafeUser, error) {
				gotProfile = profile
				return safeUser("user-1", profile.Email, false), nil
			},
		},
	})

	w := httptest.NewRecorder()
	handler.OAuthCallback(w, callbackRequest("code=c&state=s1", "s1", "v1"))

	handlers.AssertRedirect(t, w, http.StatusFound, "/dashboard")
	assert.Equal(t, "v1", gotVerifier)
	assert.Equal(t, "google-42", gotProfile.ID)

	session := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, session)
	assert.Equal(t, 86400, session.MaxAge)

	cleared := handlers.FindCookie(w, auth.OAuthStateCookieName)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}

func TestOAuthCallback_TwoFactorUserGoesToChallenge(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		OAuth: &handlers.MockOAuthProvider{
			ExchangeFunc: func(ctx context.Context, code, verifier string) (*models.OAuthProfile, error) {
				return &models.OAuthProfile{ID: "google-42", Email: "alice@example.com"}, nil
			},
		},
		Credentials: &handlers.MockCredentialService{
			FindOrCreateOAuthUserFunc: func(ctx context.Context, profile models.OAuthProfile) (*models.SafeUser, error) {
				return safeUser("user-1", profile.Email, true), nil
			},
		},
	})

	w := httptest.NewRecorder()
	handler.OAuthCallback(w, callbackRequest("code=c&state=s1", "s1", "v1"))

	handlers.AssertRedirect(t, w, http.StatusFound, "/auth/2fa")
	assert.Nil(t, handlers.FindCookie(w, auth.SessionCookieName))
	require.NotNil(t, handlers.FindCookie(w, auth.PendingTwoFactorCookieName))
}

func TestOAuthCallback_ExchangeFailure(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		OAuth: &handlers.MockOAuthProvider{
			ExchangeFunc: func(ctx context.Context, code, verifier string) (*models.OAuthProfile, error) {
				return nil, errors.New("exchange authorization code: invalid_grant")
			},
		},
	})

	w := httptest.NewRecorder()
	handler.OAuthCallback(w, callbackRequest("code=c&state=s1", "s1", "v1"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotContains(t, w.Body.String(), "invalid_grant")
}

func TestOAuthCallback_ProviderDenied(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{OAuth: &handlers.MockOAuthProvider{}})

	w := httptest.NewRecorder()
	handler.OAuthCallback(w, callbackRequest("error=access_denied&state=s1", "s1", "v1"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Nil(t, handlers.FindCookie(w, auth.SessionCookieName))
}

func TestOAuthCallback_LinkRefusedShowsMessage(t *testing.T) {
	handler := handlers.NewTestAuthHandler(handlers.AuthHandlerDeps{
		OAuth: &handlers.MockOAuthProvider{
			ExchangeFunc: func(ctx context.Context, code, verifier string) (*models.OAuthProfile, error) {
				return &models.OAuthProfile{ID: "google-42", Email: "alice@example.com"}, nil
			},
		},
		Credentials: &handlers.MockCredentialService{
			FindOrCreateOAuthUserFunc: func(ctx context.Context, profile models.OAuthProfile) (*models.SafeUser, error) {
				return nil, models.NewFieldError("email", "Sign in with your password instead.", models.ErrConflict)
			},
		},
	})

	w := httptest.NewRecorder()
	handler.OAuthCallback(w, callbackRequest("code=c&state=s1", "s1", "v1"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	page := handlers.DecodePage(t, w)
	assert.Equal(t, handlers.PageLogin, page.Component)
	assert.Equal(t, "Sign in with your password instead.", handlers.PageErrors(t, page)["email"])
	assert.Nil(t, handlers.FindCookie(w, auth.SessionCookieName))
}
