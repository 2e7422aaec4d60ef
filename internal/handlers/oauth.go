package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
	"github.com/velist/velist/internal/services"
	pkghttp "github.com/velist/velist/pkg/http"
	"github.com/velist/velist/pkg/logger"
)

// OAuthEnabled reports whether a provider is configured.
func (h *AuthHandler) OAuthEnabled() bool {
	return h.oauth != nil
}

// OAuthRedirect handles GET /auth/oauth
func (h *AuthHandler) OAuthRedirect(w http.ResponseWriter, r *http.Request) {
	state := services.NewOAuthState()
	verifier := services.NewOAuthState()

	auth.SetOAuthCookies(w, state, verifier, h.oauthTTL, h.cookies)
	pkghttp.Location(w, r, h.oauth.AuthCodeURL(state, verifier))
}

// OAuthCallback handles GET /auth/oauth/callback
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	expected, stateErr := auth.GetCookie(r, auth.OAuthStateCookieName)
	verifier, verifierErr := auth.GetCookie(r, auth.OAuthVerifierCookieName)
	auth.ClearOAuthCookies(w, h.cookies)

	got := query.Get("state")
	if stateErr != nil || verifierErr != nil || got == "" ||
		subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		h.logger.Warn("oauth callback rejected", slog.Any("error", models.ErrOAuthState))
		h.auditAttempt(r, logger.EventOAuthLogin, "", false, "state_mismatch", nil)
		h.renderLogin(w, r, http.StatusUnprocessableEntity, "", map[string]string{"email": msgInvalidOAuthState})
		return
	}

	if providerErr := query.Get("error"); providerErr != "" {
		h.auditAttempt(r, logger.EventOAuthLogin, "", false, "provider_"+providerErr, nil)
		h.renderLogin(w, r, http.StatusUnprocessableEntity, "", map[string]string{"email": msgOAuthFailed})
		return
	}

	profile, err := h.oauth.Exchange(r.Context(), query.Get("code"), verifier)
	if err != nil {
		h.logger.Error("oauth exchange failed", slog.Any("error", err))
		h.auditAttempt(r, logger.EventOAuthLogin, "", false, "exchange_failed", nil)
		h.renderLogin(w, r, http.StatusUnprocessableEntity, "", map[string]string{"email": msgOAuthFailed})
		return
	}

	user, err := h.credentials.FindOrCreateOAuthUser(r.Context(), *profile)
	var fe *models.FieldError
	if errors.As(err, &fe) {
		h.auditAttempt(r, logger.EventOAuthLogin, "", false, "link_refused", nil)
		h.renderLogin(w, r, http.StatusUnprocessableEntity, profile.Email, map[string]string{fe.Field: fe.Message})
		return
	}
	if err != nil {
		h.logger.Error("oauth account resolution failed", slog.Any("error", err))
		h.auditAttempt(r, logger.EventOAuthLogin, "", false, "account_resolution_failed", nil)
		h.renderLogin(w, r, http.StatusUnprocessableEntity, "", map[string]string{"email": msgOAuthFailed})
		return
	}

	h.completeFirstFactor(w, r, user, false, logger.EventOAuthLogin)
}
