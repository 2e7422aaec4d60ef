package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
	"github.com/velist/velist/internal/services"
	pkghttp "github.com/velist/velist/pkg/http"
	"github.com/velist/velist/pkg/logger"
)

// CredentialServiceInterface defines the first-factor operations
type CredentialServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.SafeUser, error)
	Attempt(ctx context.Context, email, password string) (*models.SafeUser, error)
	FindOrCreateOAuthUser(ctx context.Context, profile models.OAuthProfile) (*models.SafeUser, error)
}

// SessionServiceInterface issues session tokens and runs the pending-2FA handshake
type SessionServiceInterface interface {
	Issue(ctx context.Context, user *models.SafeUser, remember bool, meta models.ClientMeta) (*models.IssuedSession, error)
	Revoke(ctx context.Context, token string) string
	BeginPending(userID string) (string, error)
	ResolvePending(ctx context.Context, token string) (*models.SafeUser, error)
	PendingTTL() time.Duration
}

// TwoFactorServiceInterface defines the two-factor operations used by handlers
type TwoFactorServiceInterface interface {
	GenerateSecret(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	VerifyAndEnable(ctx context.Context, userID, code string) (bool, error)
	VerifyToken(ctx context.Context, userID, code string) (bool, error)
	VerifyBackupCode(ctx context.Context, userID, code string) (bool, error)
	Disable(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

// AuthHandlerDeps groups the collaborators of AuthHandler.
type AuthHandlerDeps struct {
	Credentials CredentialServiceInterface
	Sessions    SessionServiceInterface
	TwoFactor   TwoFactorServiceInterface
	OAuth       services.OAuthProvider // nil disables the OAuth routes
	Pages       *pkghttp.PageRenderer
	IPs         *pkghttp.IPResolver
	Audit       *logger.AuditLogger
	Cookies     auth.CookieConfig
	OAuthTTL    time.Duration
	Logger      *slog.Logger
}

// AuthHandler serves the login, registration, two-factor challenge and OAuth endpoints
type AuthHandler struct {
	credentials CredentialServiceInterface
	sessions    SessionServiceInterface
	twoFactor   TwoFactorServiceInterface
	oauth       services.OAuthProvider
	pages       *pkghttp.PageRenderer
	ips         *pkghttp.IPResolver
	audit       *logger.AuditLogger
	cookies     auth.CookieConfig
	oauthTTL    time.Duration
	logger      *slog.Logger

	HomePath  string
	LoginPath string
}

func NewAuthHandler(deps AuthHandlerDeps) *AuthHandler {
	if deps.OAuthTTL == 0 {
		deps.OAuthTTL = 10 * time.Minute
	}
	return &AuthHandler{
		credentials: deps.Credentials,
		sessions:    deps.Sessions,
		twoFactor:   deps.TwoFactor,
		oauth:       deps.OAuth,
		pages:       deps.Pages,
		ips:         deps.IPs,
		audit:       deps.Audit,
		cookies:     deps.Cookies,
		oauthTTL:    deps.OAuthTTL,
		logger:      deps.Logger,
		HomePath:    "/dashboard",
		LoginPath:   "/auth/login",
	}
}

// ShowLogin handles GET /auth/login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, "", nil)
}

// ShowRegister handles GET /auth/register
func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, PageRegister, pkghttp.Props{"errors": map[string]string{}})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeRequest(r, &req); err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, "", map[string]string{"email": msgTryAgain})
		return
	}

	if errs := ValidateRequest(req); errs != nil {
		h.renderLogin(w, r, http.StatusUnprocessableEntity, req.Email, errs)
		return
	}

	user, err := h.credentials.Attempt(r.Context(), req.Email, req.Password)
	if err != nil {
		reason := "invalid_credentials"
		if !errors.Is(err, models.ErrUnauthorized) {
			reason = "internal_error"
			h.logger.Error("login failed", slog.Any("error", err))
		}
		h.auditAttempt(r, logger.EventLogin, "", false, reason, map[string]string{"email": logger.SanitizedEmail(req.Email)})
		// Store failures look like bad credentials to the client.
		h.renderLogin(w, r, http.StatusUnprocessableEntity, req.Email, map[string]string{"email": msgInvalidCredentials})
		return
	}

	h.completeFirstFactor(w, r, user, req.Remember, logger.EventLogin)
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeRequest(r, &req); err != nil {
		h.renderRegister(w, r, http.StatusBadRequest, req, map[string]string{"email": msgTryAgain})
		return
	}

	if errs := ValidateRequest(req); errs != nil {
		h.renderRegister(w, r, http.StatusUnprocessableEntity, req, errs)
		return
	}

	user, err := h.credentials.Register(r.Context(), services.RegisterInput{
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		Name:                 req.Name,
	})
	if err != nil {
		var fe *models.FieldError
		if errors.As(err, &fe) {
			h.auditAttempt(r, logger.EventRegister, "", false, fe.Field, nil)
			h.renderRegister(w, r, http.StatusUnprocessableEntity, req, map[string]string{fe.Field: fe.Message})
			return
		}
		h.logger.Error("registration failed", slog.Any("error", err))
		h.renderRegister(w, r, http.StatusInternalServerError, req, map[string]string{"email": msgTryAgain})
		return
	}

	h.auditAttempt(r, logger.EventRegister, user.ID, true, "", nil)

	if !h.startSession(w, r, user, false) {
		h.renderLogin(w, r, http.StatusInternalServerError, req.Email, map[string]string{"email": msgTryAgain})
		return
	}
	pkghttp.Redirect(w, r, h.HomePath)
}

// Logout handles POST /auth/logout. It never fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.GetCookie(r, auth.SessionCookieName)
	userID := h.sessions.Revoke(r.Context(), token)

	auth.ClearSessionCookie(w, h.cookies)
	auth.ClearPendingTwoFactorCookie(w, h.cookies)

	if userID != "" {
		h.audit.LogAccountAction(r.Context(), logger.EventLogout, userID, h.ips.ClientIP(r), nil)
	}
	pkghttp.Redirect(w, r, h.LoginPath)
}

// completeFirstFactor either starts the pending-2FA handshake or issues the
// session right away.
func (h *AuthHandler) completeFirstFactor(w http.ResponseWriter, r *http.Request, user *models.SafeUser, remember bool, event string) {
	if user.TwoFactorEnabled {
		pending, err := h.sessions.BeginPending(user.ID)
		if err != nil {
			h.logger.Error("failed to sign pending two-factor token", slog.String("user_id", user.ID), slog.Any("error", err))
			h.renderLogin(w, r, http.StatusInternalServerError, user.Email, map[string]string{"email": msgTryAgain})
			return
		}

		auth.SetPendingTwoFactorCookie(w, pending, h.sessions.PendingTTL(), h.cookies)
		h.auditAttempt(r, event, user.ID, true, "", map[string]string{"next": "two_factor"})
		pkghttp.Redirect(w, r, "/auth/2fa")
		return
	}

	if !h.startSession(w, r, user, remember) {
		h.renderLogin(w, r, http.StatusInternalServerError, user.Email, map[string]string{"email": msgTryAgain})
		return
	}
	h.auditAttempt(r, event, user.ID, true, "", nil)
	pkghttp.Redirect(w, r, h.HomePath)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.SafeUser, remember bool) bool {
	issued, err := h.sessions.Issue(r.Context(), user, remember, h.clientMeta(r))
	if err != nil {
		h.logger.Error("failed to issue session", slog.String("user_id", user.ID), slog.Any("error", err))
		return false
	}
	auth.SetSessionCookie(w, issued.Token, issued.MaxAge, h.cookies)
	return true
}

func (h *AuthHandler) clientMeta(r *http.Request) models.ClientMeta {
	return models.ClientMeta{IPAddress: h.ips.ClientIP(r), UserAgent: pkghttp.UserAgent(r)}
}

func (h *AuthHandler) auditAttempt(r *http.Request, event, userID string, success bool, reason string, metadata map[string]string) {
	h.audit.LogAuthAttempt(r.Context(), logger.AuditEvent{
		EventType:     event,
		UserID:        userID,
		IPAddress:     h.ips.ClientIP(r),
		UserAgent:     pkghttp.UserAgent(r),
		Success:       success,
		FailureReason: reason,
		Metadata:      metadata,
	})
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, email string, errs map[string]string) {
	if errs == nil {
		errs = map[string]string{}
	}
	h.pages.Render(w, r, status, PageLogin, pkghttp.Props{
		"errors":        errs,
		"email":         email,
		"oauth_enabled": h.oauth != nil,
	})
}

func (h *AuthHandler) renderRegister(w http.ResponseWriter, r *http.Request, status int, req RegisterRequest, errs map[string]string) {
	h.pages.Render(w, r, status, PageRegister, pkghttp.Props{
		"errors": errs,
		"name":   req.Name,
		"email":  req.Email,
	})
}
