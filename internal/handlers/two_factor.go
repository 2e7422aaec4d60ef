package handlers

import (
	"log/slog"
	"net/http"

	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
	"github.com/velist/velist/internal/services"
	pkghttp "github.com/velist/velist/pkg/http"
	"github.com/velist/velist/pkg/logger"
)

// ShowTwoFactorChallenge handles GET /auth/2fa
func (h *AuthHandler) ShowTwoFactorChallenge(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.pendingUser(w, r); !ok {
		return
	}
	h.renderChallenge(w, r, http.StatusOK, nil)
}

// VerifyTwoFactor handles POST /auth/2fa
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pendingUser(w, r)
	if !ok {
		return
	}

	var req TwoFactorCodeRequest
	if err := decodeRequest(r, &req); err != nil || ValidateRequest(req) != nil {
		h.rejectChallenge(w, r, user.ID, logger.EventTwoFactorChallenge, "malformed_code")
		return
	}

	valid, err := h.twoFactor.VerifyToken(r.Context(), user.ID, req.Code)
	if err != nil {
		reason := "internal_error"
		if services.IsCipherFailure(err) {
			reason = "secret_unreadable"
		}
		h.logger.Error("two-factor verification failed", slog.String("user_id", user.ID), slog.Any("error", err))
		h.rejectChallenge(w, r, user.ID, logger.EventTwoFactorChallenge, reason)
		return
	}
	if !valid {
		h.rejectChallenge(w, r, user.ID, logger.EventTwoFactorChallenge, "invalid_code")
		return
	}

	h.finishChallenge(w, r, user, logger.EventTwoFactorChallenge)
}

// VerifyBackupCode handles POST /auth/2fa/backup
func (h *AuthHandler) VerifyBackupCode(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pendingUser(w, r)
	if !ok {
		return
	}

	var req BackupCodeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.rejectChallenge(w, r, user.ID, logger.EventTwoFactorBackupCode, "malformed_code")
		return
	}
	req.Code = auth.NormalizeBackupCode(req.Code)
	if ValidateRequest(req) != nil {
		h.rejectChallenge(w, r, user.ID, logger.EventTwoFactorBackupCode, "malformed_code")
		return
	}

	valid, err := h.twoFactor.VerifyBackupCode(r.Context(), user.ID, req.Code)
	if err != nil {
		h.logger.Error("backup code verification failed", slog.String("user_id", user.ID), slog.Any("error", err))
		h.rejectChallenge(w, r, user.ID, logger.EventTwoFactorBackupCode, "internal_error")
		return
	}
	if !valid {
		h.rejectChallenge(w, r, user.ID, logger.EventTwoFactorBackupCode, "invalid_code")
		return
	}

	h.finishChallenge(w, r, user, logger.EventTwoFactorBackupCode)
}

// pendingUser resolves the pending-2FA cookie. Without a valid one the
// request is sent back to the login page.
func (h *AuthHandler) pendingUser(w http.ResponseWriter, r *http.Request) (*models.SafeUser, bool) {
	token, err := auth.GetCookie(r, auth.PendingTwoFactorCookieName)
	if err != nil {
		pkghttp.Redirect(w, r, h.LoginPath)
		return nil, false
	}

	user, err := h.sessions.ResolvePending(r.Context(), token)
	if err != nil {
		h.logger.Info("pending two-factor token rejected", slog.Any("error", err))
		auth.ClearPendingTwoFactorCookie(w, h.cookies)
		pkghttp.Redirect(w, r, h.LoginPath)
		return nil, false
	}
	return user, true
}

// rejectChallenge re-renders the form. The pending cookie is left alone and
// expires on its own.
func (h *AuthHandler) rejectChallenge(w http.ResponseWriter, r *http.Request, userID, event, reason string) {
	h.logger.Info("two-factor challenge rejected",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.Any("error", models.ErrInvalidTwoFactorCode))
	h.auditAttempt(r, event, userID, false, reason, nil)
	h.renderChallenge(w, r, http.StatusUnprocessableEntity, map[string]string{"code": msgInvalidCode})
}

func (h *AuthHandler) finishChallenge(w http.ResponseWriter, r *http.Request, user *models.SafeUser, event string) {
	if !h.startSession(w, r, user, false) {
		h.renderChallenge(w, r, http.StatusInternalServerError, map[string]string{"code": msgTryAgain})
		return
	}
	auth.ClearPendingTwoFactorCookie(w, h.cookies)
	h.auditAttempt(r, event, user.ID, true, "", nil)
	pkghttp.Redirect(w, r, h.HomePath)
}

func (h *AuthHandler) renderChallenge(w http.ResponseWriter, r *http.Request, status int, errs map[string]string) {
	if errs == nil {
		errs = map[string]string{}
	}
	h.pages.Render(w, r, status, PageTwoFactorChallenge, pkghttp.Props{"errors": errs})
}
