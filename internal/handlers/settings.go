package handlers

import (
	"log/slog"
	"net/http"

	"github.com/velist/velist/internal/auth"
	pkghttp "github.com/velist/velist/pkg/http"
	"github.com/velist/velist/pkg/logger"
)

// TwoFactorSettingsHandler lets a signed-in user enroll in and leave 2FA.
type TwoFactorSettingsHandler struct {
	twoFactor TwoFactorServiceInterface
	pages     *pkghttp.PageRenderer
	ips       *pkghttp.IPResolver
	audit     *logger.AuditLogger
	logger    *slog.Logger
}

func NewTwoFactorSettingsHandler(twoFactor TwoFactorServiceInterface, pages *pkghttp.PageRenderer, ips *pkghttp.IPResolver, audit *logger.AuditLogger, logger *slog.Logger) *TwoFactorSettingsHandler {
	return &TwoFactorSettingsHandler{
		twoFactor: twoFactor,
		pages:     pages,
		ips:       ips,
		audit:     audit,
		logger:    logger,
	}
}

// Show handles GET /settings/2fa
func (h *TwoFactorSettingsHandler) Show(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, http.StatusOK, nil)
}

// Setup handles POST /settings/2fa/setup. The secret and backup codes are
// shown on this response only.
func (h *TwoFactorSettingsHandler) Setup(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetUserFromContext(r)

	setup, err := h.twoFactor.GenerateSecret(r.Context(), identity.ID, identity.Email)
	if err != nil {
		h.logger.Error("two-factor enrollment failed", slog.String("user_id", identity.ID), slog.Any("error", err))
		h.renderStatus(w, r, http.StatusInternalServerError, map[string]string{"code": msgTryAgain})
		return
	}

	h.audit.LogAccountAction(r.Context(), logger.EventTwoFactorEnrollment, identity.ID, h.ips.ClientIP(r), nil)

	w.Header().Set("Cache-Control", "no-store")
	h.pages.Render(w, r, http.StatusOK, PageTwoFactorSetup, pkghttp.Props{
		"secret":           setup.Secret,
		"qr_code":          setup.QRCode,
		"provisioning_uri": setup.ProvisioningURI,
		"backup_codes":     setup.BackupCodes,
		"errors":           map[string]string{},
	})
}

// Enable handles POST /settings/2fa/enable
func (h *TwoFactorSettingsHandler) Enable(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetUserFromContext(r)

	var req TwoFactorCodeRequest
	if err := decodeRequest(r, &req); err != nil || ValidateRequest(req) != nil {
		h.renderStatus(w, r, http.StatusUnprocessableEntity, map[string]string{"code": msgInvalidCode})
		return
	}

	enabled, err := h.twoFactor.VerifyAndEnable(r.Context(), identity.ID, req.Code)
	if err != nil {
		h.logger.Error("two-factor enable failed", slog.String("user_id", identity.ID), slog.Any("error", err))
		h.renderStatus(w, r, http.StatusUnprocessableEntity, map[string]string{"code": msgInvalidCode})
		return
	}
	if !enabled {
		h.renderStatus(w, r, http.StatusUnprocessableEntity, map[string]string{"code": msgInvalidCode})
		return
	}

	h.audit.LogAccountAction(r.Context(), logger.EventTwoFactorEnabled, identity.ID, h.ips.ClientIP(r), nil)
	pkghttp.Redirect(w, r, "/settings/2fa")
}

// Disable handles POST /settings/2fa/disable. Every session of the user,
// including this one, is revoked when a session registry is configured.
func (h *TwoFactorSettingsHandler) Disable(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetUserFromContext(r)

	if err := h.twoFactor.Disable(r.Context(), identity.ID); err != nil {
		h.logger.Error("two-factor disable failed", slog.String("user_id", identity.ID), slog.Any("error", err))
		h.renderStatus(w, r, http.StatusInternalServerError, map[string]string{"code": msgTryAgain})
		return
	}

	h.audit.LogAccountAction(r.Context(), logger.EventTwoFactorDisabled, identity.ID, h.ips.ClientIP(r), nil)
	pkghttp.Redirect(w, r, "/settings/2fa")
}

func (h *TwoFactorSettingsHandler) renderStatus(w http.ResponseWriter, r *http.Request, status int, errs map[string]string) {
	identity := auth.GetUserFromContext(r)

	st, err := h.twoFactor.Status(r.Context(), identity.ID)
	if err != nil {
		h.logger.Error("failed to load two-factor status", slog.String("user_id", identity.ID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to load two-factor status")
		return
	}

	if errs == nil {
		errs = map[string]string{}
	}
	h.pages.Render(w, r, status, PageTwoFactorSettings, pkghttp.Props{
		"status": st,
		"errors": errs,
	})
}
