package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/models"
	pkghttp "github.com/velist/velist/pkg/http"
)

// UserLister is the read side of the user store used by the admin page.
type UserLister interface {
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
}

const adminPageSize = 20

// DashboardHandler renders the signed-in landing page and the admin overview.
type DashboardHandler struct {
	users  UserLister
	pages  *pkghttp.PageRenderer
	logger *slog.Logger
}

func NewDashboardHandler(users UserLister, pages *pkghttp.PageRenderer, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{users: users, pages: pages, logger: logger}
}

// Dashboard handles GET /dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, PageDashboard, pkghttp.Props{
		"user": auth.GetUserFromContext(r),
	})
}

// Admin handles GET /admin
// Accepts optional query param ?page=N (1-based, default 1).
func (h *DashboardHandler) Admin(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}

	users, err := h.users.List(r.Context(), adminPageSize, (page-1)*adminPageSize)
	if err != nil {
		h.logger.Error("failed to list users", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve users")
		return
	}

	total, err := h.users.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count users", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve users")
		return
	}

	safe := make([]*models.SafeUser, len(users))
	for i, u := range users {
		safe[i] = u.Safe()
	}

	h.pages.Render(w, r, http.StatusOK, PageAdmin, pkghttp.Props{
		"users":     safe,
		"total":     total,
		"page":      page,
		"page_size": adminPageSize,
	})
}
