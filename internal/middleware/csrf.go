package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	pkghttp "github.com/velist/velist/pkg/http"
)

// SameOrigin rejects state-changing requests whose Origin, or Referer when
// Origin is absent, names a different site than appURL. Requests carrying
// neither header pass; browsers always send one on cross-site form posts.
func SameOrigin(appURL string, logger *slog.Logger) func(http.Handler) http.Handler {
	allowed := origin(appURL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			source := r.Header.Get("Origin")
			if source == "" || source == "null" {
				source = origin(r.Header.Get("Referer"))
			}

			if source != "" && !strings.EqualFold(source, allowed) {
				logger.Warn("cross-origin request rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", source))
				pkghttp.WriteForbidden(w, "Cross-origin request rejected")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
