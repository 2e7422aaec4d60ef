package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/velist/velist/internal/models"
	pkghttp "github.com/velist/velist/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey is the key for storing the verified identity in context
	IdentityContextKey contextKey = "identity"
)

// SessionVerifier turns a session token into the identity it was issued for.
// Errors wrapping models.ErrUnauthorized mean the token is not acceptable;
// anything else is an infrastructure failure.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*models.Identity, error)
}

// GateConfig holds configuration for the protected-route guard
type GateConfig struct {
	LoginPath string
	Logger    *slog.Logger
}

// RequireSession reads the session cookie and attaches the verified identity
// to the request context. A missing or invalid token redirects to the login page.
// The cookie is left alone and expires on its own.
func RequireSession(verifier SessionVerifier, config GateConfig) func(next http.Handler) http.Handler {
	if config.LoginPath == "" {
		config.LoginPath = "/auth/login"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := GetCookie(r, SessionCookieName)
			if err != nil {
				pkghttp.Redirect(w, r, config.LoginPath)
				return
			}

			identity, err := verifier.VerifySession(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrUnauthorized) {
					pkghttp.Redirect(w, r, config.LoginPath)
					return
				}
				config.Logger.Error("session verification failed",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				pkghttp.WriteServiceUnavailable(w, "unable to verify session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole enforces role-based access control. Must run after RequireSession.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetUserFromContext(r)
			if identity == nil {
				pkghttp.Redirect(w, r, "/auth/login")
				return
			}

			if identity.Role != role {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	return identity, ok && identity != nil
}

// GetUserFromContext extracts the identity from request context
func GetUserFromContext(r *http.Request) *models.Identity {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	return identity
}
