package auth

import (
	"net/http"
	"time"
)

const (
	SessionCookieName          = "auth"
	PendingTwoFactorCookieName = "pending_2fa"
	OAuthStateCookieName       = "oauth_state"
	OAuthVerifierCookieName    = "oauth_code_verifier"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetCookie writes an HTTP-only cookie scoped to the whole site.
func SetCookie(w http.ResponseWriter, name, value string, maxAge time.Duration, config CookieConfig) {
	seconds := int(maxAge / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(maxAge),
		MaxAge:   seconds,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// ClearCookie expires name immediately.
func ClearCookie(w http.ResponseWriter, name string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// GetCookie returns the value of name, or http.ErrNoCookie when absent or empty.
func GetCookie(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	if cookie.Value == "" {
		return "", http.ErrNoCookie
	}
	return cookie.Value, nil
}

func SetSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	SetCookie(w, SessionCookieName, token, maxAge, config)
}

func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	ClearCookie(w, SessionCookieName, config)
}

func SetPendingTwoFactorCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	SetCookie(w, PendingTwoFactorCookieName, token, maxAge, config)
}

func ClearPendingTwoFactorCookie(w http.ResponseWriter, config CookieConfig) {
	ClearCookie(w, PendingTwoFactorCookieName, config)
}

func SetOAuthCookies(w http.ResponseWriter, state, verifier string, maxAge time.Duration, config CookieConfig) {
	SetCookie(w, OAuthStateCookieName, state, maxAge, config)
	SetCookie(w, OAuthVerifierCookieName, verifier, maxAge, config)
}

func ClearOAuthCookies(w http.ResponseWriter, config CookieConfig) {
	ClearCookie(w, OAuthStateCookieName, config)
	ClearCookie(w, OAuthVerifierCookieName, config)
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
