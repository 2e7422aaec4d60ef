package logger

import (
	"net/url"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "a****@*******.com")
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return "[invalid-email]"
	}

	local = local[:1] + strings.Repeat("*", len(local)-1)

	// keep the TLD only
	if i := strings.LastIndex(domain, "."); i > 0 {
		domain = strings.Repeat("*", i) + domain[i:]
	}

	return local + "@" + domain
}

// sensitiveParams covers credentials and the OAuth callback's code/state pair.
var sensitiveParams = map[string]bool{
	"password":      true,
	"token":         true,
	"secret":        true,
	"code":          true,
	"state":         true,
	"code_verifier": true,
	"email":         true,
}

// RedactQuery replaces the values of sensitive query parameters.
// An unparseable query is redacted entirely.
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[REDACTED]"
	}

	for key := range values {
		if sensitiveParams[strings.ToLower(key)] {
			values[key] = []string{"[REDACTED]"}
		}
	}
	return values.Encode()
}
