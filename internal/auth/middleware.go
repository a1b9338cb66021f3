// internal/auth/middleware.go
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
	"unilib/internal/httpx"
)

const CookieName = "token"

// CookieOptions controls the session cookie attributes.
type CookieOptions struct {
	Secure bool
	Domain string
}

// Middleware resolves the session token into a Principal.
type Middleware struct {
	tokens *TokenManager
	cookie CookieOptions
	log    logrus.FieldLogger
}

func NewMiddleware(tokens *TokenManager, cookie CookieOptions, log logrus.FieldLogger) *Middleware {
	return &Middleware{tokens: tokens, cookie: cookie, log: log}
}

// Authenticate rejects requests without a valid token and stores the
// principal in the request context. The Authorization header wins over the
// cookie.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := tokenFromRequest(r)
		if token == "" {
			httpx.WriteError(w, r, m.log, apperr.Unauthorized("authentication required"))
			return
		}

		principal, err := m.tokens.ParseToken(token)
		if err != nil {
			if fromCookie {
				http.SetCookie(w, m.ClearCookie())
			}
			m.log.WithError(err).Debug("rejected session token")
			httpx.WriteError(w, r, m.log, apperr.Unauthorized("invalid or expired token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireRole lets through principals holding one of roles.
func (m *Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r.Context())
			if p.IsZero() {
				httpx.WriteError(w, r, m.log, apperr.Unauthorized("authentication required"))
				return
			}
			if !p.HasRole(roles...) {
				httpx.WriteError(w, r, m.log, apperr.Forbidden("access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionCookie wraps a freshly issued token.
func (m *Middleware) SessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Domain:   m.cookie.Domain,
		Expires:  expiresAt,
		MaxAge:   int(m.tokens.Lifetime().Seconds()),
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Middleware) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func tokenFromRequest(r *http.Request) (token string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after), false
		}
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}
