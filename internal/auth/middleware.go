package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/middleware"
	"github.com/patrickwarner/civicreport/internal/models"
)

type ctxKey struct{}

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)
	return u, ok
}

// Middleware resolves session tokens into users.
type Middleware struct {
	Sessions *Sessions
	Users    db.UserStore
	Logger   *zap.Logger
	Secure   bool
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (m *Middleware) resolve(r *http.Request) (models.User, bool) {
	tok := tokenFromRequest(r)
	if tok == "" {
		return models.User{}, false
	}
	claims, err := m.Sessions.Parse(tok)
	if err != nil {
		logger := m.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		middleware.LoggerFromRequest(r, logger).Debug("rejected session token", zap.Error(err))
		return models.User{}, false
	}
	// Reload so staff changes and deleted accounts take effect before expiry.
	u, err := m.Users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		return models.User{}, false
	}
	return u, true
}

// Optional attaches the user when a valid session is present.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := m.resolve(r); ok {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

// Required rejects requests without a valid session.
func (m *Middleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := m.resolve(r)
		if !ok {
			deny(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// StaffOnly rejects requests from non-staff users.
func (m *Middleware) StaffOnly(next http.Handler) http.Handler {
	return m.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFromContext(r.Context())
		if !u.IsStaff {
			deny(w, http.StatusForbidden, "staff access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// SetSessionCookie writes the session token cookie.
func (m *Middleware) SetSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session token cookie.
func (m *Middleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
