package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mehmetcc/lms/internal/httpx"
	"github.com/mehmetcc/lms/internal/metrics"
	"github.com/mehmetcc/lms/internal/token"
	"github.com/mehmetcc/lms/internal/user"
	"go.uber.org/zap"
)

type ctxKey struct{}

func WithIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFromContext(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(token.Identity)
	return id, ok
}

const bearerPrefix = "Bearer "

// Middleware holds the Authenticator and Authorizer used by protected routes.
type Middleware struct {
	tokens  token.TokenService
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewMiddleware(tokens token.TokenService, logger *zap.Logger, m *metrics.Metrics) *Middleware {
	return &Middleware{tokens: tokens, logger: logger, metrics: m}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// Authenticate rejects any request without a valid access token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Access denied. No token provided.")
			return
		}

		claims, err := m.tokens.Verify(raw, token.KindAccess)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Token expired.")
				return
			}
			httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Invalid token.")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
	})
}

// OptionalAuthenticate attaches an identity when a valid token is present and
// otherwise proceeds anonymously.
func (m *Middleware) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := bearerToken(r); ok {
			if claims, err := m.tokens.Verify(raw, token.KindAccess); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), claims.Identity()))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Authorize only admits identities whose role is in roles.
func (m *Middleware) Authorize(roles ...user.Role) func(http.Handler) http.Handler {
	allowed := make(map[user.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Access denied. User not authenticated.")
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				m.logger.Warn("insufficient permissions",
					zap.String("user_id", id.ID),
					zap.String("role", string(id.Role)),
					zap.String("path", r.URL.Path),
				)
				m.metrics.AuthzDenied(string(id.Role))
				httpx.Fail(w, http.StatusForbidden, httpx.ErrForbidden, "Access denied. Insufficient permissions.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) StudentOnly() func(http.Handler) http.Handler {
	return m.Authorize(user.RoleStudent)
}

func (m *Middleware) TeacherOnly() func(http.Handler) http.Handler {
	return m.Authorize(user.RoleTeacher)
}

func (m *Middleware) AdminOnly() func(http.Handler) http.Handler {
	return m.Authorize(user.RoleAdmin)
}

func (m *Middleware) TeacherOrAdmin() func(http.Handler) http.Handler {
	return m.Authorize(user.RoleTeacher, user.RoleAdmin)
}
