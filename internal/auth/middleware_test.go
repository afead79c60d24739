package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mehmetcc/lms/internal/metrics"
	"github.com/mehmetcc/lms/internal/token"
	"github.com/mehmetcc/lms/internal/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestMiddleware(t *testing.T) (*Middleware, token.TokenService, *metrics.Metrics, *observer.ObservedLogs) {
	t.Helper()
	tokens, err := token.NewTokenService(zap.NewNop(), testJWTConfig)
	require.NoError(t, err)
	core, logs := observer.New(zapcore.WarnLevel)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewMiddleware(tokens, zap.New(core), m), tokens, m, logs
}

var echoIdentity = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(id)
})

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env.Error.Message
}

func TestAuthenticate(t *testing.T) {
	mw, tokens, _, _ := newTestMiddleware(t)
	teacher := token.Identity{ID: "u-1", Email: "t@school.test", Role: user.RoleTeacher, Name: "T"}

	valid, err := tokens.IssueAccess(teacher, time.Hour)
	require.NoError(t, err)
	expired, err := tokens.IssueAccess(teacher, 0)
	require.NoError(t, err)
	refresh, err := tokens.IssueRefresh("u-1", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, "Access denied. No token provided."},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, "Access denied. No token provided."},
		{"lower case scheme", "bearer " + valid, http.StatusUnauthorized, "Access denied. No token provided."},
		{"empty token", "Bearer    ", http.StatusUnauthorized, "Access denied. No token provided."},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized, "Invalid token."},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized, "Invalid token."},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "Token expired."},
		{"valid", "Bearer " + valid, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			mw.Authenticate(echoIdentity).ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, errorMessage(t, rec))
				return
			}
			var got token.Identity
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, teacher, got)
		})
	}
}

func TestOptionalAuthenticate(t *testing.T) {
	mw, tokens, _, _ := newTestMiddleware(t)
	valid, err := tokens.IssueAccess(token.Identity{ID: "u-1", Role: user.RoleStudent}, time.Hour)
	require.NoError(t, err)

	for _, header := range []string{"", "Bearer nonsense", "Token " + valid} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		mw.OptionalAuthenticate(echoIdentity).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code, header)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	rec := httptest.NewRecorder()
	mw.OptionalAuthenticate(echoIdentity).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthorize(t *testing.T) {
	mw, tokens, m, logs := newTestMiddleware(t)
	protected := mw.Authenticate(mw.AdminOnly()(echoIdentity))

	t.Run("no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("teacher on admin route", func(t *testing.T) {
		teacher, err := tokens.IssueAccess(token.Identity{ID: "t-1", Role: user.RoleTeacher}, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+teacher)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Access denied. Insufficient permissions.", errorMessage(t, rec))

		entries := logs.FilterMessage("insufficient permissions").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "t-1", fields["user_id"])
		assert.Equal(t, "teacher", fields["role"])
		assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDenialsTotal.WithLabelValues("teacher")))
	})

	t.Run("admin", func(t *testing.T) {
		admin, err := tokens.IssueAccess(token.Identity{ID: "a-1", Role: user.RoleAdmin}, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+admin)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("authorizer without authenticator", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.TeacherOrAdmin()(echoIdentity).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Access denied. User not authenticated.", errorMessage(t, rec))
	})
}

func TestRoleCompositions(t *testing.T) {
	mw, _, _, _ := newTestMiddleware(t)

	cases := []struct {
		guard   func(http.Handler) http.Handler
		allowed []user.Role
	}{
		{mw.StudentOnly(), []user.Role{user.RoleStudent}},
		{mw.TeacherOnly(), []user.Role{user.RoleTeacher}},
		{mw.AdminOnly(), []user.Role{user.RoleAdmin}},
		{mw.TeacherOrAdmin(), []user.Role{user.RoleTeacher, user.RoleAdmin}},
	}
	for _, tc := range cases {
		for _, role := range []user.Role{user.RoleStudent, user.RoleTeacher, user.RoleAdmin} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithIdentity(req.Context(), token.Identity{ID: "x", Role: role}))
			rec := httptest.NewRecorder()
			tc.guard(echoIdentity).ServeHTTP(rec, req)

			want := http.StatusForbidden
			for _, a := range tc.allowed {
				if a == role {
					want = http.StatusOK
				}
			}
			assert.Equal(t, want, rec.Code, "role %s allowed %v", role, tc.allowed)
		}
	}
}
