package student

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mehmetcc/lms/internal/auth"
	"github.com/mehmetcc/lms/internal/config"
	"github.com/mehmetcc/lms/internal/httpx"
	"github.com/mehmetcc/lms/internal/token"
	"github.com/mehmetcc/lms/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type studentAPI struct {
	router chi.Router
	tokens token.TokenService
}

func newStudentAPI(t *testing.T, repo StudentRepo) *studentAPI {
	t.Helper()
	tokens, err := token.NewTokenService(zap.NewNop(), &config.JWTConfig{Secret: "student-test", Issuer: "lms"})
	require.NoError(t, err)
	mw := auth.NewMiddleware(tokens, zap.NewNop(), nil)

	r := chi.NewRouter()
	r.Mount("/api/students", NewStudentHandler(repo, zap.NewNop()).Routes(mw))
	return &studentAPI{router: r, tokens: tokens}
}

func (a *studentAPI) get(t *testing.T, path string, role user.Role) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if role != "" {
		tok, err := a.tokens.IssueAccess(token.Identity{ID: "caller", Role: role}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestListStudents(t *testing.T) {
	api := newStudentAPI(t, NewMemoryRepo(DevRoster()...))

	rec := api.get(t, "/api/students?page=2&limit=2", user.RoleTeacher)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data struct {
			Students []struct {
				Name        string `json:"name"`
				DateOfBirth string `json:"dateOfBirth"`
			} `json:"students"`
			Pagination httpx.Pagination `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, httpx.Pagination{Page: 2, Limit: 2, Total: 3, Pages: 2}, env.Data.Pagination)
	require.Len(t, env.Data.Students, 1)
	assert.Equal(t, "Chen Wei", env.Data.Students[0].Name)
	assert.Equal(t, "2009-11-23", env.Data.Students[0].DateOfBirth)
}

func TestListStudentsAccess(t *testing.T) {
	api := newStudentAPI(t, NewMemoryRepo(DevRoster()...))

	assert.Equal(t, http.StatusUnauthorized, api.get(t, "/api/students", "").Code)
	assert.Equal(t, http.StatusForbidden, api.get(t, "/api/students", user.RoleStudent).Code)
	assert.Equal(t, http.StatusOK, api.get(t, "/api/students", user.RoleAdmin).Code)
}

func TestListStudentsValidation(t *testing.T) {
	api := newStudentAPI(t, NewMemoryRepo(DevRoster()...))

	rec := api.get(t, "/api/students?limit=500", user.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(httpx.ErrValidationFailed))

	rec = api.get(t, "/api/students?limit=100&page=100000000000000001", user.RoleTeacher)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"page"`)
}

func TestGetStudent(t *testing.T) {
	api := newStudentAPI(t, NewMemoryRepo(DevRoster()...))

	rec := api.get(t, "/api/students/"+DevRoster()[0].ID, user.RoleTeacher)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Amara Okafor")

	rec = api.get(t, "/api/students/nope", user.RoleTeacher)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCSV(t *testing.T) {
	api := newStudentAPI(t, NewMemoryRepo(DevRoster()...))

	assert.Equal(t, http.StatusForbidden, api.get(t, "/api/students/export/csv", user.RoleTeacher).Code)

	rec := api.get(t, "/api/students/export/csv", user.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=students.csv", rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"Chen Wei", "chen.wei@students.lms.test", "2009-11-23", "10", "Li Wei", "+1-555-0103", "48 Oak Avenue, Apt 3", "",
	}, records[3])
}

type brokenRepo struct{}

func (brokenRepo) List(context.Context, int, int, string) ([]Student, int, error) {
	return nil, 0, errors.New("connection reset")
}
func (brokenRepo) GetByID(context.Context, string) (*Student, error) {
	return nil, errors.New("connection reset")
}
func (brokenRepo) ListAll(context.Context) ([]Student, error) {
	return nil, errors.New("connection reset")
}

func TestStoreErrorsAreNotLeaked(t *testing.T) {
	api := newStudentAPI(t, brokenRepo{})

	for _, path := range []string{"/api/students", "/api/students/x", "/api/students/export/csv"} {
		rec := api.get(t, path, user.RoleAdmin)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	}
}
