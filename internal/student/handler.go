package student

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mehmetcc/lms/internal/auth"
	"github.com/mehmetcc/lms/internal/httpx"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

var csvHeader = []string{"Name", "Email", "DateOfBirth", "Grade", "ParentName", "ParentPhone", "Address", "EmergencyContact"}

type StudentHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	ExportCSV(w http.ResponseWriter, r *http.Request)
	Routes(mw *auth.Middleware) chi.Router
}

type studentHandler struct {
	repo   StudentRepo
	logger *zap.Logger
}

func NewStudentHandler(repo StudentRepo, logger *zap.Logger) StudentHandler {
	return &studentHandler{repo: repo, logger: logger}
}

func (h *studentHandler) Routes(mw *auth.Middleware) chi.Router {
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	r.With(mw.TeacherOrAdmin()).Get("/", h.List)
	r.With(mw.AdminOnly()).Get("/export/csv", h.ExportCSV)
	r.With(mw.TeacherOrAdmin()).Get("/{id}", h.Get)
	return r
}

type listResponse struct {
	Students   []Student        `json:"students"`
	Pagination httpx.Pagination `json:"pagination"`
}

type getResponse struct {
	Student *Student `json:"student"`
}

func (h *studentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	page, fields := httpx.ParsePage(r)
	if len(fields) > 0 {
		httpx.FailValidation(w, fields)
		return
	}

	students, total, err := h.repo.List(ctx, page.Limit, page.Offset(), page.Search)
	if err != nil {
		h.logger.Error("internal server error", zap.Error(err))
		httpx.FailInternal(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, listResponse{
		Students:   students,
		Pagination: httpx.NewPagination(page, total),
	})
}

func (h *studentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	s, err := h.repo.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Fail(w, http.StatusNotFound, httpx.ErrNotFound, "Student not found")
			return
		}
		h.logger.Error("internal server error", zap.Error(err))
		httpx.FailInternal(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, getResponse{Student: s})
}

func (h *studentHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	students, err := h.repo.ListAll(ctx)
	if err != nil {
		h.logger.Error("internal server error", zap.Error(err))
		httpx.FailInternal(w)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=students.csv")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, s := range students {
		_ = cw.Write([]string{
			s.Name,
			s.Email,
			s.DateOfBirth.String(),
			strconv.Itoa(s.Grade),
			s.ParentName,
			s.ParentPhone,
			s.Address,
			s.EmergencyContact,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		// headers are gone, nothing left to tell the client
		h.logger.Warn("csv export interrupted", zap.Error(err))
	}
}
