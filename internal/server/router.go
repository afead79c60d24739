package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mehmetcc/lms/internal/auth"
	"github.com/mehmetcc/lms/internal/config"
	"github.com/mehmetcc/lms/internal/httpx"
	"github.com/mehmetcc/lms/internal/metrics"
	"github.com/mehmetcc/lms/internal/student"
	"go.uber.org/zap"
	"moul.io/chizap"
)

type Deps struct {
	Logger         *zap.Logger
	AppConfig      *config.AppConfig
	Metrics        *metrics.Metrics
	Middleware     *auth.Middleware
	AuthHandler    auth.AuthenticationHandler
	StudentHandler student.StudentHandler
	// GlobalLimiter and AuthLimiter may be nil to disable limiting.
	GlobalLimiter func(http.Handler) http.Handler
	AuthLimiter   func(http.Handler) http.Handler
	Version       string
	StartedAt     time.Time
}

func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpx.RealIP(d.AppConfig.TrustedProxies))
	r.Use(chizap.New(d.Logger, &chizap.Opts{
		WithReferer:   true,
		WithUserAgent: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AppConfig.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(d.Metrics.Middleware)

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", health(d))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if d.GlobalLimiter != nil {
			r.Use(d.GlobalLimiter)
		}
		// set before mounting so the auth and student routers inherit them
		r.NotFound(notFound)
		r.MethodNotAllowed(methodNotAllowed)
		r.Get("/", index)
		r.Mount("/auth", d.AuthHandler.Routes(d.Middleware, d.AuthLimiter))
		r.Mount("/students", d.StudentHandler.Routes(d.Middleware))
	})
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httpx.Fail(w, http.StatusNotFound, httpx.ErrNotFound, "Route "+r.URL.Path+" not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httpx.Fail(w, http.StatusMethodNotAllowed, httpx.ErrMethodNotAllowed, "Method "+r.Method+" not allowed")
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      float64   `json:"uptime"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
}

func health(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:      "OK",
			Timestamp:   time.Now().UTC(),
			Uptime:      time.Since(d.StartedAt).Seconds(),
			Environment: d.AppConfig.Env,
			Version:     d.Version,
		})
	}
}

type indexResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

func index(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, indexResponse{
		Message: "School management API",
		Endpoints: map[string]string{
			"auth":     "/api/auth",
			"students": "/api/students",
			"health":   "/health",
			"metrics":  "/metrics",
		},
	})
}
