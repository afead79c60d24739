package auth

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mehmetcc/lms/internal/httpx"
	"github.com/mehmetcc/lms/internal/metrics"
	"github.com/mehmetcc/lms/internal/token"
	"github.com/mehmetcc/lms/internal/user"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const requestTimeout = 5 * time.Second

// bcrypt rejects longer inputs; the limit is in bytes, not characters.
const maxPasswordBytes = 72

const (
	flowLogin          = "login"
	flowRegister       = "register"
	flowRefresh        = "refresh"
	flowForgotPassword = "forgot_password"
	flowResetPassword  = "reset_password"
)

type AuthenticationHandler interface {
	Login(w http.ResponseWriter, r *http.Request)
	Register(w http.ResponseWriter, r *http.Request)
	RefreshToken(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
	ForgotPassword(w http.ResponseWriter, r *http.Request)
	ResetPassword(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
	// Routes mounts the auth endpoints. limiter guards every endpoint that
	// checks credentials or mints tokens; it may be nil.
	Routes(mw *Middleware, limiter func(http.Handler) http.Handler) chi.Router
}

type authenticationHandler struct {
	logger      *zap.Logger
	authService AuthService
	validator   *validator.Validate
	metrics     *metrics.Metrics
	bodyLimit   int64
}

func NewAuthenticationHandler(authService AuthService, l *zap.Logger, m *metrics.Metrics, bodyLimit int64) AuthenticationHandler {
	return &authenticationHandler{
		logger:      l,
		authService: authService,
		validator:   NewValidator(),
		metrics:     m,
		bodyLimit:   bodyLimit,
	}
}

// NewValidator returns a validator that reports JSON field names and knows
// the role and password rules.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := user.ParseRole(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		pw := fl.Field().String()
		if len(pw) > maxPasswordBytes {
			return false
		}
		var lower, upper, digit bool
		for _, c := range pw {
			switch {
			case unicode.IsLower(c):
				lower = true
			case unicode.IsUpper(c):
				upper = true
			case unicode.IsDigit(c):
				digit = true
			}
		}
		return lower && upper && digit
	})
	return v
}

func (a *authenticationHandler) Routes(mw *Middleware, limiter func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter)
		}
		r.Post("/login", a.Login)
		r.Post("/register", a.Register)
		r.Post("/refresh-token", a.RefreshToken)
		r.Post("/forgot-password", a.ForgotPassword)
		r.Post("/reset-password", a.ResetPassword)
	})
	r.Post("/logout", a.Logout)
	r.With(mw.Authenticate).Get("/me", a.Me)
	return r
}

// decode reads and validates the body, writing the error response itself.
func (a *authenticationHandler) decode(w http.ResponseWriter, r *http.Request, flow string, dst any) bool {
	if err := httpx.DecodeJSON(w, r, a.bodyLimit, dst); err != nil {
		a.metrics.AuthAttempt(flow, metrics.OutcomeRejected)
		httpx.WriteDecodeError(w, a.logger, err)
		return false
	}
	if err := a.validator.Struct(dst); err != nil {
		a.logger.Debug("request validation failed", zap.String("flow", flow), zap.Error(err))
		a.metrics.AuthAttempt(flow, metrics.OutcomeRejected)
		httpx.FailValidation(w, httpx.ValidationDetails(err))
		return false
	}
	return true
}

func (a *authenticationHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req loginRequest
	if !a.decode(w, r, flowLogin, &req) {
		return
	}

	client := httpx.ClientMetaOf(r)
	sess, err := a.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		a.logger.Info("login failed",
			zap.String("email", user.NormalizeEmail(req.Email)),
			zap.String("ip", client.IP),
			zap.Error(err),
		)
		a.fail(w, flowLogin, err)
		return
	}

	a.metrics.AuthAttempt(flowLogin, metrics.OutcomeSuccess)
	a.logger.Info("login succeeded",
		zap.String("email", sess.User.Email),
		zap.String("ip", client.IP),
		zap.String("user_agent", client.UserAgent),
	)
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(sess, "Login successful"))
}

func (a *authenticationHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req registerRequest
	if !a.decode(w, r, flowRegister, &req) {
		return
	}

	role, _ := user.ParseRole(req.Role) // already validated
	sess, err := a.authService.Register(ctx, req.Name, req.Email, req.Password, role)
	if err != nil {
		a.logger.Warn("failed to register user", zap.Error(err))
		a.fail(w, flowRegister, err)
		return
	}

	a.metrics.AuthAttempt(flowRegister, metrics.OutcomeSuccess)
	a.logger.Info("user registered", zap.String("user_id", sess.User.ID), zap.String("role", string(role)))
	httpx.WriteJSON(w, http.StatusCreated, newSessionResponse(sess, "User registered successfully"))
}

func (a *authenticationHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req refreshRequest
	if !a.decode(w, r, flowRefresh, &req) {
		return
	}

	access, err := a.authService.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		a.fail(w, flowRefresh, err)
		return
	}

	a.metrics.AuthAttempt(flowRefresh, metrics.OutcomeSuccess)
	httpx.WriteJSON(w, http.StatusOK, refreshResponse{AccessToken: access})
}

// Logout is stateless: issued tokens stay valid until they expire.
func (a *authenticationHandler) Logout(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (a *authenticationHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req forgotPasswordRequest
	if !a.decode(w, r, flowForgotPassword, &req) {
		return
	}

	if err := a.authService.ForgotPassword(ctx, req.Email); err != nil {
		a.fail(w, flowForgotPassword, err)
		return
	}

	a.metrics.AuthAttempt(flowForgotPassword, metrics.OutcomeSuccess)
	httpx.WriteJSON(w, http.StatusOK, messageResponse{
		Message: "If an account with that email exists, a password reset link has been sent",
	})
}

func (a *authenticationHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req resetPasswordRequest
	if !a.decode(w, r, flowResetPassword, &req) {
		return
	}

	if err := a.authService.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		a.fail(w, flowResetPassword, err)
		return
	}

	a.metrics.AuthAttempt(flowResetPassword, metrics.OutcomeSuccess)
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "Password reset successfully"})
}

func (a *authenticationHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id, ok := IdentityFromContext(ctx)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Access denied. User not authenticated.")
		return
	}

	u, err := a.authService.Profile(ctx, id.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httpx.Fail(w, http.StatusNotFound, httpx.ErrNotFound, "User not found")
			return
		}
		a.logger.Error("internal server error", zap.Error(err))
		httpx.FailInternal(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, profileResponse{User: newProfile(u)})
}

func (a *authenticationHandler) fail(w http.ResponseWriter, flow string, err error) {
	a.metrics.AuthAttempt(flow, metrics.OutcomeFailure)

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Invalid credentials")
	case errors.Is(err, ErrAccountDeactivated):
		httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Account is deactivated")
	case errors.Is(err, ErrDuplicateUser):
		httpx.Fail(w, http.StatusBadRequest, httpx.ErrBadRequest, "User already exists with this email")
	case errors.Is(err, ErrMissingRefreshToken):
		httpx.Fail(w, http.StatusBadRequest, httpx.ErrBadRequest, "Refresh token is required")
	case errors.Is(err, ErrUserNotFound):
		httpx.Fail(w, http.StatusNotFound, httpx.ErrNotFound, "User not found")
	case errors.Is(err, ErrInvalidResetToken):
		httpx.Fail(w, http.StatusBadRequest, httpx.ErrBadRequest, "Invalid or expired reset token")
	case errors.Is(err, token.ErrExpired):
		httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Token expired.")
	case errors.Is(err, token.ErrMalformed):
		httpx.Fail(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "Invalid token.")
	case errors.Is(err, user.ErrInvalidRole):
		httpx.FailValidation(w, []httpx.FieldError{{Field: "role", Rule: "role"}})
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		field := "password"
		if flow == flowResetPassword {
			field = "newPassword"
		}
		httpx.FailValidation(w, []httpx.FieldError{{Field: field, Rule: "max", Param: strconv.Itoa(maxPasswordBytes)}})
	default:
		a.logger.Error("internal server error", zap.String("flow", flow), zap.Error(err))
		httpx.FailInternal(w)
	}
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type registerRequest struct {
	Name     string `json:"name"     validate:"required,min=2,max=50"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72,password"`
	Role     string `json:"role"     validate:"required,role"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"       validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72,password"`
}

type userSummary struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  user.Role `json:"role"`
}

type sessionResponse struct {
	Message      string      `json:"message"`
	User         userSummary `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func newSessionResponse(s *Session, message string) sessionResponse {
	return sessionResponse{
		Message: message,
		User: userSummary{
			ID:    s.User.ID,
			Name:  s.User.Name,
			Email: s.User.Email,
			Role:  s.User.Role,
		},
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type profile struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      user.Role  `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin"`
}

type profileResponse struct {
	User profile `json:"user"`
}

func newProfile(u *user.User) profile {
	return profile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}
