package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mehmetcc/lms/internal/config"
	"github.com/mehmetcc/lms/internal/token"
	"github.com/mehmetcc/lms/internal/user"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	lastLoginTimeout  = 5 * time.Second
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Register(ctx context.Context, name, email, password string, role user.Role) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	Profile(ctx context.Context, id string) (*user.User, error)
}

// Session is what a successful login or registration hands back.
type Session struct {
	User         *user.User
	AccessToken  string
	RefreshToken string
}

// ResetNotifier delivers a password reset token to its owner.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, resetToken string) error
}

type logNotifier struct{ logger *zap.Logger }

func (n logNotifier) SendPasswordReset(_ context.Context, email, _ string) error {
	n.logger.Info("password reset token issued", zap.String("email", email))
	return nil
}

type Option func(*authService)

func WithBcryptCost(cost int) Option {
	return func(a *authService) { a.bcryptCost = cost }
}

func WithResetNotifier(n ResetNotifier) Option {
	return func(a *authService) { a.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(a *authService) { a.now = now }
}

type authService struct {
	store      user.CredentialStore
	tokens     token.TokenService
	cfg        *config.JWTConfig
	logger     *zap.Logger
	notifier   ResetNotifier
	bcryptCost int
	now        func() time.Time

	// compared against when the email is unknown so both paths pay for bcrypt
	dummyHash []byte
}

func NewAuthenticationService(store user.CredentialStore, tokens token.TokenService, cfg *config.JWTConfig, logger *zap.Logger, opts ...Option) (AuthService, error) {
	a := &authService{
		store:      store,
		tokens:     tokens,
		cfg:        cfg,
		logger:     logger,
		notifier:   logNotifier{logger: logger},
		bcryptCost: DefaultBcryptCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), a.bcryptCost)
	if err != nil {
		return nil, err
	}
	a.dummyHash = dummy
	return a, nil
}

func (a *authService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrAccountDeactivated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	sess, err := a.issueSession(u)
	if err != nil {
		return nil, err
	}

	at := a.now().UTC()
	go a.recordLogin(context.WithoutCancel(ctx), u.ID, at)
	return sess, nil
}

// recordLogin must never affect the login response.
func (a *authService) recordLogin(ctx context.Context, id string, at time.Time) {
	ctx, cancel := context.WithTimeout(ctx, lastLoginTimeout)
	defer cancel()
	if err := a.store.UpdateLastLogin(ctx, id, at); err != nil {
		a.logger.Error("failed to update last login", zap.String("user_id", id), zap.Error(err))
	}
}

func (a *authService) Register(ctx context.Context, name, email, password string, role user.Role) (*Session, error) {
	if !role.Valid() {
		return nil, user.ErrInvalidRole
	}
	if _, err := a.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateUser
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		a.logger.Error("failed to hash password", zap.Error(err))
		return nil, err
	}

	u := user.NewUser(uuid.NewString(), name, email, string(hashed), role)
	if err := a.store.Create(ctx, u); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}

	return a.issueSession(u)
}

func (a *authService) issueSession(u *user.User) (*Session, error) {
	access, err := a.tokens.IssueAccess(token.IdentityOf(u), a.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := a.tokens.IssueRefresh(u.ID, a.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

func (a *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrMissingRefreshToken
	}
	claims, err := a.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return "", err
	}

	u, err := a.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	if !u.IsActive {
		return "", ErrAccountDeactivated
	}

	return a.tokens.IssueAccess(token.IdentityOf(u), a.cfg.AccessTTL)
}

func (a *authService) ForgotPassword(ctx context.Context, email string) error {
	u, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			a.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}

	resetToken, expiresAt, err := a.tokens.IssueReset(u.Email, a.cfg.ResetTTL)
	if err != nil {
		return err
	}
	if err := a.store.StoreResetToken(ctx, u.Email, resetToken, expiresAt); err != nil {
		return err
	}
	if err := a.notifier.SendPasswordReset(ctx, u.Email, resetToken); err != nil {
		a.logger.Error("failed to deliver password reset", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil
}

func (a *authService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	claims, err := a.tokens.Verify(resetToken, token.KindReset)
	if err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), a.bcryptCost)
	if err != nil {
		a.logger.Error("failed to hash password", zap.Error(err))
		return err
	}

	// single use: only one concurrent reset can consume the token
	ok, err := a.store.ConsumeResetToken(ctx, claims.Email, resetToken)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidResetToken
	}
	return a.store.UpdatePassword(ctx, claims.Email, string(hashed))
}

func (a *authService) Profile(ctx context.Context, id string) (*user.User, error) {
	u, err := a.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
