package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	userColumns = `id::text, name, email, password_hash, role, is_active, last_login, created_at, updated_at`

	getUserByEmailQuery     = `SELECT ` + userColumns + ` FROM sp_get_user_by_email($1)`
	getUserByIDQuery        = `SELECT ` + userColumns + ` FROM sp_get_user_by_id($1::uuid)`
	createUserQuery         = `SELECT sp_create_user($1::uuid, $2, $3, $4, $5)`
	updateLastLoginQuery    = `SELECT sp_update_last_login($1::uuid, $2)`
	storeResetTokenQuery    = `SELECT sp_store_password_reset_token($1, $2, $3)`
	validateResetTokenQuery = `SELECT EXISTS (SELECT 1 FROM sp_validate_password_reset_token($1, $2))`
	clearResetTokenQuery    = `SELECT sp_clear_password_reset_token($1)`
	consumeResetTokenQuery  = `SELECT EXISTS (SELECT 1 FROM sp_consume_password_reset_token($1, $2))`
	updatePasswordQuery     = `SELECT sp_update_password($1, $2)`
	purgeExpiredResetsQuery = `SELECT sp_purge_expired_reset_tokens()`
)

type postgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore returns a CredentialStore that talks to the database
// exclusively through the sp_* stored functions.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) CredentialStore {
	return &postgresStore{
		db:     db,
		logger: logger,
	}
}

func (p *postgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return p.findOne(ctx, getUserByEmailQuery, NormalizeEmail(email))
}

func (p *postgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	return p.findOne(ctx, getUserByIDQuery, id)
}

func (p *postgresStore) findOne(ctx context.Context, query string, arg any) (*User, error) {
	var (
		u         User
		role      string
		lastLogin sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.IsActive,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation {
			// malformed uuid can never match a row
			return nil, ErrNotFound
		}
		p.logger.Error("failed to load user", zap.Error(err))
		return nil, err
	}

	u.Role, err = ParseRole(role)
	if err != nil {
		p.logger.Error("stored user has unknown role", zap.String("id", u.ID), zap.String("role", role))
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func (p *postgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, createUserQuery,
		u.ID,
		u.Name,
		NormalizeEmail(u.Email),
		u.PasswordHash,
		string(u.Role),
	)
	if err != nil {
		// context canceled/deadline
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			p.logger.Warn("create user canceled/timed out", zap.Error(err))
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				p.logger.Debug("duplicate email", zap.String("email", u.Email))
				return ErrDuplicateEmail
			}
			p.logger.Error("postgres error",
				zap.String("code", pgErr.Code),
				zap.String("msg", pgErr.Message),
				zap.String("detail", pgErr.Detail),
			)
			return err
		}

		p.logger.Error("driver error", zap.Error(err))
		return err
	}

	p.logger.Debug("user created", zap.String("id", u.ID), zap.String("role", string(u.Role)))
	return nil
}

func (p *postgresStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := p.db.ExecContext(ctx, updateLastLoginQuery, id, at); err != nil {
		p.logger.Error("failed to update last login", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (p *postgresStore) StoreResetToken(ctx context.Context, email, token string, expiresAt time.Time) error {
	if _, err := p.db.ExecContext(ctx, storeResetTokenQuery, NormalizeEmail(email), token, expiresAt); err != nil {
		p.logger.Error("failed to store reset token", zap.Error(err))
		return err
	}
	return nil
}

func (p *postgresStore) ValidateResetToken(ctx context.Context, email, token string) (bool, error) {
	var ok bool
	if err := p.db.QueryRowContext(ctx, validateResetTokenQuery, NormalizeEmail(email), token).Scan(&ok); err != nil {
		p.logger.Error("failed to validate reset token", zap.Error(err))
		return false, err
	}
	return ok, nil
}

func (p *postgresStore) ClearResetToken(ctx context.Context, email string) error {
	if _, err := p.db.ExecContext(ctx, clearResetTokenQuery, NormalizeEmail(email)); err != nil {
		p.logger.Error("failed to clear reset token", zap.Error(err))
		return err
	}
	return nil
}

func (p *postgresStore) ConsumeResetToken(ctx context.Context, email, token string) (bool, error) {
	var ok bool
	if err := p.db.QueryRowContext(ctx, consumeResetTokenQuery, NormalizeEmail(email), token).Scan(&ok); err != nil {
		p.logger.Error("failed to consume reset token", zap.Error(err))
		return false, err
	}
	return ok, nil
}

func (p *postgresStore) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	if _, err := p.db.ExecContext(ctx, updatePasswordQuery, NormalizeEmail(email), passwordHash); err != nil {
		p.logger.Error("failed to update password", zap.Error(err))
		return err
	}
	return nil
}

func (p *postgresStore) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, purgeExpiredResetsQuery).Scan(&n); err != nil {
		p.logger.Error("failed to purge expired reset tokens", zap.Error(err))
		return 0, err
	}
	return n, nil
}
