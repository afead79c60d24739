package user

import (
	"context"
	"time"
)

// CredentialStore is the only path from the auth flows to persisted user
// records. Lookups return ErrNotFound when no row matches.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	StoreResetToken(ctx context.Context, email, token string, expiresAt time.Time) error
	// ValidateResetToken reports whether token is the one currently persisted
	// for email and has not expired server-side.
	ValidateResetToken(ctx context.Context, email, token string) (bool, error)
	ClearResetToken(ctx context.Context, email string) error
	// ConsumeResetToken clears the persisted token in the same step that
	// checks it, so at most one caller observes true for a given token.
	ConsumeResetToken(ctx context.Context, email, token string) (bool, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}
