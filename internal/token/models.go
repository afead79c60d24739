package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/mehmetcc/lms/internal/user"
)

// Kind separates the three token families signed with the same secret.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindReset   Kind = "reset"
)

// Identity is what an access token asserts about its bearer.
type Identity struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Role  user.Role `json:"role"`
	Name  string    `json:"name"`
}

func IdentityOf(u *user.User) Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role, Name: u.Name}
}

type Claims struct {
	UserID string    `json:"id,omitempty"`
	Email  string    `json:"email,omitempty"`
	Role   user.Role `json:"role,omitempty"`
	Name   string    `json:"name,omitempty"`
	Kind   Kind      `json:"kind"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{ID: c.UserID, Email: c.Email, Role: c.Role, Name: c.Name}
}
