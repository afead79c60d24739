package token

import "errors"

var (
	ErrMalformed     = errors.New("malformed token")
	ErrExpired       = errors.New("token expired")
	ErrMissingSecret = errors.New("token signing secret is empty")
)
