package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mehmetcc/lms/internal/config"
	"go.uber.org/zap"
)

type TokenService interface {
	IssueAccess(id Identity, ttl time.Duration) (string, error)
	IssueRefresh(userID string, ttl time.Duration) (string, error)
	// IssueReset returns the signed token together with its expiry so the
	// caller can persist both.
	IssueReset(email string, ttl time.Duration) (string, time.Time, error)
	// Verify checks signature, issuer, expiry and kind. It only ever returns
	// ErrExpired or ErrMalformed.
	Verify(raw string, kind Kind) (*Claims, error)
}

type tokenService struct {
	logger     *zap.Logger
	secret     []byte
	issuer     string
	signingAlg jwt.SigningMethod
	now        func() time.Time
}

func NewTokenService(logger *zap.Logger, cfg *config.JWTConfig) (TokenService, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	return &tokenService{
		logger:     logger,
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		signingAlg: jwt.SigningMethodHS256,
		now:        time.Now,
	}, nil
}

func (s *tokenService) IssueAccess(id Identity, ttl time.Duration) (string, error) {
	if !id.Role.Valid() {
		return "", errors.New("refusing to sign access token with invalid role")
	}
	tok, _, err := s.sign(&Claims{
		UserID: id.ID,
		Email:  id.Email,
		Role:   id.Role,
		Name:   id.Name,
		Kind:   KindAccess,
	}, ttl)
	return tok, err
}

func (s *tokenService) IssueRefresh(userID string, ttl time.Duration) (string, error) {
	tok, _, err := s.sign(&Claims{UserID: userID, Kind: KindRefresh}, ttl)
	return tok, err
}

func (s *tokenService) IssueReset(email string, ttl time.Duration) (string, time.Time, error) {
	return s.sign(&Claims{Email: email, Kind: KindReset}, ttl)
}

func (s *tokenService) sign(claims *Claims, ttl time.Duration) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(s.signingAlg, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign token", zap.String("kind", string(claims.Kind)), zap.Error(err))
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *tokenService) Verify(raw string, kind Kind) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.signingAlg.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		s.logger.Debug("token rejected", zap.String("kind", string(kind)), zap.Error(err))
		return nil, ErrMalformed
	}

	if claims.Kind != kind {
		return nil, ErrMalformed
	}
	switch kind {
	case KindAccess:
		if claims.UserID == "" || !claims.Role.Valid() {
			return nil, ErrMalformed
		}
	case KindRefresh:
		if claims.UserID == "" {
			return nil, ErrMalformed
		}
	case KindReset:
		if claims.Email == "" {
			return nil, ErrMalformed
		}
	}
	return &claims, nil
}
