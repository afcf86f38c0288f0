package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccessClaims are the claims of a back-office access token.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService validates bearer tokens and resolves them to principals.
type TokenService struct {
	store  port.Store
	secret []byte
	ttl    time.Duration
	issuer string
	logger *zap.Logger
}

func NewTokenService(store port.Store, secret string, ttl time.Duration, logger *zap.Logger) *TokenService {
	return &TokenService{store: store, secret: []byte(secret), ttl: ttl, issuer: "homeward-backoffice", logger: logger}
}

// Issue signs an access token for u. The identity provider issues tokens
// in production; this is used by tooling and tests.
func (s *TokenService) Issue(u *domain.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenService) Validate(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}

// Authenticate validates the token and loads the user it names.
func (s *TokenService) Authenticate(ctx context.Context, tokenString string) (*domain.Principal, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	role, err := domain.ParseUserRole(claims.Role)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid role claim"}
	}

	var user *domain.User
	if id, perr := uuid.Parse(claims.Subject); perr == nil {
		user, err = s.store.GetUser(ctx, id)
	} else {
		user, err = s.store.GetUserByEmail(ctx, claims.Email)
	}
	var nf *domain.ErrNotFound
	switch {
	case errors.As(err, &nf):
		return nil, &domain.ErrUnauthorized{Message: "unknown user"}
	case err != nil:
		return nil, err
	}
	return &domain.Principal{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       role,
		CustomerID: user.CustomerID,
		AgentID:    user.AgentID,
	}, nil
}
