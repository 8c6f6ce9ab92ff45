package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopePipelineRun is the only scope the API checks: it allows manual
	// pipeline runs.
	ScopePipelineRun = "pipeline:run"

	issuer = "tp03-etl"
)

var (
	ErrMissingScope  = errors.New("token lacks required scope")
	ErrInvalidHeader = errors.New("authorization header must be 'Bearer <token>'")
)

// Claims identify who triggered a run. Subject is free-form (an operator or a
// cron host name) and only ends up in the logs.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// JWTManager signs and checks HS256 trigger tokens.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

func (m *JWTManager) GenerateToken(subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: ScopePipelineRun,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// ValidateToken rejects anything not signed with our key, expired, from
// another issuer or without the pipeline scope.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Scope != ScopePipelineRun {
		return nil, ErrMissingScope
	}

	return claims, nil
}

func ExtractTokenFromBearer(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "

	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidHeader
	}

	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", ErrInvalidHeader
	}
	return token, nil
}

type contextKey struct{}

func NewContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// FromContext returns nil when the request was not authenticated.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}
