package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-chatapp/internal/config"
	"github.com/npezzotti/go-chatapp/internal/types"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(userIdKey).(string)

	return userId, ok
}

var errInvalidToken = errors.New("invalid token")

// TokenProvider issues the bearer tokens returned by /authenticate and
// resolves presented tokens back to a user id.
type TokenProvider interface {
	IssueToken(user types.User) (string, error)
	ResolveToken(token string) (string, error)
}

// NewTokenProvider returns the provider selected by cfg.AuthMode. The
// user-id scheme is the default.
func NewTokenProvider(cfg *config.Config) TokenProvider {
	if cfg.AuthMode == config.AuthModeJWT {
		return &jwtTokens{
			signingKey: cfg.SigningKey,
			ttl:        cfg.TokenTTL,
			now:        time.Now,
		}
	}

	return userIdTokens{}
}

// userIdTokens uses the user id itself as the token. It carries no expiry
// or signature and is not a security boundary.
type userIdTokens struct{}

func (userIdTokens) IssueToken(user types.User) (string, error) {
	return user.Id, nil
}

func (userIdTokens) ResolveToken(token string) (string, error) {
	if token == "" {
		return "", errInvalidToken
	}
	return token, nil
}

// jwtTokens issues HS256 tokens carrying the user id and an expiry.
type jwtTokens struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

func (p *jwtTokens) IssueToken(user types.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: user.Id,
		expClaim:    p.now().Add(p.ttl).Unix(),
	})

	return token.SignedString(p.signingKey)
}

func (p *jwtTokens) ResolveToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("invalid user id claim")
	}

	return userId, nil
}

// bearerToken extracts the token from an Authorization header value. Both
// the bare token and the "Bearer <token>" form are accepted.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		header = strings.TrimSpace(header[7:])
	}

	return header, header != ""
}
