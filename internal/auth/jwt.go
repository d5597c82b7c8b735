// Package auth turns bearer tokens into principals and carries principals
// and VCS credentials through request contexts.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
)

// Claims holds JWT token claims.
type Claims struct {
	Username string   `json:"username"`
	Groups   []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates workspace tokens.
type Auth struct {
	secret []byte
	issuer string
}

// New creates a new Auth handler.
func New(jwtSecret string) *Auth {
	return &Auth{secret: []byte(jwtSecret), issuer: "wsagent"}
}

// IssueToken signs a token for username valid for ttl.
func (a *Auth) IssueToken(username string, groups []string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		Groups:   groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, claims.ExpiresAt.Time, nil
}

// Authenticate validates tokenStr and returns ctx carrying its principal.
func (a *Auth) Authenticate(ctx context.Context, tokenStr string) (context.Context, error) {
	claims, err := a.validateToken(tokenStr)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		logging.WithContext(ctx).Debug("token rejected", zap.Error(err))
		return ctx, fmt.Errorf("invalid token: %w", err)
	}
	metrics.RecordAuthAttempt(true)
	return WithPrincipal(ctx, &Principal{Name: claims.Username, Groups: claims.Groups}), nil
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("token has no username")
	}
	return claims, nil
}
