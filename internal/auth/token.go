package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is the scheme reported to API clients.
const TokenType = "Bearer"

// ErrInvalidToken is returned for tokens that fail signature, shape, or
// expiry checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenClaims is the validated content of an access token.
type TokenClaims struct {
	UserID int64
	Name   string
	Admin  bool
}

// TokenIssuer creates and validates HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer returns a TokenIssuer signing with secret, issuing tokens
// valid for ttl.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token lifetime.
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}

// Issue creates a signed access token for a user. It returns the compact
// token and its expiry time.
func (ti *TokenIssuer) Issue(userID int64, name string, admin bool) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ti.ttl)

	claims := jwt.MapClaims{
		"jti":   uuid.NewString(),
		"sub":   strconv.FormatInt(userID, 10),
		"name":  name,
		"admin": admin,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse validates a compact token and extracts its claims.
func (ti *TokenIssuer) Parse(tokenString string) (TokenClaims, error) {
	var out TokenClaims

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return out, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return out, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return out, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return out, ErrInvalidToken
	}

	out.UserID = userID
	if name, ok := claims["name"].(string); ok {
		out.Name = name
	}
	if admin, ok := claims["admin"].(bool); ok {
		out.Admin = admin
	}

	return out, nil
}
