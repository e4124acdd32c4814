package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"chatrelay/internal/apperr"
)

// Verifier resolves a bearer credential to a user id.
type Verifier interface {
	Verify(token string) (userID string, err error)
}

// Tokens issues and verifies HS256 JWTs carrying the user id in "userId".
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

func (t *Tokens) Issue(userID string) (string, error) {
	now := t.now()
	c := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "auth.Issue.Sign")
	}
	return signed, nil
}

// Verify returns an Unauthorized AppError for any missing, malformed or expired token.
func (t *Tokens) Verify(token string) (string, error) {
	if token == "" {
		return "", apperr.Unauthorized("missing token")
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeUnauthorized, "invalid token", err)
	}
	if c.UserID == "" {
		return "", apperr.Unauthorized("invalid token")
	}
	return c.UserID, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "auth.HashPassword")
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
