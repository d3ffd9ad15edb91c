// Package token mints and validates the signed bearer tokens that bind a
// username to an expiry instant.
//
// Tokens are HS256-signed JWTs keyed on "sub" and "exp". They are
// self-contained and stateless: the server keeps no revocation list, so a
// logged-out but unexpired token remains presentable via refresh.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every validation failure: bad signature, malformed
// payload, missing claims, or expiry. The session layer does not need to
// distinguish an expired token from a tampered one.
var ErrInvalidToken = errors.New("invalid token")

// ErrConfig is returned for an unusable service configuration.
var ErrConfig = errors.New("invalid token config")

// Service issues and validates tokens under a single process-wide secret.
// The secret is fixed at construction and identical across issuance and
// validation for the process lifetime.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// New constructs a Service with the given signing secret and token lifetime.
func New(secret []byte, ttl time.Duration) (*Service, error) {
	if len(secret) == 0 || ttl <= 0 {
		return nil, ErrConfig
	}
	return &Service{secret: secret, ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue mints a token for username expiring at now+TTL. The expiry is
// computed once here and never recomputed; refresh and renewal mint brand-new
// tokens instead of editing this one.
func (s *Service) Issue(username string, now time.Time) (string, time.Time, error) {
	// Truncate so the returned expiry matches the second-precision "exp"
	// claim a validator will read back.
	exp := now.Add(s.ttl).Truncate(time.Second)

	// A random jti keeps two tokens minted within the same second distinct.
	jti := make([]byte, 8)
	if _, err := rand.Read(jti); err != nil {
		return "", time.Time{}, err
	}

	claims := jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        hex.EncodeToString(jti),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate verifies tokenString as of now and returns its subject and expiry.
// A token is valid only while its expiry is strictly in the future.
func (s *Service) Validate(tokenString string, now time.Time) (string, time.Time, error) {
	claims := &jwt.RegisteredClaims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return "", time.Time{}, ErrInvalidToken
	}
	// Any subject Issue signed round-trips, the empty string included: the
	// store registers whatever username a client presents.
	return claims.Subject, claims.ExpiresAt.Time, nil
}
