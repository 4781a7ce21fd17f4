// Package token issues and verifies HS256 bearer tokens carrying an identity
// claim and an expiry.
//
// Tokens are stateless: nothing is persisted server-side and there is no
// revocation list. A token stays valid until its exp claim passes or the
// signing secret changes.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of tokens issued via Issue when none is configured.
const DefaultTTL = 30 * time.Minute

// ErrInvalid is returned by Verify for every rejected token: bad signature,
// malformed payload, wrong algorithm or elapsed expiry alike.
var ErrInvalid = errors.New("token: invalid")

// Claims is the fixed claim set embedded in every token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies tokens with a single process-wide secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a Service signing with secret. ttl applies to Issue.
func NewService(secret []byte, ttl time.Duration, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token: signing secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token: ttl must be positive")
	}

	s := &Service{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// TTL returns the lifetime applied by Issue.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for identity that expires after the configured TTL.
func (s *Service) Issue(identity string) (string, error) {
	return s.IssueWithTTL(identity, s.ttl)
}

// IssueWithTTL signs a token for identity that expires after ttl.
func (s *Service) IssueWithTTL(identity string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("token: identity is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token: ttl must be positive")
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify returns the identity carried by raw, or ErrInvalid.
func (s *Service) Verify(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalid
	}

	var claims Claims
	tok, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", ErrInvalid
	}
	return claims.Subject, nil
}
