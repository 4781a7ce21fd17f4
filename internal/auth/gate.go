// Package auth resolves bearer credentials to users and implements account
// registration and login on top of the credential and token packages.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// TokenVerifier returns the identity carried by a valid token.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// UserLookup finds users by their token identity.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (domain.User, error)
}

// Gate turns a presented bearer credential into a user.
type Gate struct {
	tokens TokenVerifier
	users  UserLookup
}

// NewGate builds a Gate.
func NewGate(tokens TokenVerifier, users UserLookup) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Resolve checks, in order: a credential is present, it verifies, and the
// identity it carries exists. Lookup failures other than not-found are
// returned wrapped and are not auth errors.
func (g *Gate) Resolve(ctx context.Context, bearer string) (domain.User, error) {
	if bearer == "" {
		return domain.User{}, ErrMissingCredential
	}

	identity, err := g.tokens.Verify(bearer)
	if err != nil {
		return domain.User{}, ErrInvalidToken
	}

	user, err := g.users.GetByUsername(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUnknownIdentity
		}
		return domain.User{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	return user, nil
}

// BearerToken extracts the credential from an Authorization header value. It
// returns "" when the header is empty or not a Bearer credential.
func BearerToken(header string) string {
	scheme, credential, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(credential)
}
