package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/Clark-Hu/movie-ratings/internal/credential"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// TokenType is the token_type reported with issued access tokens.
const TokenType = "bearer"

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	commonPasswords = map[string]struct{}{
		"password": {},
		"12345678": {},
		"qwerty":   {},
		"admin":    {},
		"letmein":  {},
	}
)

const (
	minPasswordLen = 8
	maxPasswordLen = 100
)

// UserStore persists accounts.
type UserStore interface {
	UserLookup
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Create(ctx context.Context, params repository.UserCreateParams) (domain.User, error)
}

// TokenIssuer mints access tokens for an identity.
type TokenIssuer interface {
	Issue(identity string) (string, error)
	TTL() time.Duration
}

// Service registers users and exchanges credentials for access tokens.
type Service struct {
	users  UserStore
	hasher *credential.Hasher
	tokens TokenIssuer

	dummyOnce sync.Once
	dummyHash string
}

// NewService builds a Service.
func NewService(users UserStore, hasher *credential.Hasher, tokens TokenIssuer) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// RegisterParams is a registration request.
type RegisterParams struct {
	Username string
	Email    string
	Password string
}

// LoginResult is a successful login.
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
	User        domain.User
}

// Register validates params, hashes the password and stores the user.
func (s *Service) Register(ctx context.Context, params RegisterParams) (domain.User, error) {
	params.Username = strings.TrimSpace(params.Username)
	params.Email = strings.TrimSpace(params.Email)
	if err := validateRegistration(params); err != nil {
		return domain.User{}, err
	}

	if _, err := s.users.GetByUsername(ctx, params.Username); err == nil {
		return domain.User{}, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, fmt.Errorf("auth: lookup username: %w", err)
	}
	if _, err := s.users.GetByEmail(ctx, params.Email); err == nil {
		return domain.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, fmt.Errorf("auth: lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.users.Create(ctx, repository.UserCreateParams{
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: hash,
	})
	if err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			if conflict.Constraint == repository.EmailConstraint {
				return domain.User{}, ErrEmailTaken
			}
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

// Login verifies a username and password and issues an access token.
// Unknown usernames cost the same bcrypt comparison as wrong passwords.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, &ValidationError{Field: "credentials", Message: "username and password are required"}
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return LoginResult{}, fmt.Errorf("auth: lookup user: %w", err)
		}
		s.hasher.Verify(password, s.dummy())
		return LoginResult{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(user.Username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: issue token: %w", err)
	}
	return LoginResult{
		AccessToken: access,
		TokenType:   TokenType,
		ExpiresIn:   s.tokens.TTL(),
		User:        user,
	}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("dummy-password-for-timing")
	})
	return s.dummyHash
}

func validateRegistration(p RegisterParams) error {
	if !usernamePattern.MatchString(p.Username) {
		return &ValidationError{Field: "username", Message: "must be 3-50 characters of letters, digits or underscores"}
	}
	if !emailPattern.MatchString(p.Email) {
		return &ValidationError{Field: "email", Message: "invalid email format"}
	}
	return validatePassword(p.Password)
}

func validatePassword(password string) error {
	n := len([]rune(password))
	if n < minPasswordLen {
		return &ValidationError{Field: "password", Message: "must be at least 8 characters long"}
	}
	if n > maxPasswordLen {
		return &ValidationError{Field: "password", Message: "must be at most 100 characters long"}
	}

	var upper, lower bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
	}
	if !upper {
		return &ValidationError{Field: "password", Message: "must contain at least one uppercase letter"}
	}
	if !lower {
		return &ValidationError{Field: "password", Message: "must contain at least one lowercase letter"}
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return &ValidationError{Field: "password", Message: "is too common, choose a stronger password"}
	}
	return nil
}
