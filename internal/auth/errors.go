package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential means no bearer credential was presented.
	ErrMissingCredential = errors.New("auth: not authenticated")
	// ErrInvalidToken means the credential failed verification.
	ErrInvalidToken = errors.New("auth: could not validate credentials")
	// ErrUnknownIdentity means the token was valid but names no existing user.
	ErrUnknownIdentity = errors.New("auth: user not found")
	// ErrInvalidCredentials means a login username or password did not match.
	ErrInvalidCredentials = errors.New("auth: incorrect username or password")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("auth: username already registered")
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = errors.New("auth: email already registered")
)

// ValidationError reports a rejected registration or login field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("auth: %s: %s", e.Field, e.Message)
}
