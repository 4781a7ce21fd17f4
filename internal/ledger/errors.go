package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScore is returned when a score falls outside 1..5.
	ErrInvalidScore = errors.New("ledger: score must be between 1 and 5")
	// ErrInvalidFilter is returned when a listing selects neither or both of movie and user.
	ErrInvalidFilter = errors.New("ledger: exactly one of movie or user filter is required")
	// ErrInvalidPage is returned for a negative skip.
	ErrInvalidPage = errors.New("ledger: skip must be non-negative")
	// ErrMovieNotFound is returned when rating a movie that does not exist.
	ErrMovieNotFound = errors.New("ledger: movie not found")
	// ErrConflict is returned when a uniqueness conflict persists after retries.
	ErrConflict = errors.New("ledger: conflicting concurrent rating")
)

// StorageError reports a persistence failure. The operation must be treated as
// not having happened.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
