package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a write violated a uniqueness constraint.
	ErrConflict = errors.New("repository: conflict")
)

// ConflictError carries the name of the violated constraint. It matches
// ErrConflict under errors.Is.
type ConflictError struct {
	Constraint string
	Err        error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("repository: conflict on %s: %v", e.Constraint, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

const uniqueViolation = "23505"

// mapWriteError turns a unique violation into a *ConflictError.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &ConflictError{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}

// RatingWriter is the set of operations available inside one rating unit of
// work. Implementations must run them on a single transaction.
type RatingWriter interface {
	// LockMovie takes a row lock on the movie, returning ErrNotFound when absent.
	LockMovie(ctx context.Context, movieID int64) error
	FindRating(ctx context.Context, movieID, userID int64) (domain.Rating, error)
	InsertRating(ctx context.Context, params RatingInsertParams) (domain.Rating, error)
	UpdateRating(ctx context.Context, params RatingUpdateParams) (domain.Rating, error)
	RecomputeStats(ctx context.Context, movieID int64) (domain.RatingStats, error)
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	pool    *pgxpool.Pool
	Users   *UsersRepository
	Movies  *MoviesRepository
	Ratings *RatingsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:    pool,
		Users:   &UsersRepository{pool: pool},
		Movies:  &MoviesRepository{pool: pool},
		Ratings: &RatingsRepository{pool: pool},
	}
}

// WithinTx runs fn in a READ COMMITTED transaction. The transaction commits
// only when fn returns nil.
func (r *Repository) WithinTx(ctx context.Context, fn func(RatingWriter) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&txRatingWriter{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapWriteError(err))
	}
	return nil
}

// ListRatings delegates to the ratings repository.
func (r *Repository) ListRatings(ctx context.Context, params RatingListParams) (RatingPage, error) {
	return r.Ratings.List(ctx, params)
}

// MovieStats delegates to the movies repository.
func (r *Repository) MovieStats(ctx context.Context, movieID int64) (domain.RatingStats, error) {
	return r.Movies.Stats(ctx, movieID)
}

// RatingInsertParams captures the payload required to insert a rating.
type RatingInsertParams struct {
	MovieID   int64
	UserID    int64
	Score     int
	Review    *string
	CreatedAt time.Time
}

// RatingUpdateParams overwrites score and review of an existing rating.
type RatingUpdateParams struct {
	ID        int64
	Score     int
	Review    *string
	UpdatedAt time.Time
}

// RatingListParams selects ratings by movie or by user with offset paging.
type RatingListParams struct {
	MovieID *int64
	UserID  *int64
	Skip    int
	Limit   int
}

// RatingPage is one page of ratings plus the total matching count.
type RatingPage struct {
	Items []domain.Rating
	Total int64
}
