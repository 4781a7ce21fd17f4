// Package ledger owns every write to ratings and to the aggregate rating
// stats stored on movies.
//
// Each upsert runs as one unit of work: lock the movie, insert or overwrite
// the (movie, user) rating, recompute count and mean, commit. The store's
// unique (movie_id, user_id) constraint settles racing inserts; the loser is
// rolled back and retried, at which point it finds the winner's row and
// updates it.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// maxAttempts bounds how many times a conflicting unit of work is retried.
const maxAttempts = 3

// Store is the persistence collaborator used by the Ledger.
type Store interface {
	WithinTx(ctx context.Context, fn func(repository.RatingWriter) error) error
	ListRatings(ctx context.Context, params repository.RatingListParams) (repository.RatingPage, error)
	MovieStats(ctx context.Context, movieID int64) (domain.RatingStats, error)
}

// Ledger coordinates rating writes and aggregate recomputation.
type Ledger struct {
	store Store
	now   func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for rating timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a Ledger writing through store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// UpsertParams identifies the rating to write and its new content.
type UpsertParams struct {
	MovieID int64
	UserID  int64
	Score   int
	Review  *string
}

// UpsertResult is the committed rating and the movie's stats after the write.
type UpsertResult struct {
	Rating  domain.Rating
	Stats   domain.RatingStats
	Created bool
}

// UpsertRating creates the user's rating for a movie or overwrites the
// existing one, then recomputes the movie's stats, all in one transaction.
func (l *Ledger) UpsertRating(ctx context.Context, params UpsertParams) (UpsertResult, error) {
	if !domain.ValidScore(params.Score) {
		return UpsertResult{}, ErrInvalidScore
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var res UpsertResult
		res, err = l.upsertOnce(ctx, params)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
	}

	switch {
	case errors.Is(err, repository.ErrConflict):
		return UpsertResult{}, ErrConflict
	case errors.Is(err, errMovieMissing):
		return UpsertResult{}, ErrMovieNotFound
	default:
		return UpsertResult{}, &StorageError{Op: "upsert rating", Err: err}
	}
}

// errMovieMissing marks a LockMovie miss so it is not confused with a missing
// rating row.
var errMovieMissing = errors.New("movie missing")

func (l *Ledger) upsertOnce(ctx context.Context, params UpsertParams) (UpsertResult, error) {
	var res UpsertResult
	err := l.store.WithinTx(ctx, func(w repository.RatingWriter) error {
		if err := w.LockMovie(ctx, params.MovieID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errMovieMissing
			}
			return err
		}

		now := l.now().UTC()
		existing, err := w.FindRating(ctx, params.MovieID, params.UserID)
		switch {
		case err == nil:
			res.Rating, err = w.UpdateRating(ctx, repository.RatingUpdateParams{
				ID:        existing.ID,
				Score:     params.Score,
				Review:    params.Review,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}
		case errors.Is(err, repository.ErrNotFound):
			res.Rating, err = w.InsertRating(ctx, repository.RatingInsertParams{
				MovieID:   params.MovieID,
				UserID:    params.UserID,
				Score:     params.Score,
				Review:    params.Review,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			res.Created = true
		default:
			return err
		}

		res.Stats, err = w.RecomputeStats(ctx, params.MovieID)
		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

// RatingFilter selects ratings by movie or by user. Exactly one must be set.
type RatingFilter struct {
	MovieID *int64
	UserID  *int64
}

// ByMovie returns a filter for one movie's ratings.
func ByMovie(movieID int64) RatingFilter { return RatingFilter{MovieID: &movieID} }

// ByUser returns a filter for one user's ratings.
func ByUser(userID int64) RatingFilter { return RatingFilter{UserID: &userID} }

// ListRatings returns a page of ratings in ascending id order plus the total
// number matching the filter. limit is clamped to 1..100, defaulting to 10.
func (l *Ledger) ListRatings(ctx context.Context, filter RatingFilter, skip, limit int) (repository.RatingPage, error) {
	if (filter.MovieID == nil) == (filter.UserID == nil) {
		return repository.RatingPage{}, ErrInvalidFilter
	}
	if skip < 0 {
		return repository.RatingPage{}, ErrInvalidPage
	}

	page, err := l.store.ListRatings(ctx, repository.RatingListParams{
		MovieID: filter.MovieID,
		UserID:  filter.UserID,
		Skip:    skip,
		Limit:   repository.ClampLimit(limit),
	})
	if err != nil {
		return repository.RatingPage{}, &StorageError{Op: "list ratings", Err: err}
	}
	return page, nil
}

// Stats returns the stored aggregate for a movie.
func (l *Ledger) Stats(ctx context.Context, movieID int64) (domain.RatingStats, error) {
	stats, err := l.store.MovieStats(ctx, movieID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RatingStats{}, ErrMovieNotFound
		}
		return domain.RatingStats{}, &StorageError{Op: "movie stats", Err: err}
	}
	return stats, nil
}
