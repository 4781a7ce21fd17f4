// Package memory implements an in-memory repository for development and testing.
//
// A unit of work holds the database mutex for its whole lifetime and mutates a
// staged copy of the state, which replaces the live state only on commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

const ratingUniqueConstraint = "unique_user_movie_rating"

var errDuplicateKey = errors.New("duplicate key value violates unique constraint")

// DB implements an in-memory database storage.
type DB struct {
	mu        sync.Mutex
	st        *state
	now       func() time.Time
	commitErr error

	users  *UserRepo
	movies *MovieRepo
}

type state struct {
	users   []domain.User
	movies  map[int64]domain.Movie
	ratings []domain.Rating

	userIDCounter   int64
	movieIDCounter  int64
	ratingIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	db := &DB{
		st:  &state{movies: make(map[int64]domain.Movie)},
		now: time.Now,
	}
	db.users = &UserRepo{db: db}
	db.movies = &MovieRepo{db: db}
	return db
}

// SetClock overrides the time source used for created_at columns.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

// FailCommits makes every subsequent commit fail with err, leaving the live
// state untouched. A nil err restores normal commits.
func (db *DB) FailCommits(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.commitErr = err
}

// Users returns the user repository.
func (db *DB) Users() *UserRepo { return db.users }

// Movies returns the movie repository.
func (db *DB) Movies() *MovieRepo { return db.movies }

// HealthCheck always succeeds.
func (db *DB) HealthCheck(context.Context) error { return nil }

// WithinTx runs fn against a staged copy of the state and commits it when fn
// returns nil.
func (db *DB) WithinTx(ctx context.Context, fn func(repository.RatingWriter) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := db.st.clone()
	if err := fn(&tx{st: staged}); err != nil {
		return err
	}
	if db.commitErr != nil {
		return fmt.Errorf("commit tx: %w", db.commitErr)
	}
	db.st = staged
	return nil
}

// ListRatings returns one page of ratings ordered by ascending id.
func (db *DB) ListRatings(ctx context.Context, params repository.RatingListParams) (repository.RatingPage, error) {
	if params.MovieID == nil && params.UserID == nil {
		return repository.RatingPage{}, fmt.Errorf("list ratings: a movie or user filter is required")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	matched := make([]domain.Rating, 0)
	for _, r := range db.st.ratings {
		switch {
		case params.MovieID != nil:
			if r.MovieID != *params.MovieID {
				continue
			}
		case r.UserID != *params.UserID:
			continue
		}
		matched = append(matched, r)
	}
	return repository.RatingPage{
		Items: page(matched, params.Skip, params.Limit),
		Total: int64(len(matched)),
	}, nil
}

// MovieStats returns the stored aggregate for a movie.
func (db *DB) MovieStats(ctx context.Context, movieID int64) (domain.RatingStats, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	movie, ok := db.st.movies[movieID]
	if !ok {
		return domain.RatingStats{}, repository.ErrNotFound
	}
	return movie.Stats, nil
}

// RatingCount returns how many rating rows exist for (movieID, userID). Tests
// use it to check the one-rating-per-pair invariant.
func (db *DB) RatingCount(movieID, userID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()

	n := 0
	for _, r := range db.st.ratings {
		if r.MovieID == movieID && r.UserID == userID {
			n++
		}
	}
	return n
}

func (s *state) clone() *state {
	out := &state{
		users:           append([]domain.User(nil), s.users...),
		movies:          make(map[int64]domain.Movie, len(s.movies)),
		ratings:         append([]domain.Rating(nil), s.ratings...),
		userIDCounter:   s.userIDCounter,
		movieIDCounter:  s.movieIDCounter,
		ratingIDCounter: s.ratingIDCounter,
	}
	for id, m := range s.movies {
		out.movies[id] = m
	}
	return out
}

func page[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return append([]T(nil), items[skip:end]...)
}

// tx is the RatingWriter bound to one staged state.
type tx struct {
	st *state
}

var _ repository.RatingWriter = (*tx)(nil)

func (t *tx) LockMovie(_ context.Context, movieID int64) error {
	if _, ok := t.st.movies[movieID]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (t *tx) FindRating(_ context.Context, movieID, userID int64) (domain.Rating, error) {
	for _, r := range t.st.ratings {
		if r.MovieID == movieID && r.UserID == userID {
			return r, nil
		}
	}
	return domain.Rating{}, repository.ErrNotFound
}

func (t *tx) InsertRating(_ context.Context, params repository.RatingInsertParams) (domain.Rating, error) {
	if !domain.ValidScore(params.Score) {
		return domain.Rating{}, fmt.Errorf("insert rating: score %d violates rating_range", params.Score)
	}
	if _, ok := t.st.movies[params.MovieID]; !ok {
		return domain.Rating{}, fmt.Errorf("insert rating: movie %d violates foreign key", params.MovieID)
	}
	for _, r := range t.st.ratings {
		if r.MovieID == params.MovieID && r.UserID == params.UserID {
			return domain.Rating{}, fmt.Errorf("insert rating: %w", &repository.ConflictError{
				Constraint: ratingUniqueConstraint,
				Err:        errDuplicateKey,
			})
		}
	}

	t.st.ratingIDCounter++
	rating := domain.Rating{
		ID:        t.st.ratingIDCounter,
		MovieID:   params.MovieID,
		UserID:    params.UserID,
		Score:     params.Score,
		Review:    cloneString(params.Review),
		CreatedAt: params.CreatedAt.UTC(),
	}
	t.st.ratings = append(t.st.ratings, rating)
	return rating, nil
}

func (t *tx) UpdateRating(_ context.Context, params repository.RatingUpdateParams) (domain.Rating, error) {
	if !domain.ValidScore(params.Score) {
		return domain.Rating{}, fmt.Errorf("update rating: score %d violates rating_range", params.Score)
	}
	for i, r := range t.st.ratings {
		if r.ID != params.ID {
			continue
		}
		updated := params.UpdatedAt.UTC()
		r.Score = params.Score
		r.Review = cloneString(params.Review)
		r.UpdatedAt = &updated
		t.st.ratings[i] = r
		return r, nil
	}
	return domain.Rating{}, repository.ErrNotFound
}

func (t *tx) RecomputeStats(_ context.Context, movieID int64) (domain.RatingStats, error) {
	movie, ok := t.st.movies[movieID]
	if !ok {
		return domain.RatingStats{}, repository.ErrNotFound
	}

	var (
		count int64
		sum   int64
	)
	for _, r := range t.st.ratings {
		if r.MovieID == movieID {
			count++
			sum += int64(r.Score)
		}
	}
	stats := domain.RatingStats{Count: count}
	if count > 0 {
		stats.Average = float64(sum) / float64(count)
	}
	movie.Stats = stats
	t.st.movies[movieID] = movie
	return stats, nil
}

// UserRepo is the in-memory user repository.
type UserRepo struct {
	db *DB
}

// Create inserts a user, enforcing unique usernames and emails.
func (r *UserRepo) Create(_ context.Context, params repository.UserCreateParams) (domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, u := range r.db.st.users {
		if u.Username == params.Username {
			return domain.User{}, &repository.ConflictError{Constraint: repository.UsernameConstraint, Err: errDuplicateKey}
		}
		if u.Email == params.Email {
			return domain.User{}, &repository.ConflictError{Constraint: repository.EmailConstraint, Err: errDuplicateKey}
		}
	}

	r.db.st.userIDCounter++
	user := domain.User{
		ID:           r.db.st.userIDCounter,
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    r.db.now().UTC(),
	}
	r.db.st.users = append(r.db.st.users, user)
	return user, nil
}

// GetByUsername fetches a user by username.
func (r *UserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

// GetByEmail fetches a user by email.
func (r *UserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email })
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(_ context.Context, id int64) (domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

// Delete removes a user.
func (r *UserRepo) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for i, u := range r.db.st.users {
		if u.ID == id {
			r.db.st.users = append(r.db.st.users[:i], r.db.st.users[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *UserRepo) find(match func(domain.User) bool) (domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, u := range r.db.st.users {
		if match(u) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

// MovieRepo is the in-memory movie repository.
type MovieRepo struct {
	db *DB
}

// Create inserts a new movie with empty rating stats.
func (r *MovieRepo) Create(_ context.Context, params repository.MovieCreateParams) (domain.Movie, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.st.movieIDCounter++
	movie := domain.Movie{
		ID:          r.db.st.movieIDCounter,
		Title:       params.Title,
		Genre:       params.Genre,
		ReleaseYear: params.ReleaseYear,
		Description: cloneString(params.Description),
		CreatedBy:   params.CreatedBy,
		CreatedAt:   r.db.now().UTC(),
	}
	r.db.st.movies[movie.ID] = movie
	return movie, nil
}

// GetByID fetches a movie by its identifier.
func (r *MovieRepo) GetByID(_ context.Context, id int64) (domain.Movie, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	movie, ok := r.db.st.movies[id]
	if !ok {
		return domain.Movie{}, repository.ErrNotFound
	}
	return movie, nil
}

// Delete removes a movie and cascades to its ratings.
func (r *MovieRepo) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.st.movies[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.st.movies, id)

	kept := r.db.st.ratings[:0]
	for _, rating := range r.db.st.ratings {
		if rating.MovieID != id {
			kept = append(kept, rating)
		}
	}
	r.db.st.ratings = kept
	return nil
}

// List returns movies that match the provided filters, ordered by id.
func (r *MovieRepo) List(_ context.Context, filters repository.MovieListFilters) (repository.MovieListResult, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	genre := lowerTrimmed(filters.Genre)
	search := lowerTrimmed(filters.Search)

	matched := make([]domain.Movie, 0, len(r.db.st.movies))
	for _, m := range r.db.st.movies {
		if genre != "" && !strings.Contains(strings.ToLower(m.Genre), genre) {
			continue
		}
		if filters.MinYear != nil && m.ReleaseYear < *filters.MinYear {
			continue
		}
		if filters.MaxYear != nil && m.ReleaseYear > *filters.MaxYear {
			continue
		}
		if search != "" {
			inTitle := strings.Contains(strings.ToLower(m.Title), search)
			inDesc := m.Description != nil && strings.Contains(strings.ToLower(*m.Description), search)
			if !inTitle && !inDesc {
				continue
			}
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return repository.MovieListResult{
		Items: page(matched, filters.Skip, repository.ClampLimit(filters.Limit)),
		Total: int64(len(matched)),
	}, nil
}

func lowerTrimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*s))
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
