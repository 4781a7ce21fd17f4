package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const ratingColumns = `id, movie_id, user_id, score, review, created_at, updated_at`

// RatingsRepository provides read helpers for movie ratings. Writes go through
// Repository.WithinTx.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the rating a user gave a movie.
func (r *RatingsRepository) Get(ctx context.Context, movieID, userID int64) (domain.Rating, error) {
	return findRating(ctx, r.pool, movieID, userID)
}

// List returns one page of ratings ordered by ascending id, plus the total.
func (r *RatingsRepository) List(ctx context.Context, params RatingListParams) (RatingPage, error) {
	var (
		where string
		arg   int64
	)
	switch {
	case params.MovieID != nil:
		where, arg = "movie_id = $1", *params.MovieID
	case params.UserID != nil:
		where, arg = "user_id = $1", *params.UserID
	default:
		return RatingPage{}, fmt.Errorf("list ratings: a movie or user filter is required")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ratings WHERE `+where, arg).Scan(&total); err != nil {
		return RatingPage{}, fmt.Errorf("count ratings: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE %s ORDER BY id ASC OFFSET $2 LIMIT $3`, ratingColumns, where)
	rows, err := r.pool.Query(ctx, query, arg, params.Skip, params.Limit)
	if err != nil {
		return RatingPage{}, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return RatingPage{}, err
		}
		items = append(items, rating)
	}
	if err := rows.Err(); err != nil {
		return RatingPage{}, err
	}
	return RatingPage{Items: items, Total: total}, nil
}

type txRatingWriter struct {
	tx pgx.Tx
}

var _ RatingWriter = (*txRatingWriter)(nil)

func (w *txRatingWriter) LockMovie(ctx context.Context, movieID int64) error {
	var id int64
	err := w.tx.QueryRow(ctx, `SELECT id FROM movies WHERE id = $1 FOR UPDATE`, movieID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock movie: %w", err)
	}
	return nil
}

func (w *txRatingWriter) FindRating(ctx context.Context, movieID, userID int64) (domain.Rating, error) {
	return findRating(ctx, w.tx, movieID, userID)
}

func (w *txRatingWriter) InsertRating(ctx context.Context, params RatingInsertParams) (domain.Rating, error) {
	query := fmt.Sprintf(`
        INSERT INTO ratings (movie_id, user_id, score, review, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING %s
    `, ratingColumns)

	rating, err := scanRating(w.tx.QueryRow(ctx, query, params.MovieID, params.UserID, params.Score, params.Review, params.CreatedAt))
	if err != nil {
		return domain.Rating{}, fmt.Errorf("insert rating: %w", mapWriteError(err))
	}
	return rating, nil
}

func (w *txRatingWriter) UpdateRating(ctx context.Context, params RatingUpdateParams) (domain.Rating, error) {
	query := fmt.Sprintf(`
        UPDATE ratings
        SET score = $2, review = $3, updated_at = $4
        WHERE id = $1
        RETURNING %s
    `, ratingColumns)

	rating, err := scanRating(w.tx.QueryRow(ctx, query, params.ID, params.Score, params.Review, params.UpdatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, fmt.Errorf("update rating: %w", err)
	}
	return rating, nil
}

func (w *txRatingWriter) RecomputeStats(ctx context.Context, movieID int64) (domain.RatingStats, error) {
	const query = `
        UPDATE movies m
        SET ratings_count = s.cnt, ratings_avg = s.avg
        FROM (
            SELECT COUNT(*)::int8 AS cnt, COALESCE(AVG(score), 0)::float8 AS avg
            FROM ratings
            WHERE movie_id = $1
        ) s
        WHERE m.id = $1
        RETURNING m.ratings_count, m.ratings_avg
    `

	var stats domain.RatingStats
	if err := w.tx.QueryRow(ctx, query, movieID).Scan(&stats.Count, &stats.Average); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingStats{}, ErrNotFound
		}
		return domain.RatingStats{}, fmt.Errorf("recompute stats: %w", err)
	}
	return stats, nil
}

func findRating(ctx context.Context, q querier, movieID, userID int64) (domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE movie_id = $1 AND user_id = $2`, ratingColumns)
	rating, err := scanRating(q.QueryRow(ctx, query, movieID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.ID,
		&rating.MovieID,
		&rating.UserID,
		&rating.Score,
		&rating.Review,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	return rating, err
}
