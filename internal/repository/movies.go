package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// MoviesRepository provides persistence helpers for movie entities.
type MoviesRepository struct {
	pool *pgxpool.Pool
}

const movieColumns = `
    id,
    title,
    genre,
    release_year,
    description,
    created_by,
    created_at,
    ratings_count,
    ratings_avg
`

// Paging bounds shared by every list endpoint.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// MovieCreateParams bundles the fields required to create a movie.
type MovieCreateParams struct {
	Title       string
	Genre       string
	ReleaseYear int
	Description *string
	CreatedBy   int64
}

// MovieListFilters encapsulates search and pagination options.
type MovieListFilters struct {
	Genre   *string
	MinYear *int
	MaxYear *int
	Search  *string
	Skip    int
	Limit   int
}

// MovieListResult returns the paginated payload.
type MovieListResult struct {
	Items []domain.Movie
	Total int64
}

// ClampLimit applies DefaultLimit and MaxLimit to a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Create inserts a new movie row and returns the stored entity.
func (r *MoviesRepository) Create(ctx context.Context, params MovieCreateParams) (domain.Movie, error) {
	query := fmt.Sprintf(`
        INSERT INTO movies (title, genre, release_year, description, created_by)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING %s
    `, movieColumns)

	row := r.pool.QueryRow(ctx, query, params.Title, params.Genre, params.ReleaseYear, params.Description, params.CreatedBy)
	return scanMovie(row)
}

// GetByID fetches a movie by its identifier.
func (r *MoviesRepository) GetByID(ctx context.Context, id int64) (domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies WHERE id = $1`, movieColumns)
	movie, err := scanMovie(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Movie{}, ErrNotFound
		}
		return domain.Movie{}, err
	}
	return movie, nil
}

// Stats returns the stored aggregate for a movie.
func (r *MoviesRepository) Stats(ctx context.Context, id int64) (domain.RatingStats, error) {
	var stats domain.RatingStats
	err := r.pool.QueryRow(ctx, `SELECT ratings_count, ratings_avg FROM movies WHERE id = $1`, id).Scan(&stats.Count, &stats.Average)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingStats{}, ErrNotFound
		}
		return domain.RatingStats{}, err
	}
	return stats, nil
}

// Delete removes a movie; its ratings go with it via ON DELETE CASCADE.
func (r *MoviesRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns movies that match the provided filters.
func (r *MoviesRepository) List(ctx context.Context, filters MovieListFilters) (MovieListResult, error) {
	filters.Limit = ClampLimit(filters.Limit)
	if filters.Skip < 0 {
		filters.Skip = 0
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Genre != nil && strings.TrimSpace(*filters.Genre) != "" {
		where = append(where, fmt.Sprintf("genre ILIKE %s", arg("%"+strings.TrimSpace(*filters.Genre)+"%")))
	}
	if filters.MinYear != nil {
		where = append(where, fmt.Sprintf("release_year >= %s", arg(*filters.MinYear)))
	}
	if filters.MaxYear != nil {
		where = append(where, fmt.Sprintf("release_year <= %s", arg(*filters.MaxYear)))
	}
	if filters.Search != nil && strings.TrimSpace(*filters.Search) != "" {
		q := "%" + strings.TrimSpace(*filters.Search) + "%"
		p1 := arg(q)
		p2 := arg(q)
		where = append(where, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", p1, p2))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM movies"+whereClause, args...).Scan(&total); err != nil {
		return MovieListResult{}, fmt.Errorf("count movies: %w", err)
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(movieColumns)
	queryBuilder.WriteString(" FROM movies")
	queryBuilder.WriteString(whereClause)
	queryBuilder.WriteString(" ORDER BY id ASC")
	queryBuilder.WriteString(fmt.Sprintf(" OFFSET %d LIMIT %d", filters.Skip, filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return MovieListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return MovieListResult{}, err
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return MovieListResult{}, err
	}

	return MovieListResult{Items: items, Total: total}, nil
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var movie domain.Movie
	err := row.Scan(
		&movie.ID,
		&movie.Title,
		&movie.Genre,
		&movie.ReleaseYear,
		&movie.Description,
		&movie.CreatedBy,
		&movie.CreatedAt,
		&movie.Stats.Count,
		&movie.Stats.Average,
	)
	if err != nil {
		return domain.Movie{}, err
	}
	return movie, nil
}
