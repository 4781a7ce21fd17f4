package domain

import "time"

// Score bounds for a rating.
const (
	MinScore = 1
	MaxScore = 5
)

// Rating represents a single user's rating for a movie.
type Rating struct {
	ID        int64
	MovieID   int64
	UserID    int64
	Score     int
	Review    *string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// RatingStats is the derived count and mean stored on a movie row.
type RatingStats struct {
	Count   int64
	Average float64
}

// ValidScore reports whether score lies within MinScore..MaxScore.
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}
