package domain

import "time"

// Movie represents the canonical movie entity in the database/service.
type Movie struct {
	ID          int64
	Title       string
	Genre       string
	ReleaseYear int
	Description *string
	CreatedBy   int64
	CreatedAt   time.Time
	Stats       RatingStats
}

// Release year bounds: no earlier than MinReleaseYear and at most
// MaxReleaseYearAhead years after the current year.
const (
	MinReleaseYear      = 1888
	MaxReleaseYearAhead = 5
)

// ValidReleaseYear reports whether year lies within the release year bounds.
func ValidReleaseYear(year int, now time.Time) bool {
	return year >= MinReleaseYear && year <= now.Year()+MaxReleaseYearAhead
}
