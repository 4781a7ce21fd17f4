package httpserver

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

type movieCreateRequest struct {
	Title       string  `json:"title"`
	Genre       string  `json:"genre"`
	ReleaseYear int     `json:"release_year"`
	Description *string `json:"description"`
}

type movieResponse struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Genre        string    `json:"genre"`
	ReleaseYear  int       `json:"release_year"`
	Description  *string   `json:"description"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	RatingsCount int64     `json:"ratings_count"`
	RatingsAvg   float64   `json:"ratings_avg"`
}

type movieListResponse struct {
	Movies []movieResponse `json:"movies"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// paging is a 1-based page request.
type paging struct {
	Page  int
	Limit int
}

func (p paging) skip() int {
	return (p.Page - 1) * p.Limit
}

// parsePaging reads page (default 1) and limit (default 10, at most 100).
func parsePaging(query url.Values) (paging, error) {
	p := paging{Page: 1, Limit: repository.DefaultLimit}
	if val := strings.TrimSpace(query.Get("page")); val != "" {
		page, err := strconv.Atoi(val)
		if err != nil || page < 1 {
			return p, fmt.Errorf("invalid page value")
		}
		p.Page = page
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 1 || limit > repository.MaxLimit {
			return p, fmt.Errorf("limit must be between 1 and %d", repository.MaxLimit)
		}
		p.Limit = limit
	}
	if p.Page-1 > math.MaxInt32/p.Limit {
		return p, fmt.Errorf("page out of range")
	}
	return p, nil
}

func buildMovieFilters(query url.Values) (repository.MovieListFilters, paging, error) {
	var filters repository.MovieListFilters

	if val := strings.TrimSpace(query.Get("genre")); val != "" {
		filters.Genre = &val
	}
	if val := strings.TrimSpace(query.Get("search")); val != "" {
		filters.Search = &val
	}
	if val := strings.TrimSpace(query.Get("min_year")); val != "" {
		year, err := strconv.Atoi(val)
		if err != nil {
			return filters, paging{}, fmt.Errorf("invalid min_year value")
		}
		filters.MinYear = &year
	}
	if val := strings.TrimSpace(query.Get("max_year")); val != "" {
		year, err := strconv.Atoi(val)
		if err != nil {
			return filters, paging{}, fmt.Errorf("invalid max_year value")
		}
		filters.MaxYear = &year
	}

	p, err := parsePaging(query)
	if err != nil {
		return filters, paging{}, err
	}
	filters.Skip = p.skip()
	filters.Limit = p.Limit
	return filters, p, nil
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	filters, p, err := buildMovieFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.deps.Movies.List(r.Context(), filters)
	if err != nil {
		s.respondInternal(w, "list movies failed", err)
		return
	}

	items := make([]movieResponse, 0, len(result.Items))
	for _, movie := range result.Items {
		items = append(items, toMovieResponse(movie))
	}
	s.respondJSON(w, http.StatusOK, movieListResponse{
		Movies: items,
		Total:  result.Total,
		Page:   p.Page,
		Limit:  p.Limit,
	})
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)

	var req movieCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	title := strings.TrimSpace(req.Title)
	genre := strings.TrimSpace(req.Genre)
	if title == "" || genre == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and genre are required")
		return
	}
	if !domain.ValidReleaseYear(req.ReleaseYear, s.now()) {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			fmt.Sprintf("release_year must be between %d and %d", domain.MinReleaseYear, s.now().Year()+domain.MaxReleaseYearAhead))
		return
	}

	movie, err := s.deps.Movies.Create(r.Context(), repository.MovieCreateParams{
		Title:       title,
		Genre:       genre,
		ReleaseYear: req.ReleaseYear,
		Description: normalizeStringPtr(req.Description),
		CreatedBy:   user.ID,
	})
	if err != nil {
		s.respondInternal(w, "create movie failed", err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/movies/%d", movie.ID))
	s.respondJSON(w, http.StatusCreated, toMovieResponse(movie))
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	movieID, err := idParam(r, "movieID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	movie, err := s.deps.Movies.GetByID(r.Context(), movieID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Movie not found")
			return
		}
		s.respondInternal(w, "get movie failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponse(movie))
}

func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	movieID, err := idParam(r, "movieID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	movie, err := s.deps.Movies.GetByID(r.Context(), movieID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Movie not found")
			return
		}
		s.respondInternal(w, "get movie failed", err)
		return
	}
	if movie.CreatedBy != user.ID {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Not authorized to delete this movie")
		return
	}

	if err := s.deps.Movies.Delete(r.Context(), movieID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Movie not found")
			return
		}
		s.respondInternal(w, "delete movie failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Movie deleted successfully"})
}

func toMovieResponse(movie domain.Movie) movieResponse {
	return movieResponse{
		ID:           movie.ID,
		Title:        movie.Title,
		Genre:        movie.Genre,
		ReleaseYear:  movie.ReleaseYear,
		Description:  movie.Description,
		CreatedBy:    movie.CreatedBy,
		CreatedAt:    movie.CreatedAt,
		RatingsCount: movie.Stats.Count,
		RatingsAvg:   movie.Stats.Average,
	}
}
