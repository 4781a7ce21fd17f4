package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/ledger"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

type ratingRequest struct {
	Rating int     `json:"rating"`
	Review *string `json:"review"`
}

type ratingResponse struct {
	ID        int64      `json:"id"`
	MovieID   int64      `json:"movie_id"`
	UserID    int64      `json:"user_id"`
	Rating    int        `json:"rating"`
	Review    *string    `json:"review"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type ratingListResponse struct {
	Ratings []ratingResponse `json:"ratings"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	movieID, err := idParam(r, "movieID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	res, err := s.deps.Ratings.UpsertRating(r.Context(), ledger.UpsertParams{
		MovieID: movieID,
		UserID:  user.ID,
		Score:   req.Rating,
		Review:  normalizeStringPtr(req.Review),
	})
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, toRatingResponse(res.Rating))
}

func (s *Server) handleListMovieRatings(w http.ResponseWriter, r *http.Request) {
	movieID, err := idParam(r, "movieID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if _, err := s.deps.Movies.GetByID(r.Context(), movieID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Movie not found")
			return
		}
		s.respondInternal(w, "get movie failed", err)
		return
	}
	s.listRatings(w, r, ledger.ByMovie(movieID))
}

func (s *Server) handleListUserRatings(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	userID, err := idParam(r, "userID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if userID != user.ID {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Not authorized to view these ratings")
		return
	}
	s.listRatings(w, r, ledger.ByUser(userID))
}

func (s *Server) listRatings(w http.ResponseWriter, r *http.Request, filter ledger.RatingFilter) {
	p, err := parsePaging(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	page, err := s.deps.Ratings.ListRatings(r.Context(), filter, p.skip(), p.Limit)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	items := make([]ratingResponse, 0, len(page.Items))
	for _, rating := range page.Items {
		items = append(items, toRatingResponse(rating))
	}
	s.respondJSON(w, http.StatusOK, ratingListResponse{
		Ratings: items,
		Total:   page.Total,
		Page:    p.Page,
		Limit:   p.Limit,
	})
}

func (s *Server) respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidScore):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Rating must be between 1 and 5")
	case errors.Is(err, ledger.ErrInvalidFilter), errors.Is(err, ledger.ErrInvalidPage):
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, ledger.ErrMovieNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Movie not found")
	case errors.Is(err, ledger.ErrConflict):
		s.respondError(w, http.StatusConflict, "CONFLICT", "Rating was modified concurrently, retry the request")
	default:
		s.respondInternal(w, "rating ledger failed", err)
	}
}

func toRatingResponse(rating domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        rating.ID,
		MovieID:   rating.MovieID,
		UserID:    rating.UserID,
		Rating:    rating.Score,
		Review:    rating.Review,
		CreatedAt: rating.CreatedAt,
		UpdatedAt: rating.UpdatedAt,
	}
}
