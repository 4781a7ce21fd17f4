package httpserver

import (
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	user, err := s.deps.Accounts.Register(r.Context(), auth.RegisterParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.respondAccountError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toUserResponse(user))
}

// handleLogin accepts a JSON body or an OAuth2 password-style form.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := r.ParseForm(); err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Unable to parse form body")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	default:
		if err := decodeJSONBody(w, r, &req); err != nil {
			s.respondDecodeError(w, err)
			return
		}
	}

	res, err := s.deps.Accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.respondAccountError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   int64(res.ExpiresIn / time.Second),
		User:        toUserResponse(res.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	s.respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) respondAccountError(w http.ResponseWriter, err error) {
	var validation *auth.ValidationError
	switch {
	case errors.As(err, &validation):
		s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: validation.Field + " " + validation.Message,
			Details: map[string]string{"field": validation.Field},
		})
	case errors.Is(err, auth.ErrUsernameTaken):
		s.respondError(w, http.StatusConflict, "CONFLICT", "Username already registered")
	case errors.Is(err, auth.ErrEmailTaken):
		s.respondError(w, http.StatusConflict, "CONFLICT", "Email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Incorrect username or password")
	default:
		s.respondInternal(w, "account request failed", err)
	}
}

func toUserResponse(user domain.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}
