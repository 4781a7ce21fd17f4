package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/ledger"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// MovieStore is the movie persistence used by handlers.
type MovieStore interface {
	Create(ctx context.Context, params repository.MovieCreateParams) (domain.Movie, error)
	GetByID(ctx context.Context, id int64) (domain.Movie, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filters repository.MovieListFilters) (repository.MovieListResult, error)
}

// RatingLedger writes and lists ratings.
type RatingLedger interface {
	UpsertRating(ctx context.Context, params ledger.UpsertParams) (ledger.UpsertResult, error)
	ListRatings(ctx context.Context, filter ledger.RatingFilter, skip, limit int) (repository.RatingPage, error)
}

// Authenticator resolves a bearer credential to a user.
type Authenticator interface {
	Resolve(ctx context.Context, bearer string) (domain.User, error)
}

// AccountService registers users and issues access tokens.
type AccountService interface {
	Register(ctx context.Context, params auth.RegisterParams) (domain.User, error)
	Login(ctx context.Context, username, password string) (auth.LoginResult, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Movies   MovieStore
	Ratings  RatingLedger
	Gate     Authenticator
	Accounts AccountService
	Health   HealthChecker
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	deps    Deps
	logger  *zap.Logger
	router  chi.Router
	httpSrv *http.Server
	now     func() time.Time
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		router: r,
		now:    time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.With(s.requireUser).Get("/me", s.handleMe)
		})
		r.Route("/movies", func(r chi.Router) {
			r.Get("/", s.handleListMovies)
			r.With(s.requireUser).Post("/", s.handleCreateMovie)
			r.Route("/{movieID}", func(r chi.Router) {
				r.Get("/", s.handleGetMovie)
				r.With(s.requireUser).Delete("/", s.handleDeleteMovie)
				r.Get("/ratings", s.handleListMovieRatings)
				r.With(s.requireUser).Post("/ratings", s.handleSubmitRating)
			})
		})
		r.With(s.requireUser).Get("/users/{userID}/ratings", s.handleListUserRatings)
	})
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http: listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.deps.Health != nil {
		if err := s.deps.Health.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Storage unavailable")
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
