package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

type ctxKey int

const userKey ctxKey = iota

// requestLogger logs one line per request: method, path, status, duration and
// response size. Headers and bodies are never logged.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := zapcore.InfoLevel
			switch {
			case status >= 500:
				level = zapcore.ErrorLevel
			case status >= 400:
				level = zapcore.WarnLevel
			}
			logger.Check(level, "http request").Write(
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.Int("bytes_written", ww.BytesWritten()),
			)
		})
	}
}

// requireUser resolves the Authorization header through the gate and stores
// the user on the request context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.deps.Gate.Resolve(r.Context(), auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			s.respondAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func currentUser(r *http.Request) (domain.User, bool) {
	user, ok := r.Context().Value(userKey).(domain.User)
	return user, ok
}

func (s *Server) respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Not authenticated")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnknownIdentity):
		w.Header().Set("WWW-Authenticate", "Bearer")
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Could not validate credentials")
	default:
		s.logger.Error("resolve user failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to authenticate request")
	}
}
