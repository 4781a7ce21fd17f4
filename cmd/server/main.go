package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/auth"
	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/credential"
	httpserver "github.com/Clark-Hu/movie-ratings/internal/http"
	"github.com/Clark-Hu/movie-ratings/internal/ledger"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
	"github.com/Clark-Hu/movie-ratings/internal/repository/memory"
	"github.com/Clark-Hu/movie-ratings/internal/store"
	"github.com/Clark-Hu/movie-ratings/internal/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	hasher, err := credential.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	tokens, err := token.NewService([]byte(cfg.JWTSecret), time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	if err != nil {
		return err
	}

	st, closeStore, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	server := httpserver.New(cfg, httpserver.Deps{
		Movies:   st.movies,
		Ratings:  ledger.New(st.ledger),
		Gate:     auth.NewGate(tokens, st.users),
		Accounts: auth.NewService(st.users, hasher, tokens),
		Health:   st.health,
	}, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

type storage struct {
	users  auth.UserStore
	movies httpserver.MovieStore
	ledger ledger.Store
	health httpserver.HealthChecker
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage, func(), error) {
	if cfg.StorageDriver == config.DriverMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		db := memory.New()
		return storage{users: db.Users(), movies: db.Movies(), ledger: db, health: db}, func() {}, nil
	}

	dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		AutoMigrate:            cfg.DBAutoMigrate,
		Logger:                 logger,
	})
	if err != nil {
		return storage{}, nil, err
	}

	repo := repository.New(st)
	return storage{users: repo.Users, movies: repo.Movies, ledger: repo, health: st}, st.Close, nil
}
