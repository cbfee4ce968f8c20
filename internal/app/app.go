package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chainquiz/chainquiz/internal/archive"
	"github.com/chainquiz/chainquiz/internal/auth"
	"github.com/chainquiz/chainquiz/internal/config"
	"github.com/chainquiz/chainquiz/internal/db/repository"
	"github.com/chainquiz/chainquiz/internal/logging"
	"github.com/chainquiz/chainquiz/internal/quiz"
	"github.com/chainquiz/chainquiz/internal/server"
	"github.com/chainquiz/chainquiz/internal/timelock"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server
}

// New bootstraps config, logger, Postgres, Redis, the time-lock gateway and
// the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=10",
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	store := repository.NewStore(pool)

	drand := timelock.NewDrandNetwork(cfg.Timelock.DrandBaseURL, cfg.Timelock.ChainHash)
	gateway := timelock.NewGateway(drand, drand, timelock.Options{
		SecondsPerHeight: cfg.Timelock.SecondsPerHeight,
		OracleTimeout:    cfg.Timelock.OracleTimeout,
	}, logger)

	var arch archive.Archive
	if cfg.Archive.PinURL != "" && cfg.Archive.Token != "" {
		arch = archive.NewPinClient(cfg.Archive.PinURL, cfg.Archive.Token)
		logger.Info().Str("pin_url", cfg.Archive.PinURL).Msg("attempt archive enabled")
	} else {
		logger.Warn().Msg("attempt archive not configured; records will carry no anchor")
	}

	quizSvc := quiz.NewService(store, gateway, quiz.NewCache(redisClient, 0), arch, quiz.ServiceOptions{
		KeySalt:     []byte(cfg.Security.KeySalt),
		SubsetNames: cfg.Subsets.Names,
		SubsetSize:  cfg.Subsets.Size,
		MinLeadTime: cfg.Timelock.MinLeadTime,
	}, logger)

	verifier := auth.NewVerifier([]byte(cfg.Security.JWTSecret))

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, server.Handlers{
		Quiz:          quiz.NewHTTPHandler(quizSvc, logger),
		Timelock:      timelock.NewHTTPHandler(gateway, logger),
		ReleaseStream: quiz.NewReleaseStream(quizSvc, logger),
		Verifier:      verifier,
	})

	return &Application{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		redis:  redisClient,
		http:   apiServer,
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}
