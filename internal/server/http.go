package server

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chainquiz/chainquiz/internal/auth"
	"github.com/chainquiz/chainquiz/internal/config"
	"github.com/chainquiz/chainquiz/internal/quiz"
	"github.com/chainquiz/chainquiz/internal/timelock"
)

// Handlers collects the route handlers the API server mounts.
type Handlers struct {
	Quiz          *quiz.HTTPHandler
	Timelock      *timelock.HTTPHandler
	ReleaseStream *quiz.ReleaseStream
	Verifier      *auth.Verifier
}

// NewHTTPServer wires the API routes plus health and metrics endpoints.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, h Handlers) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pingDependencies(r.Context(), pool, redisClient); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	// Quiz lifecycle
	mux.HandleFunc("POST /v1/quizzes", h.Quiz.HandleCreate)
	mux.HandleFunc("GET /v1/quizzes", h.Quiz.HandleList)
	mux.HandleFunc("GET /v1/quizzes/{id}", h.Quiz.HandleGet)
	mux.HandleFunc("POST /v1/quizzes/{id}/timelock", h.Quiz.HandleBind)
	mux.HandleFunc("POST /v1/quizzes/{id}/attempt", h.Quiz.HandleAttempt)
	mux.HandleFunc("POST /v1/quizzes/{id}/attempts", h.Quiz.HandleSubmit)
	mux.HandleFunc("GET /v1/quizzes/{id}/attempts", h.Quiz.HandleAttemptList)
	mux.HandleFunc("GET /v1/users/me/quizzes", h.Quiz.HandleMyQuizzes)

	// Server-funded time-lock encryption
	mux.HandleFunc("POST /v1/timelock/encrypt", h.Timelock.HandleEncrypt)

	// Release countdown stream
	mux.Handle("GET /ws/quizzes/{id}/status", h.ReleaseStream)

	var handler http.Handler = mux
	if h.Verifier != nil {
		handler = auth.Middleware(h.Verifier, logger)(mux)
	}

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redisClient *redis.Client) error {
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	return redisClient.Ping(ctx).Err()
}
