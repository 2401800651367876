package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"post-studio/internal/adapters/generator"
	"post-studio/internal/adapters/repo"
	"post-studio/internal/adapters/web"
	"post-studio/internal/infra/cache"
	"post-studio/internal/infra/config"
	"post-studio/internal/infra/db"
	httpinfra "post-studio/internal/infra/http"
	applog "post-studio/internal/infra/log"
	"post-studio/internal/infra/metrics"
	"post-studio/internal/infra/openai"
	postsusecase "post-studio/internal/usecase/posts"
	"post-studio/internal/usecase/studio"
	"post-studio/internal/usecase/suggestions"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось применить схему БД")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	suggestionCache := cache.NewRedis(redisClient)

	verifier, err := httpinfra.NewTokenVerifier([]byte(cfg.Auth.JWK), cfg.Auth.DevSecret, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: конфигурация аутентификации")
	}

	llmClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	gen := generator.NewOpenAI(llmClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout)

	postSvc := postsusecase.NewService(store, store, store, logger.With().Str("component", "posts").Logger())
	suggestSvc := suggestions.NewService(gen, store, suggestionCache, cfg.Studio.SuggestionTimeout,
		logger.With().Str("component", "suggestions").Logger())
	studioSvc := studio.NewService(store, store, gen, postSvc, suggestSvc,
		cfg.Studio.SessionSaveDelay, cfg.Studio.PostPatchDelay,
		logger.With().Str("component", "studio").Logger())
	defer studioSvc.Stop()

	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	server := httpinfra.NewServer(logger, store)
	handler := web.NewHandler(store, store, studioSvc, postSvc, logger.With().Str("component", "web").Logger())
	handler.Register(server.Router, verifier)

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: graceful shutdown не удался")
	}
}
