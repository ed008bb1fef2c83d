// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coaching-ai-engine/internal/config"
	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/domain/ports/adapter"
	aiAdapters "coaching-ai-engine/internal/infra/adapters/ai"
	pg "coaching-ai-engine/internal/infra/db/postgres"
	"coaching-ai-engine/internal/infra/logging"
	"coaching-ai-engine/internal/infra/metrics"
	red "coaching-ai-engine/internal/infra/redis"
	"coaching-ai-engine/internal/infra/sched"
	"coaching-ai-engine/internal/infra/security"
	"coaching-ai-engine/internal/infra/tokenizer"
	"coaching-ai-engine/internal/infra/web"
	"coaching-ai-engine/internal/infra/worker"
	"coaching-ai-engine/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI backend allowed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, *devMode)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	bus := red.NewEventBus(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)
	sessionCache := red.NewSessionCache(redisClient, cfg.Redis.TTL)

	// ---- Encryption & tokens ----
	encKey := cfg.Security.EncryptionKey
	if encKey == "" {
		logger.Warn().Msg("security.encryption_key not set; falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}
	tokenSvc := security.NewJobTokenService(cfg.Security.TokenSecret, cfg.Security.TokenTTL)

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	sessionRepo := pg.NewSessionRepo(pool, sessionCache, encSvc)

	// ---- AI backends ----
	providers, err := buildProviders(ctx, cfg, *devMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai backends")
	}
	failover, err := aiAdapters.NewFailoverGenerator(providers, cfg.AI.AttemptTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failover")
	}
	gen := aiAdapters.NewLimitedGenerator(failover, cfg.AI.ConcurrentLimit)

	// ---- Use cases ----
	estimate := tokenizer.New()
	engine := usecase.NewConversationEngine(sessionRepo, gen, tm, estimate, logger)
	orch := usecase.NewJobOrchestrator(jobRepo, bus, gen, tokenSvc, engine, cfg.Jobs.TTL, logger)

	// ---- Workers ----
	wpool := worker.NewPool(cfg.Jobs.Workers, logger)
	wpool.Start(ctx)
	defer wpool.Stop()
	consumer := worker.NewEventConsumer(bus, orch, wpool, logger)
	go consumer.Run(ctx, model.EventJobCreated)
	go consumer.Run(ctx, model.EventMessageCreated)

	// ---- Retention sweep (hourly) ----
	retention := sched.NewRetentionWorker(1*time.Hour, jobRepo, sessionRepo, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- HTTP ----
	srv := web.NewServer(orch, engine, rateLimiter, cfg.Server.APIKey, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = server.Shutdown(shutCtx)
	cancel()
}

// buildProviders assembles the fallback chain in configured order. Unknown
// or unconfigured entries are skipped; dev mode appends a noop backend so
// the service runs with no credentials at all.
func buildProviders(ctx context.Context, cfg *config.Config, dev bool) ([]adapter.AIProvider, error) {
	order := cfg.AI.FallbackOrder
	if len(order) == 0 {
		order = []string{cfg.AI.DefaultProvider, "gemini", "openai"}
	}

	var out []adapter.AIProvider
	seen := map[string]bool{}
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "openai":
			if cfg.AI.OpenAIKey == "" {
				continue
			}
			p, err := aiAdapters.NewOpenAIProvider(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "gemini":
			if cfg.AI.GeminiKey == "" {
				continue
			}
			p, err := aiAdapters.NewGeminiProvider(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "noop":
			out = append(out, aiAdapters.NewNoopProvider())
		}
	}
	if dev {
		out = append(out, aiAdapters.NewNoopProvider())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no AI backend configured: set ai.openai_key or ai.gemini_key, or run with -dev")
	}
	return out, nil
}
