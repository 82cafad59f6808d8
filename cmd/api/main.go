package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "github.com/Nonhuman-Nonsense/council-of-foods-sub002/cmd/api/router/v1"
	cacheAdapter "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/cache/adapter"
	cacheport "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/cache/port"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/config"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/database"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/metrics"
	queueAdapter "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/queue/adapter"
	queueport "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/queue/port"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/realtime"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/generation"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/manager"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/audio"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/errorreport"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/netretry"
	repoAdapter "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/persistence/repository/adapter"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/pronounce"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/synthesis"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Warn(".env file not found or could not be loaded", "err", err)
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repoAdapter.NewPgMeetingRepository(pool)
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	if err := repo.Migrate(ctx); err != nil {
		cancel()
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}
	if err := repo.EnsureCounter(ctx); err != nil {
		cancel()
		log.Error("counter bootstrap failed", "err", err)
		os.Exit(1)
	}
	cancel()

	// Redis carries the client-key cache and the incident queue. Both degrade
	// gracefully when REDIS_URL is unset, which keeps local setups light.
	var cache cacheport.Cache
	var queueClient queueport.Client
	if cfg.RedisURL != "" {
		c, err := cacheAdapter.NewRedisAdapter(cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "err", err)
			os.Exit(1)
		}
		defer c.Close()
		cache = c

		qc, err := queueAdapter.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			log.Error("queue client failed", "err", err)
			os.Exit(1)
		}
		defer qc.Close()
		queueClient = qc
	}
	reporter := errorreport.NewReporter(queueClient, log)

	pron, err := pronounce.Load()
	if err != nil {
		log.Error("pronunciation table invalid", "err", err)
		os.Exit(1)
	}

	providers := map[string]audio.Synthesizer{}
	if cfg.ElevenLabsKey != "" {
		eleven, err := synthesis.NewElevenLabs(synthesis.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsKey,
			BaseURL: cfg.Synthesis.ElevenLabs.BaseURL,
			ModelID: cfg.Synthesis.ElevenLabs.ModelID,
			Timeout: cfg.Synthesis.ElevenLabs.Timeout.Std(),
		}, log)
		if err != nil {
			log.Error("elevenlabs adapter failed", "err", err)
			os.Exit(1)
		}
		providers[synthesis.ProviderElevenLabs] = eleven
	}
	speech, err := synthesis.NewOpenAISpeech(synthesis.OpenAISpeechConfig{
		APIKey:        cfg.OpenAIKey,
		BaseURL:       cfg.Synthesis.OpenAI.BaseURL,
		Model:         cfg.Synthesis.OpenAI.Model,
		MaxChunkChars: cfg.Synthesis.OpenAI.MaxChunkChars,
		Timeout:       cfg.Synthesis.OpenAI.Timeout.Std(),
	}, log)
	if err != nil {
		log.Error("openai speech adapter failed", "err", err)
		os.Exit(1)
	}
	providers[synthesis.ProviderOpenAI] = speech

	retryPolicy := netretry.NewPolicy(cfg.Retry.MaxRetries, cfg.Retry.Delay.Std())

	met := metrics.New()
	queue := audio.NewQueue(cfg.Synthesis.Concurrency, log)
	met.RegisterQueueDepth(queue.Depth)
	system := audio.NewSystem(queue, providers, pron, retryPolicy, repo, met, log)

	gen, err := generation.NewOpenAIGenerator(generation.OpenAIConfig{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.Generate.BaseURL,
		Model:   cfg.Generate.Model,
		Timeout: cfg.Generate.Timeout.Std(),
	}, log)
	if err != nil {
		log.Error("openai generator failed", "err", err)
		os.Exit(1)
	}

	registry := manager.NewRegistry(gen, system, repo, retryPolicy, reporter, manager.Config{
		MaxTurns:           cfg.Meeting.MaxTurns,
		SummaryMaxChars:    cfg.Meeting.SummaryMaxChars,
		AllowExtension:     cfg.Meeting.AllowExtension,
		AllowClientOptions: !cfg.Server.Production(),
	}, met, log)

	hub := realtime.NewHub()
	defer hub.Close()

	if cfg.Server.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	r.GET("/metrics", met.Handler())
	v1.RegisterRoutes(r, pool, registry, hub, cache, met, log)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The incident worker runs in-process alongside the API.
	if cfg.RedisURL != "" {
		worker, err := queueAdapter.NewAsynqServer(cfg.RedisURL, 0, log)
		if err != nil {
			log.Error("queue server failed", "err", err)
			os.Exit(1)
		}
		errorreport.RegisterHandler(worker, log)
		go func() {
			if err := worker.Run(rootCtx); err != nil {
				log.Error("queue server stopped", "err", err)
			}
		}()
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			reporter.Fatal(err)
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "err", err)
	}
}
