// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobhunter-workers/internal/common/cache"
	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/database"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/observability"
	"jobhunter-workers/internal/common/ratelimit"
	"jobhunter-workers/internal/common/retry"
	"jobhunter-workers/internal/genai"
	"jobhunter-workers/internal/models"
	"jobhunter-workers/internal/orchestrator"
	"jobhunter-workers/internal/pipeline/discovery"
	"jobhunter-workers/internal/pipeline/dispatch"
	"jobhunter-workers/internal/pipeline/engagement"
	"jobhunter-workers/internal/pipeline/enrich"
	"jobhunter-workers/internal/pipeline/generate"
	"jobhunter-workers/internal/pipeline/lifecycle"
	"jobhunter-workers/internal/pipeline/scoring"
	"jobhunter-workers/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewZapAdapter(logger.New(cfg.Logging.Level, cfg.Logging.Format))
	log.Info("starting pipeline manager", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := connectPostgres(cfg, log)
	if err != nil {
		log.Error("postgres unavailable", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer pg.Close()

	if err := store.Migrate(ctx, pg.GetDB()); err != nil {
		log.Error("migration failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	// Redis is optional: without it every enrichment lookup goes
	// upstream, which is slower but correct.
	var redisCache *cache.Cache
	if rd, err := connectRedis(cfg, log); err != nil {
		log.Warn("redis unavailable, running without cache", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		defer rd.Close()
		redisCache = cache.New(rd.GetClient(), log)
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	st := store.New(pg.GetDB(), log)
	retryPolicy := retry.New(log)

	limiter := ratelimit.New(log)
	var enabledChannels []models.Channel
	for name, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		limiter.Configure(name, ch.BurstSize, ch.RefillInterval)
		enabledChannels = append(enabledChannels, models.Channel(name))
	}
	limiter.Configure(ratelimit.GlobalBucket, cfg.Orchestrator.GlobalCallBudget, cfg.Orchestrator.GlobalCallRefill)

	sources, err := discovery.LoadRegistry(cfg.Discovery.RegistryPath, cfg.Discovery.FetchTimeout, log)
	if err != nil {
		log.Error("failed to load discovery sources", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	collector := discovery.NewCollector(sources, retryPolicy, redisCache, cfg.Discovery.CacheTTL, log)

	engine := scoring.NewEngine(cfg.Persona, log)
	provider := enrich.NewHTTPProvider(cfg.Enrichment, log)
	enricher := enrich.New(provider, redisCache, retryPolicy, limiter, cfg.Enrichment.CacheTTL, log)
	drafter := genai.NewClient(cfg.GenAI, log)
	generator := generate.New(drafter, cfg.Persona, enabledChannels, limiter, log)

	outbox, err := dispatch.NewOutbox(cfg.Orchestrator.OutboxDir)
	if err != nil {
		log.Error("failed to open outbox", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	var emailSender dispatch.EmailSender
	if emailCfg, ok := cfg.Channels["email"]; ok && emailCfg.Enabled && emailCfg.LiveSend {
		emailSender, err = dispatch.NewSESSender(ctx, emailCfg.AWSRegion, emailCfg.FromEmail, log)
		if err != nil {
			log.Error("failed to initialize SES", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}
	dispatcher := dispatch.New(limiter, outbox, emailSender, retryPolicy, cfg.Channels, log)

	machine := lifecycle.NewMachine(cfg.Orchestrator, log)
	cycle := orchestrator.NewCycle(st, collector, engine, enricher, generator, dispatcher,
		machine, cfg.Persona, cfg.Orchestrator, cfg.Discovery.Query, log)

	tracker := engagement.NewTracker(st, machine, log)
	intake, err := engagement.NewIntakeHandler(tracker, log)
	if err != nil {
		log.Error("failed to build intake handler", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	srv := startHTTPServer(cfg.Intake.ListenAddress, intake, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	scheduler := orchestrator.NewScheduler(cycle, cfg.Orchestrator.Interval, obs, log)
	if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
		log.Error("scheduler exited", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	log.Info("pipeline manager stopped", map[string]interface{}{})
}

// connectPostgres retries the initial connection; the database is often
// a second or two behind the worker on cold starts.
func connectPostgres(cfg *config.Config, log logger.Logger) (*database.PostgresClient, error) {
	var client *database.PostgresClient
	err := retryWithBackoff(5, 2*time.Second, func() error {
		var err error
		client, err = database.NewPostgres(cfg.Database.Postgres)
		return err
	}, log, "postgres")
	return client, err
}

func connectRedis(cfg *config.Config, log logger.Logger) (*database.RedisClient, error) {
	var client *database.RedisClient
	err := retryWithBackoff(3, time.Second, func() error {
		var err error
		client, err = database.NewRedis(cfg.Database.Redis)
		return err
	}, log, "redis")
	return client, err
}

func retryWithBackoff(attempts int, delay time.Duration, fn func() error, log logger.Logger, name string) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Warn("connection attempt failed", map[string]interface{}{
			"target":  name,
			"attempt": i,
			"error":   err.Error(),
		})
		if i < attempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

func startHTTPServer(addr string, intake http.Handler, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/engagement", intake)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		log.Info("http listener started", map[string]interface{}{"address": addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http listener failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	return srv
}
