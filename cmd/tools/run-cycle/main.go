// cmd/tools/run-cycle/main.go
//
// Runs exactly one pipeline cycle and exits. Useful for cron-driven
// deployments and for poking the pipeline by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jobhunter-workers/internal/common/cache"
	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/database"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/ratelimit"
	"jobhunter-workers/internal/common/retry"
	"jobhunter-workers/internal/genai"
	"jobhunter-workers/internal/models"
	"jobhunter-workers/internal/orchestrator"
	"jobhunter-workers/internal/pipeline/discovery"
	"jobhunter-workers/internal/pipeline/dispatch"
	"jobhunter-workers/internal/pipeline/enrich"
	"jobhunter-workers/internal/pipeline/generate"
	"jobhunter-workers/internal/pipeline/lifecycle"
	"jobhunter-workers/internal/pipeline/scoring"
	"jobhunter-workers/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run-cycle: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewZapAdapter(logger.New(cfg.Logging.Level, cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := store.Migrate(ctx, pg.GetDB()); err != nil {
		return err
	}

	var redisCache *cache.Cache
	if rd, err := database.NewRedis(cfg.Database.Redis); err == nil {
		defer rd.Close()
		redisCache = cache.New(rd.GetClient(), log)
	}

	st := store.New(pg.GetDB(), log)

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
		return err
	}

	outbox, err := dispatch.NewOutbox(cfg.Orchestrator.OutboxDir)
	if err != nil {
		return err
	}

	var emailSender dispatch.EmailSender
	if emailCfg, ok := cfg.Channels["email"]; ok && emailCfg.Enabled && emailCfg.LiveSend {
		emailSender, err = dispatch.NewSESSender(ctx, emailCfg.AWSRegion, emailCfg.FromEmail, log)
		if err != nil {
			return err
		}
	}

	provider := enrich.NewHTTPProvider(cfg.Enrichment, log)
	retryPolicy := retry.New(log)
	cycle := orchestrator.NewCycle(
		st,
		discovery.NewCollector(sources, retryPolicy, redisCache, cfg.Discovery.CacheTTL, log),
		scoring.NewEngine(cfg.Persona, log),
		enrich.New(provider, redisCache, retryPolicy, limiter, cfg.Enrichment.CacheTTL, log),
		generate.New(genai.NewClient(cfg.GenAI, log), cfg.Persona, enabledChannels, limiter, log),
		dispatch.New(limiter, outbox, emailSender, retryPolicy, cfg.Channels, log),
		lifecycle.NewMachine(cfg.Orchestrator, log),
		cfg.Persona, cfg.Orchestrator, cfg.Discovery.Query, log,
	)

	stats, err := cycle.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("run %s: discovered=%d processed=%d dispatched=%d follow-ups=%d archived=%d resumed=%v in %s\n",
		stats.RunID, stats.Discovered, stats.Processed, stats.Dispatched,
		stats.FollowUps, stats.Archived, stats.Resumed, stats.Duration)
	return nil
}
