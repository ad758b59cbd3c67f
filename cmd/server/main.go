package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/misor-digital/fitflow-campaigns/internal/api"
	"github.com/misor-digital/fitflow-campaigns/internal/auth"
	"github.com/misor-digital/fitflow-campaigns/internal/config"
	"github.com/misor-digital/fitflow-campaigns/internal/cron"
	"github.com/misor-digital/fitflow-campaigns/internal/engine"
	"github.com/misor-digital/fitflow-campaigns/internal/mailer"
	"github.com/misor-digital/fitflow-campaigns/internal/metrics"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/distlock"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
	"github.com/misor-digital/fitflow-campaigns/internal/repository/postgres"
	"github.com/misor-digital/fitflow-campaigns/internal/service/abtest"
	"github.com/misor-digital/fitflow-campaigns/internal/service/campaign"
	"github.com/misor-digital/fitflow-campaigns/internal/service/recipients"
	"github.com/misor-digital/fitflow-campaigns/internal/unsub"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	templateDir := flag.String("templates", "templates", "directory with .liquid email templates")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("database open failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		logger.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}
	cancel()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	transport, err := mailer.NewSES(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
	if err != nil {
		logger.Error("ses transport init failed", "error", err.Error())
		os.Exit(1)
	}

	m := metrics.New()

	campaignRepo := postgres.NewCampaignRepo(db)
	recipientRepo := postgres.NewRecipientRepo(db)
	historyRepo := postgres.NewHistoryRepo(db)
	variantRepo := postgres.NewVariantRepo(db)
	unsubRepo := postgres.NewUnsubscribeRepo(db)
	sources := postgres.NewSources(db)

	campaignSvc := campaign.NewService(campaignRepo, historyRepo)
	unsubSvc := unsub.NewService(unsubRepo)
	builder := recipients.NewBuilder(sources, recipientRepo, unsubSvc, campaignRepo, historyRepo)
	abtestSvc := abtest.NewService(variantRepo, recipientRepo, variantRepo, campaignRepo)

	eng := engine.New(engine.Config{
		Campaigns:   campaignRepo,
		Recipients:  recipientRepo,
		Variants:    variantRepo,
		Unsub:       unsubSvc,
		Transport:   transport,
		Templates:   engine.DirTemplates{Dir: *templateDir},
		Lifecycle:   campaignSvc,
		Metrics:     m,
		ChunkSize:   cfg.Engine.ChunkSize,
		SendTimeout: cfg.SES.SendTimeout(),
	})

	lease := distlock.New(redisClient, db, "campaign-cron", cfg.Engine.LeaseTTL())
	driver := cron.New(cron.Config{
		Campaigns:      campaignRepo,
		Lifecycle:      campaignSvc,
		Processor:      eng,
		Lease:          lease,
		Metrics:        m,
		Budget:         cfg.Engine.Budget(),
		StallThreshold: cfg.Engine.StallThreshold(),
	})

	var verifier auth.Verifier = auth.NewHostedVerifier(cfg.Auth.BaseURL, cfg.Auth.APIKey)
	if cfg.Auth.DevMode {
		logger.Warn("dev mode enabled, staff auth is bypassed")
		verifier = auth.DevVerifier{}
	}

	handlers := api.NewHandlers(api.HandlersConfig{
		Campaigns:  campaignSvc,
		Builder:    builder,
		ABTests:    abtestSvc,
		Recipients: recipientRepo,
		Events:     recipientRepo,
		Unsubs:     unsubSvc,
		Tester:     eng,
		Cron:       driver,
		CronSecret: cfg.Engine.CronSecret,
	})

	router := api.Routes(handlers, verifier, m.Handler(), cfg.Server.AllowedOrigins)
	server := api.NewServer(cfg.Server.Port, router)

	if cfg.Engine.InternalTickMinutes > 0 {
		go driver.RunEvery(ctx, time.Duration(cfg.Engine.InternalTickMinutes)*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
	}
}
