package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homeward/backoffice-go/internal/config"
	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/events"
	"github.com/homeward/backoffice-go/internal/handler"
	"github.com/homeward/backoffice-go/internal/infra/blend"
	"github.com/homeward/backoffice-go/internal/infra/cache"
	"github.com/homeward/backoffice-go/internal/infra/client"
	"github.com/homeward/backoffice-go/internal/infra/email"
	"github.com/homeward/backoffice-go/internal/infra/memstore"
	"github.com/homeward/backoffice-go/internal/infra/observability"
	"github.com/homeward/backoffice-go/internal/infra/pdf"
	"github.com/homeward/backoffice-go/internal/infra/postgres"
	"github.com/homeward/backoffice-go/internal/infra/resilience"
	"github.com/homeward/backoffice-go/internal/infra/salesforce"
	"github.com/homeward/backoffice-go/internal/infra/storage"
	"github.com/homeward/backoffice-go/internal/queue"
	"github.com/homeward/backoffice-go/internal/service"
	"github.com/homeward/backoffice-go/internal/store"

	cron "github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type backend interface {
	store.DocDB
	store.JobStore
}

func main() {
	// --- Flags ---
	flags := pflag.NewFlagSet("backoffice", pflag.ExitOnError)
	mode := flags.String("mode", "all", "what to run: api, worker or all")
	storeKind := flags.String("store", "postgres", "storage backend: postgres or memory")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before the environment is read")
	flags.Parse(os.Args[1:])

	runAPI := *mode == "api" || *mode == "all"
	runWorker := *mode == "worker" || *mode == "all"
	if !runAPI && !runWorker {
		fmt.Fprintf(os.Stderr, "unknown --mode %q\n", *mode)
		os.Exit(2)
	}

	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, cfg.Env)
	defer logger.Sync()

	if err := cfg.LoadFeatureFlags(logger); err != nil {
		logger.Fatal("failed to load feature flags", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("mode", *mode),
		zap.String("store", *storeKind),
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("queue_workers", cfg.Queue.Workers),
		zap.Int("blend_polling_hours", cfg.Blend.PollingHours),
		zap.Bool("use_new_pricing_updates", cfg.Flags.UseNewPricingUpdates),
		zap.Bool("validate_preferred_closing_date", cfg.Flags.ValidatePreferredClosingDate),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, "homeward-backoffice")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Storage ---
	var db backend
	switch *storeKind {
	case "memory":
		logger.Warn("using in-memory store; data is lost on exit")
		db = memstore.New()
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer pg.Close()
		db = pg
	default:
		logger.Fatal("unknown --store", zap.String("store", *storeKind))
	}
	st := store.New(db)

	// --- Resilience ---
	retry := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     30 * time.Second,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	serviceClient := httpClient
	if cfg.OAuthBaseURL != "" {
		serviceClient = client.NewServiceHTTPClient(ctx, client.OAuthConfig{
			BaseURL:      cfg.OAuthBaseURL,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
		}, httpClient)
	}

	crm := salesforce.NewClient(httpClient, salesforce.Config{
		LoginURL:      cfg.Salesforce.LoginURL,
		ClientID:      cfg.Salesforce.ClientID,
		ClientSecret:  cfg.Salesforce.ClientSecret,
		Username:      cfg.Salesforce.Username,
		Password:      cfg.Salesforce.Password,
		SecurityToken: cfg.Salesforce.SecurityToken,
		APIVersion:    cfg.Salesforce.APIVersion,
	}, resilience.NewCircuitBreaker("salesforce", logger, nil), retry, logger)
	publisher := salesforce.NewPublisher(st, crm, logger)

	mortgage := blend.NewClient(httpClient, blend.Config{
		APIURL:     cfg.Blend.APIURL,
		APIKey:     cfg.Blend.APIKey,
		Instance:   cfg.Blend.Instance,
		APIVersion: cfg.Blend.APIVersion,
		ProxyURL:   cfg.Blend.ProxyURL,
		MaxRetries: cfg.Blend.MaxRetries,
		RetryDelay: time.Second,
	}, resilience.NewCircuitBreaker("blend", logger, nil), logger)

	emailCfg := email.Config{
		APIKey:    cfg.SendGrid.APIKey,
		FromEmail: cfg.SendGrid.FromEmail,
		FromName:  cfg.SendGrid.FromName,
		Sandbox:   cfg.SendGrid.Sandbox,
		Templates: cfg.SendGrid.Templates,
	}
	mailer := email.NewMailer(emailCfg, resilience.NewCircuitBreaker("sendgrid", logger, nil), retry, logger)

	objects, err := storage.New(ctx, storage.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.AWS.Endpoint,
	})
	if err != nil {
		logger.Fatal("failed to init object storage", zap.Error(err))
	}
	fieldMaps, err := pdf.LoadFieldMaps()
	if err != nil {
		logger.Fatal("failed to load contract field maps", zap.Error(err))
	}

	sso := client.NewSSOClient(httpClient, cfg.SSOBaseURL, cfg.SSOServiceToken,
		resilience.NewCircuitBreaker("sso", logger, nil), retry, logger)
	directory := client.NewAgentDirectoryClient(serviceClient, cfg.AgentServiceURL,
		resilience.NewCircuitBreaker("agent-service", logger, nil), retry)
	listings := client.NewPropertyDataClient(serviceClient, cfg.PropertyDataURL,
		resilience.NewCircuitBreaker("property-data", logger, nil), retry)
	partners := client.NewPartnerClient(serviceClient, cfg.PartnerURL,
		resilience.NewCircuitBreaker("partner-service", logger, nil), retry,
		cache.New[*domain.PartnerConfig](ctx, cfg.CacheTTL))

	// --- Write path ---
	bus := events.NewBus(logger)
	writer := service.NewWriter(st, bus, logger)
	acks := service.NewAcknowledgementAssigner(st, writer, logger)
	engine := service.NewEngine(st, writer, acks, logger)
	outbox := service.NewOutbox(cfg.Queue.MaxAttempts, logger)
	service.RegisterSignalHandlers(bus, service.NewSignals(engine, acks, outbox, logger), metrics)

	// --- Services ---
	contracts := service.NewContractService(st, objects, pdf.NewFiller(), fieldMaps, outbox, service.ContractConfig{
		Env:             cfg.Env,
		TemplatesBucket: cfg.ContractTemplatesBucket,
		ContractsBucket: cfg.ContractsBucket,
		PollTimeout:     cfg.ContractPollTimeout,
	}, logger)
	inbound := service.NewInboundSync(st, writer, engine, outbox, logger)
	capacity := service.NewCapacityCalculator(st, cfg.ClosingCapacityPerDay)

	// --- Worker ---
	runner := queue.NewRunner(db, queue.Config{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		BaseBackoff:  cfg.Queue.BaseBackoff,
		MaxBackoff:   cfg.Queue.MaxBackoff,
		Lease:        cfg.Queue.Lease,
	}, metrics, logger)
	service.NewJobHandlers(st, publisher, contracts, inbound, mailer, emailCfg.TemplateID, partners, metrics, logger).Register(runner)

	var workerDone chan error
	if runWorker {
		poller := service.NewFollowupPoller(st, mortgage, outbox, metrics, cfg.MaxConcurrency, logger)

		c := cron.New()
		if _, err := c.AddFunc(fmt.Sprintf("@every %dh", cfg.Blend.PollingHours), func() {
			res, err := poller.Poll(ctx)
			if err != nil {
				logger.Error("follow-up poll failed", zap.Error(err))
				return
			}
			logger.Info("follow-up poll finished",
				zap.Int("loans", res.Loans),
				zap.Int("synced", res.Synced),
				zap.Int("failed", res.Failed),
			)
		}); err != nil {
			logger.Fatal("failed to schedule follow-up poll", zap.Error(err))
		}
		if _, err := c.AddFunc("@every 1m", func() { runner.RequeueStale(ctx) }); err != nil {
			logger.Fatal("failed to schedule stale job sweep", zap.Error(err))
		}
		c.Start()
		defer c.Stop()

		workerDone = make(chan error, 1)
		go func() {
			logger.Info("job runner starting", zap.Int("workers", cfg.Queue.Workers))
			workerDone <- runner.Run(ctx)
		}()
	}

	if !runAPI {
		if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("job runner stopped", zap.Error(err))
		}
		logger.Info("worker stopped")
		return
	}

	// --- Router ---
	tokens := service.NewTokenService(st, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	router := handler.NewRouter(handler.Services{
		Applications:     service.NewApplicationService(st, writer, engine, outbox, logger),
		Homes:            service.NewHomeService(st, writer, engine, outbox, objects, cfg.ImagesBucket, logger),
		Acknowledgements: service.NewAcknowledgementService(st, writer, engine, logger),
		Agents:           service.NewAgentService(st, outbox, directory, sso, cfg.AgentOnboardingURL, logger),
		Pricing:          service.NewPricingService(st, domain.PricingRules{UseNewPricingUpdates: cfg.Flags.UseNewPricingUpdates}, logger),
		Offers: service.NewOfferService(st, writer, publisher, outbox, listings, capacity, contracts, service.OfferRules{
			ValidatePreferredClosingDate: cfg.Flags.ValidatePreferredClosingDate,
		}, logger),
		Notes:   service.NewNoteService(st, outbox, logger),
		Leads:   service.NewLeadService(st, writer, engine, logger),
		Users:   service.NewUserService(st, writer, logger),
		Inbound: inbound,
		Auth:    tokens,
		Store:   st,
	}, handler.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		WebhookKeyHash: cfg.WebhookKeyHash,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	if workerDone != nil {
		if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("job runner stopped", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}
