package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/notify"
	"server/internal/provider"
	"server/internal/service"
	"server/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	jobs := repo.NewJobRepository(dbpool)
	ledger := repo.NewLedgerRepository(dbpool)

	providerClient, err := provider.NewClient(provider.Options{
		BaseURL:        cfg.ProviderBaseURL,
		Token:          cfg.ProviderToken,
		WebhookURL:     cfg.WebhookPublicURL,
		Logger:         logger,
		RequestTimeout: cfg.ProviderTimeout,
		Retry: provider.RetryPolicy{
			MaxAttempts: cfg.ProviderMaxAttempts,
			BaseDelay:   provider.DefaultRetryPolicy().BaseDelay,
			Multiplier:  provider.DefaultRetryPolicy().Multiplier,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure provider client")
	}

	providerVerifier, err := webhook.NewVerifier(cfg.ProviderWebhookSecret, cfg.WebhookTolerance)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure webhook verifier")
	}

	var notifier service.StatusNotifier
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect status exchange")
		}
		defer publisher.Close()
		notifier = publisher
	}

	app := &handlers.App{
		Logger:           logger,
		Submitter:        service.NewSubmitter(jobs, ledger, providerClient, cfg.ProviderTimeout, logger),
		Merger:           service.NewMerger(jobs, cfg.RefundPolicy, notifier, logger),
		Poller:           service.NewPoller(jobs),
		Jobs:             jobs,
		Ledger:           ledger,
		ProviderVerifier: providerVerifier,
		VerifyMode:       cfg.WebhookVerifyMode,
	}

	routerOpts := httpapi.Options{RateLimitPerMin: cfg.RateLimitPerMin}
	if cfg.BillingWebhookSecret != "" {
		billingVerifier, err := webhook.NewVerifier(cfg.BillingWebhookSecret, cfg.WebhookTolerance)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure billing verifier")
		}
		app.BillingVerifier = billingVerifier
		routerOpts.BillingEnabled = true
	}

	router := httpapi.NewRouter(app, routerOpts)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
