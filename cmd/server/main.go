package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3-frozen/chainsync/internal/alert"
	"github.com/web3-frozen/chainsync/internal/cache"
	"github.com/web3-frozen/chainsync/internal/config"
	"github.com/web3-frozen/chainsync/internal/dedup"
	"github.com/web3-frozen/chainsync/internal/handler"
	"github.com/web3-frozen/chainsync/internal/middleware"
	"github.com/web3-frozen/chainsync/internal/probe"
	"github.com/web3-frozen/chainsync/internal/resolve"
	"github.com/web3-frozen/chainsync/internal/resolve/providers"
	"github.com/web3-frozen/chainsync/internal/sheet"
	"github.com/web3-frozen/chainsync/internal/watch"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sheet backend
	var sh sheet.Sheet
	switch cfg.SheetBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			logger.Error("DATABASE_URL is required with the postgres backend")
			os.Exit(1)
		}
		pg, err := sheet.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected and migrated")
		sh = pg
	case "memory":
		logger.Warn("using in-memory sheet, all rows reset on restart")
		sh = sheet.NewMemory(sheet.SeedChains...)
	default:
		logger.Error("unknown SHEET_BACKEND", "value", cfg.SheetBackend)
		os.Exit(1)
	}

	// Redis dedup (retry up to 30s for ExternalSecret to sync)
	var dd *dedup.Deduplicator
	var err error
	for i := 0; i < 6; i++ {
		dd, err = dedup.New(cfg.RedisURL, cfg.RedisPassword)
		if err == nil {
			break
		}
		logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		logger.Error("failed to connect to redis after retries", "error", err)
		os.Exit(1)
	}
	defer dd.Close()
	logger.Info("redis connected for alert dedup")

	// Provider index cache, best effort: without it every resolution
	// refetches the full DefiLlama chain index.
	idx, err := cache.New(cfg.RedisURL, cfg.RedisPassword, cfg.IndexCacheTTL)
	if err != nil {
		logger.Warn("redis cache unavailable, index caching disabled", "error", err)
	} else {
		defer idx.Close()
	}

	// Alert delivery
	var sender alert.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		sender = alert.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		logger.Info("telegram alerts enabled", "chat_id", cfg.TelegramChatID)
	} else {
		logger.Warn("telegram not configured, alerts are log-only")
	}
	notifier := alert.NewNotifier(sender, dd, logger)

	// Provider clients, in trust order
	var clients []resolve.Client
	for _, name := range cfg.ProviderTrust {
		switch name {
		case "defillama":
			clients = append(clients, providers.NewDefiLlama(cfg.DefillamaAPI, idx))
		case "llamanodes":
			var p providers.EndpointProber
			if cfg.RPCProbe {
				p = probe.NewWS()
			}
			clients = append(clients, providers.NewLlamanodes(cfg.LlamanodesAPI, p))
		case "publicnode":
			var p providers.EndpointProber
			if cfg.RPCProbe {
				p = probe.NewHTTP()
			}
			clients = append(clients, providers.NewPublicnode(cfg.PublicnodeAPI, p))
		case "chainlist":
			if !cfg.ChainlistScrape {
				logger.Info("chainlist scraping disabled, provider skipped")
				continue
			}
			clients = append(clients, providers.NewChainlist(logger))
		default:
			logger.Warn("unknown provider in trust order, skipped", "provider", name)
		}
	}
	if len(clients) == 0 {
		logger.Error("no provider clients configured")
		os.Exit(1)
	}
	ranks := make(map[string]int, len(cfg.ProviderTrust))
	for i, name := range cfg.ProviderTrust {
		ranks[name] = len(cfg.ProviderTrust) - i
	}

	coord := resolve.NewCoordinator(resolve.Config{
		Sheet:   sh,
		Clients: clients,
		Ranks:   ranks,
		Alerts:  notifier,
		Timeout: cfg.ResolveTimeout,
		Backoff: cfg.RetryBackoff,
		Logger:  logger,
	})

	watcher := watch.New(sh, coord.Submit, cfg.PollInterval, cfg.DebounceWindow, cfg.StartupRefresh, logger)
	go watcher.Run(ctx)

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(sh))

	r.Route("/api", func(r chi.Router) {
		r.Get("/chains", handler.ListChains(sh, coord))
		r.Get("/chains/{name}", handler.GetChain(sh, coord))
		r.Post("/resolutions", handler.StartResolution(sh, coord))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "providers", len(clients))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer drainCancel()
	if err := coord.Shutdown(drainCtx); err != nil {
		logger.Warn("abandoned in-flight resolutions", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
