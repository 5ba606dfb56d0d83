package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bountyx/config"
	"bountyx/integrations/github"
	"bountyx/integrations/webhooks"
	"bountyx/ledger/xrpl"
	"bountyx/native/bounty"
	"bountyx/observability/logging"
	"bountyx/rpc"
	"bountyx/storage/bountydb"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logging.Setup("bountyd", os.Getenv("BOUNTYD_ENV"))

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	store, err := bountydb.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}

	gateway := xrpl.NewClient(cfg.LedgerRPCURL, cfg.LedgerAuthToken, cfg.LedgerRateLimit)
	fetcher := github.NewClient(cfg.GitHubAPIBase, cfg.GitHubToken)

	engine := bounty.NewEngine()
	engine.SetState(store)
	engine.SetGateway(gateway)
	engine.SetFetcher(fetcher)
	if cfg.ReserveFloorDrops != nil {
		engine.SetReserveFloor(cfg.ReserveFloorDrops)
	}
	if cfg.WebhookURL != "" {
		dispatcher, err := webhooks.NewDispatcher(cfg.WebhookURL, []byte(cfg.WebhookSecret))
		if err != nil {
			logger.Error("configure webhook dispatcher", "error", err)
			os.Exit(1)
		}
		defer dispatcher.Close()
		engine.SetEmitter(dispatcher)
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	rpcServer := rpc.NewServer(engine, logger)
	rpcServer.SetStats(store)
	router.Method(http.MethodPost, "/rpc", rpcServer)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
	}

	go func() {
		logger.Info("bountyd listening", "address", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down bountyd")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
