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

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/cuemby/cellar/pkg/config"
	"github.com/cuemby/cellar/pkg/log"
	"github.com/cuemby/cellar/pkg/metrics"
	"github.com/cuemby/cellar/pkg/session"
	"github.com/cuemby/cellar/pkg/valuestore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cellar daemon, wiring a Session from config and exposing health + metrics",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("cellar: load config: %w", err)
	}

	blobs, err := cfg.BuildBlobStore()
	if err != nil {
		return fmt.Errorf("cellar: build blob store: %w", err)
	}
	refs, err := cfg.BuildRefStore()
	if err != nil {
		return fmt.Errorf("cellar: build refstore: %w", err)
	}
	sess := session.New(valuestore.New(blobs), refs)
	metrics.RegisterComponent("blobstore", true, "")
	metrics.RegisterComponent("refstore", true, "")
	metrics.RegisterComponent("api", true, "")

	collector := metrics.NewCollector(refs)
	collector.Start(15 * time.Second)
	defer collector.Stop()

	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	healthRouter.HandleFunc("/readyz", metrics.ReadyHandler()).Methods(http.MethodGet)
	healthRouter.HandleFunc("/livez", metrics.LivenessHandler()).Methods(http.MethodGet)

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	healthServer := &http.Server{Addr: cfg.Server.HealthAddr, Handler: healthRouter, ReadHeaderTimeout: 10 * time.Second}
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsRouter, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		log.Info(fmt.Sprintf("health endpoints listening on %s", cfg.Server.HealthAddr))
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info(fmt.Sprintf("metrics endpoint listening on %s", cfg.Server.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	_ = sess // the Session is the binding point future gRPC/HTTP value/ref endpoints would be wired onto

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		log.Errorf("server error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthServer.Shutdown(ctx)
	_ = metricsServer.Shutdown(ctx)

	return nil
}
