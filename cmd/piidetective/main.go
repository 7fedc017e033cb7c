// cmd/piidetective/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/classify"
	"github.com/kpolley/PIIDetective/pkg/config"
	"github.com/kpolley/PIIDetective/pkg/decision"
	"github.com/kpolley/PIIDetective/pkg/platform"
	"github.com/kpolley/PIIDetective/pkg/scan"
	"github.com/kpolley/PIIDetective/pkg/server"
	"github.com/kpolley/PIIDetective/pkg/store"
)

const shutdownGracePeriod = 15 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	st, err := store.NewStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	dp, err := platform.NewDataPlatform(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dp.Close()

	classifier, err := classify.NewClassifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer classifier.Close()

	scanner := scan.NewScanner(dp, classifier, st, cfg.IncludeDatasets, cfg.ExcludeDatasets, logger)
	runner := scan.NewRunner(scanner, st, logger)
	recorder := decision.NewRecorder(st, dp, cfg.PolicyTagID, logger)

	srv := server.NewServer(cfg.ListenAddr, runner, st, recorder, dp, cfg.SampleRowLimit, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	// Cancel any active scan first so its Failed status is recorded before
	// the store closes
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Scan did not stop within the grace period", zap.Error(err))
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server did not stop cleanly", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
