package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"
	_ "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store/mysql"
	_ "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store/postgres"
	_ "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store/sqlite"
	_ "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store/sqlserver"
	"github.com/ekaya-inc/catalog-pipeline/pkg/catalog"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/logging"
	"github.com/ekaya-inc/catalog-pipeline/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	logger, err := logging.New(cfg.IsLocal())
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("source", cfg.Source.URL),
		zap.String("store", cfg.Store.Type),
		zap.String("destination", store.Destination(cfg.Store)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("Failed to open store", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Pipeline failed: open store: %v\n", err)
		return 1
	}
	defer st.Close()

	pipeline := services.NewPipeline(cfg, catalog.NewClient(cfg.Source, logger), st, logger)

	summary, err := pipeline.Run(ctx)
	if err != nil {
		if stage, ok := services.FailedStage(err); ok {
			fmt.Fprintf(os.Stderr, "Pipeline failed at stage %s: %v\n", stage, errors.Unwrap(err))
		} else {
			fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
		}
		return 1
	}

	fmt.Println("Data import and preparation completed successfully.")
	fmt.Printf("Data stored in %s\n", store.Destination(cfg.Store))
	if summary.ManifestPath != "" {
		fmt.Printf("Feature manifest written to %s\n", summary.ManifestPath)
	}
	return 0
}
