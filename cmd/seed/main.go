// Command seed loads catalog variants and ledger sales from a YAML fixture file into the
// configured storage backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/partshub/api/internal/di"
	"github.com/partshub/api/internal/platform/config"
	"github.com/partshub/api/internal/platform/observability"
	"github.com/partshub/api/internal/platform/secrets"
	"github.com/partshub/api/internal/repositories"
	"github.com/partshub/api/internal/seed"
)

func main() {
	file := flag.String("file", "", "path to the YAML fixture file")
	timeout := flag.Duration("timeout", time.Minute, "overall time limit")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "seed: -file is required")
		os.Exit(2)
	}
	if err := run(*file, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	secretsCfg, level, err := config.Bootstrap()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(level)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("seed")

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(secretsCfg.ProjectID),
		secrets.WithFallbackFile(secretsCfg.FallbackFile),
	)
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	defer func() {
		_ = fetcher.Close()
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		return err
	}
	if cfg.Storage.Backend == config.BackendMemory {
		return fmt.Errorf("backend %q does not persist; set PARTSHUB_STORAGE_BACKEND", cfg.Storage.Backend)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fixtures, err := seed.Parse(data)
	if err != nil {
		return err
	}

	registry, err := di.OpenRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = registry.Close(context.Background())
	}()
	seeder, ok := registry.(repositories.Seeder)
	if !ok {
		return fmt.Errorf("backend %s does not accept fixtures", registry.Backend())
	}

	result, err := seed.Apply(ctx, seeder, fixtures)
	if err != nil {
		return err
	}
	logger.Info("fixtures loaded",
		zap.String("backend", registry.Backend()),
		zap.String("file", path),
		zap.Int("variants", result.Variants),
		zap.Int("sales", result.Sales),
	)
	return nil
}
