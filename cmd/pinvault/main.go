package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DeBrosOfficial/pinvault/pkg/config"
	"github.com/DeBrosOfficial/pinvault/pkg/logging"
)

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	configPath, err := resolveConfigPath(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(configPath, f.envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if f.listenAddr != "" {
		cfg.Gateway.ListenAddr = f.listenAddr
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "\n❌ Configuration errors (%d):\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		os.Exit(1)
	}

	logger, err := setupLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.ComponentError(logging.ComponentGeneral, "failed to initialize", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.ComponentWarn(logging.ComponentGeneral, "error during shutdown", zap.Error(err))
		}
	}()

	logger.ComponentInfo(logging.ComponentGeneral, "pinvault starting",
		zap.Int("redundancy", cfg.Pinning.DefaultRedundancy),
		zap.Bool("auto_repair", cfg.Pinning.AutoRepair),
		zap.String("store", cfg.Store.Driver),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.manager.Run(gctx) })
	if a.gateway != nil {
		g.Go(func() error { return a.gateway.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.ComponentError(logging.ComponentGeneral, "pinvault stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.ComponentInfo(logging.ComponentGeneral, "pinvault shutdown complete")
}
