package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/pinvault/pkg/config"
	"github.com/DeBrosOfficial/pinvault/pkg/gateway"
	"github.com/DeBrosOfficial/pinvault/pkg/health"
	"github.com/DeBrosOfficial/pinvault/pkg/logging"
	"github.com/DeBrosOfficial/pinvault/pkg/manager"
	"github.com/DeBrosOfficial/pinvault/pkg/metrics"
	"github.com/DeBrosOfficial/pinvault/pkg/pinning"
	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/DeBrosOfficial/pinvault/pkg/registry"
	"github.com/DeBrosOfficial/pinvault/pkg/store"
)

type app struct {
	manager  *manager.Manager
	gateway  *gateway.Server
	recorder *metrics.Recorder
	closers  []func() error
}

func setupLogger(cfg config.LoggingConfig) (*logging.ColoredLogger, error) {
	level := logging.ParseLevel(cfg.Level)
	switch {
	case cfg.OutputFile != "":
		return logging.NewFileLogger(cfg.OutputFile, level)
	case cfg.Format == "json":
		return logging.NewJSONLogger(level)
	default:
		return logging.NewColoredLogger(level, cfg.Colors)
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *logging.ColoredLogger) (manager.RecordStore, func() error, error) {
	if cfg.Driver == "memory" {
		logger.ComponentWarn(logging.ComponentStore, "using in-memory record store; records are lost on restart")
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
	s, err := store.Open(ctx, cfg.Driver, cfg.DSN, logger.Named(logging.ComponentStore))
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// buildApp wires adapters, registry, service, monitor, store, manager and
// gateway from a validated config.
func buildApp(ctx context.Context, cfg *config.Config, logger *logging.ColoredLogger) (*app, error) {
	recorder := metrics.NewRecorder()

	var entries []registry.Entry
	for _, spec := range cfg.ProviderSpecs() {
		if !spec.Enabled {
			continue
		}
		adapter, err := provider.New(spec.Adapter, logger.Named(logging.ComponentProvider))
		if err != nil {
			return nil, fmt.Errorf("create %s adapter: %w", spec.Adapter.ID, err)
		}
		entries = append(entries, registry.Entry{
			Adapter:  metrics.Instrument(adapter, recorder),
			Priority: spec.Priority,
			Enabled:  true,
		})
		logger.ComponentInfo(logging.ComponentProvider, "provider enabled",
			zap.String("provider", string(spec.Adapter.ID)),
			zap.Int("priority", spec.Priority),
		)
	}
	reg := registry.New(entries...)

	p := cfg.Pinning
	svc := pinning.NewService(reg, pinning.Options{
		DefaultRedundancy: p.DefaultRedundancy,
		Concurrency:       p.Concurrency,
		CallTimeout:       p.PinTimeout,
		MaxFileSize:       p.MaxFileSizeBytes,
	}, logger.Named(logging.ComponentPinning))

	monitor := health.NewMonitor(reg, svc, health.Options{
		Interval:     p.HealthCheckInterval,
		CycleBudget:  p.HealthCycleBudget,
		ProbeTimeout: p.PinTimeout,
		Threshold:    p.UnhealthyThreshold,
	}, logger.Named(logging.ComponentHealth))
	monitor.SetReporter(recorder)

	records, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	mgr := manager.New(svc, monitor, records, manager.Options{
		DefaultRedundancy: p.DefaultRedundancy,
		AutoRepair:        p.AutoRepair,
	}, logger.Named(logging.ComponentManager))
	mgr.SetRepairObserver(recorder)

	a := &app{manager: mgr, recorder: recorder, closers: []func() error{closeStore}}
	if cfg.Gateway.Enabled {
		a.gateway = gateway.New(mgr, recorder, cfg.Gateway, p.MaxFileSizeBytes, logger)
	}
	return a, nil
}

func (a *app) close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
