package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/nhle/procurement-inbox/internal/ai"
	"github.com/nhle/procurement-inbox/internal/credential"
	"github.com/nhle/procurement-inbox/internal/logging"
	"github.com/nhle/procurement-inbox/internal/mailbox"
	"github.com/nhle/procurement-inbox/internal/metrics"
	"github.com/nhle/procurement-inbox/internal/model"
	"github.com/nhle/procurement-inbox/internal/reconcile"
	"github.com/nhle/procurement-inbox/internal/resolve"
	"github.com/nhle/procurement-inbox/internal/store"
	"github.com/nhle/procurement-inbox/internal/sync"
)

// app holds the wired components for one process.
type app struct {
	cfg       *model.AppConfig
	logger    *zap.Logger
	store     *store.SQLStore
	registry  *prometheus.Registry
	scheduler *sync.Scheduler
}

// loadConfig reads the config file and fills the mailbox password from the
// keyring when neither the file nor the environment supplies it.
func loadConfig(logger *zap.Logger) (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if cfg.Mailbox.Password == "" && cfg.Mailbox.Username != "" {
		creds, err := credential.Open()
		if err != nil {
			logger.Warn("keyring unavailable", zap.Error(err))
			return cfg, nil
		}
		if err := creds.FillMailboxPassword(&cfg.Mailbox); err != nil {
			logger.Warn("reading mailbox password from keyring", zap.Error(err))
		}
	}
	return cfg, nil
}

// newLogger builds the logger from the config file alone, so config loading
// problems can be logged.
func newLogger() (*zap.Logger, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return logging.New(cfg.Log)
}

func newApp(ctx context.Context) (*app, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded",
		zap.String("path", configPath),
		zap.String("mailbox_host", cfg.Mailbox.Host),
		zap.String("mailbox_user", cfg.Mailbox.Username),
		logging.Redacted("mailbox_password", cfg.Mailbox.Password),
		logging.Redacted("ai_api_key", cfg.AI.APIKey),
		zap.String("db_driver", cfg.Database.Driver),
	)

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}

	var opts []resolve.Option
	if cfg.Resolver.ThreadMatching {
		opts = append(opts, resolve.WithThreadMatching())
	}
	resolver := resolve.New(st, logger, opts...)
	logger.Debug("rfp resolution strategies", zap.Strings("strategies", resolver.Strategies()))

	parser, err := ai.New(ai.Config{
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		APIKey:  cfg.AI.APIKey,
		Timeout: time.Duration(cfg.AI.TimeoutSec) * time.Second,
	}, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := reconcile.NewEngine(resolver, parser, st, logger)
	scheduler := sync.New(
		mailbox.NewIMAPClient(cfg.Mailbox, logger),
		engine,
		st,
		sync.Config{
			IntervalMinutes: cfg.Polling.IntervalMinutes,
			MaxMessages:     cfg.Mailbox.MaxMessages,
			CycleTimeout:    time.Duration(cfg.Polling.CycleTimeoutSec) * time.Second,
		},
		metrics.New(registry),
		logger,
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		registry:  registry,
		scheduler: scheduler,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func requireConfigured(cfg *model.AppConfig) error {
	if !cfg.Mailbox.Configured() {
		return fmt.Errorf("mailbox is not configured; run 'procure init' or edit %s", configPath)
	}
	return nil
}
