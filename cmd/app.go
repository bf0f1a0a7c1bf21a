package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dtroode/puricare-client/internal/config"
	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/metrics"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/registry"
	"github.com/dtroode/puricare-client/internal/remote"
	"github.com/dtroode/puricare-client/internal/service"
	"github.com/dtroode/puricare-client/internal/session"
	"github.com/dtroode/puricare-client/internal/token"
)

// app is one client context: a store connection plus the services on top.
type app struct {
	cfg      *config.Config
	logger   *logger.Logger
	registry *prometheus.Registry
	kv       model.KeyValueStore
	cleanup  func()
	sessions *session.Store
	sync     *session.Sync
	auth     *service.Auth
	devices  *service.Devices
	codec    *token.Codec
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)

	fallback, err := registry.LoadSeed(cfg.Registry.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load device seed: %w", err)
	}

	kv, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	codec := token.NewCodec()
	sessions := session.NewStore(kv, log.Component("session"), m)

	return &app{
		cfg:      cfg,
		logger:   log,
		registry: reg,
		kv:       kv,
		cleanup:  cleanup,
		sessions: sessions,
		sync:     session.NewSync(sessions, log.Component("sync"), m),
		auth:     service.NewAuth(codec, sessions, kv, log.Component("auth")),
		devices: service.NewDevices(
			remote.NewClient(cfg.API.BaseURL, cfg.API.Timeout),
			sessions,
			registry.NewQueue(kv, log.Component("queue")),
			fallback,
			log.Component("devices"),
			m,
		),
		codec: codec,
	}, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err.Error())
	}
	a.cleanup()
}
