package main

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dtroode/puricare-client/internal/config"
	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/storage/file"
	"github.com/dtroode/puricare-client/internal/storage/memory"
	miniostore "github.com/dtroode/puricare-client/internal/storage/minio"
	"github.com/dtroode/puricare-client/internal/storage/postgres"
	redisstore "github.com/dtroode/puricare-client/internal/storage/redis"
)

// openStore connects the configured backend. The returned cleanup releases
// the backend's client after the store itself is closed.
func openStore(ctx context.Context, cfg *config.Config, logger *logger.Logger) (model.KeyValueStore, func(), error) {
	noop := func() {}
	origin := cfg.Store.Origin
	log := logger.Component("store").With("backend", cfg.Store.Backend, "origin", origin)

	switch cfg.Store.Backend {
	case config.BackendFile:
		kv, err := file.New(filepath.Join(cfg.File.Dir, url.PathEscape(origin)), log)
		if err != nil {
			return nil, noop, err
		}
		return kv, noop, nil

	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		// The store owns the client and closes it.
		kv := redisstore.New(client, redisstore.Config{Namespace: origin, Channel: cfg.Redis.Channel}, log)
		return kv, noop, nil

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, noop, err
		}
		kv := postgres.New(db, postgres.NewListener(cfg.Database.DSN),
			postgres.Config{Origin: origin, Channel: cfg.Database.Channel}, log)
		return kv, func() { db.Close() }, nil

	case config.BackendMinio:
		client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
			Secure: cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create minio client: %w", err)
		}
		kv, err := miniostore.New(ctx, client, miniostore.Config{Bucket: cfg.Storage.Bucket, Namespace: origin}, log)
		if err != nil {
			return nil, noop, err
		}
		return kv, noop, nil

	case config.BackendMemory:
		return memory.NewOrigin().Attach(), noop, nil
	}

	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
