package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/dtroode/puricare-client/internal/api/http"
	"github.com/dtroode/puricare-client/internal/api/grpc/router"
	"github.com/dtroode/puricare-client/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP and gRPC APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return serve(ctx, a, force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force-reauth", false, "clear the stored session on startup")

	return cmd
}

func serve(ctx context.Context, a *app, force bool) error {
	log := a.logger
	cfg := a.cfg

	events, sess, err := a.sync.Attach(ctx, a.kv, force)
	if err != nil {
		return err
	}

	grpcSrv := server.NewGRPCServer(
		router.New(a.sessions, log.Component("grpc")).Register(ctx),
		fmt.Sprintf(":%s", cfg.GRPC.Port),
	)
	httpSrv := server.NewHTTPServer(
		httpapi.NewServer(a.auth, a.devices, a.sessions, a.registry, log.Component("http")).Router(),
		fmt.Sprintf("127.0.0.1:%s", cfg.HTTP.Port),
	)

	var wg sync.WaitGroup
	start := func(s server.Server, sl server.SecurityLayer) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				log.Error("failed to start server", "error", err, "address", s.Address())
			}
		}()
	}
	start(grpcSrv, server.NewSecurityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName))
	start(httpSrv, server.NewPlainListener())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.sync.Consume(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("session sync stopped", "error", err)
		}
	}()

	log.Info("session ready", "authenticated", sess.Authenticated(), "backend", cfg.Store.Backend)
	log.Info("build", "version", buildVersion, "date", buildDate, "commit", buildCommit)

	<-ctx.Done()
	log.Info("received interruption signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, s := range []server.Server{httpSrv, grpcSrv} {
		if err := s.Stop(shutdownCtx); err != nil {
			log.Error("error during server shutdown", "error", err, "address", s.Address())
		}
	}

	wg.Wait()
	log.Info("shutdown complete")
	return nil
}
