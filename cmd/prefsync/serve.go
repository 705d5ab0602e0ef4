package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pressograph/prefsync/api"
	"github.com/pressograph/prefsync/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the preference HTTP API until SIGINT or SIGTERM.

The reconciler runs alongside the server and replays cache and store
writes that failed while the request was being handled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.logger.Error("Failed to close backends", "error", err)
				}
			}()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	shutdownTracing, err := telemetry.Setup(ctx, a.cfg.ServiceName, a.cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			a.logger.Error("Failed to flush traces", "error", err)
		}
	}()

	srv, err := api.NewServer(api.Config{
		ListenAddress: a.cfg.ListenAddress,
		Syncer:        a.syncer,
		Logger:        a.logger,
		Hub:           a.hub,
		Cookies:       a.cookies,
		Auth:          a.auth,
		WriteLimiter:  a.limiter,
		TrustProxy:    a.cfg.TrustProxy,
	})
	if err != nil {
		return err
	}

	reconcileCtx, stopReconciler := context.WithCancel(ctx)
	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		if err := a.syncer.RunReconciler(reconcileCtx, a.cfg.ReconcileInterval); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Reconciler stopped", "error", err)
		}
	}()
	defer func() {
		stopReconciler()
		<-reconcileDone
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	sctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(sctx); err != nil {
		return err
	}
	return <-serveErr
}
