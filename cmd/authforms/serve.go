package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-authforms/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the forms over HTTP",
		Long: `Start the HTTP server exposing registration, login, password reset and
verification. Submissions are validated, sent to the identity backend and
answered with HTML or JSON depending on the Accept header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().String("prefix", "/", "path prefix for every route")
	return cmd
}

// newServer builds the HTTP server from the resolved configuration.
func (a *app) newServer() (*server.Server, error) {
	backend, err := a.backend()
	if err != nil {
		return nil, err
	}
	orch, err := newOrchestrator(a.cfg, backend)
	if err != nil {
		return nil, err
	}

	cfg := server.Config{
		Orchestrator:  orch,
		Logger:        a.log,
		Prefix:        a.cfg.Server.Prefix,
		Terms:         a.cfg.Terms.Enabled,
		ThemeName:     a.cfg.Theme.Name,
		ThemeVariant:  a.cfg.Theme.Variant,
		HomeURL:       a.cfg.Server.HomeURL,
		SecureCookies: a.cfg.Server.SecureCookies,
		RateLimit:     a.cfg.Server.RateLimit,
		DisableCSRF:   a.cfg.Server.DisableCSRF,
	}
	if verifier, ok := backend.(server.Verifier); ok {
		cfg.Verifier = verifier
	}
	return server.New(cfg)
}

func (a *app) runServe(ctx context.Context) error {
	srv, err := a.newServer()
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Listen(a.cfg.Server.Addr)
	}()

	select {
	case sig := <-sigChan:
		a.log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.log.Info("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
