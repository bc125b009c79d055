package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/wikifix/internal/output"
	"github.com/chris-regnier/wikifix/internal/server"
)

var (
	flagAddr           string
	flagServeTypos     bool
	flagRequestTimeout time.Duration
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fixer over HTTP",
		Long: `Serve the fixer over HTTP. Endpoints:

  POST /v1/fix            apply handlers (and typos with "typos": true) to a page
  POST /v1/typos          apply typo rules only
  GET  /v1/handlers       list the catalog
  GET  /v1/handlers/{id}  describe one handler
  GET  /v1/metrics        handler outcome statistics
  GET  /healthz`,
		RunE: runServe,
	}
	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&flagServeTypos, "typos", true, "Load typo rules")
	serveCmd.Flags().DurationVar(&flagRequestTimeout, "request-timeout", time.Minute, "Limit on the handling time of one request")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.SetDefault(output.SetupLogger(flagQuiet, true, flagDebug, os.Stderr, output.WithJSON()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx, setupOptions{typos: flagServeTypos, metricInterval: 15 * time.Second})
	if err != nil {
		return err
	}
	defer e.close()

	srv := &http.Server{
		Addr: flagAddr,
		Handler: server.New(e.fixer,
			server.WithSettings(e.settings),
			server.WithMetrics(e.collector),
			server.WithRequestTimeout(flagRequestTimeout),
		).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", flagAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
