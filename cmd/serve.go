package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jimeng-relay/storyvideo/internal/handler/health"
	videohandler "github.com/jimeng-relay/storyvideo/internal/handler/video"
	"github.com/jimeng-relay/storyvideo/internal/middleware/observability"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 60 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultMaxHeaderBytes    = 1 << 20
	shutdownTimeout          = 30 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		port := a.cfg.ServerPort
		if flagChanged(cmd, "port") {
			port = servePort
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           a.httpHandler(),
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			ReadTimeout:       defaultReadTimeout,
			// No write timeout: a job holds the response open for up to
			// maxAttempts times the wait budget.
			IdleTimeout:    defaultIdleTimeout,
			MaxHeaderBytes: defaultMaxHeaderBytes,
		}

		ctx := commandContext(cmd)
		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("starting storyvideo server", "addr", srv.Addr, "ladder", a.registry.ListVersions())
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		case <-ctx.Done():
			a.logger.Info("shutting down storyvideo server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}

func (a *app) httpHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.RecoverMiddleware(a.logger), middleware.RealIP, observability.Middleware(a.logger))

	var ready func(context.Context) error
	if a.store != nil {
		ready = a.store.Ping
	}
	health.NewHandler(ready).Register(r)

	opts := videohandler.Options{
		Registry: a.registry,
		Usage:    a.accountant.Records,
		Logger:   a.logger,
	}
	if a.store != nil {
		opts.Attempts = a.store.JobAttempts()
	}
	videohandler.NewHandler(a.orch, opts).Register(r)
	return r
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides SERVER_PORT)")
}
