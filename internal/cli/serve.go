package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/syncq/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// ready, when set, receives the bound address once listening (for testing).
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync API over HTTP",
		Long: `Serve the sync API over HTTP and run the retention sweeper.

Every /v1 route requires a bearer token signed with http.jwtSecret
(see "syncq token").

Example:
  syncq serve --db sqlite://syncq.db --addr :8080
  syncq serve --config syncq.cue --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := rt.cfg.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if rt.cfg.HTTP.JWTSecret == "" {
		rt.logger.Warn("http.jwtSecret not set, using development secret")
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := &http.Server{
		Handler: httpapi.NewServer(rt.svc, httpapi.ServerConfig{
			JWTSecret: rt.cfg.HTTP.JWTSecret,
			Logger:    rt.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rt.svc.StartSweeper(ctx)
	defer rt.svc.StopSweeper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	rt.logger.Info("syncq listening", "addr", ln.Addr().String(), "store", rt.cfg.Store.DSN)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr().String())
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	rt.logger.Info("server stopped gracefully")
	return nil
}
