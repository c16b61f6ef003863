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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// ready, when set, receives the bound address once the listener is up.
	ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

Storage, archive and auth settings come from --config, the dotenv file and
CRMCORE_* variables. --addr overrides CRMCORE_HTTP_ADDR.

Example:
  crmd serve --config ./crmd.yaml
  CRMCORE_STORAGE_DRIVER=memory CRMCORE_ALLOW_ANONYMOUS=true crmd serve --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, cmd.ErrOrStderr(), traceWriter(opts.RootOptions))
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	defer func() {
		if closeErr := rt.close(cfg.HTTP.ShutdownTimeout); closeErr != nil {
			rt.logger.Error("shutdown incomplete", "error", closeErr)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	handler, err := rt.handler()
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	rt.worker.Start()

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen", err)
	}
	// Open event streams end when shutdown begins instead of holding it open.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelStreams)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	addr := listener.Addr().String()
	rt.logger.Info("http server listening", "addr", addr)
	fmt.Fprintf(cmd.OutOrStdout(), "crmd listening on %s\n", addr)
	if opts.ready != nil {
		opts.ready(addr)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "http server", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "graceful shutdown", err)
	}
	return nil
}
