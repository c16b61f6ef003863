package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"crmcore/internal/adapters/auditexport"
	"crmcore/internal/adapters/httpapi"
	"crmcore/internal/blob"
	"crmcore/internal/config"
	"crmcore/internal/core"
	"crmcore/internal/notify"
)

// runtime is the wired object graph shared by the commands.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	svc      *core.Service
	events   *notify.Broker
	exporter *auditexport.Exporter
	worker   *auditexport.Worker
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(config.Sources{EnvFile: opts.EnvFile, File: opts.ConfigFile})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openRuntime opens storage and the archive store and builds the service.
// logs receives structured logs; spans go to traces when non-nil.
func openRuntime(ctx context.Context, cfg config.Config, logs, traces io.Writer) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		logger:   cfg.NewLogger(logs),
		registry: prometheus.NewRegistry(),
		events:   notify.NewBroker(),
	}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(rt.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store, err := core.OpenStore(cfg.Storage, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	svcOpts := []core.Option{
		core.WithLogger(rt.logger),
		core.WithMetricsRecorder(metrics),
		core.WithNotifier(rt.events),
		core.WithStrictCascade(cfg.StrictCascade),
	}
	if traces != nil {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(traces)))
	}
	rt.svc = core.NewService(store, svcOpts...)

	archive, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = rt.svc.Close()
		return nil, fmt.Errorf("open %s archive store: %w", cfg.Blob.Driver, err)
	}
	rt.exporter = auditexport.New(rt.svc, archive,
		auditexport.WithLinkTTL(cfg.Exports.LinkTTL),
		auditexport.WithLogger(rt.logger),
	)
	rt.worker = auditexport.NewWorker(rt.exporter, cfg.Exports.QueueSize)
	rt.logger.Info("runtime ready",
		"storage", string(cfg.Storage.Driver),
		"archive", string(archive.Driver()),
		"strict_cascade", cfg.StrictCascade,
	)
	return rt, nil
}

func (rt *runtime) handler() (http.Handler, error) {
	srv, err := httpapi.New(rt.svc, httpapi.Config{
		JWTSecret:      rt.cfg.Auth.JWTSecret,
		AllowAnonymous: rt.cfg.Auth.AllowAnonymous,
		CORSOrigins:    rt.cfg.HTTP.CORSOrigins,
	},
		httpapi.WithExports(rt.worker),
		httpapi.WithEvents(rt.events),
		httpapi.WithMetricsGatherer(rt.registry),
		httpapi.WithLogger(rt.logger),
	)
	if err != nil {
		return nil, err
	}
	return srv.Handler(), nil
}

// close stops the export worker and releases storage.
func (rt *runtime) close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Join(rt.worker.Stop(ctx), rt.svc.Close())
}

func traceWriter(opts *RootOptions) io.Writer {
	if opts.Trace {
		return os.Stderr
	}
	return nil
}
