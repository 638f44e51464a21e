package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"blueprintcore/internal/adapters/exports"
	"blueprintcore/internal/adapters/httpapi"
	"blueprintcore/internal/blob"
	"blueprintcore/internal/core"
)

func (a *app) serveCmd() *cobra.Command {
	var addr, trace string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			if trace != "" {
				a.cfg.Debug.Trace = trace
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().StringVar(&trace, "trace", "", "write operation spans as JSON lines to stderr, stdout or a file (overrides debug.trace)")
	return cmd
}

// blueprintCountsVar is the expvar key holding per-entity record counts.
const blueprintCountsVar = "blueprint_records"

// openTrace resolves a debug.trace target to a writer. The close func is never nil.
func (a *app) openTrace(target string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch target {
	case "":
		return nil, nop, nil
	case "stderr":
		return a.stderr, nop, nil
	case "stdout":
		return a.stdout, nop, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nop, fmt.Errorf("open trace file: %w", err)
	}
	return f, f.Close, nil
}

// serve runs the API until ctx is cancelled. ready, when set, receives the
// bound listener address.
func (a *app) serve(ctx context.Context, ready func(addr string)) error {
	logger := core.NewZapLogger(a.logger)
	prom := core.NewPrometheusMetricsRecorder(prometheus.NewRegistry())
	metrics := core.MultiMetricsRecorder{prom}
	if a.cfg.Debug.Vars {
		metrics = append(metrics, core.PublishOperationVars(core.DefaultVarsName))
	}
	audit := core.MultiAuditRecorder{core.NewLoggerAuditRecorder(logger)}

	traceOut, closeTrace, err := a.openTrace(a.cfg.Debug.Trace)
	if err != nil {
		return err
	}
	defer func() { _ = closeTrace() }()
	svcOpts := []core.ServiceOption{
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(audit),
	}
	if traceOut != nil {
		svcOpts = append(svcOpts, core.WithTracer(core.NewSpanLog(traceOut, 0)))
	}

	svc, closeStore, err := a.openService(ctx, svcOpts...)
	if err != nil {
		return err
	}
	defer closeStore()

	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("open export store: %w", err)
	}
	exporter := exports.NewExporter(store)
	worker := exports.NewWorker(svc, exporter, audit)
	worker.Start()

	handlerOpts := []httpapi.Option{
		httpapi.WithExporter(exporter),
		httpapi.WithJobs(worker),
		httpapi.WithMetrics(prom.Handler()),
		httpapi.WithLogger(logger),
	}
	if a.cfg.Debug.Vars {
		core.PublishBlueprintCounts(blueprintCountsVar, svc)
		handlerOpts = append(handlerOpts, httpapi.WithDebugVars(expvar.Handler()))
	}
	handler := httpapi.NewHandler(svc, handlerOpts...)

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		_ = worker.Stop(context.Background())
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	a.logger.Info("blueprintd listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("storage", a.cfg.Storage.Driver),
		zap.String("blob", a.cfg.Blob.Driver),
		zap.String("delete_policy", string(svc.DeletePolicy())),
		zap.Bool("debug_vars", a.cfg.Debug.Vars),
		zap.String("trace", a.cfg.Debug.Trace),
	)
	if ready != nil {
		ready(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
		defer cancel()
		a.logger.Info("blueprintd shutting down")
		return errors.Join(srv.Shutdown(shutdownCtx), worker.Stop(shutdownCtx))
	})
	return g.Wait()
}
