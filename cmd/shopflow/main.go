package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/shopflow/internal/config"
	"github.com/torosent/shopflow/internal/credentials"
	"github.com/torosent/shopflow/internal/flow"
	"github.com/torosent/shopflow/internal/httpclient"
	"github.com/torosent/shopflow/internal/logging"
	"github.com/torosent/shopflow/internal/metrics"
	"github.com/torosent/shopflow/internal/output"
	"github.com/torosent/shopflow/internal/runner"
	"github.com/torosent/shopflow/internal/threshold"
	"github.com/torosent/shopflow/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
	uploadTimeout    = 30 * time.Second
)

// thresholdError reports failed thresholds after every report is written.
type thresholdError struct {
	failed int
	total  int
}

func (e *thresholdError) Error() string {
	return fmt.Sprintf("%d of %d thresholds failed", e.failed, e.total)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	cancel()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var te *thresholdError
	if errors.As(err, &te) {
		fmt.Fprintf(os.Stderr, "Thresholds failed: %v\n", err)
		return 2
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	runID := ulid.Make().String()
	logger = logger.With(zap.String("run_id", runID))
	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", zap.String("warning", w))
	}

	waves, err := runner.PlanWaves(*cfg)
	if err != nil {
		return err
	}
	rotation, err := credentials.FromConfig(cfg)
	if err != nil {
		return err
	}

	provider, err := tracing.Init(ctx, cfg.Tracing, runID)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, collector, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	client, err := httpclient.New(httpclient.Options{
		BaseURL:        cfg.BaseURL,
		Timeout:        cfg.Timeout,
		RatePerSecond:  cfg.Rate,
		Recorder:       collector,
		PropagateTrace: provider.ShouldPropagate(),
	})
	if err != nil {
		return err
	}

	flowOpts := flow.OptionsFromConfig(cfg)
	flowOpts.Logger = logger
	flowOpts.Tracer = provider.Tracer()
	checkout := flow.New(client, collector, flowOpts)

	r := runner.New(runner.Options{
		Waves:            waves,
		Scenario:         checkout,
		Credentials:      rotation,
		Recorder:         collector,
		IterationTimeout: cfg.DerivedIterationTimeout(),
		Logger:           logger,
		Tracer:           provider.Tracer(),
	})

	logger.Info("run starting",
		zap.String("mode", string(cfg.Mode)),
		zap.Int("vus", runner.TotalVUs(waves)),
		zap.Int("waves", len(waves)),
		zap.Int("tokens", rotation.Len()),
		zap.String("cart_clear_mode", string(cfg.CartClearMode)),
		zap.Duration("iteration_timeout", cfg.DerivedIterationTimeout()),
	)

	var progress *output.ProgressReporter
	if cfg.Progress && !cfg.JSONOutput {
		progress = output.NewProgressReporter(collector, progressInterval, stdout)
	}

	// Mark the actual start so progress and rates use the run's own clock.
	started := time.Now()
	collector.Start()
	if progress != nil {
		progress.Start()
	}
	result := r.Run(ctx)
	if progress != nil {
		progress.Stop()
	}

	snap := collector.Snapshot(result.Duration)
	results := threshold.NewEvaluator(thresholds).Evaluate(snap)
	report := output.NewReport(runID, started, string(cfg.Mode), waves, result, snap, results)

	written, err := output.WriteRunFiles(output.RunFiles{
		Dir:    cfg.OutDir,
		Format: cfg.ExportFormat,
		HTML:   cfg.HTMLReport,
	}, report)
	if err != nil {
		return err
	}
	logger.Info("reports written", zap.Strings("files", written))
	if cfg.Upload.Enabled() {
		uploadFiles(ctx, cfg.Upload, runID, written, logger)
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, snap)
		output.PrintThresholds(stdout, results)
		fmt.Fprintln(stdout)
		if err := output.WriteDigest(stdout, snap); err != nil {
			return err
		}
	}

	if !threshold.AllPassed(results) {
		failed := 0
		for _, res := range results {
			if !res.Pass {
				failed++
			}
		}
		return &thresholdError{failed: failed, total: len(results)}
	}
	return nil
}

// uploadFiles copies the run files to the configured bucket. Failures are
// logged; the local files remain the record of the run.
func uploadFiles(ctx context.Context, cfg config.UploadConfig, runID string, files []string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
	defer cancel()

	up, err := output.NewUploader(cfg)
	if err == nil {
		var keys []string
		keys, err = up.Upload(ctx, runID, files)
		if err == nil {
			logger.Info("reports uploaded", zap.String("bucket", cfg.Bucket), zap.Strings("keys", keys))
			return
		}
	}
	logger.Error("report upload failed", zap.String("endpoint", cfg.Endpoint), zap.Error(err))
}

// serveMetrics exposes the collector's Prometheus registry until stop is called.
func serveMetrics(addr string, collector *metrics.Collector, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	router := chi.NewRouter()
	router.Method(http.MethodGet, "/metrics", collector.Handler())
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving prometheus metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}, nil
}
