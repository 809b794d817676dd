package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studiowebux/swarmcli/internal/config"
	"github.com/studiowebux/swarmcli/internal/logging"
	"github.com/studiowebux/swarmcli/internal/master"
	"github.com/studiowebux/swarmcli/internal/metrics"
	"github.com/studiowebux/swarmcli/internal/mock"
	"github.com/studiowebux/swarmcli/internal/stresstest"
	"github.com/studiowebux/swarmcli/internal/worker"
)

// MetricsInterval is how often a worker refreshes its metrics while a test runs
const MetricsInterval = time.Second

// WorkerOptions contains options for running a worker
type WorkerOptions struct {
	MasterURL   string
	MetricsAddr string // serve /metrics on this address when set
	Save        bool   // store every finished test in the run history
	LogFile     string
	Verbose     bool
}

// RunWorker connects to a master and runs the tests it sends until the
// connection ends or the process is interrupted
func RunWorker(ctx context.Context, opts WorkerOptions) error {
	if opts.MasterURL == "" {
		return fmt.Errorf("master url is required (--master or %s)", config.EnvMaster)
	}
	if opts.LogFile == "" {
		opts.LogFile = config.LogPath
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(opts.Verbose)

	buffered := logging.NewBufferedLogger(opts.LogFile)
	if opts.Verbose {
		buffered.SetEcho(logger)
	}
	buffered.Start(ctx, logging.DefaultFlushInterval)

	workerOpts := worker.Options{
		MasterURL: opts.MasterURL,
		Logger:    buffered,
	}

	if opts.MetricsAddr != "" {
		collector := metrics.New()
		workerOpts.Observer = collector.Observe
		workerOpts.ObserveInterval = MetricsInterval

		shutdown, err := serveMetrics(opts.MetricsAddr, collector)
		if err != nil {
			return err
		}
		defer shutdown()
		logger.WithField("addr", opts.MetricsAddr).Info("Serving metrics")
	}

	if opts.Save {
		mgr, err := stresstest.NewManager(config.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer mgr.Close()
		workerOpts.Recorder = mgr
	}

	w := worker.New(workerOpts)
	logger.WithFields(logrus.Fields{"master": opts.MasterURL, "worker": w.ID()}).Info("Connecting to master")

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// serveMetrics serves the collector on addr/metrics in the background
func serveMetrics(addr string, collector *metrics.Collector) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", collector.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	// Surface bind errors before the worker connects
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return nil, fmt.Errorf("failed to serve metrics on %s: %w", addr, err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), master.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

// MasterOptions contains options for running the master
type MasterOptions struct {
	Listen  string
	Verbose bool
}

// RunMaster serves the worker hub and control API until interrupted
func RunMaster(ctx context.Context, opts MasterOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := master.New(logging.New(opts.Verbose))
	return m.ListenAndServe(ctx, opts.Listen)
}

// RunMock serves the mock target described by configPath until interrupted
func RunMock(ctx context.Context, configPath string, verbose bool) error {
	mockConfig, err := mock.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(verbose || mockConfig.Logging)

	server, err := mock.NewServer(mockConfig, filepath.Dir(configPath), logger)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	for _, stat := range server.Stats() {
		logger.WithFields(logrus.Fields{
			"route":    stat.Route,
			"hits":     stat.Hits,
			"failures": stat.Failures,
		}).Info("Route summary")
	}
	if n := server.Unmatched(); n > 0 {
		logger.WithField("requests", n).Warn("Unmatched requests")
	}

	return server.Stop()
}
