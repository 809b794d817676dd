package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/swarmcli/internal/config"
	"github.com/studiowebux/swarmcli/internal/filter"
	"github.com/studiowebux/swarmcli/internal/logging"
	"github.com/studiowebux/swarmcli/internal/stresstest"
	"github.com/studiowebux/swarmcli/internal/tui"
	"github.com/studiowebux/swarmcli/internal/types"
)

// Unset marks an override flag that was not given
const Unset = -1

// ProgressInterval is how often a running test logs its progress
const ProgressInterval = 2 * time.Second

// isInteractive checks if stdin is a terminal (not piped)
func isInteractive() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// RunOptions contains options for running a test file locally
type RunOptions struct {
	FilePath     string
	Users        int           // overrides user_count unless Unset
	RunTime      time.Duration // overrides run_time_sec unless negative
	OutputFormat string        // text, json, yaml
	Filter       string        // JMESPath expression narrowing the report
	Query        string        // JMESPath query or $(bash command) applied to the report
	Watch        bool          // show the live monitor
	Save         bool          // store the report in the run history
	LogFile      string        // buffered log sink, defaults to config.LogPath
	Verbose      bool

	Stdout io.Writer
	Stderr io.Writer
}

func (o *RunOptions) query() filter.Query {
	return filter.Query{Filter: o.Filter, Select: o.Query}
}

func (o *RunOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.LogFile == "" {
		o.LogFile = config.LogPath
	}
}

// Run executes a test file until its run time elapses or the process is
// interrupted, then prints the report
func Run(ctx context.Context, opts RunOptions) error {
	opts.defaults()

	query := opts.query()
	if err := query.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	filePath := opts.FilePath
	if filePath == "" {
		if !isInteractive() {
			return fmt.Errorf("no test file given")
		}
		selected, err := selectTestFile(".")
		if err != nil {
			return err
		}
		filePath = selected
	}

	testConfig, err := config.LoadTestFile(filePath)
	if err != nil {
		return err
	}
	if err := applyOverrides(testConfig, opts.Users, opts.RunTime); err != nil {
		return err
	}

	logger := logging.New(opts.Verbose)
	logger.SetOutput(opts.Stderr)

	buffered := logging.NewBufferedLogger(opts.LogFile)
	if opts.Verbose && !opts.Watch {
		buffered.SetEcho(logger)
	}
	flushCtx, stopFlush := context.WithCancel(ctx)
	defer stopFlush()
	buffered.Start(flushCtx, logging.DefaultFlushInterval)
	defer func() {
		if err := buffered.FlushBuffer(); err != nil {
			fmt.Fprintf(opts.Stderr, "Warning: failed to flush log: %v\n", err)
		}
	}()

	test, err := stresstest.NewTest(testConfig, buffered)
	if err != nil {
		return err
	}
	if !opts.Watch {
		test.SetObserver(ProgressInterval, progressLogger(logger))
	}

	logger.WithFields(logrus.Fields{
		"file":  filePath,
		"users": testConfig.UserCount,
		"host":  testConfig.Host,
	}).Info("Starting test")

	if opts.Watch {
		errCh := make(chan error, 1)
		go func() {
			errCh <- test.Run(ctx)
		}()
		if err := tui.RunMonitor(ctx, test.Handle(), tui.DefaultRefreshInterval); err != nil {
			test.Stop()
			<-errCh
			return err
		}
		if err := <-errCh; err != nil {
			return err
		}
	} else if err := test.Run(ctx); err != nil {
		return err
	}

	report := test.Report()

	if opts.Save {
		run, err := saveReport(report, "local")
		if err != nil {
			fmt.Fprintf(opts.Stderr, "Warning: failed to save run: %v\n", err)
		} else {
			fmt.Fprintf(opts.Stderr, "Saved run #%d (%s)\n", run.ID, run.RunID)
		}
	}

	output, err := formatReport(report, opts.OutputFormat, query)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if isTerminal(opts.Stdout) {
		output = highlight(output, opts.OutputFormat, query)
	}
	fmt.Fprint(opts.Stdout, output)

	return nil
}

// isTerminal reports whether w is a character device
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// highlight colors json and yaml output for the terminal. Text output is
// already styled and is returned unchanged, as is anything chroma rejects.
func highlight(output, format string, query filter.Query) string {
	lexer := format
	if !query.IsZero() {
		if !query.IsJSON() {
			return output
		}
		lexer = "json"
	}
	if lexer != "json" && lexer != "yaml" {
		return output
	}

	var b strings.Builder
	if err := quick.Highlight(&b, output, lexer, "terminal256", "monokai"); err != nil {
		return output
	}
	return b.String()
}

// applyOverrides applies the -u and -t flags to a loaded test definition
func applyOverrides(cfg *types.TestConfig, users int, runTime time.Duration) error {
	if users != Unset {
		if users < 0 {
			return fmt.Errorf("user count cannot be negative")
		}
		cfg.UserCount = users
	}
	if runTime >= 0 {
		if runTime > 0 && runTime < time.Second {
			return fmt.Errorf("run time must be at least 1s, got %s", runTime)
		}
		cfg.RunTimeSec = int(runTime / time.Second)
	}
	return nil
}

// progressLogger logs a one-line summary on every observation tick
func progressLogger(logger *logrus.Logger) stresstest.Observer {
	return func(report types.Report) {
		if report.Status.IsTerminal() {
			return
		}
		logger.WithFields(logrus.Fields{
			"requests":    report.Results.TotalRequests,
			"failed":      report.Results.TotalFailed,
			"conn_errors": report.Results.TotalConnectionErrors,
			"rps":         fmt.Sprintf("%.2f", report.Results.RequestsPerSecond),
			"avg_ms":      fmt.Sprintf("%.0f", report.Results.AverageResponseTimeMs),
		}).Info("Progress")
	}
}

// saveReport stores a report in the run history database
func saveReport(report types.Report, source string) (*stresstest.Run, error) {
	mgr, err := stresstest.NewManager(config.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer mgr.Close()
	return mgr.SaveReport(report, source)
}

// formatReport formats a report based on the output format. A query is
// applied to the JSON form of the report and its result printed as is.
func formatReport(report types.Report, format string, query filter.Query) (string, error) {
	if !query.IsZero() {
		out, err := query.Apply(report)
		if err != nil {
			return "", err
		}
		return out + "\n", nil
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(report)
		if err != nil {
			return "", err
		}
		return string(data), nil

	case "", "text":
		return tui.RenderReport(report), nil

	default:
		return "", fmt.Errorf("unsupported output format: %s (use text, json, or yaml)", format)
	}
}

// findTestFiles lists the test definitions in dir
func findTestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json", ".jsonc":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
