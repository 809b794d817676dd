package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiowebux/swarmcli/internal/cli"
	"github.com/studiowebux/swarmcli/internal/config"
	"github.com/studiowebux/swarmcli/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swarmcli",
	Short: "swarmcli - distributed HTTP load testing",
	Long: `swarmcli spawns virtual users that hit HTTP endpoints of a target host,
locally or across workers driven by a master.

Examples:
  swarmcli run load.yaml                     # Run a test file locally
  swarmcli run load.yaml -u 50 -t 2m --watch # Override users and run time, show live stats
  swarmcli run load.yaml -o json -q 'results.requests_per_second'
  swarmcli master --listen :9000             # Start the master
  swarmcli worker --master ws://host:9000/ws # Connect a worker
  swarmcli mock mock.yaml                    # Serve a mock target
  swarmcli history list                      # Show recorded runs`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(flagEnvFile...); err != nil {
			return err
		}
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [test-file]",
	Short: "Run a load test file locally",
	Long: `Run a load test file (.yaml, .yml, .json, .jsonc) until its run time
elapses or the process is interrupted, then print the report.

Without a file, an interactive picker lists the test files in the current
directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{
			Users:        cli.Unset,
			RunTime:      -1,
			OutputFormat: flagOutput,
			Filter:       flagFilter,
			Query:        flagQuery,
			Watch:        flagWatch,
			Save:         flagSave,
			LogFile:      flagLogFile,
			Verbose:      flagVerbose,
		}
		if len(args) > 0 {
			opts.FilePath = args[0]
		}
		if cmd.Flags().Changed("users") {
			opts.Users = flagUsers
		}
		if cmd.Flags().Changed("time") {
			opts.RunTime = flagRunTime
		}
		return cli.Run(cmd.Context(), opts)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Connect to a master and run the tests it sends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		masterURL := flagMaster
		if !cmd.Flags().Changed("master") {
			masterURL = config.Getenv(config.EnvMaster, flagMaster)
		}
		return cli.RunWorker(cmd.Context(), cli.WorkerOptions{
			MasterURL:   masterURL,
			MetricsAddr: flagMetricsAddr,
			Save:        flagSave,
			LogFile:     flagLogFile,
			Verbose:     flagVerbose,
		})
	},
}

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Serve the worker hub and the control API",
	Long: `Serve the WebSocket hub workers connect to (/ws) and the control API:

  POST /api/tests          create a test (body: test definition)
  POST /api/tests/start    start the created test on every worker
  POST /api/tests/stop     stop the test on every worker
  POST /api/tests/finish   finish the test on every worker
  GET  /api/workers        connected workers
  GET  /api/reports        per-worker and merged reports
  GET  /metrics            prometheus metrics of the merged report`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen := flagListen
		if !cmd.Flags().Changed("listen") {
			listen = config.Getenv(config.EnvListen, flagListen)
		}
		return cli.RunMaster(cmd.Context(), cli.MasterOptions{
			Listen:  listen,
			Verbose: flagVerbose,
		})
	},
}

var mockCmd = &cobra.Command{
	Use:   "mock <config-file>",
	Short: "Serve a mock HTTP target from a route file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RunMock(cmd.Context(), args[0], flagVerbose)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListRuns(cli.HistoryOptions{Limit: flagLimit})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		return cli.ShowRun(id, cli.HistoryOptions{OutputFormat: flagOutput, Filter: flagFilter, Query: flagQuery})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		return cli.DeleteRun(id, cli.HistoryOptions{Force: flagForce})
	},
}

var historyBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse recorded runs interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.BrowseRuns()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and check for updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("swarmcli %s\n", version.Version)
		if !flagCheck {
			return nil
		}

		update, err := version.NewChecker().Check(cmd.Context(), version.Version)
		if err != nil {
			return fmt.Errorf("update check failed: %w", err)
		}
		if update.Available {
			fmt.Printf("A new version is available: %s\n%s\n", update.Latest, update.URL)
		} else {
			fmt.Println("You are running the latest version")
		}
		return nil
	},
}

// Global flags
var (
	flagEnvFile []string
	flagVerbose bool
	flagLogFile string
)

// Flags for run and history show
var (
	flagUsers   int
	flagRunTime time.Duration
	flagOutput  string
	flagFilter  string
	flagQuery   string
	flagWatch   bool
	flagSave    bool
)

// Flags for worker and master
var (
	flagMaster      string
	flagMetricsAddr string
	flagListen      string
)

// Flags for history and version
var (
	flagLimit int
	flagForce bool
	flagCheck bool
)

func init() {
	rootCmd.PersistentFlags().StringArrayVar(&flagEnvFile, "env-file", nil, "Load environment variables from file (default .env), can be repeated")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging")

	// Run command flags
	runCmd.Flags().IntVarP(&flagUsers, "users", "u", 0, "Override the number of users")
	runCmd.Flags().DurationVarP(&flagRunTime, "time", "t", 0, "Override the run time (e.g. 30s, 5m, 0 = until stopped)")
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", "text", "Output format (text/json/yaml)")
	runCmd.Flags().StringVarP(&flagFilter, "filter", "f", "", "JMESPath expression narrowing the JSON report before --query")
	runCmd.Flags().StringVarP(&flagQuery, "query", "q", "", "JMESPath query or $(command) applied to the JSON report")
	runCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Show live statistics while the test runs")
	runCmd.Flags().BoolVarP(&flagSave, "save", "s", false, "Record the run in the history database")
	runCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Request log file (default ~/.swarmcli/swarmcli.log)")

	// Worker command flags
	workerCmd.Flags().StringVarP(&flagMaster, "master", "m", "ws://localhost:9000/ws", "Master WebSocket URL (env SWARMCLI_MASTER)")
	workerCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9101)")
	workerCmd.Flags().BoolVarP(&flagSave, "save", "s", false, "Record every finished test in the history database")
	workerCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Request log file (default ~/.swarmcli/swarmcli.log)")

	// Master command flags
	masterCmd.Flags().StringVarP(&flagListen, "listen", "l", ":9000", "Listen address (env SWARMCLI_LISTEN)")

	// History command flags
	historyListCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Maximum number of runs (0 = all)")
	historyShowCmd.Flags().StringVarP(&flagOutput, "output", "o", "text", "Output format (text/json/yaml)")
	historyShowCmd.Flags().StringVarP(&flagFilter, "filter", "f", "", "JMESPath expression narrowing the JSON report before --query")
	historyShowCmd.Flags().StringVarP(&flagQuery, "query", "q", "", "JMESPath query or $(command) applied to the JSON report")
	historyDeleteCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "Delete without confirmation")

	versionCmd.Flags().BoolVar(&flagCheck, "check", false, "Check for a newer release")

	// Add subcommands
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyBrowseCmd)
	rootCmd.AddCommand(runCmd, workerCmd, masterCmd, mockCmd, historyCmd, versionCmd)
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id: %s", arg)
	}
	return id, nil
}
