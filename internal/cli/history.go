package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/studiowebux/swarmcli/internal/config"
	"github.com/studiowebux/swarmcli/internal/filter"
	"github.com/studiowebux/swarmcli/internal/stresstest"
	"github.com/studiowebux/swarmcli/internal/tui"
)

// HistoryOptions contains options for the history commands
type HistoryOptions struct {
	Limit        int
	OutputFormat string
	Filter       string
	Query        string
	Force        bool // skip the delete confirmation

	Stdin  io.Reader
	Stdout io.Writer
}

func (o *HistoryOptions) defaults() {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
}

func openHistory() (*stresstest.Manager, error) {
	mgr, err := stresstest.NewManager(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return mgr, nil
}

// ListRuns prints the most recent runs as a table
func ListRuns(opts HistoryOptions) error {
	opts.defaults()

	mgr, err := openHistory()
	if err != nil {
		return err
	}
	defer mgr.Close()

	runs, err := mgr.ListRuns(opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(opts.Stdout, "No runs recorded yet. Use --save to record a run.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "CREATED", "STATUS", "SOURCE", "USERS", "REQUESTS", "FAILED", "AVG MS", "RPS", "NAME")
	for _, run := range runs {
		name := run.Name
		if name == "" {
			name = run.Host
		}
		t.Row(
			strconv.FormatInt(run.ID, 10),
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			string(run.Status),
			run.Source,
			strconv.Itoa(run.UserCount),
			strconv.FormatInt(run.Results.TotalRequests, 10),
			strconv.FormatInt(run.Results.TotalFailed, 10),
			fmt.Sprintf("%.0f", run.Results.AverageResponseTimeMs),
			fmt.Sprintf("%.2f", run.Results.RequestsPerSecond),
			name,
		)
	}

	fmt.Fprintln(opts.Stdout, t.Render())
	return nil
}

// ShowRun prints one stored run in the requested format
func ShowRun(id int64, opts HistoryOptions) error {
	opts.defaults()

	query := filter.Query{Filter: opts.Filter, Select: opts.Query}
	if err := query.Validate(); err != nil {
		return err
	}

	mgr, err := openHistory()
	if err != nil {
		return err
	}
	defer mgr.Close()

	run, err := mgr.GetRun(id)
	if err != nil {
		return err
	}

	output, err := formatReport(run.Report(), opts.OutputFormat, query)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if isTerminal(opts.Stdout) {
		output = highlight(output, opts.OutputFormat, query)
	}
	fmt.Fprint(opts.Stdout, output)
	return nil
}

// DeleteRun deletes a stored run after confirmation
func DeleteRun(id int64, opts HistoryOptions) error {
	opts.defaults()

	mgr, err := openHistory()
	if err != nil {
		return err
	}
	defer mgr.Close()

	if _, err := mgr.GetRun(id); err != nil {
		return err
	}

	if !opts.Force && !promptConfirm(opts.Stdin, opts.Stdout, fmt.Sprintf("Delete run #%d?", id)) {
		fmt.Fprintln(opts.Stdout, "Cancelled")
		return nil
	}

	if err := mgr.DeleteRun(id); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "Deleted run #%d\n", id)
	return nil
}

// BrowseRuns opens the interactive run browser
func BrowseRuns() error {
	mgr, err := openHistory()
	if err != nil {
		return err
	}
	defer mgr.Close()

	return tui.RunBrowser(mgr)
}
