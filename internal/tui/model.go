package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/studiowebux/swarmcli/internal/stresstest"
	"github.com/studiowebux/swarmcli/internal/types"
)

type tickMsg time.Time

type testDoneMsg struct{}

// Monitor is the live view of a running test. It polls the test report on
// every tick and quits once the test has terminated.
type Monitor struct {
	handle   stresstest.TestHandle
	spinner  spinner.Model
	interval time.Duration
	report   types.Report

	width  int
	height int

	stopping  bool
	finishing bool
	done      bool
}

// NewMonitor creates a monitor for the given test
func NewMonitor(handle stresstest.TestHandle, interval time.Duration) Monitor {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleTitle

	return Monitor{
		handle:   handle,
		spinner:  s,
		interval: interval,
		report:   handle.Report(),
	}
}

// Init starts the spinner, the refresh tick and the completion watcher
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick(), waitForTest(m.handle))
}

func (m Monitor) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForTest(handle stresstest.TestHandle) tea.Cmd {
	return func() tea.Msg {
		<-handle.Done()
		return testDoneMsg{}
	}
}

// Update handles keys, ticks and test completion
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.stopping {
				m.stopping = true
				m.handle.Stop()
			}
		case "f":
			if !m.stopping && !m.finishing {
				m.finishing = true
				m.handle.Finish()
			}
		}
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.report = m.handle.Report()
		return m, m.tick()

	case testDoneMsg:
		m.done = true
		m.report = m.handle.Report()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the live statistics box
func (m Monitor) View() string {
	if m.done {
		return ""
	}

	r := m.report
	var content strings.Builder

	title := "Load Test - Running"
	switch {
	case m.stopping:
		title = "Load Test - Stopping"
	case m.finishing:
		title = "Load Test - Finishing"
	case r.Status == types.StatusCreated:
		title = "Load Test - Starting"
	}
	content.WriteString(m.spinner.View() + " " + styleTitle.Render(title) + "\n\n")

	content.WriteString(fmt.Sprintf("Host:    %s\n", r.Host))
	content.WriteString(fmt.Sprintf("Status:  %s\n", statusStyle(r.Status).Render(string(r.Status))))
	content.WriteString(fmt.Sprintf("Users:   %d (%d running)\n", r.UserCount, countRunning(r.Users)))

	elapsed := time.Duration(r.ElapsedMs) * time.Millisecond
	content.WriteString(fmt.Sprintf("Elapsed: %s\n\n", formatDuration(elapsed)))

	s := r.Results
	rps, fps := s.RequestsPerSecond, s.FailedPerSecond
	if secs := elapsed.Seconds(); secs > 0 {
		rps = float64(s.TotalRequests) / secs
		fps = float64(s.TotalFailed) / secs
	}

	content.WriteString(styleTitleFocused.Render("Statistics") + "\n")
	leftCol := []string{
		fmt.Sprintf("Requests:    %d", s.TotalRequests),
		fmt.Sprintf("Failed:      %d", s.TotalFailed),
		fmt.Sprintf("Conn Errors: %d", s.TotalConnectionErrors),
	}
	rightCol := []string{
		fmt.Sprintf("Avg:          %.0fms", s.AverageResponseTimeMs),
		fmt.Sprintf("Requests/sec: %.2f", rps),
		fmt.Sprintf("Failed/sec:   %.2f", fps),
	}
	for i := range leftCol {
		content.WriteString(fmt.Sprintf("%-25s", leftCol[i]) + rightCol[i] + "\n")
	}

	if len(r.Endpoints) > 0 {
		content.WriteString("\n" + styleTitleFocused.Render("Endpoints") + "\n")
		content.WriteString(renderEndpointTable(r.Endpoints, MonitorEndpointRows))
	}

	footer := "q: Stop | f: Finish gracefully"
	if m.stopping {
		footer = "Stopping test... please wait"
	} else if m.finishing {
		footer = "Waiting for users to complete their current request... q: Stop now"
	}
	content.WriteString("\n" + styleSubtle.Render(footer))

	modalWidth := m.width - ModalWidthMargin
	if modalWidth > ModalWidthMax || modalWidth <= 0 {
		modalWidth = ModalWidthMax
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorCyan).
		Padding(1, 2).
		Width(modalWidth).
		Render(content.String())

	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// Report returns the last report the monitor observed
func (m Monitor) Report() types.Report {
	return m.report
}

func countRunning(users []types.UserReport) int {
	n := 0
	for _, u := range users {
		if u.Status == types.StatusRunning {
			n++
		}
	}
	return n
}

// RunMonitor shows the live monitor until the test terminates or ctx is
// done. Leaving the monitor early stops the test.
func RunMonitor(ctx context.Context, handle stresstest.TestHandle, interval time.Duration, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(NewMonitor(handle, interval), opts...)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		handle.Stop()
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}
