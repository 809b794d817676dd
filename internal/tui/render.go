package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/studiowebux/swarmcli/internal/types"
)

// Adaptive color definitions for light/dark terminal support
var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"} // Dark green / Bright green
	colorRed    = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"} // Dark red / Bright red
	colorYellow = lipgloss.AdaptiveColor{Light: "#b8860b", Dark: "#ffff00"} // Dark goldenrod / Yellow
	colorGray   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"} // Dark gray / Light gray
	colorCyan   = lipgloss.AdaptiveColor{Light: "#008b8b", Dark: "#00ffff"} // Dark cyan / Cyan
)

// Style definitions
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	styleTitleFocused = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorCyan)

	styleTitleUnfocused = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorGray)

	styleSelected = lipgloss.NewStyle().
			Background(lipgloss.AdaptiveColor{Light: "#d3d3d3", Dark: "#3a3a3a"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"})

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorGreen)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorYellow)

	styleSubtle = lipgloss.NewStyle().
			Foreground(colorGray)
)

// statusStyle picks a color for a lifecycle status
func statusStyle(status types.Status) lipgloss.Style {
	switch status {
	case types.StatusFinished:
		return styleSuccess
	case types.StatusStopped:
		return styleError
	case types.StatusRunning:
		return styleWarning
	default:
		return styleSubtle
	}
}

// RenderReport renders a finished report as styled text for the terminal
func RenderReport(report types.Report) string {
	var b strings.Builder

	title := report.Name
	if title == "" {
		title = "Load Test"
	}
	b.WriteString(styleTitle.Render(title) + "\n\n")

	b.WriteString(fmt.Sprintf("Host:       %s\n", report.Host))
	b.WriteString(fmt.Sprintf("Status:     %s\n", statusStyle(report.Status).Render(string(report.Status))))
	b.WriteString(fmt.Sprintf("Users:      %d\n", report.UserCount))
	if report.StartedAt != nil {
		b.WriteString(fmt.Sprintf("Started:    %s\n", report.StartedAt.Format("2006-01-02 15:04:05")))
	}
	b.WriteString(fmt.Sprintf("Duration:   %s\n", formatDuration(time.Duration(report.ElapsedMs)*time.Millisecond)))
	b.WriteString("\n")

	b.WriteString(styleTitle.Render("Requests") + "\n")
	writeSummary(&b, report.Results)

	if len(report.Endpoints) > 0 {
		b.WriteString("\n" + styleTitle.Render("Endpoints") + "\n")
		b.WriteString(renderEndpointTable(report.Endpoints, len(report.Endpoints)))
	}

	if len(report.Users) > 0 {
		b.WriteString("\n" + styleTitle.Render("Users") + "\n")
		for _, u := range report.Users {
			b.WriteString(fmt.Sprintf("%s  %s  %d reqs  %d failed  %.0fms avg\n",
				styleSubtle.Render(shortID(u.ID)),
				statusStyle(u.Status).Render(fmt.Sprintf("%-8s", u.Status)),
				u.Results.TotalRequests,
				u.Results.TotalFailed,
				u.Results.AverageResponseTimeMs))
		}
	}

	return b.String()
}

// writeSummary writes the counters of one results summary
func writeSummary(b *strings.Builder, s types.ResultsSummary) {
	b.WriteString(fmt.Sprintf("Total:        %d\n", s.TotalRequests))

	failed := fmt.Sprintf("%d", s.TotalFailed)
	if s.TotalFailed > 0 {
		failed = styleError.Render(failed)
	}
	b.WriteString(fmt.Sprintf("Failed:       %s\n", failed))

	connErrors := fmt.Sprintf("%d", s.TotalConnectionErrors)
	if s.TotalConnectionErrors > 0 {
		connErrors = styleWarning.Render(connErrors)
	}
	b.WriteString(fmt.Sprintf("Conn Errors:  %s\n", connErrors))

	if s.TotalRequests > 0 {
		rate := float64(s.TotalRequests-s.TotalFailed) / float64(s.TotalRequests) * 100
		b.WriteString(fmt.Sprintf("Success Rate: %.1f%%\n", rate))
	}
	b.WriteString(fmt.Sprintf("Average:      %.0fms\n", s.AverageResponseTimeMs))
	b.WriteString(fmt.Sprintf("Requests/sec: %.2f\n", s.RequestsPerSecond))
	b.WriteString(fmt.Sprintf("Failed/sec:   %.2f\n", s.FailedPerSecond))
}

// renderEndpointTable renders one line per endpoint, up to limit lines
func renderEndpointTable(endpoints []types.EndpointReport, limit int) string {
	var b strings.Builder

	for i, ep := range endpoints {
		if i == limit {
			b.WriteString(styleSubtle.Render(fmt.Sprintf("... %d more", len(endpoints)-limit)) + "\n")
			break
		}
		s := ep.Results
		b.WriteString(fmt.Sprintf("%-6s %-30s %6d reqs %5d failed %6.0fms %8.2f/s\n",
			ep.Method, truncate(ep.URL, 30), s.TotalRequests, s.TotalFailed, s.AverageResponseTimeMs, s.RequestsPerSecond))
	}

	return b.String()
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
