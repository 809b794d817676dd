package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// SplitPaneConfig defines the configuration for a generic split-pane modal
type SplitPaneConfig struct {
	// Modal dimensions
	ModalWidth  int
	ModalHeight int

	// Split view control
	IsSplitView bool // If false, shows only left pane at full width

	// Left pane
	LeftTitle       string
	LeftContent     string
	LeftBorderColor lipgloss.AdaptiveColor
	LeftIsFocused   bool

	// Right pane (only used if IsSplitView is true)
	RightTitle       string
	RightContent     string
	RightBorderColor lipgloss.AdaptiveColor
	RightIsFocused   bool

	// Footer
	Footer string

	// Width ratio for split view (0.0 to 1.0, default 0.5 for equal split)
	// Left pane gets this ratio, right pane gets the remainder
	LeftWidthRatio float64
}

// splitWidths returns the left and right pane widths for a modal width
func splitWidths(modalWidth int, ratio float64) (int, int) {
	if ratio <= 0 || ratio >= 1 {
		ratio = SplitViewEqual
	}
	left := int(float64(modalWidth-SplitPaneBorderWidth) * ratio)
	return left, modalWidth - left - SplitPaneBorderWidth
}

// renderSplitPaneModal renders a generic split-pane modal layout
func renderSplitPaneModal(cfg SplitPaneConfig, totalWidth, totalHeight int) string {
	paneHeight := cfg.ModalHeight - SplitPaneOverhead

	var mainView string

	if cfg.IsSplitView {
		listWidth, previewWidth := splitWidths(cfg.ModalWidth, cfg.LeftWidthRatio)

		// Determine title styles based on focus
		leftTitleStyle := styleTitleUnfocused
		rightTitleStyle := styleTitleUnfocused
		if cfg.LeftIsFocused {
			leftTitleStyle = styleTitleFocused
		}
		if cfg.RightIsFocused {
			rightTitleStyle = styleTitleFocused
		}

		leftPane := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cfg.LeftBorderColor).
			Width(listWidth).
			Height(paneHeight).
			Padding(0, 1).
			Render(leftTitleStyle.Render(cfg.LeftTitle) + "\n" + cfg.LeftContent)

		rightPane := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cfg.RightBorderColor).
			Width(previewWidth).
			Height(paneHeight).
			Padding(0, 1).
			Render(rightTitleStyle.Render(cfg.RightTitle) + "\n" + cfg.RightContent)

		mainView = lipgloss.JoinHorizontal(
			lipgloss.Top,
			leftPane,
			rightPane,
		)
	} else {
		// Single pane mode: expand left pane to full width
		leftTitleStyle := styleTitleFocused
		if !cfg.LeftIsFocused {
			leftTitleStyle = styleTitleUnfocused
		}

		mainView = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cfg.LeftBorderColor).
			Width(cfg.ModalWidth).
			Height(paneHeight).
			Padding(0, 1).
			Render(leftTitleStyle.Render(cfg.LeftTitle) + "\n" + cfg.LeftContent)
	}

	footer := styleSubtle.Render(cfg.Footer)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		mainView,
		"\n"+footer,
	)

	return lipgloss.Place(
		totalWidth,
		totalHeight,
		lipgloss.Center,
		lipgloss.Center,
		content,
	)
}
