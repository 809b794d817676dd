package tui

import "time"

// UI Layout Constants
// These constants define spacing, margins, and dimensions for the TUI layout

const (
	// Modal Dimensions - Standard margins for modal dialogs
	ModalWidthMargin  = 6  // Standard horizontal margin (m.width - 6)
	ModalHeightMargin = 3  // Standard vertical margin (m.height - 3)
	ModalWidthMax     = 90 // Widest the live monitor box grows

	// Split View Ratios
	SplitViewEqual  = 0.5 // Equal 50/50 split for split-pane modals
	SplitViewNarrow = 0.4 // Run list gets 40%, details get 60%

	// Split Pane Layout
	SplitPaneBorderWidth = 3 // Border width between split panes
	SplitPaneOverhead    = 4 // Borders and padding inside a pane

	// History
	HistoryListLimit = 200 // Most recent runs loaded into the browser
	HistoryItemLines = 2   // Lines per run in the list pane

	// Monitor
	DefaultRefreshInterval = 500 * time.Millisecond // Report polling interval
	MonitorEndpointRows    = 10                     // Endpoints shown before truncating
)
