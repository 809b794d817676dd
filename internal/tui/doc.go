/*
Package tui implements the terminal views of swarmcli.

# Architecture

Both views follow the Bubble Tea framework's Model-Update-View pattern:
  - Monitor: live statistics of a running test (run --watch)
  - Browser: split view over stored runs (history browse)

# Monitor

The monitor polls TestHandle.Report on a tick and renders totals and
per-endpoint results. It never owns the test: q stops it, f asks it to
finish gracefully, and the program quits once the test's Done channel is
closed.

# State Management

The browser keeps its selection and viewports in HistoryState, which uses
sync.RWMutex like the other state objects so commands running on Bubble
Tea goroutines can read it.

# Rendering

RenderReport is shared with the run command's text output so a finished
test looks the same in the terminal and in the browser.
*/
package tui
