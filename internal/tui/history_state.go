package tui

import (
	"sync"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/studiowebux/swarmcli/internal/stresstest"
)

// HistoryState manages the run browser state with thread safety
type HistoryState struct {
	mu sync.RWMutex

	runs     []*stresstest.Run
	runIndex int
	detail   *stresstest.Run // Selected run with endpoint and user results

	// Viewports for split view
	listView   viewport.Model
	detailView viewport.Model

	focusedPane   string // "list" or "details"
	confirmDelete bool
}

// NewHistoryState creates a new history state
func NewHistoryState() *HistoryState {
	return &HistoryState{
		runs:        []*stresstest.Run{},
		focusedPane: "list",
		listView:    viewport.New(80, 20),
		detailView:  viewport.New(80, 20),
	}
}

// SetRuns sets the list of runs
func (s *HistoryState) SetRuns(runs []*stresstest.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = runs
	if s.runIndex >= len(runs) {
		s.runIndex = 0
	}
	s.detail = nil
}

// GetRuns returns the list of runs
func (s *HistoryState) GetRuns() []*stresstest.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}

// GetCurrentRun returns the currently selected run
func (s *HistoryState) GetCurrentRun() *stresstest.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runIndex < 0 || s.runIndex >= len(s.runs) {
		return nil
	}
	return s.runs[s.runIndex]
}

// NavigateRuns moves the run selection by delta
func (s *HistoryState) NavigateRuns(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.runs) == 0 {
		return
	}

	s.runIndex += delta

	// Wrap around
	if s.runIndex < 0 {
		s.runIndex = len(s.runs) - 1
	} else if s.runIndex >= len(s.runs) {
		s.runIndex = 0
	}
	s.detail = nil
}

// GetRunIndex returns the current run index
func (s *HistoryState) GetRunIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runIndex
}

// SetRunIndex sets the run index, clamped to the list
func (s *HistoryState) SetRunIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		s.runIndex = 0
		return
	}
	s.runIndex = max(0, min(idx, len(s.runs)-1))
	s.detail = nil
}

// RemoveRun drops a run from the list after it was deleted
func (s *HistoryState) RemoveRun(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, run := range s.runs {
		if run.ID != id {
			continue
		}
		s.runs = append(s.runs[:i:i], s.runs[i+1:]...)
		if s.runIndex >= len(s.runs) && s.runIndex > 0 {
			s.runIndex = len(s.runs) - 1
		}
		s.detail = nil
		return
	}
}

// SetDetail sets the fully loaded selected run
func (s *HistoryState) SetDetail(run *stresstest.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = run
}

// GetDetail returns the fully loaded selected run, nil until loaded
func (s *HistoryState) GetDetail() *stresstest.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detail
}

// GetListView returns the list viewport
func (s *HistoryState) GetListView() viewport.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listView
}

// SetListView sets the list viewport
func (s *HistoryState) SetListView(vp viewport.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listView = vp
}

// GetDetailView returns the detail viewport
func (s *HistoryState) GetDetailView() viewport.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detailView
}

// SetDetailView sets the detail viewport
func (s *HistoryState) SetDetailView(vp viewport.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailView = vp
}

// GetFocusedPane returns the focused pane
func (s *HistoryState) GetFocusedPane() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focusedPane
}

// ToggleFocus switches focus between list and details
func (s *HistoryState) ToggleFocus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focusedPane == "list" {
		s.focusedPane = "details"
	} else {
		s.focusedPane = "list"
	}
}

// GetConfirmDelete reports whether a delete is awaiting confirmation
func (s *HistoryState) GetConfirmDelete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmDelete
}

// SetConfirmDelete sets the delete confirmation flag
func (s *HistoryState) SetConfirmDelete(confirm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmDelete = confirm
}
