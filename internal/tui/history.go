package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/studiowebux/swarmcli/internal/stresstest"
)

// RunStore is the run history the browser reads and deletes from
type RunStore interface {
	ListRuns(limit int) ([]*stresstest.Run, error)
	GetRun(id int64) (*stresstest.Run, error)
	DeleteRun(id int64) error
}

type runsLoadedMsg struct {
	runs []*stresstest.Run
	err  error
}

type runLoadedMsg struct {
	run *stresstest.Run
	err error
}

type runDeletedMsg struct {
	id  int64
	err error
}

// Browser is a split view over stored runs: the list on the left and the
// selected run's endpoint and user results on the right
type Browser struct {
	store  RunStore
	state  *HistoryState
	width  int
	height int
	err    error
}

// NewBrowser creates a run browser
func NewBrowser(store RunStore) Browser {
	return Browser{
		store: store,
		state: NewHistoryState(),
	}
}

// Init loads the run list
func (m Browser) Init() tea.Cmd {
	return m.loadRuns()
}

func (m Browser) loadRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.store.ListRuns(HistoryListLimit)
		return runsLoadedMsg{runs: runs, err: err}
	}
}

func (m Browser) loadSelected() tea.Cmd {
	run := m.state.GetCurrentRun()
	if run == nil {
		return nil
	}
	id := run.ID
	return func() tea.Msg {
		run, err := m.store.GetRun(id)
		return runLoadedMsg{run: run, err: err}
	}
}

func (m Browser) deleteSelected() tea.Cmd {
	run := m.state.GetCurrentRun()
	if run == nil {
		return nil
	}
	id := run.ID
	return func() tea.Msg {
		return runDeletedMsg{id: id, err: m.store.DeleteRun(id)}
	}
}

// Update handles navigation, deletion and loaded data
func (m Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case runsLoadedMsg:
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.state.SetRuns(msg.runs)
		return m, m.loadSelected()

	case runLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			if current := m.state.GetCurrentRun(); current != nil && current.ID == msg.run.ID {
				m.state.SetDetail(msg.run)
			}
		}
		return m, nil

	case runDeletedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.state.RemoveRun(msg.id)
		}
		return m, m.loadSelected()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Browser) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.state.GetConfirmDelete() {
		m.state.SetConfirmDelete(false)
		if key == "y" || key == "Y" {
			return m, m.deleteSelected()
		}
		return m, nil
	}

	switch key {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.state.ToggleFocus()
	case "d":
		if m.state.GetCurrentRun() != nil {
			m.state.SetConfirmDelete(true)
		}
	case "r":
		return m, m.loadRuns()
	}

	if m.state.GetFocusedPane() == "details" {
		detailView := m.state.GetDetailView()
		switch key {
		case "up", "k":
			detailView.ScrollUp(1)
		case "down", "j":
			detailView.ScrollDown(1)
		case "g":
			detailView.GotoTop()
		case "G":
			detailView.GotoBottom()
		}
		m.state.SetDetailView(detailView)
		return m, nil
	}

	switch key {
	case "up", "k":
		m.state.NavigateRuns(-1)
		return m, m.loadSelected()
	case "down", "j":
		m.state.NavigateRuns(1)
		return m, m.loadSelected()
	case "g":
		m.state.SetRunIndex(0)
		return m, m.loadSelected()
	case "G":
		m.state.SetRunIndex(len(m.state.GetRuns()) - 1)
		return m, m.loadSelected()
	}

	return m, nil
}

// View renders the split view
func (m Browser) View() string {
	if m.width == 0 {
		return ""
	}

	modalWidth := m.width - ModalWidthMargin
	modalHeight := m.height - ModalHeightMargin
	paneHeight := modalHeight - SplitPaneOverhead
	listWidth, detailWidth := splitWidths(modalWidth, SplitViewNarrow)

	listBorderColor := colorGray
	detailBorderColor := colorGray
	leftIsFocused := m.state.GetFocusedPane() == "list"
	if leftIsFocused {
		listBorderColor = colorCyan
	} else {
		detailBorderColor = colorCyan
	}

	listView := m.state.GetListView()
	listView.Width = listWidth - 4
	listView.Height = paneHeight - 2
	listView.SetContent(m.renderRunList())
	listView.SetYOffset(m.listOffset(listView.Height))
	m.state.SetListView(listView)

	detailView := m.state.GetDetailView()
	detailView.Width = detailWidth - 4
	detailView.Height = paneHeight - 2
	detailView.SetContent(m.renderRunDetail())
	m.state.SetDetailView(detailView)

	footer := "TAB: Switch Focus | ↑/↓ j/k: Navigate | g/G: Top/Bottom | d: Delete | r: Reload | ESC/q: Close"
	if m.state.GetConfirmDelete() {
		footer = styleWarning.Render("Delete selected run? (y/n)")
	} else if m.err != nil {
		footer = styleError.Render("Error: "+m.err.Error()) + "  " + footer
	}

	cfg := SplitPaneConfig{
		ModalWidth:       modalWidth,
		ModalHeight:      modalHeight,
		IsSplitView:      true,
		LeftTitle:        "Runs",
		LeftContent:      listView.View(),
		LeftBorderColor:  listBorderColor,
		LeftIsFocused:    leftIsFocused,
		RightTitle:       "Details",
		RightContent:     detailView.View(),
		RightBorderColor: detailBorderColor,
		RightIsFocused:   !leftIsFocused,
		Footer:           footer,
		LeftWidthRatio:   SplitViewNarrow,
	}

	return renderSplitPaneModal(cfg, m.width, m.height)
}

// listOffset keeps the selected run near the middle of the list pane
func (m Browser) listOffset(viewportHeight int) int {
	offset := m.state.GetRunIndex()*HistoryItemLines - viewportHeight/2
	if offset < 0 {
		return 0
	}
	return offset
}

func (m Browser) renderRunList() string {
	runs := m.state.GetRuns()
	if len(runs) == 0 {
		return "No load test runs found.\n\nRun a test with --save to record it."
	}

	var b strings.Builder
	for i, run := range runs {
		name := run.Name
		if name == "" {
			name = run.Host
		}

		line := fmt.Sprintf("#%d %s %s\n  %s | %d users | %d reqs",
			run.ID,
			statusStyle(run.Status).Render(string(run.Status)),
			name,
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			run.UserCount,
			run.Results.TotalRequests)

		if i == m.state.GetRunIndex() {
			line = styleSelected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m Browser) renderRunDetail() string {
	run := m.state.GetDetail()
	if run == nil {
		if m.state.GetCurrentRun() == nil {
			return "No run selected"
		}
		return styleSubtle.Render("Loading...")
	}

	var b strings.Builder
	b.WriteString(styleSubtle.Render(fmt.Sprintf("Run %s | source %s", run.RunID, run.Source)) + "\n")
	if run.EndedAt != nil {
		b.WriteString(styleSubtle.Render("Ended "+run.EndedAt.Local().Format(time.DateTime)) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(RenderReport(run.Report()))
	return b.String()
}

// RunBrowser shows the run browser until the user quits
func RunBrowser(store RunStore, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	if _, err := tea.NewProgram(NewBrowser(store), opts...).Run(); err != nil {
		return fmt.Errorf("history browser failed: %w", err)
	}
	return nil
}
