package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwa-utils/mwapipe/internal/pipeline"
	"github.com/mwa-utils/mwapipe/internal/report"
)

// ViewState is the screen the report viewer is showing.
type ViewState int

// View states.
const (
	ViewStateList ViewState = iota
	ViewStateDetail
	ViewStateQuitting
)

const (
	defaultTableHeight = 20
	minTableHeight     = 5
	// title, blank line, status line and help footer.
	chromeHeight = 5
)

// statusFilters is the cycle order of the f key. Empty means all batches.
//
//nolint:gochecknoglobals // Fixed lookup table.
var statusFilters = []string{
	"",
	pipeline.BatchFailed,
	pipeline.BatchNotAttempted,
	pipeline.BatchCompleted,
	pipeline.BatchSkipped,
}

// ReportModel browses the batches of a run report.
//
//nolint:recvcheck // Bubble Tea requires value receivers for Init/Update/View.
type ReportModel struct {
	report *report.Report
	rows   []pipeline.BatchResult

	table    table.Model
	state    ViewState
	filter   int
	selected int

	width  int
	height int
}

// NewReportModel builds a viewer for r.
func NewReportModel(r *report.Report) ReportModel {
	m := ReportModel{
		report: r,
		height: defaultTableHeight + chromeHeight,
	}
	m.applyFilter()
	return m
}

// Init implements tea.Model.
func (m ReportModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if winMsg, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = winMsg.Width
		m.height = winMsg.Height
		m.table.SetHeight(m.tableHeight())
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.state {
	case ViewStateList:
		return m.handleListKeypress(keyMsg)
	case ViewStateDetail:
		return m.handleDetailKeypress(keyMsg)
	default:
		return m, nil
	}
}

func (m ReportModel) handleListKeypress(keyMsg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch keyMsg.String() {
	case keyQuit, keyCtrlC:
		m.state = ViewStateQuitting
		return m, tea.Quit
	case keyEnter:
		if c := m.table.Cursor(); c >= 0 && c < len(m.rows) {
			m.selected = c
			m.state = ViewStateDetail
		}
		return m, nil
	case keyFilter:
		m.filter = (m.filter + 1) % len(statusFilters)
		m.applyFilter()
		return m, nil
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(keyMsg)
		return m, cmd
	}
}

func (m ReportModel) handleDetailKeypress(keyMsg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch keyMsg.String() {
	case keyQuit, keyCtrlC:
		m.state = ViewStateQuitting
		return m, tea.Quit
	case keyEsc, keyEnter:
		m.state = ViewStateList
		return m, nil
	}
	return m, nil
}

// State returns the current view state.
func (m ReportModel) State() ViewState {
	return m.state
}

// Filter returns the status the table is filtered to, or "" for all.
func (m ReportModel) Filter() string {
	return statusFilters[m.filter]
}

// VisibleBatches returns the batches currently listed.
func (m ReportModel) VisibleBatches() []pipeline.BatchResult {
	return m.rows
}

// View implements tea.Model.
func (m ReportModel) View() string {
	if m.state == ViewStateQuitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n\n")

	if m.state == ViewStateDetail {
		sb.WriteString(m.renderDetail(m.rows[m.selected]))
		sb.WriteString("\n")
		sb.WriteString(HelpStyle.Render("esc back • q quit"))
		return sb.String()
	}

	sb.WriteString(m.table.View())
	sb.WriteString("\n")
	filter := "all"
	if f := m.Filter(); f != "" {
		filter = f
	}
	sb.WriteString(HelpStyle.Render(fmt.Sprintf(
		"%d of %d batches (%s) • ↑/↓ move • enter details • f filter • q quit",
		len(m.rows), len(m.report.Batches), filter)))
	return sb.String()
}

func (m ReportModel) renderHeader() string {
	status := lipgloss.NewStyle().Bold(true).Foreground(report.StatusColor(m.report.Status))
	return TitleStyle.Render("Run "+m.report.RunID) + "  " +
		status.Render(strings.ToUpper(m.report.Status)) + "  " +
		LabelStyle.Render(fmt.Sprintf("%d records, %.1f records/s",
			m.report.RecordsProcessed, m.report.Throughput))
}

func (m ReportModel) renderDetail(b pipeline.BatchResult) string {
	var sb strings.Builder
	line := func(label, value string) {
		sb.WriteString(LabelStyle.Render(fmt.Sprintf("%-14s", label)))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	status := lipgloss.NewStyle().Foreground(report.StatusColor(b.Status))
	line("Batch", strconv.Itoa(b.Index))
	line("Records", b.Range.String())
	line("Status", status.Render(b.Status))
	line("Read", formatDuration(b.ReadDuration))
	line("Total", formatDuration(b.Duration))
	for _, st := range b.Stages {
		line("  "+st.Stage, formatDuration(st.Duration))
	}
	if b.FailedStage != "" {
		line("Failed stage", b.FailedStage)
	}
	if b.Error != "" {
		line("Error", lipgloss.NewStyle().Foreground(ColorError).Render(b.Error))
	}
	return sb.String()
}

func (m *ReportModel) applyFilter() {
	want := statusFilters[m.filter]
	var rows []pipeline.BatchResult
	for _, b := range m.report.Batches {
		if want == "" || b.Status == want {
			rows = append(rows, b)
		}
	}
	m.rows = rows
	m.table = m.buildTable()
}

func (m ReportModel) tableHeight() int {
	return max(m.height-chromeHeight, minTableHeight)
}

func (m ReportModel) buildTable() table.Model {
	columns := []table.Column{
		{Title: "#", Width: 6},
		{Title: "Records", Width: 18},
		{Title: "Status", Width: 14},
		{Title: "Read", Width: 10},
		{Title: "Total", Width: 10},
		{Title: "Failed stage", Width: 14},
	}

	rows := make([]table.Row, len(m.rows))
	for i, b := range m.rows {
		rows[i] = table.Row{
			strconv.Itoa(b.Index),
			b.Range.String(),
			b.Status,
			formatDuration(b.ReadDuration),
			formatDuration(b.Duration),
			b.FailedStage,
		}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(m.tableHeight()),
	)
	s := table.DefaultStyles()
	s.Header = TableHeaderStyle
	s.Selected = TableSelectedStyle
	t.SetStyles(s)
	return t
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// RunReportViewer opens the interactive viewer for r and blocks until the
// user quits.
func RunReportViewer(r *report.Report, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(NewReportModel(r), opts...).Run()
	return err
}
