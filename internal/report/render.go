package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mwa-utils/mwapipe/internal/pipeline"
)

const (
	boxWidth   = 72
	labelWidth = 16
)

func colorTitle() lipgloss.Color   { return lipgloss.Color("39") }
func colorBorder() lipgloss.Color  { return lipgloss.Color("240") }
func colorLabel() lipgloss.Color   { return lipgloss.Color("245") }
func colorOK() lipgloss.Color      { return lipgloss.Color("42") }
func colorWarning() lipgloss.Color { return lipgloss.Color("214") }
func colorError() lipgloss.Color   { return lipgloss.Color("196") }

// field is one label/value line of the rendered report.
type field struct {
	label string
	value string
}

// Render writes a human-readable summary of r. Terminals get a styled box;
// any other writer gets plain text.
func Render(w io.Writer, r *Report) error {
	if isWriterTerminal(w) {
		return renderStyled(w, r)
	}
	return renderPlain(w, r)
}

func isWriterTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// StatusColor returns the color used for a run or batch status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case pipeline.RunSucceeded, pipeline.BatchCompleted:
		return colorOK()
	case pipeline.RunCancelled, pipeline.BatchSkipped, pipeline.BatchNotAttempted:
		return colorWarning()
	default:
		return colorError()
	}
}

func renderStyled(w io.Writer, r *Report) error {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(colorTitle())
	labelStyle := lipgloss.NewStyle().Foreground(colorLabel()).Width(labelWidth)
	valueStyle := lipgloss.NewStyle().Bold(true)
	statusStyle := lipgloss.NewStyle().Bold(true).Foreground(StatusColor(r.Status))
	boxStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder()).
		Padding(0, 1).
		Width(boxWidth)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("mwapipe run " + r.RunID))
	sb.WriteString("  ")
	sb.WriteString(statusStyle.Render(strings.ToUpper(r.Status)))
	sb.WriteString("\n\n")
	for _, f := range summaryFields(r) {
		sb.WriteString(labelStyle.Render(f.label))
		sb.WriteString(valueStyle.Render(f.value))
		sb.WriteString("\n")
	}

	if stages := stageFields(r); len(stages) > 0 {
		sb.WriteString("\n")
		sb.WriteString(titleStyle.Render("Stage time"))
		sb.WriteString("\n")
		for _, f := range stages {
			sb.WriteString(labelStyle.Render("  " + f.label))
			sb.WriteString(f.value)
			sb.WriteString("\n")
		}
	}

	if r.Error != "" {
		errStyle := lipgloss.NewStyle().Foreground(colorError())
		sb.WriteString("\n")
		sb.WriteString(errStyle.Render("Error: " + r.Error))
	}

	_, err := fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(sb.String(), "\n")))
	return err
}

func renderPlain(w io.Writer, r *Report) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mwapipe run %s: %s\n", r.RunID, r.Status)
	for _, f := range summaryFields(r) {
		fmt.Fprintf(&sb, "%-*s%s\n", labelWidth, f.label, f.value)
	}
	if stages := stageFields(r); len(stages) > 0 {
		sb.WriteString("Stage time:\n")
		for _, f := range stages {
			fmt.Fprintf(&sb, "  %-*s%s\n", labelWidth-2, f.label, f.value)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", r.Error)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func summaryFields(r *Report) []field {
	p := message.NewPrinter(language.English)

	fields := []field{
		{"Started", r.StartedAt.Format(time.RFC3339)},
		{"Duration", r.Duration().Round(time.Millisecond).String()},
	}

	if d := r.Descriptor; d != nil {
		fields = append(fields, field{"Dataset", p.Sprintf("%s, %d records x %s (%d rows, %d channels)",
			d.Format, d.RecordCount, humanize.IBytes(uint64(d.RecordBytes)), d.Rows, d.Channels)})
	}

	if r.Config.Suffix != "" {
		fields = append(fields, field{"Suffix", r.Config.Suffix})
	}

	total := 0
	if r.Plan != nil {
		total = r.Plan.TotalRecords
		fields = append(fields, field{"Plan", p.Sprintf("%d batches of %d, peak %s of %s budget",
			r.Plan.Batches, r.Plan.BatchSize,
			humanize.IBytes(uint64(r.Plan.PeakBytes)), humanize.IBytes(uint64(r.Plan.Budget)))})
	}

	fields = append(fields,
		field{"Records", p.Sprintf("%d / %d (%.1f records/s)", r.RecordsProcessed, total, r.Throughput)},
		field{"Batches", p.Sprintf("%d completed, %d failed, %d not attempted, %d skipped",
			r.CountByStatus(pipeline.BatchCompleted), r.CountByStatus(pipeline.BatchFailed),
			r.CountByStatus(pipeline.BatchNotAttempted), r.CountByStatus(pipeline.BatchSkipped))},
		field{"Peak RSS", p.Sprintf("%s (%d samples)", humanize.IBytes(r.PeakRSSBytes), r.SampleCount)},
	)

	if n := len(r.BudgetEvents); n > 0 {
		fields = append(fields, field{"Budget", p.Sprintf("exceeded %d times, first at %s",
			n, humanize.IBytes(r.BudgetEvents[0].Sample.RSSBytes))})
	}

	if s := r.Summary; s != nil {
		fields = append(fields, field{"Flagged", p.Sprintf("%d of %d visibilities (%.2f%%)",
			s.Flagged, s.Visibilities, s.FlaggedFraction*100)})
	}
	return fields
}

func stageFields(r *Report) []field {
	fields := make([]field, 0, len(r.StageTotals))
	for _, st := range r.StageTotals {
		fields = append(fields, field{st.Stage, st.Duration.Round(time.Millisecond).String()})
	}
	return fields
}
