package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/commit-stats/internal/analytics"
	"github.com/cam3ron2/commit-stats/internal/table"
	"github.com/dustin/go-humanize"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

const (
	// FormatText renders human-readable tables.
	FormatText = "text"
	// FormatJSON renders the Document as indented JSON.
	FormatJSON = "json"
)

// Header describes the run that produced a report.
type Header struct {
	Repository string
	Months     int
	Cutoff     time.Time
	Skipped    int
}

// Document is the serializable form of a report.
type Document struct {
	Repository string                     `json:"repository"`
	Months     int                        `json:"months"`
	Cutoff     string                     `json:"cutoff"`
	Rows       int                        `json:"rows"`
	Skipped    int                        `json:"skipped"`
	Top        []analytics.CommitterCount `json:"top_committers"`
	Streak     *StreakDocument            `json:"longest_streak"`
	Heatmap    HeatmapDocument            `json:"heatmap"`
}

// StreakDocument is the serializable form of analytics.Streak.
type StreakDocument struct {
	Name        string `json:"name"`
	First       string `json:"first"`
	Last        string `json:"last"`
	Span        string `json:"span"`
	SpanSeconds int64  `json:"span_seconds"`
}

// HeatmapDocument lists counts per weekday row and block column.
type HeatmapDocument struct {
	Timezone string   `json:"timezone"`
	Weekdays []string `json:"weekdays"`
	Blocks   []string `json:"blocks"`
	Counts   [][]int  `json:"counts"`
	Total    int      `json:"total"`
}

// Build converts a computed report into its serializable form.
func Build(header Header, rep analytics.Report) Document {
	doc := Document{
		Repository: header.Repository,
		Months:     header.Months,
		Cutoff:     header.Cutoff.Format(time.RFC3339),
		Rows:       rep.Rows,
		Skipped:    header.Skipped,
		Top:        rep.Top,
		Heatmap: HeatmapDocument{
			Timezone: rep.Zone.String(),
			Weekdays: table.WeekdayNames[:],
			Blocks:   table.BlockLabels[:],
			Counts:   make([][]int, 0, table.WeekdayCount),
			Total:    rep.Heatmap.Total(),
		},
	}
	if doc.Top == nil {
		doc.Top = []analytics.CommitterCount{}
	}
	if rep.HasStreak {
		doc.Streak = &StreakDocument{
			Name:        rep.Streak.Name,
			First:       rep.Streak.First.Format(time.RFC3339),
			Last:        rep.Streak.Last.Format(time.RFC3339),
			Span:        FormatSpan(rep.Streak.Span),
			SpanSeconds: int64(rep.Streak.Span / time.Second),
		}
	}
	for _, day := range rep.Heatmap {
		doc.Heatmap.Counts = append(doc.Heatmap.Counts, append([]int(nil), day[:]...))
	}
	return doc
}

// Render writes the report in the requested format.
func Render(w io.Writer, format string, header Header, rep analytics.Report) error {
	doc := Build(header, rep)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		_, err := io.WriteString(w, renderText(doc))
		return err
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// FormatSpan renders a duration as "<days> days HH:MM:SS".
func FormatSpan(span time.Duration) string {
	sign := ""
	if span < 0 {
		sign = "-"
		span = -span
	}
	total := int64(span / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%s%d days %02d:%02d:%02d", sign, days, hours, minutes, seconds)
}

func renderText(doc Document) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("=== %s ===", doc.Repository))
	parts = append(parts, fmt.Sprintf("Commits since %s (%d months): %s rows, %s skipped",
		doc.Cutoff, doc.Months, humanize.Comma(int64(doc.Rows)), humanize.Comma(int64(doc.Skipped))))

	top := newWriter()
	top.AppendHeader(prettytable.Row{"#", "Committer", "Commits"})
	for i, entry := range doc.Top {
		top.AppendRow(prettytable.Row{i + 1, entry.Name, humanize.Comma(int64(entry.Count))})
	}
	parts = append(parts, "Top committers:\n"+top.Render())

	if doc.Streak == nil {
		parts = append(parts, "Longest streak: none")
	} else {
		parts = append(parts, fmt.Sprintf("Longest streak: %s, %s (%s .. %s)",
			doc.Streak.Name, doc.Streak.Span, doc.Streak.First, doc.Streak.Last))
	}

	heatmap := newWriter()
	header := prettytable.Row{"Day"}
	for _, label := range doc.Heatmap.Blocks {
		header = append(header, label)
	}
	heatmap.AppendHeader(header)
	for i, day := range doc.Heatmap.Weekdays {
		row := prettytable.Row{day}
		for _, count := range doc.Heatmap.Counts[i] {
			row = append(row, humanize.Comma(int64(count)))
		}
		heatmap.AppendRow(row)
	}
	heatmap.AppendFooter(prettytable.Row{"Total: " + strconv.Itoa(doc.Heatmap.Total)})
	parts = append(parts, fmt.Sprintf("Commits by weekday and hour block (%s):\n%s", doc.Heatmap.Timezone, heatmap.Render()))

	return strings.Join(parts, "\n\n") + "\n"
}

func newWriter() prettytable.Writer {
	writer := prettytable.NewWriter()
	writer.SetStyle(prettytable.StyleLight)
	writer.Style().Options.SeparateRows = false
	writer.Style().Options.DrawBorder = false
	return writer
}
