package exporter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cam3ron2/commit-stats/internal/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReportReader returns the most recent report, if any.
type ReportReader interface {
	Latest() (report.Document, bool)
}

var (
	rowsDesc = prometheus.NewDesc(
		"commit_stats_rows",
		"Commits in the current window.",
		[]string{"repository"}, nil,
	)
	skippedDesc = prometheus.NewDesc(
		"commit_stats_skipped_records",
		"Raw commit records that could not be normalized.",
		[]string{"repository"}, nil,
	)
	windowMonthsDesc = prometheus.NewDesc(
		"commit_stats_window_months",
		"Lookback window in calendar months.",
		[]string{"repository"}, nil,
	)
	cutoffDesc = prometheus.NewDesc(
		"commit_stats_cutoff_timestamp_seconds",
		"Start of the lookback window.",
		[]string{"repository"}, nil,
	)
	topCommitsDesc = prometheus.NewDesc(
		"commit_stats_top_committer_commits",
		"Commits by the highest-ranked committers.",
		[]string{"repository", "rank", "committer"}, nil,
	)
	streakDesc = prometheus.NewDesc(
		"commit_stats_longest_streak_seconds",
		"Span between first and last commit of the committer with the widest span.",
		[]string{"repository", "committer"}, nil,
	)
	heatmapDesc = prometheus.NewDesc(
		"commit_stats_heatmap_commits",
		"Commits per weekday and three-hour block.",
		[]string{"repository", "weekday", "block"}, nil,
	)
)

// NewOpenMetricsHandler returns a handler that renders the latest report through the Prometheus OpenMetrics encoder.
func NewOpenMetricsHandler(reader ReportReader) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&reportCollector{reader: reader})

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

type reportCollector struct {
	reader ReportReader
}

func (c *reportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- rowsDesc
	ch <- skippedDesc
	ch <- windowMonthsDesc
	ch <- cutoffDesc
	ch <- topCommitsDesc
	ch <- streakDesc
	ch <- heatmapDesc
}

func (c *reportCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}
	doc, ok := c.reader.Latest()
	if !ok {
		return
	}

	repo := doc.Repository
	emitGauge(ch, rowsDesc, float64(doc.Rows), repo)
	emitGauge(ch, skippedDesc, float64(doc.Skipped), repo)
	emitGauge(ch, windowMonthsDesc, float64(doc.Months), repo)
	if cutoff, err := time.Parse(time.RFC3339, doc.Cutoff); err == nil {
		emitGauge(ch, cutoffDesc, float64(cutoff.Unix()), repo)
	}

	for i, entry := range doc.Top {
		emitGauge(ch, topCommitsDesc, float64(entry.Count),
			repo, strconv.Itoa(i+1), entry.Name)
	}

	if doc.Streak != nil {
		emitGauge(ch, streakDesc, float64(doc.Streak.SpanSeconds),
			repo, doc.Streak.Name)
	}

	for day, counts := range doc.Heatmap.Counts {
		if day >= len(doc.Heatmap.Weekdays) {
			break
		}
		for block, count := range counts {
			if block >= len(doc.Heatmap.Blocks) {
				break
			}
			emitGauge(ch, heatmapDesc, float64(count),
				repo, doc.Heatmap.Weekdays[day], doc.Heatmap.Blocks[block])
		}
	}
}

// emitGauge drops samples whose label values Prometheus rejects, such as committer names
// that are not valid UTF-8 after a hand-edited CSV reload.
func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, value float64, labels ...string) {
	metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, value, labels...)
	if err != nil {
		return
	}
	ch <- metric
}
