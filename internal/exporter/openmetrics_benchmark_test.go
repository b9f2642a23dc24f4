package exporter

import (
	"fmt"
	"testing"

	"github.com/cam3ron2/commit-stats/internal/analytics"
)

func BenchmarkOpenMetricsHandlerTopCommitters(b *testing.B) {
	doc := sampleDocument(b)
	doc.Top = make([]analytics.CommitterCount, 0, 1000)
	for i := range 1000 {
		doc.Top = append(doc.Top, analytics.CommitterCount{Name: fmt.Sprintf("user-%d", i), Count: 1000 - i})
	}
	handler := NewOpenMetricsHandler(staticReader{doc: doc, ok: true})

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		_ = scrape(b, handler)
	}
}
