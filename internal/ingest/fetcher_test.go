package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cam3ron2/commit-stats/internal/githubapi"
	"golang.org/x/time/rate"
)

type fakePageSource struct {
	sizes    []int
	failPage int
	requests []githubapi.PageRequest
}

func (s *fakePageSource) FetchCommitPage(_ context.Context, req githubapi.PageRequest) ([]json.RawMessage, error) {
	s.requests = append(s.requests, req)
	if req.Page == s.failPage {
		return nil, &githubapi.FetchError{Op: "list commits", Page: req.Page, StatusCode: 500, Status: githubapi.EndpointStatusUnavailable}
	}
	if req.Page > len(s.sizes) {
		return []json.RawMessage{}, nil
	}

	records := make([]json.RawMessage, 0, s.sizes[req.Page-1])
	for i := 0; i < s.sizes[req.Page-1]; i++ {
		records = append(records, commitJSON(fmt.Sprintf("user-%d-%d", req.Page, i), "2021-03-01T10:00:00Z"))
	}
	return records, nil
}

func commitJSON(name, date string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"commit":{"author":{"name":%q,"email":"%s@example.com","date":%q}}}`, name, name, date))
}

func TestFetcherStopsAfterShortPage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		sizes       []int
		perPage     int
		wantRecords int
		wantCalls   int
	}{
		{name: "partial_final_page", sizes: []int{100, 100, 37}, perPage: 100, wantRecords: 237, wantCalls: 3},
		{name: "exact_multiple_needs_empty_page", sizes: []int{100, 100}, perPage: 100, wantRecords: 200, wantCalls: 3},
		{name: "empty_window", sizes: nil, perPage: 100, wantRecords: 0, wantCalls: 1},
		{name: "small_page_size", sizes: []int{2, 2, 1}, perPage: 2, wantRecords: 5, wantCalls: 3},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			source := &fakePageSource{sizes: tc.sizes}
			fetcher, err := NewFetcher(source, FetcherConfig{PerPage: tc.perPage})
			if err != nil {
				t.Fatalf("NewFetcher() unexpected error: %v", err)
			}

			since := time.Date(2021, time.February, 15, 0, 0, 0, 0, time.UTC)
			pages, err := fetcher.Collect(context.Background(), since)
			if err != nil {
				t.Fatalf("Collect() unexpected error: %v", err)
			}

			total := 0
			for i, page := range pages {
				if page.Number != i+1 {
					t.Fatalf("page %d Number = %d", i, page.Number)
				}
				total += len(page.Records)
			}
			if total != tc.wantRecords {
				t.Fatalf("records = %d, want %d", total, tc.wantRecords)
			}
			if len(source.requests) != tc.wantCalls {
				t.Fatalf("requests = %d, want %d", len(source.requests), tc.wantCalls)
			}
			for i, req := range source.requests {
				if req.Page != i+1 || req.PerPage != tc.perPage || !req.Since.Equal(since) {
					t.Fatalf("request %d = %+v", i, req)
				}
			}
		})
	}
}

func TestFetcherSurfacesFetchError(t *testing.T) {
	t.Parallel()

	source := &fakePageSource{sizes: []int{100, 100, 100}, failPage: 2}
	fetcher, err := NewFetcher(source, FetcherConfig{})
	if err != nil {
		t.Fatalf("NewFetcher() unexpected error: %v", err)
	}

	pages, err := fetcher.Collect(context.Background(), time.Time{})
	var fetchErr *githubapi.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Page != 2 {
		t.Fatalf("Collect() error = %v, want FetchError for page 2", err)
	}
	if pages != nil {
		t.Fatalf("Collect() returned %d pages alongside an error", len(pages))
	}
	if len(source.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(source.requests))
	}
}

func TestFetcherPagesIsLazy(t *testing.T) {
	t.Parallel()

	source := &fakePageSource{sizes: []int{100, 100, 100, 5}}
	fetcher, err := NewFetcher(source, FetcherConfig{})
	if err != nil {
		t.Fatalf("NewFetcher() unexpected error: %v", err)
	}

	for page, err := range fetcher.Pages(context.Background(), time.Time{}) {
		if err != nil {
			t.Fatalf("Pages() unexpected error: %v", err)
		}
		if page.Number == 2 {
			break
		}
	}
	if len(source.requests) != 2 {
		t.Fatalf("requests = %d, want 2 after breaking on page 2", len(source.requests))
	}
}

func TestFetcherHonoursLimiterCancellation(t *testing.T) {
	t.Parallel()

	source := &fakePageSource{sizes: []int{100, 100}}
	fetcher, err := NewFetcher(source, FetcherConfig{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})
	if err != nil {
		t.Fatalf("NewFetcher() unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = fetcher.Collect(ctx, time.Time{})
	if err == nil {
		t.Fatalf("Collect() expected limiter error, got nil")
	}
	if len(source.requests) != 1 {
		t.Fatalf("requests = %d, want 1 before the limiter blocks", len(source.requests))
	}
}

func TestNewFetcher(t *testing.T) {
	t.Parallel()

	if _, err := NewFetcher(nil, FetcherConfig{}); err == nil {
		t.Fatalf("NewFetcher(nil) expected error, got nil")
	}

	testCases := map[int]int{0: 100, -5: 100, 30: 30, 100: 100, 250: 100}
	for configured, want := range testCases {
		fetcher, err := NewFetcher(&fakePageSource{}, FetcherConfig{PerPage: configured})
		if err != nil {
			t.Fatalf("NewFetcher() unexpected error: %v", err)
		}
		if fetcher.PerPage() != want {
			t.Fatalf("PerPage(%d) = %d, want %d", configured, fetcher.PerPage(), want)
		}
	}
}
