package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/cam3ron2/commit-stats/internal/githubapi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPerPage is the page size used when none is configured.
const DefaultPerPage = githubapi.MaxPerPage

// PageSource returns one page of raw commit records.
type PageSource interface {
	FetchCommitPage(ctx context.Context, req githubapi.PageRequest) ([]json.RawMessage, error)
}

// Page is one batch of raw records in retrieval order.
type Page struct {
	Number  int
	Records []json.RawMessage
}

// FetcherConfig configures paging.
type FetcherConfig struct {
	PerPage int
	// Limiter paces page requests. Nil means unpaced.
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

// Fetcher walks the commit list page by page until a short page signals exhaustion.
type Fetcher struct {
	source  PageSource
	perPage int
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewFetcher creates a fetcher over source.
func NewFetcher(source PageSource, cfg FetcherConfig) (*Fetcher, error) {
	if source == nil {
		return nil, fmt.Errorf("page source is required")
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > githubapi.MaxPerPage {
		perPage = githubapi.MaxPerPage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		source:  source,
		perPage: perPage,
		limiter: cfg.Limiter,
		logger:  logger,
	}, nil
}

// PerPage returns the effective page size.
func (f *Fetcher) PerPage() int {
	return f.perPage
}

// Pages lazily yields pages in order. Every page's records are yielded, including the final
// short one; a full page means another request follows. The sequence ends after the first error.
func (f *Fetcher) Pages(ctx context.Context, since time.Time) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for page := 1; ; page++ {
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx); err != nil {
					yield(Page{Number: page}, fmt.Errorf("wait for page %d: %w", page, err))
					return
				}
			}

			records, err := f.source.FetchCommitPage(ctx, githubapi.PageRequest{
				Since:   since,
				PerPage: f.perPage,
				Page:    page,
			})
			if err != nil {
				yield(Page{Number: page}, err)
				return
			}

			f.logger.Debug("commit page fetched",
				zap.Int("page", page),
				zap.Int("records", len(records)),
				zap.Int("per_page", f.perPage),
			)
			if !yield(Page{Number: page, Records: records}, nil) {
				return
			}
			if len(records) < f.perPage {
				return
			}
		}
	}
}

// Collect drains Pages, returning every page or the first error.
func (f *Fetcher) Collect(ctx context.Context, since time.Time) ([]Page, error) {
	var pages []Page
	for page, err := range f.Pages(ctx, since) {
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}
