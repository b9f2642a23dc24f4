package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGitHubAPIBaseURL = "https://api.github.com/"
	// MaxPerPage is the largest page size the commits endpoint honours.
	MaxPerPage        = 100
	maxErrorBodyBytes = 1024

	opListCommits   = "list commits"
	opGetRepository = "get repository"
)

// PageRequest selects one page of the commit list.
type PageRequest struct {
	Since   time.Time
	PerPage int
	// Page is 1-based.
	Page int
}

// FetchError reports a GitHub read that could not be completed or decoded.
type FetchError struct {
	Op string
	// Page is set for commit list pages.
	Page       int
	Status     EndpointStatus
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	op := e.Op
	if op == "" {
		op = "github request"
	}
	if e.Page > 0 {
		op = fmt.Sprintf("%s page %d", op, e.Page)
	}

	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d (%s): %s", op, e.StatusCode, e.Status, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d (%s)", op, e.StatusCode, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", op, e.Err)
	default:
		return op + " failed"
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CommitsClient lists one repository's commits through the retrying request client.
type CommitsClient struct {
	baseURL       *url.URL
	requestClient *Client
	owner         string
	repo          string
}

// NewCommitsClient creates a commits client for owner/repo.
func NewCommitsClient(baseURL, owner, repo string, requestClient *Client) (*CommitsClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return nil, fmt.Errorf("repo is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &CommitsClient{
		baseURL:       parsed,
		requestClient: requestClient,
		owner:         trimmedOwner,
		repo:          trimmedRepo,
	}, nil
}

// FullName returns owner/repo.
func (c *CommitsClient) FullName() string {
	return c.owner + "/" + c.repo
}

// FetchCommitPage requests one page of commits and returns its elements undecoded.
func (c *CommitsClient) FetchCommitPage(ctx context.Context, pageReq PageRequest) ([]json.RawMessage, error) {
	if pageReq.Page < 1 {
		return nil, &FetchError{Op: opListCommits, Page: pageReq.Page, Err: fmt.Errorf("page must be >= 1")}
	}
	perPage := pageReq.PerPage
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	reqURL := *c.baseURL
	reqURL.Path = joinURLPath(reqURL.Path, "repos", c.owner, c.repo, "commits")
	query := reqURL.Query()
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("page", strconv.Itoa(pageReq.Page))
	if !pageReq.Since.IsZero() {
		query.Set("since", pageReq.Since.Format(time.RFC3339))
	}
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, &FetchError{Op: opListCommits, Page: pageReq.Page, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, _, err := c.requestClient.Do(req)
	if err != nil {
		return nil, &FetchError{Op: opListCommits, Page: pageReq.Page, Err: err}
	}
	if resp == nil {
		return nil, &FetchError{Op: opListCommits, Page: pageReq.Page, Err: fmt.Errorf("nil response")}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if status := endpointStatusFromHTTP(resp.StatusCode); status != EndpointStatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &FetchError{
			Op:         opListCommits,
			Page:       pageReq.Page,
			Status:     status,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var payload []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &FetchError{Op: opListCommits, Page: pageReq.Page, Err: fmt.Errorf("decode response: %w", err)}
	}
	return payload, nil
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func joinURLPath(base string, segments ...string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	builder := strings.Builder{}
	builder.WriteString(trimmedBase)
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}
