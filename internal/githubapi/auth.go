package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// InstallationAuthConfig configures GitHub App installation authentication.
type InstallationAuthConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	Timeout        time.Duration
	BaseTransport  http.RoundTripper
}

// TokenAuthConfig configures bearer token authentication.
type TokenAuthConfig struct {
	// Token is the credential value. An empty token yields an anonymous client.
	Token         string
	Timeout       time.Duration
	BaseTransport http.RoundTripper
}

// RESTClient wraps the go-github REST client.
type RESTClient struct {
	Client *github.Client
}

// Repository is the preflight view of the target repository.
type Repository struct {
	FullName      string
	DefaultBranch string
	Private       bool
	Archived      bool
}

// NewInstallationHTTPClient creates an authenticated HTTP client for one GitHub App installation.
func NewInstallationHTTPClient(cfg InstallationAuthConfig) (*http.Client, error) {
	if cfg.AppID <= 0 {
		return nil, fmt.Errorf("app id must be > 0")
	}
	if cfg.InstallationID <= 0 {
		return nil, fmt.Errorf("installation id must be > 0")
	}
	if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	transport, err := ghinstallation.NewKeyFromFile(baseTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}

// NewTokenHTTPClient creates an HTTP client that sends the token as a bearer credential.
func NewTokenHTTPClient(cfg TokenAuthConfig) *http.Client {
	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return &http.Client{
			Transport: baseTransport,
			Timeout:   cfg.Timeout,
		}
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   baseTransport,
		},
		Timeout: cfg.Timeout,
	}
}

// NewGitHubRESTClient creates a go-github client with optional API base URL override.
func NewGitHubRESTClient(httpClient *http.Client, apiBaseURL string) (*RESTClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := github.NewClient(httpClient)
	trimmedBaseURL := strings.TrimSpace(apiBaseURL)
	if trimmedBaseURL == "" {
		return &RESTClient{Client: client}, nil
	}

	parsedURL, err := url.Parse(trimmedBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	client.BaseURL = parsedURL
	return &RESTClient{Client: client}, nil
}

// Repository looks up owner/repo so a missing repository or bad credential fails before paging starts.
func (c *RESTClient) Repository(ctx context.Context, owner, repo string) (Repository, error) {
	if c == nil || c.Client == nil {
		return Repository{}, &FetchError{Op: opGetRepository, Err: fmt.Errorf("rest client is not initialized")}
	}

	found, resp, err := c.Client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		fetchErr := &FetchError{Op: opGetRepository, Err: err}
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil {
			fetchErr.StatusCode = ghErr.Response.StatusCode
			fetchErr.Status = endpointStatusFromHTTP(ghErr.Response.StatusCode)
			fetchErr.Body = ghErr.Message
		} else if resp != nil && resp.Response != nil {
			fetchErr.StatusCode = resp.StatusCode
			fetchErr.Status = endpointStatusFromHTTP(resp.StatusCode)
		}
		return Repository{}, fetchErr
	}

	return Repository{
		FullName:      found.GetFullName(),
		DefaultBranch: found.GetDefaultBranch(),
		Private:       found.GetPrivate(),
		Archived:      found.GetArchived(),
	}, nil
}
