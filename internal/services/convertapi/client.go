package convertapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marklift/internal/items"
	"marklift/internal/logging"
	"marklift/internal/services"
)

const maxArtifactBytes = 4 << 30

// HTTPDoer describes the HTTP client used by the conversion client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues conversion requests and artifact fetches.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *slog.Logger
}

// New constructs a client for the given service base URL. The timeout covers
// the whole request; conversions of large media are long-running, so callers
// should pass something on the order of minutes.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout}, logger)
}

// NewWithHTTPClient constructs a client with a caller-supplied HTTP client.
func NewWithHTTPClient(baseURL string, doer HTTPDoer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    doer,
		logger:  logging.WithComponent(logger, "convertapi"),
	}
}

// DispatchResult pairs accepted items with their job id. Per-item dispatch
// yields one result per item; a batch that the server answers with a single
// id yields one result spanning every item. Synchronous responses skip the
// job phase entirely and carry the artifact.
type DispatchResult struct {
	Items       []items.Item
	JobID       string
	Payload     []byte
	ContentType string
	Err         error
}

// Synchronous reports whether the server converted inline instead of
// accepting a job.
func (r DispatchResult) Synchronous() bool {
	return r.Err == nil && r.JobID == "" && len(r.Payload) > 0
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "convertapi", req.Method, req.URL.Path, err)
		}
		return nil, services.Wrap(services.ErrNetwork, "convertapi", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func (c *Client) endpointURL(path string) string {
	return c.baseURL + path
}

func setCredential(req *http.Request, credential string) {
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
}

// FetchArtifact downloads a finished conversion. Relative locators resolve
// against the service base URL.
func (c *Client) FetchArtifact(ctx context.Context, locator, credential string) ([]byte, string, error) {
	resolved, err := c.resolveLocator(locator)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build artifact request: %w", err)
	}
	setCredential(req, credential)

	resp, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", parseErrorResponse(resp)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return nil, "", services.Wrap(services.ErrNetwork, "convertapi", "fetch artifact", resolved, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return payload, contentType, nil
}

func (c *Client) resolveLocator(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", &services.APIError{Code: services.CodeNoDownloadURL, Message: "empty artifact locator"}
	}
	parsed, err := url.Parse(locator)
	if err != nil {
		return "", services.Wrap(services.ErrResponseFormat, "convertapi", "resolve locator", locator, err)
	}
	if parsed.IsAbs() {
		return locator, nil
	}
	if !strings.HasPrefix(locator, "/") {
		locator = "/" + locator
	}
	return c.baseURL + locator, nil
}
