// Package articles fetches pages of article metadata from the journal media API.
package articles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/journal-ingest/internal/ingest"
	"github.com/JakeFAU/journal-ingest/internal/metrics"
)

// DefaultBaseURL is the journal listing endpoint.
const DefaultBaseURL = "https://journal.crossfit.com/media-api/api/v1/media/journal"

// DefaultSort orders pages by publication date.
const DefaultSort = "publishingDate"

// Config controls the upstream client.
type Config struct {
	BaseURL   string
	Sort      string
	UserAgent string
	// Timeout bounds a single request. Zero leaves the request unbounded.
	Timeout time.Duration
}

// ErrInvalidJSON is returned when a 200 response body is not valid JSON.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// StatusError reports a non-200 response from the API.
type StatusError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	reason := strings.TrimSpace(strings.TrimPrefix(e.Status, strconv.Itoa(e.StatusCode)))
	if reason == "" {
		reason = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("Error %d: %s", e.StatusCode, reason)
}

// Client implements ingest.Fetcher over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	sort       string
	userAgent  string
	logger     *zap.Logger
}

// New validates cfg and builds a Client. A nil httpClient gets a default one
// honouring cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Sort == "" {
		cfg.Sort = DefaultSort
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s), got %q", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		sort:       cfg.Sort,
		userAgent:  cfg.UserAgent,
		logger:     logger,
	}, nil
}

// PageURL returns the request URL for one page.
func (c *Client) PageURL(perPage, page int) string {
	u := *c.baseURL
	q := u.Query()
	q.Set("sort", c.sort)
	q.Set("per-page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage requests one page and returns its body as a Batch. Any valid JSON
// value is accepted; a missing body yields an empty Batch.
func (c *Client) FetchPage(ctx context.Context, perPage, page int) (ingest.Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(perPage, page), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveFetch(0, time.Since(start))
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	metrics.ObserveFetch(resp.StatusCode, time.Since(start))
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return decodeBatch(body)
}

func decodeBatch(body []byte) (ingest.Batch, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ingest.Batch{}, nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode response: %w", ErrInvalidJSON)
	}
	return ingest.Batch(body), nil
}
