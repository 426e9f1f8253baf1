// Package bubble reads records from the legacy platform's Data API.
package bubble

import (
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
)

var (
	// ErrNotFound is returned when a type or record does not exist remotely
	ErrNotFound = errors.New("bubble: not found")
	// ErrUnauthorized is returned for rejected API tokens
	ErrUnauthorized = errors.New("bubble: unauthorized")
	// ErrNotConfigured is returned when no base URL is set
	ErrNotConfigured = errors.New("bubble: base url is not configured")
)

// ModifiedDateField is the built-in modification stamp used for filtering and ordering
const ModifiedDateField = "Modified Date"

const maxPageSize = 100

// Query selects one page of records
type Query struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Cursor   int
	Limit    int
}

// Page is one response page of the list endpoint
type Page struct {
	Results   []Record `json:"results"`
	Cursor    int      `json:"cursor"`
	Count     int      `json:"count"`
	Remaining int      `json:"remaining"`
}

type constraint struct {
	Key            string `json:"key"`
	ConstraintType string `json:"constraint_type"`
	Value          string `json:"value,omitempty"`
}

// Client talks to /obj/{type} endpoints with a bearer token
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used for page-level debug output
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the default http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPageSize sets the default page size, capped at the API maximum
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= maxPageSize {
			c.pageSize = n
		}
	}
}

// NewClient creates a Data API client. baseURL points at the .../api/1.1/obj root.
func NewClient(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		pageSize:   maxPageSize,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPage fetches one page of typeName ordered by modification date ascending
func (c *Client) ListPage(ctx context.Context, typeName string, q Query) (*Page, error) {
	params := url.Values{}
	params.Set("cursor", strconv.Itoa(q.Cursor))
	limit := q.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = c.pageSize
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort_field", ModifiedDateField)
	params.Set("descending", "false")

	var constraints []constraint
	if q.DateFrom != nil {
		constraints = append(constraints, constraint{Key: ModifiedDateField, ConstraintType: "greater than", Value: FormatTime(*q.DateFrom)})
	}
	if q.DateTo != nil {
		constraints = append(constraints, constraint{Key: ModifiedDateField, ConstraintType: "less than", Value: FormatTime(*q.DateTo)})
	}
	if len(constraints) > 0 {
		raw, err := json.Marshal(constraints)
		if err != nil {
			return nil, fmt.Errorf("bubble: failed to encode constraints: %w", err)
		}
		params.Set("constraints", string(raw))
	}

	var envelope struct {
		Response Page `json:"response"`
	}
	if err := c.get(ctx, c.typeURL(typeName)+"?"+params.Encode(), &envelope); err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched page",
		zap.String("type", typeName),
		zap.Int("cursor", q.Cursor),
		zap.Int("count", len(envelope.Response.Results)),
		zap.Int("remaining", envelope.Response.Remaining),
	)
	return &envelope.Response, nil
}

// Walk calls fn for every page until the remote reports nothing remaining
func (c *Client) Walk(ctx context.Context, typeName string, q Query, fn func(*Page) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := c.ListPage(ctx, typeName, q)
		if err != nil {
			return err
		}
		if len(page.Results) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if page.Remaining <= 0 {
			return nil
		}
		q.Cursor = page.Cursor + len(page.Results)
	}
}

// Get fetches a single record by its unique id
func (c *Client) Get(ctx context.Context, typeName, id string) (Record, error) {
	var envelope struct {
		Response Record `json:"response"`
	}
	if err := c.get(ctx, c.typeURL(typeName)+"/"+url.PathEscape(id), &envelope); err != nil {
		return nil, err
	}
	if envelope.Response == nil {
		return nil, ErrNotFound
	}
	return envelope.Response, nil
}

func (c *Client) typeURL(typeName string) string {
	return c.baseURL + "/" + url.PathEscape(strings.ToLower(typeName))
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("bubble: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bubble: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bubble: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		return fmt.Errorf("bubble: HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bubble: failed to parse response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
