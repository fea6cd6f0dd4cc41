// Package analytics is the HTTP client for the analytics collaborator
// service, which owns the SRAG case store and the aggregation SQL. It
// implements both ports.MetricsProvider and ports.QueryExecutor.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/epivigil/epivigil/pkg/domain"
)

// Client talks JSON over HTTP to the analytics service.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates an analytics client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metrics computes the fixed SRAG rate set for the window.
func (c *Client) Metrics(ctx context.Context, days int, region string) (domain.MetricSet, error) {
	var out domain.MetricSet
	err := c.post(ctx, "/v1/metrics", map[string]any{"days": days, "state": region}, &out)
	return out, err
}

// DailySeries returns the daily case counts for the chart window.
func (c *Client) DailySeries(ctx context.Context, days int) ([]domain.ChartPoint, error) {
	var out []domain.ChartPoint
	err := c.get(ctx, "/v1/series/daily?days="+strconv.Itoa(days), &out)
	return out, err
}

// MonthlySeries returns the monthly case counts for the chart window.
func (c *Client) MonthlySeries(ctx context.Context, months int) ([]domain.ChartPoint, error) {
	var out []domain.ChartPoint
	err := c.get(ctx, "/v1/series/monthly?months="+strconv.Itoa(months), &out)
	return out, err
}

// Schema describes the table's columns and types as readable text.
func (c *Client) Schema(ctx context.Context, table string) (string, error) {
	var out struct {
		Schema string `json:"schema"`
	}
	if err := c.get(ctx, "/v1/schema/"+url.PathEscape(table), &out); err != nil {
		return "", err
	}
	return out.Schema, nil
}

// Query runs a read-only query. The statement must be a single SELECT; the
// service enforces this too, but rejecting here avoids a round trip.
func (c *Client) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT") {
		return nil, fmt.Errorf("only SELECT statements are accepted")
	}
	var out struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := c.post(ctx, "/v1/query", map[string]any{"sql": sql}, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("analytics request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("analytics service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode analytics response: %w", err)
	}
	return nil
}
