// Package news implements the news-search port over the web-search
// collaborator's HTTP API. Results without a resolvable publication date
// inside the requested window are dropped, so downstream code can rely on
// every article carrying a usable date.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/epivigil/epivigil/pkg/domain"
)

// dateLayouts are tried in order when parsing publication dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

type wireArticle struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	Published string `json:"published_date"`
}

type wireResponse struct {
	Results []wireArticle `json:"results"`
}

// Client talks to the search service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a news client for the given search endpoint.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search queries the service and returns dated articles inside the window,
// newest first, at most max.
func (c *Client) Search(ctx context.Context, query string, days, max int) ([]domain.Article, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("days", strconv.Itoa(days))
	params.Set("max_results", strconv.Itoa(max))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("news service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode news response: %w", err)
	}

	cutoff := c.now().AddDate(0, 0, -days)
	articles := make([]domain.Article, 0, len(wire.Results))
	for _, w := range wire.Results {
		published, ok := parseDate(w.Published)
		if !ok || published.Before(cutoff) {
			continue
		}
		articles = append(articles, domain.Article{
			Title:     w.Title,
			URL:       w.URL,
			Excerpt:   w.Content,
			Published: published,
		})
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].Published.After(articles[j].Published)
	})
	if len(articles) > max {
		articles = articles[:max]
	}
	return articles, nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
