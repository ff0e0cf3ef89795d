package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/everstacklabs/compass/internal/cache"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "compass/1.0 (+https://github.com/everstacklabs/compass)"

// Client is an HTTP client with caching, rate limiting, and conditional fetch.
// Only GETs are cached; POSTs always go to the network.
type Client struct {
	http      *http.Client
	cache     *cache.FileCache
	limiter   *rate.Limiter
	noCache   bool
	userAgent string
}

// Option configures the Client.
type Option func(*Client)

// WithCache enables file-based caching.
func WithCache(c *cache.FileCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithRateLimit sets requests per second.
func WithRateLimit(rps float64) Option {
	return func(cl *Client) {
		cl.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithNoCache disables caching.
func WithNoCache() Option {
	return func(cl *Client) { cl.noCache = true }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// New creates a new HTTP client.
func New(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response wraps an HTTP response body and metadata.
type Response struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	FromCache  bool
}

// StatusError is returned for responses with a 4xx or 5xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Get performs an HTTP GET with optional caching and conditional fetch.
// Cache entries are keyed by URL and request headers, so a response fetched
// with one token is never served to a request carrying another. Keystone
// answers version discovery with 300 Multiple Choices, so any status below
// 400 counts as success.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	key := cacheKey(url, headers)
	var staleEntry *cache.Entry
	if c.cacheEnabled() {
		entry, fresh := c.cache.Get(key)
		if fresh {
			return &Response{Body: entry.Body, StatusCode: entry.StatusCode, Header: cachedHeader(entry), FromCache: true}, nil
		}
		staleEntry = entry
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, headers)
	req.Header.Set("Accept", "application/json")

	if staleEntry != nil {
		if staleEntry.ETag != "" {
			req.Header.Set("If-None-Match", staleEntry.ETag)
		}
		if staleEntry.LastMod != "" {
			req.Header.Set("If-Modified-Since", staleEntry.LastMod)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && staleEntry != nil {
		_ = c.cache.Set(key, staleEntry)
		return &Response{Body: staleEntry.Body, StatusCode: staleEntry.StatusCode, Header: cachedHeader(staleEntry), FromCache: true}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if c.cacheEnabled() {
		_ = c.cache.Set(key, &cache.Entry{
			Body:        body,
			ETag:        resp.Header.Get("ETag"),
			LastMod:     resp.Header.Get("Last-Modified"),
			ContentType: resp.Header.Get("Content-Type"),
			StatusCode:  resp.StatusCode,
		})
	}

	return &Response{Body: body, StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

// PostJSON sends payload as a JSON body. Responses are never cached.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, headers map[string]string) (*Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, headers)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Method: http.MethodPost, URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return &Response{Body: body, StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

// Invalidate drops the cached response for url fetched with headers.
func (c *Client) Invalidate(url string, headers map[string]string) {
	if c.cache != nil {
		_ = c.cache.Invalidate(cacheKey(url, headers))
	}
}

func cacheKey(url string, headers map[string]string) string {
	if len(headers) == 0 {
		return url
	}
	lines := make([]string, 0, len(headers))
	for k, v := range headers {
		lines = append(lines, http.CanonicalHeaderKey(k)+": "+v)
	}
	sort.Strings(lines)
	return url + "\n" + strings.Join(lines, "\n")
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (c *Client) cacheEnabled() bool {
	return c.cache != nil && !c.noCache
}

func (c *Client) setHeaders(req *http.Request, headers map[string]string) {
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func cachedHeader(e *cache.Entry) http.Header {
	h := make(http.Header)
	if e.ContentType != "" {
		h.Set("Content-Type", e.ContentType)
	}
	if e.ETag != "" {
		h.Set("ETag", e.ETag)
	}
	return h
}
