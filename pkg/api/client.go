// Package api is the HTTP client for the remote prompt service. It
// implements prompt.Store. There are no client-side retries; retry policy
// belongs to the transport or the service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"promptkit/pkg/prompt"
)

const maxErrorBody = 4 << 10

// StatusError is any non-2xx, non-404 response from the prompt service.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prompt service: %s: %s", e.Status, e.Body)
}

// Cache is the optional read-through store for immutable version lookups.
// internal/cache provides the Redis implementation; any Get error counts
// as a miss.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	cache    Cache
	cacheTTL time.Duration
	log      zerolog.Logger
}

type Option func(*Client)

// WithAPIKey authenticates requests with an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache enables read-through caching of version-by-commit lookups.
// Versions are immutable, so entries never need invalidation.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

func WithClientLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ prompt.Store = (*Client)(nil)

func (c *Client) CreatePrompt(ctx context.Context, req prompt.CreateRequest) (*prompt.Data, error) {
	var out prompt.Data
	if err := c.do(ctx, http.MethodPost, "/api/v1/prompts", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPrompt(ctx context.Context, id string) (*prompt.Data, error) {
	var out prompt.Data
	if err := c.do(ctx, http.MethodGet, "/api/v1/prompts/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePrompt(ctx context.Context, id string, req prompt.UpdateRequest) (*prompt.Data, error) {
	var out prompt.Data
	if err := c.do(ctx, http.MethodPatch, "/api/v1/prompts/"+url.PathEscape(id), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePrompt(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/prompts/"+url.PathEscape(id), nil, nil, nil)
}

type versionListResponse struct {
	Items []prompt.VersionData `json:"items"`
}

func (c *Client) ListVersions(ctx context.Context, promptID string, page, size int, opts prompt.ListVersionsOptions) ([]prompt.VersionData, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))
	if opts.Search != "" {
		query.Set("search", opts.Search)
	}
	if opts.SortBy != "" {
		query.Set("sort_by", opts.SortBy)
	}
	if opts.SortOrder != "" {
		query.Set("sort_order", opts.SortOrder)
	}
	for k, v := range opts.Filters {
		query.Set("filter."+k, v)
	}

	var out versionListResponse
	path := "/api/v1/prompts/" + url.PathEscape(promptID) + "/versions"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) GetVersionByCommit(ctx context.Context, promptID, commit string) (*prompt.VersionData, error) {
	key := "promptkit:version:" + promptID + ":" + commit
	if c.cache != nil {
		var cached prompt.VersionData
		if err := c.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	var out prompt.VersionData
	path := "/api/v1/prompts/" + url.PathEscape(promptID) + "/versions/" + url.PathEscape(commit)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, out, c.cacheTTL); err != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("version cache write failed")
		}
	}
	return &out, nil
}

func (c *Client) RestoreVersion(ctx context.Context, promptID, versionID string) (*prompt.Data, error) {
	var out prompt.Data
	path := "/api/v1/prompts/" + url.PathEscape(promptID) + "/versions/" + url.PathEscape(versionID) + "/restore"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, prompt.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
