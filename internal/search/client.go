// Package search augments answers with live Google results from SerpAPI.
package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/logging"
	"github.com/Divas-Gupta30/ragflow/internal/metrics"
)

// Searcher runs one web search.
type Searcher interface {
	Search(ctx context.Context, query string) (*Bundle, error)
}

type Options struct {
	BaseURL      string
	APIKey       string
	Location     string
	Language     string
	Country      string
	GoogleDomain string
	Timeout      time.Duration
	CacheTTL     time.Duration
}

type Client struct {
	opts         Options
	http         *http.Client
	cache        Cache
	log          *logging.Logger
	cacheTimeout time.Duration
}

// NewClient builds a SerpAPI client. cache may be nil.
func NewClient(opts Options, cache Cache, log *logging.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://serpapi.com"
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		opts:         opts,
		http:         &http.Client{Timeout: opts.Timeout},
		cache:        cache,
		log:          log,
		cacheTimeout: 2 * time.Second,
	}
}

func cacheKey(query string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(strings.ToLower(query))))
	return "search:" + hex.EncodeToString(sum[:])
}

// Search returns cached results when present. Cache failures are logged and
// otherwise ignored.
func (c *Client) Search(ctx context.Context, query string) (*Bundle, error) {
	key := cacheKey(query)
	if b := c.fromCache(ctx, key); b != nil {
		// Keys are case-folded; report the query as this caller asked it.
		b.Query = query
		metrics.SearchCallsTotal.WithLabelValues("cache_hit").Inc()
		return b, nil
	}

	b, err := c.fetch(ctx, query)
	if err != nil {
		metrics.SearchCallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SearchCallsTotal.WithLabelValues("api").Inc()
	c.toCache(ctx, key, b)
	return b, nil
}

func (c *Client) fetch(ctx context.Context, query string) (*Bundle, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", c.opts.APIKey)
	setIf(params, "location", c.opts.Location)
	setIf(params, "hl", c.opts.Language)
	setIf(params, "gl", c.opts.Country)
	setIf(params, "google_domain", c.opts.GoogleDomain)

	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + "/search.json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrSearchUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: serpapi status %d: %s", apperr.ErrSearchUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result serpResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", apperr.ErrSearchUnavailable, err)
	}
	return buildBundle(query, &result), nil
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func (c *Client) fromCache(ctx context.Context, key string) *Bundle {
	if c.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("search cache read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		c.log.Warn("search cache entry unreadable", "key", key, "error", err)
		return nil
	}
	return &b
}

func (c *Client) toCache(ctx context.Context, key string, b *Bundle) {
	if c.cache == nil || c.opts.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()
	if err := c.cache.Set(ctx, key, data, c.opts.CacheTTL); err != nil {
		c.log.Warn("search cache write failed", "key", key, "error", err)
	}
}
