package xinfadi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"xinfadi_prices/internal/prices"
	"xinfadi_prices/internal/retry"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL  = "http://www.xinfadi.com.cn"
	PricePath       = "/getPriceData.html"
	DefaultPageSize = 100
	DefaultDelay    = 500 * time.Millisecond
)

// Filters narrow a listing query. Empty fields are not sent.
type Filters struct {
	Category    string
	ProductName string
	StartDate   string
	EndDate     string
}

// PageResult is one decoded listing page.
type PageResult struct {
	Records []prices.RawRecord
	Total   int
}

type pageResponse struct {
	List  []prices.RawRecord `json:"list"`
	Count json.Number        `json:"count"`
	Total json.Number        `json:"total"`
}

type Client struct {
	baseURL string
	http    *resty.Client
	delay   time.Duration
	retry   retry.Config
	sleep   func(context.Context, time.Duration) error

	apiCallCount int64
	apiCallMutex sync.Mutex
}

type Option func(*Client)

// WithRetry retries each page request according to cfg.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithHTTPClient swaps the underlying transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = newResty(resty.NewWithClient(hc), c.baseURL) }
}

// WithSleeper replaces the inter-page wait.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient builds a listing client. delay is the fixed pause between page
// requests and cannot be changed per call.
func NewClient(baseURL string, delay time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if delay < 0 {
		delay = 0
	}

	c := &Client{
		baseURL: baseURL,
		http:    newResty(resty.New().SetTimeout(30*time.Second), baseURL),
		delay:   delay,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newResty(r *resty.Client, baseURL string) *resty.Client {
	return r.SetHeaders(map[string]string{
		"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"Accept-Language":  "zh-CN,zh;q=0.9,en;q=0.8",
		"Referer":          baseURL + "/priceDetail.html",
		"X-Requested-With": "XMLHttpRequest",
	})
}

// IncrementAPICall safely increments the API call counter
func (c *Client) IncrementAPICall() {
	c.apiCallMutex.Lock()
	c.apiCallCount++
	c.apiCallMutex.Unlock()
}

// GetAPICallCount returns the current API call count
func (c *Client) GetAPICallCount() int64 {
	c.apiCallMutex.Lock()
	defer c.apiCallMutex.Unlock()
	return c.apiCallCount
}

// FetchPage requests a single listing page.
func (c *Client) FetchPage(ctx context.Context, filters Filters, page, limit int) (*PageResult, error) {
	params := map[string]string{
		"limit":   strconv.Itoa(limit),
		"current": strconv.Itoa(page),
	}
	if filters.StartDate != "" {
		params["pubDateStartTime"] = filters.StartDate
	}
	if filters.EndDate != "" {
		params["pubDateEndTime"] = filters.EndDate
	}
	if filters.Category != "" {
		params["prodCat"] = filters.Category
	}
	if filters.ProductName != "" {
		params["prodName"] = filters.ProductName
	}

	c.IncrementAPICall()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.baseURL + PricePath)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		body := resp.Body()
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode(), string(body[:min(200, len(body))]))
	}

	var decoded pageResponse
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	total := parseCount(decoded.Count)
	if total == 0 {
		total = parseCount(decoded.Total)
	}

	log.Debug().
		Int("page", page).
		Int("records", len(decoded.List)).
		Int("total", total).
		Msg("Received listing page")

	return &PageResult{Records: decoded.List, Total: total}, nil
}

func parseCount(n json.Number) int {
	if n == "" {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
