// Package feishu talks to the Feishu open platform: token lifecycles,
// drive listing and spreadsheet creation and writes.
package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://open.feishu.cn/open-apis"

// APIError is a rejection reported by Feishu, either as a non-zero code in
// the response envelope or as an HTTP error status.
type APIError struct {
	Op     string
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu %s failed: code=%d status=%d msg=%s", e.Op, e.Code, e.Status, e.Msg)
}

type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// TokenSource yields the bearer credential for drive and sheet calls.
type TokenSource interface {
	Bearer(ctx context.Context) (*oauth2.Token, error)
}

// Client performs drive and spreadsheet operations on behalf of whatever
// identity its TokenSource resolves to.
type Client struct {
	http   *resty.Client
	tokens TokenSource
}

type ClientOption func(*Client)

// WithClientHTTP swaps the transport, mostly for tests.
func WithClientHTTP(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = newResty(resty.NewWithClient(hc), c.http.BaseURL) }
}

func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		http:   newResty(resty.New().SetTimeout(30*time.Second), baseURL),
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newResty(r *resty.Client, baseURL string) *resty.Client {
	return r.SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json; charset=utf-8")
}

// authorized starts a request carrying the current bearer token.
func (c *Client) authorized(ctx context.Context) (*resty.Request, error) {
	tok, err := c.tokens.Bearer(ctx)
	if err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx).SetAuthToken(tok.AccessToken), nil
}

// execute sends req and decodes the whole body into out once the envelope
// reports success.
func execute(req *resty.Request, method, path, op string, out any) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	body := resp.Body()
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{
			Op:     op,
			Status: resp.StatusCode(),
			Code:   -1,
			Msg:    fmt.Sprintf("unparsable response: %s", string(body[:min(200, len(body))])),
		}
	}
	if env.Code != 0 || resp.IsError() {
		return &APIError{Op: op, Status: resp.StatusCode(), Code: env.Code, Msg: env.Msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
