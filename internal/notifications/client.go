package notifications

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"xinfadi_prices/internal/retry"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Client posts plain-text messages to an ntfy topic.
type Client struct {
	http     *resty.Client
	baseURL  string
	topic    string
	enabled  bool
	priority string
	retry    retry.Config
	// Circuit breaker state
	failures    int
	lastFailure time.Time
	circuitOpen bool
	mutex       sync.Mutex
	// Metrics
	totalSent    int64
	totalFailed  int64
	totalRetries int64
}

// RunSummary describes one finished crawl.
type RunSummary struct {
	RunID     string
	StartDate string
	EndDate   string
	Rows      int
	Pages     int
	Truncated bool
	Files     []string
	FeishuURL string
	SheetsTab string
	Err       error
}

type NotificationError struct {
	Type       string
	StatusCode int
	Attempt    int
	Underlying error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [%s] attempt %d: %v", e.Type, e.Attempt, e.Underlying)
}

func (e *NotificationError) Unwrap() error { return e.Underlying }

func (e *NotificationError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "timeout", "rate_limit":
		return true
	case "auth", "client":
		return false
	default:
		return e.StatusCode >= 500
	}
}

func NewClient(baseURL, topic string, enabled bool, priority string, cfg retry.Config) *Client {
	return &Client{
		http:     resty.New().SetTimeout(cfg.Timeout),
		baseURL:  strings.TrimRight(baseURL, "/"),
		topic:    topic,
		enabled:  enabled,
		priority: priority,
		retry:    cfg,
	}
}

func (c *Client) SendNotification(ctx context.Context, message string) error {
	if !c.enabled {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	if c.isCircuitOpen() {
		log.Warn().Msg("Circuit breaker open, skipping notification")
		return &NotificationError{Type: "circuit_open", Underlying: fmt.Errorf("circuit breaker is open")}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying notification after delay")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.incrementRetries()
		}

		err := c.sendSingleNotification(ctx, message, attempt+1)
		if err == nil {
			c.recordSuccess()
			return nil
		}
		lastErr = err

		if notifErr, ok := err.(*NotificationError); ok && !notifErr.IsRetryable() {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("Non-retryable error, giving up")
			c.recordFailure()
			return err
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", c.retry.MaxRetries).
			Msg("Notification attempt failed")
	}

	c.recordFailure()
	return &NotificationError{
		Type:       "max_retries_exceeded",
		Attempt:    c.retry.MaxRetries + 1,
		Underlying: lastErr,
	}
}

func (c *Client) sendSingleNotification(ctx context.Context, message string, attempt int) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)

	log.Debug().
		Str("url", url).
		Int("attempt", attempt).
		Msg("Sending notification")

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetHeader("Title", "Xinfadi prices").
		SetBody(message)
	if c.priority != "" {
		req.SetHeader("Priority", c.priority)
	}

	resp, err := req.Post(url)
	if err != nil {
		errType := "network"
		if ctx.Err() != nil {
			errType = "timeout"
		}
		return &NotificationError{Type: errType, Attempt: attempt, Underlying: err}
	}

	if resp.StatusCode() >= 400 {
		return &NotificationError{
			Type:       categorizeHTTPError(resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Attempt:    attempt,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.Status()),
		}
	}

	log.Debug().
		Int("status_code", resp.StatusCode()).
		Int("attempt", attempt).
		Msg("Notification sent successfully")
	return nil
}

// NotifyRun reports a finished crawl. Failures are logged, never returned.
func (c *Client) NotifyRun(ctx context.Context, summary RunSummary) {
	if !c.enabled {
		return
	}
	if err := c.SendNotification(ctx, FormatRunMessage(summary)); err != nil {
		log.Warn().Err(err).Msg("Run notification failed")
	}
}

// FormatRunMessage renders summary as a short multi-line message.
func FormatRunMessage(s RunSummary) string {
	var sb strings.Builder

	period := s.StartDate
	if s.EndDate != "" && s.EndDate != s.StartDate {
		period = s.StartDate + " ~ " + s.EndDate
	}

	if s.Err != nil {
		sb.WriteString(fmt.Sprintf("新发地价格抓取失败 %s\n", period))
		sb.WriteString(fmt.Sprintf("错误: %v\n", s.Err))
	} else {
		sb.WriteString(fmt.Sprintf("新发地价格 %s: %d 条 (%d 页)\n", period, s.Rows, s.Pages))
	}
	if s.Truncated {
		sb.WriteString("注意: 分页中途失败，数据可能不完整\n")
	}
	for _, f := range s.Files {
		sb.WriteString(fmt.Sprintf("文件: %s\n", f))
	}
	if s.FeishuURL != "" {
		sb.WriteString(fmt.Sprintf("飞书: %s\n", s.FeishuURL))
	}
	if s.SheetsTab != "" {
		sb.WriteString(fmt.Sprintf("Google Sheets: %s\n", s.SheetsTab))
	}
	if s.RunID != "" {
		sb.WriteString(fmt.Sprintf("run %s\n", s.RunID))
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.circuitOpen {
		return false
	}

	// half-open after 30s
	if time.Since(c.lastFailure) > 30*time.Second {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker moving to half-open state")
	}
	return c.circuitOpen
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalSent++
	c.failures = 0
	if c.circuitOpen {
		c.circuitOpen = false
		log.Info().Msg("Circuit breaker closed after successful notification")
	}
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalFailed++
	c.failures++
	c.lastFailure = time.Now()

	if c.failures >= 5 && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().
			Int("failures", c.failures).
			Msg("Circuit breaker opened due to consecutive failures")
	}
}

func (c *Client) incrementRetries() {
	c.mutex.Lock()
	c.totalRetries++
	c.mutex.Unlock()
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.retry.BaseDelay) * math.Pow(2, float64(attempt-1))

	// ±25% jitter
	jitter := rand.Float64()*0.5 - 0.25
	backoff = backoff * (1 + jitter)

	if maxBackoff := float64(c.retry.MaxDelay); backoff > maxBackoff {
		backoff = maxBackoff
	}
	return time.Duration(backoff)
}

func categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == 401 || statusCode == 403:
		return "auth"
	case statusCode == 429:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}

// GetMetrics returns current notification metrics
func (c *Client) GetMetrics() (sent, failed, retries int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.totalSent, c.totalFailed, c.totalRetries
}
