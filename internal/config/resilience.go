package config

import (
	"time"

	"xinfadi_prices/internal/retry"
)

// ResilienceConfig groups the retry policies of the outbound integrations.
type ResilienceConfig struct {
	FetchPage retry.Config
	Notify    retry.Config
}

// DefaultResilienceConfig never retries a page: a failed page ends the
// crawl early, the same way an empty page does.
var DefaultResilienceConfig = ResilienceConfig{
	FetchPage: retry.Config{
		MaxRetries: 0,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    30 * time.Second,
	},
	Notify: retry.Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    10 * time.Second,
	},
}

// WithFetchRetries returns a copy of c that retries each page up to n times.
func (c ResilienceConfig) WithFetchRetries(n int) ResilienceConfig {
	if n < 0 {
		n = 0
	}
	c.FetchPage.MaxRetries = n
	return c
}
