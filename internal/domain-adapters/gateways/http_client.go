package gateways

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/jurobystricky/autospec/internal/domain/interfaces"
)

const (
	defaultRetryWaitMin = 250 * time.Millisecond
	defaultRetryWaitMax = 10 * time.Second
)

// NewRetryableClient returns an http.Client that retries connection errors,
// 429 and 5xx responses with exponential backoff.
func NewRetryableClient(retries int, timeout time.Duration, logger interfaces.Logger) *http.Client {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}

	c := retryablehttp.NewClient()
	// Don't log every request
	c.Logger = nil
	c.RetryMax = retries
	c.RetryWaitMin = defaultRetryWaitMin
	c.RetryWaitMax = defaultRetryWaitMax
	c.HTTPClient.Timeout = timeout
	c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug("Retrying request",
				interfaces.F("url", req.URL.String()),
				interfaces.F("attempt", attempt))
		}
	}
	return c.StandardClient()
}
