package qchat

import (
	"net/http"
	"time"
)

// DeliveryStrategy selects how the client receives room events.
type DeliveryStrategy string

const (
	// StrategyAuto uses SSE and falls back to polling when the stream
	// cannot be established.
	StrategyAuto DeliveryStrategy = "auto"

	// StrategySSE forces server-sent events delivery.
	StrategySSE DeliveryStrategy = "sse"

	// StrategyPolling forces interval polling delivery.
	StrategyPolling DeliveryStrategy = "polling"
)

// options holds the client configuration.
type options struct {
	httpClient        *http.Client
	timeout           time.Duration
	maxRetries        int
	retryOn           []int
	deliveryStrategy  DeliveryStrategy
	pollBaseInterval  time.Duration
	pollMaxInterval   time.Duration
	pollBackoffFactor float64
	pollJitter        float64
}

func defaultOptions() *options {
	return &options{
		timeout:           30 * time.Second,
		maxRetries:        3,
		deliveryStrategy:  StrategyAuto,
		pollBaseInterval:  2 * time.Second,
		pollMaxInterval:   30 * time.Second,
		pollBackoffFactor: 1.5,
		pollJitter:        0.3,
	}
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient sets a custom HTTP client. Useful for tests and for
// callers that need custom transports or proxies.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTimeout sets the per-request timeout. Default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetries sets the maximum number of retries for transient failures.
// Default is 3. Zero disables retries.
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryOn sets the HTTP status codes that trigger a retry.
// Default is 408, 429, 500, 502, 503 and 504.
func WithRetryOn(codes ...int) Option {
	return func(o *options) {
		o.retryOn = codes
	}
}

// WithDeliveryStrategy selects the event delivery mechanism.
// Default is StrategyAuto.
func WithDeliveryStrategy(s DeliveryStrategy) Option {
	return func(o *options) {
		switch s {
		case StrategyAuto, StrategySSE, StrategyPolling:
			o.deliveryStrategy = s
		}
	}
}

// WithPollingInterval sets the base and maximum polling intervals for the
// polling delivery strategy. The interval backs off from base toward max
// while a room is idle and resets on activity.
func WithPollingInterval(base, max time.Duration) Option {
	return func(o *options) {
		if base > 0 {
			o.pollBaseInterval = base
		}
		if max >= base {
			o.pollMaxInterval = max
		}
	}
}
