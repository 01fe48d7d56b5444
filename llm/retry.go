package llm

import "time"

// RetryConfig controls how many times a single endpoint is retried before
// the client moves on to the next model in the fallback chain.
type RetryConfig struct {
	// MaxAttempts bounds tries per endpoint, the first one included.
	MaxAttempts int

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration

	// BackoffMultiplier grows the delay after each failed attempt.
	BackoffMultiplier float64

	// MaxBackoff caps the grown delay.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the defaults for analysis runs. A phase is one
// long request, so attempts stay low and the base delay starts high enough
// to ride out a rate-limit window before the fallback chain takes over.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        20 * time.Second,
	}
}
