package cache

import "errors"

var (
	// ErrCacheMiss is returned when a key is not present or has expired.
	ErrCacheMiss = errors.New("cache: miss")

	// ErrClosed is returned when operating on a closed cache.
	ErrClosed = errors.New("cache: closed")

	// ErrInvalidPattern is returned when a glob pattern cannot be compiled.
	ErrInvalidPattern = errors.New("cache: invalid pattern")

	// ErrFailedToParseConnString is returned when the redis connection URL is invalid.
	ErrFailedToParseConnString = errors.New("cache: failed to parse redis connection string")

	// ErrNotReady is returned when redis does not become ready within the
	// configured retry window.
	ErrNotReady = errors.New("cache: redis did not become ready within the given time period")

	// ErrHealthcheckFailed is returned when the redis healthcheck fails.
	ErrHealthcheckFailed = errors.New("cache: redis healthcheck failed")
)
