package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors. Validate wraps them in a
// ConfigurationError naming the offending option, so callers can use
// errors.Is for the kind and errors.As for the option.
var (
	// ErrInvalidRoot is returned when the site directory does not exist or
	// is not a directory.
	ErrInvalidRoot = errors.New("invalid site directory: must be an existing directory")

	// ErrInvalidTimeout is returned when the external request timeout is
	// not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRunTimeout is returned for a negative run timeout. Zero
	// means no limit.
	ErrInvalidRunTimeout = errors.New("invalid run timeout: must be non-negative")

	// ErrInvalidMaxRedirects is returned for a negative redirect limit.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidWorkerCount is returned when a pool size is not positive.
	ErrInvalidWorkerCount = errors.New("invalid worker count: must be positive")

	// ErrInvalidRetries is returned for a negative retry count or backoff.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidCacheTTL is returned for a negative cache freshness window.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be non-negative")

	// ErrInvalidStatusCode is returned for ignore_status_codes entries
	// outside 100-599.
	ErrInvalidStatusCode = errors.New("invalid status code: must be between 100 and 599")

	// ErrInvalidPattern is returned for ignore_urls or ignore_files
	// patterns that do not compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrInvalidSelector is returned for ignore_selectors that are not
	// valid CSS selectors.
	ErrInvalidSelector = errors.New("invalid CSS selector")

	// ErrNoExtensions is returned when no document extension is configured.
	ErrNoExtensions = errors.New("no document extensions: at least one is required")

	// ErrInvalidProxyAddress is returned when socks_proxy is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid SOCKS proxy address: must be host:port")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)

// ConfigurationError reports an invalid option. Its message names the
// option so the user can find it in the file or on the command line.
type ConfigurationError struct {
	// Option is the YAML key of the invalid option.
	Option string
	Err    error
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Option, e.Err)
}

// Unwrap returns the underlying sentinel error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func invalid(option string, err error) error {
	return &ConfigurationError{Option: option, Err: err}
}
