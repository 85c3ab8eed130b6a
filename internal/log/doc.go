// Package log provides the slog logger used across linkproof, wrapped in a
// handler that keeps credentials out of log output.
//
// Sites under test link to URLs that often carry secrets: signed asset
// URLs, API keys in query strings, basic auth user info. The same URLs end
// up in debug logs when --verbose is set. SecureHandler masks:
//   - attributes whose key names a credential (authorization, cookie, token)
//   - values that look like bearer tokens, JWTs or private keys
//   - the password of URL user info
//   - sensitive query parameters (token, key, signature, ...) in URL values
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("checking", "url", "https://cdn.example.com/a.js?token=abc")
//	// url=https://cdn.example.com/a.js?token=***REDACTED***
//
// The logger is also handed to tornago when the embedded Tor daemon is
// used for .onion links.
package log
