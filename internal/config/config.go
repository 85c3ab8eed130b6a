package config

import (
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/linkproof/internal/extract"
	"github.com/nao1215/linkproof/internal/rule"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "linkproof"

	// DefaultRoot is the directory checked when none is given.
	DefaultRoot = "docs"

	// DefaultExternalTimeout bounds one external request, including
	// redirects.
	DefaultExternalTimeout = 10 * time.Second

	// DefaultMaxRedirects is the number of redirects followed before a
	// link is reported as "too many redirects".
	DefaultMaxRedirects = 3

	// DefaultRetries is the number of extra attempts after a network error.
	DefaultRetries = 2

	// DefaultBackoff is the delay before the first retry; it doubles for
	// each further attempt.
	DefaultBackoff = 250 * time.Millisecond

	// DefaultCacheTTL is how long a stored successful external check is
	// trusted by later runs.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultDirectoryIndexFile is served for links to a directory.
	DefaultDirectoryIndexFile = "index.html"

	// DefaultAssumeExtension is tried for extensionless internal links.
	DefaultAssumeExtension = ".html"

	// DefaultUserAgent identifies linkproof in outbound requests.
	DefaultUserAgent = "linkproof/" + Version + " (+https://github.com/nao1215/linkproof)"

	// DefaultTorStartupTimeout bounds the bootstrap of the embedded Tor
	// daemon.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Version is the linkproof release, reported by the version command and in
// the User-Agent.
const Version = "0.1.0"

// Config holds every option of a run. It is populated from defaults, the
// configuration file and flags, and passed down explicitly.
type Config struct {
	// Root is the site directory to check.
	Root string

	// Extensions select which files are documents.
	Extensions []string

	// IgnoreFiles are path.Match globs for documents not to check.
	IgnoreFiles []string

	// IgnoreURLs are patterns for targets reported as ignored: /regexp/,
	// a glob with * or ?, or an exact URL.
	IgnoreURLs []string

	// IgnoreSelectors are CSS selectors for elements whose references are
	// ignored, in addition to data-proofer-ignore.
	IgnoreSelectors []string

	// IgnoreStatusCodes are HTTP status codes treated as success.
	IgnoreStatusCodes []int

	AllowHashHref      bool
	AllowMissingHref   bool
	CheckImagesHaveAlt bool
	IgnoreEmptyAlt     bool

	// AllowedSchemes lists the URL schemes the scheme rule accepts.
	AllowedSchemes []string

	EnforceHTTPS        bool
	CheckSRI            bool
	CheckFavicon        bool
	CheckOpenGraph      bool
	CheckDuplicateIDs   bool
	CheckOnionAddresses bool
	CheckImageMetadata  bool

	// ValidateQuery keeps the query string of internal links as part of
	// the file name, for sites that store "page?x=1" as a file.
	ValidateQuery bool

	// DirectoryIndex serves DirectoryIndexFile for links to a directory.
	DirectoryIndex     bool
	DirectoryIndexFile string

	// AssumeExtension is tried for internal links without an extension.
	// Empty disables the fallback.
	AssumeExtension string

	CaseSensitivePaths bool

	// CheckExternal enables network checks. When false every external
	// reference is skipped.
	CheckExternal bool

	// ExternalTimeout bounds one external request.
	ExternalTimeout time.Duration

	// RunTimeout bounds the whole run. Zero means no limit.
	RunTimeout time.Duration

	MaxRedirects int

	// WorkerCount bounds concurrent external requests.
	WorkerCount int

	// DocWorkers bounds documents parsed at once.
	DocWorkers int

	Retries int
	Backoff time.Duration

	// Cache enables the persistent external check cache.
	Cache bool

	// CacheTTL is how long a stored check stays fresh.
	CacheTTL time.Duration

	// CacheDir holds the SQLite database. Defaults to the XDG cache dir.
	CacheDir string

	UserAgent string

	// Headers are added to every external request.
	Headers map[string]string

	// SocksProxy routes .onion checks through an existing Tor SOCKS5
	// proxy ("host:port").
	SocksProxy string

	// Tor starts an embedded Tor daemon for .onion checks when no
	// SocksProxy is set.
	Tor               bool
	TorStartupTimeout time.Duration

	// JSONReport and MarkdownReport select the output format; text when
	// both are false.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile receives the report instead of stdout.
	ReportFile string

	NoColor bool

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// ConfigFilePath is the configuration file given with --config.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Root:                DefaultRoot,
		Extensions:          []string{".html", ".htm"},
		AllowedSchemes:      slices.Clone(rule.DefaultAllowedSchemes),
		CheckImagesHaveAlt:  true,
		IgnoreEmptyAlt:      true,
		CheckDuplicateIDs:   true,
		CheckOnionAddresses: true,
		DirectoryIndex:      true,
		DirectoryIndexFile:  DefaultDirectoryIndexFile,
		AssumeExtension:     DefaultAssumeExtension,
		CaseSensitivePaths:  true,
		CheckExternal:       true,
		ExternalTimeout:     DefaultExternalTimeout,
		MaxRedirects:        DefaultMaxRedirects,
		WorkerCount:         4 * runtime.NumCPU(),
		DocWorkers:          runtime.NumCPU(),
		Retries:             DefaultRetries,
		Backoff:             DefaultBackoff,
		Cache:               true,
		CacheTTL:            DefaultCacheTTL,
		UserAgent:           DefaultUserAgent,
		TorStartupTimeout:   DefaultTorStartupTimeout,
	}
}

// XDGConfigDir returns the XDG config directory for linkproof.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for linkproof.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// DatabaseDir returns the directory holding the check cache and run
// history database.
func (c *Config) DatabaseDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return XDGCacheDir()
}

// Rules returns the rule engine settings.
func (c *Config) Rules() rule.Config {
	return rule.Config{
		AllowHashHref:       c.AllowHashHref,
		AllowMissingHref:    c.AllowMissingHref,
		CheckImagesHaveAlt:  c.CheckImagesHaveAlt,
		IgnoreEmptyAlt:      c.IgnoreEmptyAlt,
		AllowedSchemes:      c.AllowedSchemes,
		EnforceHTTPS:        c.EnforceHTTPS,
		CheckSRI:            c.CheckSRI,
		CheckOnionAddresses: c.CheckOnionAddresses,
		CheckImageMetadata:  c.CheckImageMetadata,
		CheckDuplicateIDs:   c.CheckDuplicateIDs,
		CheckFavicon:        c.CheckFavicon,
		IgnoreURLs:          c.IgnoreURLs,
	}
}

// Validate checks the configuration and returns the first problem found
// as a *ConfigurationError. It runs once, before any checking starts.
func (c *Config) Validate() error {
	if info, err := os.Stat(c.Root); err != nil || !info.IsDir() {
		return invalid("root", fmt.Errorf("%w: %s", ErrInvalidRoot, c.Root))
	}
	if len(c.Extensions) == 0 {
		return invalid("extensions", ErrNoExtensions)
	}

	if c.ExternalTimeout <= 0 {
		return invalid("external_timeout_ms", ErrInvalidTimeout)
	}
	if c.RunTimeout < 0 {
		return invalid("run_timeout_ms", ErrInvalidRunTimeout)
	}
	if c.MaxRedirects < 0 {
		return invalid("max_redirects", ErrInvalidMaxRedirects)
	}
	if c.WorkerCount <= 0 {
		return invalid("worker_count", ErrInvalidWorkerCount)
	}
	if c.DocWorkers <= 0 {
		return invalid("doc_workers", ErrInvalidWorkerCount)
	}
	if c.Retries < 0 {
		return invalid("retries", ErrInvalidRetries)
	}
	if c.Backoff < 0 {
		return invalid("backoff_ms", ErrInvalidRetries)
	}
	if c.CacheTTL < 0 {
		return invalid("cache_ttl_seconds", ErrInvalidCacheTTL)
	}

	for _, code := range c.IgnoreStatusCodes {
		if code < 100 || code > 599 {
			return invalid("ignore_status_codes", fmt.Errorf("%w: %d", ErrInvalidStatusCode, code))
		}
	}
	if _, err := rule.CompileURLMatcher(c.IgnoreURLs); err != nil {
		return invalid("ignore_urls", fmt.Errorf("%w: %w", ErrInvalidPattern, err))
	}
	for _, pattern := range c.IgnoreFiles {
		if _, err := path.Match(pattern, ""); err != nil {
			return invalid("ignore_files", fmt.Errorf("%w: %q", ErrInvalidPattern, pattern))
		}
	}
	if _, err := extract.CompileSelectors(c.IgnoreSelectors); err != nil {
		return invalid("ignore_selectors", fmt.Errorf("%w: %w", ErrInvalidSelector, err))
	}

	if c.SocksProxy != "" {
		if err := validateHostPort(c.SocksProxy); err != nil {
			return invalid("socks_proxy", err)
		}
	}
	if c.JSONReport && c.MarkdownReport {
		return invalid("format", ErrConflictingReportFormats)
	}
	return nil
}

func validateHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, addr)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, addr)
	}
	return nil
}
