package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched for in the
// current and home directories.
const DefaultConfigFile = ".linkproof.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the structure of .linkproof.yaml. Every field is a pointer so
// that ApplyTo can tell an explicit false or zero from an absent key.
type File struct {
	Root string `yaml:"root,omitempty"`

	IgnoreURLs        []string `yaml:"ignore_urls,omitempty"`
	IgnoreStatusCodes []int    `yaml:"ignore_status_codes,omitempty"`
	IgnoreFiles       []string `yaml:"ignore_files,omitempty"`
	IgnoreSelectors   []string `yaml:"ignore_selectors,omitempty"`
	Extensions        []string `yaml:"extensions,omitempty"`
	AllowedSchemes    []string `yaml:"allowed_schemes,omitempty"`

	AllowHashHref       *bool `yaml:"allow_hash_href,omitempty"`
	AllowMissingHref    *bool `yaml:"allow_missing_href,omitempty"`
	CheckImagesHaveAlt  *bool `yaml:"check_images_have_alt,omitempty"`
	IgnoreEmptyAlt      *bool `yaml:"ignore_empty_alt,omitempty"`
	EnforceHTTPS        *bool `yaml:"enforce_https,omitempty"`
	CheckSRI            *bool `yaml:"check_sri,omitempty"`
	CheckFavicon        *bool `yaml:"check_favicon,omitempty"`
	CheckOpenGraph      *bool `yaml:"check_opengraph,omitempty"`
	CheckDuplicateIDs   *bool `yaml:"check_duplicate_ids,omitempty"`
	CheckOnionAddresses *bool `yaml:"check_onion_addresses,omitempty"`
	CheckImageMetadata  *bool `yaml:"check_image_metadata,omitempty"`

	ValidateQuery      *bool   `yaml:"validate_query,omitempty"`
	DirectoryIndex     *bool   `yaml:"directory_index,omitempty"`
	DirectoryIndexFile *string `yaml:"directory_index_file,omitempty"`
	AssumeExtension    *string `yaml:"assume_extension,omitempty"`
	CaseSensitivePaths *bool   `yaml:"case_sensitive_paths,omitempty"`

	CheckExternal     *bool `yaml:"check_external,omitempty"`
	ExternalTimeoutMS *int  `yaml:"external_timeout_ms,omitempty"`
	RunTimeoutMS      *int  `yaml:"run_timeout_ms,omitempty"`
	MaxRedirects      *int  `yaml:"max_redirects,omitempty"`
	WorkerCount       *int  `yaml:"worker_count,omitempty"`
	DocWorkers        *int  `yaml:"doc_workers,omitempty"`
	Retries           *int  `yaml:"retries,omitempty"`
	BackoffMS         *int  `yaml:"backoff_ms,omitempty"`

	Cache           *bool   `yaml:"cache,omitempty"`
	CacheTTLSeconds *int    `yaml:"cache_ttl_seconds,omitempty"`
	CacheDir        *string `yaml:"cache_dir,omitempty"`

	UserAgent  *string           `yaml:"user_agent,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	SocksProxy *string           `yaml:"socks_proxy,omitempty"`
	Tor        *bool             `yaml:"tor,omitempty"`
}

// LoadConfigFile loads a configuration file. If the file does not exist, it
// returns ErrConfigNotFound. Unknown keys are rejected so that a misspelled
// option does not silently fall back to its default.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return ParseConfigFile(data)
}

// ParseConfigFile decodes the YAML content of a configuration file. An
// empty document yields an empty File.
func ParseConfigFile(data []byte) (*File, error) {
	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigurationError{Option: "file", Err: err}
	}
	return &cf, nil
}

// ApplyTo copies every key set in the file onto cfg.
func (f *File) ApplyTo(cfg *Config) {
	if f.Root != "" {
		cfg.Root = f.Root
	}

	setSlice(&cfg.IgnoreURLs, f.IgnoreURLs)
	setSlice(&cfg.IgnoreFiles, f.IgnoreFiles)
	setSlice(&cfg.IgnoreSelectors, f.IgnoreSelectors)
	setSlice(&cfg.Extensions, f.Extensions)
	setSlice(&cfg.AllowedSchemes, f.AllowedSchemes)
	if f.IgnoreStatusCodes != nil {
		cfg.IgnoreStatusCodes = f.IgnoreStatusCodes
	}

	set(&cfg.AllowHashHref, f.AllowHashHref)
	set(&cfg.AllowMissingHref, f.AllowMissingHref)
	set(&cfg.CheckImagesHaveAlt, f.CheckImagesHaveAlt)
	set(&cfg.IgnoreEmptyAlt, f.IgnoreEmptyAlt)
	set(&cfg.EnforceHTTPS, f.EnforceHTTPS)
	set(&cfg.CheckSRI, f.CheckSRI)
	set(&cfg.CheckFavicon, f.CheckFavicon)
	set(&cfg.CheckOpenGraph, f.CheckOpenGraph)
	set(&cfg.CheckDuplicateIDs, f.CheckDuplicateIDs)
	set(&cfg.CheckOnionAddresses, f.CheckOnionAddresses)
	set(&cfg.CheckImageMetadata, f.CheckImageMetadata)

	set(&cfg.ValidateQuery, f.ValidateQuery)
	set(&cfg.DirectoryIndex, f.DirectoryIndex)
	set(&cfg.DirectoryIndexFile, f.DirectoryIndexFile)
	set(&cfg.AssumeExtension, f.AssumeExtension)
	set(&cfg.CaseSensitivePaths, f.CaseSensitivePaths)

	set(&cfg.CheckExternal, f.CheckExternal)
	setDuration(&cfg.ExternalTimeout, f.ExternalTimeoutMS, time.Millisecond)
	setDuration(&cfg.RunTimeout, f.RunTimeoutMS, time.Millisecond)
	set(&cfg.MaxRedirects, f.MaxRedirects)
	set(&cfg.WorkerCount, f.WorkerCount)
	set(&cfg.DocWorkers, f.DocWorkers)
	set(&cfg.Retries, f.Retries)
	setDuration(&cfg.Backoff, f.BackoffMS, time.Millisecond)

	set(&cfg.Cache, f.Cache)
	setDuration(&cfg.CacheTTL, f.CacheTTLSeconds, time.Second)
	set(&cfg.CacheDir, f.CacheDir)

	set(&cfg.UserAgent, f.UserAgent)
	if len(f.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(f.Headers))
		}
		for k, v := range f.Headers {
			cfg.Headers[k] = v
		}
	}
	set(&cfg.SocksProxy, f.SocksProxy)
	set(&cfg.Tor, f.Tor)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setSlice(dst *[]string, v []string) {
	if v != nil {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *int, unit time.Duration) {
	if v != nil {
		*dst = time.Duration(*v) * unit
	}
}

// FindConfigFile searches for the configuration file in the following order:
//  1. If configPath is specified, use it directly
//  2. .linkproof.yaml in the current directory
//  3. .linkproof.yaml in the user's home directory
//  4. config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Load builds a Config from the defaults and the configuration file found
// by FindConfigFile. An explicit path that does not exist is an error; a
// missing implicit file is not.
func Load(configPath string) (*Config, error) {
	cfg := NewConfig()
	cfg.ConfigFilePath = configPath

	found := FindConfigFile(configPath)
	if found == "" {
		if configPath != "" {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return cfg, nil
	}

	file, err := LoadConfigFile(found)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", found, err)
	}
	file.ApplyTo(cfg)
	cfg.ConfigFilePath = found
	return cfg, nil
}
