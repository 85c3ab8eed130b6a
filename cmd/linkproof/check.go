package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/nao1215/linkproof/internal/checker"
	"github.com/nao1215/linkproof/internal/config"
	"github.com/nao1215/linkproof/internal/database"
	"github.com/nao1215/linkproof/internal/extract"
	"github.com/nao1215/linkproof/internal/fileutil"
	"github.com/nao1215/linkproof/internal/log"
	"github.com/nao1215/linkproof/internal/model"
	"github.com/nao1215/linkproof/internal/pipeline"
	"github.com/nao1215/linkproof/internal/report"
	"github.com/nao1215/linkproof/internal/resolver"
	"github.com/nao1215/linkproof/internal/rule"
	"github.com/nao1215/linkproof/internal/tor"
	"github.com/spf13/cobra"
)

// persistTimeout bounds saving the cache and run history after the run,
// including the wait for another linkproof process holding the lock.
const persistTimeout = 10 * time.Second

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [dir]",
		Short: "Check a site directory for broken links",
		Long: `Check walks a directory of rendered HTML and validates every reference:

- Internal links must point at an existing file, and fragments at an
  existing id or name in the target document
- External URLs must answer with a 2xx status (checked concurrently, with
  a cache shared across runs)
- Images need alt text; other rules are enabled in the configuration file

The exit status is 0 when every check passes, 1 when some fail, and 2 on
configuration or runtime errors.

Examples:
  # Check the default "docs" directory
  linkproof check

  # Check a Hugo build without touching the network
  linkproof check public --offline

  # Write a Markdown report for a pull request comment
  linkproof check _site --markdown -o link-report.md

  # Ignore a flaky host and treat 429 as success
  linkproof check --ignore-url 'https://twitter.com/*' --ignore-status 429`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCheckCmd,
	}
	addCheckFlags(cmd)
	return cmd
}

func addCheckFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.StringP("config", "c", "",
		"Configuration file path (default: .linkproof.yaml in current or home directory)")

	// External checks
	f.Bool("offline", false, "Skip external URL checks")
	f.DurationP("timeout", "t", config.DefaultExternalTimeout, "Timeout for each external request")
	f.Duration("run-timeout", 0, "Time limit for the whole run; partial results are reported (0 = none)")
	f.Int("max-redirects", config.DefaultMaxRedirects, "Redirects followed before a link is reported")
	f.Int("workers", 0, "Concurrent external requests (default: 4 x CPUs)")
	f.Int("doc-workers", 0, "Documents parsed concurrently (default: CPUs)")
	f.Int("retries", config.DefaultRetries, "Retries after a network error")
	f.StringArray("ignore-url", nil, "URL pattern to ignore: exact, glob with *, or /regexp/ (repeatable)")
	f.IntSlice("ignore-status", nil, "HTTP status code treated as success (repeatable)")

	// Rules
	f.Bool("allow-hash-href", false, `Accept href="#"`)
	f.Bool("check-alt", true, "Require alt text on images")
	f.Bool("case-insensitive", false, "Match internal link paths case-insensitively")

	// Cache
	f.Duration("cache-ttl", config.DefaultCacheTTL, "How long successful external checks are reused")
	f.Bool("no-cache", false, "Disable the persistent cache and run history")

	// Tor
	f.String("socks-proxy", "", "Tor SOCKS5 proxy for .onion links (e.g., 127.0.0.1:9050)")
	f.Bool("tor", false, "Start an embedded Tor daemon for .onion links")

	// Report
	f.BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	f.StringP("output", "o", "", "Write the report to a file; a text summary still goes to stdout")
	f.Bool("no-color", false, "Disable colored output")
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCheckConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := runCheck(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := writeReport(ctx, cmd.OutOrStdout(), cfg, rep); err != nil {
		return err
	}
	if !rep.Pass || rep.Interrupted {
		return errChecksFailed
	}
	return nil
}

// buildCheckConfig layers the configuration file and the flags the user
// changed over the defaults.
func buildCheckConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	f := cmd.Flags()

	configPath, err := f.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.Root = args[0]
	}

	var errs []error
	boolFlag := func(name string, dst *bool, invert bool) {
		if !f.Changed(name) {
			return
		}
		v, err := f.GetBool(name)
		errs = append(errs, err)
		*dst = v != invert
	}
	intFlag := func(name string, dst *int) {
		if !f.Changed(name) {
			return
		}
		v, err := f.GetInt(name)
		errs = append(errs, err)
		*dst = v
	}
	durationFlag := func(name string, dst *time.Duration) {
		if !f.Changed(name) {
			return
		}
		v, err := f.GetDuration(name)
		errs = append(errs, err)
		*dst = v
	}
	stringFlag := func(name string, dst *string) {
		if !f.Changed(name) {
			return
		}
		v, err := f.GetString(name)
		errs = append(errs, err)
		*dst = v
	}

	boolFlag("offline", &cfg.CheckExternal, true)
	durationFlag("timeout", &cfg.ExternalTimeout)
	durationFlag("run-timeout", &cfg.RunTimeout)
	intFlag("max-redirects", &cfg.MaxRedirects)
	intFlag("workers", &cfg.WorkerCount)
	intFlag("doc-workers", &cfg.DocWorkers)
	intFlag("retries", &cfg.Retries)
	boolFlag("allow-hash-href", &cfg.AllowHashHref, false)
	boolFlag("check-alt", &cfg.CheckImagesHaveAlt, false)
	boolFlag("case-insensitive", &cfg.CaseSensitivePaths, true)
	durationFlag("cache-ttl", &cfg.CacheTTL)
	boolFlag("no-cache", &cfg.Cache, true)
	stringFlag("socks-proxy", &cfg.SocksProxy)
	boolFlag("tor", &cfg.Tor, false)
	boolFlag("json", &cfg.JSONReport, false)
	boolFlag("markdown", &cfg.MarkdownReport, false)
	stringFlag("output", &cfg.ReportFile)
	boolFlag("no-color", &cfg.NoColor, false)

	// Repeated patterns and codes add to the file's lists.
	if f.Changed("ignore-url") {
		urls, err := f.GetStringArray("ignore-url")
		errs = append(errs, err)
		cfg.IgnoreURLs = append(cfg.IgnoreURLs, urls...)
	}
	if f.Changed("ignore-status") {
		codes, err := f.GetIntSlice("ignore-status")
		errs = append(errs, err)
		cfg.IgnoreStatusCodes = append(cfg.IgnoreStatusCodes, codes...)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// runCheck runs the pipeline over cfg.Root and returns the report. A
// cancelled or timed out run still returns the partial report.
func runCheck(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*model.Report, error) {
	startedAt := time.Now()

	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	store := openStore(cfg, logger)
	if store != nil {
		defer store.Close()
	}

	cache := checker.NewCache(cfg.CacheTTL)
	if store != nil && cfg.CheckExternal {
		n, err := cache.LoadFrom(ctx, store)
		if err != nil {
			logger.Warn("failed to load cached checks", "error", err)
		} else {
			logger.Debug("loaded cached checks", "count", n)
		}
	}

	onion, stopTor, err := onionTransport(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer stopTor()

	checkerOpts := []checker.Option{
		checker.WithCache(cache),
		checker.WithWorkers(cfg.WorkerCount),
		checker.WithTimeout(cfg.ExternalTimeout),
		checker.WithMaxRedirects(cfg.MaxRedirects),
		checker.WithRetries(cfg.Retries, cfg.Backoff),
		checker.WithIgnoredStatusCodes(cfg.IgnoreStatusCodes),
		checker.WithUserAgent(cfg.UserAgent),
		checker.WithHeaders(cfg.Headers),
		checker.WithOffline(!cfg.CheckExternal),
		checker.WithLogger(logger),
	}
	if onion != nil {
		checkerOpts = append(checkerOpts, checker.WithOnionTransport(onion))
	}
	c := checker.New(checkerOpts...)

	run := pipeline.NewRun(cfg.Root)
	rules, err := rule.New(cfg.Rules(), run.FS)
	if err != nil {
		return nil, err
	}
	selectors, err := extract.CompileSelectors(cfg.IgnoreSelectors)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(pipeline.WithLogger(logger))
	p.AddSteps(
		pipeline.NewWalkStep(cfg.Extensions, cfg.IgnoreFiles, logger),
		pipeline.NewParseStep(
			pipeline.NewDocumentPool(pipeline.WithConcurrency(cfg.DocWorkers), pipeline.WithPoolLogger(logger)),
			extract.Options{CheckOpenGraph: cfg.CheckOpenGraph, IgnoreSelectors: selectors},
			rules,
			logger,
		),
		pipeline.NewExternalStep(c, rules, logger),
	)
	p.AddFinalStep(pipeline.NewResolveStep(resolver.New(run.FS, run.Anchors, resolverOptions(cfg, logger)...), rules))

	if err := p.Execute(ctx, run); err != nil && !isInterruption(err) {
		return nil, err
	}
	rep := run.Report()
	if rep.Interrupted {
		logger.Warn("run interrupted; reporting partial results", "documents", rep.DocumentsChecked)
	}

	if store != nil {
		persist(ctx, cfg, store, cache, rep, startedAt, logger)
	}
	return rep, nil
}

func isInterruption(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func resolverOptions(cfg *config.Config, logger *slog.Logger) []resolver.Option {
	index := ""
	if cfg.DirectoryIndex {
		index = cfg.DirectoryIndexFile
	}
	return []resolver.Option{
		resolver.WithDirectoryIndex(index),
		resolver.WithAssumeExtension(cfg.AssumeExtension),
		resolver.WithCaseSensitivePaths(cfg.CaseSensitivePaths),
		resolver.WithQueryValidation(cfg.ValidateQuery),
		resolver.WithHTMLExtensions(cfg.Extensions),
		resolver.WithLogger(logger),
	}
}

// openStore opens the cache database. A store that cannot be opened
// disables caching for this run instead of failing it.
func openStore(cfg *config.Config, logger *slog.Logger) *database.Store {
	if !cfg.Cache {
		return nil
	}
	store, err := database.Open(cfg.DatabaseDir(), database.DefaultOptions())
	if err != nil {
		logger.Warn("cache disabled", "dir", cfg.DatabaseDir(), "error", err)
		return nil
	}
	return store
}

// persist saves this run's successful external checks and its summary.
// It runs after cancellation too, so an interrupted run keeps the work it
// finished.
func persist(ctx context.Context, cfg *config.Config, store *database.Store, cache *checker.Cache, rep *model.Report, startedAt time.Time, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	runID := uuid.NewString()
	err := fileutil.WithLock(ctx, filepath.Join(cfg.DatabaseDir(), "linkproof.lock"), func() error {
		if cfg.CheckExternal {
			if err := cache.SaveTo(ctx, store); err != nil {
				return fmt.Errorf("failed to save cache: %w", err)
			}
		}
		return store.SaveRun(ctx, runID, startedAt, time.Since(startedAt), rep)
	})
	if err != nil {
		logger.Warn("failed to persist run", "error", err)
		return
	}
	logger.Debug("run saved", "id", runID)
}

// onionTransport returns the transport used for .onion hosts, or nil when
// no Tor proxy is configured. The returned stop function shuts down an
// embedded daemon.
func onionTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (http.RoundTripper, func(), error) {
	noop := func() {}
	if !cfg.CheckExternal {
		return nil, noop, nil
	}

	switch {
	case cfg.SocksProxy != "":
		client, err := tor.NewClient(cfg.SocksProxy, cfg.ExternalTimeout)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			logger.Warn("Tor proxy unavailable; .onion links will be skipped",
				"address", cfg.SocksProxy, "status", status)
			return nil, noop, nil
		}
		return client.Transport(), noop, nil

	case cfg.Tor:
		logger.Warn("starting embedded Tor daemon; this may take a few minutes")
		embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := embedded.Start(ctx); err != nil {
			return nil, noop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			if err := embedded.Stop(); err != nil {
				logger.Warn("failed to stop embedded Tor", "error", err)
			}
		}
		client, err := embedded.NewClient(cfg.ExternalTimeout)
		if err != nil {
			stop()
			return nil, noop, fmt.Errorf("failed to create Tor client: %w", err)
		}
		logger.Debug("embedded Tor daemon started", "socksAddr", embedded.SocksAddr())
		return client.Transport(), stop, nil
	}
	return nil, noop, nil
}

func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// writeReport writes the report to stdout, or to cfg.ReportFile with a
// text summary on stdout.
func writeReport(ctx context.Context, stdout io.Writer, cfg *config.Config, rep *model.Report) error {
	color := useColor(cfg, stdout)
	format := reportFormat(cfg)

	if cfg.ReportFile == "" {
		w, err := report.New(format, stdout, color)
		if err != nil {
			return err
		}
		_, err = w.Write(rep)
		return err
	}

	var file bytes.Buffer
	fileWriter, err := report.New(format, &file, false)
	if err != nil {
		return err
	}
	w := report.NewMultiWriter(report.NewSimpleWriter(stdout, report.WithColor(color)), fileWriter)
	if _, err := w.Write(rep); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := fileutil.LockAndWrite(ctx, cfg.ReportFile, file.Bytes()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// useColor enables color only for terminals, and never with --no-color or
// NO_COLOR set.
func useColor(cfg *config.Config, out io.Writer) bool {
	if cfg.NoColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
