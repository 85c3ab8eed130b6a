package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"

	"github.com/nao1215/linkproof/internal/checker"
	"github.com/nao1215/linkproof/internal/extract"
	"github.com/nao1215/linkproof/internal/htmldoc"
	"github.com/nao1215/linkproof/internal/model"
	"github.com/nao1215/linkproof/internal/rule"
)

// Reasons recorded by the steps themselves.
const (
	ReasonUnreadableDocument = "unreadable document"
	ReasonIgnoredElement     = "ignored element"
	ReasonIgnoredURL         = "ignored URL"
	ReasonEmptyTarget        = "empty target"
	ReasonUncheckedScheme    = "unchecked scheme"
	ReasonNotChecked         = "not checked"
)

// WalkStep discovers the documents of the site.
type WalkStep struct {
	extensions  []string
	ignoreFiles []string
	logger      *slog.Logger
}

// NewWalkStep creates a walk over files with one of extensions, skipping
// those matching an ignoreFiles glob (path.Match syntax, tried against the
// site path and the base name).
func NewWalkStep(extensions, ignoreFiles []string, logger *slog.Logger) *WalkStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalkStep{extensions: extensions, ignoreFiles: ignoreFiles, logger: logger}
}

// Name returns the step name.
func (s *WalkStep) Name() string {
	return "walk"
}

// Do fills run.Files.
func (s *WalkStep) Do(ctx context.Context, run *Run) error {
	var files []string
	err := fs.WalkDir(run.FS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !htmldoc.IsHTMLPath(p, s.extensions) {
			return nil
		}
		if s.ignored(p) {
			s.logger.Debug("skipping ignored document", "document", p)
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", run.Root, err)
	}

	slices.Sort(files)
	run.Files = files
	s.logger.Debug("documents found", "root", run.Root, "count", len(files))
	return nil
}

func (s *WalkStep) ignored(p string) bool {
	for _, pattern := range s.ignoreFiles {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(p)); ok {
			return true
		}
	}
	return false
}

// ParseStep parses every document, records its anchors and references and
// applies the document rules.
type ParseStep struct {
	pool    *DocumentPool
	extract extract.Options
	rules   *rule.Engine
	logger  *slog.Logger
}

// NewParseStep creates the parse step.
func NewParseStep(pool *DocumentPool, opts extract.Options, rules *rule.Engine, logger *slog.Logger) *ParseStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStep{pool: pool, extract: opts, rules: rules, logger: logger}
}

// Name returns the step name.
func (s *ParseStep) Name() string {
	return "parse"
}

// Do parses run.Files on the document pool. Unreadable documents become
// broken results and never abort the step.
func (s *ParseStep) Do(ctx context.Context, run *Run) error {
	return s.pool.Process(ctx, run.Files, func(_ context.Context, p string) error {
		s.parse(run, p)
		return nil
	})
}

func (s *ParseStep) parse(run *Run, p string) {
	content, err := fs.ReadFile(run.FS, p)
	if err != nil {
		s.logger.Warn("failed to read document", "document", p, "error", err)
		ref := model.Reference{Document: p, Kind: model.KindGeneric, Target: p}
		run.AddResults(model.NewCheckResult(ref, model.RuleExistence, model.Broken(ReasonUnreadableDocument)))
		return
	}

	doc := htmldoc.ParseBytes(p, content)
	defer doc.Release()

	for _, d := range doc.Diagnostics {
		s.logger.Warn("parse problem",
			"document", p,
			"position", d.Position.String(),
			"message", d.Message,
		)
	}

	duplicates := run.Anchors.Add(p, doc.Anchors())
	if s.rules != nil {
		run.AddResults(s.rules.ApplyDocument(doc, duplicates)...)
	}
	run.setDocument(p, slices.Collect(extract.Extract(doc, s.extract)))
}

// ExternalChecker verifies external URLs.
type ExternalChecker interface {
	CheckAll(ctx context.Context, urls []string) map[string]model.Outcome
}

// ExternalStep checks every distinct external URL once.
type ExternalStep struct {
	checker ExternalChecker
	rules   *rule.Engine
	logger  *slog.Logger
}

// NewExternalStep creates the external check step.
func NewExternalStep(c ExternalChecker, rules *rule.Engine, logger *slog.Logger) *ExternalStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalStep{checker: c, rules: rules, logger: logger}
}

// Name returns the step name.
func (s *ExternalStep) Name() string {
	return "external"
}

// Do fills run.External. Ignored references are never probed.
func (s *ExternalStep) Do(ctx context.Context, run *Run) error {
	seen := make(map[string]bool)
	var urls []string
	for _, p := range run.Parsed() {
		for _, ref := range run.References(p) {
			if ref.Kind != model.KindExternalURL || ref.Ignored || seen[ref.Target] {
				continue
			}
			if s.rules != nil && s.rules.IgnoredURL(ref) {
				continue
			}
			seen[ref.Target] = true
			urls = append(urls, ref.Target)
		}
	}
	slices.Sort(urls)

	s.logger.Debug("checking external URLs", "count", len(urls))
	for u, out := range s.checker.CheckAll(ctx, urls) {
		run.External[u] = out
	}
	return nil
}

// Resolver verifies internal references.
type Resolver interface {
	Resolve(ref model.Reference) model.CheckResult
}

// ResolveStep turns every reference of every parsed document into results:
// one existence result per reference plus any rule failures.
type ResolveStep struct {
	resolver Resolver
	rules    *rule.Engine
}

// NewResolveStep creates the resolve step.
func NewResolveStep(resolver Resolver, rules *rule.Engine) *ResolveStep {
	return &ResolveStep{resolver: resolver, rules: rules}
}

// Name returns the step name.
func (s *ResolveStep) Name() string {
	return "resolve"
}

// Do resolves the references of every parsed document.
func (s *ResolveStep) Do(_ context.Context, run *Run) error {
	interrupted := run.Interrupted()
	for _, p := range run.Parsed() {
		refs := run.References(p)
		results := make([]model.CheckResult, 0, len(refs))
		for _, ref := range refs {
			existence := s.existence(run, ref, interrupted)
			results = append(results, existence)
			if s.rules != nil && existence.Status != model.StatusIgnored {
				results = append(results, s.rules.Apply(ref, existence)...)
			}
		}
		run.AddResults(results...)
	}
	return nil
}

func (s *ResolveStep) existence(run *Run, ref model.Reference, interrupted bool) model.CheckResult {
	result := func(out model.Outcome) model.CheckResult {
		return model.NewCheckResult(ref, model.RuleExistence, out)
	}

	switch {
	case ref.Ignored:
		return result(model.Ignored(ReasonIgnoredElement))
	case s.rules != nil && s.rules.IgnoredURL(ref):
		return result(model.Ignored(ReasonIgnoredURL))
	}

	switch ref.Kind {
	case model.KindInternalAnchor, model.KindInternalFile:
		return s.resolver.Resolve(ref)
	case model.KindExternalURL:
		if out, ok := run.External[ref.Target]; ok {
			return result(out)
		}
		if interrupted {
			return result(model.Skipped(checker.ReasonTimeout))
		}
		return result(model.Skipped(ReasonNotChecked))
	case model.KindEmpty:
		return result(model.Skipped(ReasonEmptyTarget))
	default:
		return result(model.Skipped(ReasonUncheckedScheme))
	}
}
