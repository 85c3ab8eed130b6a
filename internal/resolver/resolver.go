// Package resolver decides whether internal references point at something
// that exists in the site tree.
//
// The resolver works on an fs.FS rooted at the site directory, so a link can
// never reach outside the site and tests can run against fstest.MapFS.
// Path lookups go through directory listings rather than Stat, which makes
// case handling identical on case-sensitive and case-insensitive hosts:
// with case-sensitive paths (the default) "Guide.html" does not match
// "guide.html" even on a file system that would open it.
package resolver

import (
	"io/fs"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/nao1215/linkproof/internal/anchor"
	"github.com/nao1215/linkproof/internal/htmldoc"
	"github.com/nao1215/linkproof/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Failure reasons reported by the resolver.
const (
	ReasonFileNotFound   = "file not found"
	ReasonAnchorNotFound = "anchor not found"
)

// Resolver checks internal-anchor and internal-file references.
// It is safe for concurrent use once the anchor index is complete.
type Resolver struct {
	fsys    fs.FS
	anchors *anchor.Index
	logger  *slog.Logger

	directoryIndex  string
	assumeExtension string
	caseSensitive   bool
	validateQuery   bool
	htmlExtensions  []string

	mu       sync.Mutex
	listings map[string][]fs.DirEntry
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDirectoryIndex sets the file served for a directory target.
// An empty name disables the convention; directories then resolve as-is.
func WithDirectoryIndex(name string) Option {
	return func(r *Resolver) {
		r.directoryIndex = name
	}
}

// WithAssumeExtension sets an extension tried for extension-less targets,
// for sites served with pretty URLs ("/about" -> "about.html").
func WithAssumeExtension(ext string) Option {
	return func(r *Resolver) {
		r.assumeExtension = ext
	}
}

// WithCaseSensitivePaths controls whether path segments must match case exactly.
func WithCaseSensitivePaths(sensitive bool) Option {
	return func(r *Resolver) {
		r.caseSensitive = sensitive
	}
}

// WithQueryValidation keeps the query string as part of the file name
// instead of stripping it.
func WithQueryValidation(validate bool) Option {
	return func(r *Resolver) {
		r.validateQuery = validate
	}
}

// WithHTMLExtensions sets the extensions of documents whose anchors are checked.
func WithHTMLExtensions(exts []string) Option {
	return func(r *Resolver) {
		r.htmlExtensions = exts
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver over the site tree fsys and the given anchor index.
func New(fsys fs.FS, anchors *anchor.Index, opts ...Option) *Resolver {
	r := &Resolver{
		fsys:           fsys,
		anchors:        anchors,
		directoryIndex: "index.html",
		caseSensitive:  true,
		htmlExtensions: []string{".html", ".htm"},
		listings:       make(map[string][]fs.DirEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve checks one internal reference. References of other kinds are
// returned as skipped; they are not the resolver's concern.
func (r *Resolver) Resolve(ref model.Reference) model.CheckResult {
	var out model.Outcome
	switch ref.Kind {
	case model.KindInternalAnchor:
		out = r.resolveAnchor(ref)
	case model.KindInternalFile:
		out = r.resolveFile(ref)
	default:
		out = model.Skipped("not an internal reference")
	}
	return model.NewCheckResult(ref, model.RuleExistence, out)
}

func (r *Resolver) resolveAnchor(ref model.Reference) model.Outcome {
	if ref.Fragment == "" {
		return model.OK("")
	}
	if r.hasAnchor(ref.Document, ref.Fragment) {
		return model.OK("")
	}
	return model.Broken(ReasonAnchorNotFound)
}

func (r *Resolver) resolveFile(ref model.Reference) model.Outcome {
	pathPart, query, fragment := model.SplitTarget(ref.Raw)

	decoded, err := url.PathUnescape(pathPart)
	if err != nil {
		decoded = pathPart
	}
	if r.validateQuery && query != "" {
		decoded += "?" + query
	}

	target := model.JoinSitePath(ref.Document, decoded)
	if model.EscapesRoot(target) {
		r.logger.Debug("target escapes site root", "document", ref.Document, "target", ref.Raw)
		return model.Broken(ReasonFileNotFound)
	}

	found, ok := r.locate(target)
	if !ok {
		return model.Broken(ReasonFileNotFound)
	}

	if fragment == "" || !htmldoc.IsHTMLPath(found, r.htmlExtensions) {
		return model.OK("")
	}
	if r.hasAnchor(found, fragment) {
		return model.OK("")
	}
	return model.Broken(ReasonAnchorNotFound)
}

// hasAnchor reports whether doc declares fragment. Documents that were not
// indexed are given the benefit of the doubt, and "top" always resolves
// because browsers scroll to the start of the page for it.
func (r *Resolver) hasAnchor(doc, fragment string) bool {
	if !r.anchors.Known(doc) {
		return true
	}
	if r.anchors.Has(doc, fragment) {
		return true
	}
	if decoded, err := url.PathUnescape(fragment); err == nil && decoded != fragment && r.anchors.Has(doc, decoded) {
		return true
	}
	return strings.EqualFold(fragment, "top")
}

// locate finds the file a site path refers to, trying the directory index
// and assumed extension conventions. It returns the actual path on disk.
func (r *Resolver) locate(target string) (string, bool) {
	actual, isDir, ok := r.lookup(target)
	if ok && !isDir {
		return actual, true
	}
	if ok && isDir {
		if r.directoryIndex == "" {
			return actual, true
		}
		index, indexIsDir, found := r.lookup(path.Join(actual, r.directoryIndex))
		if found && !indexIsDir {
			return index, true
		}
		return "", false
	}

	if r.assumeExtension != "" && path.Ext(target) == "" {
		if actual, isDir, ok := r.lookup(target + r.assumeExtension); ok && !isDir {
			return actual, true
		}
	}
	return "", false
}

// lookup walks target segment by segment through directory listings.
func (r *Resolver) lookup(target string) (actual string, isDir bool, ok bool) {
	if target == "." || target == "" {
		return ".", true, true
	}

	dir := "."
	segments := strings.Split(target, "/")
	for i, seg := range segments {
		entry := r.match(r.list(dir), seg)
		if entry == nil {
			return "", false, false
		}
		next := path.Join(dir, entry.Name())

		entryIsDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			info, err := fs.Stat(r.fsys, next)
			if err != nil {
				return "", false, false
			}
			entryIsDir = info.IsDir()
		}

		if i < len(segments)-1 && !entryIsDir {
			return "", false, false
		}
		dir = next
		isDir = entryIsDir
	}
	return dir, isDir, true
}

func (r *Resolver) list(dir string) []fs.DirEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entries, ok := r.listings[dir]; ok {
		return entries
	}
	entries, err := fs.ReadDir(r.fsys, dir)
	if err != nil {
		r.logger.Debug("cannot list directory", "dir", dir, "error", err)
	}
	r.listings[dir] = entries
	return entries
}

// match picks the entry named seg. An exact match always wins; otherwise,
// with case-insensitive paths, a case-folded match is accepted.
// Names are compared in Unicode NFC form.
func (r *Resolver) match(entries []fs.DirEntry, seg string) fs.DirEntry {
	want := norm.NFC.String(seg)
	for _, e := range entries {
		if norm.NFC.String(e.Name()) == want {
			return e
		}
	}
	if r.caseSensitive {
		return nil
	}

	folder := cases.Fold()
	foldedWant := folder.String(want)
	for _, e := range entries {
		if folder.String(norm.NFC.String(e.Name())) == foldedWant {
			return e
		}
	}
	return nil
}
