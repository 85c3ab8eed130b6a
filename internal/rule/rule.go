// Package rule holds the checks applied to references and documents on top
// of plain existence: alt text, protocols, integrity attributes, onion
// addresses, image metadata, duplicate ids and favicons.
//
// Rules are pure functions over a reference, its existence verdict and, for
// image metadata, the site tree. The set is fixed; configuration only turns
// rules on or off and tunes them.
package rule

import (
	"io/fs"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/linkproof/internal/htmldoc"
	"github.com/nao1215/linkproof/internal/model"
	"github.com/nao1215/linkproof/internal/tor"
)

// ID names a rule in results and reports.
type ID string

// Reference rules.
const (
	EmptyHref     ID = "empty-href"
	HashHref      ID = "hash-href"
	ImageAlt      ID = "image-alt"
	Scheme        ID = "scheme"
	BlankMailto   ID = "blank-mailto"
	BlankTel      ID = "blank-tel"
	EnforceHTTPS  ID = "enforce-https"
	SRI           ID = "sri"
	OnionAddress  ID = "onion-address"
	ImageMetadata ID = "image-metadata"
)

// Document rules.
const (
	DuplicateID ID = "duplicate-id"
	Favicon     ID = "favicon"
)

// DefaultAllowedSchemes are the schemes the scheme rule accepts by default.
var DefaultAllowedSchemes = []string{"http", "https", "mailto", "tel", "data", "javascript"}

// Config turns rules on and off.
type Config struct {
	AllowHashHref       bool
	AllowMissingHref    bool
	CheckImagesHaveAlt  bool
	IgnoreEmptyAlt      bool
	AllowedSchemes      []string
	EnforceHTTPS        bool
	CheckSRI            bool
	CheckOnionAddresses bool
	CheckImageMetadata  bool
	CheckDuplicateIDs   bool
	CheckFavicon        bool
	IgnoreURLs          []string
}

// DefaultConfig returns the rule settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		CheckImagesHaveAlt:  true,
		IgnoreEmptyAlt:      true,
		AllowedSchemes:      slices.Clone(DefaultAllowedSchemes),
		CheckOnionAddresses: true,
		CheckDuplicateIDs:   true,
	}
}

// checkFunc reports a failure reason, or "" when the rule is satisfied.
type checkFunc func(e *Engine, ref model.Reference, existence model.CheckResult) string

type referenceRule struct {
	id    ID
	check checkFunc
}

// Engine applies the active rules.
type Engine struct {
	cfg      Config
	rules    []referenceRule
	ignore   *URLMatcher
	schemes  map[string]bool
	metadata *metadataScanner
}

// New builds an engine for cfg. fsys is the site tree, read by the
// image-metadata rule. It fails only on invalid ignore patterns.
func New(cfg Config, fsys fs.FS) (*Engine, error) {
	ignore, err := CompileURLMatcher(cfg.IgnoreURLs)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		ignore:  ignore,
		schemes: make(map[string]bool, len(cfg.AllowedSchemes)),
	}
	for _, s := range cfg.AllowedSchemes {
		e.schemes[strings.ToLower(s)] = true
	}

	e.rules = append(e.rules,
		referenceRule{EmptyHref, checkEmpty},
		referenceRule{HashHref, checkHashHref},
	)
	if cfg.CheckImagesHaveAlt {
		e.rules = append(e.rules, referenceRule{ImageAlt, checkImageAlt})
	}
	if len(cfg.AllowedSchemes) > 0 {
		e.rules = append(e.rules, referenceRule{Scheme, checkScheme})
	}
	e.rules = append(e.rules,
		referenceRule{BlankMailto, checkBlankMailto},
		referenceRule{BlankTel, checkBlankTel},
	)
	if cfg.EnforceHTTPS {
		e.rules = append(e.rules, referenceRule{EnforceHTTPS, checkHTTPS})
	}
	if cfg.CheckSRI {
		e.rules = append(e.rules, referenceRule{SRI, checkSRI})
	}
	if cfg.CheckOnionAddresses {
		e.rules = append(e.rules, referenceRule{OnionAddress, checkOnion})
	}
	if cfg.CheckImageMetadata && fsys != nil {
		e.metadata = newMetadataScanner(fsys)
		e.rules = append(e.rules, referenceRule{ImageMetadata, checkImageMetadata})
	}
	return e, nil
}

// Active lists the enabled rules in evaluation order.
func (e *Engine) Active() []ID {
	ids := make([]ID, 0, len(e.rules)+2)
	for _, r := range e.rules {
		ids = append(ids, r.id)
	}
	if e.cfg.CheckDuplicateIDs {
		ids = append(ids, DuplicateID)
	}
	if e.cfg.CheckFavicon {
		ids = append(ids, Favicon)
	}
	return ids
}

// IgnoredURL reports whether ref matches one of the configured ignore_urls
// patterns, by raw or normalized target.
func (e *Engine) IgnoredURL(ref model.Reference) bool {
	return e.ignore.Match(strings.TrimSpace(ref.Raw)) || (ref.Target != "" && e.ignore.Match(ref.Target))
}

// Apply runs every active reference rule and returns the failures. Ignored
// references are never evaluated.
func (e *Engine) Apply(ref model.Reference, existence model.CheckResult) []model.CheckResult {
	if ref.Ignored {
		return nil
	}
	var out []model.CheckResult
	for _, r := range e.rules {
		if reason := r.check(e, ref, existence); reason != "" {
			out = append(out, model.NewCheckResult(ref, string(r.id), model.Broken(reason)))
		}
	}
	return out
}

// ApplyDocument runs the document rules. duplicates are the repeated
// anchors reported by the anchor index. It must be called before the
// document tree is released.
func (e *Engine) ApplyDocument(doc *htmldoc.Document, duplicates []htmldoc.Anchor) []model.CheckResult {
	var out []model.CheckResult

	if e.cfg.CheckDuplicateIDs {
		for _, a := range duplicates {
			ref := model.Reference{
				Document:  doc.Path,
				Position:  a.Position,
				Kind:      model.KindInternalAnchor,
				Element:   a.Element,
				Attribute: "id",
				Raw:       a.ID,
				Target:    doc.Path + "#" + a.ID,
				Fragment:  a.ID,
			}
			out = append(out, model.NewCheckResult(ref, string(DuplicateID), model.Broken("duplicate id")))
		}
	}

	if e.cfg.CheckFavicon && doc.Root != nil && !hasFavicon(doc) && !isRedirectPage(doc) {
		ref := model.Reference{
			Document: doc.Path,
			Position: model.Position{Line: 1, Column: 1},
			Kind:     model.KindGeneric,
			Type:     model.TypeImage,
			Element:  "link",
		}
		out = append(out, model.NewCheckResult(ref, string(Favicon), model.Broken("missing favicon")))
	}
	return out
}

func hasFavicon(doc *htmldoc.Document) bool {
	icons := doc.Query().Find("link[rel]").FilterFunction(func(_ int, link *goquery.Selection) bool {
		return slices.Contains(strings.Fields(strings.ToLower(link.AttrOr("rel", ""))), "icon")
	})
	return icons.Length() > 0
}

func isRedirectPage(doc *htmldoc.Document) bool {
	refresh := doc.Query().Find("meta[http-equiv]").FilterFunction(func(_ int, meta *goquery.Selection) bool {
		return strings.EqualFold(strings.TrimSpace(meta.AttrOr("http-equiv", "")), "refresh")
	})
	return refresh.Length() > 0
}

func checkEmpty(e *Engine, ref model.Reference, _ model.CheckResult) string {
	if ref.Kind != model.KindEmpty {
		return ""
	}
	if ref.Attribute == "href" && e.cfg.AllowMissingHref {
		return ""
	}
	return "empty " + ref.Attribute
}

func checkHashHref(e *Engine, ref model.Reference, _ model.CheckResult) string {
	if e.cfg.AllowHashHref || ref.Attribute != "href" || strings.TrimSpace(ref.Raw) != "#" {
		return ""
	}
	return "hash href"
}

func checkImageAlt(e *Engine, ref model.Reference, _ model.CheckResult) string {
	if ref.Element != "img" {
		return ""
	}
	// One verdict per element: report on src, or on the first srcset
	// candidate when src is absent.
	if _, hasSrc := ref.Attr("src"); ref.Attribute != "src" && (ref.Attribute != "srcset" || hasSrc || ref.Candidate != 0) {
		return ""
	}
	if hidden, _ := ref.Attr("aria-hidden"); strings.EqualFold(hidden, "true") {
		return ""
	}

	alt, ok := ref.Attr("alt")
	switch {
	case !ok:
		return "missing alt text"
	case strings.TrimSpace(alt) == "" && !e.cfg.IgnoreEmptyAlt:
		return "empty alt text"
	}
	return ""
}

func checkScheme(e *Engine, ref model.Reference, _ model.CheckResult) string {
	if ref.Kind != model.KindGeneric && ref.Kind != model.KindExternalURL {
		return ""
	}
	scheme := ref.Scheme()
	if scheme == "" || e.schemes[scheme] {
		return ""
	}
	return "disallowed protocol"
}

func checkBlankMailto(_ *Engine, ref model.Reference, _ model.CheckResult) string {
	if ref.Scheme() != "mailto" || opaqueAddress(ref.Raw) != "" {
		return ""
	}
	return "blank mailto"
}

func checkBlankTel(_ *Engine, ref model.Reference, _ model.CheckResult) string {
	if ref.Scheme() != "tel" || opaqueAddress(ref.Raw) != "" {
		return ""
	}
	return "blank tel"
}

// opaqueAddress returns the part of "scheme:address?query" between the
// colon and the query.
func opaqueAddress(raw string) string {
	_, rest, _ := strings.Cut(strings.TrimSpace(raw), ":")
	rest, _, _ = strings.Cut(rest, "?")
	return strings.TrimSpace(rest)
}

func checkHTTPS(_ *Engine, ref model.Reference, _ model.CheckResult) string {
	if ref.Kind != model.KindExternalURL || ref.Scheme() != "http" {
		return ""
	}
	if u, err := url.Parse(ref.Target); err == nil && isLoopback(u.Hostname()) {
		return ""
	}
	return "insecure http link"
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func checkSRI(_ *Engine, ref model.Reference, _ model.CheckResult) string {
	if ref.Kind != model.KindExternalURL || (ref.Type != model.TypeScript && ref.Type != model.TypeStylesheet) {
		return ""
	}
	if s := ref.Scheme(); s != "http" && s != "https" && !strings.HasPrefix(strings.TrimSpace(ref.Raw), "//") {
		return ""
	}
	if _, ok := ref.Attr("integrity"); !ok {
		return "missing integrity"
	}
	if _, ok := ref.Attr("crossorigin"); !ok {
		return "missing crossorigin"
	}
	return ""
}

func checkOnion(_ *Engine, ref model.Reference, _ model.CheckResult) string {
	if ref.Kind != model.KindExternalURL {
		return ""
	}
	u, err := url.Parse(ref.Target)
	if err != nil || !tor.IsOnionHost(u.Hostname()) {
		return ""
	}
	if err := tor.ValidateHost(u.Hostname()); err != nil {
		return err.Error()
	}
	return ""
}

func checkImageMetadata(e *Engine, ref model.Reference, existence model.CheckResult) string {
	if ref.Type != model.TypeImage || ref.Kind != model.KindInternalFile || existence.Status != model.StatusOK {
		return ""
	}
	pathPart, _, _ := model.SplitTarget(ref.Raw)
	if decoded, err := url.PathUnescape(pathPart); err == nil {
		pathPart = decoded
	}
	sitePath := model.JoinSitePath(ref.Document, pathPart)
	if e.metadata.hasGPS(sitePath) {
		return "image contains GPS metadata"
	}
	return ""
}
