// Package extract turns a parsed document into the stream of references
// linkproof checks.
package extract

import (
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/nao1215/linkproof/internal/htmldoc"
	"github.com/nao1215/linkproof/internal/model"
	"golang.org/x/net/html"
)

// IgnoreAttribute marks an element, and everything inside it, as ignored.
const IgnoreAttribute = "data-proofer-ignore"

// Options configures extraction.
type Options struct {
	// CheckOpenGraph emits references for OpenGraph meta content URLs.
	CheckOpenGraph bool

	// IgnoreSelectors mark matching elements and their descendants as ignored.
	IgnoreSelectors []cascadia.Matcher
}

// CompileSelectors parses CSS selector groups for Options.IgnoreSelectors.
func CompileSelectors(exprs []string) ([]cascadia.Matcher, error) {
	matchers := make([]cascadia.Matcher, 0, len(exprs))
	for _, expr := range exprs {
		group, err := cascadia.ParseGroup(expr)
		if err != nil {
			return nil, fmt.Errorf("ignore selector %q: %w", expr, err)
		}
		matchers = append(matchers, group)
	}
	return matchers, nil
}

// source is one link-bearing attribute of an element.
type source struct {
	attr   string
	typ    model.ElementType
	srcset bool
}

var linkSources = map[string][]source{
	"a":      {{attr: "href", typ: model.TypeLink}},
	"area":   {{attr: "href", typ: model.TypeLink}},
	"img":    {{attr: "src", typ: model.TypeImage}, {attr: "srcset", typ: model.TypeImage, srcset: true}},
	"script": {{attr: "src", typ: model.TypeScript}},
	"iframe": {{attr: "src", typ: model.TypeFrame}},
	"embed":  {{attr: "src", typ: model.TypeMedia}},
	"video":  {{attr: "src", typ: model.TypeMedia}, {attr: "poster", typ: model.TypeImage}},
	"audio":  {{attr: "src", typ: model.TypeMedia}},
	"track":  {{attr: "src", typ: model.TypeMedia}},
}

// openGraphProperties are the meta properties whose content is a URL.
var openGraphProperties = map[string]bool{
	"og:url":              true,
	"og:image":            true,
	"og:image:url":        true,
	"og:image:secure_url": true,
	"og:video":            true,
	"og:video:url":        true,
	"og:audio":            true,
}

// sourcesFor returns the link-bearing attributes of n, accounting for the
// elements whose role depends on their other attributes.
func sourcesFor(n *html.Node) []source {
	switch n.Data {
	case "link":
		rel := strings.ToLower(attr(n, "rel"))
		switch {
		case hasToken(rel, "preconnect"), hasToken(rel, "dns-prefetch"):
			return nil
		case hasToken(rel, "stylesheet"):
			return []source{{attr: "href", typ: model.TypeStylesheet}}
		case hasToken(rel, "icon"), hasToken(rel, "apple-touch-icon"):
			return []source{{attr: "href", typ: model.TypeImage}}
		default:
			return []source{{attr: "href", typ: model.TypeLink}}
		}
	case "source":
		typ := model.TypeMedia
		if n.Parent != nil && n.Parent.Data == "picture" {
			typ = model.TypeImage
		}
		return []source{{attr: "src", typ: typ}, {attr: "srcset", typ: typ, srcset: true}}
	case "input":
		if strings.EqualFold(attr(n, "type"), "image") {
			return []source{{attr: "src", typ: model.TypeImage}}
		}
		return nil
	}
	return linkSources[n.Data]
}

// Extract yields every reference in doc, in document order. Attributes of
// one element are yielded in a fixed order, srcset candidates in the order
// written.
func Extract(doc *htmldoc.Document, opts Options) iter.Seq[model.Reference] {
	return func(yield func(model.Reference) bool) {
		ignored := make(map[*html.Node]bool)

		for n := range doc.Elements() {
			skip := isIgnored(n, opts.IgnoreSelectors) || (n.Parent != nil && ignored[n.Parent])
			if skip {
				ignored[n] = true
			}

			base := model.Reference{
				Document: doc.Path,
				Position: doc.Position(n),
				Element:  n.Data,
				Ignored:  skip,
			}

			if n.Data == "meta" {
				if !opts.CheckOpenGraph {
					continue
				}
				prop := strings.ToLower(attr(n, "property"))
				content, ok := htmldoc.Attr(n, "content")
				if !ok || !openGraphProperties[prop] {
					continue
				}
				ref := base
				ref.Attribute = "content"
				ref.Type = model.TypeMeta
				ref.Attrs = htmldoc.AttrMap(n)
				if !yield(Classify(ref, content)) {
					return
				}
				continue
			}

			var attrs map[string]string
			for _, src := range sourcesFor(n) {
				val, ok := htmldoc.Attr(n, src.attr)
				if !ok {
					continue
				}
				if attrs == nil {
					attrs = htmldoc.AttrMap(n)
				}
				ref := base
				ref.Attribute = src.attr
				ref.Type = src.typ
				ref.Attrs = attrs

				if !src.srcset {
					if !yield(Classify(ref, val)) {
						return
					}
					continue
				}
				for i, candidate := range SplitSrcset(val) {
					ref.Candidate = i
					if !yield(Classify(ref, candidate)) {
						return
					}
				}
			}
		}
	}
}

func isIgnored(n *html.Node, selectors []cascadia.Matcher) bool {
	if v, ok := htmldoc.Attr(n, IgnoreAttribute); ok && !strings.EqualFold(v, "false") {
		return true
	}
	for _, sel := range selectors {
		if sel.Match(n) {
			return true
		}
	}
	return false
}

// SplitSrcset returns the URLs of a srcset attribute, dropping the width
// and density descriptors.
func SplitSrcset(srcset string) []string {
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		urls = append(urls, fields[0])
	}
	return urls
}

// Classify fills in the kind, normalized target and fragment of ref for the
// raw attribute value.
func Classify(ref model.Reference, raw string) model.Reference {
	ref.Raw = raw
	trimmed := strings.TrimSpace(raw)

	switch {
	case trimmed == "":
		ref.Kind = model.KindEmpty
		return ref
	case strings.HasPrefix(trimmed, "#"):
		ref.Kind = model.KindInternalAnchor
		ref.Fragment = trimmed[1:]
		ref.Target = ref.Document + trimmed
		return ref
	case strings.HasPrefix(trimmed, "//"):
		ref.Kind = model.KindExternalURL
		ref.Target, ref.Fragment = NormalizeURL("https:" + trimmed)
		return ref
	}

	switch model.SchemeOf(trimmed) {
	case "http", "https":
		ref.Kind = model.KindExternalURL
		ref.Target, ref.Fragment = NormalizeURL(trimmed)
	case "mailto", "tel":
		ref.Kind = model.KindExternalURL
		ref.Target = trimmed
	case "":
		ref.Kind = model.KindInternalFile
		pathPart, query, fragment := model.SplitTarget(trimmed)
		target := model.JoinSitePath(ref.Document, pathPart)
		if query != "" {
			target += "?" + query
		}
		if fragment != "" {
			target += "#" + fragment
		}
		ref.Target = target
		ref.Fragment = fragment
	default:
		ref.Kind = model.KindGeneric
		ref.Target = trimmed
	}
	return ref
}

// NormalizeURL lowercases the scheme and host of an http(s) URL, gives it a
// path and strips the fragment, which is returned separately. Unparsable
// input is returned unchanged.
func NormalizeURL(raw string) (normalized, fragment string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}
	fragment = u.Fragment
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u.String(), fragment
}

func attr(n *html.Node, key string) string {
	v, _ := htmldoc.Attr(n, key)
	return v
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}
