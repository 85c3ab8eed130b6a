package htmldoc

import (
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/linkproof/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Diagnostic is a non-fatal problem found while parsing.
type Diagnostic struct {
	Position model.Position
	Message  string
}

// Anchor is a fragment target declared by a document: an id attribute on
// any element, or the legacy name attribute on <a>.
type Anchor struct {
	ID       string
	Element  string
	Position model.Position
}

// Document is a parsed site document. It is owned by the goroutine that
// parsed it; call Release once references and anchors have been taken so
// the tree can be collected.
type Document struct {
	// Path is the slash-separated path relative to the site root.
	Path string

	// Root is the document node of the parsed tree.
	Root *html.Node

	// Diagnostics lists recoverable parse problems in source order.
	Diagnostics []Diagnostic

	anchors   []Anchor
	positions map[*html.Node]model.Position
}

// Position returns where n started in the source. Nodes that did not come
// from the source (text, the document root) report the zero position.
func (d *Document) Position(n *html.Node) model.Position {
	return d.positions[n]
}

// Anchors returns every declared anchor in document order, duplicates included.
func (d *Document) Anchors() []Anchor {
	return d.anchors
}

// Elements yields every element node in document order.
func (d *Document) Elements() iter.Seq[*html.Node] {
	return func(yield func(*html.Node) bool) {
		if d.Root == nil {
			return
		}
		var walk func(*html.Node) bool
		walk = func(n *html.Node) bool {
			if n.Type == html.ElementNode && !yield(n) {
				return false
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(d.Root)
	}
}

// Query wraps the tree in a goquery document for selector lookups.
func (d *Document) Query() *goquery.Document {
	return goquery.NewDocumentFromNode(d.Root)
}

// Release drops the tree. Anchors and diagnostics stay available.
func (d *Document) Release() {
	d.Root = nil
	d.positions = nil
}

func (d *Document) diagnose(pos model.Position, msg string) {
	d.Diagnostics = append(d.Diagnostics, Diagnostic{Position: pos, Message: msg})
}

// collectAnchors records the anchors n declares. <a id="x" name="x"> is one
// anchor, not two.
func (d *Document) collectAnchors(n *html.Node, pos model.Position) {
	id, _ := Attr(n, "id")
	if id != "" {
		d.anchors = append(d.anchors, Anchor{ID: id, Element: n.Data, Position: pos})
	}
	if n.DataAtom == atom.A {
		if name, ok := Attr(n, "name"); ok && name != "" && name != id {
			d.anchors = append(d.anchors, Anchor{ID: name, Element: n.Data, Position: pos})
		}
	}
}

// Attr returns the value of the attribute key on n and whether it exists.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrMap snapshots the attributes of n. The first occurrence of a repeated
// attribute wins, as in browsers.
func AttrMap(n *html.Node) map[string]string {
	m := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if _, seen := m[a.Key]; !seen {
			m[a.Key] = a.Val
		}
	}
	return m
}

// IsHTMLPath reports whether a site path names an HTML document, judged by
// extension against exts (".html", ".htm", ...).
func IsHTMLPath(p string, exts []string) bool {
	lower := strings.ToLower(p)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
