// Package htmldoc parses site documents into a node tree that remembers where
// every element started in the source.
//
// golang.org/x/net/html.Parse builds a conformant HTML5 tree but throws away
// source positions, and every finding linkproof reports needs a line and a
// column. Parse therefore drives html.Tokenizer directly, tracks the byte
// stream as tokens are consumed and assembles *html.Node values itself. The
// tree uses the same node type as x/net/html, so goquery and cascadia
// selectors work on it unchanged.
//
// The tree builder is lenient: it implies the common optional end tags
// (li, p, td, option, ...) and records stray end tags as diagnostics instead
// of failing. Parsing never aborts on malformed markup.
//
// # Usage
//
//	doc, err := htmldoc.Parse("guide/index.html", f)
//	for _, a := range doc.Anchors() {
//		fmt.Println(a.ID, a.Position)
//	}
//	doc.Release()
package htmldoc
