package htmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/nao1215/linkproof/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// voidElements never have children and are never pushed on the open stack.
var voidElements = map[atom.Atom]bool{
	atom.Area:   true,
	atom.Base:   true,
	atom.Br:     true,
	atom.Col:    true,
	atom.Embed:  true,
	atom.Hr:     true,
	atom.Img:    true,
	atom.Input:  true,
	atom.Link:   true,
	atom.Meta:   true,
	atom.Param:  true,
	atom.Source: true,
	atom.Track:  true,
	atom.Wbr:    true,
}

// paragraphClosers are start tags that end an open <p>.
var paragraphClosers = []atom.Atom{
	atom.Address, atom.Article, atom.Aside, atom.Blockquote, atom.Details,
	atom.Div, atom.Dl, atom.Fieldset, atom.Figure, atom.Footer, atom.Form,
	atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Header,
	atom.Hr, atom.Main, atom.Nav, atom.Ol, atom.P, atom.Pre, atom.Section,
	atom.Table, atom.Ul,
}

// impliedEnd maps a start tag to the open elements it implicitly closes when
// they are at the top of the stack.
var impliedEnd = func() map[atom.Atom]map[atom.Atom]bool {
	m := map[atom.Atom]map[atom.Atom]bool{
		atom.Li:     {atom.Li: true, atom.P: true},
		atom.Dt:     {atom.Dt: true, atom.Dd: true, atom.P: true},
		atom.Dd:     {atom.Dt: true, atom.Dd: true, atom.P: true},
		atom.Tr:     {atom.Tr: true, atom.Td: true, atom.Th: true},
		atom.Td:     {atom.Td: true, atom.Th: true},
		atom.Th:     {atom.Td: true, atom.Th: true},
		atom.Option: {atom.Option: true},
	}
	for _, a := range paragraphClosers {
		if m[a] == nil {
			m[a] = map[atom.Atom]bool{}
		}
		m[a][atom.P] = true
	}
	return m
}()

// cursor tracks the line and column of the next unread byte.
type cursor struct {
	line int
	col  int
}

func (c *cursor) position() model.Position {
	return model.Position{Line: c.line, Column: c.col}
}

// advance moves the cursor past raw. Columns count runes, not bytes.
func (c *cursor) advance(raw []byte) {
	for len(raw) > 0 {
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			c.col += utf8.RuneCount(raw)
			return
		}
		c.line++
		c.col = 1
		raw = raw[i+1:]
	}
}

// Parse reads a whole document from r and parses it.
// path is the slash-separated site-relative path used in references.
// The only error returned is a read error; malformed markup is reported
// through Document.Diagnostics.
func Parse(path string, r io.Reader) (*Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseBytes(path, content), nil
}

// ParseBytes parses an in-memory document. The declared character encoding
// (BOM, meta charset) is honoured; undeclared input is treated as UTF-8.
func ParseBytes(path string, content []byte) *Document {
	doc := &Document{
		Path:      path,
		Root:      &html.Node{Type: html.DocumentNode},
		positions: make(map[*html.Node]model.Position),
	}

	var src io.Reader = bytes.NewReader(content)
	if decoded, err := charset.NewReader(bytes.NewReader(content), "text/html"); err != nil {
		doc.diagnose(model.Position{Line: 1, Column: 1}, "unsupported character encoding, reading as UTF-8")
	} else {
		src = decoded
	}

	b := &builder{doc: doc, stack: []*html.Node{doc.Root}, cur: cursor{line: 1, col: 1}}
	b.run(html.NewTokenizer(src))
	return doc
}

type builder struct {
	doc   *Document
	stack []*html.Node
	cur   cursor
}

func (b *builder) top() *html.Node {
	return b.stack[len(b.stack)-1]
}

func (b *builder) run(z *html.Tokenizer) {
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				b.doc.diagnose(b.cur.position(), "read error: "+err.Error())
			}
			return
		}

		// Raw must be consumed before Token, which rewrites the buffer.
		pos := b.cur.position()
		b.cur.advance(z.Raw())

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			b.startTag(z.Token(), pos, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			b.endTag(z.Token(), pos)
		case html.TextToken:
			b.top().AppendChild(&html.Node{Type: html.TextNode, Data: string(z.Text())})
		}
	}
}

func (b *builder) startTag(tok html.Token, pos model.Position, selfClosing bool) {
	if closes := impliedEnd[tok.DataAtom]; closes != nil {
		for len(b.stack) > 1 && closes[b.top().DataAtom] {
			b.stack = b.stack[:len(b.stack)-1]
		}
	}

	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tok.Data,
		DataAtom: tok.DataAtom,
		Attr:     tok.Attr,
	}
	b.top().AppendChild(n)
	b.doc.positions[n] = pos
	b.doc.collectAnchors(n, pos)

	if selfClosing || voidElements[tok.DataAtom] {
		return
	}
	b.stack = append(b.stack, n)
}

func (b *builder) endTag(tok html.Token, pos model.Position) {
	if voidElements[tok.DataAtom] {
		return
	}
	for i := len(b.stack) - 1; i > 0; i-- {
		if b.stack[i].Data == tok.Data {
			b.stack = b.stack[:i]
			return
		}
	}
	b.doc.diagnose(pos, "unexpected end tag </"+tok.Data+">")
}
