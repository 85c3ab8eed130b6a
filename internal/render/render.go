package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/nao1215/linkproof/internal/fileutil"
)

// markdownExtensions are the file extensions rendered to HTML.
var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}</body>
</html>
`))

// Renderer converts Markdown documents to standalone HTML pages.
type Renderer struct {
	md     goldmark.Markdown
	logger *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger for per-file progress.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
				parser.WithASTTransformers(util.Prioritized(linkRewriter{}, 100)),
			),
		),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes the HTML page for one Markdown document to w. The page
// title is the text of the first heading, or fallbackTitle when the
// document has none.
func (r *Renderer) Render(w io.Writer, source []byte, fallbackTitle string) error {
	doc := r.md.Parser().Parse(text.NewReader(source))

	var body bytes.Buffer
	if err := r.md.Renderer().Render(&body, source, doc); err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	title := firstHeading(doc, source)
	if title == "" {
		title = fallbackTitle
	}
	return pageTemplate.Execute(w, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()), //nolint:gosec // goldmark escapes raw HTML by default
	})
}

// Result summarizes a RenderDir call.
type Result struct {
	Rendered int
	Copied   int
}

// RenderDir renders every Markdown file under src into out, preserving the
// directory structure, and copies all other files.
func (r *Renderer) RenderDir(ctx context.Context, src, out string) (Result, error) {
	var result Result

	absOut, err := filepath.Abs(out)
	if err != nil {
		return result, err
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			// Rendering docs into docs/out must not recurse into its own output.
			if abs, err := filepath.Abs(path); err == nil && abs == absOut {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path) //nolint:gosec // walking the user's source tree
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		ext := strings.ToLower(filepath.Ext(rel))
		if !markdownExtensions[ext] {
			if err := fileutil.AtomicWrite(filepath.Join(out, rel), data); err != nil {
				return err
			}
			result.Copied++
			return nil
		}

		target := filepath.Join(out, strings.TrimSuffix(rel, filepath.Ext(rel))+".html")
		var page bytes.Buffer
		title := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if err := r.Render(&page, data, title); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := fileutil.AtomicWrite(target, page.Bytes()); err != nil {
			return err
		}
		r.logger.Debug("rendered", "source", rel, "output", target)
		result.Rendered++
		return nil
	})
	return result, err
}

func firstHeading(doc ast.Node, source []byte) string {
	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			var sb strings.Builder
			lines := h.Lines()
			for i := range lines.Len() {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			title = strings.TrimSpace(sb.String())
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}
