package render

import (
	"strings"

	"github.com/nao1215/linkproof/internal/model"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// linkRewriter points relative links at the rendered pages.
type linkRewriter struct{}

// Transform implements parser.ASTTransformer.
func (linkRewriter) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			link.Destination = []byte(RewriteLink(string(link.Destination)))
		}
		return ast.WalkContinue, nil
	})
}

// RewriteLink replaces a .md or .markdown extension with .html in a
// relative or site-absolute link, keeping the query and fragment. Links
// with a scheme or a host are returned unchanged.
func RewriteLink(dest string) string {
	if dest == "" || strings.HasPrefix(dest, "//") || model.SchemeOf(dest) != "" {
		return dest
	}

	pathPart, query, fragment := model.SplitTarget(dest)
	lower := strings.ToLower(pathPart)
	for ext := range markdownExtensions {
		if strings.HasSuffix(lower, ext) {
			pathPart = pathPart[:len(pathPart)-len(ext)] + ".html"
			break
		}
	}

	var sb strings.Builder
	sb.WriteString(pathPart)
	if query != "" {
		sb.WriteString("?" + query)
	}
	if fragment != "" {
		sb.WriteString("#" + fragment)
	}
	return sb.String()
}
