package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/linkproof/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in GitHub-flavored Markdown, suitable for
// a pull request comment or a CI job summary.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeDocuments(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.Report) {
	md.H1("Link Check Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + report.Root + "`"},
			{"Documents Checked", strconv.Itoa(report.DocumentsChecked)},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func statusText(report *model.Report) string {
	switch {
	case report.Interrupted && report.Pass:
		return "⚠️ Interrupted (partial results, no failures so far)"
	case report.Interrupted:
		return "⚠️ Interrupted (partial results)"
	case report.Pass:
		return "✅ Pass"
	default:
		return "❌ Fail"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.Report) {
	c := report.Counts

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows: [][]string{
			{"OK", strconv.Itoa(c.OK)},
			{"Broken", strconv.Itoa(c.Broken)},
			{"Skipped", strconv.Itoa(c.Skipped)},
			{"Ignored", strconv.Itoa(c.Ignored)},
			{"**Total**", "**" + strconv.Itoa(c.Total()) + "**"},
		},
	})
	md.PlainText("")

	if c.Total() > 0 {
		w.writePieChart(md, c)
	}

	switch {
	case report.Interrupted:
		md.Warningf("The run was interrupted. %s found so far.", plural(report.FailureCount(), "failure"))
	case !report.Pass:
		md.Cautionf("%s in %s.", plural(report.FailureCount(), "failure"), plural(len(report.Documents), "document"))
	default:
		md.Tip("No broken references found.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, c model.Counts) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Reference Status"),
		piechart.WithShowData(true),
	)
	for _, s := range []struct {
		label string
		n     int
	}{
		{"OK", c.OK},
		{"Broken", c.Broken},
		{"Skipped", c.Skipped},
		{"Ignored", c.Ignored},
	} {
		if s.n > 0 {
			chart.LabelAndIntValue(s.label, uint64(s.n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeDocuments(md *markdown.Markdown, report *model.Report) {
	if len(report.Documents) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	for _, doc := range report.Documents {
		md.H3("`" + doc.Path + "`")
		md.PlainText("")

		rows := make([][]string, len(doc.Failures))
		for i, f := range doc.Failures {
			rows[i] = []string{
				f.Position.String(),
				elementLabel(f),
				escapeCell(f.Target),
				f.Rule,
				escapeCell(outcome(f)),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Line:Col", "Element", "Target", "Rule", "Reason"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func elementLabel(f model.Failure) string {
	switch {
	case f.Element == "":
		return "-"
	case f.Attribute == "":
		return "`" + f.Element + "`"
	default:
		return "`" + f.Element + " " + f.Attribute + "`"
	}
}

// escapeCell keeps pipes in URLs from breaking the table.
func escapeCell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by [linkproof](https://github.com/nao1215/linkproof)*")
}
