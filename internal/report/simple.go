package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/nao1215/linkproof/internal/model"
)

// SimpleWriter outputs a human-readable text report: one block per
// failing document, then a summary line.
//
// Color is configured per writer rather than through color.NoColor, so a
// colored terminal writer and a plain file writer can run side by side.
type SimpleWriter struct {
	baseWriter

	pass    *color.Color
	fail    *color.Color
	warn    *color.Color
	docName *color.Color
	faint   *color.Color
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithColor turns ANSI colors on or off. Colors are off by default.
func WithColor(enabled bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		for _, c := range w.colors() {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		pass:       color.New(color.FgGreen, color.Bold),
		fail:       color.New(color.FgRed, color.Bold),
		warn:       color.New(color.FgYellow),
		docName:    color.New(color.Bold),
		faint:      color.New(color.Faint),
	}
	for _, c := range w.colors() {
		c.DisableColor()
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *SimpleWriter) colors() []*color.Color {
	return []*color.Color{w.pass, w.fail, w.warn, w.docName, w.faint}
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.Report) (int, error) {
	var sb strings.Builder

	for _, doc := range report.Documents {
		w.writeDocument(&sb, doc)
	}
	w.writeSummary(&sb, report)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeDocument(sb *strings.Builder, doc model.DocumentReport) {
	sb.WriteString(w.docName.Sprint(doc.Path))
	sb.WriteString("\n")

	// Pad locations so targets line up within a document.
	width := 0
	for _, f := range doc.Failures {
		width = max(width, len(location(f)))
	}
	for _, f := range doc.Failures {
		loc := location(f)
		fmt.Fprintf(sb, "  %s%s  %s  %s\n",
			w.faint.Sprint(loc),
			strings.Repeat(" ", width-len(loc)),
			f.Target,
			w.fail.Sprint(outcome(f)),
		)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.Report) {
	c := report.Counts
	fmt.Fprintf(sb, "Checked %s in %s: %d ok, %d broken, %d skipped, %d ignored\n",
		plural(c.Total(), "reference"),
		plural(report.DocumentsChecked, "document"),
		c.OK, c.Broken, c.Skipped, c.Ignored,
	)

	if report.Interrupted {
		sb.WriteString(w.warn.Sprint("Run interrupted; the report covers only completed work."))
		sb.WriteString("\n")
	}

	if report.Pass {
		sb.WriteString(w.pass.Sprint("PASS"))
		sb.WriteString("\n")
		return
	}
	fmt.Fprintf(sb, "%s: %s in %s\n",
		w.fail.Sprint("FAIL"),
		plural(report.FailureCount(), "failure"),
		plural(len(report.Documents), "document"),
	)
}
