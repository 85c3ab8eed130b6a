package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/linkproof/internal/model"
)

// Writer outputs a report.
type Writer interface {
	// Write renders report to the configured destination and returns the
	// number of bytes written.
	Write(report *model.Report) (int, error)
}

// Format names an output format.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat parses a format name. "md" is accepted for markdown and ""
// for text.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "simple":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// New returns a writer for format. color only affects the text format.
func New(format Format, output io.Writer, color bool) (Writer, error) {
	switch format {
	case FormatText:
		return NewSimpleWriter(output, WithColor(color)), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers, for example a colored summary to
// the terminal and a JSON file for CI.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to every writer and stops on the first error.
func (m *MultiWriter) Write(report *model.Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// location formats where a failure was found, e.g. "12:5 <a href>".
func location(f model.Failure) string {
	if f.Element == "" {
		return f.Position.String()
	}
	if f.Attribute == "" {
		return fmt.Sprintf("%s <%s>", f.Position, f.Element)
	}
	return fmt.Sprintf("%s <%s %s>", f.Position, f.Element, f.Attribute)
}

// outcome formats the reason with its occurrence count.
func outcome(f model.Failure) string {
	if f.Occurrences > 1 {
		return fmt.Sprintf("%s (x%d)", f.Reason, f.Occurrences)
	}
	return f.Reason
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
