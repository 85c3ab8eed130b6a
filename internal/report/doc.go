// Package report renders an aggregated check report.
//
// Three formats are available:
//   - SimpleWriter: text for terminals, optionally colored
//   - JSONWriter: structured output for tools and CI annotations
//   - MarkdownWriter: a document for pull request comments or job summaries
//
// No writer prints timestamps or durations, so two runs over the same
// unchanged site produce byte-identical output.
package report
