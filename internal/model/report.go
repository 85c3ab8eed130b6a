package model

import (
	"cmp"
	"slices"
)

// Counts tallies check results by status.
type Counts struct {
	OK      int `json:"ok"`
	Broken  int `json:"broken"`
	Skipped int `json:"skipped"`
	Ignored int `json:"ignored"`
}

// Total returns the number of results counted.
func (c Counts) Total() int {
	return c.OK + c.Broken + c.Skipped + c.Ignored
}

func (c *Counts) add(s Status) {
	switch s {
	case StatusOK:
		c.OK++
	case StatusBroken:
		c.Broken++
	case StatusSkipped:
		c.Skipped++
	case StatusIgnored:
		c.Ignored++
	}
}

// Failure is one broken finding in a document. Identical findings
// (same normalized target and reason) are merged into a single Failure
// that keeps the earliest position and counts the occurrences.
type Failure struct {
	Position    Position `json:"position"`
	Element     string   `json:"element"`
	Attribute   string   `json:"attribute"`
	Target      string   `json:"target"`
	Rule        string   `json:"rule"`
	Reason      string   `json:"reason"`
	StatusCode  int      `json:"status_code,omitempty"`
	Occurrences int      `json:"occurrences"`
}

// DocumentReport lists the failures of one document.
type DocumentReport struct {
	Path     string    `json:"path"`
	Failures []Failure `json:"failures"`
}

// Report is the aggregated outcome of a run. It contains no timestamps so
// that two runs over the same input produce byte-identical output.
type Report struct {
	// Root is the checked site directory as given by the user.
	Root string `json:"root"`

	// DocumentsChecked is the number of documents that were parsed.
	DocumentsChecked int `json:"documents_checked"`

	// Documents holds only documents with at least one failure,
	// sorted by path.
	Documents []DocumentReport `json:"documents"`

	Counts Counts `json:"counts"`

	// Pass is true when no result is broken.
	Pass bool `json:"pass"`

	// Interrupted is true when the run was cancelled or hit its time limit;
	// the report then covers only the work completed before that point.
	Interrupted bool `json:"interrupted,omitempty"`
}

// FailureCount returns the number of distinct failures across all documents.
func (r *Report) FailureCount() int {
	n := 0
	for _, d := range r.Documents {
		n += len(d.Failures)
	}
	return n
}

// Document returns the report for path, or nil if it has no failures.
func (r *Report) Document(path string) *DocumentReport {
	for i := range r.Documents {
		if r.Documents[i].Path == path {
			return &r.Documents[i]
		}
	}
	return nil
}

type failureKey struct {
	document string
	target   string
	reason   string
}

// Aggregate groups results by document, merges duplicate failures and
// computes the status counts. The output order depends only on the
// input content, never on the order results arrived in.
func Aggregate(results []CheckResult) *Report {
	report := &Report{Documents: []DocumentReport{}}

	merged := make(map[failureKey]*Failure)
	byDoc := make(map[string][]*Failure)

	for _, res := range results {
		report.Counts.add(res.Status)
		if !res.IsFailure() {
			continue
		}

		ref := res.Reference
		key := failureKey{
			document: ref.Document,
			target:   ref.DisplayTarget(),
			reason:   res.Reason,
		}
		if f, ok := merged[key]; ok {
			f.Occurrences++
			if ref.Position.Less(f.Position) || (ref.Position == f.Position && res.Rule < f.Rule) {
				f.Position = ref.Position
				f.Element = ref.Element
				f.Attribute = ref.Attribute
				f.Rule = res.Rule
				f.StatusCode = res.StatusCode
			}
			continue
		}

		f := &Failure{
			Position:    ref.Position,
			Element:     ref.Element,
			Attribute:   ref.Attribute,
			Target:      key.target,
			Rule:        res.Rule,
			Reason:      res.Reason,
			StatusCode:  res.StatusCode,
			Occurrences: 1,
		}
		merged[key] = f
		byDoc[ref.Document] = append(byDoc[ref.Document], f)
	}

	paths := make([]string, 0, len(byDoc))
	for p := range byDoc {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		failures := make([]Failure, 0, len(byDoc[p]))
		for _, f := range byDoc[p] {
			failures = append(failures, *f)
		}
		slices.SortFunc(failures, compareFailures)
		report.Documents = append(report.Documents, DocumentReport{Path: p, Failures: failures})
	}

	report.Pass = report.Counts.Broken == 0
	return report
}

func compareFailures(a, b Failure) int {
	return cmp.Or(
		cmp.Compare(a.Position.Line, b.Position.Line),
		cmp.Compare(a.Position.Column, b.Position.Column),
		cmp.Compare(a.Target, b.Target),
		cmp.Compare(a.Rule, b.Rule),
		cmp.Compare(a.Reason, b.Reason),
	)
}
