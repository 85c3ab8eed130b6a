package pipeline

import (
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/nao1215/linkproof/internal/anchor"
	"github.com/nao1215/linkproof/internal/model"
)

// Run is the state shared by the steps of one check. Steps running
// documents concurrently go through its methods; plain fields are written
// by one step and read by later ones.
type Run struct {
	// Root is the site directory as given by the user.
	Root string

	// FS is the site tree. Every path in a run is slash-separated and
	// relative to it.
	FS fs.FS

	// Files are the documents found by the walk, sorted.
	Files []string

	// Anchors collects the anchors of every parsed document.
	Anchors *anchor.Index

	// External holds the verdict for each checked external URL.
	External map[string]model.Outcome

	mu          sync.Mutex
	refs        map[string][]model.Reference
	results     []model.CheckResult
	parsed      int
	interrupted bool
}

// NewRun creates the state for checking the directory root.
func NewRun(root string) *Run {
	return NewRunFS(root, os.DirFS(root))
}

// NewRunFS creates the state for checking fsys; root is only used for
// display.
func NewRunFS(root string, fsys fs.FS) *Run {
	return &Run{
		Root:     root,
		FS:       fsys,
		Anchors:  anchor.New(),
		External: make(map[string]model.Outcome),
		refs:     make(map[string][]model.Reference),
	}
}

// AddResults records results. It is safe for concurrent use.
func (r *Run) AddResults(results ...model.CheckResult) {
	if len(results) == 0 {
		return
	}
	r.mu.Lock()
	r.results = append(r.results, results...)
	r.mu.Unlock()
}

// Results returns a copy of the results recorded so far.
func (r *Run) Results() []model.CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.results)
}

// setDocument stores the references of a parsed document.
func (r *Run) setDocument(path string, refs []model.Reference) {
	r.mu.Lock()
	r.refs[path] = refs
	r.parsed++
	r.mu.Unlock()
}

// References returns the references extracted from path, or nil if the
// document was not parsed.
func (r *Run) References(path string) []model.Reference {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[path]
}

// Parsed returns the documents that have been parsed, sorted.
func (r *Run) Parsed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.refs))
	for p := range r.refs {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// DocumentsChecked returns the number of documents parsed.
func (r *Run) DocumentsChecked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parsed
}

func (r *Run) markInterrupted() {
	r.mu.Lock()
	r.interrupted = true
	r.mu.Unlock()
}

// Interrupted reports whether the run was cancelled before all steps
// completed.
func (r *Run) Interrupted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interrupted
}

// Report aggregates the results recorded so far.
func (r *Run) Report() *model.Report {
	report := model.Aggregate(r.Results())
	report.Root = r.Root
	report.DocumentsChecked = r.DocumentsChecked()
	report.Interrupted = r.Interrupted()
	return report
}
