// Package anchor keeps the set of fragment targets each document declares.
//
// The index is filled while documents are parsed in parallel and read while
// references are resolved, so every method is safe for concurrent use.
package anchor

import (
	"sync"

	"github.com/nao1215/linkproof/internal/htmldoc"
)

// Index maps a site-relative document path to the ids it declares.
type Index struct {
	mu   sync.RWMutex
	docs map[string]map[string]struct{}
}

// New returns an empty Index.
func New() *Index {
	return &Index{docs: make(map[string]map[string]struct{})}
}

// Add records the anchors of the document at path and returns the anchors
// that repeat an id already declared by the same document, in the order
// given. Adding the same path twice merges the anchor sets.
func (x *Index) Add(path string, anchors []htmldoc.Anchor) []htmldoc.Anchor {
	x.mu.Lock()
	defer x.mu.Unlock()

	ids, ok := x.docs[path]
	if !ok {
		ids = make(map[string]struct{}, len(anchors))
		x.docs[path] = ids
	}

	var duplicates []htmldoc.Anchor
	seen := make(map[string]struct{}, len(anchors))
	for _, a := range anchors {
		if _, dup := seen[a.ID]; dup {
			duplicates = append(duplicates, a)
			continue
		}
		seen[a.ID] = struct{}{}
		ids[a.ID] = struct{}{}
	}
	return duplicates
}

// Has reports whether the document at path declares id.
func (x *Index) Has(path, id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.docs[path][id]
	return ok
}

// Known reports whether the document at path was indexed at all.
// Targets in unindexed documents cannot be verified.
func (x *Index) Known(path string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.docs[path]
	return ok
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}
