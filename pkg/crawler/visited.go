package crawler

import "sync"

// VisitedSet is the process-lifetime set of normalized URLs that have been
// claimed by a crawl task. Membership check and insert are a single
// atomic step so two tasks racing on the same URL can never both process
// it.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet creates an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// CheckAndAdd inserts url and reports whether it was newly added.
// Returns false when the URL was already claimed by another task.
func (v *VisitedSet) CheckAndAdd(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.seen[url]; exists {
		return false
	}
	v.seen[url] = struct{}{}
	return true
}

// Contains reports whether url has been claimed. Advisory only: callers
// that need to claim a URL must use CheckAndAdd.
func (v *VisitedSet) Contains(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, exists := v.seen[url]
	return exists
}

// Len returns the number of claimed URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
