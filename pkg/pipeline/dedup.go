package pipeline

import "sync"

// RequestDeduplicator suppresses refetches whose calculation inputs
// have not changed. Each pipeline owns its own instance; the minimum
// and conversion pipelines key on different tuples, so a change that
// affects one never forces a redundant dispatch on the other.
type RequestDeduplicator struct {
	mu     sync.Mutex
	last   string
	stored bool
}

// ShouldDispatch returns true and stores key iff it differs from the
// previously stored key.
func (d *RequestDeduplicator) ShouldDispatch(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stored && d.last == key {
		return false
	}
	d.last = key
	d.stored = true
	return true
}

// Reset forgets the stored key so the next request dispatches even if
// its inputs are unchanged. Used after a failed fetch to let a
// user-initiated retry through.
func (d *RequestDeduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stored = false
	d.last = ""
}
