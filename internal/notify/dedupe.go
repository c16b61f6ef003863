package notify

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Deduper remembers recently seen event ids so at-least-once consumers can
// skip redeliveries.
type Deduper struct {
	seen *lru.Cache[string, struct{}]
}

// NewDeduper keeps up to size event ids.
func NewDeduper(size int) (*Deduper, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("notify: dedupe cache: %w", err)
	}
	return &Deduper{seen: cache}, nil
}

// First reports whether the event is seen for the first time and remembers it.
func (d *Deduper) First(event Event) bool {
	if event.ID == "" {
		return true
	}
	found, _ := d.seen.ContainsOrAdd(event.ID, struct{}{})
	return !found
}

// Len returns the number of remembered ids.
func (d *Deduper) Len() int {
	return d.seen.Len()
}
