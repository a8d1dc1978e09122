package regka

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// neighborView is the bounded set of peers most recently heard from.
// Hearing from a peer again makes it the most recent;
// past the limit, the least recent is dropped.
type neighborView struct {
	lru *simplelru.LRU[uint32, struct{}]
}

func newNeighborView(log *slog.Logger, limit int) neighborView {
	lru, err := simplelru.NewLRU[uint32, struct{}](limit, func(id uint32, _ struct{}) {
		log.Debug("Dropped least recent neighbor", "neighbor", id)
	})
	if err != nil {
		// Only possible with a non-positive size.
		panic(fmt.Errorf("BUG: failed to create neighbor view: %w", err))
	}
	return neighborView{lru: lru}
}

// Touch records contact from id, reporting whether id was new to the view.
func (v neighborView) Touch(id uint32) bool {
	if v.lru.Contains(id) {
		// Add on an existing key only refreshes its recency.
		v.lru.Add(id, struct{}{})
		return false
	}
	v.lru.Add(id, struct{}{})
	return true
}

// IDs returns the neighbors from least to most recently heard from.
func (v neighborView) IDs() []uint32 {
	return v.lru.Keys()
}
