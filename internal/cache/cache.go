// Package cache is the read-through cache in front of the situation
// view. The allocator is re-run on every request; the cache only bounds
// how often, and is invalidated on every ledger mutation, so it is a
// performance knob rather than a correctness requirement.
package cache

import (
	"fmt"

	"github.com/plcoste/syndic/internal/fiscal"
)

// SituationCache stores situation views keyed by building and year.
type SituationCache interface {
	// Get returns the cached situation, or ok=false on a miss.
	Get(buildingID string, year int) (sit *fiscal.Situation, ok bool)

	// Set stores a situation for the implementation's TTL.
	Set(buildingID string, year int, sit *fiscal.Situation)

	// Invalidate drops the entry for a building and year.
	Invalidate(buildingID string, year int)
}

func key(buildingID string, year int) string {
	return fmt.Sprintf("situation:%s:%d", buildingID, year)
}
