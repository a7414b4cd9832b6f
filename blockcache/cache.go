// Package blockcache holds the most recently fetched single-block
// records in four fixed, addressable slots. The streaming worker is the
// only writer; evaluation and the presentation layer read.
package blockcache

import (
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("blockcache")

// Slots are addressed 1 through 4 inclusive.
const (
	MinSlot = 1
	MaxSlot = 4
)

// Cache is the four-slot block record store. A never-written slot reads
// as nil (JSON null).
type Cache struct {
	mu    sync.RWMutex
	slots [MaxSlot]any
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{}
}

// Set overwrites the slot with the given JSON value. An out-of-range
// slot is logged and leaves the cache unchanged; returns whether the
// write happened.
func (c *Cache) Set(slot int, value any) bool {
	if slot < MinSlot || slot > MaxSlot {
		log.Warningf("invalid block cache slot %d", slot)
		return false
	}
	c.mu.Lock()
	c.slots[slot-1] = value
	c.mu.Unlock()
	return true
}

// Get returns the last value written to the slot, or nil. An
// out-of-range slot is logged and reads as nil.
func (c *Cache) Get(slot int) any {
	if slot < MinSlot || slot > MaxSlot {
		log.Warningf("invalid block cache slot %d", slot)
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slots[slot-1]
}
