// Package dns implements a minimal DNS client: queries are keyed by a
// CRC-16 of the hostname so repeat lookups of the same name always reuse
// the same query id, and answers are kept in a small bounded cache.
package dns

const cacheSize = 8

// entry is one cached answer, valid until expiresAt (in adapter Millis()
// time). A zero entry (filled == false) is free for reuse.
type entry struct {
	filled    bool
	queryID   uint16
	addr      [4]byte
	expiresAt uint64
}

func (e *entry) isFilled(nowMs uint64) bool {
	if !e.filled {
		return false
	}
	if nowMs >= e.expiresAt {
		*e = entry{}
		return false
	}
	return true
}

// cache holds up to cacheSize resolved answers. store evicts the first
// unfilled slot it finds; if every slot is filled, it evicts whichever
// entry expires soonest, on the theory that it's the one least likely to
// still be useful.
type cache struct {
	entries [cacheSize]entry
}

func (c *cache) get(queryID uint16, nowMs uint64) ([4]byte, bool) {
	for i := range c.entries {
		e := &c.entries[i]
		if e.isFilled(nowMs) && e.queryID == queryID {
			return e.addr, true
		}
	}
	return [4]byte{}, false
}

func (c *cache) hasEntry(queryID uint16, nowMs uint64) bool {
	_, ok := c.get(queryID, nowMs)
	return ok
}

func (c *cache) store(queryID uint16, addr [4]byte, nowMs uint64, ttlSeconds uint32) {
	expiresAt := nowMs + uint64(ttlSeconds)*1000

	for i := range c.entries {
		e := &c.entries[i]
		if !e.isFilled(nowMs) {
			*e = entry{filled: true, queryID: queryID, addr: addr, expiresAt: expiresAt}
			return
		}
	}

	soonest := 0
	for i := 1; i < cacheSize; i++ {
		if c.entries[i].expiresAt < c.entries[soonest].expiresAt {
			soonest = i
		}
	}
	c.entries[soonest] = entry{filled: true, queryID: queryID, addr: addr, expiresAt: expiresAt}
}
