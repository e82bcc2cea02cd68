package telemetry

import (
	"sync"
)

// Mark identifies a point in an EventCache. Events appended after a Mark was
// taken are never removed by ClearThrough(mark).
type Mark uint64

type cachedEvent struct {
	seq   uint64
	event Event
}

// EventCache is an append-ordered store of events waiting to be sent.
// One instance is shared for the lifetime of the process.
type EventCache struct {
	mu      sync.Mutex
	entries []cachedEvent
	next    uint64
}

// NewEventCache creates an empty cache.
func NewEventCache() *EventCache {
	return &EventCache{}
}

// Append adds events in order.
func (c *EventCache) Append(events ...Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range events {
		c.entries = append(c.entries, cachedEvent{seq: c.next, event: e})
		c.next++
	}
}

// Snapshot returns the current contents, oldest first, and a Mark covering exactly them.
func (c *EventCache) Snapshot() ([]Event, Mark) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, len(c.entries))
	for i, entry := range c.entries {
		out[i] = entry.event
	}
	return out, Mark(c.next)
}

// ClearThrough removes every event that was present when mark was taken.
func (c *EventCache) ClearThrough(mark Mark) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := 0
	for i < len(c.entries) && c.entries[i].seq < uint64(mark) {
		i++
	}
	if i == 0 {
		return
	}
	remaining := make([]cachedEvent, len(c.entries)-i)
	copy(remaining, c.entries[i:])
	c.entries = remaining
}

// Events returns a copy of the cached events, oldest first.
func (c *EventCache) Events() []Event {
	events, _ := c.Snapshot()
	return events
}

// Len returns the number of cached events.
func (c *EventCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
