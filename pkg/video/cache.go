package video

import "sync/atomic"

// Cache holds the single most recent video frame. It is written
// continuously by the ingest loop and read on demand by the conversation
// engine. Only the freshest frame matters: writes replace the slot
// unconditionally and older frames are discarded, never queued.
//
// Write and Read never block each other; a reader observes either "no
// frame yet" or a complete frame, never a partial one.
type Cache struct {
	frame atomic.Pointer[Frame]
}

// NewCache creates an empty frame cache.
func NewCache() *Cache {
	return &Cache{}
}

// Write replaces the cached frame. It never blocks and never fails.
func (c *Cache) Write(f Frame) {
	c.frame.Store(&f)
}

// Read returns the latest written frame, or ok=false if no frame has
// ever arrived.
func (c *Cache) Read() (Frame, bool) {
	p := c.frame.Load()
	if p == nil {
		return Frame{}, false
	}
	return *p, true
}
