package views

import (
	"sync/atomic"

	"osp/internal/aggregate"
)

// Container holds the current views snapshot behind an atomic pointer. The
// loop goroutine is the only writer during normal operation, but operational
// commands read concurrently; swapping whole snapshots means a reader never
// observes a partially updated view.
type Container struct {
	cur atomic.Pointer[aggregate.Views]
}

// NewContainer starts from an empty snapshot.
func NewContainer() *Container {
	c := &Container{}
	v := aggregate.NewViews()
	c.cur.Store(&v)
	return c
}

// Load returns the current snapshot. Callers must treat it as read-only.
func (c *Container) Load() aggregate.Views {
	return *c.cur.Load()
}

// Store installs a new snapshot.
func (c *Container) Store(v aggregate.Views) {
	c.cur.Store(&v)
}

// Update applies fn to the current snapshot and installs the result. Not safe
// for concurrent writers; the loop is the single writer.
func (c *Container) Update(fn func(aggregate.Views) aggregate.Views) aggregate.Views {
	next := fn(c.Load())
	c.Store(next)
	return next
}

// Reset replaces the snapshot with an empty one.
func (c *Container) Reset() {
	c.Store(aggregate.NewViews())
}
