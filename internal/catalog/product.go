// Package catalog is the Catalog Service: an in-memory product source that lists
// products (advancing a shared id sequence) and toggles a product's liked flag.
package catalog

import "sync/atomic"

type (
	// Product is the only entity of the catalog.  Both fields are nullable in the schema.
	Product struct {
		ID      int  `egg:"id,nullable"`
		IsLiked bool `egg:",nullable"`
	}

	// Sequence provides ids for listed products
	Sequence interface {
		Next() int
	}

	// Counter is an in-memory Sequence starting at 1.  A single Counter is shared by all
	// requests to the service it is given to.
	Counter struct {
		next atomic.Int64
	}
)

// NewCounter returns a counter whose first value is 1
func NewCounter() *Counter {
	c := &Counter{}
	c.next.Store(1)
	return c
}

// Next returns the current value and advances the counter
func (c *Counter) Next() int {
	return int(c.next.Add(1) - 1)
}
