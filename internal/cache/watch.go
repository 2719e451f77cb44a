package cache

// watch.go notifies watchers when the (optimistic) result of their query changes

import (
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type watch struct {
	doc  *Document
	vars map[string]interface{}
	fn   func(map[string]interface{})

	last map[string]interface{} // guarded by Cache.mu
	gen  uint64                 // guarded by Cache.mu

	delivered uint64 // guarded by Cache.notifyMu
}

// Watch calls fn with the optimistic result of doc now (if the cache has it) and whenever the result
// changes.  Incomplete results are not delivered.  fn is called without the cache locked but must not
// write to the cache.  The returned function cancels the watch.
func (c *Cache) Watch(doc *Document, vars map[string]interface{}, fn func(data map[string]interface{})) (cancel func()) {
	c.mu.Lock()
	id := c.nextWatch
	c.nextWatch++
	c.watches[id] = &watch{doc: doc, vars: vars, fn: fn}
	c.unlockAndNotify()

	return func() {
		c.mu.Lock()
		delete(c.watches, id)
		c.mu.Unlock()
	}
}

// unlockAndNotify releases the cache lock then calls the watchers whose results have changed.
// The caller must hold c.mu.  A result computed before one that has already been delivered is dropped.
func (c *Cache) unlockAndNotify() {
	type call struct {
		w    *watch
		gen  uint64
		data map[string]interface{}
	}
	var calls []call
	for _, w := range c.watches {
		data, complete := c.read(w.doc, w.vars, true)
		if !complete || (w.gen > 0 && cmp.Equal(w.last, data)) {
			continue
		}
		w.last = data
		w.gen++
		calls = append(calls, call{w, w.gen, data})
	}
	c.mu.Unlock()
	if len(calls) == 0 {
		return
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.logger.Debug("notifying watchers", zap.Int("count", len(calls)))
	for _, call := range calls {
		if call.gen <= call.w.delivered {
			continue
		}
		call.w.delivered = call.gen
		call.w.fn(call.data)
	}
}
