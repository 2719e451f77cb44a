package cache

// layer.go handles optimistic layers: Pending(predicted) -> Settled(authoritative) or Failed(rolled-back)

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type (
	// LayerID identifies an optimistic layer.  IDs are ordered by creation time.
	LayerID = ulid.ULID

	// LayerState is the state of an optimistic layer
	LayerState int

	layer struct {
		id      LayerID
		records map[Key]Record
	}
)

const (
	Pending LayerState = iota // predicted result applied, awaiting the network
	Settled                   // authoritative result merged, layer removed
	Failed                    // rolled back, layer removed
)

func (s LayerState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("LayerState(%d)", int(s))
}

// ApplyOptimistic normalizes a predicted result into a new pending layer on top of the root store
func (c *Cache) ApplyOptimistic(doc *Document, vars, data map[string]interface{}) (LayerID, error) {
	c.mu.Lock()
	staged, _, err := stage(doc, vars, data)
	if err != nil {
		c.mu.Unlock()
		return LayerID{}, err
	}
	l := &layer{id: ulid.Make(), records: staged}
	c.layers = append(c.layers, l)
	c.states[l.id] = Pending
	c.logger.Debug("optimistic layer applied", zap.Stringer("layer", l.id), zap.String("operation", doc.Name()))
	c.unlockAndNotify()
	return l.id, nil
}

// Settle writes the authoritative result of a pending layer and removes the layer.  With ByEntity the
// result is merged into the root store; with ByLayer it is merged into the layer and so is discarded.
func (c *Cache) Settle(id LayerID, doc *Document, vars, data map[string]interface{}, rule MergeRule) error {
	c.mu.Lock()
	i := c.layerIndex(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("settle %s: %w", id, ErrUnknownLayer)
	}
	staged, keys, err := stage(doc, vars, data)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	switch rule {
	case ByLayer:
		l := c.layers[i]
		for k, rec := range staged {
			l.records[k] = Merge(l.records[k], rec)
		}
	default:
		c.commit(staged, keys, false)
	}
	c.remove(i, Settled)
	c.logger.Debug("optimistic layer settled", zap.Stringer("layer", id), zap.Stringer("rule", rule))
	c.unlockAndNotify()
	return nil
}

// Rollback discards a pending layer
func (c *Cache) Rollback(id LayerID) error {
	c.mu.Lock()
	i := c.layerIndex(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("rollback %s: %w", id, ErrUnknownLayer)
	}
	c.remove(i, Failed)
	c.logger.Debug("optimistic layer rolled back", zap.Stringer("layer", id))
	c.unlockAndNotify()
	return nil
}

// State returns the state of a layer created by ApplyOptimistic
func (c *Cache) State(id LayerID) (LayerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[id]
	if !ok {
		return Pending, fmt.Errorf("state %s: %w", id, ErrUnknownLayer)
	}
	return s, nil
}

func (c *Cache) layerIndex(id LayerID) int {
	for i, l := range c.layers {
		if l.id == id {
			return i
		}
	}
	return -1
}

func (c *Cache) remove(i int, state LayerState) {
	c.states[c.layers[i].id] = state
	c.layers = append(c.layers[:i], c.layers[i+1:]...)
}
