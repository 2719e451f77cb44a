// Package cache is a normalized GraphQL client cache.  Objects that have a __typename and an id
// are stored once under their Key and referenced from wherever they appear in a result.
// Optimistic (predicted) results are kept in layers on top of the root store until the
// authoritative result settles the layer or the layer is rolled back.
package cache

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type (
	// Key identifies a normalized record: an entity (typename + id) or a root
	Key struct {
		Typename string
		ID       string
	}

	// Ref is stored in a record in place of an entity
	Ref struct {
		Key Key
	}

	// Record holds the fields of an entity or root, keyed by storage name (field name plus
	// arguments).  Values are scalars, Refs, nested (unidentified) Records or lists of these.
	Record map[string]interface{}

	// Cache is safe for concurrent use
	Cache struct {
		mu     sync.Mutex
		root   map[Key]Record
		owned  map[Key]bool // entities whose last root write came from a network-only query
		layers []*layer
		states map[LayerID]LayerState

		notifyMu  sync.Mutex // serialises watch callbacks
		watches   map[int]*watch
		nextWatch int

		logger *zap.Logger
	}
)

var (
	RootQuery    = Key{Typename: "ROOT_QUERY"}
	RootMutation = Key{Typename: "ROOT_MUTATION"}

	ErrUnknownLayer = errors.New("cache: unknown or finished optimistic layer")
)

func (k Key) String() string {
	if k.ID == "" {
		return k.Typename
	}
	return k.Typename + ":" + k.ID
}

// New creates an empty cache
func New(options ...func(*Cache)) *Cache {
	c := &Cache{
		root:    make(map[Key]Record),
		owned:   make(map[Key]bool),
		states:  make(map[LayerID]LayerState),
		watches: make(map[int]*watch),
		logger:  zap.NewNop(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Logger sets the logger for layer transitions and watch notifications
func Logger(logger *zap.Logger) func(*Cache) {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Identify returns the key of a result object, which requires a __typename and a non-null id
func Identify(obj map[string]interface{}) (Key, bool) {
	typename, ok := obj["__typename"].(string)
	if !ok || typename == "" {
		return Key{}, false
	}
	id, ok := obj["id"]
	if !ok || id == nil {
		return Key{}, false
	}
	return Key{Typename: typename, ID: fmt.Sprint(id)}, true
}

// Merge reconciles two versions of the same record: fields of src replace those of dst (last writer
// wins per field) and fields only in dst are kept.  Neither argument is modified.
func Merge(dst, src Record) Record {
	r := make(Record, len(dst)+len(src))
	for k, v := range dst {
		r[k] = v
	}
	for k, v := range src {
		r[k] = v
	}
	return r
}

// Extract returns a copy of the root store (optimistic layers are not included)
func (c *Cache) Extract() map[Key]Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := make(map[Key]Record, len(c.root))
	for k, rec := range c.root {
		r[k] = Merge(nil, rec)
	}
	return r
}

// NetworkOwned reports whether data, written for doc, would touch an entity whose last root write
// came from a network-only query
func (c *Cache) NetworkOwned(doc *Document, vars, data map[string]interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, keys, err := stage(doc, vars, data)
	if err != nil {
		return false
	}
	for _, k := range keys {
		if c.owned[k] {
			return true
		}
	}
	return false
}

// lookup finds a record in the root store, with the fields of each optimistic layer merged on top (in
// the order the layers were applied) if optimistic is true
func (c *Cache) lookup(key Key, optimistic bool) (Record, bool) {
	rec, ok := c.root[key]
	if !optimistic {
		return rec, ok
	}
	for _, l := range c.layers {
		if r, found := l.records[key]; found {
			rec = Merge(rec, r)
			ok = true
		}
	}
	return rec, ok
}

// commit merges staged records into the root store, recording ownership of the entities
func (c *Cache) commit(staged map[Key]Record, keys []Key, owned bool) {
	for k, rec := range staged {
		c.root[k] = Merge(c.root[k], rec)
	}
	for _, k := range keys {
		if owned {
			c.owned[k] = true
		} else {
			delete(c.owned, k)
		}
	}
}
