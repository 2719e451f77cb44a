package cache

// read.go denormalizes records back into results

import "github.com/vektah/gqlparser/v2/ast"

// Read builds the result of doc from the cache.  If optimistic is true pending layers are included.
// The result is only usable if complete is true, ie every selected field was found.
func (c *Cache) Read(doc *Document, vars map[string]interface{}, optimistic bool) (data map[string]interface{}, complete bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(doc, vars, optimistic)
}

func (c *Cache) read(doc *Document, vars map[string]interface{}, optimistic bool) (map[string]interface{}, bool) {
	rec, ok := c.lookup(doc.Root(), optimistic)
	if !ok {
		return nil, false
	}
	r := reader{c: c, doc: doc, vars: vars, optimistic: optimistic}
	return r.object(doc.op.SelectionSet, rec)
}

type reader struct {
	c          *Cache
	doc        *Document
	vars       map[string]interface{}
	optimistic bool
}

func (r *reader) object(set ast.SelectionSet, rec Record) (map[string]interface{}, bool) {
	typename, _ := rec["__typename"].(string)
	out := make(map[string]interface{})
	for _, f := range r.doc.collect(set, r.vars, typename) {
		name, err := storeName(f, r.vars)
		if err != nil {
			return nil, false
		}
		stored, ok := rec[name]
		if !ok {
			return nil, false
		}
		value, ok := r.value(f, stored)
		if !ok {
			return nil, false
		}
		out[responseKey(f)] = value
	}
	return out, true
}

func (r *reader) value(f *ast.Field, stored interface{}) (interface{}, bool) {
	switch v := stored.(type) {
	case Ref:
		rec, ok := r.c.lookup(v.Key, r.optimistic)
		if !ok {
			return nil, false // dangling
		}
		return r.object(f.SelectionSet, rec)

	case Record:
		return r.object(f.SelectionSet, v)

	case []interface{}:
		list := make([]interface{}, len(v))
		for i, elt := range v {
			var ok bool
			if list[i], ok = r.value(f, elt); !ok {
				return nil, false
			}
		}
		return list, true
	}
	return stored, true
}
