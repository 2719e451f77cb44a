package cache

// write.go normalizes results into records

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// Write normalizes the result of an operation into the root store and notifies watchers.  Entities
// written by a network-only query become network-owned; any other write clears ownership.
func (c *Cache) Write(doc *Document, vars, data map[string]interface{}, policy FetchPolicy) error {
	c.mu.Lock()
	staged, keys, err := stage(doc, vars, data)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.commit(staged, keys, policy == NetworkOnly && doc.Operation() == ast.Query)
	c.unlockAndNotify()
	return nil
}

// stage normalizes data into a new set of records, also returning the keys of the entities found
func stage(doc *Document, vars, data map[string]interface{}) (map[Key]Record, []Key, error) {
	n := normalizer{doc: doc, vars: vars, records: make(map[Key]Record)}
	rec, err := n.object(doc.op.SelectionSet, data)
	if err != nil {
		return nil, nil, err
	}
	root := doc.Root()
	n.records[root] = Merge(n.records[root], rec)
	return n.records, n.keys, nil
}

type normalizer struct {
	doc     *Document
	vars    map[string]interface{}
	records map[Key]Record
	keys    []Key
}

// object converts a result object into a record.  Fields missing from the result are not written.
func (n *normalizer) object(set ast.SelectionSet, obj map[string]interface{}) (Record, error) {
	typename, _ := obj["__typename"].(string)
	rec := make(Record)
	for _, f := range n.doc.collect(set, n.vars, typename) {
		value, ok := obj[responseKey(f)]
		if !ok {
			continue
		}
		name, err := storeName(f, n.vars)
		if err != nil {
			return nil, err
		}
		if rec[name], err = n.value(f, value); err != nil {
			return nil, fmt.Errorf("%s: %w", responseKey(f), err)
		}
	}
	return rec, nil
}

func (n *normalizer) value(f *ast.Field, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		if len(f.SelectionSet) == 0 {
			return v, nil
		}
		rec, err := n.object(f.SelectionSet, v)
		if err != nil {
			return nil, err
		}
		key, ok := Identify(v)
		if !ok {
			return rec, nil // stored inline in its parent
		}
		if _, seen := n.records[key]; !seen {
			n.keys = append(n.keys, key)
		}
		n.records[key] = Merge(n.records[key], rec)
		return Ref{Key: key}, nil

	case []interface{}:
		list := make([]interface{}, len(v))
		for i, elt := range v {
			var err error
			if list[i], err = n.value(f, elt); err != nil {
				return nil, fmt.Errorf("%d: %w", i, err)
			}
		}
		return list, nil
	}
	return value, nil
}
