package handler

// lookup.go is used to build lookup tables for quick lookup of resolvers

import (
	"reflect"

	"github.com/andrewwphillips/likecache/internal/field"
)

// makeResolverTables builds lookup tables for all query/mutation/subscription structs of a schema.
// This allows us to quickly find the index of a field (resolver) given the struct type and resolver name.
// At the top level we have a map indexed by all the struct's (its reflect.Type) used for the schema, then
// for each struct we have a map indexed by the resolver name and giving the index of the field in the struct.
func (h *Handler) makeResolverTables() {
	h.resolverLookup = make(map[reflect.Type]map[string]int)
	for _, v := range []interface{}{h.qData, h.mData, h.subscriptionData} {
		if v != nil {
			h.addLookup(reflect.TypeOf(v))
		}
	}
}

// addLookup gets info on all resolvers (exported fields) in the parameter t, and recursively in the types
// of their results.  If t (after following pointers, lists etc) is not struct it does nothing.
func (h *Handler) addLookup(t reflect.Type) {
	for {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array, reflect.Chan:
			t = t.Elem()
			continue
		}
		break
	}
	if t.Kind() != reflect.Struct {
		return
	}
	if _, ok := h.resolverLookup[t]; ok {
		return // already done (or being done)
	}
	r := make(map[string]int, t.NumField())
	h.resolverLookup[t] = r // added before recursion for recursive data structures

	for i := 0; i < t.NumField(); i++ {
		tField := t.Field(i)
		fieldInfo, err := field.Get(&tField)
		if err != nil {
			h.logger.Sugar().Warnw("resolver ignored", "type", t.Name(), "field", tField.Name, "error", err)
			continue
		}
		if fieldInfo == nil {
			continue // ignore unexported field
		}
		r[fieldInfo.Name] = i
		h.addLookup(fieldInfo.ResultType)
	}
}
