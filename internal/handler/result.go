package handler

// result.go is used to generate the query output

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/andrewwphillips/likecache/internal/field"
	"github.com/dolmen-go/jsonmap"
	"github.com/vektah/gqlparser/v2/ast"
)

type (
	// gqlOperation controls an operation (query/mutation/subscription) of a GraphQL request
	gqlOperation struct {
		*Handler // required for resolver lookups, options etc

		isMutation bool
		variables  map[string]interface{} // variables valid for this op (extracted from the request)
	}

	// gqlValue contains the result of a query or queries, or an error, plus the name
	gqlValue struct {
		name  string      // name/alias of the entry/resolver
		value interface{} // scalar, nested result (jsonmap.Ordered), list ([]interface{}) or channel (subscription)
		err   error       // non-nil if something went wrong whence the contents of value should be ignored
	}

	// fieldError records where in the result an error occurred
	fieldError struct {
		path ast.Path
		err  error
	}
)

func (e *fieldError) Error() string { return e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

// GetSelections resolves the selections in a query by finding and evaluating the corresponding resolver(s)
// Returns a jsonmap.Ordered (a map of values and a slice that remembers the order they were added) that contains an
// entry for each selection, where the map "key" is the name (or alias) of the field and the value is:
//
//	a) scalar value (stored in an interface{})
//	b) a nested jsonmap.Ordered if the resolver is a nested struct
//	c) a slice (ie []interface{}) if the resolver is a slice or array.
//
// Parameters:
//
//	ctx = a Go context that could expire at any time
//	set = list of selections from a GraphQL query to be resolved
//	data = Go struct (or pointer to struct) containing the resolvers
//	typeName = name of the GraphQL object type that data represents (used for fragment type conditions)
func (op *gqlOperation) GetSelections(ctx context.Context, set ast.SelectionSet, data interface{}, typeName string,
) (jsonmap.Ordered, error) {
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem() // follow indirection
	}

	resultChans := make([]<-chan gqlValue, 0, len(set))
	for _, s := range set {
		switch astType := s.(type) {
		case *ast.Field:
			if ch := op.FindSelection(ctx, astType, v); ch != nil {
				resultChans = append(resultChans, ch)
			}

		case *ast.InlineFragment:
			if astType.TypeCondition != "" && astType.TypeCondition != typeName {
				continue
			}
			if op.directiveBypass(astType.Directives) {
				continue
			}
			resultChans = append(resultChans, op.FindFragments(ctx, astType.SelectionSet, data, typeName))

		case *ast.FragmentSpread:
			if astType.Definition == nil || astType.Definition.TypeCondition != typeName {
				continue
			}
			if op.directiveBypass(astType.Directives) {
				continue
			}
			resultChans = append(resultChans, op.FindFragments(ctx, astType.Definition.SelectionSet, data, typeName))
		}
	}

	// Now extract the values (will block until all channels have closed)
	r := jsonmap.Ordered{
		Data:  make(map[string]interface{}),
		Order: make([]string, 0, len(set)),
	}
	for _, ch := range resultChans {
	inner:
		for {
			select {
			case v, ok := <-ch:
				if !ok {
					break inner
				}
				if v.err != nil {
					return jsonmap.Ordered{}, v.err
				}
				if _, ok := r.Data[v.name]; !ok {
					r.Order = append(r.Order, v.name) // only append to order if not already in the map
				}
				r.Data[v.name] = v.value
			case <-ctx.Done():
				return jsonmap.Ordered{}, ctx.Err()
			}
		}
	}
	return r, nil
}

// FindSelection returns resolved value in a chan (if found), or empty chan (if excluded), or nil (not found)
// Parameters:
//   - ctx: context that indicates if the request has been cancelled
//   - astField: contains the query name, arguments etc to be resolved
//   - v: struct which contains the field required to resolve astField
func (op *gqlOperation) FindSelection(ctx context.Context, astField *ast.Field, v reflect.Value) <-chan gqlValue {
	if op.directiveBypass(astField.Directives) {
		ch := make(chan gqlValue)
		close(ch)
		return ch
	}
	if astField.Name == "__typename" { // __typename is a special introspection field (see GraphQL spec)
		ch := make(chan gqlValue, 1)
		ch <- gqlValue{name: astField.Alias, value: astField.ObjectDefinition.Name}
		close(ch)
		return ch
	}
	if v.Kind() != reflect.Struct {
		ch := make(chan gqlValue, 1)
		ch <- gqlValue{err: fmt.Errorf("search of field %q in non-struct %v", astField.Name, v.Kind())}
		close(ch)
		return ch
	}

	index, ok := op.resolverLookup[v.Type()][astField.Name]
	if !ok {
		return nil
	}
	tField := v.Type().Field(index)
	fieldInfo, err := field.Get(&tField)
	if err != nil || fieldInfo == nil {
		return nil
	}
	vField := v.Field(index)

	if op.isMutation || op.noConcurrency { // Mutations are run sequentially
		ch := make(chan gqlValue, 1)
		op.wrapResolve(ctx, astField, vField, fieldInfo, ch)
		return ch
	}
	ch := make(chan gqlValue, 1) // buffered so the go routine can finish if the request is abandoned
	// Calling wrapResolve as a go routine allows resolvers to run in parallel
	go op.wrapResolve(ctx, astField, vField, fieldInfo, ch)
	return ch
}

// wrapResolve calls resolve putting the return value on a chan and converting any panic to an error
func (op *gqlOperation) wrapResolve(ctx context.Context, astField *ast.Field, v reflect.Value, fieldInfo *field.Info,
	ch chan<- gqlValue,
) {
	defer func() {
		// Convert any panics in resolvers into an (internal) error
		if recoverValue := recover(); recoverValue != nil {
			op.logger.Sugar().Errorw("resolver panic", "field", astField.Name, "panic", recoverValue)
			ch <- gqlValue{err: withPath(ast.PathName(astField.Alias), fmt.Errorf("internal error: panic %v", recoverValue))}
		}
		close(ch)
	}()
	value := op.resolve(ctx, astField, v, fieldInfo)
	if value.err != nil {
		value.err = withPath(ast.PathName(astField.Alias), value.err)
	}
	ch <- value
}

// withPath adds a field name (or list index) to the front of the path of an error
func withPath(elt ast.PathElement, err error) error {
	var fe *fieldError
	if errors.As(err, &fe) {
		fe.path = append(ast.Path{elt}, fe.path...)
		return fe
	}
	return &fieldError{path: ast.Path{elt}, err: err}
}

// FindFragments resolves the selections of a fragment returning them on a (closed) chan
func (op *gqlOperation) FindFragments(ctx context.Context, set ast.SelectionSet, data interface{}, typeName string,
) <-chan gqlValue {
	result, err := op.GetSelections(ctx, set, data, typeName)
	var ch chan gqlValue
	if err != nil {
		ch = make(chan gqlValue, 1)
		ch <- gqlValue{err: err}
	} else {
		ch = make(chan gqlValue, len(result.Order))
		for _, k := range result.Order {
			ch <- gqlValue{name: k, value: result.Data[k]}
		}
	}
	close(ch)
	return ch
}

// resolve calls a resolver given a query to obtain the results of the query (incl. listed and nested queries)
// Resolvers are often dynamic (where the resolver is a Go function) in which case the function is called to get the value.
// Parameters:
//
//	ctx = a Go context that could expire at any time
//	astField = a query or sub-query - a field of a GraphQL object
//	v = value of the resolver (field of Go struct)
//	fieldInfo = metadata for the resolver (eg parameter name) obtained from the struct field tag
func (op *gqlOperation) resolve(ctx context.Context, astField *ast.Field, v reflect.Value, fieldInfo *field.Info,
) gqlValue {
	if v.Kind() == reflect.Func {
		if v.IsNil() {
			return gqlValue{name: astField.Alias} // null
		}
		var err error
		// For function fields, we have to call it to get the resolver value to use
		if v, err = op.fromFunc(ctx, astField, v, fieldInfo); err != nil {
			return gqlValue{err: err}
		}
	}
	if fieldInfo.IsStream {
		return gqlValue{name: astField.Alias, value: v}
	}
	value, err := op.resolveValue(ctx, astField, v)
	return gqlValue{name: astField.Alias, value: value, err: err}
}

// resolveValue converts a Go value into the value to be encoded in the result, according to the field's selections
func (op *gqlOperation) resolveValue(ctx context.Context, astField *ast.Field, v reflect.Value) (interface{}, error) {
	if !v.IsValid() {
		return nil, nil
	}
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem() // follow indirection
	}

	switch v.Kind() {
	case reflect.Struct:
		// Look up all sub-queries in this object
		return op.GetSelections(ctx, astField.SelectionSet, v.Interface(), astField.Definition.Type.Name())

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		results := make([]interface{}, 0, v.Len()) // to distinguish empty slice from nil slice
		for i := 0; i < v.Len(); i++ {
			value, err := op.resolveValue(ctx, astField, v.Index(i))
			if err != nil {
				return nil, withPath(ast.PathIndex(i), err)
			}
			results = append(results, value)
		}
		return results, nil
	}

	// Just return the scalar value (Int, String, Boolean, or Float)
	return v.Interface(), nil
}

// directiveBypass handles field directives - just standard "skip" and "include" for now
// Returns: true if a directive indicates the field is not to be processed
func (op *gqlOperation) directiveBypass(directives ast.DirectiveList) bool {
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		reverse := d.Name == "skip"
		if arg := d.Arguments.ForName("if"); arg != nil {
			if rawValue, err := arg.Value.Value(op.variables); err == nil {
				if b, ok := rawValue.(bool); ok && b == reverse {
					return true
				}
			}
		}
	}
	return false
}
