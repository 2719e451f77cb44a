package handler

// call.go uses reflection to call a Go function that implements a GraphQL resolver

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/andrewwphillips/likecache/internal/field"
	"github.com/vektah/gqlparser/v2/ast"
)

// fromFunc calls a Go function resolver and returns the value it produces
// Parameters:
//
//	ctx - is a context.Context that may be cancelled at any time
//	astField - is the GraphQL query object field
//	v - the reflection "value" of the Go function
//	fieldInfo - contains the parameter names obtained from the Go field metadata
func (op *gqlOperation) fromFunc(ctx context.Context, astField *ast.Field, v reflect.Value, fieldInfo *field.Info,
) (reflect.Value, error) {
	t := v.Type()
	args := make([]reflect.Value, 0, t.NumIn()) // list of arguments for the function call
	if fieldInfo.HasContext {
		args = append(args, reflect.ValueOf(ctx))
	}

	// GraphQL arguments are supplied by name not position
	for n, name := range fieldInfo.Params {
		raw, err := op.argumentValue(astField, name)
		if err != nil {
			return reflect.Value{}, err
		}
		arg, err := getValue(t.In(len(args)), name, raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("argument %d (%s) of %q: %w", n, name, astField.Name, err)
		}
		args = append(args, arg)
	}

	out := v.Call(args) // === the actual function call (using reflection) ===

	// Extract the error return value (if any)
	if fieldInfo.HasError {
		if iface := out[1].Interface(); iface != nil {
			return reflect.Value{}, iface.(error)
		}
	}
	return out[0], nil
}

// argumentValue gets the "raw" value of an argument: as supplied in the query, else the default value from
// the schema, else nil (whence the Go zero value is used).
// The raw value is stored the same way the JSON decoder does. Eg: a GraphQL "object" (to be decoded into a Go
// struct) is stored as a map[string]interface{} and a GraphQL list is stored in a []interface{}.
func (op *gqlOperation) argumentValue(astField *ast.Field, name string) (interface{}, error) {
	if argument := astField.Arguments.ForName(name); argument != nil {
		return argument.Value.Value(op.variables)
	}
	if astField.Definition != nil {
		if def := astField.Definition.Arguments.ForName(name); def != nil && def.DefaultValue != nil {
			return def.DefaultValue.Value(nil)
		}
	}
	return nil, nil
}

// getValue converts a raw value (eg for a resolver argument) into a value of the expected Go type
// Parameters:
//
//	t = expected type
//	name = corresponding name of the argument (for error messages)
//	value = what needs to be returned as a value of type t
func getValue(t reflect.Type, name string, value interface{}) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil // null or missing
	}
	if t.Kind() == reflect.Ptr {
		elem, err := getValue(t.Elem(), name, value)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	}

	switch t.Kind() {
	case reflect.Struct:
		m, ok := value.(map[string]interface{})
		if !ok {
			return reflect.Value{}, fmt.Errorf("decoding %q - expected an object but got %T", name, value)
		}
		return getStruct(t, name, m)

	case reflect.Slice:
		list, ok := value.([]interface{})
		if !ok {
			list = []interface{}{value} // a single value is accepted as a list of one
		}
		return getList(t, name, list)

	case reflect.Bool:
		if b, ok := value.(bool); ok {
			return reflect.ValueOf(b).Convert(t), nil
		}

	case reflect.String:
		if s, ok := value.(string); ok {
			return reflect.ValueOf(s).Convert(t), nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch n := value.(type) {
		case int64:
			return reflect.ValueOf(n).Convert(t), nil
		case int:
			return reflect.ValueOf(n).Convert(t), nil
		case float64:
			if n == math.Trunc(n) {
				return reflect.ValueOf(int64(n)).Convert(t), nil
			}
		}

	case reflect.Float32, reflect.Float64:
		switch n := value.(type) {
		case float64:
			return reflect.ValueOf(n).Convert(t), nil
		case int64:
			return reflect.ValueOf(float64(n)).Convert(t), nil
		case int:
			return reflect.ValueOf(float64(n)).Convert(t), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("value %v (%T) of %q cannot be used as %v", value, value, name, t)
}

// getStruct converts a map (eg a from JSON decoder) to a struct including any nested structs, and slices
// Parameters
//
//	t = type of the struct that we need to fill in from the GraphQL object
//	name = name of the argument
//	m = map key is field names of the object, map value is field values
func getStruct(t reflect.Type, name string, m map[string]interface{}) (reflect.Value, error) {
	r := reflect.New(t).Elem()
	for idx := 0; idx < t.NumField(); idx++ {
		f := t.Field(idx)
		fieldInfo, err := field.Get(&f)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w getting field %q", err, f.Name)
		}
		if fieldInfo == nil {
			continue // ignore unexported field
		}
		v, err := getValue(f.Type, fieldInfo.Name, m[fieldInfo.Name])
		if err != nil {
			return reflect.Value{}, fmt.Errorf("converting field %q of %q: %w", fieldInfo.Name, name, err)
		}
		r.Field(idx).Set(v)
	}
	return r, nil
}

// getList converts a list of values from a GraphQL variable or literal into a Go slice
func getList(t reflect.Type, name string, list []interface{}) (reflect.Value, error) {
	r := reflect.MakeSlice(t, len(list), len(list))
	for i, value := range list {
		v, err := getValue(t.Elem(), fmt.Sprintf("%s[%d]", name, i), value)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("getting slice value %s[%d]: %w", name, i, err)
		}
		r.Index(i).Set(v)
	}
	return r, nil
}
