// Package field is for analysing Go struct fields for use as GraphQL query fields (resolvers)
package field

// field.go generates GraphQL resolver info from a Go struct field and its "egg:" tag

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TagKey is the struct tag key used to attach GraphQL metadata to resolver fields
const TagKey = "egg"

// Info is returned by Get() with info extracted from a struct field to be used as a GraphQL query resolver.
// The info is obtained from the field's name, type and "egg" (metadata) tag.
type Info struct {
	Name string // field name for use in GraphQL queries - from the tag or the Go field name

	// ValueType is the Go type that the resolver produces, ie the field type or the function's first return
	// type (or, for a subscription, the element type of the returned channel)
	ValueType reflect.Type
	// ResultType is the underlying type of the resolved value (pointers removed, list element type for a
	// slice/array) - this is what determines which GraphQL object type (if any) is involved
	ResultType reflect.Type

	// The following are for function resolvers only
	Params     []string // name(s) of args to resolver function obtained from metadata
	Defaults   []string // corresp. default value(s) (as strings) where an empty string means there is no default
	DescArgs   []string // corresp. description of the argument
	HasContext bool     // 1st function parameter is a context.Context (not a query argument)
	HasError   bool     // has 2 return values the 2nd of which is a Go error
	IsStream   bool     // function returns a receive channel (subscription field)

	Nullable    bool   // the "nullable" option was given (pointer types are always nullable)
	Description string // text after any # in the tag (outside brackets)
}

// contextType is used to check if a resolver function takes a context.Context (1st) parameter
var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// errorType is used to check if a resolver function returns a (2nd) error return value
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Get checks if a field in a Go struct is exported and, if so, returns the GraphQL field info. incl. the
// GQL field name, derived from the Go field name (with 1st char lower-cased) or taken from the tag.
// An error may be returned e.g. for malformed metadata, or a resolver function returning too many values.
// If the field is not exported or the tag is a dash (-) then nil is returned, but no error.
func Get(f *reflect.StructField) (*Info, error) {
	if f.PkgPath != "" || f.Anonymous {
		return nil, nil // unexported or embedded
	}

	fieldInfo, err := GetTagInfo(f.Tag.Get(TagKey))
	if err != nil {
		return nil, fmt.Errorf("%w getting tag info from field %q", err, f.Name)
	}
	if fieldInfo == nil {
		return nil, nil // explicitly omitted field
	}
	if fieldInfo.Name == "" {
		first, n := utf8.DecodeRuneInString(f.Name)
		fieldInfo.Name = string(unicode.ToLower(first)) + f.Name[n:]
	}

	t := f.Type
	if t.Kind() == reflect.Func {
		if t, err = fieldInfo.funcType(f.Name, t); err != nil {
			return nil, err
		}
	} else if fieldInfo.Params != nil {
		return nil, errors.New("arguments cannot be supplied for non-function resolver " + f.Name)
	} else if t.Kind() == reflect.Chan {
		fieldInfo.IsStream = true
		t = t.Elem()
	}
	fieldInfo.ValueType = t

	// Strip pointers and list types to get to the element type
	for {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array:
			t = t.Elem()
			continue
		}
		break
	}
	fieldInfo.ResultType = t
	return fieldInfo, nil
}

// funcType validates the parameters and return values of a resolver function and returns the type
// of the value it produces
func (fieldInfo *Info) funcType(name string, t reflect.Type) (reflect.Type, error) {
	firstIndex := 0
	if t.NumIn() > 0 && t.In(0).Kind() == reflect.Interface && t.In(0).Implements(contextType) {
		fieldInfo.HasContext = true
		firstIndex++
	}
	if t.NumIn()-firstIndex != len(fieldInfo.Params) {
		if len(fieldInfo.Params) == 0 {
			return nil, fmt.Errorf("no args found in egg tag for %q but %d required", name, t.NumIn()-firstIndex)
		}
		return nil, fmt.Errorf("function %q argument count should be %d but is %d",
			name, len(fieldInfo.Params), t.NumIn()-firstIndex)
	}

	switch t.NumOut() {
	case 0:
		return nil, errors.New("resolver " + name + " must return a value (or 2)")
	case 1:
	case 2:
		if t2 := t.Out(1); t2.Kind() != reflect.Interface || !t2.Implements(errorType) {
			return nil, errors.New("resolver " + name + " 2nd return must be error type")
		}
		fieldInfo.HasError = true
	default:
		return nil, errors.New("resolver " + name + " returns too many values")
	}

	out := t.Out(0)
	if out.Kind() == reflect.Chan {
		if out.ChanDir()&reflect.RecvDir == 0 {
			return nil, errors.New("resolver " + name + " must return a receive channel")
		}
		fieldInfo.IsStream = true
		out = out.Elem()
	}
	return out, nil
}

// GetTagInfo extracts GraphQL field name and options from the field's tag (if any)
// If the tag just contains a dash (-) then nil is returned (no error).  If the tag string is empty
// (e.g. if no tag was supplied) then the returned Info is not nil but the Name field is empty.
func GetTagInfo(tag string) (*Info, error) {
	if tag == "-" {
		return nil, nil
	}
	parts, desc, err := SplitWithDesc(tag)
	if err != nil {
		return nil, fmt.Errorf("%w splitting tag %q", err, tag)
	}
	fieldInfo := &Info{Description: strings.TrimSpace(desc)}
	for i, part := range parts {
		if i == 0 {
			fieldInfo.Name = part
			continue
		}
		if part == "" {
			continue
		}
		if part == "nullable" {
			fieldInfo.Nullable = true
			continue
		}
		if list, err := getBracketedList(part, "args"); err != nil {
			return nil, fmt.Errorf("%w getting args in %q", err, tag)
		} else if list != nil {
			fieldInfo.setParams(list)
			continue
		}
		return nil, fmt.Errorf("unknown option %q in egg tag %q", part, tag)
	}
	return fieldInfo, nil
}

// setParams stores the resolver argument names, defaults (after =) and descriptions (after #)
func (fieldInfo *Info) setParams(list []string) {
	fieldInfo.Params = make([]string, len(list))
	fieldInfo.Defaults = make([]string, len(list))
	fieldInfo.DescArgs = make([]string, len(list))
	for i, s := range list {
		if name, desc, ok := strings.Cut(s, "#"); ok {
			s = name
			fieldInfo.DescArgs[i] = strings.TrimSpace(desc)
		}
		if name, def, ok := strings.Cut(s, "="); ok {
			s = name
			fieldInfo.Defaults[i] = strings.Trim(def, " ")
		}
		fieldInfo.Params[i] = strings.Trim(s, " ")
	}
}

// getBracketedList gets a list of values from a string enclosed in brackets and preceded by a keyword.
// Eg for getBracketedList("args(a,b=2)", "args") it will return the list {"a", "b=2"}.
// If the keyword does not match it returns nil (and no error).
func getBracketedList(s, keyword string) ([]string, error) {
	if !strings.HasPrefix(s, keyword+"(") {
		return nil, nil
	}
	s = strings.TrimPrefix(s, keyword)

	last := len(s) - 1
	if last < 1 || s[0] != '(' || s[last] != ')' {
		return nil, errors.New("value(s) not in brackets for tag keyword " + keyword)
	}
	s = strings.Trim(s[1:last], " ")
	if s == "" {
		return []string{}, nil // empty parameter list
	}
	return SplitArgs(s)
}
