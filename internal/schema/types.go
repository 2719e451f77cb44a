package schema

// types.go accumulates the GraphQL object and input types found while walking the Go structs

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/andrewwphillips/likecache/internal/field"
)

// schemaTypes stores all the types of the schema accumulated so far
type schemaTypes struct {
	declaration map[string]string       // text declaration of all types generated, keyed by type name
	usedAs      map[reflect.Type]string // tracks structs already seen (mainly to handle recursive data structures)
}

func newSchemaTypes() schemaTypes {
	return schemaTypes{
		declaration: make(map[string]string),
		usedAs:      make(map[reflect.Type]string),
	}
}

// add creates a GraphQL object or input declaration for struct type t and stores it using name as the key.
// Pointers and list types are followed to get to the struct; other types are ignored (not an error).
// An error is returned if the same struct is used as both an object and an input type, or if
// a field of the struct cannot be represented in GraphQL.
func (s schemaTypes) add(name string, t reflect.Type, gqlType string, streams bool) error {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	if previous, ok := s.usedAs[t]; ok {
		if previous != gqlType {
			return fmt.Errorf("can't use %q for different GraphQL types (%s and %s)", name, previous, gqlType)
		}
		return nil // already done
	}
	s.usedAs[t] = gqlType

	fields, err := s.getFields(t, gqlType, streams)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	builder := &strings.Builder{}
	builder.WriteString(gqlType)
	builder.WriteRune(' ')
	builder.WriteString(name)
	builder.WriteString(openString)
	for _, k := range keys {
		builder.WriteString(fields[k])
	}
	builder.WriteString(closeString)

	if existing, ok := s.declaration[name]; ok && existing != builder.String() {
		return fmt.Errorf("same name (%s) used for multiple types", name)
	}
	s.declaration[name] = builder.String()
	return nil
}

// getFields finds all the exported fields (including functions) of a struct and returns their declarations.
// Nested structs (result types and function parameters) are added to the collection by calling s.add().
func (s schemaTypes) getFields(t reflect.Type, gqlType string, streams bool) (map[string]string, error) {
	r := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fieldInfo, err := field.Get(&f)
		if err != nil {
			return nil, fmt.Errorf("%w getting field %q", err, f.Name)
		}
		if fieldInfo == nil {
			continue // unexported or omitted
		}
		if !validGraphQLName(fieldInfo.Name) {
			return nil, fmt.Errorf("%q is not a valid name", fieldInfo.Name)
		}
		if _, ok := r[fieldInfo.Name]; ok {
			return nil, fmt.Errorf("two fields with the same name %q", fieldInfo.Name)
		}
		if fieldInfo.IsStream != streams {
			if streams {
				return nil, fmt.Errorf("subscription field %q must return a channel", fieldInfo.Name)
			}
			return nil, fmt.Errorf("field %q returns a channel but is not a subscription", fieldInfo.Name)
		}
		if gqlType == gqlInputType && len(fieldInfo.Params) > 0 {
			return nil, fmt.Errorf("input field %q cannot have arguments", fieldInfo.Name)
		}

		var params string
		if f.Type.Kind() == reflect.Func {
			if params, err = s.getParams(f.Type, fieldInfo); err != nil {
				return nil, fmt.Errorf("%w getting args for %q", err, fieldInfo.Name)
			}
		}

		anonName := upperFirst(fieldInfo.Name)
		typeName, err := getTypeName(fieldInfo.ValueType, fieldInfo.Nullable, anonName)
		if err != nil {
			return nil, fmt.Errorf("%w getting type for %q", err, fieldInfo.Name)
		}
		if err = s.add(baseName(typeName), fieldInfo.ValueType, gqlType, false); err != nil {
			return nil, err
		}

		decl := "  " + fieldInfo.Name + params + ": " + typeName + "\n"
		if fieldInfo.Description != "" {
			decl = "  " + strconv.Quote(fieldInfo.Description) + "\n" + decl
		}
		r[fieldInfo.Name] = decl
	}
	return r, nil
}

const paramStart, paramSep, paramEnd = "(", ", ", ")"

// getParams creates the list of GraphQL arguments for a resolver function
// If any arg uses a Go struct then it also adds the corresponding GraphQL "input" type to the collection
func (s schemaTypes) getParams(t reflect.Type, fieldInfo *field.Info) (string, error) {
	if len(fieldInfo.Params) == 0 {
		return "", nil
	}
	first := 0
	if fieldInfo.HasContext {
		first = 1 // context.Context parameter is not a formal GraphQL parameter
	}

	builder := &strings.Builder{}
	sep := paramStart
	for paramNum, name := range fieldInfo.Params {
		if !validGraphQLName(name) {
			return "", fmt.Errorf("argument %q is not a valid name", name)
		}
		param := t.In(first + paramNum)
		typeName, err := getTypeName(param, false, upperFirst(name))
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", name, err)
		}
		builder.WriteString(sep)
		if desc := fieldInfo.DescArgs[paramNum]; desc != "" {
			builder.WriteString(strconv.Quote(desc))
			builder.WriteRune(' ')
		}
		builder.WriteString(name)
		builder.WriteString(": ")
		builder.WriteString(typeName)

		if def := fieldInfo.Defaults[paramNum]; def != "" {
			if !validLiteral(param, def) {
				return "", fmt.Errorf("argument %q default value %q is not of the correct type", name, def)
			}
			builder.WriteString(" = ")
			builder.WriteString(def)
		}
		if err := s.add(baseName(typeName), param, gqlInputType, false); err != nil {
			return "", fmt.Errorf("%w adding INPUT type %q", err, typeName)
		}
		sep = paramSep
	}
	builder.WriteString(paramEnd)
	return builder.String(), nil
}

// getTypeName returns the GraphQL type (including list brackets and non-null !) corresponding to a Go type.
// Pointers are nullable and any other type is non-nullable unless nullable is true.  The element type of a
// list follows the same rule (so []*T is [T] but []T is [T!]).  Anonymous structs are named anonName.
func getTypeName(t reflect.Type, nullable bool, anonName string) (string, error) {
	if t.Kind() == reflect.Ptr {
		return getTypeName(t.Elem(), true, anonName)
	}
	var name string
	switch t.Kind() {
	case reflect.Bool:
		name = "Boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		name = "Int"
	case reflect.Float32, reflect.Float64:
		name = "Float"
	case reflect.String:
		name = "String"
	case reflect.Struct:
		name = t.Name()
		if name == "" {
			name = anonName
		}
	case reflect.Slice, reflect.Array:
		elem, err := getTypeName(t.Elem(), false, anonName)
		if err != nil {
			return "", err
		}
		name = "[" + elem + "]"
	default:
		return "", fmt.Errorf("type %v cannot be used in a GraphQL schema", t)
	}
	if !nullable {
		name += "!"
	}
	return name, nil
}

// baseName strips list and non-null modifiers from a GraphQL type, eg "[Product!]!" => "Product"
func baseName(typeName string) string {
	return strings.Trim(typeName, "[]!")
}

// validLiteral checks that a default value given in an "args" option suits the Go parameter type
func validLiteral(t reflect.Type, value string) bool {
	if value == "null" {
		return t.Kind() == reflect.Ptr
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var err error
	switch t.Kind() {
	case reflect.Bool:
		_, err = strconv.ParseBool(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		_, err = strconv.ParseInt(value, 10, 64)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		_, err = strconv.ParseUint(value, 10, 64)
	case reflect.Float32, reflect.Float64:
		_, err = strconv.ParseFloat(value, 64)
	case reflect.String:
		_, err = strconv.Unquote(value)
	case reflect.Slice, reflect.Array:
		return len(value) > 1 && value[0] == '[' && value[len(value)-1] == ']'
	case reflect.Struct:
		return len(value) > 1 && value[0] == '{' && value[len(value)-1] == '}'
	}
	return err == nil
}

// validGraphQLName checks that a name starts with a letter or underscore and contains only letters, digits
// and underscores.  Names starting with 2 underscores are reserved for introspection.
func validGraphQLName(s string) bool {
	if s == "" || strings.HasPrefix(s, "__") {
		return false
	}
	for i, c := range s {
		if c == '_' || c < unicode.MaxASCII && unicode.IsLetter(c) {
			continue
		}
		if i > 0 && c >= '0' && c <= '9' {
			continue
		}
		return false
	}
	return true
}

// upperFirst is used to make a type name for an anonymous struct from a field or argument name
func upperFirst(s string) string {
	first, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + s[n:]
}
