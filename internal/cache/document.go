package cache

// document.go walks the selections of an operation, as they apply to a given object

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Document is a parsed GraphQL document with the operation that is written and read
type Document struct {
	doc *ast.QueryDocument
	op  *ast.OperationDefinition
}

// Parse parses a query or mutation.  If the document has more than one operation the first is used.
func Parse(query string) (*Document, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: query})
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return NewDocument(doc)
}

// MustParse is like Parse but panics on error
func MustParse(query string) *Document {
	d, err := Parse(query)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDocument wraps an already parsed document
func NewDocument(doc *ast.QueryDocument) (*Document, error) {
	if doc == nil || len(doc.Operations) == 0 {
		return nil, errors.New("document has no operations")
	}
	return &Document{doc: doc, op: doc.Operations[0]}, nil
}

// Operation is the type of the document's operation
func (d *Document) Operation() ast.Operation { return d.op.Operation }

// Name is the operation name (empty if anonymous)
func (d *Document) Name() string { return d.op.Name }

// AST returns the parsed document
func (d *Document) AST() *ast.QueryDocument { return d.doc }

// Root is the key of the root record the operation's fields are stored in
func (d *Document) Root() Key {
	if d.op.Operation == ast.Mutation {
		return RootMutation
	}
	return RootQuery
}

// collect returns the fields of a selection set that apply to an object of type typename, expanding
// fragments and dropping fields excluded by @skip/@include.  An empty typename matches any fragment.
func (d *Document) collect(set ast.SelectionSet, vars map[string]interface{}, typename string) []*ast.Field {
	var fields []*ast.Field
	d.collectInto(set, vars, typename, make(map[string]bool), &fields)
	return fields
}

func (d *Document) collectInto(set ast.SelectionSet, vars map[string]interface{}, typename string,
	visited map[string]bool, fields *[]*ast.Field,
) {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *ast.Field:
			if included(sel.Directives, vars) {
				*fields = append(*fields, sel)
			}

		case *ast.InlineFragment:
			if !included(sel.Directives, vars) || !matches(sel.TypeCondition, typename) {
				continue
			}
			d.collectInto(sel.SelectionSet, vars, typename, visited, fields)

		case *ast.FragmentSpread:
			if visited[sel.Name] || !included(sel.Directives, vars) {
				continue
			}
			visited[sel.Name] = true
			def := d.doc.Fragments.ForName(sel.Name)
			if def == nil || !matches(def.TypeCondition, typename) {
				continue
			}
			d.collectInto(def.SelectionSet, vars, typename, visited, fields)
		}
	}
}

func matches(condition, typename string) bool {
	return condition == "" || typename == "" || condition == typename
}

// included evaluates the @skip and @include directives
func included(directives ast.DirectiveList, vars map[string]interface{}) bool {
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil {
			continue
		}
		value, err := arg.Value.Value(vars)
		if err != nil {
			continue
		}
		if b, ok := value.(bool); ok && b == (d.Name == "skip") {
			return false
		}
	}
	return true
}

// responseKey is the name of the field in the result
func responseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// storeName is the name a field is stored under: its name followed by its arguments as JSON
// (with the keys sorted), eg toggleProductIsLiked({"id":1,"isLiked":false})
func storeName(f *ast.Field, vars map[string]interface{}) (string, error) {
	if len(f.Arguments) == 0 {
		return f.Name, nil
	}
	args := make(map[string]interface{}, len(f.Arguments))
	for _, arg := range f.Arguments {
		value, err := arg.Value.Value(vars)
		if err != nil {
			return "", fmt.Errorf("argument %q of %q: %w", arg.Name, f.Name, err)
		}
		args[arg.Name] = value
	}
	buf, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("arguments of %q: %w", f.Name, err)
	}
	return f.Name + "(" + string(buf) + ")", nil
}
