package client

// typename.go adds __typename to every object selection so that results can be normalized

import (
	"bytes"
	"fmt"

	"github.com/andrewwphillips/likecache/internal/cache"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// document is an operation ready to send (text) and to read/write the cache
type document struct {
	*cache.Document
	text string
}

// document parses and transforms an operation, remembering the result for next time
func (c *Client) document(source string) (document, error) {
	c.docMu.Lock()
	defer c.docMu.Unlock()
	if d, ok := c.docs[source]; ok {
		return d, nil
	}

	parsed, parseErr := parser.ParseQuery(&ast.Source{Name: "operation", Input: source})
	if parseErr != nil {
		return document{}, fmt.Errorf("parsing operation: %w", parseErr)
	}
	AddTypename(parsed)
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(parsed)

	doc, err := cache.NewDocument(parsed)
	if err != nil {
		return document{}, err
	}
	d := document{Document: doc, text: buf.String()}
	c.docs[source] = d
	return d, nil
}

// AddTypename adds a __typename field to every selection set of an object (but not to the
// operations' root selections) unless it is already selected
func AddTypename(doc *ast.QueryDocument) {
	for _, op := range doc.Operations {
		addTypename(op.SelectionSet)
	}
	for _, fragment := range doc.Fragments {
		fragment.SelectionSet = withTypename(fragment.SelectionSet)
	}
}

// addTypename adds __typename to the selections of the fields of set
func addTypename(set ast.SelectionSet) {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *ast.Field:
			if len(sel.SelectionSet) > 0 {
				sel.SelectionSet = withTypename(sel.SelectionSet)
			}
		case *ast.InlineFragment:
			addTypename(sel.SelectionSet)
		}
	}
}

func withTypename(set ast.SelectionSet) ast.SelectionSet {
	addTypename(set)
	for _, selection := range set {
		if f, ok := selection.(*ast.Field); ok && f.Name == "__typename" && (f.Alias == "" || f.Alias == f.Name) {
			return set
		}
	}
	return append(set, &ast.Field{Name: "__typename", Alias: "__typename"})
}
