package likecache

// run.go provides the MustRun function for quickly creating a GraphQL http handler

import (
	"fmt"
	"net/http"

	"github.com/andrewwphillips/likecache/internal/handler"
	"github.com/andrewwphillips/likecache/internal/schema"
)

// MustRun creates an http handler that handles GraphQL requests.
// It is a variadic function so can take any number of parameters but to be useful
// you need to supply at least one parameter - a struct used as the root query resolver.
// The resolver parameters should be supplied in this order:
//  struct = used to generate the GraphQL query (may be nil)
//  struct = used to generate the GraphQL mutation (may be nil)
//  struct = used to generate the GraphQL subscription
// Note that for the 3 (query/mutation/subscription) structs you must provide the
// previous value(s) even if nil - eg if you just want to provide a mutation struct then
// the parameter preceding it (ie the query) must be nil.
// Any Option values (eg Logger) may be mixed in with the resolvers and are passed to the handler.
// (The types of the structs, including metadata from field tag strings, are used
// to generate a GraphQL schema, whereas the actual value of these parameters are the
// GraphQL "resolvers" used to obtain query results.)
func MustRun(params ...interface{}) http.Handler {
	var qms [3]interface{}
	var options []Option

	i := 0
	for _, param := range params {
		if option, ok := param.(Option); ok {
			options = append(options, option)
			continue
		}
		if i >= len(qms) {
			panic(fmt.Sprintf("MustRun: too many resolver parameters (%d)", i+1))
		}
		qms[i] = param
		i++
	}
	return handler.New(schema.MustBuild(qms[:]...), qms, handlerOptions(options)...)
}
