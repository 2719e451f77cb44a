// Package likecache reproduces a normalized-cache consistency problem between a tiny GraphQL product
// catalog and a client that caches its results.
//
// The server side is a reflection-driven GraphQL engine: the schema is generated from Go structs, so
// the resolvers and the schema can not disagree.  For example, this is a complete GraphQL server:
//
//	package main
//
//	import (
//		"net/http"
//
//		"github.com/andrewwphillips/likecache"
//	)
//
//	func main() {
//		http.Handle("/graphql", likecache.MustRun(struct{ Message string }{Message: "hello, world"}))
//		http.ListenAndServe(":8081", nil)
//	}
//
// which answers the query
//
//	{ message }
//
// with
//
//	{"data":{"message":"hello, world"}}
//
// The Catalog Service, the normalized cache, its GraphQL client and the Client View live in the internal
// packages and are put together by cmd/likecache.
package likecache
