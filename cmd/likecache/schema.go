package main

import (
	"fmt"

	"github.com/andrewwphillips/likecache"
	"github.com/andrewwphillips/likecache/internal/catalog"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the GraphQL schema of the Catalog Service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		g := likecache.Catalog(catalog.New(catalog.NewCounter()))
		s, err := g.GetSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), s)
		return err
	},
}
