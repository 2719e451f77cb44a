// Command likecache runs the Catalog Service or the Client View of the like-toggle cache reproduction
package main

import (
	"os"

	"github.com/andrewwphillips/likecache/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "likecache",
	Short:        "likecache - normalized cache consistency reproduction",
	Long:         "Serve a tiny GraphQL product catalog, or run a caching client view against it.",
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	config.LogFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
