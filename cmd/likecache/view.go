package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/andrewwphillips/likecache/internal/cache"
	"github.com/andrewwphillips/likecache/internal/client"
	"github.com/andrewwphillips/likecache/internal/config"
	"github.com/andrewwphillips/likecache/internal/logging"
	"github.com/andrewwphillips/likecache/internal/view"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Run the Client View against a Catalog Service",
	Long: `Fetch the product list into a normalized cache and show it.  Commands are read from stdin:
  t <id>  toggle isLiked of a product
  r       render the list again
  q       quit`,
	Args: cobra.NoArgs,
	RunE: runView,
}

func init() {
	config.ViewFlags(viewCmd.Flags())
}

func runView(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c := client.New(cfg.Endpoint, cache.New(cache.Logger(logger)), client.Logger(logger))
	v := view.New(c, viewConfig(cfg), view.Logger(logger))
	return interact(ctx, v, cmd.InOrStdin(), cmd.OutOrStdout())
}

func viewConfig(cfg config.Config) view.Config {
	r := view.Config{FetchPolicy: cache.CacheFirst, Optimistic: cfg.Optimistic}
	if cfg.NetworkOnly {
		r.FetchPolicy = cache.NetworkOnly
	}
	return r
}

// interact mounts the view then runs commands from in until "q", end of input or ctx is done
func interact(ctx context.Context, v *view.View, in io.Reader, out io.Writer) error {
	if err := v.Mount(ctx); err != nil {
		fmt.Fprintln(out, err)
	}
	defer v.Unmount()
	if err := v.Render(out); err != nil {
		return err
	}

	// Read in the background so that a signal can interrupt a blocked read
	lines, done := make(chan string), make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "q":
			return nil
		case "r":
		case "t":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: t <id>")
				continue
			}
			id, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintf(out, "bad product id %q\n", fields[1])
				continue
			}
			if err := v.Toggle(ctx, id); err != nil {
				fmt.Fprintln(out, err)
			}
		default:
			fmt.Fprintf(out, "unknown command %q (t <id>, r or q)\n", fields[0])
			continue
		}
		if err := v.Render(out); err != nil {
			return err
		}
	}
}
