// Package view is the Client View: it lists the products held in the cache and toggles their liked flag
package view

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/andrewwphillips/likecache/internal/cache"
	"github.com/andrewwphillips/likecache/internal/client"
	"go.uber.org/zap"
)

const (
	ProductsQuery = `query Products {
  products {
    id
    isLiked
  }
}`
	ToggleMutation = `mutation ToggleProductIsLiked($id: Int, $isLiked: Boolean) {
  toggleProductIsLiked(id: $id, isLiked: $isLiked) {
    id
    isLiked
  }
}`
)

type (
	// Config holds the two cache choices that decide whether a toggle reaches the list
	Config struct {
		FetchPolicy cache.FetchPolicy // used for the products query on mount
		Optimistic  bool              // supply a predicted result with each toggle
	}

	// Row is a displayed product
	Row struct {
		ID      int
		IsLiked bool
	}

	View struct {
		client *client.Client
		config Config
		logger *zap.Logger

		mu      sync.Mutex
		rows    []Row
		pending int // toggles in flight
		cancel  func()
	}
)

// DefaultConfig is a network-only list with optimistic toggles
func DefaultConfig() Config {
	return Config{FetchPolicy: cache.NetworkOnly, Optimistic: true}
}

func New(c *client.Client, config Config, options ...func(*View)) *View {
	v := &View{client: c, config: config, logger: zap.NewNop()}
	for _, option := range options {
		option(v)
	}
	return v
}

func Logger(logger *zap.Logger) func(*View) {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Mount watches the products query then issues it with the configured fetch policy.  The rows are
// taken from the watch so they follow later cache writes.  If the query fails the list stays empty.
func (v *View) Mount(ctx context.Context) error {
	cancel, err := v.client.Watch(ProductsQuery, nil, v.update)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.cancel = cancel
	v.mu.Unlock()

	if _, err := v.client.Query(ctx, client.QueryOptions{Query: ProductsQuery, FetchPolicy: v.config.FetchPolicy}); err != nil {
		v.logger.Warn("products query failed", zap.Error(err))
		return fmt.Errorf("loading products: %w", err)
	}
	return nil
}

// Unmount stops following the cache
func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

// Toggle sends the toggle mutation for a displayed product, with its current liked flag, and
// returns when the mutation has completed.  While it is in flight Pending is true and, if the
// view is optimistic, the predicted value is displayed.
func (v *View) Toggle(ctx context.Context, id int) error {
	row, ok := v.row(id)
	if !ok {
		return fmt.Errorf("product %d is not displayed", id)
	}
	opts := client.MutateOptions{
		Mutation:  ToggleMutation,
		Variables: map[string]interface{}{"id": row.ID, "isLiked": row.IsLiked},
	}
	if v.config.Optimistic {
		opts.OptimisticResponse = map[string]interface{}{
			"toggleProductIsLiked": map[string]interface{}{
				"__typename": "Product",
				"id":         row.ID,
				"isLiked":    !row.IsLiked,
			},
		}
	}

	v.setPending(1)
	defer v.setPending(-1)
	if _, err := v.client.Mutate(ctx, opts); err != nil {
		v.logger.Warn("toggle failed", zap.Int("id", id), zap.Error(err))
		return fmt.Errorf("toggling product %d: %w", id, err)
	}
	return nil
}

// Rows returns the displayed products
func (v *View) Rows() []Row {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Row(nil), v.rows...)
}

// Pending reports whether a toggle is in flight
func (v *View) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending > 0
}

// Render writes the list in the form: a heading then each product's id and liked flag
func (v *View) Render(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "products in cache"); err != nil {
		return err
	}
	for _, row := range v.Rows() {
		if _, err := fmt.Fprintf(w, "%d, %t\n  toggle `isLiked` (t %d)\n", row.ID, row.IsLiked, row.ID); err != nil {
			return err
		}
	}
	return nil
}

func (v *View) row(id int) (Row, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, row := range v.rows {
		if row.ID == id {
			return row, true
		}
	}
	return Row{}, false
}

func (v *View) setPending(delta int) {
	v.mu.Lock()
	v.pending += delta
	v.mu.Unlock()
}

// update is called by the cache watch with the result of the products query
func (v *View) update(data map[string]interface{}) {
	list, _ := data["products"].([]interface{})
	rows := make([]Row, 0, len(list))
	for _, elt := range list {
		p, ok := elt.(map[string]interface{})
		if !ok {
			continue // null product
		}
		id, ok := toInt(p["id"])
		if !ok {
			continue
		}
		liked, _ := p["isLiked"].(bool)
		rows = append(rows, Row{ID: id, IsLiked: liked})
	}

	v.mu.Lock()
	v.rows = rows
	v.mu.Unlock()
	v.logger.Debug("products updated", zap.Int("rows", len(rows)))
}

func toInt(value interface{}) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
