package catalog

// resolvers.go has the root query, mutation and subscription structs used to build the schema and
// resolve requests

import "context"

type (
	Query struct {
		Products func(context.Context) []*Product `egg:",nullable"`
	}
	Mutation struct {
		ToggleProductIsLiked func(context.Context, *int, *bool) *Product `egg:",args(id,isLiked)"`
	}
	Subscription struct {
		ProductToggled func(context.Context) <-chan Product
	}
)

// Roots returns the resolver structs of the service in the order query, mutation, subscription
func (s *Service) Roots() [3]interface{} {
	return [3]interface{}{
		Query{Products: s.products},
		Mutation{ToggleProductIsLiked: s.toggle},
		Subscription{ProductToggled: s.Toggled},
	}
}

func (s *Service) products(ctx context.Context) []*Product {
	list := s.ListProducts(ctx)
	r := make([]*Product, len(list))
	for i := range list {
		r[i] = &list[i]
	}
	return r
}

// toggle treats a missing id as 0 and a missing isLiked as false
func (s *Service) toggle(ctx context.Context, id *int, isLiked *bool) *Product {
	var i int
	var liked bool
	if id != nil {
		i = *id
	}
	if isLiked != nil {
		liked = *isLiked
	}
	p := s.ToggleProductIsLiked(ctx, i, liked)
	return &p
}
