package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// subscriberBuffer is how many toggles a slow subscriber may fall behind before events are dropped
const subscriberBuffer = 8

// Service answers the catalog operations
type Service struct {
	seq    Sequence
	logger *zap.Logger
	onList func(Product)

	mu          sync.Mutex
	subscribers map[chan Product]struct{}
}

// New creates the service given the sequence used for product ids
func New(seq Sequence, options ...func(*Service)) *Service {
	s := &Service{
		seq:         seq,
		logger:      zap.NewNop(),
		subscribers: make(map[chan Product]struct{}),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Logger sets the service logger
func Logger(logger *zap.Logger) func(*Service) {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OnList registers a function called with every product that is listed (eg to count them)
func OnList(f func(Product)) func(*Service) {
	return func(s *Service) {
		s.onList = f
	}
}

// ListProducts returns a single product with the next id of the sequence.  It is never liked.
func (s *Service) ListProducts(ctx context.Context) []Product {
	p := Product{ID: s.seq.Next()}
	s.logger.Debug("products listed", zap.Int("id", p.ID))
	if s.onList != nil {
		s.onList(p)
	}
	return []Product{p}
}

// ToggleProductIsLiked returns a product with the given id and the negation of isLiked.
// Nothing is looked up or stored; the result depends only on the arguments.
func (s *Service) ToggleProductIsLiked(ctx context.Context, id int, isLiked bool) Product {
	p := Product{ID: id, IsLiked: !isLiked}
	s.logger.Debug("product toggled", zap.Int("id", id), zap.Bool("isLiked", p.IsLiked))
	s.publish(p)
	return p
}

// Toggled returns a stream of every toggle result until ctx is done, when the channel is closed
func (s *Service) Toggled(ctx context.Context) <-chan Product {
	ch := make(chan Product, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subscribers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// publish sends p to all subscribers without blocking the caller
func (s *Service) publish(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- p:
		default:
			s.logger.Warn("toggle dropped for slow subscriber", zap.Int("id", p.ID))
		}
	}
}
