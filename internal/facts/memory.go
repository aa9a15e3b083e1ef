package facts

import (
	"context"
	"fmt"
	"sync"

	"github.com/peershare/warden/internal/domain"
)

// MemoryProvider is an in-memory facts store for development and tests.
type MemoryProvider struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	renters  map[string]*domain.Renter
	bookings map[string]*domain.Booking
	norms    map[string]*domain.CategoryNorms
}

// NewMemoryProvider creates an empty in-memory facts provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		products: make(map[string]*domain.Product),
		renters:  make(map[string]*domain.Renter),
		bookings: make(map[string]*domain.Booking),
		norms:    make(map[string]*domain.CategoryNorms),
	}
}

// PutProduct stores a product snapshot.
func (m *MemoryProvider) PutProduct(p *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// PutRenter stores a renter snapshot.
func (m *MemoryProvider) PutRenter(r *domain.Renter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renters[r.ID] = r
}

// PutBooking stores a booking snapshot.
func (m *MemoryProvider) PutBooking(b *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
}

// PutCategoryNorms stores category baselines.
func (m *MemoryProvider) PutCategoryNorms(n *domain.CategoryNorms) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.norms[n.CategoryID] = n
}

func (m *MemoryProvider) Product(_ context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
}

func (m *MemoryProvider) Renter(_ context.Context, id string) (*domain.Renter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.renters[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: renter %s", domain.ErrNotFound, id)
}

func (m *MemoryProvider) Booking(_ context.Context, id string) (*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.bookings[id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
}

func (m *MemoryProvider) CategoryNorms(_ context.Context, categoryID string) (*domain.CategoryNorms, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.norms[categoryID]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: category norms %s", domain.ErrNotFound, categoryID)
}

// NewProvider builds the configured facts provider.
func NewProvider(cfg domain.FactsConfig) (domain.FactsProvider, error) {
	switch cfg.Type {
	case "http":
		return NewHTTPProvider(cfg)
	case "memory", "":
		return NewMemoryProvider(), nil
	}
	return nil, fmt.Errorf("%w: unknown facts provider type %q", domain.ErrValidation, cfg.Type)
}
