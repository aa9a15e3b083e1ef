// Package history derives renter history signals for risk scoring.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/peershare/warden/internal/domain"
)

// Service computes renter history signals from the violation ledger and
// the booking-velocity counters.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Signals is the renter history snapshot consumed by the risk scorer.
type Signals struct {
	PriorViolations int
	BookingVelocity int
	HasHistory      bool
}

// Get returns history signals for a renter. The velocity counter is
// incremented as a side effect so repeated assessments within the window
// register as velocity.
func (s *Service) Get(ctx context.Context, renterID string, window time.Duration) (*Signals, error) {
	if renterID == "" {
		return nil, fmt.Errorf("%w: renterID is required", domain.ErrValidation)
	}

	sig := &Signals{}

	if s.repo != nil {
		count, err := s.repo.CountViolationsByRenter(ctx, renterID)
		if err != nil {
			return nil, fmt.Errorf("failed to count violations: %w", err)
		}
		sig.PriorViolations = count
		sig.HasHistory = count > 0
	}

	if s.cache != nil && window > 0 {
		n, err := s.cache.IncrementCounter(ctx, "velocity:"+renterID, window)
		if err == nil {
			sig.BookingVelocity = int(n)
			if n > 1 {
				sig.HasHistory = true
			}
		}
	}

	return sig, nil
}
