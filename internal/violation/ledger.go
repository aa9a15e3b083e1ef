// Package violation manages the append-only policy violation ledger.
package violation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/peershare/warden/internal/domain"
)

// Ledger records and resolves policy violations. Entries are never
// hard-deleted; resolution is a status change.
type Ledger struct {
	repo domain.Repository
	bus  domain.EventBus
	now  func() time.Time
}

// NewLedger creates a violation ledger. The bus is optional.
func NewLedger(repo domain.Repository, bus domain.EventBus) *Ledger {
	return &Ledger{
		repo: repo,
		bus:  bus,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the ledger's clock. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// RecordInput describes a violation to record manually.
type RecordInput struct {
	BookingID   string               `json:"bookingId"`
	ProductID   string               `json:"productId"`
	RenterID    string               `json:"renterId"`
	Type        domain.ViolationType `json:"violationType"`
	Severity    domain.Severity      `json:"severity"`
	Description string               `json:"description"`
	Penalty     float64              `json:"penaltyAmount"`
}

// Record appends a violation to the ledger. Returns ErrConflict when an
// active violation of the same type already exists for the booking.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (*domain.PolicyViolation, error) {
	v := &domain.PolicyViolation{
		ID:            uuid.New().String(),
		BookingID:     in.BookingID,
		ProductID:     in.ProductID,
		RenterID:      in.RenterID,
		Type:          in.Type,
		Severity:      in.Severity,
		Description:   in.Description,
		PenaltyAmount: in.Penalty,
		DetectedAt:    l.now(),
		Status:        domain.ViolationActive,
	}
	if v.Severity == "" {
		v.Severity = domain.SeverityMedium
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := l.repo.InsertViolation(ctx, v); err != nil {
		return nil, err
	}

	l.publish(ctx, v)
	return v, nil
}

// Get returns a single violation by id.
func (l *Ledger) Get(ctx context.Context, id string) (*domain.PolicyViolation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: violation id is required", domain.ErrValidation)
	}
	return l.repo.GetViolation(ctx, id)
}

// List returns violations matching the filter, most recent first.
func (l *Ledger) List(ctx context.Context, filter domain.ViolationFilter, page domain.Page) ([]*domain.PolicyViolation, error) {
	return l.repo.ListViolations(ctx, filter, page.Normalize())
}

// Resolve closes an active violation with the actions taken. Resolving an
// already resolved violation is a conflict.
func (l *Ledger) Resolve(ctx context.Context, id string, actions []string) (*domain.PolicyViolation, error) {
	v, err := l.repo.GetViolation(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status == domain.ViolationResolved {
		return nil, fmt.Errorf("%w: violation %s is already resolved", domain.ErrConflict, id)
	}

	now := l.now()
	v.Status = domain.ViolationResolved
	v.ResolvedAt = &now
	v.ResolutionActions = actions

	if err := l.repo.UpdateViolation(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Escalate marks an active violation escalated and applies the penalty.
func (l *Ledger) Escalate(ctx context.Context, id string, penalty float64) (*domain.PolicyViolation, error) {
	v, err := l.repo.GetViolation(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status != domain.ViolationActive {
		return nil, fmt.Errorf("%w: only active violations can be escalated", domain.ErrConflict)
	}
	if penalty < 0 {
		return nil, fmt.Errorf("%w: penalty must be >= 0", domain.ErrValidation)
	}

	v.Status = domain.ViolationEscalated
	if penalty > 0 {
		v.PenaltyAmount = penalty
	}

	if err := l.repo.UpdateViolation(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (l *Ledger) publish(ctx context.Context, v *domain.PolicyViolation) {
	if l.bus == nil {
		return
	}
	payload, _ := json.Marshal(v)
	if err := l.bus.Publish(ctx, domain.TopicViolationRecorded, payload); err != nil {
		slog.Error("failed to publish violation",
			"booking_id", v.BookingID,
			"violation_type", v.Type,
			"error", err,
		)
	}
}
