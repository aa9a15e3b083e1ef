// Package manager is the facade over the enforcement engine: risk profiles,
// assessments, compliance, regulations, violations, enforcement, and stats.
// The API layer and workers talk only to this package.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/peershare/warden/internal/compliance"
	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/enforcement"
	"github.com/peershare/warden/internal/regulation"
	"github.com/peershare/warden/internal/risk"
	"github.com/peershare/warden/internal/rules"
	"github.com/peershare/warden/internal/violation"
)

// Manager coordinates the engine components behind a single surface.
type Manager struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	scorer    *risk.Scorer
	evaluator *regulation.Evaluator
	tracker   *compliance.Tracker
	decider   *enforcement.Decider
	ledger    *violation.Ledger
	signals   *rules.Engine
}

// New wires the manager from its components.
func New(repo domain.Repository, cache domain.Cache, bus domain.EventBus,
	scorer *risk.Scorer, evaluator *regulation.Evaluator, tracker *compliance.Tracker,
	decider *enforcement.Decider, ledger *violation.Ledger, signals *rules.Engine) *Manager {
	return &Manager{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		scorer:    scorer,
		evaluator: evaluator,
		tracker:   tracker,
		decider:   decider,
		ledger:    ledger,
		signals:   signals,
	}
}

// ---- Risk profiles ----

// CreateRiskProfile registers the per-product policy record. Returns
// ErrConflict when the product already has one.
func (m *Manager) CreateRiskProfile(ctx context.Context, p *domain.RiskProfile) (*domain.RiskProfile, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := m.repo.SaveRiskProfile(ctx, p); err != nil {
		return nil, err
	}
	m.invalidateProfile(ctx, p.ProductID)
	return p, nil
}

// UpdateRiskProfile replaces an existing profile.
func (m *Manager) UpdateRiskProfile(ctx context.Context, p *domain.RiskProfile) (*domain.RiskProfile, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	existing, err := m.repo.GetRiskProfile(ctx, p.ProductID)
	if err != nil {
		return nil, err
	}

	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := m.repo.UpdateRiskProfile(ctx, p); err != nil {
		return nil, err
	}
	m.invalidateProfile(ctx, p.ProductID)
	return p, nil
}

// GetRiskProfile returns the profile for a product.
func (m *Manager) GetRiskProfile(ctx context.Context, productID string) (*domain.RiskProfile, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: productId is required", domain.ErrValidation)
	}
	return m.repo.GetRiskProfile(ctx, productID)
}

// ListRiskProfiles returns profiles matching the filter.
func (m *Manager) ListRiskProfiles(ctx context.Context, filter domain.RiskProfileFilter, page domain.Page) ([]*domain.RiskProfile, error) {
	return m.repo.ListRiskProfiles(ctx, filter, page.Normalize())
}

// ProfileItemError reports a failed item in a bulk profile create.
type ProfileItemError struct {
	Index     int    `json:"index"`
	ProductID string `json:"productId,omitempty"`
	Error     string `json:"error"`
}

// BulkProfileResult collects per-item outcomes of a bulk profile create.
type BulkProfileResult struct {
	Successful int                   `json:"successful"`
	Failed     int                   `json:"failed"`
	Profiles   []*domain.RiskProfile `json:"profiles"`
	Errors     []ProfileItemError    `json:"errors,omitempty"`
}

// BulkCreateRiskProfiles creates each profile independently. One item's
// failure never aborts the batch.
func (m *Manager) BulkCreateRiskProfiles(ctx context.Context, profiles []*domain.RiskProfile) *BulkProfileResult {
	out := &BulkProfileResult{}
	for i, p := range profiles {
		created, err := m.CreateRiskProfile(ctx, p)
		if err != nil {
			out.Failed++
			item := ProfileItemError{Index: i, Error: err.Error()}
			if p != nil {
				item.ProductID = p.ProductID
			}
			out.Errors = append(out.Errors, item)
			continue
		}
		out.Successful++
		out.Profiles = append(out.Profiles, created)
	}
	return out
}

// ---- Risk assessment ----

// AssessRisk scores a rental attempt.
func (m *Manager) AssessRisk(ctx context.Context, in risk.AssessInput) (*domain.RiskAssessment, error) {
	return m.scorer.Assess(ctx, in)
}

// BulkAssessRisk scores each item independently with bounded concurrency.
func (m *Manager) BulkAssessRisk(ctx context.Context, items []risk.AssessInput, maxWorkers int) *risk.BatchResult {
	return m.scorer.BulkAssess(ctx, items, maxWorkers)
}

// ---- Compliance ----

// CheckCompliance evaluates (or re-evaluates) compliance for a booking.
func (m *Manager) CheckCompliance(ctx context.Context, bookingID, productID, renterID string, force bool) (*domain.ComplianceCheck, error) {
	return m.tracker.Check(ctx, bookingID, productID, renterID, force)
}

// GetComplianceStatus returns the stored compliance record for a booking.
func (m *Manager) GetComplianceStatus(ctx context.Context, bookingID string) (*domain.ComplianceCheck, error) {
	return m.tracker.Get(ctx, bookingID)
}

// ExemptBooking marks a booking exempt by administrative override.
func (m *Manager) ExemptBooking(ctx context.Context, bookingID string) (*domain.ComplianceCheck, error) {
	return m.tracker.Exempt(ctx, bookingID)
}

// ---- Regulations ----

// CheckRegulation evaluates a candidate rental against the regulation on
// file for the (category, country) pair.
func (m *Manager) CheckRegulation(ctx context.Context, categoryID, countryID string, cand *domain.Candidate) (*domain.RegulationCheckResult, error) {
	return m.evaluator.Check(ctx, categoryID, countryID, cand)
}

// UpsertRegulation stores a regulation record and invalidates its cache
// entry so the next check sees the new rules.
func (m *Manager) UpsertRegulation(ctx context.Context, r *domain.Regulation) (*domain.Regulation, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.UpdatedAt = time.Now().UTC()

	if err := m.repo.UpsertRegulation(ctx, r); err != nil {
		return nil, err
	}
	if m.cache != nil {
		key := domain.CacheKeyRegulation + r.CategoryID + ":" + r.CountryID
		if err := m.cache.Delete(ctx, key); err != nil {
			slog.Warn("failed to invalidate regulation cache", "key", key, "error", err)
		}
	}
	return r, nil
}

// GetRegulation returns the regulation on file for a (category, country) pair.
func (m *Manager) GetRegulation(ctx context.Context, categoryID, countryID string) (*domain.Regulation, error) {
	if categoryID == "" || countryID == "" {
		return nil, fmt.Errorf("%w: categoryId and countryId are required", domain.ErrValidation)
	}
	return m.repo.GetRegulation(ctx, categoryID, countryID)
}

// ---- Violations ----

// RecordViolation appends a violation to the ledger.
func (m *Manager) RecordViolation(ctx context.Context, in violation.RecordInput) (*domain.PolicyViolation, error) {
	return m.ledger.Record(ctx, in)
}

// GetViolation returns a single violation.
func (m *Manager) GetViolation(ctx context.Context, id string) (*domain.PolicyViolation, error) {
	return m.ledger.Get(ctx, id)
}

// ListViolations returns violations matching the filter, most recent first.
func (m *Manager) ListViolations(ctx context.Context, filter domain.ViolationFilter, page domain.Page) ([]*domain.PolicyViolation, error) {
	return m.ledger.List(ctx, filter, page)
}

// ResolveViolation closes an active violation.
func (m *Manager) ResolveViolation(ctx context.Context, id string, actions []string) (*domain.PolicyViolation, error) {
	return m.ledger.Resolve(ctx, id, actions)
}

// ---- Enforcement ----

// TriggerEnforcement re-evaluates compliance for a booking and derives the
// enforcement actions from the result.
func (m *Manager) TriggerEnforcement(ctx context.Context, bookingID string) (*domain.EnforcementOutcome, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("%w: bookingId is required", domain.ErrValidation)
	}

	existing, err := m.repo.GetComplianceCheck(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	check, err := m.tracker.Check(ctx, bookingID, existing.ProductID, existing.RenterID, true)
	if err != nil {
		return nil, err
	}

	profile, err := m.repo.GetRiskProfile(ctx, check.ProductID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return m.decider.Enforce(ctx, check, profile)
}

// ---- Signal rules ----

// SaveSignalRule validates, persists, and loads a signal rule.
func (m *Manager) SaveSignalRule(ctx context.Context, rule *domain.SignalRule) (*domain.SignalRule, error) {
	if rule == nil || rule.ID == "" {
		return nil, fmt.Errorf("%w: rule id is required", domain.ErrValidation)
	}
	if err := m.signals.ValidateRule(rule); err != nil {
		return nil, err
	}
	if err := m.repo.SaveSignalRule(ctx, rule); err != nil {
		return nil, err
	}
	if rule.Enabled {
		if err := m.signals.LoadRule(rule); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

// ListSignalRules returns the persisted signal rules.
func (m *Manager) ListSignalRules(ctx context.Context) ([]*domain.SignalRule, error) {
	return m.repo.ListSignalRules(ctx)
}

// ReloadSignalRules replaces the loaded rule set from the database.
func (m *Manager) ReloadSignalRules(ctx context.Context) (int, error) {
	configs, err := m.repo.ListSignalRules(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.signals.ReloadRules(configs); err != nil {
		return 0, err
	}
	return m.signals.RulesCount(), nil
}

// ---- Stats and health ----

// Stats aggregates engine counters for the dashboard surface.
func (m *Manager) Stats(ctx context.Context) (*domain.RiskStats, error) {
	return m.repo.Stats(ctx)
}

// Health reports per-dependency readiness.
func (m *Manager) Health(ctx context.Context) map[string]string {
	out := make(map[string]string, 3)
	var mu sync.Mutex
	var wg sync.WaitGroup

	probe := func(name string, ping func(context.Context) error) {
		defer wg.Done()
		status := "ok"
		if err := ping(ctx); err != nil {
			status = err.Error()
		}
		mu.Lock()
		out[name] = status
		mu.Unlock()
	}

	wg.Add(1)
	go probe("repository", m.repo.Ping)
	if m.cache != nil {
		wg.Add(1)
		go probe("cache", m.cache.Ping)
	}
	if m.bus != nil {
		wg.Add(1)
		go probe("bus", m.bus.Ping)
	}

	wg.Wait()
	return out
}

func (m *Manager) invalidateProfile(ctx context.Context, productID string) {
	if m.cache == nil {
		return
	}
	key := domain.CacheKeyProfile + productID
	if err := m.cache.Delete(ctx, key); err != nil {
		slog.Warn("failed to invalidate profile cache", "key", key, "error", err)
	}
}
