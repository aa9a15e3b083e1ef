// Package integration exercises the full enforcement pipeline end to end:
// profile, assessment, compliance, grace expiry, enforcement, violations.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/peershare/warden/internal/bus"
	"github.com/peershare/warden/internal/cache"
	"github.com/peershare/warden/internal/compliance"
	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/enforcement"
	"github.com/peershare/warden/internal/facts"
	"github.com/peershare/warden/internal/history"
	"github.com/peershare/warden/internal/manager"
	"github.com/peershare/warden/internal/regulation"
	"github.com/peershare/warden/internal/repository"
	"github.com/peershare/warden/internal/risk"
	"github.com/peershare/warden/internal/rules"
	"github.com/peershare/warden/internal/violation"
)

type engine struct {
	manager *manager.Manager
	facts   *facts.MemoryProvider
	repo    domain.Repository
	now     *time.Time
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "warden-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(1000)
	t.Cleanup(func() { lru.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	provider := facts.NewMemoryProvider()
	signals, err := rules.NewEngine(5)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(func() { signals.Close() })

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	hist := history.NewService(repo, nil)
	scorer, err := risk.NewScorer(domain.DefaultScoringConfig(), provider, repo, nil, hist, signals)
	if err != nil {
		t.Fatalf("NewScorer failed: %v", err)
	}
	scorer.SetClock(clock)

	evaluator := regulation.NewEvaluator(repo, lru)
	tracker := compliance.NewTracker(repo, provider, evaluator, eventBus)
	tracker.SetClock(clock)

	decider := enforcement.NewDecider(repo, eventBus, enforcement.NewBusExecutors(eventBus), domain.EnforcementConfig{
		DefaultDeadlineHours: 48,
		EscalationPenalty:    100,
	})
	decider.SetClock(clock)

	ledger := violation.NewLedger(repo, eventBus)
	ledger.SetClock(clock)

	mgr := manager.New(repo, lru, eventBus, scorer, evaluator, tracker, decider, ledger, signals)
	return &engine{manager: mgr, facts: provider, repo: repo, now: &now}
}

func (e *engine) advance(d time.Duration) {
	*e.now = e.now.Add(d)
}

func (e *engine) seedBooking(insured bool) {
	e.facts.PutProduct(&domain.Product{ID: "product-001", CategoryID: "cat-vehicles", DailyRate: 120})
	e.facts.PutRenter(&domain.Renter{
		ID:               "renter-001",
		Age:              28,
		Verified:         true,
		AccountCreatedAt: e.now.Add(-2 * 365 * 24 * time.Hour),
		InsuranceCoverage: func() float64 {
			if insured {
				return 10000
			}
			return 0
		}(),
	})
	e.facts.PutBooking(&domain.Booking{
		ID:                  "booking-001",
		ProductID:           "product-001",
		RenterID:            "renter-001",
		CountryID:           "US",
		StartDate:           *e.now,
		EndDate:             e.now.Add(5 * 24 * time.Hour),
		TotalValue:          600,
		InspectionCompleted: true,
		Status:              "active",
	})
}

// TestEnforcementLifecycle walks a booking from risk assessment through
// grace expiry, enforcement, and back to compliance.
func TestEnforcementLifecycle(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	profile := &domain.RiskProfile{
		ProductID:        "product-001",
		CategoryID:       "cat-vehicles",
		RiskLevel:        domain.RiskHigh,
		EnforcementLevel: domain.EnforceStrict,
		AutoEnforcement:  true,
		GracePeriodHours: 24,
		Mandatory: domain.MandatoryRequirements{
			InsuranceRequired: true,
			MinCoverage:       5000,
		},
	}
	if _, err := e.manager.CreateRiskProfile(ctx, profile); err != nil {
		t.Fatalf("CreateRiskProfile failed: %v", err)
	}

	e.seedBooking(false)

	// Assessment reflects the declared risk band and mirrors the profile's
	// mandatory requirements.
	assessment, err := e.manager.AssessRisk(ctx, risk.AssessInput{
		ProductID: "product-001",
		RenterID:  "renter-001",
		BookingID: "booking-001",
	})
	if err != nil {
		t.Fatalf("AssessRisk failed: %v", err)
	}
	if !assessment.Mandatory.InsuranceRequired {
		t.Error("expected assessment to carry the insurance requirement")
	}
	if assessment.ComplianceStatus != domain.StatusPending {
		t.Errorf("expected pending compliance, got %s", assessment.ComplianceStatus)
	}

	// First compliance check: uninsured booking enters the grace period.
	check, err := e.manager.CheckCompliance(ctx, "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("CheckCompliance failed: %v", err)
	}
	if check.Status != domain.StatusGracePeriod {
		t.Fatalf("expected grace_period, got %s (missing: %v)", check.Status, check.MissingRequirements)
	}

	// Enforcement during grace is a reminder, nothing more.
	outcome, err := e.manager.TriggerEnforcement(ctx, "booking-001")
	if err != nil {
		t.Fatalf("TriggerEnforcement failed: %v", err)
	}
	if len(outcome.Actions) != 1 || outcome.Actions[0].Type != domain.ActionSendNotification {
		t.Fatalf("expected a single notification during grace, got %+v", outcome.Actions)
	}
	if outcome.ViolationsRecorded != 0 {
		t.Errorf("expected no violations during grace, got %d", outcome.ViolationsRecorded)
	}

	// The grace period lapses without remediation.
	e.advance(30 * time.Hour)
	check, err = e.manager.CheckCompliance(ctx, "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("post-expiry check failed: %v", err)
	}
	if check.Status != domain.StatusNonCompliant {
		t.Fatalf("expected non_compliant after grace expiry, got %s", check.Status)
	}

	// Strict enforcement now blocks the booking and records violations.
	outcome, err = e.manager.TriggerEnforcement(ctx, "booking-001")
	if err != nil {
		t.Fatalf("TriggerEnforcement failed: %v", err)
	}
	blocked := false
	for _, a := range outcome.Actions {
		if a.Status != domain.ActionExecuted {
			t.Errorf("expected executed action, got %s for %s", a.Status, a.Type)
		}
		if a.Type == domain.ActionBlockBooking {
			blocked = true
		}
	}
	if !blocked {
		t.Error("expected the booking to be blocked")
	}
	if outcome.ViolationsRecorded == 0 {
		t.Error("expected violations recorded under auto-enforcement")
	}

	// Enforcing again in the same state records nothing new.
	outcome, err = e.manager.TriggerEnforcement(ctx, "booking-001")
	if err != nil {
		t.Fatalf("repeat TriggerEnforcement failed: %v", err)
	}
	if outcome.ViolationsRecorded != 0 {
		t.Errorf("expected repeat enforcement to record 0 violations, got %d", outcome.ViolationsRecorded)
	}

	violations, err := e.manager.ListViolations(ctx, domain.ViolationFilter{
		BookingID: "booking-001",
		Status:    domain.ViolationActive,
	}, domain.Page{Limit: 50})
	if err != nil {
		t.Fatalf("ListViolations failed: %v", err)
	}
	if len(violations) == 0 {
		t.Fatal("expected active violations in the ledger")
	}

	// The renter buys adequate coverage; a forced re-check clears the episode.
	e.seedBooking(true)
	check, err = e.manager.CheckCompliance(ctx, "booking-001", "product-001", "renter-001", true)
	if err != nil {
		t.Fatalf("remediated check failed: %v", err)
	}
	if check.Status != domain.StatusCompliant {
		t.Errorf("expected compliant after remediation, got %s", check.Status)
	}

	// Close out the ledger.
	for _, v := range violations {
		if _, err := e.manager.ResolveViolation(ctx, v.ID, []string{"coverage verified"}); err != nil {
			t.Errorf("ResolveViolation(%s) failed: %v", v.ID, err)
		}
	}
	remaining, err := e.manager.ListViolations(ctx, domain.ViolationFilter{
		BookingID: "booking-001",
		Status:    domain.ViolationActive,
	}, domain.Page{Limit: 50})
	if err != nil {
		t.Fatalf("ListViolations failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no active violations after resolution, got %d", len(remaining))
	}

	// Compliant enforcement is a no-op.
	outcome, err = e.manager.TriggerEnforcement(ctx, "booking-001")
	if err != nil {
		t.Fatalf("TriggerEnforcement failed: %v", err)
	}
	if len(outcome.Actions) != 0 {
		t.Errorf("expected no actions for a compliant booking, got %d", len(outcome.Actions))
	}
}

// TestRegulationGatesCompliance shows a country regulation folding into the
// compliance verdict alongside the profile's own requirements.
func TestRegulationGatesCompliance(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	profile := &domain.RiskProfile{
		ProductID:        "product-001",
		CategoryID:       "cat-vehicles",
		RiskLevel:        domain.RiskMedium,
		EnforcementLevel: domain.EnforceModerate,
	}
	if _, err := e.manager.CreateRiskProfile(ctx, profile); err != nil {
		t.Fatalf("CreateRiskProfile failed: %v", err)
	}

	reg := &domain.Regulation{
		CategoryID:    "cat-vehicles",
		CountryID:     "US",
		IsAllowed:     true,
		MaxRentalDays: 3,
	}
	if _, err := e.manager.UpsertRegulation(ctx, reg); err != nil {
		t.Fatalf("UpsertRegulation failed: %v", err)
	}

	e.seedBooking(true) // 5 day booking exceeds the 3 day cap

	check, err := e.manager.CheckCompliance(ctx, "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("CheckCompliance failed: %v", err)
	}
	if check.Status == domain.StatusCompliant {
		t.Errorf("expected the duration cap to fail compliance, got %s", check.Status)
	}

	// Loosening the regulation and forcing a re-check clears it.
	reg.MaxRentalDays = 30
	if _, err := e.manager.UpsertRegulation(ctx, reg); err != nil {
		t.Fatalf("UpsertRegulation failed: %v", err)
	}
	check, err = e.manager.CheckCompliance(ctx, "booking-001", "product-001", "renter-001", true)
	if err != nil {
		t.Fatalf("forced re-check failed: %v", err)
	}
	if check.Status != domain.StatusCompliant {
		t.Errorf("expected compliant after loosening the cap, got %s (missing: %v)", check.Status, check.MissingRequirements)
	}
}

// TestStatsReflectPipeline verifies the aggregate counters after a run.
func TestStatsReflectPipeline(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	for _, productID := range []string{"product-001", "product-002"} {
		p := &domain.RiskProfile{
			ProductID:        productID,
			CategoryID:       "cat-vehicles",
			RiskLevel:        domain.RiskHigh,
			EnforcementLevel: domain.EnforceStrict,
			AutoEnforcement:  true,
			Mandatory: domain.MandatoryRequirements{
				InsuranceRequired: true,
				MinCoverage:       5000,
			},
		}
		if _, err := e.manager.CreateRiskProfile(ctx, p); err != nil {
			t.Fatalf("CreateRiskProfile failed: %v", err)
		}
	}

	e.seedBooking(false)
	if _, err := e.manager.CheckCompliance(ctx, "booking-001", "product-001", "renter-001", false); err != nil {
		t.Fatalf("CheckCompliance failed: %v", err)
	}
	if _, err := e.manager.TriggerEnforcement(ctx, "booking-001"); err != nil {
		t.Fatalf("TriggerEnforcement failed: %v", err)
	}

	stats, err := e.manager.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRiskProfiles != 2 {
		t.Errorf("expected 2 profiles, got %d", stats.TotalRiskProfiles)
	}
	if stats.EnforcementActions.Total == 0 {
		t.Error("expected enforcement actions in stats")
	}
	if stats.RiskDistribution[domain.RiskHigh] != 2 {
		t.Errorf("expected 2 high-risk profiles, got %d", stats.RiskDistribution[domain.RiskHigh])
	}
}
