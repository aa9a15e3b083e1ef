package compliance

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/facts"
	"github.com/peershare/warden/internal/regulation"
	"github.com/peershare/warden/internal/repository"
)

type fixture struct {
	repo    domain.Repository
	facts   *facts.MemoryProvider
	tracker *Tracker
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
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

	provider := facts.NewMemoryProvider()
	evaluator := regulation.NewEvaluator(repo, nil)
	tracker := NewTracker(repo, provider, evaluator, nil)

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	tracker.SetClock(func() time.Time { return now })

	return &fixture{repo: repo, facts: provider, tracker: tracker, clock: &now}
}

func (f *fixture) seedBooking(insured bool, inspected bool) {
	f.facts.PutRenter(&domain.Renter{
		ID:               "renter-001",
		Age:              30,
		Verified:         true,
		AccountCreatedAt: f.clock.Add(-365 * 24 * time.Hour),
		InsuranceCoverage: func() float64 {
			if insured {
				return 10000
			}
			return 0
		}(),
	})
	f.facts.PutBooking(&domain.Booking{
		ID:                  "booking-001",
		ProductID:           "product-001",
		RenterID:            "renter-001",
		CountryID:           "US",
		StartDate:           *f.clock,
		EndDate:             f.clock.Add(5 * 24 * time.Hour),
		TotalValue:          500,
		InspectionCompleted: inspected,
		Status:              "active",
	})
}

func (f *fixture) seedProfile(t *testing.T, graceHours int) {
	t.Helper()
	profile := &domain.RiskProfile{
		ProductID:        "product-001",
		CategoryID:       "cat-vehicles",
		RiskLevel:        domain.RiskHigh,
		EnforcementLevel: domain.EnforceStrict,
		GracePeriodHours: graceHours,
		Mandatory: domain.MandatoryRequirements{
			InsuranceRequired: true,
			MinCoverage:       5000,
		},
	}
	if err := f.repo.SaveRiskProfile(context.Background(), profile); err != nil {
		t.Fatalf("SaveRiskProfile failed: %v", err)
	}
}

func TestTrackerCompliantBooking(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, 24)
	f.seedBooking(true, true)

	check, err := f.tracker.Check(context.Background(), "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if check.Status != domain.StatusCompliant {
		t.Errorf("expected compliant, got %s (missing: %v)", check.Status, check.MissingRequirements)
	}
	if !check.IsCompliant {
		t.Error("expected IsCompliant true")
	}
	if check.ComplianceScore != 100 {
		t.Errorf("expected score 100, got %d", check.ComplianceScore)
	}
}

func TestTrackerGraceLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, 24)
	f.seedBooking(false, true)
	ctx := context.Background()

	check, err := f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if check.Status != domain.StatusGracePeriod {
		t.Fatalf("expected grace_period, got %s", check.Status)
	}
	if check.GracePeriodEndsAt == nil {
		t.Fatal("expected grace deadline to be set")
	}
	wantEnd := f.clock.Add(24 * time.Hour)
	if !check.GracePeriodEndsAt.Equal(wantEnd) {
		t.Errorf("expected grace to end at %v, got %v", wantEnd, check.GracePeriodEndsAt)
	}

	// Re-check inside the window: still in grace, no second grant.
	*f.clock = f.clock.Add(6 * time.Hour)
	check, err = f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", true)
	if err != nil {
		t.Fatalf("re-check failed: %v", err)
	}
	if check.Status != domain.StatusGracePeriod {
		t.Errorf("expected grace_period inside the window, got %s", check.Status)
	}

	// Past the deadline the booking drops to non_compliant, even without force.
	*f.clock = f.clock.Add(30 * time.Hour)
	check, err = f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("expiry check failed: %v", err)
	}
	if check.Status != domain.StatusNonCompliant {
		t.Errorf("expected non_compliant after grace expiry, got %s", check.Status)
	}

	// Still non-compliant: no fresh grace for the same episode.
	check, err = f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", true)
	if err != nil {
		t.Fatalf("post-expiry check failed: %v", err)
	}
	if check.Status != domain.StatusNonCompliant {
		t.Errorf("expected non_compliant to persist, got %s", check.Status)
	}

	// Becoming compliant resets the episode.
	f.seedBooking(true, true)
	check, err = f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", true)
	if err != nil {
		t.Fatalf("compliant re-check failed: %v", err)
	}
	if check.Status != domain.StatusCompliant {
		t.Errorf("expected compliant after fixing insurance, got %s", check.Status)
	}

	// A new non-compliance episode earns a fresh grace period.
	f.seedBooking(false, true)
	check, err = f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", true)
	if err != nil {
		t.Fatalf("new episode check failed: %v", err)
	}
	if check.Status != domain.StatusGracePeriod {
		t.Errorf("expected a fresh grace period for the new episode, got %s", check.Status)
	}
}

func TestTrackerNoGraceConfigured(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, 0)
	f.seedBooking(false, true)

	check, err := f.tracker.Check(context.Background(), "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if check.Status != domain.StatusNonCompliant {
		t.Errorf("expected immediate non_compliant without grace hours, got %s", check.Status)
	}
}

func TestTrackerExemptSticky(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, 24)
	f.seedBooking(false, true)
	ctx := context.Background()

	if _, err := f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", false); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	check, err := f.tracker.Exempt(ctx, "booking-001")
	if err != nil {
		t.Fatalf("Exempt failed: %v", err)
	}
	if check.Status != domain.StatusExempt {
		t.Fatalf("expected exempt, got %s", check.Status)
	}
	if check.GracePeriodEndsAt != nil {
		t.Error("expected grace deadline cleared on exemption")
	}

	// Exemption survives forced re-checks.
	check, err = f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", true)
	if err != nil {
		t.Fatalf("re-check failed: %v", err)
	}
	if check.Status != domain.StatusExempt {
		t.Errorf("expected exempt to be sticky, got %s", check.Status)
	}
}

func TestTrackerProfileExempt(t *testing.T) {
	f := newFixture(t)
	f.seedBooking(false, false)

	profile := &domain.RiskProfile{
		ProductID:        "product-001",
		CategoryID:       "cat-vehicles",
		RiskLevel:        domain.RiskHigh,
		EnforcementLevel: domain.EnforceStrict,
		Exempt:           true,
		Mandatory:        domain.MandatoryRequirements{InsuranceRequired: true},
	}
	if err := f.repo.SaveRiskProfile(context.Background(), profile); err != nil {
		t.Fatalf("SaveRiskProfile failed: %v", err)
	}

	check, err := f.tracker.Check(context.Background(), "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if check.Status != domain.StatusExempt {
		t.Errorf("expected exempt from profile policy, got %s", check.Status)
	}
}

func TestTrackerTerminalBookingFrozen(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, 0)
	f.seedBooking(false, true)
	ctx := context.Background()

	check, err := f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if check.Status != domain.StatusNonCompliant {
		t.Fatalf("expected non_compliant, got %s", check.Status)
	}

	// Booking completes; even a forced re-check with fixed insurance keeps
	// the frozen record.
	f.facts.PutBooking(&domain.Booking{
		ID:        "booking-001",
		ProductID: "product-001",
		RenterID:  "renter-001",
		CountryID: "US",
		StartDate: *f.clock,
		EndDate:   f.clock.Add(5 * 24 * time.Hour),
		Status:    "completed",
	})

	check, err = f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", true)
	if err != nil {
		t.Fatalf("re-check failed: %v", err)
	}
	if check.Status != domain.StatusNonCompliant {
		t.Errorf("expected frozen non_compliant for terminal booking, got %s", check.Status)
	}
}

func TestTrackerRegulationFoldedIn(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, 0)
	f.seedBooking(true, true)

	// Regulation demands a license the renter does not hold.
	reg := &domain.Regulation{
		CategoryID:      "cat-vehicles",
		CountryID:       "US",
		IsAllowed:       true,
		RequiresLicense: true,
	}
	if err := f.repo.UpsertRegulation(context.Background(), reg); err != nil {
		t.Fatalf("UpsertRegulation failed: %v", err)
	}

	check, err := f.tracker.Check(context.Background(), "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if check.Status != domain.StatusNonCompliant {
		t.Errorf("expected non_compliant from regulation failure, got %s", check.Status)
	}
	found := false
	for _, m := range check.MissingRequirements {
		if m == string(domain.CheckLicenseRequirement) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected license_requirement in missing, got %v", check.MissingRequirements)
	}
}

func TestTrackerGetIncludesActions(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, 0)
	f.seedBooking(false, true)
	ctx := context.Background()

	check, err := f.tracker.Check(ctx, "booking-001", "product-001", "renter-001", false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	action := &domain.EnforcementAction{
		ID:        "action-001",
		CheckID:   check.ID,
		BookingID: "booking-001",
		Type:      domain.ActionSendNotification,
		Severity:  domain.SeverityLow,
		Message:   "resolve the missing requirements",
		Status:    domain.ActionPending,
		CreatedAt: *f.clock,
	}
	if err := f.repo.SaveEnforcementAction(ctx, action); err != nil {
		t.Fatalf("SaveEnforcementAction failed: %v", err)
	}

	got, err := f.tracker.Get(ctx, "booking-001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.EnforcementActions) != 1 || got.EnforcementActions[0].ID != "action-001" {
		t.Errorf("expected the stored action on the check, got %+v", got.EnforcementActions)
	}
}

func TestTrackerValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.tracker.Check(context.Background(), "", "product-001", "renter-001", false)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}

	_, err = f.tracker.Get(context.Background(), "unknown-booking")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}
