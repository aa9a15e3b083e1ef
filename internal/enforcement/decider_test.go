package enforcement

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/peershare/warden/internal/bus"
	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
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
	return repo
}

func newDecider(t *testing.T) (*Decider, domain.Repository) {
	t.Helper()
	repo := newTestRepo(t)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	decider := NewDecider(repo, eventBus, NewBusExecutors(eventBus), domain.EnforcementConfig{
		DefaultDeadlineHours: 48,
		EscalationPenalty:    100,
	})
	decider.SetClock(func() time.Time {
		return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	})
	return decider, repo
}

func nonCompliantCheck() *domain.ComplianceCheck {
	return &domain.ComplianceCheck{
		ID:                  "check-001",
		BookingID:           "booking-001",
		ProductID:           "product-001",
		RenterID:            "renter-001",
		Status:              domain.StatusNonCompliant,
		MissingRequirements: []string{"insurance", "inspection"},
	}
}

func profileWith(level domain.EnforcementLevel, auto bool) *domain.RiskProfile {
	return &domain.RiskProfile{
		ProductID:        "product-001",
		CategoryID:       "cat-vehicles",
		RiskLevel:        domain.RiskHigh,
		EnforcementLevel: level,
		AutoEnforcement:  auto,
	}
}

func countTypes(actions []domain.EnforcementAction) map[domain.ActionType]int {
	counts := make(map[domain.ActionType]int)
	for _, a := range actions {
		counts[a.Type]++
	}
	return counts
}

func TestDeciderActionMatrix(t *testing.T) {
	ctx := context.Background()

	t.Run("CompliantNoActions", func(t *testing.T) {
		decider, _ := newDecider(t)
		check := nonCompliantCheck()
		check.Status = domain.StatusCompliant
		check.MissingRequirements = nil

		outcome, err := decider.Enforce(ctx, check, profileWith(domain.EnforceVeryStrict, true))
		if err != nil {
			t.Fatalf("Enforce failed: %v", err)
		}
		if len(outcome.Actions) != 0 {
			t.Errorf("expected no actions for compliant booking, got %d", len(outcome.Actions))
		}
		if outcome.ViolationsRecorded != 0 {
			t.Errorf("expected no violations, got %d", outcome.ViolationsRecorded)
		}
	})

	t.Run("LenientNotifiesOnly", func(t *testing.T) {
		decider, _ := newDecider(t)
		outcome, err := decider.Enforce(ctx, nonCompliantCheck(), profileWith(domain.EnforceLenient, false))
		if err != nil {
			t.Fatalf("Enforce failed: %v", err)
		}
		counts := countTypes(outcome.Actions)
		if len(outcome.Actions) != 1 || counts[domain.ActionSendNotification] != 1 {
			t.Errorf("expected a single notification, got %v", counts)
		}
		if outcome.Actions[0].Severity != domain.SeverityLow {
			t.Errorf("expected low severity for lenient, got %s", outcome.Actions[0].Severity)
		}
	})

	t.Run("ModerateAddsRequirements", func(t *testing.T) {
		decider, _ := newDecider(t)
		outcome, err := decider.Enforce(ctx, nonCompliantCheck(), profileWith(domain.EnforceModerate, false))
		if err != nil {
			t.Fatalf("Enforce failed: %v", err)
		}
		counts := countTypes(outcome.Actions)
		if counts[domain.ActionSendNotification] != 1 ||
			counts[domain.ActionRequireInsurance] != 1 ||
			counts[domain.ActionRequireInspection] != 1 {
			t.Errorf("unexpected action set for moderate: %v", counts)
		}
		if counts[domain.ActionBlockBooking] != 0 {
			t.Error("moderate must not block the booking")
		}
	})

	t.Run("StrictBlocks", func(t *testing.T) {
		decider, _ := newDecider(t)
		outcome, err := decider.Enforce(ctx, nonCompliantCheck(), profileWith(domain.EnforceStrict, false))
		if err != nil {
			t.Fatalf("Enforce failed: %v", err)
		}
		counts := countTypes(outcome.Actions)
		if counts[domain.ActionBlockBooking] != 1 {
			t.Errorf("expected block_booking for strict, got %v", counts)
		}
		if counts[domain.ActionEscalate] != 0 {
			t.Error("strict must not escalate")
		}
	})

	t.Run("VeryStrictEscalates", func(t *testing.T) {
		decider, _ := newDecider(t)
		outcome, err := decider.Enforce(ctx, nonCompliantCheck(), profileWith(domain.EnforceVeryStrict, false))
		if err != nil {
			t.Fatalf("Enforce failed: %v", err)
		}
		counts := countTypes(outcome.Actions)
		if counts[domain.ActionEscalate] != 1 {
			t.Errorf("expected escalate for very_strict, got %v", counts)
		}
		for _, a := range outcome.Actions {
			if a.Type == domain.ActionEscalate && a.Severity != domain.SeverityCritical {
				t.Errorf("expected critical severity for escalate, got %s", a.Severity)
			}
		}
	})

	t.Run("NilProfileDefaultsModerate", func(t *testing.T) {
		decider, _ := newDecider(t)
		outcome, err := decider.Enforce(ctx, nonCompliantCheck(), nil)
		if err != nil {
			t.Fatalf("Enforce failed: %v", err)
		}
		counts := countTypes(outcome.Actions)
		if counts[domain.ActionBlockBooking] != 0 || counts[domain.ActionRequireInsurance] != 1 {
			t.Errorf("expected moderate defaults without a profile, got %v", counts)
		}
	})
}

func TestDeciderManualApproval(t *testing.T) {
	decider, repo := newDecider(t)
	ctx := context.Background()

	outcome, err := decider.Enforce(ctx, nonCompliantCheck(), profileWith(domain.EnforceStrict, false))
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	// Without auto-enforcement everything stays pending and no violations
	// reach the ledger.
	for _, a := range outcome.Actions {
		if a.Status != domain.ActionPending {
			t.Errorf("expected pending action, got %s for %s", a.Status, a.Type)
		}
	}
	if outcome.ViolationsRecorded != 0 {
		t.Errorf("expected no violations without auto-enforcement, got %d", outcome.ViolationsRecorded)
	}

	violations, err := repo.ListViolations(ctx, domain.ViolationFilter{BookingID: "booking-001"}, domain.Page{Limit: 50})
	if err != nil {
		t.Fatalf("ListViolations failed: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("expected empty ledger, got %d entries", len(violations))
	}

	// The pending actions are persisted for later approval.
	actions, err := repo.ListEnforcementActions(ctx, "check-001")
	if err != nil {
		t.Fatalf("ListEnforcementActions failed: %v", err)
	}
	if len(actions) != len(outcome.Actions) {
		t.Errorf("expected %d persisted actions, got %d", len(outcome.Actions), len(actions))
	}
}

func TestDeciderAutoEnforcement(t *testing.T) {
	decider, repo := newDecider(t)
	ctx := context.Background()

	outcome, err := decider.Enforce(ctx, nonCompliantCheck(), profileWith(domain.EnforceVeryStrict, true))
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	for _, a := range outcome.Actions {
		if a.Status != domain.ActionExecuted {
			t.Errorf("expected executed action, got %s for %s (%s)", a.Status, a.Type, a.Error)
		}
	}

	// One violation per cause: insurance and inspection. Block and escalate
	// add no expired_compliance record when the cause is already named.
	if outcome.ViolationsRecorded != 2 {
		t.Errorf("expected 2 violations recorded, got %d", outcome.ViolationsRecorded)
	}

	violations, err := repo.ListViolations(ctx, domain.ViolationFilter{BookingID: "booking-001"}, domain.Page{Limit: 50})
	if err != nil {
		t.Fatalf("ListViolations failed: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(violations))
	}

	// Re-running enforcement for the same state records nothing new.
	outcome, err = decider.Enforce(ctx, nonCompliantCheck(), profileWith(domain.EnforceVeryStrict, true))
	if err != nil {
		t.Fatalf("second Enforce failed: %v", err)
	}
	if outcome.ViolationsRecorded != 0 {
		t.Errorf("expected idempotent enforcement, got %d new violations", outcome.ViolationsRecorded)
	}
}

func TestDeciderOneViolationPerCause(t *testing.T) {
	decider, repo := newDecider(t)
	ctx := context.Background()

	// Only insurance is missing: strict enforcement blocks the booking,
	// but the ledger gets exactly one violation for the one cause.
	check := nonCompliantCheck()
	check.MissingRequirements = []string{"insurance"}

	outcome, err := decider.Enforce(ctx, check, profileWith(domain.EnforceStrict, true))
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	counts := countTypes(outcome.Actions)
	if counts[domain.ActionBlockBooking] != 1 {
		t.Errorf("expected the booking to be blocked, got %v", counts)
	}
	if outcome.ViolationsRecorded != 1 {
		t.Errorf("expected exactly 1 violation recorded, got %d", outcome.ViolationsRecorded)
	}

	violations, err := repo.ListViolations(ctx, domain.ViolationFilter{BookingID: "booking-001"}, domain.Page{Limit: 50})
	if err != nil {
		t.Fatalf("ListViolations failed: %v", err)
	}
	if len(violations) != 1 || violations[0].Type != domain.ViolationMissingInsurance {
		t.Fatalf("expected a single missing_insurance entry, got %+v", violations)
	}

	// With no specific requirement named, the block records the catch-all.
	check = nonCompliantCheck()
	check.BookingID = "booking-002"
	check.ID = "check-002"
	check.MissingRequirements = []string{"compliance_deadline"}

	outcome, err = decider.Enforce(ctx, check, profileWith(domain.EnforceStrict, true))
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}
	if outcome.ViolationsRecorded != 1 {
		t.Errorf("expected 1 catch-all violation, got %d", outcome.ViolationsRecorded)
	}
	violations, err = repo.ListViolations(ctx, domain.ViolationFilter{BookingID: "booking-002"}, domain.Page{Limit: 50})
	if err != nil {
		t.Fatalf("ListViolations failed: %v", err)
	}
	if len(violations) != 1 || violations[0].Type != domain.ViolationExpiredCompliance {
		t.Fatalf("expected a single expired_compliance entry, got %+v", violations)
	}
}

func TestDeciderGraceNotification(t *testing.T) {
	decider, _ := newDecider(t)
	ctx := context.Background()

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	profile := profileWith(domain.EnforceStrict, false)
	profile.GracePeriodHours = 24

	check := nonCompliantCheck()
	check.Status = domain.StatusGracePeriod

	t.Run("EarlyInWindowIsLow", func(t *testing.T) {
		ends := now.Add(20 * time.Hour)
		check.GracePeriodEndsAt = &ends

		outcome, err := decider.Enforce(ctx, check, profile)
		if err != nil {
			t.Fatalf("Enforce failed: %v", err)
		}
		if len(outcome.Actions) != 1 || outcome.Actions[0].Type != domain.ActionSendNotification {
			t.Fatalf("expected a single notification, got %+v", outcome.Actions)
		}
		if outcome.Actions[0].Severity != domain.SeverityLow {
			t.Errorf("expected low severity early in the window, got %s", outcome.Actions[0].Severity)
		}
	})

	t.Run("NearDeadlineIsHigh", func(t *testing.T) {
		ends := now.Add(2 * time.Hour)
		check.GracePeriodEndsAt = &ends

		outcome, err := decider.Enforce(ctx, check, profile)
		if err != nil {
			t.Fatalf("Enforce failed: %v", err)
		}
		if outcome.Actions[0].Severity != domain.SeverityHigh {
			t.Errorf("expected high severity near the deadline, got %s", outcome.Actions[0].Severity)
		}
	})
}

func TestViolationFor(t *testing.T) {
	tests := []struct {
		action  domain.ActionType
		missing []string
		want    domain.ViolationType
		ok      bool
	}{
		{domain.ActionRequireInsurance, []string{"insurance"}, domain.ViolationMissingInsurance, true},
		{domain.ActionRequireInsurance, []string{"coverage"}, domain.ViolationInadequateCoverage, true},
		{domain.ActionRequireInspection, []string{"inspection"}, domain.ViolationMissingInspection, true},
		{domain.ActionBlockBooking, nil, domain.ViolationExpiredCompliance, true},
		{domain.ActionEscalate, nil, domain.ViolationExpiredCompliance, true},
		{domain.ActionSendNotification, nil, "", false},
	}

	for _, tt := range tests {
		got, ok := violationFor(tt.action, tt.missing)
		if ok != tt.ok || got != tt.want {
			t.Errorf("violationFor(%s, %v) = (%s, %v), want (%s, %v)", tt.action, tt.missing, got, ok, tt.want, tt.ok)
		}
	}
}
