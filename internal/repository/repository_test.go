package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/peershare/warden/internal/domain"
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

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetRiskProfile", func(t *testing.T) {
		profile := &domain.RiskProfile{
			ProductID:        "product-001",
			CategoryID:       "cat-vehicles",
			RiskLevel:        domain.RiskHigh,
			EnforcementLevel: domain.EnforceStrict,
			AutoEnforcement:  true,
			GracePeriodHours: 24,
			RiskFactors:      []string{"high_value", "requires_license"},
			Mandatory: domain.MandatoryRequirements{
				InsuranceRequired: true,
				MinCoverage:       5000,
			},
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}

		if err := repo.SaveRiskProfile(ctx, profile); err != nil {
			t.Fatalf("SaveRiskProfile failed: %v", err)
		}

		retrieved, err := repo.GetRiskProfile(ctx, "product-001")
		if err != nil {
			t.Fatalf("GetRiskProfile failed: %v", err)
		}

		if retrieved.ProductID != profile.ProductID {
			t.Errorf("expected ProductID %s, got %s", profile.ProductID, retrieved.ProductID)
		}
		if retrieved.RiskLevel != domain.RiskHigh {
			t.Errorf("expected RiskLevel high, got %s", retrieved.RiskLevel)
		}
		if !retrieved.Mandatory.InsuranceRequired {
			t.Error("expected InsuranceRequired to survive the round trip")
		}
		if len(retrieved.RiskFactors) != 2 {
			t.Errorf("expected 2 risk factors, got %d", len(retrieved.RiskFactors))
		}
	})

	t.Run("DuplicateProfileConflicts", func(t *testing.T) {
		dup := &domain.RiskProfile{
			ProductID:        "product-001",
			CategoryID:       "cat-vehicles",
			RiskLevel:        domain.RiskLow,
			EnforcementLevel: domain.EnforceLenient,
		}

		err := repo.SaveRiskProfile(ctx, dup)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate profile, got: %v", err)
		}
	})

	t.Run("UpdateRiskProfile", func(t *testing.T) {
		updated := &domain.RiskProfile{
			ProductID:        "product-001",
			CategoryID:       "cat-vehicles",
			RiskLevel:        domain.RiskCritical,
			EnforcementLevel: domain.EnforceVeryStrict,
			UpdatedAt:        time.Now().UTC(),
		}

		if err := repo.UpdateRiskProfile(ctx, updated); err != nil {
			t.Fatalf("UpdateRiskProfile failed: %v", err)
		}

		retrieved, err := repo.GetRiskProfile(ctx, "product-001")
		if err != nil {
			t.Fatalf("GetRiskProfile failed: %v", err)
		}
		if retrieved.RiskLevel != domain.RiskCritical {
			t.Errorf("expected RiskLevel critical after update, got %s", retrieved.RiskLevel)
		}

		missing := &domain.RiskProfile{ProductID: "nope", CategoryID: "c", RiskLevel: domain.RiskLow, EnforcementLevel: domain.EnforceLenient}
		if err := repo.UpdateRiskProfile(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound updating unknown profile, got: %v", err)
		}
	})

	t.Run("ListRiskProfiles", func(t *testing.T) {
		second := &domain.RiskProfile{
			ProductID:        "product-002",
			CategoryID:       "cat-tools",
			RiskLevel:        domain.RiskLow,
			EnforcementLevel: domain.EnforceLenient,
		}
		if err := repo.SaveRiskProfile(ctx, second); err != nil {
			t.Fatalf("SaveRiskProfile failed: %v", err)
		}

		all, err := repo.ListRiskProfiles(ctx, domain.RiskProfileFilter{}, domain.Page{Limit: 50})
		if err != nil {
			t.Fatalf("ListRiskProfiles failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 profiles, got %d", len(all))
		}

		filtered, err := repo.ListRiskProfiles(ctx, domain.RiskProfileFilter{CategoryID: "cat-tools"}, domain.Page{Limit: 50})
		if err != nil {
			t.Fatalf("ListRiskProfiles with filter failed: %v", err)
		}
		if len(filtered) != 1 || filtered[0].ProductID != "product-002" {
			t.Errorf("expected only product-002 for cat-tools, got %d profiles", len(filtered))
		}
	})

	t.Run("ComplianceCheckUpsert", func(t *testing.T) {
		check := &domain.ComplianceCheck{
			ID:              "check-001",
			BookingID:       "booking-001",
			ProductID:       "product-001",
			RenterID:        "renter-001",
			Status:          domain.StatusPending,
			ComplianceScore: 50,
			LastCheckedAt:   time.Now().UTC(),
			CreatedAt:       time.Now().UTC(),
		}

		if err := repo.SaveComplianceCheck(ctx, check); err != nil {
			t.Fatalf("SaveComplianceCheck failed: %v", err)
		}

		// Second save for the same booking must update, not duplicate.
		check.Status = domain.StatusNonCompliant
		check.MissingRequirements = []string{"insurance"}
		if err := repo.SaveComplianceCheck(ctx, check); err != nil {
			t.Fatalf("SaveComplianceCheck upsert failed: %v", err)
		}

		retrieved, err := repo.GetComplianceCheck(ctx, "booking-001")
		if err != nil {
			t.Fatalf("GetComplianceCheck failed: %v", err)
		}
		if retrieved.Status != domain.StatusNonCompliant {
			t.Errorf("expected status non_compliant, got %s", retrieved.Status)
		}
		if len(retrieved.MissingRequirements) != 1 {
			t.Errorf("expected 1 missing requirement, got %d", len(retrieved.MissingRequirements))
		}
	})

	t.Run("EnforcementActions", func(t *testing.T) {
		deadline := time.Now().UTC().Add(48 * time.Hour)
		action := &domain.EnforcementAction{
			ID:        "action-001",
			CheckID:   "check-001",
			BookingID: "booking-001",
			Type:      domain.ActionRequireInsurance,
			Severity:  domain.SeverityHigh,
			Message:   "insurance requirements are not met",
			Deadline:  &deadline,
			Status:    domain.ActionPending,
			CreatedAt: time.Now().UTC(),
		}

		if err := repo.SaveEnforcementAction(ctx, action); err != nil {
			t.Fatalf("SaveEnforcementAction failed: %v", err)
		}

		// Re-save with a new status must update in place.
		action.Status = domain.ActionExecuted
		if err := repo.SaveEnforcementAction(ctx, action); err != nil {
			t.Fatalf("SaveEnforcementAction update failed: %v", err)
		}

		actions, err := repo.ListEnforcementActions(ctx, "check-001")
		if err != nil {
			t.Fatalf("ListEnforcementActions failed: %v", err)
		}
		if len(actions) != 1 {
			t.Fatalf("expected 1 action, got %d", len(actions))
		}
		if actions[0].Status != domain.ActionExecuted {
			t.Errorf("expected action executed, got %s", actions[0].Status)
		}
	})

	t.Run("ViolationIdempotency", func(t *testing.T) {
		v := &domain.PolicyViolation{
			ID:         "violation-001",
			BookingID:  "booking-001",
			ProductID:  "product-001",
			RenterID:   "renter-001",
			Type:       domain.ViolationMissingInsurance,
			Severity:   domain.SeverityHigh,
			DetectedAt: time.Now().UTC(),
			Status:     domain.ViolationActive,
		}

		if err := repo.InsertViolation(ctx, v); err != nil {
			t.Fatalf("InsertViolation failed: %v", err)
		}

		dup := *v
		dup.ID = "violation-002"
		if err := repo.InsertViolation(ctx, &dup); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate active violation, got: %v", err)
		}

		// A different type for the same booking is allowed.
		other := *v
		other.ID = "violation-003"
		other.Type = domain.ViolationMissingInspection
		if err := repo.InsertViolation(ctx, &other); err != nil {
			t.Errorf("InsertViolation for different type failed: %v", err)
		}

		// Resolving the active violation frees the slot for a new episode.
		now := time.Now().UTC()
		v.Status = domain.ViolationResolved
		v.ResolvedAt = &now
		v.ResolutionActions = []string{"insurance provided"}
		if err := repo.UpdateViolation(ctx, v); err != nil {
			t.Fatalf("UpdateViolation failed: %v", err)
		}

		fresh := dup
		fresh.ID = "violation-004"
		if err := repo.InsertViolation(ctx, &fresh); err != nil {
			t.Errorf("InsertViolation after resolution failed: %v", err)
		}
	})

	t.Run("ListAndCountViolations", func(t *testing.T) {
		violations, err := repo.ListViolations(ctx, domain.ViolationFilter{BookingID: "booking-001"}, domain.Page{Limit: 50})
		if err != nil {
			t.Fatalf("ListViolations failed: %v", err)
		}
		if len(violations) != 3 {
			t.Errorf("expected 3 violations for booking-001, got %d", len(violations))
		}

		active, err := repo.ListViolations(ctx, domain.ViolationFilter{Status: domain.ViolationActive}, domain.Page{Limit: 50})
		if err != nil {
			t.Fatalf("ListViolations by status failed: %v", err)
		}
		if len(active) != 2 {
			t.Errorf("expected 2 active violations, got %d", len(active))
		}

		// Count includes resolved entries; history never shrinks.
		count, err := repo.CountViolationsByRenter(ctx, "renter-001")
		if err != nil {
			t.Fatalf("CountViolationsByRenter failed: %v", err)
		}
		if count != 3 {
			t.Errorf("expected renter violation count 3, got %d", count)
		}
	})

	t.Run("RegulationUpsert", func(t *testing.T) {
		reg := &domain.Regulation{
			CategoryID:         "cat-vehicles",
			CountryID:          "US",
			IsAllowed:          true,
			MinAgeRequirement:  21,
			RequiresLicense:    true,
			LicenseTypes:       []string{"drivers_license"},
			MandatoryInsurance: true,
			MinCoverageAmount:  5000,
			UpdatedAt:          time.Now().UTC(),
		}

		if err := repo.UpsertRegulation(ctx, reg); err != nil {
			t.Fatalf("UpsertRegulation failed: %v", err)
		}

		reg.MinAgeRequirement = 25
		if err := repo.UpsertRegulation(ctx, reg); err != nil {
			t.Fatalf("UpsertRegulation update failed: %v", err)
		}

		retrieved, err := repo.GetRegulation(ctx, "cat-vehicles", "US")
		if err != nil {
			t.Fatalf("GetRegulation failed: %v", err)
		}
		if retrieved.MinAgeRequirement != 25 {
			t.Errorf("expected MinAgeRequirement 25 after upsert, got %d", retrieved.MinAgeRequirement)
		}
		if len(retrieved.LicenseTypes) != 1 {
			t.Errorf("expected 1 license type, got %d", len(retrieved.LicenseTypes))
		}
	})

	t.Run("SignalRules", func(t *testing.T) {
		rule := &domain.SignalRule{
			ID:         "rule-001",
			Name:       "high value booking",
			Version:    "1.0.0",
			Factor:     domain.FactorBooking,
			Expression: "booking_value > 1000.0",
			Bands: []domain.RuleBand{
				{Outcome: domain.SignalOutcomeFlag, Reason: "booking value unusually high"},
			},
			Enabled: true,
		}

		if err := repo.SaveSignalRule(ctx, rule); err != nil {
			t.Fatalf("SaveSignalRule failed: %v", err)
		}

		rules, err := repo.ListSignalRules(ctx)
		if err != nil {
			t.Fatalf("ListSignalRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}
		if rules[0].Expression != rule.Expression {
			t.Errorf("expected expression to survive round trip, got %q", rules[0].Expression)
		}
		if len(rules[0].Bands) != 1 {
			t.Errorf("expected 1 band, got %d", len(rules[0].Bands))
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := repo.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.TotalRiskProfiles != 2 {
			t.Errorf("expected 2 risk profiles, got %d", stats.TotalRiskProfiles)
		}
		if stats.EnforcementActions.Total != 1 {
			t.Errorf("expected 1 enforcement action, got %d", stats.EnforcementActions.Total)
		}
		if stats.EnforcementActions.Successful != 1 {
			t.Errorf("expected 1 successful action, got %d", stats.EnforcementActions.Successful)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetRiskProfile(ctx, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for profile, got: %v", err)
		}
		if _, err := repo.GetComplianceCheck(ctx, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for check, got: %v", err)
		}
		if _, err := repo.GetViolation(ctx, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for violation, got: %v", err)
		}
		if _, err := repo.GetRegulation(ctx, "cat-none", "ZZ"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for regulation, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
