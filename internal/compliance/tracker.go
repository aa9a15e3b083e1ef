// Package compliance tracks the per-booking compliance state machine:
// pending -> {compliant, non_compliant, grace_period, exempt};
// grace_period -> {compliant, non_compliant}.
package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/regulation"
	"github.com/peershare/warden/internal/risk"
)

// Tracker persists and re-evaluates booking compliance.
type Tracker struct {
	repo      domain.Repository
	facts     domain.FactsProvider
	evaluator *regulation.Evaluator
	bus       domain.EventBus
	now       func() time.Time
}

// NewTracker creates a compliance tracker. The bus is optional.
func NewTracker(repo domain.Repository, facts domain.FactsProvider, evaluator *regulation.Evaluator, bus domain.EventBus) *Tracker {
	return &Tracker{
		repo:      repo,
		facts:     facts,
		evaluator: evaluator,
		bus:       bus,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the tracker's clock. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Get returns the current compliance record for a booking.
func (t *Tracker) Get(ctx context.Context, bookingID string) (*domain.ComplianceCheck, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("%w: bookingId is required", domain.ErrValidation)
	}
	check, err := t.repo.GetComplianceCheck(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	actions, err := t.repo.ListEnforcementActions(ctx, check.ID)
	if err != nil {
		slog.Warn("failed to load enforcement actions",
			"booking_id", bookingID,
			"error", err,
		)
	} else {
		check.EnforcementActions = actions
	}
	return check, nil
}

// Check evaluates (or re-evaluates) compliance for a booking. Without
// force, an existing record is returned as is except that an expired
// grace period is always processed. Terminal bookings are frozen.
func (t *Tracker) Check(ctx context.Context, bookingID, productID, renterID string, force bool) (*domain.ComplianceCheck, error) {
	if bookingID == "" || productID == "" || renterID == "" {
		return nil, fmt.Errorf("%w: bookingId, productId and renterId are required", domain.ErrValidation)
	}

	existing, err := t.repo.GetComplianceCheck(ctx, bookingID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := t.now()

	if existing != nil {
		// Administrative exemption is sticky until requirements change.
		if existing.Status == domain.StatusExempt {
			return existing, nil
		}

		graceExpired := existing.Status == domain.StatusGracePeriod &&
			existing.GracePeriodEndsAt != nil && now.After(*existing.GracePeriodEndsAt)

		if !force && !graceExpired {
			return existing, nil
		}
	}

	booking, err := t.facts.Booking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", bookingID, err)
	}
	if booking.Terminal() && existing != nil {
		return existing, nil
	}

	renter, err := t.facts.Renter(ctx, renterID)
	if err != nil {
		return nil, fmt.Errorf("renter %s: %w", renterID, err)
	}

	profile, err := t.repo.GetRiskProfile(ctx, productID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	categoryID := ""
	if profile != nil {
		categoryID = profile.CategoryID
	} else if product, perr := t.facts.Product(ctx, productID); perr == nil {
		categoryID = product.CategoryID
	}

	check := existing
	if check == nil {
		check = &domain.ComplianceCheck{
			ID:        uuid.New().String(),
			BookingID: bookingID,
			ProductID: productID,
			RenterID:  renterID,
			Status:    domain.StatusPending,
			CreatedAt: now,
		}
	}

	missing, passed, applicable := t.evaluateRequirements(profile, renter, booking)

	var regResult *domain.RegulationCheckResult
	if categoryID != "" && booking.CountryID != "" {
		regResult, err = t.evaluator.Check(ctx, categoryID, booking.CountryID, candidateFrom(renter, booking))
		if err != nil {
			return nil, err
		}
		for name, cr := range regResult.Checks {
			if !cr.Applicable {
				continue
			}
			applicable++
			if cr.Passed {
				passed++
			} else {
				missing = append(missing, string(name))
			}
		}
	}

	check.MissingRequirements = missing
	check.IsCompliant = len(missing) == 0
	check.ComplianceScore = scoreOf(passed, applicable)
	check.LastCheckedAt = now

	prevStatus := check.Status
	t.transition(check, profile, now)

	if err := t.repo.SaveComplianceCheck(ctx, check); err != nil {
		return nil, err
	}

	if prevStatus != check.Status {
		t.publishTransition(ctx, check, prevStatus)
	}

	return check, nil
}

// Exempt marks a booking exempt. Exemption is an explicit administrative
// override, never an automatic outcome of evaluation.
func (t *Tracker) Exempt(ctx context.Context, bookingID string) (*domain.ComplianceCheck, error) {
	check, err := t.repo.GetComplianceCheck(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	prevStatus := check.Status
	check.Status = domain.StatusExempt
	check.GracePeriodEndsAt = nil
	check.LastCheckedAt = t.now()

	if err := t.repo.SaveComplianceCheck(ctx, check); err != nil {
		return nil, err
	}
	if prevStatus != check.Status {
		t.publishTransition(ctx, check, prevStatus)
	}
	return check, nil
}

// transition applies the state machine rules to a freshly evaluated check.
func (t *Tracker) transition(check *domain.ComplianceCheck, profile *domain.RiskProfile, now time.Time) {
	if profile != nil && profile.Exempt {
		check.Status = domain.StatusExempt
		check.GracePeriodEndsAt = nil
		return
	}

	if check.IsCompliant {
		check.Status = domain.StatusCompliant
		check.GracePeriodEndsAt = nil
		// A new non-compliance episode may earn a fresh grace period.
		check.GraceGranted = false
		return
	}

	// Non-compliant. A grace period is granted once per episode.
	if check.GraceGranted {
		if check.GracePeriodEndsAt != nil && now.After(*check.GracePeriodEndsAt) {
			check.Status = domain.StatusNonCompliant
		} else if check.Status == domain.StatusGracePeriod {
			// Still inside the granted window.
			return
		} else {
			check.Status = domain.StatusNonCompliant
		}
		return
	}

	if profile != nil && profile.GracePeriodHours > 0 {
		ends := now.Add(time.Duration(profile.GracePeriodHours) * time.Hour)
		check.Status = domain.StatusGracePeriod
		check.GracePeriodEndsAt = &ends
		check.GraceGranted = true
		return
	}

	check.Status = domain.StatusNonCompliant
}

// evaluateRequirements checks the profile's mandatory requirements against
// the renter and booking facts. Returns the missing requirement names and
// the passed/applicable counts for the compliance score.
func (t *Tracker) evaluateRequirements(profile *domain.RiskProfile, renter *domain.Renter, booking *domain.Booking) (missing []string, passed, applicable int) {
	if profile == nil {
		return nil, 0, 0
	}

	if profile.Mandatory.InsuranceRequired {
		applicable++
		if renter.InsuranceCoverage <= 0 {
			missing = append(missing, "insurance")
		} else if profile.Mandatory.MinCoverage > 0 && renter.InsuranceCoverage < profile.Mandatory.MinCoverage {
			missing = append(missing, "coverage")
		} else {
			passed++
		}
	}

	if profile.Mandatory.InspectionRequired {
		applicable++
		if booking.InspectionCompleted {
			passed++
		} else {
			missing = append(missing, "inspection")
		}
	}

	return missing, passed, applicable
}

func (t *Tracker) publishTransition(ctx context.Context, check *domain.ComplianceCheck, prev domain.ComplianceStatus) {
	if t.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"bookingId": check.BookingID,
		"from":      prev,
		"to":        check.Status,
		"score":     check.ComplianceScore,
		"checkedAt": check.LastCheckedAt,
	})
	if err := t.bus.Publish(ctx, domain.TopicComplianceChanged, payload); err != nil {
		slog.Error("failed to publish compliance transition",
			"booking_id", check.BookingID,
			"error", err,
		)
	}
}

// candidateFrom builds the regulation candidate from renter and booking facts.
func candidateFrom(renter *domain.Renter, booking *domain.Booking) *domain.Candidate {
	age := renter.Age
	duration := booking.DurationDays()
	hasLicense := renter.HasLicense
	hasInsurance := renter.InsuranceCoverage > 0
	coverage := renter.InsuranceCoverage

	return &domain.Candidate{
		UserAge:               &age,
		RentalDurationDays:    &duration,
		HasLicense:            &hasLicense,
		HasInsurance:          &hasInsurance,
		CoverageAmount:        &coverage,
		BackgroundCheckStatus: renter.BackgroundCheckStatus,
		Season:                risk.SeasonFor(booking.StartDate),
		DocumentationProvided: renter.Documentation,
	}
}

func scoreOf(passed, applicable int) int {
	if applicable == 0 {
		return 100
	}
	return int(float64(passed) / float64(applicable) * 100)
}
