// Package enforcement derives and dispatches enforcement actions from
// compliance results, crossed with the product's enforcement level.
package enforcement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/peershare/warden/internal/domain"
)

// Decider computes enforcement actions and, when auto-enforcement is on,
// dispatches them and records policy violations.
type Decider struct {
	repo      domain.Repository
	bus       domain.EventBus
	executors ExecutorSet
	cfg       domain.EnforcementConfig
	now       func() time.Time
}

// NewDecider creates an enforcement decider.
func NewDecider(repo domain.Repository, bus domain.EventBus, executors ExecutorSet, cfg domain.EnforcementConfig) *Decider {
	return &Decider{
		repo:      repo,
		bus:       bus,
		executors: executors,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the decider's clock. Used by tests.
func (d *Decider) SetClock(now func() time.Time) {
	d.now = now
}

// Enforce derives actions for a compliance check. With autoEnforcement the
// actions are dispatched and violations recorded; otherwise the computed
// actions are persisted pending for a human to approve.
func (d *Decider) Enforce(ctx context.Context, check *domain.ComplianceCheck, profile *domain.RiskProfile) (*domain.EnforcementOutcome, error) {
	if check == nil {
		return nil, fmt.Errorf("%w: compliance check is required", domain.ErrValidation)
	}

	now := d.now()
	actions := d.decide(check, profile, now)

	outcome := &domain.EnforcementOutcome{
		Compliance: check,
		Actions:    actions,
	}

	for i := range actions {
		if err := d.repo.SaveEnforcementAction(ctx, &actions[i]); err != nil {
			return nil, err
		}
	}

	autoEnforce := profile != nil && profile.AutoEnforcement
	if !autoEnforce {
		// Recommended actions stay pending for human approval.
		outcome.Actions = actions
		return outcome, nil
	}

	// When a require_* action names the specific cause, block and escalate
	// add no expired_compliance record of their own: one violation per cause
	// per pass.
	specificCause := false
	for _, a := range actions {
		if a.Type == domain.ActionRequireInsurance || a.Type == domain.ActionRequireInspection {
			specificCause = true
			break
		}
	}

	for i := range actions {
		action := &actions[i]

		if vt, ok := violationFor(action.Type, check.MissingRequirements); ok && !(specificCause && catchAllAction(action.Type)) {
			recorded, err := d.recordViolation(ctx, check, vt, action, now)
			if err != nil {
				return nil, err
			}
			if recorded {
				outcome.ViolationsRecorded++
			}
		}

		d.dispatch(ctx, action, check)

		if err := d.repo.SaveEnforcementAction(ctx, action); err != nil {
			return nil, err
		}
	}

	outcome.Actions = actions
	return outcome, nil
}

// decide builds the action set from the enforcement policy matrix.
func (d *Decider) decide(check *domain.ComplianceCheck, profile *domain.RiskProfile, now time.Time) []domain.EnforcementAction {
	switch check.Status {
	case domain.StatusCompliant, domain.StatusExempt, domain.StatusPending:
		return nil

	case domain.StatusGracePeriod:
		return []domain.EnforcementAction{d.newAction(check, domain.ActionSendNotification,
			d.graceSeverity(check, profile, now),
			fmt.Sprintf("booking %s is in a compliance grace period; missing: %v", check.BookingID, check.MissingRequirements),
			"resolve the missing requirements before the grace period ends",
			check.GracePeriodEndsAt, now)}
	}

	// non_compliant: the action set scales with the enforcement level.
	level := domain.EnforceModerate
	if profile != nil {
		level = profile.EnforcementLevel
	}

	deadline := d.deadline(profile, now)
	var actions []domain.EnforcementAction

	actions = append(actions, d.newAction(check, domain.ActionSendNotification, severityFor(level),
		fmt.Sprintf("booking %s is non-compliant; missing: %v", check.BookingID, check.MissingRequirements),
		"resolve the missing requirements", &deadline, now))

	if level == domain.EnforceModerate || level == domain.EnforceStrict || level == domain.EnforceVeryStrict {
		if needsInsurance(check.MissingRequirements) {
			actions = append(actions, d.newAction(check, domain.ActionRequireInsurance, severityFor(level),
				fmt.Sprintf("insurance requirements are not met for booking %s", check.BookingID),
				"provide insurance meeting the minimum coverage", &deadline, now))
		}
		if needsInspection(check.MissingRequirements) {
			actions = append(actions, d.newAction(check, domain.ActionRequireInspection, severityFor(level),
				fmt.Sprintf("a required inspection is missing for booking %s", check.BookingID),
				"complete the required inspection", &deadline, now))
		}
	}

	if level == domain.EnforceStrict || level == domain.EnforceVeryStrict {
		actions = append(actions, d.newAction(check, domain.ActionBlockBooking, domain.SeverityHigh,
			fmt.Sprintf("booking %s is blocked pending compliance", check.BookingID),
			"", nil, now))
	}

	if level == domain.EnforceVeryStrict {
		actions = append(actions, d.newAction(check, domain.ActionEscalate, domain.SeverityCritical,
			fmt.Sprintf("booking %s escalated for repeated or severe non-compliance", check.BookingID),
			"", nil, now))
	}

	return actions
}

func (d *Decider) newAction(check *domain.ComplianceCheck, t domain.ActionType, sev domain.Severity, msg, required string, deadline *time.Time, now time.Time) domain.EnforcementAction {
	return domain.EnforcementAction{
		ID:             uuid.New().String(),
		CheckID:        check.ID,
		BookingID:      check.BookingID,
		Type:           t,
		Severity:       sev,
		Message:        msg,
		RequiredAction: required,
		Deadline:       deadline,
		Status:         domain.ActionPending,
		CreatedAt:      now,
	}
}

// graceSeverity scales the notification severity by remaining grace time.
func (d *Decider) graceSeverity(check *domain.ComplianceCheck, profile *domain.RiskProfile, now time.Time) domain.Severity {
	if check.GracePeriodEndsAt == nil || profile == nil || profile.GracePeriodHours <= 0 {
		return domain.SeverityLow
	}
	total := time.Duration(profile.GracePeriodHours) * time.Hour
	remaining := check.GracePeriodEndsAt.Sub(now)
	switch {
	case remaining > total/2:
		return domain.SeverityLow
	case remaining > total/4:
		return domain.SeverityMedium
	default:
		return domain.SeverityHigh
	}
}

func (d *Decider) deadline(profile *domain.RiskProfile, now time.Time) time.Time {
	hours := d.cfg.DefaultDeadlineHours
	if profile != nil && profile.Mandatory.ComplianceDeadlineHours > 0 {
		hours = profile.Mandatory.ComplianceDeadlineHours
	}
	if hours <= 0 {
		hours = 48
	}
	return now.Add(time.Duration(hours) * time.Hour)
}

// dispatch executes the action through its variant executor. A failed
// execution marks the action failed for manual follow-up; the engine never
// retries dispatch.
func (d *Decider) dispatch(ctx context.Context, action *domain.EnforcementAction, check *domain.ComplianceCheck) {
	executor := d.executors.ForType(action.Type)
	if executor == nil {
		action.Status = domain.ActionFailed
		action.Error = fmt.Sprintf("no executor for action type %s", action.Type)
		return
	}

	if err := executor.Execute(ctx, action, check); err != nil {
		action.Status = domain.ActionFailed
		action.Error = err.Error()
		slog.Error("enforcement action dispatch failed",
			"booking_id", action.BookingID,
			"action_type", action.Type,
			"error", err,
		)
		return
	}

	action.Status = domain.ActionExecuted
}

// recordViolation inserts a violation unless an active one of the same
// type exists for the booking. The uniqueness guarantee is the
// repository's atomic check-and-insert, not a read-then-write.
func (d *Decider) recordViolation(ctx context.Context, check *domain.ComplianceCheck, vt domain.ViolationType, action *domain.EnforcementAction, now time.Time) (bool, error) {
	severity := action.Severity
	if action.Type == domain.ActionEscalate && severity != domain.SeverityCritical {
		severity = domain.SeverityHigh
	}

	v := &domain.PolicyViolation{
		ID:          uuid.New().String(),
		BookingID:   check.BookingID,
		ProductID:   check.ProductID,
		RenterID:    check.RenterID,
		Type:        vt,
		Severity:    severity,
		Description: action.Message,
		DetectedAt:  now,
		Status:      domain.ViolationActive,
	}
	if action.Type == domain.ActionEscalate {
		v.PenaltyAmount = d.cfg.EscalationPenalty
	}

	err := d.repo.InsertViolation(ctx, v)
	if errors.Is(err, domain.ErrConflict) {
		// Already recorded for this booking and type; idempotent.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	d.publishViolation(ctx, v)
	return true, nil
}

func (d *Decider) publishViolation(ctx context.Context, v *domain.PolicyViolation) {
	if d.bus == nil {
		return
	}
	payload, _ := json.Marshal(v)
	if err := d.bus.Publish(ctx, domain.TopicViolationRecorded, payload); err != nil {
		slog.Error("failed to publish violation",
			"booking_id", v.BookingID,
			"violation_type", v.Type,
			"error", err,
		)
	}
}

// catchAllAction reports whether the action maps to the catch-all
// expired_compliance violation rather than a specific requirement.
func catchAllAction(t domain.ActionType) bool {
	return t == domain.ActionBlockBooking || t == domain.ActionEscalate
}

// violationFor maps an action variant to the violation it records, if any.
func violationFor(t domain.ActionType, missing []string) (domain.ViolationType, bool) {
	switch t {
	case domain.ActionRequireInsurance:
		if contains(missing, "coverage") {
			return domain.ViolationInadequateCoverage, true
		}
		return domain.ViolationMissingInsurance, true
	case domain.ActionRequireInspection:
		return domain.ViolationMissingInspection, true
	case domain.ActionBlockBooking, domain.ActionEscalate:
		return domain.ViolationExpiredCompliance, true
	}
	return "", false
}

func severityFor(level domain.EnforcementLevel) domain.Severity {
	switch level {
	case domain.EnforceLenient:
		return domain.SeverityLow
	case domain.EnforceModerate:
		return domain.SeverityMedium
	case domain.EnforceStrict:
		return domain.SeverityHigh
	default:
		return domain.SeverityCritical
	}
}

func needsInsurance(missing []string) bool {
	return contains(missing, "insurance") || contains(missing, "coverage") ||
		contains(missing, string(domain.CheckInsuranceRequirement))
}

func needsInspection(missing []string) bool {
	return contains(missing, "inspection")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
