package domain

import (
	"fmt"
	"time"
)

// ComplianceStatus is the lifecycle state of a booking's compliance check.
type ComplianceStatus string

const (
	StatusPending      ComplianceStatus = "pending"
	StatusCompliant    ComplianceStatus = "compliant"
	StatusNonCompliant ComplianceStatus = "non_compliant"
	StatusGracePeriod  ComplianceStatus = "grace_period"
	StatusExempt       ComplianceStatus = "exempt"
)

// ComplianceCheck is the persisted compliance record for a booking.
type ComplianceCheck struct {
	ID        string `json:"id"`
	BookingID string `json:"bookingId"`
	ProductID string `json:"productId"`
	RenterID  string `json:"renterId"`

	IsCompliant         bool     `json:"isCompliant"`
	MissingRequirements []string `json:"missingRequirements,omitempty"`
	ComplianceScore     int      `json:"complianceScore"` // [0,100]

	Status            ComplianceStatus `json:"status"`
	GracePeriodEndsAt *time.Time       `json:"gracePeriodEndsAt,omitempty"`

	// GraceGranted marks that a grace period was already granted for the
	// current non-compliance episode. Reset when the booking returns to
	// compliant, so a later episode can earn a fresh grace period.
	GraceGranted bool `json:"-"`

	EnforcementActions []EnforcementAction `json:"enforcementActions,omitempty"`

	LastCheckedAt time.Time `json:"lastCheckedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ActionType identifies the kind of enforcement action. The set is closed;
// the enforcement engine keeps one executor per variant.
type ActionType string

const (
	ActionBlockBooking      ActionType = "block_booking"
	ActionRequireInsurance  ActionType = "require_insurance"
	ActionRequireInspection ActionType = "require_inspection"
	ActionSendNotification  ActionType = "send_notification"
	ActionEscalate          ActionType = "escalate"
)

// Severity grades actions and violations.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActionStatus is the dispatch state of an enforcement action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuted  ActionStatus = "executed"
	ActionFailed    ActionStatus = "failed"
	ActionCancelled ActionStatus = "cancelled"
)

// EnforcementAction is a concrete instruction derived from a compliance
// result. Owned by exactly one ComplianceCheck. Once dispatched, only the
// execution collaborator mutates its status.
type EnforcementAction struct {
	ID             string       `json:"id"`
	CheckID        string       `json:"checkId"`
	BookingID      string       `json:"bookingId"`
	Type           ActionType   `json:"type"`
	Severity       Severity     `json:"severity"`
	Message        string       `json:"message"`
	RequiredAction string       `json:"requiredAction,omitempty"`
	Deadline       *time.Time   `json:"deadline,omitempty"`
	Status         ActionStatus `json:"status"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// ViolationType identifies the policy breach a violation records.
type ViolationType string

const (
	ViolationMissingInsurance   ViolationType = "missing_insurance"
	ViolationMissingInspection  ViolationType = "missing_inspection"
	ViolationInadequateCoverage ViolationType = "inadequate_coverage"
	ViolationExpiredCompliance  ViolationType = "expired_compliance"
)

// Valid reports whether the type is one of the known values.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationMissingInsurance, ViolationMissingInspection,
		ViolationInadequateCoverage, ViolationExpiredCompliance:
		return true
	}
	return false
}

// ViolationStatus is the resolution state of a recorded violation.
type ViolationStatus string

const (
	ViolationActive    ViolationStatus = "active"
	ViolationResolved  ViolationStatus = "resolved"
	ViolationEscalated ViolationStatus = "escalated"
)

// PolicyViolation is an append-only ledger entry recording a confirmed
// breach. Never hard-deleted.
type PolicyViolation struct {
	ID        string `json:"id"`
	BookingID string `json:"bookingId"`
	ProductID string `json:"productId"`
	RenterID  string `json:"renterId"`

	Type        ViolationType `json:"violationType"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`

	DetectedAt        time.Time  `json:"detectedAt"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
	ResolutionActions []string   `json:"resolutionActions,omitempty"`
	PenaltyAmount     float64    `json:"penaltyAmount"`

	Status ViolationStatus `json:"status"`
}

// Validate checks violation invariants before recording.
func (v *PolicyViolation) Validate() error {
	if v.BookingID == "" || v.ProductID == "" || v.RenterID == "" {
		return fmt.Errorf("%w: bookingId, productId and renterId are required", ErrValidation)
	}
	if !v.Type.Valid() {
		return fmt.Errorf("%w: unknown violation type %q", ErrValidation, v.Type)
	}
	if v.PenaltyAmount < 0 {
		return fmt.Errorf("%w: penaltyAmount must be >= 0", ErrValidation)
	}
	return nil
}

// EnforcementOutcome is the result of triggerEnforcement for a booking.
type EnforcementOutcome struct {
	Compliance         *ComplianceCheck    `json:"compliance"`
	Actions            []EnforcementAction `json:"actions"`
	ViolationsRecorded int                 `json:"violationsRecorded"`
}
