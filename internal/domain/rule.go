package domain

// RiskFactor names the assessment factor a signal rule contributes to.
type RiskFactor string

const (
	FactorProduct  RiskFactor = "product"
	FactorRenter   RiskFactor = "renter"
	FactorBooking  RiskFactor = "booking"
	FactorSeasonal RiskFactor = "seasonal"
)

// Valid reports whether the factor is one of the known values.
func (f RiskFactor) Valid() bool {
	switch f {
	case FactorProduct, FactorRenter, FactorBooking, FactorSeasonal:
		return true
	}
	return false
}

// SignalRule is an admin-configurable risk signal. The CEL expression is
// evaluated against the booking/renter/product facts; its score is mapped
// through bands to an outcome. A flagged rule raises the named factor and
// contributes its reason to the assessment's recommendations.
type SignalRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Factor the rule contributes to when flagged.
	Factor RiskFactor `json:"factor"`

	// CEL expression to evaluate.
	Expression string `json:"expression"`

	// Outcome bands for score-to-outcome mapping.
	Bands []RuleBand `json:"bands"`

	// Whether rule is active.
	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to an outcome.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // ".pass", ".flag", ".err"
	Reason     string   `json:"reason"`
}

// SignalResult is the output of evaluating one signal rule.
type SignalResult struct {
	RuleID    string     `json:"ruleId"`
	Factor    RiskFactor `json:"factor"`
	Outcome   string     `json:"outcome"`
	Score     float64    `json:"score"`
	Reason    string     `json:"reason"`
	ProcessMs int64      `json:"processMs"`
}

// Signal rule outcomes.
const (
	SignalOutcomePass  = ".pass"
	SignalOutcomeFlag  = ".flag"
	SignalOutcomeError = ".err"
)
