package domain

import (
	"fmt"
	"time"
)

// RiskLevel classifies a product's inherent rental risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether the level is one of the known values.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// EnforcementLevel determines how aggressively non-compliance is acted on.
type EnforcementLevel string

const (
	EnforceLenient    EnforcementLevel = "lenient"
	EnforceModerate   EnforcementLevel = "moderate"
	EnforceStrict     EnforcementLevel = "strict"
	EnforceVeryStrict EnforcementLevel = "very_strict"
)

// Valid reports whether the level is one of the known values.
func (l EnforcementLevel) Valid() bool {
	switch l {
	case EnforceLenient, EnforceModerate, EnforceStrict, EnforceVeryStrict:
		return true
	}
	return false
}

// MandatoryRequirements are the hard requirements a risk profile imposes
// on every booking of the product.
type MandatoryRequirements struct {
	InsuranceRequired       bool     `json:"insuranceRequired"`
	InspectionRequired      bool     `json:"inspectionRequired"`
	MinCoverage             float64  `json:"minCoverage"`
	InspectionTypes         []string `json:"inspectionTypes,omitempty"`
	ComplianceDeadlineHours int      `json:"complianceDeadlineHours"`
}

// RiskProfile is the per-product policy record. One profile per product.
type RiskProfile struct {
	ProductID            string                `json:"productId"`
	CategoryID           string                `json:"categoryId"`
	RiskLevel            RiskLevel             `json:"riskLevel"`
	Mandatory            MandatoryRequirements `json:"mandatoryRequirements"`
	RiskFactors          []string              `json:"riskFactors,omitempty"`
	MitigationStrategies []string              `json:"mitigationStrategies,omitempty"`
	EnforcementLevel     EnforcementLevel      `json:"enforcementLevel"`
	AutoEnforcement      bool                  `json:"autoEnforcement"`
	GracePeriodHours     int                   `json:"gracePeriodHours"`

	// Exempt bypasses compliance enforcement entirely. Set by policy,
	// never computed.
	Exempt bool `json:"exempt"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate checks profile invariants.
func (p *RiskProfile) Validate() error {
	if p.ProductID == "" {
		return fmt.Errorf("%w: productId is required", ErrValidation)
	}
	if p.CategoryID == "" {
		return fmt.Errorf("%w: categoryId is required", ErrValidation)
	}
	if !p.RiskLevel.Valid() {
		return fmt.Errorf("%w: unknown risk level %q", ErrValidation, p.RiskLevel)
	}
	if !p.EnforcementLevel.Valid() {
		return fmt.Errorf("%w: unknown enforcement level %q", ErrValidation, p.EnforcementLevel)
	}
	if p.Mandatory.MinCoverage < 0 {
		return fmt.Errorf("%w: minCoverage must be >= 0", ErrValidation)
	}
	if p.GracePeriodHours < 0 {
		return fmt.Errorf("%w: gracePeriodHours must be >= 0", ErrValidation)
	}
	return nil
}

// FactorScores is the per-factor risk breakdown, each in [0,100].
type FactorScores struct {
	Product  int `json:"productRisk"`
	Renter   int `json:"renterRisk"`
	Booking  int `json:"bookingRisk"`
	Seasonal int `json:"seasonalRisk"`
}

// RiskAssessment is the ephemeral result of assessing a rental attempt.
type RiskAssessment struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	RenterID  string `json:"renterId"`
	BookingID string `json:"bookingId,omitempty"`

	OverallRiskScore int          `json:"overallRiskScore"` // [0,100]
	RiskLevel        RiskLevel    `json:"riskLevel"`
	Factors          FactorScores `json:"riskFactors"`
	FactorTags       []string     `json:"factorTags,omitempty"`
	Recommendations  []string     `json:"recommendations,omitempty"`

	// Mandatory mirrors the product's risk profile requirements. The
	// assessment never weakens them.
	Mandatory MandatoryRequirements `json:"mandatoryRequirements"`

	// ComplianceStatus is provisional: pending, or exempt when the
	// profile declares the product exempt.
	ComplianceStatus ComplianceStatus `json:"complianceStatus"`

	AssessmentDate time.Time `json:"assessmentDate"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// LevelForScore maps an overall score to its risk band.
func LevelForScore(score int) RiskLevel {
	switch {
	case score <= 25:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// RiskStats is the aggregate view returned by getRiskManagementStats.
type RiskStats struct {
	TotalRiskProfiles int     `json:"totalRiskProfiles"`
	ComplianceRate    float64 `json:"complianceRate"`
	ViolationRate     float64 `json:"violationRate"`
	AverageRiskScore  float64 `json:"averageRiskScore"`

	EnforcementActions struct {
		Total      int `json:"total"`
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
		Pending    int `json:"pending"`
	} `json:"enforcementActions"`

	RiskDistribution map[RiskLevel]int `json:"riskDistribution"`
}
