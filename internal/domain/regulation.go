package domain

import (
	"fmt"
	"time"
)

// Regulation is a country/category-specific legal rule set, evaluated
// independently of risk profiles. Zero values disable individual rules:
// MinAgeRequirement 0 means no age gate, MaxRentalDays 0 means no
// duration cap. SeasonalRestrictions lists the restricted seasons.
type Regulation struct {
	CategoryID string `json:"categoryId"`
	CountryID  string `json:"countryId"`

	IsAllowed               bool     `json:"isAllowed"`
	MinAgeRequirement       int      `json:"minAgeRequirement"`
	RequiresLicense         bool     `json:"requiresLicense"`
	LicenseTypes            []string `json:"licenseTypes,omitempty"`
	MaxRentalDays           int      `json:"maxRentalDays"`
	MandatoryInsurance      bool     `json:"mandatoryInsurance"`
	MinCoverageAmount       float64  `json:"minCoverageAmount"`
	RequiresBackgroundCheck bool     `json:"requiresBackgroundCheck"`
	DocumentationRequired   []string `json:"documentationRequired,omitempty"`
	SeasonalRestrictions    []string `json:"seasonalRestrictions,omitempty"`

	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate checks regulation invariants before storing.
func (r *Regulation) Validate() error {
	if r.CategoryID == "" || r.CountryID == "" {
		return fmt.Errorf("%w: categoryId and countryId are required", ErrValidation)
	}
	if r.MinAgeRequirement < 0 || r.MaxRentalDays < 0 || r.MinCoverageAmount < 0 {
		return fmt.Errorf("%w: numeric regulation fields must be >= 0", ErrValidation)
	}
	return nil
}

// Candidate carries the optional facts about a rental attempt that the
// regulation evaluator checks. Nil fields mean "not provided".
type Candidate struct {
	UserAge               *int     `json:"userAge,omitempty"`
	RentalDurationDays    *int     `json:"rentalDurationDays,omitempty"`
	HasLicense            *bool    `json:"hasLicense,omitempty"`
	HasInsurance          *bool    `json:"hasInsurance,omitempty"`
	CoverageAmount        *float64 `json:"coverageAmount,omitempty"`
	BackgroundCheckStatus string   `json:"backgroundCheckStatus,omitempty"`
	Season                string   `json:"season,omitempty"`
	DocumentationProvided []string `json:"documentationProvided,omitempty"`
}

// CheckName identifies a regulation sub-check. The set is fixed.
type CheckName string

const (
	CheckIsAllowed            CheckName = "is_allowed"
	CheckAgeRequirement       CheckName = "age_requirement"
	CheckLicenseRequirement   CheckName = "license_requirement"
	CheckRentalDuration       CheckName = "rental_duration"
	CheckInsuranceRequirement CheckName = "insurance_requirement"
	CheckBackgroundCheck      CheckName = "background_check"
	CheckDocumentation        CheckName = "documentation"
	CheckSeasonalRestrictions CheckName = "seasonal_restrictions"
)

// AllChecks lists every sub-check in evaluation order.
func AllChecks() []CheckName {
	return []CheckName{
		CheckIsAllowed,
		CheckAgeRequirement,
		CheckLicenseRequirement,
		CheckRentalDuration,
		CheckInsuranceRequirement,
		CheckBackgroundCheck,
		CheckDocumentation,
		CheckSeasonalRestrictions,
	}
}

// CheckResult is the outcome of a single regulation sub-check. A sub-check
// is inapplicable (and vacuously passed) when the regulation does not
// impose that requirement.
type CheckResult struct {
	Passed     bool           `json:"passed"`
	Applicable bool           `json:"applicable"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// RegulationCheckResult is the full report of evaluating a candidate
// against a category/country regulation.
type RegulationCheckResult struct {
	CategoryID       string                    `json:"categoryId"`
	CountryID        string                    `json:"countryId"`
	RegulationExists bool                      `json:"regulationExists"`
	IsCompliant      bool                      `json:"isCompliant"`
	Checks           map[CheckName]CheckResult `json:"checks"`
	Violations       []string                  `json:"violations,omitempty"`
	Warnings         []string                  `json:"warnings,omitempty"`
	Recommendations  []string                  `json:"recommendations,omitempty"`
}
