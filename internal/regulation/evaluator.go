// Package regulation evaluates country/category legal rules against a
// candidate rental. Every sub-check runs so the caller always gets a full
// report; a sub-check the regulation does not impose is vacuously passed.
package regulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peershare/warden/internal/domain"
)

// Evaluator looks up regulation records and runs the fixed sub-check set.
type Evaluator struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewEvaluator creates a regulation evaluator. The cache is optional.
func NewEvaluator(repo domain.Repository, cache domain.Cache) *Evaluator {
	return &Evaluator{repo: repo, cache: cache}
}

// Check evaluates the candidate against the (category, country) regulation.
// A missing regulation means nothing to violate: compliant with a warning.
func (e *Evaluator) Check(ctx context.Context, categoryID, countryID string, cand *domain.Candidate) (*domain.RegulationCheckResult, error) {
	if categoryID == "" || countryID == "" {
		return nil, fmt.Errorf("%w: categoryId and countryId are required", domain.ErrValidation)
	}
	if cand == nil {
		cand = &domain.Candidate{}
	}

	result := &domain.RegulationCheckResult{
		CategoryID: categoryID,
		CountryID:  countryID,
		Checks:     make(map[domain.CheckName]domain.CheckResult, 8),
	}

	reg, err := e.regulation(ctx, categoryID, countryID)
	if errors.Is(err, domain.ErrNotFound) {
		result.RegulationExists = false
		result.IsCompliant = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no regulation on file for category %s in country %s", categoryID, countryID))
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.RegulationExists = true
	result.IsCompliant = true

	// Never short-circuit: every sub-check runs.
	for _, name := range domain.AllChecks() {
		cr := evaluateCheck(name, reg, cand)
		result.Checks[name] = cr

		if cr.Applicable && !cr.Passed {
			result.IsCompliant = false
			result.Violations = append(result.Violations, cr.Message)
			if rec := remediation(name, reg); rec != "" {
				result.Recommendations = append(result.Recommendations, rec)
			}
		}
		if warn, ok := cr.Details["warning"].(string); ok && warn != "" {
			result.Warnings = append(result.Warnings, warn)
		}
	}

	return result, nil
}

// evaluateCheck runs a single sub-check.
func evaluateCheck(name domain.CheckName, reg *domain.Regulation, cand *domain.Candidate) domain.CheckResult {
	switch name {
	case domain.CheckIsAllowed:
		if reg.IsAllowed {
			return pass(false, "category rental is allowed")
		}
		return fail("category rental is not allowed in this country", nil)

	case domain.CheckAgeRequirement:
		if reg.MinAgeRequirement <= 0 {
			return pass(false, "no age requirement")
		}
		if cand.UserAge == nil {
			return domain.CheckResult{
				Passed:     true,
				Applicable: true,
				Message:    "age not provided",
				Details:    map[string]any{"warning": "user age not provided; age requirement could not be verified"},
			}
		}
		if *cand.UserAge < reg.MinAgeRequirement {
			return fail(
				fmt.Sprintf("renter age %d is below the minimum age %d", *cand.UserAge, reg.MinAgeRequirement),
				map[string]any{"minAge": reg.MinAgeRequirement, "userAge": *cand.UserAge},
			)
		}
		return pass(true, fmt.Sprintf("age requirement met (min %d)", reg.MinAgeRequirement))

	case domain.CheckLicenseRequirement:
		if !reg.RequiresLicense {
			return pass(false, "no license requirement")
		}
		if cand.HasLicense == nil || !*cand.HasLicense {
			return fail("a valid license is required for this category",
				map[string]any{"licenseTypes": reg.LicenseTypes})
		}
		return pass(true, "license requirement met")

	case domain.CheckRentalDuration:
		if reg.MaxRentalDays <= 0 {
			return pass(false, "no rental duration limit")
		}
		if cand.RentalDurationDays == nil {
			return domain.CheckResult{
				Passed:     true,
				Applicable: true,
				Message:    "rental duration not provided",
				Details:    map[string]any{"warning": "rental duration not provided; duration limit could not be verified"},
			}
		}
		if *cand.RentalDurationDays > reg.MaxRentalDays {
			return fail(
				fmt.Sprintf("rental duration %d days exceeds the maximum of %d days", *cand.RentalDurationDays, reg.MaxRentalDays),
				map[string]any{"maxRentalDays": reg.MaxRentalDays, "requestedDays": *cand.RentalDurationDays},
			)
		}
		return pass(true, fmt.Sprintf("rental duration within the %d day limit", reg.MaxRentalDays))

	case domain.CheckInsuranceRequirement:
		if !reg.MandatoryInsurance {
			return pass(false, "no insurance requirement")
		}
		if cand.HasInsurance == nil || !*cand.HasInsurance {
			return fail("insurance is mandatory for this category",
				map[string]any{"minCoverage": reg.MinCoverageAmount})
		}
		coverage := 0.0
		if cand.CoverageAmount != nil {
			coverage = *cand.CoverageAmount
		}
		if coverage < reg.MinCoverageAmount {
			return fail(
				fmt.Sprintf("insurance coverage %.2f is below the required minimum %.2f", coverage, reg.MinCoverageAmount),
				map[string]any{"minCoverage": reg.MinCoverageAmount, "coverage": coverage},
			)
		}
		return pass(true, "insurance requirement met")

	case domain.CheckBackgroundCheck:
		if !reg.RequiresBackgroundCheck {
			return pass(false, "no background check requirement")
		}
		if cand.BackgroundCheckStatus != "approved" {
			return fail(
				fmt.Sprintf("background check status is %q, must be approved", cand.BackgroundCheckStatus),
				map[string]any{"status": cand.BackgroundCheckStatus},
			)
		}
		return pass(true, "background check approved")

	case domain.CheckDocumentation:
		if len(reg.DocumentationRequired) == 0 {
			return pass(false, "no documentation requirement")
		}
		provided := make(map[string]bool, len(cand.DocumentationProvided))
		for _, d := range cand.DocumentationProvided {
			provided[strings.ToLower(d)] = true
		}
		var missing []string
		for _, d := range reg.DocumentationRequired {
			if !provided[strings.ToLower(d)] {
				missing = append(missing, d)
			}
		}
		if len(missing) > 0 {
			return fail(
				fmt.Sprintf("missing required documentation: %s", strings.Join(missing, ", ")),
				map[string]any{"missing": missing},
			)
		}
		return pass(true, "all required documentation provided")

	case domain.CheckSeasonalRestrictions:
		if len(reg.SeasonalRestrictions) == 0 {
			return pass(false, "no seasonal restrictions")
		}
		for _, season := range reg.SeasonalRestrictions {
			if strings.EqualFold(season, cand.Season) {
				return fail(
					fmt.Sprintf("rentals are restricted during %s", season),
					map[string]any{"restrictedSeasons": reg.SeasonalRestrictions},
				)
			}
		}
		return pass(true, "no seasonal restriction applies")
	}

	return pass(false, "unknown check")
}

// remediation suggests how to fix a failed check.
func remediation(name domain.CheckName, reg *domain.Regulation) string {
	switch name {
	case domain.CheckLicenseRequirement:
		if len(reg.LicenseTypes) > 0 {
			return fmt.Sprintf("obtain a license of type: %s", strings.Join(reg.LicenseTypes, ", "))
		}
		return "obtain the required license"
	case domain.CheckInsuranceRequirement:
		return fmt.Sprintf("obtain insurance with coverage of at least %.2f", reg.MinCoverageAmount)
	case domain.CheckBackgroundCheck:
		return "complete a background check before booking"
	case domain.CheckDocumentation:
		return "upload the missing documentation"
	}
	return ""
}

func pass(applicable bool, msg string) domain.CheckResult {
	return domain.CheckResult{Passed: true, Applicable: applicable, Message: msg}
}

func fail(msg string, details map[string]any) domain.CheckResult {
	return domain.CheckResult{Passed: false, Applicable: true, Message: msg, Details: details}
}

// regulation loads the record through the cache.
func (e *Evaluator) regulation(ctx context.Context, categoryID, countryID string) (*domain.Regulation, error) {
	if e.cache != nil {
		if r, err := e.cache.GetRegulation(ctx, categoryID, countryID); err == nil && r != nil {
			return r, nil
		}
	}

	r, err := e.repo.GetRegulation(ctx, categoryID, countryID)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		_ = e.cache.SetRegulation(ctx, categoryID, countryID, r, 10*time.Minute)
	}

	return r, nil
}
