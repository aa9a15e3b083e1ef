// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/peershare/warden/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// ---- Risk profiles ----

// SaveRiskProfile inserts a new per-product profile.
func (r *SQLRepository) SaveRiskProfile(ctx context.Context, p *domain.RiskProfile) error {
	mandatory, _ := json.Marshal(p.Mandatory)
	factors, _ := json.Marshal(p.RiskFactors)
	strategies, _ := json.Marshal(p.MitigationStrategies)

	query := `
		INSERT INTO risk_profiles (
			product_id, category_id, risk_level, mandatory, risk_factors,
			mitigation_strategies, enforcement_level, auto_enforcement,
			grace_period_hours, exempt, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ProductID, p.CategoryID, p.RiskLevel,
		string(mandatory), string(factors), string(strategies),
		p.EnforcementLevel, boolInt(p.AutoEnforcement),
		p.GracePeriodHours, boolInt(p.Exempt),
		p.CreatedAt, p.UpdatedAt,
	)
	if isConflict(err) {
		return fmt.Errorf("%w: risk profile for product %s already exists", domain.ErrConflict, p.ProductID)
	}
	return err
}

// UpdateRiskProfile replaces an existing profile.
func (r *SQLRepository) UpdateRiskProfile(ctx context.Context, p *domain.RiskProfile) error {
	mandatory, _ := json.Marshal(p.Mandatory)
	factors, _ := json.Marshal(p.RiskFactors)
	strategies, _ := json.Marshal(p.MitigationStrategies)

	query := `
		UPDATE risk_profiles SET
			category_id = ?, risk_level = ?, mandatory = ?, risk_factors = ?,
			mitigation_strategies = ?, enforcement_level = ?, auto_enforcement = ?,
			grace_period_hours = ?, exempt = ?, updated_at = ?
		WHERE product_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		p.CategoryID, p.RiskLevel,
		string(mandatory), string(factors), string(strategies),
		p.EnforcementLevel, boolInt(p.AutoEnforcement),
		p.GracePeriodHours, boolInt(p.Exempt),
		p.UpdatedAt, p.ProductID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: risk profile for product %s", domain.ErrNotFound, p.ProductID)
	}
	return nil
}

const riskProfileColumns = `product_id, category_id, risk_level, mandatory, risk_factors,
	mitigation_strategies, enforcement_level, auto_enforcement,
	grace_period_hours, exempt, created_at, updated_at`

// GetRiskProfile retrieves the profile for a product.
func (r *SQLRepository) GetRiskProfile(ctx context.Context, productID string) (*domain.RiskProfile, error) {
	query := `SELECT ` + riskProfileColumns + ` FROM risk_profiles WHERE product_id = ?`

	p, err := scanRiskProfile(r.db.QueryRowContext(ctx, r.rebind(query), productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: risk profile for product %s", domain.ErrNotFound, productID)
	}
	return p, err
}

// ListRiskProfiles retrieves profiles matching the filter, newest first.
func (r *SQLRepository) ListRiskProfiles(ctx context.Context, filter domain.RiskProfileFilter, page domain.Page) ([]*domain.RiskProfile, error) {
	query := `SELECT ` + riskProfileColumns + ` FROM risk_profiles WHERE 1=1`
	var args []any

	if filter.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, filter.CategoryID)
	}
	if filter.RiskLevel != "" {
		query += ` AND risk_level = ?`
		args = append(args, filter.RiskLevel)
	}
	if filter.EnforcementLevel != "" {
		query += ` AND enforcement_level = ?`
		args = append(args, filter.EnforcementLevel)
	}

	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.RiskProfile
	for rows.Next() {
		p, err := scanRiskProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRiskProfile(row scanner) (*domain.RiskProfile, error) {
	var p domain.RiskProfile
	var mandatory, factors, strategies sql.NullString
	var autoEnforce, exempt int

	err := row.Scan(
		&p.ProductID, &p.CategoryID, &p.RiskLevel,
		&mandatory, &factors, &strategies,
		&p.EnforcementLevel, &autoEnforce,
		&p.GracePeriodHours, &exempt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.AutoEnforcement = autoEnforce == 1
	p.Exempt = exempt == 1
	if mandatory.Valid && mandatory.String != "" {
		json.Unmarshal([]byte(mandatory.String), &p.Mandatory)
	}
	if factors.Valid && factors.String != "" {
		json.Unmarshal([]byte(factors.String), &p.RiskFactors)
	}
	if strategies.Valid && strategies.String != "" {
		json.Unmarshal([]byte(strategies.String), &p.MitigationStrategies)
	}
	return &p, nil
}

// ---- Compliance checks ----

// SaveComplianceCheck upserts the per-booking compliance record.
func (r *SQLRepository) SaveComplianceCheck(ctx context.Context, c *domain.ComplianceCheck) error {
	missing, _ := json.Marshal(c.MissingRequirements)

	query := `
		INSERT INTO compliance_checks (
			id, booking_id, product_id, renter_id, is_compliant,
			missing_requirements, compliance_score, status,
			grace_period_ends_at, grace_granted, last_checked_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(booking_id) DO UPDATE SET
			is_compliant = excluded.is_compliant,
			missing_requirements = excluded.missing_requirements,
			compliance_score = excluded.compliance_score,
			status = excluded.status,
			grace_period_ends_at = excluded.grace_period_ends_at,
			grace_granted = excluded.grace_granted,
			last_checked_at = excluded.last_checked_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.BookingID, c.ProductID, c.RenterID, boolInt(c.IsCompliant),
		string(missing), c.ComplianceScore, c.Status,
		c.GracePeriodEndsAt, boolInt(c.GraceGranted),
		c.LastCheckedAt, c.CreatedAt,
	)
	return err
}

// GetComplianceCheck retrieves the compliance record for a booking.
func (r *SQLRepository) GetComplianceCheck(ctx context.Context, bookingID string) (*domain.ComplianceCheck, error) {
	query := `
		SELECT id, booking_id, product_id, renter_id, is_compliant,
			   missing_requirements, compliance_score, status,
			   grace_period_ends_at, grace_granted, last_checked_at, created_at
		FROM compliance_checks
		WHERE booking_id = ?
	`

	var c domain.ComplianceCheck
	var missing sql.NullString
	var graceEnds sql.NullTime
	var compliant, granted int

	err := r.db.QueryRowContext(ctx, r.rebind(query), bookingID).Scan(
		&c.ID, &c.BookingID, &c.ProductID, &c.RenterID, &compliant,
		&missing, &c.ComplianceScore, &c.Status,
		&graceEnds, &granted, &c.LastCheckedAt, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: compliance check for booking %s", domain.ErrNotFound, bookingID)
	}
	if err != nil {
		return nil, err
	}

	c.IsCompliant = compliant == 1
	c.GraceGranted = granted == 1
	if graceEnds.Valid {
		t := graceEnds.Time
		c.GracePeriodEndsAt = &t
	}
	if missing.Valid && missing.String != "" {
		json.Unmarshal([]byte(missing.String), &c.MissingRequirements)
	}
	return &c, nil
}

// ---- Enforcement actions ----

// SaveEnforcementAction upserts an action; dispatch updates its status.
func (r *SQLRepository) SaveEnforcementAction(ctx context.Context, a *domain.EnforcementAction) error {
	query := `
		INSERT INTO enforcement_actions (
			id, check_id, booking_id, action_type, severity, message,
			required_action, deadline, status, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.CheckID, a.BookingID, a.Type, a.Severity, a.Message,
		a.RequiredAction, a.Deadline, a.Status, a.Error, a.CreatedAt,
	)
	return err
}

// ListEnforcementActions retrieves the actions belonging to a check.
func (r *SQLRepository) ListEnforcementActions(ctx context.Context, checkID string) ([]domain.EnforcementAction, error) {
	query := `
		SELECT id, check_id, booking_id, action_type, severity, message,
			   required_action, deadline, status, error, created_at
		FROM enforcement_actions
		WHERE check_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), checkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []domain.EnforcementAction
	for rows.Next() {
		var a domain.EnforcementAction
		var required, errMsg sql.NullString
		var deadline sql.NullTime

		if err := rows.Scan(
			&a.ID, &a.CheckID, &a.BookingID, &a.Type, &a.Severity, &a.Message,
			&required, &deadline, &a.Status, &errMsg, &a.CreatedAt,
		); err != nil {
			return nil, err
		}

		a.RequiredAction = required.String
		a.Error = errMsg.String
		if deadline.Valid {
			t := deadline.Time
			a.Deadline = &t
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ---- Violations ----

// InsertViolation appends a ledger entry. The partial unique index on
// (booking_id, violation_type) for active rows turns a duplicate into a
// constraint violation, reported as ErrConflict.
func (r *SQLRepository) InsertViolation(ctx context.Context, v *domain.PolicyViolation) error {
	actions, _ := json.Marshal(v.ResolutionActions)

	query := `
		INSERT INTO policy_violations (
			id, booking_id, product_id, renter_id, violation_type, severity,
			description, detected_at, resolved_at, resolution_actions,
			penalty_amount, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.ID, v.BookingID, v.ProductID, v.RenterID, v.Type, v.Severity,
		v.Description, v.DetectedAt, v.ResolvedAt, string(actions),
		v.PenaltyAmount, v.Status,
	)
	if isConflict(err) {
		return fmt.Errorf("%w: active %s violation already recorded for booking %s",
			domain.ErrConflict, v.Type, v.BookingID)
	}
	return err
}

const violationColumns = `id, booking_id, product_id, renter_id, violation_type, severity,
	description, detected_at, resolved_at, resolution_actions, penalty_amount, status`

// GetViolation retrieves a ledger entry by id.
func (r *SQLRepository) GetViolation(ctx context.Context, id string) (*domain.PolicyViolation, error) {
	query := `SELECT ` + violationColumns + ` FROM policy_violations WHERE id = ?`

	v, err := scanViolation(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: violation %s", domain.ErrNotFound, id)
	}
	return v, err
}

// UpdateViolation updates a ledger entry's resolution state. Entries are
// never deleted.
func (r *SQLRepository) UpdateViolation(ctx context.Context, v *domain.PolicyViolation) error {
	actions, _ := json.Marshal(v.ResolutionActions)

	query := `
		UPDATE policy_violations SET
			severity = ?, description = ?, resolved_at = ?,
			resolution_actions = ?, penalty_amount = ?, status = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		v.Severity, v.Description, v.ResolvedAt,
		string(actions), v.PenaltyAmount, v.Status, v.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: violation %s", domain.ErrNotFound, v.ID)
	}
	return nil
}

// ListViolations retrieves entries matching the filter, most recent first.
func (r *SQLRepository) ListViolations(ctx context.Context, filter domain.ViolationFilter, page domain.Page) ([]*domain.PolicyViolation, error) {
	query := `SELECT ` + violationColumns + ` FROM policy_violations WHERE 1=1`
	var args []any

	if filter.BookingID != "" {
		query += ` AND booking_id = ?`
		args = append(args, filter.BookingID)
	}
	if filter.ProductID != "" {
		query += ` AND product_id = ?`
		args = append(args, filter.ProductID)
	}
	if filter.RenterID != "" {
		query += ` AND renter_id = ?`
		args = append(args, filter.RenterID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, filter.Severity)
	}
	if filter.Type != "" {
		query += ` AND violation_type = ?`
		args = append(args, filter.Type)
	}

	query += ` ORDER BY detected_at DESC LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []*domain.PolicyViolation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountViolationsByRenter counts the renter's ledger entries, resolved
// included; history does not disappear on resolution.
func (r *SQLRepository) CountViolationsByRenter(ctx context.Context, renterID string) (int, error) {
	query := `SELECT COUNT(*) FROM policy_violations WHERE renter_id = ?`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), renterID).Scan(&count)
	return count, err
}

func scanViolation(row scanner) (*domain.PolicyViolation, error) {
	var v domain.PolicyViolation
	var description, actions sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&v.ID, &v.BookingID, &v.ProductID, &v.RenterID, &v.Type, &v.Severity,
		&description, &v.DetectedAt, &resolvedAt, &actions,
		&v.PenaltyAmount, &v.Status,
	)
	if err != nil {
		return nil, err
	}

	v.Description = description.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		v.ResolvedAt = &t
	}
	if actions.Valid && actions.String != "" {
		json.Unmarshal([]byte(actions.String), &v.ResolutionActions)
	}
	return &v, nil
}

// ---- Regulations ----

// UpsertRegulation stores the (category, country) legal rule set.
func (r *SQLRepository) UpsertRegulation(ctx context.Context, reg *domain.Regulation) error {
	licenses, _ := json.Marshal(reg.LicenseTypes)
	docs, _ := json.Marshal(reg.DocumentationRequired)
	seasons, _ := json.Marshal(reg.SeasonalRestrictions)

	query := `
		INSERT INTO regulations (
			category_id, country_id, is_allowed, min_age_requirement,
			requires_license, license_types, max_rental_days,
			mandatory_insurance, min_coverage_amount, requires_background_check,
			documentation_required, seasonal_restrictions, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category_id, country_id) DO UPDATE SET
			is_allowed = excluded.is_allowed,
			min_age_requirement = excluded.min_age_requirement,
			requires_license = excluded.requires_license,
			license_types = excluded.license_types,
			max_rental_days = excluded.max_rental_days,
			mandatory_insurance = excluded.mandatory_insurance,
			min_coverage_amount = excluded.min_coverage_amount,
			requires_background_check = excluded.requires_background_check,
			documentation_required = excluded.documentation_required,
			seasonal_restrictions = excluded.seasonal_restrictions,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		reg.CategoryID, reg.CountryID, boolInt(reg.IsAllowed), reg.MinAgeRequirement,
		boolInt(reg.RequiresLicense), string(licenses), reg.MaxRentalDays,
		boolInt(reg.MandatoryInsurance), reg.MinCoverageAmount, boolInt(reg.RequiresBackgroundCheck),
		string(docs), string(seasons), reg.UpdatedAt,
	)
	return err
}

// GetRegulation retrieves the rule set for a (category, country) pair.
func (r *SQLRepository) GetRegulation(ctx context.Context, categoryID, countryID string) (*domain.Regulation, error) {
	query := `
		SELECT category_id, country_id, is_allowed, min_age_requirement,
			   requires_license, license_types, max_rental_days,
			   mandatory_insurance, min_coverage_amount, requires_background_check,
			   documentation_required, seasonal_restrictions, updated_at
		FROM regulations
		WHERE category_id = ? AND country_id = ?
	`

	var reg domain.Regulation
	var licenses, docs, seasons sql.NullString
	var allowed, license, insurance, background int

	err := r.db.QueryRowContext(ctx, r.rebind(query), categoryID, countryID).Scan(
		&reg.CategoryID, &reg.CountryID, &allowed, &reg.MinAgeRequirement,
		&license, &licenses, &reg.MaxRentalDays,
		&insurance, &reg.MinCoverageAmount, &background,
		&docs, &seasons, &reg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: regulation for category %s in country %s",
			domain.ErrNotFound, categoryID, countryID)
	}
	if err != nil {
		return nil, err
	}

	reg.IsAllowed = allowed == 1
	reg.RequiresLicense = license == 1
	reg.MandatoryInsurance = insurance == 1
	reg.RequiresBackgroundCheck = background == 1
	if licenses.Valid && licenses.String != "" {
		json.Unmarshal([]byte(licenses.String), &reg.LicenseTypes)
	}
	if docs.Valid && docs.String != "" {
		json.Unmarshal([]byte(docs.String), &reg.DocumentationRequired)
	}
	if seasons.Valid && seasons.String != "" {
		json.Unmarshal([]byte(seasons.String), &reg.SeasonalRestrictions)
	}
	return &reg, nil
}

// ---- Signal rules ----

// SaveSignalRule upserts a signal rule configuration.
func (r *SQLRepository) SaveSignalRule(ctx context.Context, rule *domain.SignalRule) error {
	bands, _ := json.Marshal(rule.Bands)

	query := `
		INSERT INTO signal_rules (
			id, name, description, version, factor, expression, bands, enabled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			factor = excluded.factor,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Factor, rule.Expression, string(bands), boolInt(rule.Enabled),
	)
	return err
}

// ListSignalRules retrieves all signal rule configurations.
func (r *SQLRepository) ListSignalRules(ctx context.Context) ([]*domain.SignalRule, error) {
	query := `
		SELECT id, name, description, version, factor, expression, bands, enabled
		FROM signal_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.SignalRule
	for rows.Next() {
		var cfg domain.SignalRule
		var description, bands sql.NullString
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &description, &cfg.Version,
			&cfg.Factor, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Description = description.String
		cfg.Enabled = enabled == 1
		if bands.Valid && bands.String != "" {
			json.Unmarshal([]byte(bands.String), &cfg.Bands)
		}
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// ---- Stats ----

// Stats aggregates the engine counters.
func (r *SQLRepository) Stats(ctx context.Context) (*domain.RiskStats, error) {
	stats := &domain.RiskStats{
		RiskDistribution: make(map[domain.RiskLevel]int),
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT risk_level, COUNT(*) FROM risk_profiles GROUP BY risk_level`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var level domain.RiskLevel
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.RiskDistribution[level] = count
		stats.TotalRiskProfiles += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Band midpoints approximate the average score of each level.
	midpoints := map[domain.RiskLevel]float64{
		domain.RiskLow: 17, domain.RiskMedium: 38,
		domain.RiskHigh: 63, domain.RiskCritical: 88,
	}
	if stats.TotalRiskProfiles > 0 {
		var sum float64
		for level, count := range stats.RiskDistribution {
			sum += midpoints[level] * float64(count)
		}
		stats.AverageRiskScore = sum / float64(stats.TotalRiskProfiles)
	}

	var totalChecks, compliantChecks int
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			   COALESCE(SUM(CASE WHEN status IN ('compliant', 'exempt') THEN 1 ELSE 0 END), 0)
		FROM compliance_checks
	`).Scan(&totalChecks, &compliantChecks)
	if err != nil {
		return nil, err
	}
	if totalChecks > 0 {
		stats.ComplianceRate = float64(compliantChecks) / float64(totalChecks)
	}

	var activeViolations int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM policy_violations WHERE status = 'active'`).Scan(&activeViolations)
	if err != nil {
		return nil, err
	}
	if totalChecks > 0 {
		stats.ViolationRate = float64(activeViolations) / float64(totalChecks)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			   COALESCE(SUM(CASE WHEN status = 'executed' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM enforcement_actions
	`).Scan(
		&stats.EnforcementActions.Total,
		&stats.EnforcementActions.Successful,
		&stats.EnforcementActions.Failed,
		&stats.EnforcementActions.Pending,
	)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// isConflict reports whether the error is a uniqueness violation from
// either driver.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
