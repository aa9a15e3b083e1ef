package repository

// Schema definitions for the Warden database.
// Compatible with both SQLite and PostgreSQL.

const schemaRiskProfiles = `
CREATE TABLE IF NOT EXISTS risk_profiles (
    product_id TEXT PRIMARY KEY,
    category_id TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    mandatory TEXT NOT NULL,
    risk_factors TEXT,
    mitigation_strategies TEXT,
    enforcement_level TEXT NOT NULL,
    auto_enforcement INTEGER NOT NULL DEFAULT 0,
    grace_period_hours INTEGER NOT NULL DEFAULT 0,
    exempt INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_profiles_category ON risk_profiles(category_id);
CREATE INDEX IF NOT EXISTS idx_risk_profiles_level ON risk_profiles(risk_level);
`

const schemaComplianceChecks = `
CREATE TABLE IF NOT EXISTS compliance_checks (
    id TEXT PRIMARY KEY,
    booking_id TEXT NOT NULL UNIQUE,
    product_id TEXT NOT NULL,
    renter_id TEXT NOT NULL,
    is_compliant INTEGER NOT NULL DEFAULT 0,
    missing_requirements TEXT,
    compliance_score INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    grace_period_ends_at TIMESTAMP,
    grace_granted INTEGER NOT NULL DEFAULT 0,
    last_checked_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_compliance_checks_status ON compliance_checks(status);
CREATE INDEX IF NOT EXISTS idx_compliance_checks_product ON compliance_checks(product_id);
CREATE INDEX IF NOT EXISTS idx_compliance_checks_grace ON compliance_checks(status, grace_period_ends_at);
`

const schemaEnforcementActions = `
CREATE TABLE IF NOT EXISTS enforcement_actions (
    id TEXT PRIMARY KEY,
    check_id TEXT NOT NULL,
    booking_id TEXT NOT NULL,
    action_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    required_action TEXT,
    deadline TIMESTAMP,
    status TEXT NOT NULL,
    error TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enforcement_actions_check ON enforcement_actions(check_id);
CREATE INDEX IF NOT EXISTS idx_enforcement_actions_booking ON enforcement_actions(booking_id);
CREATE INDEX IF NOT EXISTS idx_enforcement_actions_status ON enforcement_actions(status);
`

// The partial unique index makes duplicate active violations a constraint
// violation, so idempotent recording is an atomic insert rather than a
// read-then-write.
const schemaPolicyViolations = `
CREATE TABLE IF NOT EXISTS policy_violations (
    id TEXT PRIMARY KEY,
    booking_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    renter_id TEXT NOT NULL,
    violation_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    description TEXT,
    detected_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP,
    resolution_actions TEXT,
    penalty_amount REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_policy_violations_active
    ON policy_violations(booking_id, violation_type) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_policy_violations_renter ON policy_violations(renter_id, status);
CREATE INDEX IF NOT EXISTS idx_policy_violations_product ON policy_violations(product_id);
CREATE INDEX IF NOT EXISTS idx_policy_violations_detected ON policy_violations(detected_at);
`

const schemaRegulations = `
CREATE TABLE IF NOT EXISTS regulations (
    category_id TEXT NOT NULL,
    country_id TEXT NOT NULL,
    is_allowed INTEGER NOT NULL DEFAULT 1,
    min_age_requirement INTEGER NOT NULL DEFAULT 0,
    requires_license INTEGER NOT NULL DEFAULT 0,
    license_types TEXT,
    max_rental_days INTEGER NOT NULL DEFAULT 0,
    mandatory_insurance INTEGER NOT NULL DEFAULT 0,
    min_coverage_amount REAL NOT NULL DEFAULT 0,
    requires_background_check INTEGER NOT NULL DEFAULT 0,
    documentation_required TEXT,
    seasonal_restrictions TEXT,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (category_id, country_id)
);
`

const schemaSignalRules = `
CREATE TABLE IF NOT EXISTS signal_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    factor TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_signal_rules_enabled ON signal_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRiskProfiles,
		schemaComplianceChecks,
		schemaEnforcementActions,
		schemaPolicyViolations,
		schemaRegulations,
		schemaSignalRules,
	}
}
