// Package domain defines the core interfaces and types for Warden.
package domain

import (
	"context"
	"time"
)

// Page bounds a paginated listing.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps page bounds to sane defaults.
func (p Page) Normalize() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// RiskProfileFilter selects risk profiles in listings.
type RiskProfileFilter struct {
	CategoryID       string
	RiskLevel        RiskLevel
	EnforcementLevel EnforcementLevel
}

// ViolationFilter selects violations in listings.
type ViolationFilter struct {
	BookingID string
	ProductID string
	RenterID  string
	Status    ViolationStatus
	Severity  Severity
	Type      ViolationType
}

// Repository defines the persistence interface for the enforcement engine.
type Repository interface {
	// Risk profile operations. SaveRiskProfile returns ErrConflict when a
	// profile for the product already exists; UpdateRiskProfile returns
	// ErrNotFound when it does not.
	SaveRiskProfile(ctx context.Context, p *RiskProfile) error
	UpdateRiskProfile(ctx context.Context, p *RiskProfile) error
	GetRiskProfile(ctx context.Context, productID string) (*RiskProfile, error)
	ListRiskProfiles(ctx context.Context, filter RiskProfileFilter, page Page) ([]*RiskProfile, error)

	// Compliance check operations. SaveComplianceCheck upserts by booking.
	SaveComplianceCheck(ctx context.Context, c *ComplianceCheck) error
	GetComplianceCheck(ctx context.Context, bookingID string) (*ComplianceCheck, error)

	// Enforcement action operations.
	SaveEnforcementAction(ctx context.Context, a *EnforcementAction) error
	ListEnforcementActions(ctx context.Context, checkID string) ([]EnforcementAction, error)

	// Violation ledger operations. InsertViolation returns ErrConflict
	// when an active violation of the same type already exists for the
	// booking (atomic check-and-insert, never read-then-write).
	InsertViolation(ctx context.Context, v *PolicyViolation) error
	GetViolation(ctx context.Context, id string) (*PolicyViolation, error)
	UpdateViolation(ctx context.Context, v *PolicyViolation) error
	ListViolations(ctx context.Context, filter ViolationFilter, page Page) ([]*PolicyViolation, error)
	CountViolationsByRenter(ctx context.Context, renterID string) (int, error)

	// Regulation record operations.
	UpsertRegulation(ctx context.Context, r *Regulation) error
	GetRegulation(ctx context.Context, categoryID, countryID string) (*Regulation, error)

	// Signal rule operations.
	SaveSignalRule(ctx context.Context, rule *SignalRule) error
	ListSignalRules(ctx context.Context) ([]*SignalRule, error)

	// Stats aggregates counters for the dashboard surface.
	Stats(ctx context.Context) (*RiskStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
