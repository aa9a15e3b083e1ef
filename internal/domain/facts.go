package domain

import (
	"context"
	"time"
)

// Product is the read-only product snapshot the engine needs for a decision.
type Product struct {
	ID         string  `json:"id"`
	CategoryID string  `json:"categoryId"`
	OwnerID    string  `json:"ownerId"`
	Name       string  `json:"name"`
	DailyRate  float64 `json:"dailyRate"`
}

// Renter is the read-only renter snapshot.
type Renter struct {
	ID                    string    `json:"id"`
	Age                   int       `json:"age"`
	AccountCreatedAt      time.Time `json:"accountCreatedAt"`
	Verified              bool      `json:"verified"`
	HasLicense            bool      `json:"hasLicense"`
	LicenseTypes          []string  `json:"licenseTypes,omitempty"`
	InsuranceCoverage     float64   `json:"insuranceCoverage"` // 0 = no insurance
	BackgroundCheckStatus string    `json:"backgroundCheckStatus,omitempty"`
	Documentation         []string  `json:"documentation,omitempty"`
}

// Booking is the read-only booking snapshot.
type Booking struct {
	ID                  string    `json:"id"`
	ProductID           string    `json:"productId"`
	RenterID            string    `json:"renterId"`
	CountryID           string    `json:"countryId"`
	StartDate           time.Time `json:"startDate"`
	EndDate             time.Time `json:"endDate"`
	TotalValue          float64   `json:"totalValue"`
	InspectionCompleted bool      `json:"inspectionCompleted"`
	Status              string    `json:"status"` // active, completed, cancelled
}

// DurationDays returns the booking length in whole days, minimum 1.
func (b *Booking) DurationDays() int {
	days := int(b.EndDate.Sub(b.StartDate).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// Terminal reports whether the booking reached a terminal state. Compliance
// checks for terminal bookings are frozen.
func (b *Booking) Terminal() bool {
	return b.Status == "completed" || b.Status == "cancelled"
}

// CategoryNorms are the category baselines the booking risk score is
// measured against, plus the category's seasonal risk calendar.
type CategoryNorms struct {
	CategoryID          string         `json:"categoryId"`
	TypicalDurationDays float64        `json:"typicalDurationDays"`
	TypicalValue        float64        `json:"typicalValue"`
	SeasonalRisk        map[string]int `json:"seasonalRisk,omitempty"` // season -> score [0,100]
}

// FactsProvider supplies read-only marketplace facts. Implementations
// return ErrNotFound for unknown IDs and ErrDependency when the backing
// service is unavailable.
type FactsProvider interface {
	Product(ctx context.Context, id string) (*Product, error)
	Renter(ctx context.Context, id string) (*Renter, error)
	Booking(ctx context.Context, id string) (*Booking, error)
	CategoryNorms(ctx context.Context, categoryID string) (*CategoryNorms, error)
}

// ActionExecutor executes one enforcement action variant. The engine holds
// a closed registry with one executor per ActionType; execution failures
// mark the action failed, never retried by the engine.
type ActionExecutor interface {
	Type() ActionType
	Execute(ctx context.Context, action *EnforcementAction, check *ComplianceCheck) error
}
