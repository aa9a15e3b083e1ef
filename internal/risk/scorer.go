// Package risk implements the risk scoring engine: four weighted factor
// scores combined into a 0-100 overall score and a risk level.
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/history"
	"github.com/peershare/warden/internal/rules"
)

// Band ceilings per declared risk level. A product's score starts at the
// band midpoint and risk factor tags push it toward the ceiling.
var bandMidpoint = map[domain.RiskLevel]int{
	domain.RiskLow:      17,
	domain.RiskMedium:   38,
	domain.RiskHigh:     63,
	domain.RiskCritical: 88,
}

var bandCeiling = map[domain.RiskLevel]int{
	domain.RiskLow:      25,
	domain.RiskMedium:   50,
	domain.RiskHigh:     75,
	domain.RiskCritical: 100,
}

// Scorer computes risk assessments. Weights and thresholds come from the
// injected ScoringConfig, never from embedded constants.
type Scorer struct {
	cfg     domain.ScoringConfig
	facts   domain.FactsProvider
	repo    domain.Repository
	cache   domain.Cache
	history *history.Service
	signals *rules.Engine
	now     func() time.Time
}

// NewScorer creates a scorer. The signals engine and cache are optional.
func NewScorer(cfg domain.ScoringConfig, facts domain.FactsProvider, repo domain.Repository, cache domain.Cache, hist *history.Service, signals *rules.Engine) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{
		cfg:     cfg,
		facts:   facts,
		repo:    repo,
		cache:   cache,
		history: hist,
		signals: signals,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the scorer's clock. Used by tests.
func (s *Scorer) SetClock(now func() time.Time) {
	s.now = now
}

// AssessInput identifies the rental attempt to score.
type AssessInput struct {
	ProductID              string `json:"productId"`
	RenterID               string `json:"renterId"`
	BookingID              string `json:"bookingId,omitempty"`
	IncludeRecommendations bool   `json:"includeRecommendations,omitempty"`
}

// Assess computes a risk assessment for a (product, renter, booking?) triple.
// Returns ErrNotFound when the product or renter does not exist.
func (s *Scorer) Assess(ctx context.Context, in AssessInput) (*domain.RiskAssessment, error) {
	if in.ProductID == "" || in.RenterID == "" {
		return nil, fmt.Errorf("%w: productId and renterId are required", domain.ErrValidation)
	}

	product, err := s.facts.Product(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", in.ProductID, err)
	}
	renter, err := s.facts.Renter(ctx, in.RenterID)
	if err != nil {
		return nil, fmt.Errorf("renter %s: %w", in.RenterID, err)
	}

	var booking *domain.Booking
	if in.BookingID != "" {
		booking, err = s.facts.Booking(ctx, in.BookingID)
		if err != nil {
			return nil, fmt.Errorf("booking %s: %w", in.BookingID, err)
		}
	}

	profile, err := s.profile(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	norms, err := s.facts.CategoryNorms(ctx, profile.CategoryID)
	if err != nil {
		// Missing norms are not fatal; booking and seasonal scores fall
		// back to their baselines.
		norms = nil
	}

	now := s.now()
	season := SeasonFor(now)

	var hist *history.Signals
	if s.history != nil {
		window := time.Duration(s.cfg.VelocityWindowSecs) * time.Second
		hist, err = s.history.Get(ctx, in.RenterID, window)
		if err != nil {
			return nil, err
		}
	}

	factors := domain.FactorScores{
		Product:  s.productScore(profile),
		Renter:   s.renterScore(renter, hist, now),
		Booking:  s.bookingScore(booking, norms),
		Seasonal: s.seasonalScore(norms, season),
	}

	tags := append([]string(nil), profile.RiskFactors...)
	var recommendations []string

	// Signal rules raise individual factors and contribute recommendations.
	if s.signals != nil && s.signals.RulesCount() > 0 {
		act := &rules.Activation{
			DailyRate:      product.DailyRate,
			RenterAge:      renter.Age,
			AccountAgeDays: int(now.Sub(renter.AccountCreatedAt).Hours() / 24),
			Verified:       renter.Verified,
			Season:         season,
			CategoryID:     profile.CategoryID,
			RiskLevel:      profile.RiskLevel,
		}
		if booking != nil {
			act.BookingValue = booking.TotalValue
			act.DurationDays = booking.DurationDays()
			act.CountryID = booking.CountryID
		}
		if hist != nil {
			act.PriorViolations = hist.PriorViolations
			act.BookingVelocity = hist.BookingVelocity
		}

		for _, res := range s.signals.EvaluateAll(ctx, act) {
			if res.Outcome != domain.SignalOutcomeFlag {
				continue
			}
			switch res.Factor {
			case domain.FactorProduct:
				factors.Product = clamp(factors.Product + s.cfg.FactorIncrement)
			case domain.FactorRenter:
				factors.Renter = clamp(factors.Renter + s.cfg.FactorIncrement)
			case domain.FactorBooking:
				factors.Booking = clamp(factors.Booking + s.cfg.FactorIncrement)
			case domain.FactorSeasonal:
				factors.Seasonal = clamp(factors.Seasonal + s.cfg.FactorIncrement)
			}
			tags = append(tags, res.RuleID)
			if res.Reason != "" {
				recommendations = append(recommendations, res.Reason)
			}
		}
	}

	overall := Combine(s.cfg, factors)

	status := domain.StatusPending
	if profile.Exempt {
		status = domain.StatusExempt
	}

	assessment := &domain.RiskAssessment{
		ID:               uuid.New().String(),
		ProductID:        in.ProductID,
		RenterID:         in.RenterID,
		BookingID:        in.BookingID,
		OverallRiskScore: overall,
		RiskLevel:        domain.LevelForScore(overall),
		Factors:          factors,
		FactorTags:       tags,
		Mandatory:        profile.Mandatory,
		ComplianceStatus: status,
		AssessmentDate:   now,
		ExpiresAt:        now.Add(time.Duration(s.cfg.AssessmentTTLHours) * time.Hour),
	}

	if in.IncludeRecommendations {
		assessment.Recommendations = append(recommendations, s.recommend(overall, profile)...)
	}

	return assessment, nil
}

// Combine applies the configured weights to the factor scores, rounds to
// the nearest integer, and clamps to [0,100].
func Combine(cfg domain.ScoringConfig, f domain.FactorScores) int {
	weighted := cfg.ProductWeight*float64(f.Product) +
		cfg.RenterWeight*float64(f.Renter) +
		cfg.BookingWeight*float64(f.Booking) +
		cfg.SeasonalWeight*float64(f.Seasonal)
	return clamp(int(math.Round(weighted)))
}

// productScore starts at the declared band's midpoint and adds a fixed
// increment per risk factor tag, capped at the band ceiling.
func (s *Scorer) productScore(p *domain.RiskProfile) int {
	score := bandMidpoint[p.RiskLevel]
	ceiling := bandCeiling[p.RiskLevel]

	score += len(p.RiskFactors) * s.cfg.FactorIncrement
	if score > ceiling {
		score = ceiling
	}
	return score
}

// renterScore derives a score from renter history. Absence of history
// yields the configured neutral mid-band score.
func (s *Scorer) renterScore(r *domain.Renter, hist *history.Signals, now time.Time) int {
	hasHistory := hist != nil && hist.HasHistory
	if !hasHistory && r.Verified && !r.AccountCreatedAt.IsZero() {
		// Verified long-standing account with no ledger history still
		// counts as known-good history.
		if now.Sub(r.AccountCreatedAt) > 90*24*time.Hour {
			hasHistory = true
		}
	}
	if !hasHistory {
		return s.cfg.NeutralRenterScore
	}

	score := 10

	if hist != nil {
		score += hist.PriorViolations * 15
		if hist.BookingVelocity > s.cfg.VelocityThreshold {
			score += (hist.BookingVelocity - s.cfg.VelocityThreshold) * 10
		}
	}

	if !r.Verified {
		score += 20
	}

	accountAge := now.Sub(r.AccountCreatedAt)
	switch {
	case accountAge < 30*24*time.Hour:
		score += 15
	case accountAge < 90*24*time.Hour:
		score += 5
	}

	return clamp(score)
}

// bookingScore compares duration and value against category norms; longer
// and higher-value bookings score higher.
func (s *Scorer) bookingScore(b *domain.Booking, norms *domain.CategoryNorms) int {
	score := 20 // baseline
	if b == nil {
		return score
	}

	if norms != nil && norms.TypicalDurationDays > 0 {
		score += ratioPoints(float64(b.DurationDays()) / norms.TypicalDurationDays)
	}
	if norms != nil && norms.TypicalValue > 0 {
		score += ratioPoints(b.TotalValue / norms.TypicalValue)
	}

	return clamp(score)
}

func ratioPoints(ratio float64) int {
	switch {
	case ratio >= 3:
		return 40
	case ratio >= 2:
		return 30
	case ratio >= 1.5:
		return 20
	case ratio >= 1:
		return 10
	default:
		return 0
	}
}

// seasonalScore reads the category's seasonal risk calendar. Zero when no
// seasonal rule applies.
func (s *Scorer) seasonalScore(norms *domain.CategoryNorms, season string) int {
	if norms == nil || len(norms.SeasonalRisk) == 0 {
		return 0
	}
	return clamp(norms.SeasonalRisk[season])
}

// recommend generates threshold recommendations. Recommendations only
// tighten the profile's requirements, never weaken them.
func (s *Scorer) recommend(score int, p *domain.RiskProfile) []string {
	var recs []string
	if score >= s.cfg.RecommendInspectionAt && !p.Mandatory.InspectionRequired {
		recs = append(recs, "schedule a mandatory inspection before handover")
	}
	if score >= s.cfg.RecommendInsuranceAt && !p.Mandatory.InsuranceRequired {
		recs = append(recs, "require renter insurance for this booking")
	}
	if domain.LevelForScore(score) == domain.RiskCritical {
		recs = append(recs, "flag for manual review before approval")
	}
	return recs
}

// profile loads the product's risk profile through the cache.
func (s *Scorer) profile(ctx context.Context, productID string) (*domain.RiskProfile, error) {
	if s.cache != nil {
		if p, err := s.cache.GetProfile(ctx, productID); err == nil && p != nil {
			return p, nil
		}
	}

	p, err := s.repo.GetRiskProfile(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("risk profile for product %s: %w", productID, err)
	}

	if s.cache != nil {
		_ = s.cache.SetProfile(ctx, productID, p, 5*time.Minute)
	}

	return p, nil
}

// SeasonFor maps a time to its northern-hemisphere season name.
func SeasonFor(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
