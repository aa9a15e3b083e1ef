// Package rules provides the CEL-Go based signal rule engine. Signal rules
// are admin-configured expressions over booking, renter, and product facts;
// flagged rules raise risk factors during assessment.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/peershare/warden/internal/domain"
)

// Engine is the CEL-based signal rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.SignalRule
	Program cel.Program
}

// NewEngine creates a new signal rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with the assessment fact variables
	env, err := cel.NewEnv(
		cel.Variable("facts", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("booking_value", cel.DoubleType),
		cel.Variable("daily_rate", cel.DoubleType),
		cel.Variable("duration_days", cel.IntType),
		cel.Variable("renter_age", cel.IntType),
		cel.Variable("account_age_days", cel.IntType),
		cel.Variable("prior_violations", cel.IntType),
		cel.Variable("booking_velocity", cel.IntType),
		cel.Variable("verified", cel.BoolType),
		cel.Variable("season", cel.StringType),
		cel.Variable("category_id", cel.StringType),
		cel.Variable("country_id", cel.StringType),
		cel.Variable("risk_level", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.SignalRule) error {
	if cfg == nil {
		return fmt.Errorf("%w: signal rule is required", domain.ErrValidation)
	}
	if !cfg.Factor.Valid() {
		return fmt.Errorf("%w: unknown factor %q", domain.ErrValidation, cfg.Factor)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.SignalRule) error {
	if !cfg.Factor.Valid() {
		return fmt.Errorf("%w: unknown factor %q", domain.ErrValidation, cfg.Factor)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.SignalRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Activation holds the fact values signal rules are evaluated against.
type Activation struct {
	BookingValue    float64
	DailyRate       float64
	DurationDays    int
	RenterAge       int
	AccountAgeDays  int
	PriorViolations int
	BookingVelocity int
	Verified        bool
	Season          string
	CategoryID      string
	CountryID       string
	RiskLevel       domain.RiskLevel
	Additional      map[string]any
}

// EvaluateAll evaluates all loaded rules in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, act *Activation) []domain.SignalResult {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	facts := map[string]any{
		"booking_value":    act.BookingValue,
		"daily_rate":       act.DailyRate,
		"duration_days":    act.DurationDays,
		"renter_age":       act.RenterAge,
		"account_age_days": act.AccountAgeDays,
		"prior_violations": act.PriorViolations,
		"booking_velocity": act.BookingVelocity,
		"verified":         act.Verified,
		"season":           act.Season,
		"category_id":      act.CategoryID,
		"country_id":       act.CountryID,
		"risk_level":       string(act.RiskLevel),
	}

	activation := map[string]any{
		"facts":            facts,
		"booking_value":    act.BookingValue,
		"daily_rate":       act.DailyRate,
		"duration_days":    act.DurationDays,
		"renter_age":       act.RenterAge,
		"account_age_days": act.AccountAgeDays,
		"prior_violations": act.PriorViolations,
		"booking_velocity": act.BookingVelocity,
		"verified":         act.Verified,
		"season":           act.Season,
		"category_id":      act.CategoryID,
		"country_id":       act.CountryID,
		"risk_level":       string(act.RiskLevel),
	}

	for k, v := range act.Additional {
		activation[k] = v
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.SignalResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.SignalResult {
	start := time.Now()

	result := domain.SignalResult{
		RuleID: rule.Config.ID,
		Factor: rule.Config.Factor,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.SignalOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score

	result.Outcome, result.Reason = matchBand(score, rule.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order: lower inclusive, upper exclusive,
// except when upper is nil (meaning infinity).
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		hasUpper := band.UpperLimit != nil
		upper := float64(1e9)

		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if hasUpper {
			upper = *band.UpperLimit
		}

		if score >= lower && (!hasUpper || score < upper) {
			return band.Outcome, band.Reason
		}
	}

	// Default to pass if no band matches
	return domain.SignalOutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.SignalRule) error {
	newRules := make(map[string]*CompiledRule)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.SignalRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.SignalRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.SignalRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", domain.ErrValidation, cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, int, or double, got %s", domain.ErrValidation, cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
