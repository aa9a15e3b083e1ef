package domain

import (
	"fmt"
	"time"
)

// Config holds the complete Warden configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Policy configuration
	Scoring     ScoringConfig     `json:"scoring"`
	Enforcement EnforcementConfig `json:"enforcement"`

	// Facts provider
	Facts FactsConfig `json:"facts"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// FactsConfig selects the marketplace facts provider.
type FactsConfig struct {
	// Type is "http" (marketplace core service) or "memory" (dev/tests).
	Type string `json:"type"`

	// BaseURL of the marketplace core service for the http provider.
	BaseURL string `json:"baseUrl"`

	// TimeoutSecs bounds each facts request.
	TimeoutSecs int `json:"timeoutSecs"`
}

// ScoringConfig carries the risk scoring policy. Weights and thresholds
// are tunable policy, not hard-coded business law; tests substitute
// deterministic values.
type ScoringConfig struct {
	// Factor weights. Must sum to 1.0.
	ProductWeight  float64 `json:"productWeight"`
	RenterWeight   float64 `json:"renterWeight"`
	BookingWeight  float64 `json:"bookingWeight"`
	SeasonalWeight float64 `json:"seasonalWeight"`

	// Per-factor increment added when a profile risk factor tag or a
	// flagged signal rule raises a factor, capped at the band ceiling.
	FactorIncrement int `json:"factorIncrement"`

	// Recommendation thresholds on the overall score.
	RecommendInspectionAt int `json:"recommendInspectionAt"`
	RecommendInsuranceAt  int `json:"recommendInsuranceAt"`

	// Neutral renter score used when no history is available.
	NeutralRenterScore int `json:"neutralRenterScore"`

	// AssessmentTTLHours bounds how long an assessment stays valid.
	AssessmentTTLHours int `json:"assessmentTtlHours"`

	// VelocityWindowSecs is the window for renter booking-velocity counters.
	VelocityWindowSecs int `json:"velocityWindowSecs"`
	// VelocityThreshold is the booking count above which velocity raises
	// renter risk.
	VelocityThreshold int `json:"velocityThreshold"`
}

// Validate rejects malformed scoring policy at load time.
func (c ScoringConfig) Validate() error {
	sum := c.ProductWeight + c.RenterWeight + c.BookingWeight + c.SeasonalWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: scoring weights must sum to 1.0, got %.3f", ErrValidation, sum)
	}
	if c.FactorIncrement < 0 {
		return fmt.Errorf("%w: factorIncrement must be >= 0", ErrValidation)
	}
	if c.AssessmentTTLHours <= 0 {
		return fmt.Errorf("%w: assessmentTtlHours must be > 0", ErrValidation)
	}
	if c.NeutralRenterScore < 0 || c.NeutralRenterScore > 100 {
		return fmt.Errorf("%w: neutralRenterScore must be in [0,100]", ErrValidation)
	}
	return nil
}

// EnforcementConfig carries enforcement policy knobs.
type EnforcementConfig struct {
	// DefaultDeadlineHours applied to require_* actions when the profile
	// declares no compliance deadline.
	DefaultDeadlineHours int `json:"defaultDeadlineHours"`

	// EscalationPenalty is the penalty amount attached to escalation
	// violations.
	EscalationPenalty float64 `json:"escalationPenalty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// DefaultScoringConfig returns the policy defaults. The weights are a
// tunable default, injected at construction so tests can substitute
// deterministic values.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ProductWeight:         0.40,
		RenterWeight:          0.25,
		BookingWeight:         0.20,
		SeasonalWeight:        0.15,
		FactorIncrement:       3,
		RecommendInspectionAt: 75,
		RecommendInsuranceAt:  60,
		NeutralRenterScore:    50,
		AssessmentTTLHours:    24,
		VelocityWindowSecs:    86400,
		VelocityThreshold:     3,
	}
}

// DefaultConfig returns a single-node configuration: SQLite, in-memory
// cache, channel bus, in-memory facts.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./warden.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: DefaultScoringConfig(),
		Enforcement: EnforcementConfig{
			DefaultDeadlineHours: 48,
			EscalationPenalty:    100,
		},
		Facts: FactsConfig{
			Type:        "memory",
			TimeoutSecs: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "warden",
		},
	}
}

// DistributedConfig returns a configuration for a multi-node deployment:
// PostgreSQL, Redis two-phase cache, NATS bus, HTTP facts provider.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "warden",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Facts = FactsConfig{
		Type:        "http",
		BaseURL:     "http://localhost:9000",
		TimeoutSecs: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
