// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Keys are flat snake_case, mirrored by PAIRANK_* environment variables.
//   - New returns the defaults; Load layers a YAML file and the environment
//     on top and validates the result.
package config

import (
	"fmt"
	"strings"

	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// MaxRankingsLimit caps GET /rankings?limit.
	MaxRankingsLimit int `koanf:"max_rankings_limit"`
	// RateLimitPerMinute bounds vote mutations per client IP; 0 disables.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
	// CORSAllowedOrigins lists origins allowed to call the API.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// DBPath is the SQLite database file; ":memory:" keeps state in memory.
	DBPath string `koanf:"db_path"`
	// MigrateOnStart applies pending schema migrations at startup.
	MigrateOnStart bool `koanf:"migrate_on_start"`
	// DedupeSize bounds the remembered vote request ids.
	DedupeSize int `koanf:"dedupe_size"`
	// ReplayCheckEvery verifies live ratings against a full replay every N
	// votes; 0 disables the check.
	ReplayCheckEvery int `koanf:"replay_check_every"`

	// RatingModel selects fixed, dynamic or glicko2.
	RatingModel    string  `koanf:"rating_model"`
	BaselineRating float64 `koanf:"baseline_rating"`
	KFixed         float64 `koanf:"k_fixed"`
	KCoarse        float64 `koanf:"k_coarse"`
	KFine          float64 `koanf:"k_fine"`

	GlickoInitialDeviation  float64 `koanf:"glicko_initial_deviation"`
	GlickoInitialVolatility float64 `koanf:"glicko_initial_volatility"`
	GlickoTau               float64 `koanf:"glicko_tau"`

	ThresholdTransition float64 `koanf:"threshold_transition"`
	ThresholdCeiling    float64 `koanf:"threshold_ceiling"`
	DevelopmentStart    float64 `koanf:"development_start"`
	RefinementStart     float64 `koanf:"refinement_start"`

	// CompetitivenessWindow limits opponents to this many rating points
	// once reliability passes the transition threshold.
	CompetitivenessWindow float64 `koanf:"competitiveness_window"`
	// SelectionSeed seeds pair selection; 0 picks a random seed.
	SelectionSeed uint64 `koanf:"selection_seed"`

	CurveBase                 float64 `koanf:"curve_base"`
	CurveInitialAmplitude     float64 `koanf:"curve_initial_amplitude"`
	CurveInitialScale         float64 `koanf:"curve_initial_scale"`
	CurveDevelopmentAmplitude float64 `koanf:"curve_development_amplitude"`
	CurveDevelopmentScale     float64 `koanf:"curve_development_scale"`
	CurveRefinementAmplitude  float64 `koanf:"curve_refinement_amplitude"`
	CurveRefinementScale      float64 `koanf:"curve_refinement_scale"`
	CurveSizeExponent         float64 `koanf:"curve_size_exponent"`
	CurveReferenceItems       float64 `koanf:"curve_reference_items"`
}

// New returns a Config populated with defaults.
func New() *Config {
	curve := reliability.DefaultCurve()
	th := reliability.DefaultThresholds()
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		MaxRankingsLimit:   100,
		RateLimitPerMinute: 600,
		CORSAllowedOrigins: []string{"*"},

		DBPath:           "pairank.db",
		MigrateOnStart:   true,
		DedupeSize:       50_000,
		ReplayCheckEvery: 0,

		RatingModel:    string(rating.KindDynamic),
		BaselineRating: 1000,
		KFixed:         16,
		KCoarse:        32,
		KFine:          16,

		GlickoInitialDeviation:  350,
		GlickoInitialVolatility: 0.06,
		GlickoTau:               0.5,

		ThresholdTransition: th.Transition,
		ThresholdCeiling:    th.Ceiling,
		DevelopmentStart:    th.DevelopmentStart,
		RefinementStart:     th.RefinementStart,

		CompetitivenessWindow: 100,

		CurveBase:                 curve.Base,
		CurveInitialAmplitude:     curve.Initial.Amplitude,
		CurveInitialScale:         curve.Initial.Scale,
		CurveDevelopmentAmplitude: curve.Development.Amplitude,
		CurveDevelopmentScale:     curve.Development.Scale,
		CurveRefinementAmplitude:  curve.Refinement.Amplitude,
		CurveRefinementScale:      curve.Refinement.Scale,
		CurveSizeExponent:         curve.SizeExponent,
		CurveReferenceItems:       curve.ReferenceItems,
	}
}

// Curve returns the configured reliability curve.
func (c *Config) Curve() reliability.Curve {
	return reliability.Curve{
		Base:           c.CurveBase,
		Initial:        reliability.Component{Amplitude: c.CurveInitialAmplitude, Scale: c.CurveInitialScale},
		Development:    reliability.Component{Amplitude: c.CurveDevelopmentAmplitude, Scale: c.CurveDevelopmentScale},
		Refinement:     reliability.Component{Amplitude: c.CurveRefinementAmplitude, Scale: c.CurveRefinementScale},
		SizeExponent:   c.CurveSizeExponent,
		ReferenceItems: c.CurveReferenceItems,
	}
}

// Thresholds returns the configured reliability thresholds.
func (c *Config) Thresholds() reliability.Thresholds {
	return reliability.Thresholds{
		Transition:       c.ThresholdTransition,
		Ceiling:          c.ThresholdCeiling,
		DevelopmentStart: c.DevelopmentStart,
		RefinementStart:  c.RefinementStart,
	}
}

// InitialRating is the rating new items start from.
func (c *Config) InitialRating() model.Rating {
	return model.Rating{
		Value:      c.BaselineRating,
		Deviation:  c.GlickoInitialDeviation,
		Volatility: c.GlickoInitialVolatility,
	}
}

// RatingOptions returns the rating.New options for this configuration.
func (c *Config) RatingOptions() []rating.Option {
	return []rating.Option{
		rating.WithKFixed(c.KFixed),
		rating.WithKCoarse(c.KCoarse),
		rating.WithKFine(c.KFine),
		rating.WithTransition(c.ThresholdTransition),
		rating.WithCenter(c.BaselineRating),
		rating.WithTau(c.GlickoTau),
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := rating.ParseKind(c.RatingModel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.KFixed <= 0 || c.KCoarse <= 0 || c.KFine <= 0 {
		return fmt.Errorf("%w: K factors must be positive", ErrInvalidConfig)
	}
	if c.GlickoInitialDeviation <= 0 || c.GlickoInitialVolatility <= 0 || c.GlickoTau <= 0 {
		return fmt.Errorf("%w: glicko parameters must be positive", ErrInvalidConfig)
	}
	if c.CompetitivenessWindow <= 0 {
		return fmt.Errorf("%w: competitiveness_window must be positive", ErrInvalidConfig)
	}
	if c.MaxRankingsLimit < 1 {
		return fmt.Errorf("%w: max_rankings_limit must be positive", ErrInvalidConfig)
	}
	if c.RateLimitPerMinute < 0 || c.ReplayCheckEvery < 0 || c.DedupeSize < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}
	if _, err := reliability.New(reliability.WithCurve(c.Curve()), reliability.WithThresholds(c.Thresholds())); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
