package rating

// Default model parameters.
const (
	defaultKFixed     = 16
	defaultKCoarse    = 32
	defaultKFine      = 16
	defaultTransition = 85.0
	defaultCenter     = 1000.0
	defaultTau        = 0.5
	defaultEpsilon    = 1e-6
)

type settings struct {
	kFixed     float64
	kCoarse    float64
	kFine      float64
	transition float64
	center     float64
	tau        float64
	epsilon    float64
}

func defaultSettings() settings {
	return settings{
		kFixed:     defaultKFixed,
		kCoarse:    defaultKCoarse,
		kFine:      defaultKFine,
		transition: defaultTransition,
		center:     defaultCenter,
		tau:        defaultTau,
		epsilon:    defaultEpsilon,
	}
}

// Option applies a configuration option to New.
type Option func(*settings)

// WithKFixed sets K for the fixed model.
func WithKFixed(k float64) Option {
	return func(s *settings) {
		if k > 0 {
			s.kFixed = k
		}
	}
}

// WithKCoarse sets the dynamic model's K below the transition threshold.
func WithKCoarse(k float64) Option {
	return func(s *settings) {
		if k > 0 {
			s.kCoarse = k
		}
	}
}

// WithKFine sets the dynamic model's K at or above the transition threshold.
func WithKFine(k float64) Option {
	return func(s *settings) {
		if k > 0 {
			s.kFine = k
		}
	}
}

// WithTransition sets the reliability percentage at which the dynamic model
// switches from coarse to fine K.
func WithTransition(pct float64) Option {
	return func(s *settings) {
		if pct > 0 && pct < 100 {
			s.transition = pct
		}
	}
}

// WithCenter sets the rating that maps to mu=0 on the Glicko-2 scale. The
// session baseline is the natural choice.
func WithCenter(r float64) Option {
	return func(s *settings) {
		s.center = r
	}
}

// WithTau sets the Glicko-2 system constant constraining volatility change.
func WithTau(tau float64) Option {
	return func(s *settings) {
		if tau > 0 {
			s.tau = tau
		}
	}
}

// WithEpsilon sets the convergence tolerance of the volatility solver.
func WithEpsilon(eps float64) Option {
	return func(s *settings) {
		if eps > 0 {
			s.epsilon = eps
		}
	}
}
