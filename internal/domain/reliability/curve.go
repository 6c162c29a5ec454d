package reliability

import "math"

// Component is one saturating term A*(1-exp(-p/Scale)) of the curve.
type Component struct {
	Amplitude float64
	Scale     float64
}

func (c Component) at(p float64) float64 {
	return c.Amplitude * (1 - math.Exp(-p/c.Scale))
}

// Curve is the calibrated reliability curve. Progress is
//
//	p = votes / (items * (items/ReferenceItems)^SizeExponent)
//
// and the reliability is Base plus the three saturating components. The size
// exponent makes larger collections need proportionally more votes per item.
type Curve struct {
	Base           float64
	Initial        Component
	Development    Component
	Refinement     Component
	SizeExponent   float64
	ReferenceItems float64
}

// DefaultCurve returns the curve calibrated against synthetic ground truth
// sessions: at 20 items it crosses 85% just below 100 votes and approaches
// 99.5% asymptotically.
func DefaultCurve() Curve {
	return Curve{
		Base:           50,
		Initial:        Component{Amplitude: 25, Scale: 1.4},
		Development:    Component{Amplitude: 20, Scale: 7},
		Refinement:     Component{Amplitude: 4.5, Scale: 35},
		SizeExponent:   0.15,
		ReferenceItems: 20,
	}
}

// Asymptote is the value the curve approaches as votes grow without bound.
func (c Curve) Asymptote() float64 {
	return c.Base + c.Initial.Amplitude + c.Development.Amplitude + c.Refinement.Amplitude
}

// Progress returns the normalized vote progress p for a collection.
func (c Curve) Progress(totalVotes, itemCount int) float64 {
	n := float64(itemCount)
	return float64(totalVotes) / (n * math.Pow(n/c.ReferenceItems, c.SizeExponent))
}

// Value evaluates the curve at progress p.
func (c Curve) Value(p float64) float64 {
	return c.Base + c.Initial.at(p) + c.Development.at(p) + c.Refinement.at(p)
}

func (c Curve) valid() bool {
	for _, comp := range [...]Component{c.Initial, c.Development, c.Refinement} {
		if comp.Amplitude < 0 || comp.Scale <= 0 {
			return false
		}
	}
	return c.Base >= 0 && c.Asymptote() < 100 && c.ReferenceItems > 0 && c.SizeExponent >= 0
}

// Thresholds are the reliability percentages the session reacts to.
type Thresholds struct {
	Transition       float64 // dynamic K switches coarse to fine, pairing becomes competitive
	Ceiling          float64 // ranking considered reliable
	DevelopmentStart float64 // phase boundary initial -> development
	RefinementStart  float64 // phase boundary development -> refinement
}

// DefaultThresholds returns the standard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Transition:       85,
		Ceiling:          94,
		DevelopmentStart: 75,
		RefinementStart:  90,
	}
}

func (t Thresholds) valid(asymptote float64) bool {
	return t.DevelopmentStart > 0 &&
		t.DevelopmentStart <= t.RefinementStart &&
		t.Transition > 0 && t.Transition <= t.Ceiling &&
		t.Ceiling < asymptote
}
