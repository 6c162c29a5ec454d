package rating

import (
	"fmt"
	"math"

	"github.com/okian/pairank/internal/domain/model"
)

// Glicko-2 constants (paper values).
const (
	glickoScale      = 173.7178 // rating scale between r and mu
	maxSolverSteps   = 100
	maxBracketSteps  = 1000
	minimumDeviation = 1e-9
)

// Glicko2 rates every comparison as a one-game rating period for each side.
// Both sides are updated from their pre-comparison state.
type Glicko2 struct {
	Center  float64 // rating mapped to mu = 0
	Tau     float64 // volatility change constraint
	Epsilon float64 // volatility solver tolerance
}

// Kind implements Model.
func (g *Glicko2) Kind() Kind { return KindGlicko2 }

// Update implements Model.
func (g *Glicko2) Update(a, b model.Rating, o Outcome, _ Context) (model.Rating, model.Rating, error) {
	if !o.valid() {
		return model.Rating{}, model.Rating{}, ErrInvalidOutcome
	}
	if !a.Finite() || !b.Finite() || a.Deviation < minimumDeviation || b.Deviation < minimumDeviation || a.Volatility <= 0 || b.Volatility <= 0 {
		return model.Rating{}, model.Rating{}, fmt.Errorf("rating: glicko2 inputs: %w", ErrNonFinite)
	}

	sA := o.Score()
	newA := g.rate(a, b, sA)
	newB := g.rate(b, a, 1-sA)

	if !newA.Finite() || !newB.Finite() {
		return model.Rating{}, model.Rating{}, fmt.Errorf("rating: glicko2 result: %w", ErrNonFinite)
	}
	return newA, newB, nil
}

func (g *Glicko2) toMuPhi(r model.Rating) (mu, phi float64) {
	return (r.Value - g.Center) / glickoScale, r.Deviation / glickoScale
}

func (g *Glicko2) fromMuPhi(mu, phi float64) (r, rd float64) {
	return mu*glickoScale + g.Center, phi * glickoScale
}

// reduceImpact is g(phi): opponents with a wide deviation count less.
func reduceImpact(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// rate applies steps 3-8 of the Glicko-2 procedure against one opponent.
func (g *Glicko2) rate(p, opp model.Rating, score float64) model.Rating {
	mu, phi := g.toMuPhi(p)
	muJ, phiJ := g.toMuPhi(opp)

	gJ := reduceImpact(phiJ)
	e := 1 / (1 + math.Exp(-gJ*(mu-muJ)))

	v := 1 / (gJ * gJ * e * (1 - e))
	delta := v * gJ * (score - e)

	sigma := g.volatility(phi, p.Volatility, delta, v)
	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muNew := mu + phiNew*phiNew*gJ*(score-e)

	r, rd := g.fromMuPhi(muNew, phiNew)
	return model.Rating{Value: r, Deviation: rd, Volatility: sigma}
}

// volatility solves step 5 with the Illinois variant of regula falsi.
func (g *Glicko2) volatility(phi, sigma, delta, v float64) float64 {
	a := math.Log(sigma * sigma)
	tau2 := g.Tau * g.Tau
	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi*phi + v + ex
		return ex*(delta*delta-phi*phi-v-ex)/(2*d*d) - (x-a)/tau2
	}

	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a-k*g.Tau) < 0 && k < maxBracketSteps {
			k++
		}
		B = a - k*g.Tau
	}

	fA, fB := f(A), f(B)
	for i := 0; i < maxSolverSteps && math.Abs(B-A) > g.Epsilon; i++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}
	return math.Exp(A / 2)
}
