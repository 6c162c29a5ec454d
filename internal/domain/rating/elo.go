package rating

import (
	"github.com/okian/pairank/internal/domain/model"
)

// Fixed is Elo with the same K for every item regardless of state.
type Fixed struct {
	K float64
}

// Kind implements Model.
func (f *Fixed) Kind() Kind { return KindFixed }

// Update implements Model.
func (f *Fixed) Update(a, b model.Rating, o Outcome, _ Context) (model.Rating, model.Rating, error) {
	return eloUpdate(a, b, o, f.K)
}

// Dynamic is Elo whose K depends on the session's calculated reliability:
// large corrections while the ranking is still coarse, small ones once it
// has passed the transition threshold. Both sides use the same K so the
// update stays zero-sum.
type Dynamic struct {
	Coarse     float64
	Fine       float64
	Transition float64
}

// Kind implements Model.
func (d *Dynamic) Kind() Kind { return KindDynamic }

// K returns the step size for the given calculated reliability.
func (d *Dynamic) K(reliability float64) float64 {
	if reliability < d.Transition {
		return d.Coarse
	}
	return d.Fine
}

// Update implements Model.
func (d *Dynamic) Update(a, b model.Rating, o Outcome, c Context) (model.Rating, model.Rating, error) {
	return eloUpdate(a, b, o, d.K(c.Reliability))
}

func eloUpdate(a, b model.Rating, o Outcome, k float64) (model.Rating, model.Rating, error) {
	newA, newB, err := Apply(a.Value, b.Value, o, k, k)
	if err != nil {
		return model.Rating{}, model.Rating{}, err
	}
	a.Value = newA
	b.Value = newB
	return a, b, nil
}
