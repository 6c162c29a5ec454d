package calibration

import (
	"fmt"
	"io"
	"slices"
	"time"

	json "github.com/goccy/go-json"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/okian/pairank/internal/domain/rating"
)

// Report is the outcome of a calibration plan.
type Report struct {
	Plan      Plan          `json:"plan"`
	Summaries []Summary     `json:"summaries"`
	Results   []Result      `json:"results,omitempty"`
	Took      time.Duration `json:"took"`
}

// Summary aggregates the seeds of one (model, items) pair.
type Summary struct {
	Model      rating.Kind     `json:"model"`
	Items      int             `json:"items"`
	Runs       int             `json:"runs"`
	Targets    []TargetSummary `json:"targets"`
	Crossing   Stat            `json:"crossing"` // over runs where calculated caught up with real
	FinalReal  Stat            `json:"final_real"`
	FinalVotes Stat            `json:"final_votes"`
	Curve      []Sample        `json:"curve"` // mean over the runs that reached each vote count
}

// TargetSummary aggregates the votes needed to reach one threshold.
type TargetSummary struct {
	Threshold float64 `json:"threshold"`
	Reached   int     `json:"reached"`
	Votes     Stat    `json:"votes"`
}

// Stat is a mean and sample standard deviation.
type Stat struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

func describe(xs []float64) Stat {
	switch len(xs) {
	case 0:
		return Stat{}
	case 1:
		return Stat{N: 1, Mean: xs[0]}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	return Stat{N: len(xs), Mean: mean, Std: std}
}

// Aggregate groups results by model and item count, in first-seen order.
func Aggregate(results []Result) []Summary {
	type key struct {
		model rating.Kind
		items int
	}
	var order []key
	groups := map[key][]Result{}
	for _, r := range results {
		k := key{r.Scenario.Model, r.Scenario.Items}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	out := make([]Summary, 0, len(order))
	for _, k := range order {
		out = append(out, summarize(k.model, k.items, groups[k]))
	}
	return out
}

func summarize(m rating.Kind, items int, runs []Result) Summary {
	s := Summary{Model: m, Items: items, Runs: len(runs)}

	var crossing, finalReal, finalVotes []float64
	for _, r := range runs {
		if r.Crossing > 0 {
			crossing = append(crossing, float64(r.Crossing))
		}
		finalReal = append(finalReal, r.Final.Real)
		finalVotes = append(finalVotes, float64(r.Final.Votes))
	}
	s.Crossing = describe(crossing)
	s.FinalReal = describe(finalReal)
	s.FinalVotes = describe(finalVotes)

	if len(runs) > 0 {
		for i, t := range runs[0].Targets {
			ts := TargetSummary{Threshold: t.Threshold}
			var votes []float64
			for _, r := range runs {
				if i < len(r.Targets) && r.Targets[i].Reached {
					votes = append(votes, float64(r.Targets[i].Votes))
				}
			}
			ts.Reached = len(votes)
			ts.Votes = describe(votes)
			s.Targets = append(s.Targets, ts)
		}
	}

	s.Curve = meanCurve(runs)
	return s
}

func meanCurve(runs []Result) []Sample {
	type acc struct {
		calc, real []float64
	}
	byVotes := map[int]*acc{}
	for _, r := range runs {
		for _, smp := range r.Samples {
			a, ok := byVotes[smp.Votes]
			if !ok {
				a = &acc{}
				byVotes[smp.Votes] = a
			}
			a.calc = append(a.calc, smp.Calculated)
			a.real = append(a.real, smp.Real)
		}
	}

	votes := make([]int, 0, len(byVotes))
	for v := range byVotes {
		votes = append(votes, v)
	}
	slices.Sort(votes)

	curve := make([]Sample, 0, len(votes))
	for _, v := range votes {
		a := byVotes[v]
		curve = append(curve, Sample{Votes: v, Calculated: stat.Mean(a.calc, nil), Real: stat.Mean(a.real, nil)})
	}
	return curve
}

// WriteJSON writes r as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Summary returns the summary for model and items.
func (r Report) Summary(m rating.Kind, items int) (Summary, bool) {
	for _, s := range r.Summaries {
		if s.Model == m && s.Items == items {
			return s, true
		}
	}
	return Summary{}, false
}

// Plot draws the mean real reliability of every model for one collection
// size, plus the calculated curve, and saves it to path. The image format
// follows the file extension.
func (r Report) Plot(path string, items int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Reliability, %d items", items)
	p.X.Label.Text = "Votes"
	p.Y.Label.Text = "Reliability (%)"
	p.Y.Min, p.Y.Max = 0, 100

	drawn := 0
	var calculated plotter.XYs
	for _, s := range r.Summaries {
		if s.Items != items || len(s.Curve) == 0 {
			continue
		}
		pts := make(plotter.XYs, 0, len(s.Curve))
		for _, smp := range s.Curve {
			pts = append(pts, plotter.XY{X: float64(smp.Votes), Y: smp.Real})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", s.Model, err)
		}
		line.Color = plotutil.Color(drawn)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("real (%s)", s.Model), line)
		drawn++

		if len(s.Curve) > len(calculated) {
			calculated = calculated[:0]
			for _, smp := range s.Curve {
				calculated = append(calculated, plotter.XY{X: float64(smp.Votes), Y: smp.Calculated})
			}
		}
	}
	if drawn == 0 {
		return fmt.Errorf("%w: %d items", ErrNoData, items)
	}

	line, err := plotter.NewLine(calculated)
	if err != nil {
		return fmt.Errorf("plot calculated: %w", err)
	}
	line.Color = plotutil.Color(drawn)
	line.Width = vg.Points(1)
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(line)
	p.Legend.Add("calculated", line)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
