package calibration

import "errors"

var (
	// ErrInvalidPlan is returned for plans that cannot run.
	ErrInvalidPlan = errors.New("invalid calibration plan")
	// ErrInvalidScenario is returned by Simulator.Run for scenarios it cannot run.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrNoData is returned when there is nothing to plot.
	ErrNoData = errors.New("no data to plot")
)
