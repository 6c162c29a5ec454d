package calibration

import (
	"context"
	"runtime"
	"strconv"
	"sync"

	"github.com/okian/pairank/pkg/logger"
	"github.com/okian/pairank/pkg/metrics"
)

// Runner executes one scenario.
type Runner interface {
	Run(ctx context.Context, sc Scenario) (Result, error)
}

type job struct {
	index    int
	scenario Scenario
}

// Pool runs scenarios on a fixed number of workers. Results keep the order
// of the submitted scenarios.
type Pool struct {
	workers int
	runner  Runner
	logger  logger.Logger
}

// NewPool creates a pool. workers < 1 means one worker per CPU.
func NewPool(workers int, runner Runner, log logger.Logger) *Pool {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Get()
	}
	return &Pool{workers: workers, runner: runner, logger: log.Named("calibration-pool")}
}

// Run executes every scenario and stops at the first error.
func (p *Pool) Run(ctx context.Context, scenarios []Scenario) ([]Result, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	workers := min(p.workers, len(scenarios))
	jobs := make(chan job, len(scenarios))
	for i, sc := range scenarios {
		jobs <- job{index: i, scenario: sc}
	}
	close(jobs)

	results := make([]Result, len(scenarios))
	var wg sync.WaitGroup
	metrics.UpdateWorkerActiveCount(workers)
	defer metrics.UpdateWorkerActiveCount(0)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			log := p.logger.Named(name)
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				res, err := p.runner.Run(ctx, j.scenario)
				if err != nil {
					log.Error(ctx, "scenario failed",
						logger.String("model", string(j.scenario.Model)),
						logger.Int("items", j.scenario.Items),
						logger.Uint64("seed", j.scenario.Seed),
						logger.Error(err),
					)
					cancel(err)
					return
				}
				results[j.index] = res
				log.Debug(ctx, "scenario done",
					logger.String("model", string(j.scenario.Model)),
					logger.Int("items", j.scenario.Items),
					logger.Uint64("seed", j.scenario.Seed),
					logger.Duration("took", res.Took),
				)
			}
		}("worker-" + strconv.Itoa(w))
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return results, nil
}
