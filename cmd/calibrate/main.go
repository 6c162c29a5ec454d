package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/okian/pairank/internal/calibration"
	"github.com/okian/pairank/internal/config"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/pkg/logger"
)

const (
	defaultTimeout   = 30 * time.Minute
	reportPermission = 0o644
)

func main() {
	defaults := calibration.DefaultPlan()
	var (
		models     = flag.String("models", "fixed,dynamic,glicko2", "Comma separated rating models")
		items      = flag.String("items", joinInts(defaults.Items), "Comma separated collection sizes")
		seeds      = flag.String("seeds", joinUints(defaults.Seeds), "Comma separated random seeds")
		maxVotes   = flag.Int("max-votes", 0, "Vote budget per run (default 60 per item)")
		every      = flag.Int("every", defaults.Every, "Sample real reliability every N votes")
		thresholds = flag.String("thresholds", "85,93", "Comma separated real reliability targets")
		noise      = flag.Float64("noise", 0, "Probability that the worse item wins a comparison")
		workers    = flag.Int("workers", runtime.NumCPU(), "Number of scenarios run in parallel")
		output     = flag.String("output", "", "Report file (default: calibration_TIMESTAMP.json)")
		plotDir    = flag.String("plot", "", "Directory for per-size PNG plots (default: no plots)")
		runs       = flag.Bool("runs", false, "Include every run in the report, not only summaries")
		timeout    = flag.Duration("timeout", defaultTimeout, "Abort the sweep after this duration")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}
	log := logger.Get()

	plan, err := buildPlan(*models, *items, *seeds, *thresholds, *maxVotes, *every, *noise)
	if err != nil {
		os.Stderr.WriteString("invalid arguments: " + err.Error() + "\n")
		os.Exit(2)
	}

	est, err := reliability.New(reliability.WithCurve(cfg.Curve()), reliability.WithThresholds(cfg.Thresholds()))
	if err != nil {
		os.Stderr.WriteString("invalid reliability curve: " + err.Error() + "\n")
		os.Exit(1)
	}
	cal, err := calibration.New(
		calibration.WithWorkers(*workers),
		calibration.WithEstimator(est),
		calibration.WithInitialRating(cfg.InitialRating()),
		calibration.WithWindow(cfg.CompetitivenessWindow),
		calibration.WithRatingOptions(cfg.RatingOptions()...),
		calibration.WithLogger(log),
	)
	if err != nil {
		os.Stderr.WriteString("failed to create calibrator: " + err.Error() + "\n")
		os.Exit(1)
	}

	report, err := cal.Run(ctx, plan)
	if err != nil {
		log.Error(ctx, "calibration failed", logger.Error(err))
		os.Exit(1)
	}
	if !*runs {
		report.Results = nil
	}

	if *output == "" {
		*output = "calibration_" + time.Now().Format("20060102_150405") + ".json"
	}
	if err := writeReport(*output, report); err != nil {
		log.Error(ctx, "failed to write report", logger.Error(err))
		os.Exit(1)
	}
	log.Info(ctx, "report written", logger.String("file", *output))

	if *plotDir != "" {
		if err := os.MkdirAll(*plotDir, 0o755); err != nil {
			log.Error(ctx, "failed to create plot directory", logger.Error(err))
			os.Exit(1)
		}
		for _, n := range plan.Items {
			path := filepath.Join(*plotDir, fmt.Sprintf("reliability_%04d.png", n))
			if err := report.Plot(path, n); err != nil {
				log.Error(ctx, "failed to plot", logger.Int("items", n), logger.Error(err))
				os.Exit(1)
			}
			log.Info(ctx, "plot written", logger.String("file", path))
		}
	}

	for _, s := range report.Summaries {
		fields := []logger.Field{
			logger.String("model", string(s.Model)),
			logger.Int("items", s.Items),
			logger.Float64("final_real", s.FinalReal.Mean),
			logger.Float64("crossing", s.Crossing.Mean),
		}
		for _, t := range s.Targets {
			fields = append(fields, logger.Float64("votes_to_"+strconv.FormatFloat(t.Threshold, 'f', -1, 64), t.Votes.Mean))
		}
		log.Info(ctx, "summary", fields...)
	}
}

func buildPlan(models, items, seeds, thresholds string, maxVotes, every int, noise float64) (calibration.Plan, error) {
	p := calibration.Plan{MaxVotes: maxVotes, Every: every, Noise: noise}
	for _, m := range splitList(models) {
		k, err := rating.ParseKind(m)
		if err != nil {
			return p, err
		}
		p.Models = append(p.Models, k)
	}
	for _, s := range splitList(items) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("items: %w", err)
		}
		p.Items = append(p.Items, n)
	}
	for _, s := range splitList(seeds) {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return p, fmt.Errorf("seeds: %w", err)
		}
		p.Seeds = append(p.Seeds, n)
	}
	for _, s := range splitList(thresholds) {
		t, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, fmt.Errorf("thresholds: %w", err)
		}
		p.Thresholds = append(p.Thresholds, t)
	}
	return p, p.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func joinUints(xs []uint64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatUint(x, 10)
	}
	return strings.Join(parts, ",")
}

func writeReport(path string, r calibration.Report) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, reportPermission)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func showHelp() {
	os.Stdout.WriteString(`pairank calibration
===================

Runs the rating engine against synthetic collections with a known order and
reports how many votes each rating model needs before the real ranking
accuracy reaches the given thresholds. Curve, thresholds and K factors come
from the regular configuration (PAIRANK_CONFIG, PAIRANK_* variables).

Usage:
  go run ./cmd/calibrate [options]

Options:
  -models string       rating models (default "fixed,dynamic,glicko2")
  -items string        collection sizes (default "10,20,50,100,200")
  -seeds string        random seeds (default "42,123,456,508,749,862")
  -max-votes int       vote budget per run (default 60 per item)
  -every int           sample interval in votes (default 50)
  -thresholds string   real reliability targets (default "85,93")
  -noise float         upset probability (default 0)
  -workers int         parallel scenarios (default CPU cores)
  -output string       report file (default: calibration_TIMESTAMP.json)
  -plot string         directory for PNG plots (default: none)
  -runs                include every run in the report
  -timeout duration    abort after this duration (default 30m)
  -help                show this help message

Examples:
  # Dynamic K only, three sizes, with plots
  go run ./cmd/calibrate -models dynamic -items 10,20,50 -plot ./out

  # Noisy voters
  go run ./cmd/calibrate -noise 0.1 -thresholds 80
`)
}
