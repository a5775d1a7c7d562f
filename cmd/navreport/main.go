package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/ecs/entity"
	"github.com/milk9111/navcore/levels"
)

const defaultMaxTime = 120.0

func main() {
	levelNames := flag.String("level", "", "comma separated level names; empty runs every embedded level")
	maxTime := flag.Float64("max-time", 0, "simulated seconds before giving up; 0 uses the level duration")
	seed := flag.Uint64("seed", 1, "random seed")
	jsonLogs := flag.Bool("json", false, "log as JSON")
	strict := flag.Bool("strict", false, "exit non-zero when a goal does not succeed")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if *verbose {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)

	names := levels.Names()
	if *levelNames != "" {
		names = strings.Split(*levelNames, ",")
	}

	failed := 0
	for _, name := range names {
		n, err := run(logger, strings.TrimSpace(name), *seed, *maxTime)
		if err != nil {
			logger.Error("navreport: run failed", slog.String("level", name), slog.Any("error", err))
			os.Exit(1)
		}
		failed += n
	}
	if *strict && failed > 0 {
		fmt.Fprintf(os.Stderr, "%d goal(s) did not succeed\n", failed)
		os.Exit(1)
	}
}

// run simulates one level to completion and logs a line per agent. It
// returns the number of goals that did not succeed.
func run(logger *slog.Logger, name string, seed uint64, maxTime float64) (int, error) {
	scene, err := entity.LoadScene(name, entity.WithLogger(logger), entity.WithSeed(seed))
	if err != nil {
		return 0, err
	}
	if maxTime <= 0 {
		maxTime = scene.Level.Duration
	}
	if maxTime <= 0 {
		maxTime = defaultMaxTime
	}

	w := scene.World
	for !scene.Report.Done(w) && w.Time() < maxTime {
		scene.Step(1)
	}

	failed := 0
	for _, r := range scene.Report.Reports() {
		if r.Goal != component.GoalSuccess && r.Searches > 0 {
			failed++
		}
		logger.Info("navreport: agent", slog.String("level", scene.Level.Name), slog.Any(r.Name, r))
	}
	logger.Info("navreport: level done",
		slog.String("level", scene.Level.Name),
		slog.Float64("time", w.Time()),
		slog.Uint64("ticks", w.Tick()),
		slog.Int("reservations", scene.Reservations.Container().Len()))
	for _, t := range w.Timings() {
		logger.Debug("navreport: system", slog.String("name", t.Name), slog.Duration("max", t.Max))
	}
	return failed, nil
}
