package main

import (
	"fmt"
	"io"
	"log"
	"time"
)

// refPerformanceMs is the reference battle's duration on the machine it was
// tuned on; pass -ref-ms with this machine's own figure to compare changes
const refPerformanceMs = 23993.0

// BenchResult summarizes one headless battle
type BenchResult struct {
	Steps       int
	Winner      string
	Blue        int
	Red         int
	FailedSteps int
	Duration    time.Duration
	Speedup     float64
}

// RunBench plays cfg to completion as fast as possible and prints the
// duration and speedup against refMs
func RunBench(cfg ScenarioConfig, pool *WorkerPool, refMs float64, out io.Writer) (BenchResult, error) {
	if err := cfg.Validate(); err != nil {
		return BenchResult{}, err
	}
	if cfg.MaxSteps == 0 {
		return BenchResult{}, fmt.Errorf("%w: bench needs maxSteps > 0", ErrInvalidScenario)
	}

	battle := NewBattle(cfg, pool, nil)
	var res BenchResult
	start := time.Now()
	for {
		done, winner := battle.Outcome()
		if done {
			res.Winner = winner
			break
		}
		rep, err := battle.Step(1)
		if err != nil {
			res.FailedSteps++
			log.Printf("bench: step %d: %v", rep.Step, err)
		}
	}
	res.Duration = time.Since(start)
	res.Steps = battle.StepCount()
	res.Blue = battle.Count(Blue)
	res.Red = battle.Count(Red)

	ms := float64(res.Duration) / float64(time.Millisecond)
	if ms > 0 {
		res.Speedup = refMs / ms
	}

	fmt.Fprintf(out, "Scenario %q: %d steps, winner %s (blue %d, red %d)\n",
		cfg.Name, res.Steps, res.Winner, res.Blue, res.Red)
	fmt.Fprintf(out, "Duration was: %.0f ms (pass -ref-ms %.0f to use this machine as the reference)\n", ms, ms)
	fmt.Fprintf(out, "SPEEDUP: %4.1f\n", res.Speedup)
	if res.FailedSteps > 0 {
		fmt.Fprintf(out, "WARNING: %d steps reported failed chunks\n", res.FailedSteps)
	}
	return res, nil
}
