// Command wrenchsim-demo wires the two-host platform used throughout this
// module's scenarios (host A: 1 core, 1 GF/s; host B: 10 cores, 10 GF/s;
// linked at 100 MB/s, 0 µs latency) and drives a single-sleep-action
// end-to-end run: submit a CompoundJob with one Sleep(10.0) action to a
// BareMetalComputeService on B, run the simulation to completion, and print
// the resulting trace.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/wrenchsim/action"
	"github.com/joeycumines/wrenchsim/compute"
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/joeycumines/wrenchsim/simlog"
	"github.com/joeycumines/wrenchsim/trace"
	"github.com/rs/zerolog"
)

// These flags mirror the simulator-host switches every wrenchsim scenario
// exposes. The three model switches (host/link shutdown, pagecache
// simulation) are accepted for CLI-surface parity and have no effect; only
// --wrench-full-log changes behavior (debug-level logging plus an NDJSON
// dump of the trace).
var (
	_               = flag.Bool("wrench-host-shutdown-simulation", false, "accepted for CLI-surface parity; no effect")
	_               = flag.Bool("wrench-link-shutdown-simulation", false, "accepted for CLI-surface parity; no effect")
	fullLog         = flag.Bool("wrench-full-log", false, "enable debug-level logging")
	_               = flag.Bool("wrench-pagecache-simulation", false, "accepted for CLI-surface parity; no effect")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "wrenchsim-demo:", err)
		os.Exit(1)
	}
}

func run() error {
	level := zerolog.InfoLevel
	if *fullLog {
		level = zerolog.DebugLevel
	}
	base := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()

	platform := kernel.NewPlatform()
	if _, err := platform.NewHost("A", 1, 1<<30, 1e9); err != nil {
		return err
	}
	if _, err := platform.NewHost("B", 10, 1<<30, 1e10); err != nil {
		return err
	}
	link, err := platform.NewLink("A-B", 100*1024*1024, 0)
	if err != nil {
		return err
	}
	if err := platform.AddRoute("A", "B", link); err != nil {
		return err
	}
	if err := platform.AddRoute("B", "A", link); err != nil {
		return err
	}

	sim, err := kernel.NewSimulation(platform)
	if err != nil {
		return err
	}
	logger := simlog.New(base, sim)

	cs, err := compute.NewBareMetalComputeService(sim, "cs-B", "B", []compute.ResourceSlot{{Host: "B", Cores: 10, RAM: 1 << 30}}, &logger)
	if err != nil {
		return err
	}

	job := action.NewCompoundJob("demo-job", 0)
	sleepAction := action.NewAction("sleep-10", action.Sleep, 1, 1, 0, 0)
	sleepAction.SleepSeconds = 10
	if err := job.AddAction(sleepAction); err != nil {
		return err
	}

	if err := cs.SubmitJob(job, nil); err != nil {
		return err
	}

	if _, err := sim.Spawn("B", func(a *kernel.Actor) {
		msg, err := cs.EventPort.Get(a, 0)
		if err != nil {
			return
		}
		switch msg.Payload.(type) {
		case compute.CompoundJobCompletedEvent:
			logger.Info().Msg("demo job completed")
		case compute.CompoundJobFailedEvent:
			logger.Warn().Msg("demo job failed")
		}
	}); err != nil {
		return err
	}

	if err := sim.Run(context.Background()); err != nil {
		return err
	}

	entries := trace.BuildFromCompoundJob(job.ID, job.Actions)
	for _, e := range entries {
		fmt.Printf("%-20s t=%-12v action=%s\n", e.Kind, time.Duration(e.Time), e.ActionID)
	}
	if *fullLog {
		fmt.Println("--- trace (ndjson) ---")
		if err := trace.WriteJSON(os.Stdout, entries); err != nil {
			return err
		}
	}
	return nil
}
