// Package simlog wires github.com/rs/zerolog directly into wrenchsim's
// ambient logging, the way the teacher's izerolog.WithZerolog wires a
// zerolog.Logger into logiface — here without the generic logiface core,
// since every call site already knows its concrete logger type and the
// extra abstraction layer would buy nothing. Every log line is tagged with
// the simulated time plus whichever of actor/job/action/file id applies.
package simlog

import (
	"github.com/joeycumines/wrenchsim/kernel"
	"github.com/rs/zerolog"
)

// SimTimeHook stamps every log event with the simulation's current virtual
// time, read at the moment the event is fired rather than when the logger
// was constructed — so a single sub-logger held for a whole actor's
// lifetime still reports the right time on every line.
type SimTimeHook struct {
	Sim *kernel.Simulation
}

// Run implements zerolog.Hook.
func (h SimTimeHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if h.Sim == nil {
		return
	}
	e.Int64("sim_time", h.Sim.Now())
}

// New returns base with SimTimeHook installed, the root logger every
// service/actor/controller in this module should derive its own
// sub-logger from.
func New(base zerolog.Logger, sim *kernel.Simulation) zerolog.Logger {
	return base.Hook(SimTimeHook{Sim: sim})
}

// ForActor returns a sub-logger tagging every line with the actor's id and
// host.
func ForActor(logger zerolog.Logger, actorID string, host kernel.HostName) zerolog.Logger {
	return logger.With().Str("actor", actorID).Str("host", string(host)).Logger()
}

// ForJob returns a sub-logger tagging every line with a job id.
func ForJob(logger zerolog.Logger, jobID string) zerolog.Logger {
	return logger.With().Str("job_id", jobID).Logger()
}

// ForAction returns a sub-logger tagging every line with a job id and an
// action id.
func ForAction(logger zerolog.Logger, jobID, actionID string) zerolog.Logger {
	return logger.With().Str("job_id", jobID).Str("action_id", actionID).Logger()
}

// ForFile returns a sub-logger tagging every line with a file id.
func ForFile(logger zerolog.Logger, fileID string) zerolog.Logger {
	return logger.With().Str("file_id", fileID).Logger()
}
