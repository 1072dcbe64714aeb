package process

import (
	"time"

	"tinytotvm/bytecode"
)

// RestartPolicy mirrors original_source's RestartPolicy enum.
type RestartPolicy uint8

const (
	Permanent RestartPolicy = iota
	Temporary
	Transient
)

// ShouldRestart reports whether a child exiting with reason should be
// restarted under this policy.
func (r RestartPolicy) ShouldRestart(reason string) bool {
	switch r {
	case Permanent:
		return true
	case Temporary:
		return false
	case Transient:
		return reason != "normal"
	default:
		return false
	}
}

// Strategy is the supervisor's restart strategy when a child exits.
type Strategy uint8

const (
	OneForOne Strategy = iota
	OneForAll
	RestForOne
)

// ShutdownKind names how a child is to be torn down, mirroring
// original_source's Shutdown enum. It is carried on ChildSpec; no code in
// this module tears children down or reads it.
type ShutdownKind uint8

const (
	// Brutal kills the child immediately, with no grace period.
	Brutal ShutdownKind = iota
	// Timeout gives the child up to Shutdown.After to exit on its own
	// before it is killed.
	Timeout
	// Infinity waits indefinitely for the child to exit on its own --
	// appropriate for a child that is itself a supervisor.
	Infinity
)

// Shutdown pairs a ShutdownKind with the grace period Timeout uses; the
// field is ignored for Brutal and Infinity.
type Shutdown struct {
	Kind  ShutdownKind
	After time.Duration
}

// ChildType distinguishes a plain worker from a nested supervisor. It is
// carried on ChildSpec; there is no restart-cascade code that reads it.
type ChildType uint8

const (
	Worker ChildType = iota
	SupervisorChild
)

// ChildSpec describes one supervised child: what to run, how it should
// be restarted, how it should be shut down, and whether it is itself a
// supervisor.
type ChildSpec struct {
	ID       string
	Program  *bytecode.Program
	Restart  RestartPolicy
	Shutdown Shutdown
	Type     ChildType
}

// ChildState tracks a running (or most recently running) child.
type ChildState struct {
	PID          ID
	Spec         ChildSpec
	RestartCount int
	LastRestart  time.Time
}

// SupervisorSpec configures a supervisor process: its strategy, the
// children it owns, and a restart-intensity/period guard against crash
// loops.
type SupervisorSpec struct {
	Strategy  Strategy
	Children  []ChildSpec
	Intensity int
	Period    time.Duration
}

// CanRestart reports whether the supervisor is still within its
// intensity budget for the current period, resetting the window once
// Period has elapsed.
func (p *Proc) CanRestart() bool {
	if p.Supervisor == nil {
		return false
	}
	now := time.Now()
	if now.Sub(p.restartPeriodStart) > p.Supervisor.Period {
		p.restartIntensityCount = 0
		p.restartPeriodStart = now
		return true
	}
	return p.restartIntensityCount < p.Supervisor.Intensity
}

func (p *Proc) RecordRestart() { p.restartIntensityCount++ }
