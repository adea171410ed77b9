package saga

import (
	"context"
)

// State represents the lifecycle state of a saga run.
type State string

const (
	StateStarted      State = "STARTED"
	StateRunning      State = "RUNNING"
	StateCompleted    State = "COMPLETED"
	StateCompensating State = "COMPENSATING"
	StateFailed       State = "FAILED"
)

// Step is a saga unit of work. A step that acquires a resource registers
// a compensation on the run once the acquisition has succeeded; nothing is
// assumed acquired when Execute returns an error.
type Step struct {
	Name    string
	Execute func(ctx context.Context, run *Run) error
}

// Compensation semantically undoes a previously successful step.
// Compensations run in reverse order of registration. A Critical
// compensation failure is escalated to the executor's critical handler;
// a non-critical one is logged and swallowed.
type Compensation struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) error
}

// Run tracks a single saga execution. It is owned by one invocation and
// never shared across goroutines.
type Run struct {
	Name          string
	state         State
	failedStep    string
	compensations []Compensation
	criticalErrs  []error
}

func newRun(name string) *Run {
	return &Run{Name: name, state: StateStarted}
}

// AddCompensation registers an undo action for a completed effect.
func (r *Run) AddCompensation(c Compensation) {
	r.compensations = append(r.compensations, c)
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	return r.state
}

// FailedStep returns the name of the step that triggered compensation,
// or "" if the run completed.
func (r *Run) FailedStep() string {
	return r.failedStep
}

// CriticalErrors returns failures of critical compensations. A non-empty
// result means the system is in a detectable but uncorrected inconsistent
// state and needs operator reconciliation.
func (r *Run) CriticalErrors() []error {
	return r.criticalErrs
}
