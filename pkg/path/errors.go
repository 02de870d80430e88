package path

import "errors"

// Invariant violations. These indicate a caller-sequencing bug or an
// unrecovered crash and are never swallowed.
var (
	// ErrOpenSessionExists is returned by OpenSession when the run already
	// has an open session.
	ErrOpenSessionExists = errors.New("an open session already exists for this run")

	// ErrSessionStillOpen is returned by AdvanceRun while the current
	// step's session has not been completed.
	ErrSessionStillOpen = errors.New("current step's session is still open")

	// ErrSessionNotOpen is returned by CompleteSession for sessions that
	// already left the open state.
	ErrSessionNotOpen = errors.New("session is not open")

	// ErrMultipleActiveRuns signals violated storage integrity: more than
	// one active run exists for a learner.
	ErrMultipleActiveRuns = errors.New("multiple active runs for learner")
)

// Sequencing and lookup failures surfaced to the caller by name.
var (
	// ErrRunNotActive is returned when advancing a run that is not active.
	ErrRunNotActive = errors.New("run is not active")

	// ErrNoActiveRun is returned by GetActiveRun when the learner has none.
	ErrNoActiveRun = errors.New("no active run for learner")

	// ErrActiveRunExists is returned by StartRun when the learner already
	// has an active run; resume it instead of starting another.
	ErrActiveRunExists = errors.New("learner already has an active run")

	// ErrTemplateNotFound is returned when a referenced template does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrStepNotAttempted is returned by AdvanceRun when the current step
	// has no successfully completed session (for example after the sweep
	// marked an interrupted attempt abandoned). Retry the step first.
	ErrStepNotAttempted = errors.New("current step has no successfully completed session")

	// ErrStepCompleted is returned by ResumeStep when the current step is
	// already done and the caller should advance instead.
	ErrStepCompleted = errors.New("current step is already completed")
)
