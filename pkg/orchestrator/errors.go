package orchestrator

import "errors"

// ErrAlreadyRunning is returned by StartTask when a task is already in an
// active execution phase.
var ErrAlreadyRunning = errors.New("orchestrator: pipeline already running")

// ErrInvalidTransition is returned by Pause/Resume/Cancel when the requested
// move is not legal from the current phase.
var ErrInvalidTransition = errors.New("orchestrator: invalid phase transition")

// ErrBudgetExceeded is wrapped by BudgetError when the resource meter reports
// an EXCEEDED budget status. An exceeded budget does not fail the run.
var ErrBudgetExceeded = errors.New("orchestrator: budget exceeded")
