package agent

import (
	"fmt"

	"github.com/nugget/helion/internal/checkpoint"
)

// ModelInvocationError reports that the model could not be reached or
// its stream failed. The turn is aborted and no partial answer is
// checkpointed.
type ModelInvocationError struct {
	Model string
	Err   error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// CheckpointWriteError reports that a step's state could not be
// persisted. The turn is aborted.
type CheckpointWriteError struct {
	ThreadID string
	Source   checkpoint.Source
	Err      error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("checkpoint %s (%s): %v", e.ThreadID, e.Source, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error { return e.Err }
