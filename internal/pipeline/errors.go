package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a step of the run state machine.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageSetup   Stage = "setup"
	StageLock    Stage = "lock"
	StageIndex   Stage = "index"
	StageParse   Stage = "parse"
	StageReplan  Stage = "replan"
	StageExecute Stage = "execute"
	StageApply   Stage = "apply"
	StageLedger  Stage = "ledger"
	StageResult  Stage = "result"
)

func passStage(pass string) Stage {
	switch pass {
	case PassReplan:
		return StageReplan
	case PassExecute:
		return StageExecute
	default:
		return StageParse
	}
}

// StageError is a fatal run failure.
type StageError struct {
	Stage Stage

	// RunID is empty when the run failed before an id was assigned.
	RunID string

	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("pipeline %s failed (run=%s): %v", e.Stage, e.RunID, e.Err)
	}
	return fmt.Sprintf("pipeline %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the failing stage of err, or "" when err is not a
// *StageError.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
