package engine

import "fmt"

// Stage identifies which part of the remember pipeline failed.
type Stage string

const (
	StageEmbedding Stage = "embedding"
	StageRetrieval Stage = "retrieval"
	StageSynthesis Stage = "synthesis"
	StageStorage   Stage = "storage"
)

// StageError tags a pipeline failure with the stage it occurred in, so
// callers can report which part of a remember call failed without digging
// through wrapped provider internals.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
