package pipeline

import (
	"errors"
	"fmt"

	"github.com/mwa-utils/mwapipe/internal/engine/batch"
)

// ReadStage is the stage name reported when loading a batch fails.
const ReadStage = "read"

// Executor errors.
var (
	ErrStage            = errors.New("pipeline stage failed")
	ErrNoStages         = errors.New("at least one stage is required")
	ErrNilStage         = errors.New("stage cannot be nil")
	ErrInvalidStartAt   = errors.New("resume batch index out of range")
	ErrIncompatiblePlan = errors.New("plan does not match the resumed run")
)

// StageError reports a stage failure on a specific batch. It carries
// enough context to resume from the failed batch.
type StageError struct {
	BatchIndex int
	Range      batch.Range
	Stage      string
	Err        error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed on batch %d %s: %v", e.Stage, e.BatchIndex, e.Range, e.Err)
}

// Unwrap returns the stage's own error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches ErrStage.
func (e *StageError) Is(target error) bool {
	return target == ErrStage
}
