package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/mwa-utils/mwapipe/internal/engine/batch"
	"github.com/mwa-utils/mwapipe/internal/monitor"
	"github.com/mwa-utils/mwapipe/internal/pipeline"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitDescriptor = 2
	ExitPlanning   = 3
	ExitStage      = 4
	ExitBudget     = 5
	ExitCancelled  = 130
)

// ExitError carries an explicit exit code to main.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.Is(err, uvdata.ErrDescriptor):
		return ExitDescriptor
	case errors.Is(err, batch.ErrPlanning):
		return ExitPlanning
	case errors.Is(err, pipeline.ErrStage):
		return ExitStage
	case errors.Is(err, monitor.ErrBudgetExceeded):
		return ExitBudget
	default:
		return ExitFailure
	}
}
