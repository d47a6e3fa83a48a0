package monitor

import (
	"errors"
	"fmt"
	"math"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/dustin/go-humanize"
)

// Budget errors.
var (
	ErrBudgetExceeded = errors.New("memory budget exceeded")
	ErrNoMemoryLimit  = errors.New("no memory limit detected")
	ErrInvalidRatio   = errors.New("auto budget ratio must be in (0, 1]")
)

// BudgetExceeded is the event raised when a sample's RSS passes
// Budget × Tolerance.
type BudgetExceeded struct {
	Sample    Sample  `json:"sample" yaml:"sample"`
	Budget    int64   `json:"budget" yaml:"budget"`
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
}

// Limit returns the RSS threshold that was crossed.
func (e BudgetExceeded) Limit() int64 {
	return int64(math.Floor(float64(e.Budget) * e.Tolerance))
}

// Error implements the error interface.
func (e BudgetExceeded) Error() string {
	return fmt.Sprintf("rss %s exceeds budget %s × %.2f",
		humanize.IBytes(e.Sample.RSSBytes), humanize.IBytes(uint64(e.Budget)), e.Tolerance)
}

// Is matches ErrBudgetExceeded.
func (e BudgetExceeded) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// DefaultLimitProvider reads the cgroup memory limit, falling back to total
// system memory.
var DefaultLimitProvider = memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)

// AutoBudget returns ratio × the memory limit reported by provider. A nil
// provider uses DefaultLimitProvider.
func AutoBudget(ratio float64, provider memlimit.Provider) (int64, error) {
	if ratio <= 0 || ratio > 1 {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidRatio, ratio)
	}
	if provider == nil {
		provider = DefaultLimitProvider
	}

	limit, err := provider()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoMemoryLimit, err)
	}
	if limit == 0 || limit > math.MaxInt64 {
		return 0, fmt.Errorf("%w: provider returned %d", ErrNoMemoryLimit, limit)
	}
	return int64(float64(limit) * ratio), nil
}
