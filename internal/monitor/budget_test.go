package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoBudget(t *testing.T) {
	fixed := func(v uint64, err error) func() (uint64, error) {
		return func() (uint64, error) { return v, err }
	}

	budget, err := AutoBudget(0.8, fixed(1000, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(800), budget)

	budget, err = AutoBudget(1, fixed(4<<30, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(4<<30), budget)

	_, err = AutoBudget(0.8, fixed(0, errors.New("cgroup v2 not mounted")))
	require.ErrorIs(t, err, ErrNoMemoryLimit)
	assert.ErrorContains(t, err, "cgroup v2 not mounted")

	_, err = AutoBudget(0.8, fixed(0, nil))
	require.ErrorIs(t, err, ErrNoMemoryLimit)

	for _, ratio := range []float64{0, -0.5, 1.5} {
		_, err = AutoBudget(ratio, fixed(1000, nil))
		require.ErrorIs(t, err, ErrInvalidRatio)
	}
}

func TestAutoBudget_DefaultProvider(t *testing.T) {
	budget, err := AutoBudget(0.5, nil)
	if errors.Is(err, ErrNoMemoryLimit) {
		t.Skipf("no memory limit on this host: %v", err)
	}
	require.NoError(t, err)
	assert.Positive(t, budget)
}
