package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type scriptedSampler struct {
	mu       sync.Mutex
	readings []Reading
	calls    int
	err      error
}

func (s *scriptedSampler) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return Reading{}, s.err
	}
	if len(s.readings) == 0 {
		return Reading{RSSBytes: 1 << 20}, nil
	}
	r := s.readings[0]
	if len(s.readings) > 1 {
		s.readings = s.readings[1:]
	}
	return r, nil
}

func (s *scriptedSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func clockAt(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[min(i, len(times)-1)]
		i++
		return t
	}
}

func TestNew_Defaults(t *testing.T) {
	m, err := New(Config{Sampler: &scriptedSampler{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, m.interval)
	assert.InDelta(t, DefaultTolerance, m.Tolerance(), 0)
	assert.Equal(t, int64(0), m.Budget())
	assert.False(t, m.Running())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Interval: -time.Second})
	require.ErrorIs(t, err, ErrInvalidInterval)

	_, err = New(Config{Tolerance: 0.9})
	require.ErrorIs(t, err, ErrInvalidTolerance)

	_, err = New(Config{Budget: -1})
	require.ErrorIs(t, err, ErrNegativeBudget)
}

func TestMonitor_FirstSampleAtStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m, err := New(Config{Interval: time.Hour, Sampler: &scriptedSampler{}})
	require.NoError(t, err)

	m.Start(context.Background())
	assert.True(t, m.Running())
	assert.Len(t, m.Samples(), 1)

	samples := m.Stop()
	assert.Len(t, samples, 1)
	assert.False(t, m.Running())

	// A second Stop is harmless.
	assert.Len(t, m.Stop(), 1)
}

func TestMonitor_StartIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sampler := &scriptedSampler{}
	m, err := New(Config{Interval: 20 * time.Millisecond, Sampler: sampler})
	require.NoError(t, err)

	m.Start(context.Background())
	m.Start(context.Background())
	m.Start(context.Background())
	time.Sleep(210 * time.Millisecond)
	samples := m.Stop()

	// One loop yields about 1 + 10 samples; three loops would yield three
	// initial samples and about 30 ticks.
	assert.GreaterOrEqual(t, len(samples), 2)
	assert.LessOrEqual(t, len(samples), 14)
	assert.Equal(t, sampler.Calls(), len(samples))

	for i := 1; i < len(samples); i++ {
		assert.False(t, samples[i].Time.Before(samples[i-1].Time), "sample %d goes back in time", i)
	}
}

func TestMonitor_ContextCancelStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sampler := &scriptedSampler{}
	m, err := New(Config{Interval: 5 * time.Millisecond, Sampler: sampler})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	samples := m.Stop()
	assert.NotEmpty(t, samples)
}

func TestMonitor_TimestampsNeverDecrease(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := New(Config{Sampler: &scriptedSampler{}})
	require.NoError(t, err)
	m.now = clockAt(base.Add(2*time.Second), base.Add(time.Second), base.Add(3*time.Second))

	m.sample()
	m.sample()
	m.sample()

	samples := m.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, base.Add(2*time.Second), samples[0].Time)
	assert.Equal(t, base.Add(2*time.Second), samples[1].Time)
	assert.Equal(t, base.Add(3*time.Second), samples[2].Time)
}

func TestMonitor_CPUPercent(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sampler := &scriptedSampler{readings: []Reading{
		{RSSBytes: 10, CPUSeconds: 1.0},
		{RSSBytes: 30, CPUSeconds: 1.5},
		{RSSBytes: 20, CPUSeconds: 3.5},
	}}
	m, err := New(Config{Sampler: sampler})
	require.NoError(t, err)
	m.now = clockAt(base, base.Add(time.Second), base.Add(3*time.Second))

	m.sample()
	m.sample()
	m.sample()

	samples := m.Samples()
	require.Len(t, samples, 3)
	assert.InDelta(t, 0.0, samples[0].CPUPercent, 0)
	assert.InDelta(t, 50.0, samples[1].CPUPercent, 1e-9)
	assert.InDelta(t, 100.0, samples[2].CPUPercent, 1e-9)

	peak, ok := m.Peak()
	require.True(t, ok)
	assert.Equal(t, uint64(30), peak.RSSBytes)
}

func TestMonitor_BudgetExceeded(t *testing.T) {
	sampler := &scriptedSampler{readings: []Reading{
		{RSSBytes: 1100},
		{RSSBytes: 1101},
		{RSSBytes: 900},
	}}
	var handled atomic.Int32
	m, err := New(Config{
		Budget:    1000,
		Tolerance: 1.1,
		Sampler:   sampler,
		OnBudgetExceeded: func(e BudgetExceeded) {
			handled.Add(1)
			assert.Equal(t, uint64(1101), e.Sample.RSSBytes)
		},
	})
	require.NoError(t, err)

	m.sample()
	m.sample()
	m.sample()

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, int64(1100), events[0].Limit())
	assert.ErrorIs(t, events[0], ErrBudgetExceeded)
	assert.Contains(t, events[0].Error(), "exceeds budget")
	assert.Len(t, m.Samples(), 3)
}

func TestMonitor_NoBudgetNoEvents(t *testing.T) {
	m, err := New(Config{Sampler: &scriptedSampler{readings: []Reading{{RSSBytes: 1 << 40}}}})
	require.NoError(t, err)
	m.sample()
	assert.Empty(t, m.Events())
}

func TestMonitor_SamplerErrors(t *testing.T) {
	m, err := New(Config{Sampler: &scriptedSampler{err: errors.New("no proc")}})
	require.NoError(t, err)

	m.sample()
	m.sample()
	assert.Empty(t, m.Samples())
	_, ok := m.Peak()
	assert.False(t, ok)
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	m, err := New(Config{Sampler: &scriptedSampler{}})
	require.NoError(t, err)
	assert.Empty(t, m.Stop())
}

func TestNewSampler_Reads(t *testing.T) {
	r, err := NewSampler().Read()
	require.NoError(t, err)
	assert.Positive(t, r.RSSBytes)
	assert.Positive(t, r.HeapBytes)
}

func TestMemStatsSampler(t *testing.T) {
	r, err := MemStatsSampler{}.Read()
	require.NoError(t, err)
	assert.Positive(t, r.RSSBytes)
	assert.InDelta(t, 0.0, r.CPUSeconds, 0)
}
