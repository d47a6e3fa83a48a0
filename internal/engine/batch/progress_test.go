package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func TestProgress(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := newProgress(100, 4, clock.now)

	assert.InDelta(t, 0.0, p.PercentComplete(), 0)
	assert.Equal(t, time.Duration(0), p.EstimatedTimeRemaining())
	assert.False(t, p.IsComplete())

	p.AddSkipped(25)
	clock.t = clock.t.Add(10 * time.Second)
	p.AddProcessed(25)

	assert.InDelta(t, 50.0, p.PercentComplete(), 0.001)
	assert.InDelta(t, 2.5, p.RecordsPerSecond(), 0.001)
	assert.Equal(t, 20*time.Second, p.EstimatedTimeRemaining())
	assert.Equal(t, 10*time.Second, p.ElapsedTime())

	p.AddProcessed(25)
	p.AddProcessed(25)
	assert.True(t, p.IsComplete())

	snap := p.Snapshot()
	assert.Equal(t, 75, snap.ProcessedRecords)
	assert.Equal(t, 25, snap.SkippedRecords)
	assert.Equal(t, 4, snap.ProcessedBatches)
	assert.InDelta(t, 100.0, snap.PercentComplete, 0.001)
	assert.Equal(t, clock.t, snap.LastUpdateTime)
}

func TestNewProgress_FromPlan(t *testing.T) {
	plan := &Plan{TotalRecords: 30, Ranges: Split(30, 10), BatchSize: 10}
	p := NewProgress(plan)
	assert.Equal(t, 30, p.TotalRecords)
	assert.Equal(t, 3, p.TotalBatches)
	assert.GreaterOrEqual(t, p.ElapsedTime(), time.Duration(0))
}
