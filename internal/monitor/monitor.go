package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mwa-utils/mwapipe/internal/logging"
)

// Defaults applied by New.
const (
	DefaultInterval  = time.Second
	DefaultTolerance = 1.10
)

// Configuration errors.
var (
	ErrInvalidInterval  = errors.New("sample interval must be positive")
	ErrInvalidTolerance = errors.New("tolerance must be at least 1")
	ErrNegativeBudget   = errors.New("budget cannot be negative")
)

// Sample is one resource reading. Samples are never modified once
// recorded.
type Sample struct {
	Time       time.Time `json:"time" yaml:"time"`
	RSSBytes   uint64    `json:"rss_bytes" yaml:"rss_bytes"`
	HeapBytes  uint64    `json:"heap_bytes" yaml:"heap_bytes"`
	CPUPercent float64   `json:"cpu_percent" yaml:"cpu_percent"`
}

// Config configures a Monitor. Zero values take defaults.
type Config struct {
	Interval time.Duration
	// Budget in bytes; zero disables budget checks.
	Budget    int64
	Tolerance float64
	Sampler   Sampler
	// OnBudgetExceeded runs on the sampling goroutine for every event.
	OnBudgetExceeded func(BudgetExceeded)
}

// Monitor samples the process at a fixed interval between Start and Stop.
type Monitor struct {
	interval  time.Duration
	budget    int64
	tolerance float64
	sampler   Sampler
	onExceed  func(BudgetExceeded)
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	samples []Sample
	events  []BudgetExceeded
	lastCPU float64
	readErr int
}

// New validates cfg and returns a stopped monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidInterval, cfg.Interval)
	}
	if cfg.Tolerance < 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidTolerance, cfg.Tolerance)
	}
	if cfg.Budget < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeBudget, cfg.Budget)
	}
	if cfg.Sampler == nil {
		cfg.Sampler = NewSampler()
	}

	return &Monitor{
		interval:  cfg.Interval,
		budget:    cfg.Budget,
		tolerance: cfg.Tolerance,
		sampler:   cfg.Sampler,
		onExceed:  cfg.OnBudgetExceeded,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}, nil
}

// Start takes a sample immediately and then one per interval until Stop
// or ctx is cancelled. Calling Start on a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.logger = logging.ComponentLogger(*logging.FromContext(ctx), "monitor")
	done := m.done
	m.mu.Unlock()

	m.logger.Debug().
		Dur("interval", m.interval).
		Int64("budget", m.budget).
		Float64("tolerance", m.tolerance).
		Msg("resource monitor started")

	m.sample()
	go m.loop(loopCtx, done)
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// Stop halts sampling, waits for the loop to exit and returns every sample
// in order. Stopping a stopped monitor returns the samples again.
func (m *Monitor) Stop() []Sample {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return m.Samples()
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	samples := m.Samples()
	m.logger.Debug().Int("samples", len(samples)).Msg("resource monitor stopped")
	return samples
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Samples returns a copy of the samples recorded so far.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.samples)
}

// Events returns a copy of the BudgetExceeded events recorded so far.
func (m *Monitor) Events() []BudgetExceeded {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// Peak returns the sample with the highest RSS, or false if none exist.
func (m *Monitor) Peak() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.samples) == 0 {
		return Sample{}, false
	}
	peak := m.samples[0]
	for _, s := range m.samples[1:] {
		if s.RSSBytes > peak.RSSBytes {
			peak = s
		}
	}
	return peak, true
}

// Budget returns the configured budget in bytes.
func (m *Monitor) Budget() int64 {
	return m.budget
}

// Tolerance returns the configured tolerance factor.
func (m *Monitor) Tolerance() float64 {
	return m.tolerance
}

func (m *Monitor) sample() {
	reading, err := m.sampler.Read()
	now := m.now()

	m.mu.Lock()
	if err != nil {
		m.readErr++
		first := m.readErr == 1
		m.mu.Unlock()
		if first {
			m.logger.Warn().Err(err).Msg("resource sample failed")
		}
		return
	}

	s := Sample{Time: now, RSSBytes: reading.RSSBytes, HeapBytes: reading.HeapBytes}
	if n := len(m.samples); n > 0 {
		prev := m.samples[n-1]
		if s.Time.Before(prev.Time) {
			s.Time = prev.Time
		}
		if elapsed := s.Time.Sub(prev.Time).Seconds(); elapsed > 0 {
			s.CPUPercent = max(reading.CPUSeconds-m.lastCPU, 0) / elapsed * 100
		}
	}
	m.lastCPU = reading.CPUSeconds
	m.samples = append(m.samples, s)

	var event *BudgetExceeded
	if m.budget > 0 && float64(s.RSSBytes) > float64(m.budget)*m.tolerance {
		event = &BudgetExceeded{Sample: s, Budget: m.budget, Tolerance: m.tolerance}
		m.events = append(m.events, *event)
	}
	m.mu.Unlock()

	if event == nil {
		return
	}
	m.logger.Warn().
		Uint64("rss_bytes", s.RSSBytes).
		Int64("budget", m.budget).
		Int64("limit", event.Limit()).
		Msg("memory budget exceeded")
	if m.onExceed != nil {
		m.onExceed(*event)
	}
}
