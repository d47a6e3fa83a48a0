package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateHome points MWAPIPE_HOME at a temp dir so tests never read the
// developer's real configuration.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	for _, env := range []string{EnvLogLevel, EnvLogFormat, EnvBudget, EnvCacheEnabled, EnvCacheDir} {
		t.Setenv(env, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNew_DefaultsAreValid(t *testing.T) {
	home := isolateHome(t)

	cfg := New()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(DefaultMemoryBudget), cfg.Pipeline.MemoryBudget.Bytes)
	assert.Equal(t, time.Second, cfg.Pipeline.SampleInterval)
	assert.InDelta(t, 1.1, cfg.Pipeline.Tolerance, 1e-9)
	assert.Equal(t, []string{StageDiff, StageINSFlag, StageSummary}, cfg.Pipeline.StageNames())
	assert.Equal(t, filepath.Join(home, "config.yaml"), cfg.ConfigPath())
	assert.Equal(t, filepath.Join(home, "cache"), cfg.Cache.Directory)
}

func TestLoad_GlobalAndOverlay(t *testing.T) {
	home := isolateHome(t)

	writeFile(t, filepath.Join(home, "config.yaml"), `
pipeline:
  memory_budget: 8GiB
  sample_interval: 250ms
logging:
  level: debug
`)
	overlay := filepath.Join(t.TempDir(), "job.yaml")
	writeFile(t, overlay, `
pipeline:
  memory_budget: 512MiB
  stages:
    - name: coarse-band
      options:
        edge_channels: 4
    - name: summary
report:
  path: out/report.yaml.zst
`)

	cfg, err := Load(overlay)
	require.NoError(t, err)

	// The overlay replaces the pipeline section wholesale, so the global
	// sample_interval falls back to its default.
	assert.Equal(t, int64(512<<20), cfg.Pipeline.MemoryBudget.Bytes)
	assert.Equal(t, DefaultSampleInterval, cfg.Pipeline.SampleInterval)
	assert.Equal(t, []string{StageCoarseBand, StageSummary}, cfg.Pipeline.StageNames())
	assert.Equal(t, 4, cfg.Pipeline.Stages[0].Options.EdgeChannels)

	// Sections the overlay does not mention keep the global values.
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "out/report.yaml.zst", cfg.Report.Path)
}

func TestLoad_MissingOverlay(t *testing.T) {
	isolateHome(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvBudget, "auto")
	t.Setenv(EnvCacheEnabled, "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Pipeline.MemoryBudget.Auto)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_InvalidEnvBudget(t *testing.T) {
	isolateHome(t)
	t.Setenv(EnvBudget, "lots")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	isolateHome(t)

	cfg := New()
	cfg.Pipeline.SampleInterval = 0
	cfg.Pipeline.Tolerance = 0.5
	cfg.Pipeline.Stages = append(cfg.Pipeline.Stages, StageConfig{Name: "fft"}, StageConfig{Name: StageDiff})
	cfg.Logging.Format = "xml"
	cfg.Report.Format = "csv"
	cfg.Cache.TTLSeconds = 1

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []error{
		ErrInvalidSampleInterval, ErrInvalidTolerance, ErrUnknownStage, ErrDuplicateStage,
		ErrInvalidLogFormat, ErrInvalidReportFormat, ErrInvalidCacheTTL,
	} {
		assert.ErrorIs(t, err, want)
	}
}

func TestValidate_DisabledCacheSkipsChecks(t *testing.T) {
	isolateHome(t)

	cfg := New()
	cfg.Cache = CacheConfig{Enabled: false}
	assert.NoError(t, cfg.Validate())
}

func TestSave_RoundTrip(t *testing.T) {
	isolateHome(t)

	cfg := New()
	cfg.Pipeline.MemoryBudget = MustByteSize("3GiB")
	cfg.Pipeline.Stages = []StageConfig{{Name: StageINSFlag, Options: StageOptions{Threshold: 4.5}}}
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg.SetConfigPath(path)
	require.NoError(t, cfg.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3<<30), loaded.Pipeline.MemoryBudget.Bytes)
	require.Len(t, loaded.Pipeline.Stages, 1)
	assert.InDelta(t, 4.5, loaded.Pipeline.Stages[0].Options.Threshold, 1e-9)
	assert.Equal(t, cfg.Pipeline.SampleInterval, loaded.Pipeline.SampleInterval)
}

func TestContextWithConfig(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	cfg := &Config{}
	ctx := ContextWithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}

func TestShallowMergeYAML_Errors(t *testing.T) {
	isolateHome(t)

	err := ShallowMergeYAML(nil, "x")
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "pipeline: [unclosed")
	err = ShallowMergeYAML(New(), bad)
	require.Error(t, err)

	typed := filepath.Join(t.TempDir(), "typed.yaml")
	writeFile(t, typed, "pipeline:\n  memory_budget: plenty\n")
	err = ShallowMergeYAML(New(), typed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidBudget))
}

func TestShallowMergeYAML_IgnoresUnknownAndEmpty(t *testing.T) {
	isolateHome(t)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	writeFile(t, empty, "# nothing here\n")
	cfg := New()
	require.NoError(t, ShallowMergeYAML(cfg, empty))
	assert.Equal(t, New().Pipeline.StageNames(), cfg.Pipeline.StageNames())

	unknown := filepath.Join(t.TempDir(), "unknown.yaml")
	writeFile(t, unknown, "plugins:\n  foo: bar\n")
	require.NoError(t, ShallowMergeYAML(cfg, unknown))
}
