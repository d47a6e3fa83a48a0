package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// Built-in stage names.
const (
	StageDiff       = "diff"
	StageCoarseBand = "coarse-band"
	StageINSFlag    = "ins-flag"
	StageSummary    = "summary"
)

// KnownStages lists the stage names accepted in pipeline.stages.
//
//nolint:gochecknoglobals // Fixed lookup table.
var KnownStages = []string{StageDiff, StageCoarseBand, StageINSFlag, StageSummary}

// autoBudget is the memory_budget value that asks for budget detection.
const autoBudget = "auto"

// Pipeline validation errors.
var (
	ErrInvalidBudget          = errors.New("memory_budget must be a positive byte size or \"auto\"")
	ErrInvalidSampleInterval  = errors.New("sample_interval must be positive")
	ErrInvalidTolerance       = errors.New("tolerance must be >= 1.0")
	ErrNegativeMaxBatch       = errors.New("max_batch_records cannot be negative")
	ErrInvalidAutoBudgetRatio = errors.New("auto_budget_ratio must be in (0, 1]")
	ErrNoStages               = errors.New("at least one pipeline stage is required")
	ErrUnknownStage           = errors.New("unknown pipeline stage")
	ErrDuplicateStage         = errors.New("duplicate pipeline stage")
	ErrInvalidStageOption     = errors.New("invalid stage option")
)

// spectrumTypes lists the accepted ins-flag spectrum_type values.
//
//nolint:gochecknoglobals // Fixed lookup table.
var spectrumTypes = []string{uvdata.SpectrumAll, uvdata.SpectrumAuto, uvdata.SpectrumCross}

// ByteSize is a memory amount written as a human size ("4GiB", "512MB",
// "1073741824") or "auto".
type ByteSize struct {
	Bytes int64
	Auto  bool
}

// ParseByteSize parses a byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, autoBudget) {
		return ByteSize{Auto: true}, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return ByteSize{}, fmt.Errorf("%w: %q", ErrInvalidBudget, s)
	}
	if n == 0 || n > uint64(1<<62) {
		return ByteSize{}, fmt.Errorf("%w: %q", ErrInvalidBudget, s)
	}
	return ByteSize{Bytes: int64(n)}, nil
}

// MustByteSize is ParseByteSize for constants; it panics on error.
func MustByteSize(s string) ByteSize {
	b, err := ParseByteSize(s)
	if err != nil {
		panic(err)
	}
	return b
}

// String renders the size in IEC units, or "auto".
func (b ByteSize) String() string {
	if b.Auto {
		return autoBudget
	}
	if b.Bytes < 0 {
		return "invalid"
	}
	return humanize.IBytes(uint64(b.Bytes))
}

// UnmarshalYAML accepts either a string or a plain integer.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: expected a scalar at line %d", ErrInvalidBudget, value.Line)
	}
	parsed, err := ParseByteSize(value.Value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Exact renders the size without rounding, using the largest IEC unit that
// divides it ("3GiB", "1536KiB", "1000").
func (b ByteSize) Exact() string {
	if b.Auto {
		return autoBudget
	}
	for _, u := range []struct {
		suffix string
		size   int64
	}{{"TiB", 1 << 40}, {"GiB", 1 << 30}, {"MiB", 1 << 20}, {"KiB", 1 << 10}} {
		if b.Bytes >= u.size && b.Bytes%u.size == 0 {
			return strconv.FormatInt(b.Bytes/u.size, 10) + u.suffix
		}
	}
	return strconv.FormatInt(b.Bytes, 10)
}

// MarshalYAML writes the exact form so Save never loses precision.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.Exact(), nil
}

// MarshalText is used by JSON encoding.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.Exact()), nil
}

// StageOptions is the fixed set of options a stage may take. Zero means
// "use the stage default".
type StageOptions struct {
	// Threshold is the |z| above which ins-flag flags a cell.
	Threshold float64 `yaml:"threshold,omitempty"       json:"threshold,omitempty"`
	// EdgeChannels is how many channels coarse-band flags at each band edge.
	EdgeChannels int `yaml:"edge_channels,omitempty"   json:"edge_channels,omitempty"`
	// CoarseChannels overrides the number of coarse bands in a record.
	CoarseChannels int `yaml:"coarse_channels,omitempty" json:"coarse_channels,omitempty"`
	// SpectrumType picks the baselines ins-flag averages: all, auto or cross.
	SpectrumType string `yaml:"spectrum_type,omitempty"   json:"spectrum_type,omitempty"`
}

// StageConfig names one pipeline stage and its options.
type StageConfig struct {
	Name    string       `yaml:"name"              json:"name"`
	Options StageOptions `yaml:"options,omitempty" json:"options,omitempty"`
}

// SelectionConfig restricts the antennas and polarisations stages look at.
// Antennas are 0-based metafits input indices.
type SelectionConfig struct {
	SelAnts  []int    `yaml:"sel_ants,omitempty"  json:"sel_ants,omitempty"`
	SkipAnts []int    `yaml:"skip_ants,omitempty" json:"skip_ants,omitempty"`
	SelPols  []string `yaml:"sel_pols,omitempty"  json:"sel_pols,omitempty"`
}

// Selection converts the section into a row selection.
func (s SelectionConfig) Selection() uvdata.Selection {
	return uvdata.Selection{SelAnts: s.SelAnts, SkipAnts: s.SkipAnts, SelPols: s.SelPols}
}

// PipelineConfig controls batching, monitoring and the stage list.
type PipelineConfig struct {
	MemoryBudget        ByteSize        `yaml:"memory_budget"         json:"memory_budget"`
	SampleInterval      time.Duration   `yaml:"sample_interval"       json:"sample_interval"`
	Tolerance           float64         `yaml:"tolerance"             json:"tolerance"`
	BudgetExceededFatal bool            `yaml:"budget_exceeded_fatal" json:"budget_exceeded_fatal"`
	MaxBatchRecords     int             `yaml:"max_batch_records"     json:"max_batch_records"`
	ReleaseMemory       bool            `yaml:"release_memory"        json:"release_memory"`
	AutoBudgetRatio     float64         `yaml:"auto_budget_ratio"     json:"auto_budget_ratio"`
	Selection           SelectionConfig `yaml:"selection,omitempty"   json:"selection"`
	Stages              []StageConfig   `yaml:"stages"                json:"stages"`
}

func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MemoryBudget:    ByteSize{Bytes: DefaultMemoryBudget},
		SampleInterval:  DefaultSampleInterval,
		Tolerance:       DefaultTolerance,
		ReleaseMemory:   true,
		AutoBudgetRatio: DefaultAutoBudgetRatio,
		Stages: []StageConfig{
			{Name: StageDiff},
			{Name: StageINSFlag, Options: StageOptions{Threshold: DefaultThreshold, SpectrumType: DefaultSpectrumType}},
			{Name: StageSummary},
		},
	}
}

// StageNames returns the configured stage names in order.
func (p PipelineConfig) StageNames() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name
	}
	return names
}

// Validate checks the pipeline section and reports all problems at once.
func (p PipelineConfig) Validate() error {
	var errs []error

	if !p.MemoryBudget.Auto && p.MemoryBudget.Bytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidBudget, p.MemoryBudget.Bytes))
	}
	if p.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %s", ErrInvalidSampleInterval, p.SampleInterval))
	}
	if p.Tolerance < 1.0 {
		errs = append(errs, fmt.Errorf("%w: got %.3f", ErrInvalidTolerance, p.Tolerance))
	}
	if p.MaxBatchRecords < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrNegativeMaxBatch, p.MaxBatchRecords))
	}
	if p.AutoBudgetRatio <= 0 || p.AutoBudgetRatio > 1 {
		errs = append(errs, fmt.Errorf("%w: got %.3f", ErrInvalidAutoBudgetRatio, p.AutoBudgetRatio))
	}

	if err := p.Selection.Selection().Validate(0); err != nil {
		errs = append(errs, fmt.Errorf("selection: %w", err))
	}

	if len(p.Stages) == 0 {
		errs = append(errs, ErrNoStages)
	}
	seen := make(map[string]bool, len(p.Stages))
	for i, s := range p.Stages {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("stages[%d]: %w", i, err))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("stages[%d]: %w: %q", i, ErrDuplicateStage, s.Name))
		}
		seen[s.Name] = true
	}

	return errors.Join(errs...)
}

// Validate checks the stage name and its options.
func (s StageConfig) Validate() error {
	if !IsKnownStage(s.Name) {
		return fmt.Errorf("%w: %q (known: %s)", ErrUnknownStage, s.Name, strings.Join(KnownStages, ", "))
	}
	if s.Options.Threshold < 0 {
		return fmt.Errorf("%w: threshold must be >= 0, got %g", ErrInvalidStageOption, s.Options.Threshold)
	}
	if s.Options.EdgeChannels < 0 {
		return fmt.Errorf("%w: edge_channels must be >= 0, got %d", ErrInvalidStageOption, s.Options.EdgeChannels)
	}
	if s.Options.CoarseChannels < 0 {
		return fmt.Errorf("%w: coarse_channels must be >= 0, got %d", ErrInvalidStageOption, s.Options.CoarseChannels)
	}
	if t := s.Options.SpectrumType; t != "" && !slices.Contains(spectrumTypes, t) {
		return fmt.Errorf("%w: spectrum_type must be one of %s, got %q",
			ErrInvalidStageOption, strings.Join(spectrumTypes, ", "), t)
	}
	return nil
}

// stage returns the configured stage named name.
func (p PipelineConfig) stage(name string) (StageConfig, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageConfig{}, false
}

// SpectrumType returns the ins-flag spectrum type, defaulting to cross.
func (p PipelineConfig) SpectrumType() string {
	if s, ok := p.stage(StageINSFlag); ok && s.Options.SpectrumType != "" {
		return s.Options.SpectrumType
	}
	return DefaultSpectrumType
}

// OutputSuffix names the products of a run: ".diff" when differencing,
// the spectrum type unless it is all, then a lone selected or skipped
// antenna and a lone polarisation (".diff.cross.12.xx").
func (p PipelineConfig) OutputSuffix() string {
	var suffix string
	if t := p.SpectrumType(); t != uvdata.SpectrumAll {
		suffix = "." + t
	}
	if _, ok := p.stage(StageDiff); ok {
		suffix = ".diff" + suffix
	}
	sel := p.Selection
	switch {
	case len(sel.SelAnts) == 1:
		suffix += "." + strconv.Itoa(sel.SelAnts[0])
	case len(sel.SkipAnts) == 1:
		suffix += ".no" + strconv.Itoa(sel.SkipAnts[0])
	}
	if len(sel.SelPols) == 1 {
		suffix += "." + strings.ToLower(sel.SelPols[0])
	}
	return suffix
}

// IsKnownStage reports whether name is a built-in stage.
func IsKnownStage(name string) bool {
	for _, k := range KnownStages {
		if k == name {
			return true
		}
	}
	return false
}

// ParseStageList turns a comma-separated list ("diff,ins-flag") into stage
// configs, keeping options already configured for stages of the same name.
func ParseStageList(list string, existing []StageConfig) []StageConfig {
	byName := make(map[string]StageOptions, len(existing))
	for _, s := range existing {
		byName[s.Name] = s.Options
	}

	var stages []StageConfig
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		stages = append(stages, StageConfig{Name: name, Options: byName[name]})
	}
	return stages
}
