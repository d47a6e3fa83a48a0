package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-utils/mwapipe/internal/config"
)

func TestFormatAndCompressionFromPath(t *testing.T) {
	tests := []struct {
		path        string
		format      string
		compression Compression
	}{
		{"run.json", config.ReportFormatJSON, CompressionNone},
		{"run.json.gz", config.ReportFormatJSON, CompressionGzip},
		{"run.yaml.zst", config.ReportFormatYAML, CompressionZstd},
		{"run.yml", config.ReportFormatYAML, CompressionNone},
		{"run.ndjson.lz4", config.ReportFormatNDJSON, CompressionLZ4},
		{"RUN.JSONL", config.ReportFormatNDJSON, CompressionNone},
		{"run", config.ReportFormatJSON, CompressionNone},
		{"run.gz", config.ReportFormatJSON, CompressionGzip},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.format, FormatFromPath(tt.path))
			assert.Equal(t, tt.compression, CompressionFromPath(tt.path))
		})
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	want := sampleReport()

	for _, name := range []string{
		"report.json", "report.yaml", "report.ndjson",
		"report.json.gz", "report.yaml.zst", "report.ndjson.lz4",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", name)
			require.NoError(t, Write(path, "", want))

			got, err := Read(path)
			require.NoError(t, err)

			assert.Equal(t, want.RunID, got.RunID)
			assert.Equal(t, want.Status, got.Status)
			assert.True(t, want.StartedAt.Equal(got.StartedAt))
			assert.Equal(t, want.Plan, got.Plan)
			assert.Equal(t, want.Descriptor, got.Descriptor)
			assert.Equal(t, want.Batches, got.Batches)
			assert.Equal(t, want.Config.SampleInterval, got.Config.SampleInterval)
			assert.Equal(t, want.Summary, got.Summary)
			require.Len(t, got.BudgetEvents, 1)
			assert.Equal(t, want.BudgetEvents[0].Budget, got.BudgetEvents[0].Budget)

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temp files left behind")
		})
	}
}

func TestWrite_CompressedIsNotPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json.gz")
	require.NoError(t, Write(path, "", sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])
}

func TestEncode_NDJSONLayout(t *testing.T) {
	r := sampleReport()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, config.ReportFormatNDJSON, r))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(r.Batches)+2)
	assert.Contains(t, lines[0], `"type":"header"`)
	assert.NotContains(t, lines[0], `"batches":[`)
	assert.Contains(t, lines[1], `"type":"batch"`)
	assert.Equal(t, `{"type":"footer","batches":20}`, lines[len(lines)-1])
}

func TestDecode_NDJSONTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, config.ReportFormatNDJSON, sampleReport()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	t.Run("missing footer", func(t *testing.T) {
		in := strings.Join(lines[:len(lines)-1], "\n")
		_, err := Decode(strings.NewReader(in), config.ReportFormatNDJSON)
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("missing batch", func(t *testing.T) {
		in := strings.Join(append(append([]string{}, lines[:3]...), lines[4:]...), "\n")
		_, err := Decode(strings.NewReader(in), config.ReportFormatNDJSON)
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("batch before header", func(t *testing.T) {
		_, err := Decode(strings.NewReader(lines[1]), config.ReportFormatNDJSON)
		require.ErrorIs(t, err, ErrMalformedLines)
	})
}

func TestDecode_SchemaVersion(t *testing.T) {
	tests := []struct {
		version string
		wantErr bool
	}{
		{"1.0.0", false},
		{"1.4.2", false},
		{"2.0.0", true},
		{"0.9.0", true},
		{"", true},
		{"banana", true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			r := sampleReport()
			r.SchemaVersion = tt.version
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, config.ReportFormatJSON, r))

			_, err := Decode(&buf, config.ReportFormatJSON)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrSchemaVersion)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	err := Encode(&bytes.Buffer{}, "xml", sampleReport())
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Decode(strings.NewReader("{}"), "xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
