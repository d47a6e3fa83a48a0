package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-utils/mwapipe/internal/pipeline"
)

func TestRender_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "mwapipe run 01JNM7W6ZK8S3X1R2P4Q5T6V7W: failed")
	assert.Contains(t, out, "gpubox-float32, 200 records x 1.0 MiB (8,256 rows, 768 channels)")
	assert.Contains(t, out, "20 batches of 10, peak 20 MiB of 100 MiB budget")
	assert.Contains(t, out, "60 / 200 (30.0 records/s)")
	assert.Contains(t, out, "6 completed, 1 failed, 13 not attempted, 0 skipped")
	assert.Contains(t, out, "200 MiB (3 samples)")
	assert.Contains(t, out, "exceeded 1 times")
	assert.Contains(t, out, "600 of 6,000 visibilities (10.00%)")
	assert.Contains(t, out, "  diff")
	assert.Contains(t, out, "600ms")
	assert.Contains(t, out, "Error: stage \"diff\" failed")
	assert.NotContains(t, out, "\x1b[", "no ANSI escapes outside a terminal")
}

func TestRender_Minimal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, &Report{RunID: "r", Status: pipeline.RunSucceeded}))
	assert.Contains(t, buf.String(), "0 / 0")
	assert.NotContains(t, buf.String(), "Error:")
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, colorOK(), StatusColor(pipeline.RunSucceeded))
	assert.Equal(t, colorWarning(), StatusColor(pipeline.RunCancelled))
	assert.Equal(t, colorError(), StatusColor(pipeline.BatchFailed))
}
