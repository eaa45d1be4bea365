package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRuntimeProfiler_Timings(t *testing.T) {
	rp := NewRuntimeProfiler()

	done := rp.StartOperation("decode")
	time.Sleep(2 * time.Millisecond)
	done()
	rp.StartOperation("inference")()
	rp.StartOperation("decode")()

	timings := rp.Timings()
	require.Len(t, timings, 2)
	assert.Equal(t, "decode", timings[0].Name)
	assert.Equal(t, int64(2), timings[0].Count)
	assert.GreaterOrEqual(t, timings[0].Max, 2*time.Millisecond)
	assert.LessOrEqual(t, timings[0].Min, timings[0].Max)
	assert.Equal(t, "inference", timings[1].Name)
}

func TestRuntimeProfiler_Report(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rp := NewRuntimeProfiler()
	rp.StartOperation("render")()

	rp.Report(zap.New(core).Sugar())

	entries := logs.FilterMessage("run profile").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Contains(t, fields, "render")
	assert.Contains(t, fields, "elapsed")
	assert.Contains(t, fields, "allocated")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
