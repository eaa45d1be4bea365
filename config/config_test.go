package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultModelPath, cfg.ModelPath)
	assert.Equal(t, DefaultOutputPath, cfg.OutputPath)
	assert.Equal(t, 640, cfg.InputSize)
	assert.InDelta(t, 0.3, cfg.ConfidenceThreshold, 1e-6)
	assert.Len(t, cfg.Labels, 22)
	assert.Equal(t, "HeartBreak", cfg.Labels[0])
	assert.Equal(t, "Endturn", cfg.Labels[21])

	// Mutating the copy must not touch the package level label set.
	cfg.Labels[0] = "changed"
	assert.Equal(t, "HeartBreak", DefaultLabels[0])
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yolov5.yaml")
	err := os.WriteFile(path, []byte(`
model_path: /models/cards.onnx
confidence_threshold: 0.5
labels: [a, b, c]
engine: opencv
`), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/models/cards.onnx", cfg.ModelPath)
	assert.InDelta(t, 0.5, cfg.ConfidenceThreshold, 1e-6)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Labels)
	assert.Equal(t, EngineOpenCV, cfg.Engine)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultInputSize, cfg.InputSize)
	assert.Equal(t, DefaultOutputPath, cfg.OutputPath)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("input_size: [nope"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("input_size: 100"), 0o644))
	cfg, err := Load(invalid)
	require.NoError(t, err, "Load leaves validation to the caller")
	assert.Equal(t, 100, cfg.InputSize)
	assert.ErrorContains(t, cfg.Validate(), "input_size")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing model", func(c *Config) { c.ModelPath = "" }, "model_path"},
		{"missing output", func(c *Config) { c.OutputPath = "" }, "output_path"},
		{"no labels", func(c *Config) { c.Labels = nil }, "labels"},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"negative nms", func(c *Config) { c.NMSThreshold = -0.1 }, "nms_threshold"},
		{"negative threads", func(c *Config) { c.IntraOpThreads = -1 }, "thread"},
		{"bad output type", func(c *Config) { c.OutputType = "mask" }, "output_type"},
		{"bad engine", func(c *Config) { c.Engine = "tflite" }, "engine"},
		{"bad provider", func(c *Config) { c.Provider = "tpu" }, "provider"},
		{"bad execution mode", func(c *Config) { c.ExecutionMode = "async" }, "execution_mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	cfg.Labels = nil
	cfg.LabelsPath = "labels.txt"
	assert.NoError(t, cfg.Validate())
}
