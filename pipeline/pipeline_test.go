package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-yolov5/common"
	"github.com/nvr-ai/go-yolov5/config"
	"github.com/nvr-ai/go-yolov5/images"
	"github.com/nvr-ai/go-yolov5/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"
)

// writeImage writes a w x h gradient PNG and returns its path.
func writeImage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	mat, err := gocv.ImageToMatRGB(img)
	require.NoError(t, err)
	defer mat.Close()

	path := filepath.Join(t.TempDir(), "input.png")
	require.True(t, gocv.IMWrite(path, mat))
	return path
}

// fakeEngine replays a fixed [1, N, 5+C] output.
type fakeEngine struct {
	inputShape []int64
	output     inference.Output
}

func (f *fakeEngine) InputShape() []int64     { return f.inputShape }
func (f *fakeEngine) OutputShapes() [][]int64 { return [][]int64{f.output.Shape} }
func (f *fakeEngine) Close() error            { return nil }

func (f *fakeEngine) Run(input []float32) ([]inference.Output, error) {
	out := f.output
	out.Data = append([]float32(nil), f.output.Data...)
	return []inference.Output{out}, nil
}

// fakeDetector returns a factory whose engine reports the given rows for the
// default label set.
func fakeDetector(rows ...[]float32) DetectorFactory {
	cols := 5 + len(config.DefaultLabels)
	data := make([]float32, 0, len(rows)*cols)
	for _, r := range rows {
		row := make([]float32, cols)
		copy(row, r)
		data = append(data, row...)
	}
	return func(cfg config.Config, labels inference.LabelSet, logger *zap.SugaredLogger) (*inference.Detector, error) {
		size := int64(cfg.InputSize)
		engine := &fakeEngine{
			inputShape: []int64{1, 3, size, size},
			output: inference.Output{
				Name:  "output0",
				Shape: []int64{1, int64(len(rows)), int64(cols)},
				Data:  data,
			},
		}
		return inference.NewDetectorWithEngine(engine, cfg, labels, logger)
	}
}

func fileChecksum(t *testing.T, path string) string {
	t.Helper()
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	require.False(t, mat.Empty(), path)
	return images.ComputeMatChecksum(mat)
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.OutputPath = filepath.Join(t.TempDir(), "out", "yolov5.png")
	return cfg
}

func TestResolveLabels(t *testing.T) {
	cfg := config.Default()
	labels, err := ResolveLabels(cfg)
	require.NoError(t, err)
	assert.Equal(t, inference.LabelSet(config.DefaultLabels), labels)

	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("person\ncar\n"), 0o644))
	cfg.LabelsPath = path
	labels, err = ResolveLabels(cfg)
	require.NoError(t, err)
	assert.Equal(t, inference.LabelSet{"person", "car"}, labels)

	cfg.LabelsPath = ""
	cfg.Labels = []string{"a", "a"}
	_, err = ResolveLabels(cfg)
	assert.Error(t, err)
}

func TestRun_MissingImage(t *testing.T) {
	cfg := testConfig(t)

	_, err := Run(context.Background(), cfg, filepath.Join(t.TempDir(), "nope.jpg"), zaptest.NewLogger(t).Sugar())
	var decodeErr *common.DecodeError
	require.True(t, errors.As(err, &decodeErr), "got %v", err)
	assert.NoFileExists(t, cfg.OutputPath)
}

func TestRun_MissingModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")

	_, err := Run(context.Background(), cfg, writeImage(t, 64, 48), zaptest.NewLogger(t).Sugar())
	var loadErr *common.ModelLoadError
	require.True(t, errors.As(err, &loadErr), "got %v", err)
	assert.NoFileExists(t, cfg.OutputPath)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ConfidenceThreshold = 2

	_, err := Run(context.Background(), cfg, writeImage(t, 8, 8), zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
	assert.NoFileExists(t, cfg.OutputPath)
}

func TestRunWithDetector_NoDetections(t *testing.T) {
	cfg := testConfig(t)
	cfg.InputSize = 64
	input := writeImage(t, 96, 72)

	result, err := RunWithDetector(context.Background(), cfg, input, zaptest.NewLogger(t).Sugar(),
		fakeDetector([]float32{32, 32, 10, 10, 0.01, 0.9}))
	require.NoError(t, err)

	assert.Empty(t, result.Detections)
	assert.Equal(t, cfg.OutputPath, result.OutputPath)
	assert.FileExists(t, cfg.OutputPath, "missing output directory is created")
	assert.Equal(t, 96, result.Width)
	assert.Equal(t, 72, result.Height)
	assert.Equal(t, fileChecksum(t, input), result.Checksum, "nothing is drawn")
	assert.Equal(t, fileChecksum(t, input), fileChecksum(t, cfg.OutputPath))

	var stages []string
	for _, timing := range result.Timings {
		stages = append(stages, timing.Name)
	}
	assert.Equal(t, []string{"decode", "load", "inference", "render"}, stages)
}

func TestRunWithDetector_Deterministic(t *testing.T) {
	input := writeImage(t, 160, 120)
	detector := fakeDetector(
		[]float32{32, 32, 20, 20, 0.9, 0.9},
		[]float32{48, 16, 10, 12, 0.8, 0, 0, 0.7},
	)

	var results []*Result
	for i := 0; i < 2; i++ {
		cfg := testConfig(t)
		cfg.InputSize = 64

		result, err := RunWithDetector(context.Background(), cfg, input, zaptest.NewLogger(t).Sugar(), detector)
		require.NoError(t, err)
		require.Len(t, result.Detections, 2)
		for _, det := range result.Detections {
			assert.GreaterOrEqual(t, det.Confidence, cfg.ConfidenceThreshold)
			assert.Contains(t, config.DefaultLabels, det.Label)
		}
		results = append(results, result)
	}

	assert.Equal(t, results[0].Detections, results[1].Detections)
	assert.Equal(t, results[0].Checksum, results[1].Checksum)
	assert.Equal(t, fileChecksum(t, results[0].OutputPath), fileChecksum(t, results[1].OutputPath))
	assert.NotEqual(t, fileChecksum(t, input), results[0].Checksum, "boxes are drawn")
}

func TestRunWithDetector_CanceledContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.InputSize = 64
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunWithDetector(ctx, cfg, writeImage(t, 32, 32), zaptest.NewLogger(t).Sugar(),
		fakeDetector([]float32{16, 16, 8, 8, 0.9, 0.9}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, cfg.OutputPath)
}

// TestRun_BundledModel runs the whole pipeline twice on the bundled model when
// it and the onnxruntime library are present.
func TestRun_BundledModel(t *testing.T) {
	modelPath := filepath.Join("..", config.DefaultModelPath)
	if _, err := os.Stat(modelPath); err != nil {
		t.Skipf("model not found at %s", modelPath)
	}
	libPath := filepath.Join("..", inference.GetSharedLibPath())
	if _, err := os.Stat(libPath); err != nil {
		t.Skipf("onnxruntime library not found at %s", libPath)
	}

	input := writeImage(t, 320, 200)
	logger := zaptest.NewLogger(t).Sugar()

	var checksums []string
	for i := 0; i < 2; i++ {
		cfg := testConfig(t)
		cfg.ModelPath = modelPath
		cfg.SharedLibraryPath = libPath

		result, err := Run(context.Background(), cfg, input, logger)
		require.NoError(t, err)
		assert.FileExists(t, result.OutputPath)
		assert.Equal(t, 320, result.Width)
		assert.Equal(t, 200, result.Height)
		for _, det := range result.Detections {
			assert.GreaterOrEqual(t, det.Confidence, cfg.ConfidenceThreshold)
		}

		saved := gocv.IMRead(result.OutputPath, gocv.IMReadColor)
		assert.Equal(t, 320, saved.Cols())
		assert.Equal(t, 200, saved.Rows())
		saved.Close()

		checksums = append(checksums, result.Checksum)
	}
	assert.Equal(t, checksums[0], checksums[1])
}
