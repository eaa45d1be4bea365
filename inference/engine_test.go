package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/nvr-ai/go-yolov5/common"
	"github.com/nvr-ai/go-yolov5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap/zaptest"
)

func TestNewEngine_UnsupportedEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0o644))

	_, err := NewEngine(config.Engine("tensorrt"), EngineArgs{ModelPath: path, InputSize: 640})
	var loadErr *common.ModelLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestResolveInputShape(t *testing.T) {
	shape, err := resolveInputShape(ort.NewShape(1, 3, 640, 640), 640)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 640, 640}, shape)

	shape, err = resolveInputShape(ort.NewShape(-1, 3, -1, -1), 320)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 320, 320}, shape)

	_, err = resolveInputShape(ort.NewShape(1, 3, 640, 640), 320)
	assert.Error(t, err)

	_, err = resolveInputShape(ort.NewShape(1, 640, 640), 640)
	assert.Error(t, err)
}

func TestShapeSize(t *testing.T) {
	assert.Equal(t, int64(1*3*640*640), shapeSize([]int64{1, 3, 640, 640}))
	assert.Equal(t, int64(-1), shapeSize([]int64{-1, 25200, 27}))
}

func TestGetSharedLibPath(t *testing.T) {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		assert.NotEmpty(t, GetSharedLibPath())
	}
}

// TestEngines_BundledModel runs both runtimes on the bundled model when it and
// the onnxruntime library are present.
func TestEngines_BundledModel(t *testing.T) {
	modelPath := filepath.Join("..", config.DefaultModelPath)
	if _, err := os.Stat(modelPath); err != nil {
		t.Skipf("model not found at %s", modelPath)
	}
	libPath := filepath.Join("..", GetSharedLibPath())
	if _, err := os.Stat(libPath); err != nil {
		t.Skipf("onnxruntime library not found at %s", libPath)
	}

	labels, err := NewLabelSet(config.DefaultLabels)
	require.NoError(t, err)
	img := newTestImage(640, 480)

	var results [][]common.BoundingBox
	for _, engine := range []config.Engine{config.EngineONNXRuntime, config.EngineOpenCV} {
		cfg := config.Default()
		cfg.ModelPath = modelPath
		cfg.SharedLibraryPath = libPath
		cfg.Engine = engine

		d, err := NewDetector(cfg, labels, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err, engine)

		dets, err := d.Detect(context.Background(), img)
		require.NoError(t, err, engine)
		for _, det := range dets {
			assert.GreaterOrEqual(t, det.Confidence, cfg.ConfidenceThreshold)
			assert.True(t, labels.Contains(det.Label))
		}
		results = append(results, dets)
		require.NoError(t, d.Close())
	}
	assert.Equal(t, len(results[0]), len(results[1]), "runtimes disagree on detection count")
}
