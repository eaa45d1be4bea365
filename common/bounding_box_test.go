package common

import (
	"errors"
	"image"
	"os"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIoU_Correctness validates the IoU implementation against known test cases.
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		b1       BoundingBox
		b2       BoundingBox
		expected float32
	}{
		{
			name:     "Identical boxes",
			b1:       BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b2:       BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			b1:       BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b2:       BoundingBox{X1: 200, Y1: 200, X2: 300, Y2: 300},
			expected: 0.0,
		},
		{
			name:     "Touching edges",
			b1:       BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b2:       BoundingBox{X1: 100, Y1: 0, X2: 200, Y2: 100},
			expected: 0.0,
		},
		{
			name:     "Half overlap",
			b1:       BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b2:       BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150},
			expected: 0.142857, // 2500 / 17500
		},
		{
			name:     "One inside other",
			b1:       BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b2:       BoundingBox{X1: 25, Y1: 25, X2: 75, Y2: 75},
			expected: 0.25,
		},
		{
			name:     "Degenerate box",
			b1:       BoundingBox{X1: 10, Y1: 10, X2: 10, Y2: 10},
			b2:       BoundingBox{X1: 10, Y1: 10, X2: 10, Y2: 10},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.b1.IoU(&tt.b2), 0.001)
			// IoU(A, B) should equal IoU(B, A)
			assert.InDelta(t, tt.b1.IoU(&tt.b2), tt.b2.IoU(&tt.b1), 0.0001)
		})
	}
}

func TestBoundingBox_ToRect(t *testing.T) {
	box := BoundingBox{X1: 200.7, Y1: 300.2, X2: 100.5, Y2: 100.5}
	assert.Equal(t, image.Rect(100, 100, 200, 300), box.ToRect())
}

func TestBoundingBox_String(t *testing.T) {
	box := BoundingBox{Label: "baobao", Confidence: 0.95, X1: 100, Y1: 100, X2: 200, Y2: 300}
	assert.Equal(t, "Object baobao (confidence 0.950): (100.0, 100.0), (200.0, 300.0)", box.String())
}

func TestErrorKinds(t *testing.T) {
	cause := pkgerrors.Wrap(os.ErrNotExist, "stat model")

	var err error = &ModelLoadError{Path: "models/best.onnx", Err: cause}
	wrapped := pkgerrors.Wrap(err, "start detector")

	var mle *ModelLoadError
	require.True(t, errors.As(wrapped, &mle))
	assert.Equal(t, "models/best.onnx", mle.Path)
	assert.True(t, errors.Is(wrapped, os.ErrNotExist))
	assert.Contains(t, wrapped.Error(), "load model models/best.onnx")

	var de *DecodeError
	assert.False(t, errors.As(wrapped, &de))

	assert.Equal(t, "decode image: boom", (&DecodeError{Err: errors.New("boom")}).Error())
	assert.Equal(t, "decode image in.png: boom", (&DecodeError{Path: "in.png", Err: errors.New("boom")}).Error())
	assert.Equal(t, "inference: boom", (&InferenceError{Err: errors.New("boom")}).Error())
	assert.Equal(t, "write out.png: boom", (&IOError{Path: "out.png", Err: errors.New("boom")}).Error())
}
