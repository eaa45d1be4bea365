// Package inference - Model execution and the YOLOv5 pre/post-processing
// contract.
package inference

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-yolov5/common"
	"github.com/nvr-ai/go-yolov5/config"
	"github.com/pkg/errors"
)

// Output is one named output tensor produced by a model run.
type Output struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Engine defines the interface for the runtimes that execute the model.
//
// An Engine owns native resources and is not safe for concurrent use.
type Engine interface {
	// InputShape is the fixed [1, 3, S, S] input the engine was built for.
	InputShape() []int64
	// OutputShapes lists the output tensor shapes in output order.
	OutputShapes() [][]int64
	// Run executes the model on a preprocessed input tensor.
	Run(input []float32) ([]Output, error)
	// Close releases the engine's native resources.
	Close() error
}

// EngineArgs represents the arguments for creating an engine.
type EngineArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The square input resolution.
	InputSize int
	// Runtime tuning, only used by the onnxruntime engine.
	SharedLibraryPath string
	Provider          config.Provider
	IntraOpThreads    int
	InterOpThreads    int
	ExecutionMode     config.ExecutionMode
}

// NewEngine creates the engine selected by kind.
//
// Arguments:
//   - kind: Which runtime to use.
//   - args: The arguments for the engine.
//
// Returns:
//   - Engine: The loaded engine.
//   - error: A *common.ModelLoadError if the model cannot be loaded.
func NewEngine(kind config.Engine, args EngineArgs) (Engine, error) {
	if _, err := os.Stat(args.ModelPath); err != nil {
		return nil, &common.ModelLoadError{Path: args.ModelPath, Err: errors.Wrap(err, "model file")}
	}

	switch kind {
	case config.EngineONNXRuntime, "":
		return NewONNXRuntimeEngine(args)
	case config.EngineOpenCV:
		return NewOpenCVEngine(args)
	default:
		return nil, &common.ModelLoadError{Path: args.ModelPath, Err: fmt.Errorf("unsupported engine: %s", kind)}
	}
}

// shapeSize returns the element count of a fully static shape, or -1 if any
// dimension is dynamic.
func shapeSize(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return -1
		}
		n *= d
	}
	return n
}
