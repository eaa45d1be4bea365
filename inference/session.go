package inference

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-yolov5/common"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXRuntimeEngine runs the model through an onnxruntime AdvancedSession
// with preallocated input and output tensors.
type ONNXRuntimeEngine struct {
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	outputs     []*ort.Tensor[float32]
	outputNames []string
	inputShape  []int64
}

// NewONNXRuntimeEngine creates a new onnxruntime session for the model.
//
// Order of operations:
//  1. Library path check: Ensures the native runtime is accessible.
//  2. Environment setup: Required once per process.
//  3. Model inspection: Reads input/output names and shapes from the file.
//  4. Tensor allocation: Fixed-shape buffers for input/output data.
//  5. Session creation: Loads the model and binds the tensors.
//
// Arguments:
//   - args: The arguments for the engine.
//
// Returns:
//   - *ONNXRuntimeEngine: The engine, owning every tensor it allocated.
//   - error: A *common.ModelLoadError if any step fails.
func NewONNXRuntimeEngine(args EngineArgs) (*ONNXRuntimeEngine, error) {
	fail := func(err error) (*ONNXRuntimeEngine, error) {
		return nil, &common.ModelLoadError{Path: args.ModelPath, Err: err}
	}

	if err := initEnvironment(args.SharedLibraryPath); err != nil {
		return fail(err)
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(args.ModelPath)
	if err != nil {
		return fail(errors.Wrap(err, "read model inputs and outputs"))
	}
	if len(inputsInfo) != 1 {
		return fail(errors.Errorf("model has %d inputs, want 1", len(inputsInfo)))
	}
	if len(outputsInfo) == 0 {
		return fail(errors.New("model has no outputs"))
	}

	inputShape, err := resolveInputShape(inputsInfo[0].Dimensions, args.InputSize)
	if err != nil {
		return fail(err)
	}

	e := &ONNXRuntimeEngine{inputShape: inputShape}

	e.input, err = ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return fail(errors.Wrap(err, "create input tensor"))
	}

	outputs := make([]ort.Value, 0, len(outputsInfo))
	for _, info := range outputsInfo {
		if info.DataType != ort.TensorElementDataTypeFloat {
			e.Close()
			return fail(errors.Errorf("output %s has element type %s, want float32", info.Name, info.DataType))
		}
		shape := []int64(info.Dimensions)
		if len(shape) > 0 && shape[0] <= 0 {
			shape = append([]int64{1}, shape[1:]...)
		}
		if shapeSize(shape) < 0 {
			e.Close()
			return fail(errors.Errorf("output %s has dynamic shape %v, export the model with static shapes", info.Name, info.Dimensions))
		}
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(shape...))
		if err != nil {
			e.Close()
			return fail(errors.Wrapf(err, "create output tensor %s", info.Name))
		}
		e.outputs = append(e.outputs, t)
		e.outputNames = append(e.outputNames, info.Name)
		outputs = append(outputs, t)
	}

	options, err := newSessionOptions(args)
	if err != nil {
		e.Close()
		return fail(err)
	}
	defer options.Destroy()

	e.session, err = ort.NewAdvancedSession(
		args.ModelPath,
		[]string{inputsInfo[0].Name},
		e.outputNames,
		[]ort.Value{e.input},
		outputs,
		options,
	)
	if err != nil {
		e.Close()
		return fail(errors.Wrap(err, "create session"))
	}

	return e, nil
}

// initEnvironment points onnxruntime at the shared library and initializes
// it once per process.
func initEnvironment(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %q", libPath)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize onnxruntime environment")
	}
	return nil
}

// resolveInputShape checks the model input against the [1, 3, S, S] contract,
// filling dynamic dimensions.
func resolveInputShape(dims ort.Shape, size int) ([]int64, error) {
	if len(dims) != 4 {
		return nil, errors.Errorf("model input has rank %d, want 4 (NCHW)", len(dims))
	}
	want := []int64{1, 3, int64(size), int64(size)}
	shape := make([]int64, 4)
	for i, d := range dims {
		switch {
		case d <= 0:
			shape[i] = want[i]
		case d != want[i]:
			return nil, errors.Errorf("model input shape %v does not match %v", []int64(dims), want)
		default:
			shape[i] = d
		}
	}
	return shape, nil
}

// InputShape returns the bound input tensor shape.
func (e *ONNXRuntimeEngine) InputShape() []int64 {
	return e.inputShape
}

// OutputShapes returns the bound output tensor shapes.
func (e *ONNXRuntimeEngine) OutputShapes() [][]int64 {
	shapes := make([][]int64, len(e.outputs))
	for i, t := range e.outputs {
		shapes[i] = []int64(t.GetShape())
	}
	return shapes
}

// Run copies input into the bound tensor and executes the session.
//
// Arguments:
//   - input: The preprocessed [1, 3, S, S] tensor data.
//
// Returns:
//   - []Output: Copies of every output tensor.
//   - error: A *common.InferenceError on a malformed input or runtime failure.
func (e *ONNXRuntimeEngine) Run(input []float32) ([]Output, error) {
	if e.session == nil {
		return nil, &common.InferenceError{Err: errors.New("session is closed")}
	}
	dst := e.input.GetData()
	if len(input) != len(dst) {
		return nil, &common.InferenceError{Err: fmt.Errorf("input has %d floats, model expects %d", len(input), len(dst))}
	}
	copy(dst, input)

	if err := e.session.Run(); err != nil {
		return nil, &common.InferenceError{Err: errors.Wrap(err, "run session")}
	}

	outputs := make([]Output, len(e.outputs))
	for i, t := range e.outputs {
		data := t.GetData()
		outputs[i] = Output{
			Name:  e.outputNames[i],
			Shape: []int64(t.GetShape()),
			Data:  append([]float32(nil), data...),
		}
	}
	return outputs, nil
}

// Close releases the session and its tensors.
//
// Returns:
//   - error: The first error encountered while destroying native objects.
func (e *ONNXRuntimeEngine) Close() error {
	var first error
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			first = errors.Wrap(err, "destroy session")
		}
		e.session = nil
	}
	if e.input != nil {
		if err := e.input.Destroy(); err != nil && first == nil {
			first = errors.Wrap(err, "destroy input tensor")
		}
		e.input = nil
	}
	for _, t := range e.outputs {
		if err := t.Destroy(); err != nil && first == nil {
			first = errors.Wrap(err, "destroy output tensor")
		}
	}
	e.outputs = nil
	return first
}
