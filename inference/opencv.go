package inference

import (
	"fmt"
	"unsafe"

	"github.com/nvr-ai/go-yolov5/common"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// OpenCVEngine runs the model with the OpenCV DNN module (gocv.ReadNet).
type OpenCVEngine struct {
	net          gocv.Net
	outputNames  []string
	inputShape   []int64
	outputShapes [][]int64
}

// NewOpenCVEngine loads the ONNX model into an OpenCV DNN network.
//
// OpenCV only reports output shapes after a forward pass, so the network is
// run once on a zero tensor to learn them. That pass also rejects models the
// DNN module cannot execute.
//
// Arguments:
//   - args: The arguments for the engine.
//
// Returns:
//   - *OpenCVEngine: The engine.
//   - error: A *common.ModelLoadError if the network cannot be loaded or run.
func NewOpenCVEngine(args EngineArgs) (*OpenCVEngine, error) {
	net := gocv.ReadNetFromONNX(args.ModelPath)
	if net.Empty() {
		return nil, &common.ModelLoadError{Path: args.ModelPath, Err: errors.New("opencv could not parse the model")}
	}
	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	e := &OpenCVEngine{
		net:        net,
		inputShape: []int64{1, 3, int64(args.InputSize), int64(args.InputSize)},
	}
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		e.outputNames = append(e.outputNames, layer.GetName())
		layer.Close()
	}
	if len(e.outputNames) == 0 {
		e.Close()
		return nil, &common.ModelLoadError{Path: args.ModelPath, Err: errors.New("model has no output layers")}
	}

	outputs, err := e.Run(make([]float32, shapeSize(e.inputShape)))
	if err != nil {
		e.Close()
		return nil, &common.ModelLoadError{Path: args.ModelPath, Err: errors.Wrap(err, "warm-up forward pass")}
	}
	for _, out := range outputs {
		e.outputShapes = append(e.outputShapes, out.Shape)
	}
	return e, nil
}

// InputShape returns the [1, 3, S, S] input shape.
func (e *OpenCVEngine) InputShape() []int64 {
	return e.inputShape
}

// OutputShapes returns the shapes observed on the warm-up forward pass.
func (e *OpenCVEngine) OutputShapes() [][]int64 {
	return e.outputShapes
}

// Run executes a forward pass on input.
//
// Arguments:
//   - input: The preprocessed [1, 3, S, S] tensor data.
//
// Returns:
//   - []Output: Copies of every output blob.
//   - error: A *common.InferenceError on a malformed input or runtime failure.
func (e *OpenCVEngine) Run(input []float32) ([]Output, error) {
	if e.net.Empty() {
		return nil, &common.InferenceError{Err: errors.New("network is closed")}
	}
	if int64(len(input)) != shapeSize(e.inputShape) {
		return nil, &common.InferenceError{Err: fmt.Errorf("input has %d floats, model expects %d", len(input), shapeSize(e.inputShape))}
	}

	sizes := make([]int, len(e.inputShape))
	for i, d := range e.inputShape {
		sizes[i] = int(d)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&input[0])), len(input)*4)
	blob, err := gocv.NewMatWithSizesFromBytes(sizes, gocv.MatTypeCV32F, raw)
	if err != nil {
		return nil, &common.InferenceError{Err: errors.Wrap(err, "create input blob")}
	}
	defer blob.Close()

	e.net.SetInput(blob, "")
	blobs := e.net.ForwardLayers(e.outputNames)
	defer func() {
		for _, m := range blobs {
			m.Close()
		}
	}()
	if len(blobs) != len(e.outputNames) {
		return nil, &common.InferenceError{Err: fmt.Errorf("forward returned %d blobs, want %d", len(blobs), len(e.outputNames))}
	}

	outputs := make([]Output, len(blobs))
	for i, m := range blobs {
		if m.Empty() {
			return nil, &common.InferenceError{Err: fmt.Errorf("output %s is empty", e.outputNames[i])}
		}
		data, err := m.DataPtrFloat32()
		if err != nil {
			return nil, &common.InferenceError{Err: errors.Wrapf(err, "read output %s", e.outputNames[i])}
		}
		shape := make([]int64, 0, len(m.Size()))
		for _, d := range m.Size() {
			shape = append(shape, int64(d))
		}
		outputs[i] = Output{
			Name:  e.outputNames[i],
			Shape: shape,
			Data:  append([]float32(nil), data...),
		}
	}
	return outputs, nil
}

// Close releases the network.
func (e *OpenCVEngine) Close() error {
	if !e.net.Empty() {
		if err := e.net.Close(); err != nil {
			return errors.Wrap(err, "close network")
		}
	}
	return nil
}
