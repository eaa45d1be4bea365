package inference

import (
	"context"
	"image"

	"github.com/nvr-ai/go-yolov5/common"
	"github.com/nvr-ai/go-yolov5/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Detector runs YOLOv5 on single images: preprocess, execute the engine,
// decode, threshold and suppress.
//
// A Detector is not safe for concurrent use.
type Detector struct {
	engine     Engine
	labels     LabelSet
	outputType config.OutputType
	inputSize  int
	threshold  float32
	nms        NMSConfig
	input      []float32
	logger     *zap.SugaredLogger
}

// NewDetector loads the model described by cfg and binds it to labels.
//
// Arguments:
//   - cfg: The run configuration.
//   - labels: The label set the model was trained with.
//   - logger: The logger, nil for none.
//
// Returns:
//   - *Detector: The detector, which owns the loaded engine.
//   - error: A *common.ModelLoadError if the model is missing, cannot be
//     loaded, or does not match labels.
func NewDetector(cfg config.Config, labels LabelSet, logger *zap.SugaredLogger) (*Detector, error) {
	engine, err := NewEngine(cfg.Engine, EngineArgs{
		ModelPath:         cfg.ModelPath,
		InputSize:         cfg.InputSize,
		SharedLibraryPath: cfg.SharedLibraryPath,
		Provider:          cfg.Provider,
		IntraOpThreads:    cfg.IntraOpThreads,
		InterOpThreads:    cfg.InterOpThreads,
		ExecutionMode:     cfg.ExecutionMode,
	})
	if err != nil {
		return nil, err
	}

	d, err := NewDetectorWithEngine(engine, cfg, labels, logger)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return d, nil
}

// NewDetectorWithEngine binds an already loaded engine to labels, checking
// that the engine's input and output shapes honour the YOLOv5 contract.
//
// Arguments:
//   - engine: The loaded engine. The detector takes ownership on success.
//   - cfg: The run configuration.
//   - labels: The label set the model was trained with.
//   - logger: The logger, nil for none.
//
// Returns:
//   - *Detector: The detector.
//   - error: A *common.ModelLoadError if the engine does not fit.
func NewDetectorWithEngine(engine Engine, cfg config.Config, labels LabelSet, logger *zap.SugaredLogger) (*Detector, error) {
	fail := func(err error) (*Detector, error) {
		return nil, &common.ModelLoadError{Path: cfg.ModelPath, Err: err}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if labels.Len() == 0 {
		return fail(errors.New("label set is empty"))
	}

	want := []int64{1, 3, int64(cfg.InputSize), int64(cfg.InputSize)}
	got := engine.InputShape()
	if len(got) != len(want) {
		return fail(errors.Errorf("model input shape %v, want %v", got, want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fail(errors.Errorf("model input shape %v, want %v", got, want))
		}
	}

	shapes := engine.OutputShapes()
	outputType, err := ResolveOutputType(cfg.OutputType, shapes)
	if err != nil {
		return fail(err)
	}
	classes, err := ClassCount(outputType, shapes)
	if err != nil {
		return fail(err)
	}
	if classes != labels.Len() {
		return fail(errors.Errorf("model scores %d classes, label set has %d", classes, labels.Len()))
	}

	logger.Debugw("model loaded",
		"model", cfg.ModelPath,
		"engine", cfg.Engine,
		"output_type", outputType,
		"outputs", shapes,
		"classes", classes,
	)

	return &Detector{
		engine:     engine,
		labels:     labels,
		outputType: outputType,
		inputSize:  cfg.InputSize,
		threshold:  cfg.ConfidenceThreshold,
		nms:        NMSConfig{IoUThreshold: cfg.NMSThreshold, ClassAware: true},
		input:      make([]float32, shapeSize(want)),
		logger:     logger,
	}, nil
}

// Labels returns the label set the detector reports names from.
func (d *Detector) Labels() LabelSet {
	return d.labels
}

// OutputType returns the resolved head layout.
func (d *Detector) OutputType() config.OutputType {
	return d.outputType
}

// Detect runs the model on img.
//
// Arguments:
//   - ctx: Checked before the model runs. A run in progress is not interrupted.
//   - img: The image in its original resolution.
//
// Returns:
//   - []common.BoundingBox: Detections in img coordinates with Confidence at
//     or above the threshold, highest confidence first.
//   - error: A *common.DecodeError for an unusable image, a
//     *common.InferenceError if the run fails, or the context error.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]common.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := PrepareInput(img, d.inputSize, d.input); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputs, err := d.engine.Run(d.input)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	detections, err := Decode(outputs, DecodeArgs{
		OutputType:          d.outputType,
		InputSize:           d.inputSize,
		ImageWidth:          bounds.Dx(),
		ImageHeight:         bounds.Dy(),
		ConfidenceThreshold: d.threshold,
		NMS:                 d.nms,
		Labels:              d.labels,
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debugw("detect", "width", bounds.Dx(), "height", bounds.Dy(), "detections", len(detections))
	return detections, nil
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
