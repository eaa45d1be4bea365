// Package pipeline - The single-image detection run: decode, detect, render.
package pipeline

import (
	"context"

	"github.com/nvr-ai/go-yolov5/common"
	"github.com/nvr-ai/go-yolov5/config"
	"github.com/nvr-ai/go-yolov5/images"
	"github.com/nvr-ai/go-yolov5/inference"
	"github.com/nvr-ai/go-yolov5/profiler"
	"github.com/nvr-ai/go-yolov5/render"
	"go.uber.org/zap"
)

// Result describes a completed run.
type Result struct {
	// Detections in original image coordinates, highest confidence first.
	Detections []common.BoundingBox
	// OutputPath is where the annotated PNG was written.
	OutputPath string
	// Checksum identifies the annotated pixels; identical inputs give
	// identical checksums.
	Checksum string
	// Width and Height of the input and output image.
	Width  int
	Height int
	// Timings holds the duration of every stage.
	Timings []profiler.StageTiming
}

// ResolveLabels returns the label set configured by cfg. A labels file takes
// precedence over inline labels.
//
// Arguments:
//   - cfg: The run configuration.
//
// Returns:
//   - inference.LabelSet: The label set.
//   - error: An error if the labels are missing or invalid.
func ResolveLabels(cfg config.Config) (inference.LabelSet, error) {
	if cfg.LabelsPath != "" {
		return inference.LoadLabels(cfg.LabelsPath)
	}
	return inference.NewLabelSet(cfg.Labels)
}

// DetectorFactory loads the detector a run uses.
type DetectorFactory func(cfg config.Config, labels inference.LabelSet, logger *zap.SugaredLogger) (*inference.Detector, error)

// Run detects objects in the image at imagePath and writes an annotated copy
// to cfg.OutputPath. Nothing is written unless every earlier stage succeeds.
//
// Arguments:
//   - ctx: Cancels the run between stages.
//   - cfg: The run configuration.
//   - imagePath: The input image.
//   - logger: The logger.
//
// Returns:
//   - *Result: The detections and output location.
//   - error: A *common.DecodeError, *common.ModelLoadError,
//     *common.InferenceError or *common.IOError naming the failed stage.
func Run(ctx context.Context, cfg config.Config, imagePath string, logger *zap.SugaredLogger) (*Result, error) {
	return RunWithDetector(ctx, cfg, imagePath, logger, inference.NewDetector)
}

// RunWithDetector is Run with the detector loaded by newDetector instead of
// inference.NewDetector.
func RunWithDetector(
	ctx context.Context,
	cfg config.Config,
	imagePath string,
	logger *zap.SugaredLogger,
	newDetector DetectorFactory,
) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	labels, err := ResolveLabels(cfg)
	if err != nil {
		return nil, err
	}

	prof := profiler.NewRuntimeProfiler()

	done := prof.StartOperation("decode")
	mat, err := images.Load(imagePath)
	done()
	defer mat.Close()
	if err != nil {
		return nil, err
	}

	img, err := images.ToImage(mat)
	if err != nil {
		return nil, err
	}
	logger.Debugw("image loaded", "path", imagePath, "width", mat.Cols(), "height", mat.Rows())

	done = prof.StartOperation("load")
	detector, err := newDetector(cfg, labels, logger)
	done()
	if err != nil {
		return nil, err
	}
	defer detector.Close()

	done = prof.StartOperation("inference")
	detections, err := detector.Detect(ctx, img)
	done()
	if err != nil {
		return nil, err
	}

	logger.Infof("detected %d objects", len(detections))
	for i := range detections {
		logger.Info(detections[i].String())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done = prof.StartOperation("render")
	render.Boxes(&mat, detections, render.FontForHeight(mat.Rows()), render.LineThickness(mat.Rows()))
	err = render.Save(cfg.OutputPath, mat)
	done()
	if err != nil {
		return nil, err
	}
	logger.Infow("detected objects image has been saved", "path", cfg.OutputPath)
	prof.Report(logger)

	return &Result{
		Detections: detections,
		OutputPath: cfg.OutputPath,
		Checksum:   images.ComputeMatChecksum(mat),
		Width:      mat.Cols(),
		Height:     mat.Rows(),
		Timings:    prof.Timings(),
	}, nil
}
