package inference

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-yolov5/common"
	"github.com/nvr-ai/go-yolov5/config"
	"github.com/pkg/errors"
)

// boxAttrs is the number of per-row values before the class scores:
// cx, cy, w, h and objectness.
const boxAttrs = 5

// YOLOStride pairs a detection head's stride with its three anchor boxes
// (width, height pairs in input pixels).
type YOLOStride struct {
	Size   int
	Anchor []float32
}

// DefaultStrides are the YOLOv5 P3/P4/P5 heads with the default anchors.
var DefaultStrides = []YOLOStride{
	{Size: 8, Anchor: []float32{10, 13, 16, 30, 33, 23}},
	{Size: 16, Anchor: []float32{30, 61, 62, 45, 59, 119}},
	{Size: 32, Anchor: []float32{116, 90, 156, 198, 373, 326}},
}

// DecodeArgs carries what the decoder needs besides the raw outputs.
type DecodeArgs struct {
	// OutputType is the resolved head layout (box or anchor).
	OutputType config.OutputType
	// InputSize is the square model input resolution.
	InputSize int
	// ImageWidth and ImageHeight are the original image dimensions boxes
	// are scaled back to.
	ImageWidth  int
	ImageHeight int
	// ConfidenceThreshold drops rows scoring below it.
	ConfidenceThreshold float32
	// NMS configures overlap suppression.
	NMS NMSConfig
	// Labels maps class indices to names.
	Labels LabelSet
}

// ResolveOutputType picks the head layout for a set of output shapes.
//
// Arguments:
//   - want: The configured layout, OutputAuto to infer it.
//   - shapes: The model output shapes.
//
// Returns:
//   - config.OutputType: OutputBox or OutputAnchor.
//   - error: An error if the shapes fit neither layout.
func ResolveOutputType(want config.OutputType, shapes [][]int64) (config.OutputType, error) {
	box := boxOutputIndex(shapes) >= 0
	anchor := anchorOutputIndices(shapes) != nil

	switch want {
	case config.OutputBox:
		if !box {
			return "", errors.Errorf("no [1, N, 5+C] output in %v", shapes)
		}
		return config.OutputBox, nil
	case config.OutputAnchor:
		if !anchor {
			return "", errors.Errorf("no three [1, 3, H, W, 5+C] outputs in %v", shapes)
		}
		return config.OutputAnchor, nil
	case config.OutputAuto, "":
		if box {
			return config.OutputBox, nil
		}
		if anchor {
			return config.OutputAnchor, nil
		}
		return "", errors.Errorf("unrecognized YOLOv5 output shapes %v", shapes)
	default:
		return "", errors.Errorf("unsupported output type: %s", want)
	}
}

// ClassCount returns the number of classes the model scores.
//
// Arguments:
//   - t: The resolved head layout.
//   - shapes: The model output shapes.
//
// Returns:
//   - int: The class count.
//   - error: An error if the layout is not present in the shapes.
func ClassCount(t config.OutputType, shapes [][]int64) (int, error) {
	switch t {
	case config.OutputBox:
		i := boxOutputIndex(shapes)
		if i < 0 {
			return 0, errors.New("no box output")
		}
		return int(shapes[i][2]) - boxAttrs, nil
	case config.OutputAnchor:
		idx := anchorOutputIndices(shapes)
		if idx == nil {
			return 0, errors.New("no anchor outputs")
		}
		return int(shapes[idx[0]][4]) - boxAttrs, nil
	default:
		return 0, errors.Errorf("unresolved output type: %s", t)
	}
}

// boxOutputIndex finds the first [1, N, 5+C] output.
func boxOutputIndex(shapes [][]int64) int {
	for i, s := range shapes {
		if len(s) == 3 && s[0] == 1 && s[1] > 0 && s[2] > boxAttrs {
			return i
		}
	}
	return -1
}

// anchorOutputIndices finds three [1, 3, H, W, 5+C] outputs sharing C,
// ordered from the finest grid to the coarsest.
func anchorOutputIndices(shapes [][]int64) []int {
	var idx []int
	for i, s := range shapes {
		if len(s) == 5 && s[0] == 1 && s[1] == 3 && s[2] > 0 && s[3] > 0 && s[4] > boxAttrs {
			idx = append(idx, i)
		}
	}
	if len(idx) != len(DefaultStrides) {
		return nil
	}
	for _, i := range idx[1:] {
		if shapes[i][4] != shapes[idx[0]][4] {
			return nil
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		return shapes[idx[a]][2] > shapes[idx[b]][2]
	})
	return idx
}

// Decode turns raw YOLOv5 outputs into thresholded, suppressed detections in
// original image coordinates.
//
// Arguments:
//   - outputs: The model outputs of one run.
//   - args: The decoding parameters.
//
// Returns:
//   - []common.BoundingBox: Detections with Confidence >= threshold, highest
//     confidence first.
//   - error: A *common.InferenceError if the outputs do not fit the layout.
func Decode(outputs []Output, args DecodeArgs) ([]common.BoundingBox, error) {
	shapes := make([][]int64, len(outputs))
	for i, out := range outputs {
		shapes[i] = out.Shape
	}

	var (
		candidates []common.BoundingBox
		err        error
	)
	switch args.OutputType {
	case config.OutputBox:
		i := boxOutputIndex(shapes)
		if i < 0 {
			return nil, &common.InferenceError{Err: errors.Errorf("no box output in %v", shapes)}
		}
		candidates, err = decodeBoxes(outputs[i], args)
	case config.OutputAnchor:
		idx := anchorOutputIndices(shapes)
		if idx == nil {
			return nil, &common.InferenceError{Err: errors.Errorf("no anchor outputs in %v", shapes)}
		}
		for n, i := range idx {
			var found []common.BoundingBox
			found, err = decodeAnchors(outputs[i], DefaultStrides[n], args)
			if err != nil {
				break
			}
			candidates = append(candidates, found...)
		}
	default:
		err = errors.Errorf("unresolved output type: %s", args.OutputType)
	}
	if err != nil {
		return nil, &common.InferenceError{Err: err}
	}

	return ApplyNMS(candidates, args.NMS), nil
}

// matrix views an output as a row-major [rows, cols] matrix, where cols is
// the innermost dimension.
func matrix(out Output) ([]float32, int, int, error) {
	if len(out.Shape) == 0 {
		return nil, 0, 0, errors.Errorf("output %s has no shape", out.Name)
	}
	size := shapeSize(out.Shape)
	if size < 0 || int64(len(out.Data)) != size {
		return nil, 0, 0, fmt.Errorf("output %s holds %d floats, shape %v needs %d", out.Name, len(out.Data), out.Shape, size)
	}

	cols := int(out.Shape[len(out.Shape)-1])
	return out.Data, int(size) / cols, cols, nil
}

// bestClass returns the index and value of the highest class score in row.
func bestClass(scores []float32) (int, float32) {
	best, bestScore := 0, float32(-math32.MaxFloat32)
	for c, s := range scores {
		if s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// decodeBoxes decodes a [1, N, 5+C] output whose rows hold cx, cy, w, h in
// input pixels, objectness and class probabilities.
func decodeBoxes(out Output, args DecodeArgs) ([]common.BoundingBox, error) {
	data, rows, cols, err := matrix(out)
	if err != nil {
		return nil, err
	}
	if cols-boxAttrs != args.Labels.Len() {
		return nil, errors.Errorf("output scores %d classes, label set has %d", cols-boxAttrs, args.Labels.Len())
	}

	var boxes []common.BoundingBox
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		obj := row[4]
		// Negated so NaN scores are dropped.
		if !(obj >= args.ConfidenceThreshold) {
			continue
		}
		classID, clsScore := bestClass(row[boxAttrs:])
		score := obj * clsScore
		if !(score >= args.ConfidenceThreshold) {
			continue
		}
		boxes = append(boxes, newBox(row[0], row[1], row[2], row[3], classID, score, args))
	}
	return boxes, nil
}

// decodeAnchors decodes one raw [1, 3, H, W, 5+C] detection head. Values are
// logits: xy = (2*sigmoid - 0.5 + grid) * stride, wh = (2*sigmoid)^2 * anchor.
func decodeAnchors(out Output, stride YOLOStride, args DecodeArgs) ([]common.BoundingBox, error) {
	data, _, cols, err := matrix(out)
	if err != nil {
		return nil, err
	}
	if cols-boxAttrs != args.Labels.Len() {
		return nil, errors.Errorf("output scores %d classes, label set has %d", cols-boxAttrs, args.Labels.Len())
	}
	gridH, gridW := int(out.Shape[2]), int(out.Shape[3])
	if gridH*stride.Size != args.InputSize || gridW*stride.Size != args.InputSize {
		return nil, errors.Errorf("output %s grid %dx%d does not match stride %d at input %d",
			out.Name, gridW, gridH, stride.Size, args.InputSize)
	}

	scores := make([]float32, cols-boxAttrs)
	var boxes []common.BoundingBox
	for a := 0; a < 3; a++ {
		anchorW, anchorH := stride.Anchor[a*2], stride.Anchor[a*2+1]
		for gy := 0; gy < gridH; gy++ {
			for gx := 0; gx < gridW; gx++ {
				offset := ((a*gridH+gy)*gridW + gx) * cols
				row := data[offset : offset+cols]

				obj := sigmoid(row[4])
				if !(obj >= args.ConfidenceThreshold) {
					continue
				}
				for c, v := range row[boxAttrs:] {
					scores[c] = sigmoid(v)
				}
				classID, clsScore := bestClass(scores)
				score := obj * clsScore
				if !(score >= args.ConfidenceThreshold) {
					continue
				}

				s := float32(stride.Size)
				cx := (sigmoid(row[0])*2 - 0.5 + float32(gx)) * s
				cy := (sigmoid(row[1])*2 - 0.5 + float32(gy)) * s
				w := math32.Pow(sigmoid(row[2])*2, 2) * anchorW
				h := math32.Pow(sigmoid(row[3])*2, 2) * anchorH
				boxes = append(boxes, newBox(cx, cy, w, h, classID, score, args))
			}
		}
	}
	return boxes, nil
}

// newBox converts a center/size box in input pixels to corner coordinates in
// the original image, clamped to its bounds.
func newBox(cx, cy, w, h float32, classID int, score float32, args DecodeArgs) common.BoundingBox {
	sx := float32(args.ImageWidth) / float32(args.InputSize)
	sy := float32(args.ImageHeight) / float32(args.InputSize)
	maxX, maxY := float32(args.ImageWidth), float32(args.ImageHeight)

	return common.BoundingBox{
		ClassID:    classID,
		Label:      args.Labels.Name(classID),
		Confidence: score,
		X1:         clamp((cx-w/2)*sx, 0, maxX),
		Y1:         clamp((cy-h/2)*sy, 0, maxY),
		X2:         clamp((cx+w/2)*sx, 0, maxX),
		Y2:         clamp((cy+h/2)*sy, 0, maxY),
	}
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}
