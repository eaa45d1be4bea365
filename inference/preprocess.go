package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-yolov5/common"
	"github.com/pkg/errors"
)

// PrepareInput prepares the input for the model before inference is called.
//
// The image is stretched to size x size with bilinear interpolation (no
// letterboxing) and written channel-first as RGB floats in [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - size: The square model input resolution.
//   - dst: The destination tensor data, at least 3*size*size floats.
//
// Returns:
//   - error: A *common.DecodeError for a nil or empty image, a
//     *common.InferenceError if dst is too small.
func PrepareInput(img image.Image, size int, dst []float32) error {
	if img == nil || img.Bounds().Empty() {
		return &common.DecodeError{Err: errors.New("image has no pixels")}
	}
	channelSize := size * size
	if size <= 0 || len(dst) < channelSize*3 {
		return &common.InferenceError{Err: errors.Errorf(
			"destination tensor only holds %d floats, needs %d (make sure it's the right shape!)",
			len(dst), channelSize*3)}
	}

	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	b := img.Bounds()
	if b.Dx() != size || b.Dy() != size || b.Min != (image.Point{}) {
		img = resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		i := 0
		for y := 0; y < size; y++ {
			row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+size*4]
			for x := 0; x < size; x++ {
				red[i] = float32(row[x*4]) / 255.0
				green[i] = float32(row[x*4+1]) / 255.0
				blue[i] = float32(row[x*4+2]) / 255.0
				i++
			}
		}
		return nil
	}

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
