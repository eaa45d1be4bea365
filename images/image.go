// Package images - Input image decoding for the detection pipeline.
package images

import (
	"bytes"
	"image"
	"os"

	"github.com/chai2010/webp"
	"github.com/nvr-ai/go-yolov5/common"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Load reads and decodes the image at path into a BGR Mat.
//
// The caller owns the returned Mat and must Close it.
//
// Arguments:
//   - path: The path to the image file.
//
// Returns:
//   - gocv.Mat: The decoded image.
//   - error: A *common.DecodeError if the file cannot be read or decoded.
func Load(path string) (gocv.Mat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.NewMat(), &common.DecodeError{Path: path, Err: errors.Wrap(err, "read file")}
	}

	mat, err := Decode(data)
	if err != nil {
		var de *common.DecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return mat, err
	}
	return mat, nil
}

// Decode decodes encoded image bytes into a BGR Mat.
//
// WebP is decoded in Go and converted, everything else goes through
// OpenCV's codecs.
//
// Arguments:
//   - data: The encoded image.
//
// Returns:
//   - gocv.Mat: The decoded image.
//   - error: A *common.DecodeError if the data is empty, unknown or corrupt.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), &common.DecodeError{Err: errors.New("empty image data")}
	}

	switch Sniff(data) {
	case FormatWebP:
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return gocv.NewMat(), &common.DecodeError{Err: errors.Wrap(err, "webp")}
		}
		mat, err := gocv.ImageToMatRGB(img)
		if err != nil {
			return gocv.NewMat(), &common.DecodeError{Err: errors.Wrap(err, "webp to mat")}
		}
		return mat, nil
	case FormatUnknown:
		return gocv.NewMat(), &common.DecodeError{Err: errors.New("unrecognized image format")}
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return mat, &common.DecodeError{Err: errors.Wrap(err, "imdecode")}
	}
	if mat.Empty() {
		return mat, &common.DecodeError{Err: errors.New("corrupt image data")}
	}
	return mat, nil
}

// ToImage converts a BGR Mat into a Go image for preprocessing.
//
// Arguments:
//   - mat: The decoded image.
//
// Returns:
//   - image.Image: An RGBA view of the pixels.
//   - error: A *common.DecodeError if the Mat is empty or cannot be converted.
func ToImage(mat gocv.Mat) (image.Image, error) {
	if mat.Empty() {
		return nil, &common.DecodeError{Err: errors.New("empty image")}
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, &common.DecodeError{Err: errors.Wrap(err, "mat to image")}
	}
	return img, nil
}
