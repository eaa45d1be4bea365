package render

import (
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-yolov5/common"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Save encodes img as PNG and writes it to path, creating missing parent
// directories. The file is written under a temporary name and renamed into
// place, so a failed save never leaves a partial file at path.
//
// Arguments:
//   - path: The destination file.
//   - img: The image to encode.
//
// Returns:
//   - error: A *common.IOError if the image cannot be encoded or written.
func Save(path string, img gocv.Mat) error {
	fail := func(err error) error {
		return &common.IOError{Path: path, Err: err}
	}
	if img.Empty() {
		return fail(errors.New("image is empty"))
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return fail(errors.Wrap(err, "encode png"))
	}
	defer buf.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(errors.Wrap(err, "create output directory"))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fail(errors.Wrap(err, "create temp file"))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.GetBytes()); err != nil {
		tmp.Close()
		return fail(errors.Wrap(err, "write png"))
	}
	if err := tmp.Close(); err != nil {
		return fail(errors.Wrap(err, "close temp file"))
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fail(errors.Wrap(err, "chmod output"))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fail(errors.Wrap(err, "rename into place"))
	}
	return nil
}
