package images

import (
	"bytes"
	"path/filepath"
	"strings"
)

// ImageFormat represents supported image formats
type ImageFormat string

const (
	FormatUnknown ImageFormat = ""
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatBMP     ImageFormat = "bmp"
	FormatWebP    ImageFormat = "webp"
)

// SupportedExtensions lists the file extensions accepted as input.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

var magic = []struct {
	format ImageFormat
	offset int
	sig    []byte
}{
	{FormatJPEG, 0, []byte{0xFF, 0xD8, 0xFF}},
	{FormatPNG, 0, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}},
	{FormatBMP, 0, []byte("BM")},
	{FormatWebP, 8, []byte("WEBP")},
}

// Sniff identifies the image format from its leading bytes.
//
// Arguments:
//   - data: The encoded image.
//
// Returns:
//   - ImageFormat: The detected format, FormatUnknown if nothing matched.
func Sniff(data []byte) ImageFormat {
	for _, m := range magic {
		end := m.offset + len(m.sig)
		if len(data) >= end && bytes.Equal(data[m.offset:end], m.sig) {
			if m.format == FormatWebP && !bytes.HasPrefix(data, []byte("RIFF")) {
				continue
			}
			return m.format
		}
	}
	return FormatUnknown
}

// FormatFromPath maps a file extension to its format.
//
// Arguments:
//   - path: A file path.
//
// Returns:
//   - ImageFormat: The format implied by the extension, FormatUnknown if unsupported.
func FormatFromPath(path string) ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".bmp":
		return FormatBMP
	case ".webp":
		return FormatWebP
	default:
		return FormatUnknown
	}
}
