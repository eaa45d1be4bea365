// Package render - Draws detections onto images and persists the result.
package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Alignment positions a label plate horizontally against its box.
type Alignment int

const (
	Left Alignment = iota + 1
	Center
	Right
)

// referenceHeight is the image height DefaultFont is sized for, the model
// input resolution.
const referenceHeight = 640

// Font describes the "<label> <score>" text drawn on each label plate.
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType

	// Plate padding around the text, in pixels.
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int

	Alignment Alignment
}

// DefaultFont returns the label font for images about 640 pixels tall.
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheyDuplex,
		Scale:     0.55,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   3,
		RightPad:  3,
		TopPad:    3,
		BottomPad: 5,
		Alignment: Left,
	}
}

// FontForHeight scales DefaultFont to an image of the given height so labels
// keep the same share of the frame on large photos. Images at or below the
// reference height use DefaultFont unchanged.
//
// Arguments:
//   - height: The image height in pixels.
//
// Returns:
//   - Font: The scaled font.
func FontForHeight(height int) Font {
	font := DefaultFont()
	if height <= referenceHeight {
		return font
	}

	k := float64(height) / referenceHeight
	font.Scale *= k
	font.Thickness = max(1, int(k+0.5))
	font.LeftPad = int(float64(font.LeftPad) * k)
	font.RightPad = int(float64(font.RightPad) * k)
	font.TopPad = int(float64(font.TopPad) * k)
	font.BottomPad = int(float64(font.BottomPad) * k)
	return font
}

// LineThickness returns the box stroke width for an image of the given
// height, 2 pixels at the reference height.
func LineThickness(height int) int {
	return max(2, 2*height/referenceHeight)
}
