package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/go-yolov5/common"
	"gocv.io/x/gocv"
)

// boxLabel is a label plate computed while drawing boxes and painted after
// them.
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// Boxes renders a rectangle and a "<label> <score>" plate for every detection
// onto img in place. Zero detections leave img untouched.
//
// Arguments:
//   - img: The image to draw on, in BGR as returned by gocv.
//   - detections: Detections in img coordinates.
//   - font: The label font.
//   - lineThickness: The rectangle stroke width in pixels.
func Boxes(img *gocv.Mat, detections []common.BoundingBox, font Font, lineThickness int) {
	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(detections))

	for _, det := range detections {
		useClr := ClassColor(det.ClassID)

		rect := det.ToRect()
		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := fmt.Sprintf("%s %.2f", det.Label, det.Confidence)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// Calculate the alignment of text label
		var centerX int
		switch font.Alignment {
		case Center:
			centerX = (rect.Min.X + rect.Max.X) / 2
		case Right:
			centerX = rect.Max.X - (textSize.X / 2) - font.RightPad + (lineThickness / 2)
		case Left:
			fallthrough
		default:
			centerX = rect.Min.X + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
		}

		// Plates sit above the box, or just inside it when the box touches
		// the top edge.
		plateH := textSize.Y + font.TopPad + font.BottomPad
		top := rect.Min.Y
		if top < plateH {
			top = rect.Min.Y + plateH
		}

		boxLabels = append(boxLabels, boxLabel{
			rect: image.Rect(centerX-textSize.X/2-font.LeftPad, top-plateH,
				centerX+textSize.X/2+font.RightPad, top),
			clr:     useClr,
			text:    text,
			textPos: image.Pt(centerX-textSize.X/2, top-font.BottomPad),
		})
	}

	// draw all labels last so they are the top most layer on the image and
	// don't get overlapped by neighbouring boxes
	for _, box := range boxLabels {
		gocv.Rectangle(img, box.rect, box.clr, -1)
		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
