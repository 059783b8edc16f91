package images

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// DefaultStrokeWidth is the outline width of a detection box in pixels.
const DefaultStrokeWidth = 3

// DrawBox outlines r on img with an unfilled rectangle.
//
// The box is clipped to the image first; a box that falls entirely outside
// the image is not drawn.
//
// Arguments:
//   - img: The image to draw on, modified in place.
//   - r: The box in pixel coordinates.
//   - c: The outline color.
//   - thickness: The stroke width in pixels.
//
// Returns:
//   - bool: True if anything was drawn.
func DrawBox(img *gocv.Mat, r image.Rectangle, c color.RGBA, thickness int) bool {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	r = r.Canon().Intersect(bounds)
	if r.Empty() {
		return false
	}
	if thickness < 1 {
		thickness = DefaultStrokeWidth
	}

	// OpenCV treats the second corner as inclusive.
	gocv.Rectangle(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1), c, thickness)
	return true
}

// DrawLabel writes text just above the top-left corner of r.
func DrawLabel(img *gocv.Mat, text string, r image.Rectangle, c color.RGBA) {
	at := r.Min
	if at.Y < 12 {
		at.Y = r.Min.Y + 12
	} else {
		at.Y -= 4
	}
	gocv.PutText(img, text, at, gocv.FontHersheyPlain, 0.8, c, 1)
}
