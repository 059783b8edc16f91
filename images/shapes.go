// Package images - Geometry, codecs and drawing for annotated media.
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Rect is a lightweight bounding box in pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// Area returns the area of the box, or 0 for an empty box.
func (r Rect) Area() float32 {
	w := r.X2 - r.X1
	h := r.Y2 - r.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Clamp limits the box to [0,width) x [0,height).
func (r Rect) Clamp(width, height int) Rect {
	w, h := float32(width), float32(height)
	return Rect{
		X1: math32.Max(0, math32.Min(r.X1, w)),
		Y1: math32.Max(0, math32.Min(r.Y1, h)),
		X2: math32.Max(0, math32.Min(r.X2, w)),
		Y2: math32.Max(0, math32.Min(r.Y2, h)),
	}
}

// ToRectangle rounds the box to an integral, canonical image.Rectangle.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(
		int(math32.Round(r.X1)),
		int(math32.Round(r.Y1)),
		int(math32.Round(r.X2)),
		int(math32.Round(r.Y2)),
	).Canon()
}

// CalculateIoU returns the Intersection over Union of two boxes, a value in
// [0,1] where 0 means no overlap and 1 means identical boxes.
//
//	IoU = Area of Intersection / Area of Union
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	// No overlap, including boxes that only touch.
	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
