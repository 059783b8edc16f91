// Package inference - Detection contract and ONNX Runtime session plumbing.
package inference

import (
	"context"
	"image"

	"gocv.io/x/gocv"
)

// Detection is a single object found in an image.
type Detection struct {
	// ClassID is the catalog index of the detected class.
	ClassID int
	// Box is the pixel-space bounding box (x1, y1, x2, y2).
	Box image.Rectangle
	// Score is the detection confidence in [0, 1].
	Score float32
}

// Detector finds objects in a BGR image.
//
// Implementations must be safe for concurrent use and must return only
// detections scoring at least conf.
type Detector interface {
	Detect(ctx context.Context, img *gocv.Mat, conf float32) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img *gocv.Mat, conf float32) ([]Detection, error)

// Detect calls f(ctx, img, conf).
func (f DetectorFunc) Detect(ctx context.Context, img *gocv.Mat, conf float32) ([]Detection, error) {
	return f(ctx, img, conf)
}
