// Package postprocess - Detection results and Non-Maximum Suppression.
package postprocess

import "github.com/nvr-ai/go-detect/images"

// Result represents a single detection before it is handed to callers.
type Result struct {
	// The bounding box of the result in source-image pixels.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}
