package detectors

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// DecodeYOLO converts a YOLOv8 output tensor into candidate detections.
//
// The tensor is laid out as (1, 4+numClasses, anchors): rows 0-3 hold the
// box center and size in model-input pixels, the remaining rows hold one
// score per class. The input is expected to be letterboxed (as the exported
// YOLOv8 models are trained); boxes are mapped back through lb and clamped
// to the source image.
//
// Arguments:
//   - output: The raw output tensor data.
//   - numClasses: The number of class rows.
//   - anchors: The number of anchor columns.
//   - lb: The letterbox placement returned by inference.PrepareInput.
//   - width, height: The source image dimensions.
//   - conf: The minimum class score to keep.
//
// Returns:
//   - []postprocess.Result: Candidates in anchor order, before NMS.
func DecodeYOLO(output []float32, numClasses, anchors int, lb inference.Letterbox, width, height int, conf float32) []postprocess.Result {
	if len(output) < (4+numClasses)*anchors || lb.Scale <= 0 {
		return nil
	}

	var results []postprocess.Result
	for idx := 0; idx < anchors; idx++ {
		classID := -1
		probability := float32(-1e9)
		for col := 0; col < numClasses; col++ {
			if p := output[anchors*(col+4)+idx]; p > probability {
				probability = p
				classID = col
			}
		}
		if classID < 0 || probability < conf {
			continue
		}

		xc, yc := output[idx], output[anchors+idx]
		w, h := output[2*anchors+idx], output[3*anchors+idx]
		x1, y1 := lb.ToSource(xc-w/2, yc-h/2)
		x2, y2 := lb.ToSource(xc+w/2, yc+h/2)
		box := images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}.Clamp(width, height)
		if box.Area() <= 0 {
			continue
		}

		results = append(results, postprocess.Result{Box: box, Score: probability, Class: classID})
	}
	return results
}
