package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
)

// DefaultIoUThreshold is the overlap above which a weaker box is suppressed.
const DefaultIoUThreshold float32 = 0.45

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 // Overlap threshold for suppression.
	ClassAware   bool    // If true, suppress only within same class.
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Detections are ordered by descending score (stable for ties) before
// suppression, so callers may pass them in any order. The input slice is
// not modified.
//
// Arguments:
//   - detections: Candidate detections.
//   - config: NMS configuration. A nil config uses DefaultIoUThreshold and
//     class-aware suppression.
//
// Returns:
//   - Filtered slice of detections, highest score first. Nil if none were given.
func ApplyGreedyNMS(detections []Result, config *NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}
	if config == nil {
		config = &NMSConfig{IoUThreshold: DefaultIoUThreshold, ClassAware: true}
	}

	sorted := make([]Result, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != sorted[j].Class {
				continue
			}
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
