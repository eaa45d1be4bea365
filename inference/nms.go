package inference

import (
	"sort"

	"github.com/nvr-ai/go-yolov5/common"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 // Overlap threshold for suppression, <= 0 disables NMS.
	ClassAware   bool    // If true, suppress only within same class.
}

// ApplyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections in any order. It is sorted in place.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections, highest confidence first. Ties keep
//     their input order.
func ApplyNMS(detections []common.BoundingBox, config NMSConfig) []common.BoundingBox {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	if config.IoUThreshold <= 0 {
		return detections
	}

	filtered := make([]common.BoundingBox, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && detections[j].ClassID != anchor.ClassID {
				continue
			}
			// Suppress if IoU exceeds threshold
			if anchor.IoU(&detections[j]) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
