package postprocess

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap at or above which a lower-scored box is
	// suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// MaxResults caps the survivor count. Zero or negative means no cap.
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// Suppress performs greedy Non-Maximum Suppression over a score-descending
// sorted candidate list.
//
// The classic greedy sweep: take the highest-scoring remaining box, keep
// it, discard every not-yet-decided box whose IoU with it is at or above
// the threshold, repeat. Because the input is sorted, a single forward
// pass with a suppression bitmap implements exactly that.
//
// When two candidates have equal scores the one earlier in the input wins;
// the sweep never revisits a decided box, so the result is deterministic
// for identical input. Zero-area boxes have IoU 0 with everything and are
// never suppressed here; degenerate geometry is filtered upstream.
//
// Arguments:
//   - candidates: Candidates sorted by descending score. The caller owns
//     the ordering; Suppress does not re-sort.
//   - iouThreshold: Overlap threshold in [0, 1].
//
// Returns:
//   - Indices of the surviving candidates, in input (score-descending)
//     order.
func Suppress(candidates []Result, iouThreshold float32) []int {
	n := len(candidates)
	if n == 0 {
		return nil
	}

	suppressed := make([]bool, n)
	keep := make([]int, 0, n)

	for i := 0; i < n; i++ {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)

		for j := i + 1; j < n; j++ {
			if suppressed[j] {
				continue
			}
			if candidates[i].Box.IoU(candidates[j].Box) >= iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// ApplyGreedyNMS filters overlapping candidates using greedy Non-Maximum
// Suppression and returns the surviving results.
//
// Arguments:
//   - candidates: Candidates sorted by descending score.
//   - config: Suppression configuration.
//
// Returns:
//   - Survivors in score-descending order, capped at config.MaxResults.
//     Returns nil for an empty input.
func ApplyGreedyNMS(candidates []Result, config *NMSConfig) []Result {
	if len(candidates) == 0 {
		return nil
	}

	keep := Suppress(candidates, config.IoUThreshold)
	filtered := make([]Result, 0, len(keep))
	for _, i := range keep {
		filtered = append(filtered, candidates[i])
	}
	if config.MaxResults > 0 {
		filtered = Truncate(filtered, config.MaxResults)
	}
	return filtered
}
