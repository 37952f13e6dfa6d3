// Package postprocess - Candidate ranking and suppression for proposal outputs.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-rpn/boxes"
)

// Result represents a single surviving candidate box.
type Result struct {
	// The decoded, clipped box in image coordinates.
	Box boxes.Box
	// The classification confidence of the candidate.
	Score float32
	// The batch image the candidate came from.
	Image int
	// The input pair (feature-map scale) the candidate came from.
	Group int
}

// SortByScore orders results by descending score in place. The sort is
// stable so equal scores keep their original relative order, which the
// suppression tie-break depends on.
func SortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// Truncate caps results at k, keeping the leading entries. A negative k
// means no cap.
func Truncate(results []Result, k int) []Result {
	if k >= 0 && len(results) > k {
		return results[:k]
	}
	return results
}
