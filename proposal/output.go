package proposal

import (
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-rpn/postprocess"
)

// RowSize is the width of one output tensor row:
// [image_index, x1, y1, x2, y2, score, group].
const RowSize = 7

// Output is the result of one forward pass. It has no persistence beyond
// the call that produced it.
type Output struct {
	// Groups holds the survivors per input pair, score-descending within
	// each (image, pair) slice.
	Groups [][]postprocess.Result
	// Merged is the cross-group merged view, only populated when the
	// generator was configured with MergeGroups.
	Merged []postprocess.Result
}

// Results returns the flat result list: the merged view when merging was
// enabled, otherwise the groups concatenated in order.
func (o *Output) Results() []postprocess.Result {
	if o.Merged != nil {
		return o.Merged
	}
	var all []postprocess.Result
	for _, group := range o.Groups {
		all = append(all, group...)
	}
	return all
}

// Len returns the total number of emitted boxes.
func (o *Output) Len() int {
	if o.Merged != nil {
		return len(o.Merged)
	}
	n := 0
	for _, group := range o.Groups {
		n += len(group)
	}
	return n
}

// Tensor lays the output out as the framework expects: one row per
// surviving box, [image_index, x1, y1, x2, y2, score, group], shape
// (boxes, 7).
func (o *Output) Tensor() *tensor.Dense {
	results := o.Results()
	if len(results) == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, RowSize))
	}
	data := make([]float32, 0, len(results)*RowSize)
	for _, r := range results {
		data = append(data,
			float32(r.Image),
			r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2,
			r.Score,
			float32(r.Group),
		)
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(results), RowSize),
		tensor.WithBacking(data),
	)
}

// mergeGroups builds the cross-group view: per image, the union of all
// group survivors re-sorted by score and truncated to topK. Suppression
// has already run per group; merging never re-suppresses.
func mergeGroups(groups [][]postprocess.Result, topK int) []postprocess.Result {
	maxImage := -1
	total := 0
	for _, group := range groups {
		total += len(group)
		for _, r := range group {
			if r.Image > maxImage {
				maxImage = r.Image
			}
		}
	}

	merged := make([]postprocess.Result, 0, total)
	for image := 0; image <= maxImage; image++ {
		var union []postprocess.Result
		for _, group := range groups {
			for _, r := range group {
				if r.Image == image {
					union = append(union, r)
				}
			}
		}
		postprocess.SortByScore(union)
		merged = append(merged, postprocess.Truncate(union, topK)...)
	}
	return merged
}
