// Package proposal - Region proposal generation from dense anchor scores
// and box regression deltas.
//
// The generator consumes per-anchor classification confidences and box
// deltas produced by a detection backbone, decodes candidate boxes against
// an anchor grid, filters and ranks them, and emits a compact set of
// regions of interest. Candidates from different input pairs (feature-map
// scales) are processed as independent groups unless merging is enabled.
package proposal

import "github.com/pkg/errors"

// Config is the configuration bundle for a Generator. All values are
// validated once at construction; a malformed configuration is rejected,
// never clamped.
type Config struct {
	// ScoreThreshold rejects candidates before decode. Range [0, 1].
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// IoUThreshold is the suppression overlap threshold. Range [0, 1].
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// PreNMSTopK caps the sorted candidate count fed to suppression,
	// bounding its quadratic cost.
	PreNMSTopK int `json:"pre_nms_top_k" yaml:"pre_nms_top_k"`
	// PostNMSTopK caps the survivors per output group.
	PostNMSTopK int `json:"post_nms_top_k" yaml:"post_nms_top_k"`
	// MinBoxSize discards boxes whose clipped width or height falls
	// below it.
	MinBoxSize float32 `json:"min_box_size" yaml:"min_box_size"`
	// AllowBorderBoxes keeps boxes touching the image border. When false
	// such boxes are discarded after clipping.
	AllowBorderBoxes bool `json:"allow_border_boxes" yaml:"allow_border_boxes"`
	// MergeGroups re-sorts and truncates the union of all groups after
	// per-group suppression. Off by default: groups stay independent.
	MergeGroups bool `json:"merge_groups" yaml:"merge_groups"`
	// Workers sets the decode parallelism. Values below 2 select the
	// sequential path. The two paths produce identical results.
	Workers int `json:"workers" yaml:"workers"`
}

// Validate checks the configuration bundle.
//
// Returns:
//   - An error naming the first invalid field, or nil.
func (c Config) Validate() error {
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return errors.Errorf("proposal: score threshold must be in [0, 1], got %f", c.ScoreThreshold)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return errors.Errorf("proposal: iou threshold must be in [0, 1], got %f", c.IoUThreshold)
	}
	if c.PreNMSTopK <= 0 {
		return errors.Errorf("proposal: pre-nms top-k must be positive, got %d", c.PreNMSTopK)
	}
	if c.PostNMSTopK <= 0 {
		return errors.Errorf("proposal: post-nms top-k must be positive, got %d", c.PostNMSTopK)
	}
	if c.MinBoxSize < 0 {
		return errors.Errorf("proposal: min box size must not be negative, got %f", c.MinBoxSize)
	}
	if c.Workers < 0 {
		return errors.Errorf("proposal: workers must not be negative, got %d", c.Workers)
	}
	return nil
}
