// Package anchors - Anchor template enumeration and grid replication.
//
// An anchor is a reference box of fixed size and aspect ratio anchored at a
// feature-map cell. The package enumerates the per-cell template set from a
// base size crossed with aspect ratios and scales, then replicates the
// templates across the feature-map grid by stride to obtain every candidate
// box in image coordinates.
package anchors

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-rpn/boxes"
)

// Config describes one anchor template set and the stride of the feature
// map it belongs to.
type Config struct {
	// BaseSize is the side length, in image pixels, of the square anchor
	// the ratio/scale enumeration starts from.
	BaseSize int `json:"base_size" yaml:"base_size"`
	// Ratios are the height/width aspect ratios to enumerate.
	Ratios []float32 `json:"ratios" yaml:"ratios"`
	// Scales are the multiplicative size factors to enumerate per ratio.
	Scales []float32 `json:"scales" yaml:"scales"`
	// Stride is the number of image pixels per feature-map cell.
	Stride int `json:"stride" yaml:"stride"`
}

// Validate checks the configuration for values that cannot produce a
// usable template set.
//
// Returns:
//   - An error naming the first invalid field, or nil.
func (c Config) Validate() error {
	if c.BaseSize <= 0 {
		return errors.Errorf("anchors: base size must be positive, got %d", c.BaseSize)
	}
	if c.Stride <= 0 {
		return errors.Errorf("anchors: stride must be positive, got %d", c.Stride)
	}
	if len(c.Ratios) == 0 {
		return errors.New("anchors: at least one aspect ratio is required")
	}
	if len(c.Scales) == 0 {
		return errors.New("anchors: at least one scale is required")
	}
	for _, r := range c.Ratios {
		if r <= 0 {
			return errors.Errorf("anchors: aspect ratio must be positive, got %f", r)
		}
	}
	for _, s := range c.Scales {
		if s <= 0 {
			return errors.Errorf("anchors: scale must be positive, got %f", s)
		}
	}
	return nil
}

// NumTemplates returns the number of anchors enumerated per grid cell.
func (c Config) NumTemplates() int {
	return len(c.Ratios) * len(c.Scales)
}

// Templates enumerates the per-cell anchor boxes for the configuration.
//
// Each template preserves the base area under its aspect ratio: for ratio r
// the unscaled width is base/sqrt(r) and the height base*sqrt(r), so
// width*height stays base^2 and height/width equals r. Scales then multiply
// both sides. Templates are positioned relative to the cell, centered on
// the cell center (stride/2, stride/2), so a template of exactly stride
// size covers its cell.
//
// Arguments:
//   - cfg: The anchor configuration to enumerate.
//
// Returns:
//   - One box per (ratio, scale) pair, ratios outermost.
//   - An error if the configuration is invalid.
func Templates(cfg Config) ([]boxes.Box, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	center := float32(cfg.Stride) / 2
	base := float32(cfg.BaseSize)

	templates := make([]boxes.Box, 0, cfg.NumTemplates())
	for _, ratio := range cfg.Ratios {
		w := base / math32.Sqrt(ratio)
		h := base * math32.Sqrt(ratio)
		for _, scale := range cfg.Scales {
			sw := w * scale
			sh := h * scale
			templates = append(templates, boxes.Box{
				X1: center - sw/2,
				Y1: center - sh/2,
				X2: center + sw/2,
				Y2: center + sh/2,
			})
		}
	}
	return templates, nil
}
