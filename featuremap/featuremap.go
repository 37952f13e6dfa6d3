// Package featuremap - Multi-scale feature map synthesis from images.
//
// In a deployed detector the score and delta maps come from a CNN
// backbone. This package fabricates stand-in pyramids directly from image
// pixels, one level per feature stride, so demos and integration tests can
// exercise the proposal pipeline without a model.
package featuremap

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Level is one pyramid level: a (score, delta) tensor pair at a given
// feature stride.
type Level struct {
	// Stride is the image pixels per feature-map cell at this level.
	Stride int
	// Height and Width are the feature-map dimensions in cells.
	Height int
	Width  int
	// Scores has shape (1, templates, height, width).
	Scores *tensor.Dense
	// Deltas has shape (1, templates*4, height, width), all zero: the
	// synthetic backbone predicts no box adjustment.
	Deltas *tensor.Dense
}

// Pyramid builds one level per stride from the image. Score channels are
// filled with normalized pixel intensities of the downsampled image,
// cycling through R, G, B per anchor template channel; deltas are zero so
// candidates decode to their anchors.
//
// Arguments:
//   - img: The source image.
//   - strides: One feature stride per level, each positive and no larger
//     than the image.
//   - templates: Anchor templates per cell, matching the grid the levels
//     will be decoded against.
//
// Returns:
//   - One level per stride, in input order.
//   - An error if a stride does not fit the image.
func Pyramid(img image.Image, strides []int, templates int) ([]Level, error) {
	if img == nil {
		return nil, errors.New("featuremap: image is nil")
	}
	if templates <= 0 {
		return nil, errors.Errorf("featuremap: templates must be positive, got %d", templates)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	levels := make([]Level, 0, len(strides))
	for _, stride := range strides {
		if stride <= 0 {
			return nil, errors.Errorf("featuremap: stride must be positive, got %d", stride)
		}
		featWidth := width / stride
		featHeight := height / stride
		if featWidth == 0 || featHeight == 0 {
			return nil, errors.Errorf("featuremap: stride %d larger than %dx%d image", stride, width, height)
		}

		resized := resize.Resize(uint(featWidth), uint(featHeight), img, resize.Lanczos3)

		scores := make([]float32, templates*featHeight*featWidth)
		idx := 0
		for c := 0; c < templates; c++ {
			for y := 0; y < featHeight; y++ {
				for x := 0; x < featWidth; x++ {
					r, g, b, _ := resized.At(x, y).RGBA()
					switch c % 3 {
					case 0:
						scores[idx] = float32(r>>8) / 255.0
					case 1:
						scores[idx] = float32(g>>8) / 255.0
					case 2:
						scores[idx] = float32(b>>8) / 255.0
					}
					idx++
				}
			}
		}

		levels = append(levels, Level{
			Stride: stride,
			Height: featHeight,
			Width:  featWidth,
			Scores: tensor.New(
				tensor.Of(tensor.Float32),
				tensor.WithShape(1, templates, featHeight, featWidth),
				tensor.WithBacking(scores),
			),
			Deltas: tensor.New(
				tensor.Of(tensor.Float32),
				tensor.WithShape(1, templates*4, featHeight, featWidth),
				tensor.WithBacking(make([]float32, templates*4*featHeight*featWidth)),
			),
		})
	}
	return levels, nil
}
