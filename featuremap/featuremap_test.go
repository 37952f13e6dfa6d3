package featuremap

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-rpn/anchors"
	"github.com/nvr-ai/go-rpn/proposal"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestPyramid_LevelShapes(t *testing.T) {
	levels, err := Pyramid(testImage(64, 48), []int{8, 16}, 3)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	assert.Equal(t, 8, levels[0].Stride)
	assert.Equal(t, 6, levels[0].Height)
	assert.Equal(t, 8, levels[0].Width)
	assert.Equal(t, []int{1, 3, 6, 8}, []int(levels[0].Scores.Shape()))
	assert.Equal(t, []int{1, 12, 6, 8}, []int(levels[0].Deltas.Shape()))

	assert.Equal(t, 3, levels[1].Height)
	assert.Equal(t, 4, levels[1].Width)
}

func TestPyramid_ScoresNormalized(t *testing.T) {
	levels, err := Pyramid(testImage(32, 32), []int{16}, 1)
	require.NoError(t, err)

	data, ok := levels[0].Scores.Data().([]float32)
	require.True(t, ok)
	for _, v := range data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestPyramid_StrideTooLarge(t *testing.T) {
	_, err := Pyramid(testImage(16, 16), []int{32}, 1)
	assert.Error(t, err)
}

func TestPyramid_NilImage(t *testing.T) {
	_, err := Pyramid(nil, []int{8}, 1)
	assert.Error(t, err)
}

// TestPyramid_FeedsGenerator wires a synthesized pyramid through the full
// proposal pipeline.
func TestPyramid_FeedsGenerator(t *testing.T) {
	levels, err := Pyramid(testImage(80, 80), []int{8, 16}, 1)
	require.NoError(t, err)

	pairs := make([]proposal.InputPair, len(levels))
	for i, level := range levels {
		grid, err := anchors.GridFor(anchors.Config{
			BaseSize: level.Stride,
			Ratios:   []float32{1},
			Scales:   []float32{1},
			Stride:   level.Stride,
		}, level.Height, level.Width)
		require.NoError(t, err)
		pairs[i] = proposal.InputPair{Scores: level.Scores, Deltas: level.Deltas, Grid: grid}
	}

	gen, err := proposal.NewGenerator(proposal.Config{
		ScoreThreshold:   0.3,
		IoUThreshold:     0.7,
		PreNMSTopK:       500,
		PostNMSTopK:      50,
		AllowBorderBoxes: true,
	})
	require.NoError(t, err)
	require.NoError(t, gen.Setup(pairs))

	out, err := gen.Forward(pairs, 80, 80)
	require.NoError(t, err)
	require.Len(t, out.Groups, 2)
	for _, group := range out.Groups {
		assert.LessOrEqual(t, len(group), 50)
	}
}
