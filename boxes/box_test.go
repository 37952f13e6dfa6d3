package boxes

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases.
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		b1       Box
		b2       Box
		expected float32
		epsilon  float32
	}{
		{
			name:     "Identical boxes",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{0, 0, 100, 100},
			expected: 1.0,
			epsilon:  0.001,
		},
		{
			name:     "No overlap",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{200, 200, 300, 300},
			expected: 0.0,
			epsilon:  0.001,
		},
		{
			name:     "Touching edges",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{100, 0, 200, 100},
			expected: 0.0,
			epsilon:  0.001,
		},
		{
			name:     "Half overlap",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{50, 50, 150, 150},
			expected: 0.142857, // intersection=2500, union=17500, 1/7
			epsilon:  0.001,
		},
		{
			name:     "One inside other",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{25, 25, 75, 75},
			expected: 0.25,
			epsilon:  0.001,
		},
		{
			name:     "Zero-area box never overlaps",
			b1:       Box{50, 50, 50, 50},
			b2:       Box{0, 0, 100, 100},
			expected: 0.0,
			epsilon:  0.001,
		},
		{
			name:     "Two zero-area boxes",
			b1:       Box{10, 10, 10, 10},
			b2:       Box{10, 10, 10, 10},
			expected: 0.0,
			epsilon:  0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.b1.IoU(tt.b2)
			assert.InDelta(t, tt.expected, result, float64(tt.epsilon))

			// IoU(A, B) must equal IoU(B, A).
			reverse := tt.b2.IoU(tt.b1)
			assert.InDelta(t, result, reverse, float64(tt.epsilon), "IoU should be symmetric")
		})
	}
}

// TestClip_Bounds validates that clipped boxes always land inside the image.
func TestClip_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		box      Box
		expected Box
	}{
		{
			name:     "Fully inside",
			box:      Box{10, 10, 50, 50},
			expected: Box{10, 10, 50, 50},
		},
		{
			name:     "Negative origin",
			box:      Box{-20, -5, 50, 50},
			expected: Box{0, 0, 50, 50},
		},
		{
			name:     "Past the far edge",
			box:      Box{80, 90, 200, 300},
			expected: Box{80, 90, 100, 100},
		},
		{
			name:     "Entirely outside collapses to the edge",
			box:      Box{-50, -50, -10, -10},
			expected: Box{0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.box.Clip(100, 100)
			assert.Equal(t, tt.expected, got)
			assert.GreaterOrEqual(t, got.X2, got.X1)
			assert.GreaterOrEqual(t, got.Y2, got.Y1)
			assert.GreaterOrEqual(t, got.X1, float32(0))
			assert.GreaterOrEqual(t, got.Y1, float32(0))
			assert.LessOrEqual(t, got.X2, float32(100))
			assert.LessOrEqual(t, got.Y2, float32(100))
		})
	}
}

func TestTouchesBorder(t *testing.T) {
	assert.True(t, Box{0, 10, 50, 50}.TouchesBorder(100, 100))
	assert.True(t, Box{10, 10, 100, 50}.TouchesBorder(100, 100))
	assert.False(t, Box{1, 1, 99, 99}.TouchesBorder(100, 100))
}

func TestFinite(t *testing.T) {
	assert.True(t, Box{0, 0, 10, 10}.Finite())
	assert.False(t, Box{math32.NaN(), 0, 10, 10}.Finite())
	assert.False(t, Box{0, 0, math32.Inf(1), 10}.Finite())
}

// BenchmarkIoU measures the raw per-pair suppression cost.
func BenchmarkIoU(b *testing.B) {
	b1 := Box{0, 0, 100, 100}
	b2 := Box{50, 50, 150, 150}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = b1.IoU(b2)
	}
}
