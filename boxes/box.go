// Package boxes - Axis-aligned bounding box geometry.
package boxes

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Box is a lightweight axis-aligned bounding box in image coordinates.
// X2 and Y2 are exclusive, so a box covering a single 10x10 cell at the
// origin is {0, 0, 10, 10}.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float32 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box.
func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns the area of the box. Boxes with non-positive width or
// height have zero area.
func (b Box) Area() float32 {
	w := b.Width()
	h := b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Empty reports whether the box has non-positive width or height.
func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

func (b Box) String() string {
	return fmt.Sprintf("(%f, %f), (%f, %f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Intersection calculates the intersection area between two boxes.
//
// Arguments:
//   - other: The other box to intersect with.
//
// Returns:
//   - The area of overlap, or 0 when the boxes do not overlap.
func (b Box) Intersection(other Box) float32 {
	ix1 := math32.Max(b.X1, other.X1)
	iy1 := math32.Max(b.Y1, other.Y1)
	ix2 := math32.Min(b.X2, other.X2)
	iy2 := math32.Min(b.Y2, other.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	return iw * ih
}

// Union calculates the union area between two boxes.
//
// Arguments:
//   - other: The other box to union with.
//
// Returns:
//   - The combined area covered by both boxes.
func (b Box) Union(other Box) float32 {
	return b.Area() + other.Area() - b.Intersection(other)
}

// IoU calculates the Intersection over Union between two boxes.
//
// IoU = Area of Intersection / Area of Union, a value between 0.0 and 1.0
// measuring how much the two boxes overlap. It is the suppression metric
// used by Non-Maximum Suppression.
//
// Degenerate (zero-area) boxes yield an IoU of 0 with everything, so a box
// is never suppressed solely because its geometry collapsed.
//
// Arguments:
//   - other: The other box to compare against.
//
// Returns:
//   - The IoU value between 0 and 1.
func (b Box) IoU(other Box) float32 {
	inter := b.Intersection(other)
	if inter <= 0 {
		return 0
	}
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Clip constrains the box to the image bounds [0, width] x [0, height].
//
// Arguments:
//   - width: Image width in pixels.
//   - height: Image height in pixels.
//
// Returns:
//   - The clipped box. Coordinates satisfy 0 <= X1 <= X2 <= width and
//     0 <= Y1 <= Y2 <= height whenever the input box was ordered.
func (b Box) Clip(width, height float32) Box {
	return Box{
		X1: math32.Max(0, math32.Min(b.X1, width)),
		Y1: math32.Max(0, math32.Min(b.Y1, height)),
		X2: math32.Max(0, math32.Min(b.X2, width)),
		Y2: math32.Max(0, math32.Min(b.Y2, height)),
	}
}

// TouchesBorder reports whether the box lies on any edge of the image
// bounds [0, width] x [0, height].
func (b Box) TouchesBorder(width, height float32) bool {
	return b.X1 <= 0 || b.Y1 <= 0 || b.X2 >= width || b.Y2 >= height
}

// Finite reports whether all four coordinates are finite numbers.
func (b Box) Finite() bool {
	for _, v := range [4]float32{b.X1, b.Y1, b.X2, b.Y2} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}
