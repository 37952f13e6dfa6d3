package anchors

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-rpn/boxes"
)

// Grid holds every anchor box for one (feature-map size, stride, template
// set) combination, replicated across the grid in image coordinates.
//
// A Grid is immutable once built. It must be rebuilt, not resized, whenever
// the stride, template set, or grid dimensions change; GridFor handles that
// by keying its cache on the full configuration.
type Grid struct {
	cfg       Config
	height    int
	width     int
	templates []boxes.Box
	// data is the flat (height, width, templates, 4) float32 layout.
	data []float32
}

// NewGrid replicates the template set of cfg across a height x width
// feature-map grid.
//
// Arguments:
//   - cfg: Anchor configuration (templates and stride).
//   - height: Feature-map height in cells.
//   - width: Feature-map width in cells.
//
// Returns:
//   - The fully materialized grid.
//   - An error if the configuration or dimensions are invalid.
func NewGrid(cfg Config, height, width int) (*Grid, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Errorf("anchors: grid dimensions must be positive, got %dx%d", height, width)
	}
	templates, err := Templates(cfg)
	if err != nil {
		return nil, err
	}

	a := len(templates)
	data := make([]float32, height*width*a*4)

	i := 0
	for row := 0; row < height; row++ {
		sy := float32(row * cfg.Stride)
		for col := 0; col < width; col++ {
			sx := float32(col * cfg.Stride)
			for k := 0; k < a; k++ {
				t := templates[k]
				data[i+0] = t.X1 + sx
				data[i+1] = t.Y1 + sy
				data[i+2] = t.X2 + sx
				data[i+3] = t.Y2 + sy
				i += 4
			}
		}
	}

	return &Grid{
		cfg:       cfg,
		height:    height,
		width:     width,
		templates: templates,
		data:      data,
	}, nil
}

// At returns the anchor box for a grid cell and template index.
//
// The lookup is O(1) and has no side effects. Indices are not range
// checked beyond the slice bounds themselves; callers iterate the grid's
// own dimensions.
func (g *Grid) At(row, col, template int) boxes.Box {
	i := ((row*g.width+col)*len(g.templates) + template) * 4
	return boxes.Box{
		X1: g.data[i+0],
		Y1: g.data[i+1],
		X2: g.data[i+2],
		Y2: g.data[i+3],
	}
}

// Height returns the grid height in cells.
func (g *Grid) Height() int { return g.height }

// Width returns the grid width in cells.
func (g *Grid) Width() int { return g.width }

// Stride returns the image pixels per cell.
func (g *Grid) Stride() int { return g.cfg.Stride }

// NumTemplates returns the number of anchors per cell.
func (g *Grid) NumTemplates() int { return len(g.templates) }

// NumAnchors returns the total candidate count before filtering:
// anchors per cell times the number of grid cells.
func (g *Grid) NumAnchors() int { return g.height * g.width * len(g.templates) }

// Templates returns the per-cell template boxes, relative to the cell.
func (g *Grid) Templates() []boxes.Box { return g.templates }

// Tensor returns the grid as a (height, width, templates, 4) dense tensor.
// The tensor shares the grid's backing storage and must be treated as
// read-only.
func (g *Grid) Tensor() *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(g.height, g.width, len(g.templates), 4),
		tensor.WithBacking(g.data),
	)
}

var (
	gridMu    sync.Mutex
	gridCache = map[string]*Grid{}
)

// GridFor returns a cached grid for the configuration and dimensions,
// building it on first use. Grids are immutable, so sharing the cached
// instance across callers is safe.
//
// Arguments:
//   - cfg: Anchor configuration.
//   - height: Feature-map height in cells.
//   - width: Feature-map width in cells.
//
// Returns:
//   - The shared grid for this exact configuration.
//   - An error if the grid cannot be built.
func GridFor(cfg Config, height, width int) (*Grid, error) {
	key := fmt.Sprintf("%d|%d|%v|%v|%dx%d", cfg.BaseSize, cfg.Stride, cfg.Ratios, cfg.Scales, height, width)

	gridMu.Lock()
	defer gridMu.Unlock()

	if g, ok := gridCache[key]; ok {
		return g, nil
	}
	g, err := NewGrid(cfg, height, width)
	if err != nil {
		return nil, err
	}
	gridCache[key] = g
	return g, nil
}
