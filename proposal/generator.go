package proposal

import (
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-rpn/anchors"
	"github.com/nvr-ai/go-rpn/boxes"
	"github.com/nvr-ai/go-rpn/postprocess"
	"github.com/nvr-ai/go-rpn/profiler"
)

// InputPair is one (score map, delta map) tensor pair from a single
// feature-map scale, together with the anchor grid it was predicted over.
type InputPair struct {
	// Scores holds classification confidences, shape
	// (batch, anchors, height, width), float32.
	Scores *tensor.Dense
	// Deltas holds box regression deltas, shape
	// (batch, anchors*4, height, width), float32. Channel order per
	// anchor is (dx, dy, dw, dh).
	Deltas *tensor.Dense
	// Grid is the anchor grid matching the feature map dimensions.
	Grid *anchors.Grid
}

// pairShape is the validated shape signature of one input pair.
type pairShape struct {
	batch   int
	anchors int
	height  int
	width   int
}

// candidate is one decoded per-anchor slot. Slots are written by exactly
// one decoder (sequential sweep or one parallel worker), so the layout is
// race-free by construction.
type candidate struct {
	box   boxes.Box
	score float32
	valid bool
}

// Generator produces region proposals from raw backbone outputs.
//
// A Generator is configured and set up once, then drives any number of
// forward passes. Forward passes on distinct inputs may run concurrently;
// scratch buffers are taken from an internal pool with exclusive ownership
// per in-flight call.
type Generator struct {
	cfg    Config
	timer  *profiler.StageTimer
	shapes []pairShape
	pool   sync.Pool
}

// NewGenerator creates a generator from a validated configuration.
//
// Arguments:
//   - cfg: The configuration bundle.
//
// Returns:
//   - The generator, ready for Setup.
//   - An error if the configuration is invalid. Nothing is clamped.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{cfg: cfg}
	g.pool.New = func() interface{} {
		s := make([]candidate, 0)
		return &s
	}
	return g, nil
}

// Config returns the generator's configuration.
func (g *Generator) Config() Config { return g.cfg }

// SetProfiler attaches a stage timer recording decode/sort/nms durations.
// A nil timer disables profiling.
func (g *Generator) SetProfiler(t *profiler.StageTimer) { g.timer = t }

// Setup validates the input tensor shapes against each other and the
// anchor grids, and records them. Shape disagreement is a programming
// error and fails setup; it is not a per-call recoverable condition.
//
// Arguments:
//   - pairs: The input pairs the coming forward passes will carry. The
//     tensor contents are ignored; only shapes matter here.
//
// Returns:
//   - An error describing the first mismatch, or nil.
func (g *Generator) Setup(pairs []InputPair) error {
	if len(pairs) == 0 {
		return errors.New("proposal: setup requires at least one input pair")
	}

	shapes := make([]pairShape, len(pairs))
	for i, pair := range pairs {
		sh, err := validatePair(pair)
		if err != nil {
			return errors.Wrapf(err, "proposal: input pair %d", i)
		}
		shapes[i] = sh
	}

	batch := shapes[0].batch
	for i, sh := range shapes {
		if sh.batch != batch {
			return errors.Errorf("proposal: input pair %d batch %d disagrees with pair 0 batch %d",
				i, sh.batch, batch)
		}
	}

	g.shapes = shapes
	return nil
}

// Forward runs one proposal pass: threshold, decode, clip, filter, rank,
// suppress, and cap candidates per group.
//
// Candidates from different input pairs never interact; each pair is an
// independent output group. When MergeGroups is set, a merged view is
// additionally produced by re-sorting and truncating the union after
// per-group suppression.
//
// Non-finite values in the inputs fail the whole call: any NaN or Inf
// score, or a non-finite delta on a candidate that passed the score
// threshold, aborts the pass with an error and produces no output.
//
// Arguments:
//   - pairs: Input pairs matching the shapes recorded by Setup.
//   - imageWidth: Image width in pixels, used for clipping.
//   - imageHeight: Image height in pixels, used for clipping.
//
// Returns:
//   - The proposal output, one group per input pair.
//   - An error on shape mismatch or numerical anomaly; outputs are never
//     partially populated.
func (g *Generator) Forward(pairs []InputPair, imageWidth, imageHeight float32) (*Output, error) {
	if len(g.shapes) == 0 {
		return nil, errors.New("proposal: forward called before setup")
	}
	if len(pairs) != len(g.shapes) {
		return nil, errors.Errorf("proposal: forward got %d input pairs, setup saw %d",
			len(pairs), len(g.shapes))
	}
	if imageWidth <= 0 || imageHeight <= 0 {
		return nil, errors.Errorf("proposal: image dimensions must be positive, got %fx%f",
			imageWidth, imageHeight)
	}

	out := &Output{Groups: make([][]postprocess.Result, len(pairs))}

	for gi, pair := range pairs {
		sh, err := validatePair(pair)
		if err != nil {
			return nil, errors.Wrapf(err, "proposal: input pair %d", gi)
		}
		if sh != g.shapes[gi] {
			return nil, errors.Errorf("proposal: input pair %d shape %+v disagrees with setup %+v",
				gi, sh, g.shapes[gi])
		}

		scores, err := float32Data(pair.Scores)
		if err != nil {
			return nil, errors.Wrapf(err, "proposal: input pair %d scores", gi)
		}
		deltas, err := float32Data(pair.Deltas)
		if err != nil {
			return nil, errors.Wrapf(err, "proposal: input pair %d deltas", gi)
		}

		for n := 0; n < sh.batch; n++ {
			group, err := g.forwardImage(pair.Grid, scores, deltas, n, gi, imageWidth, imageHeight)
			if err != nil {
				return nil, err
			}
			out.Groups[gi] = append(out.Groups[gi], group...)
		}
	}

	if g.cfg.MergeGroups {
		out.Merged = mergeGroups(out.Groups, g.cfg.PostNMSTopK)
	}
	return out, nil
}

// Backward is the gradient pass. Proposal generation is a selection step
// with no learnable parameters, so the pass only zeroes the upstream
// gradient buffers it is handed.
//
// Arguments:
//   - grads: Gradient tensors for the bottom inputs; nil entries are
//     skipped.
func (g *Generator) Backward(grads []*tensor.Dense) {
	for _, t := range grads {
		if t != nil {
			t.Zero()
		}
	}
}

// forwardImage processes one batch image of one input pair end to end.
func (g *Generator) forwardImage(grid *anchors.Grid, scores, deltas []float32, image, group int, imageWidth, imageHeight float32) ([]postprocess.Result, error) {
	slots := g.acquireSlots(grid.NumAnchors())
	defer g.releaseSlots(slots)

	start := time.Now()
	var err error
	if g.cfg.Workers > 1 {
		err = g.decodeParallel(slots, scores, deltas, image, grid, imageWidth, imageHeight)
	} else {
		err = g.decodeRows(slots, scores, deltas, image, grid, imageWidth, imageHeight, 0, grid.Height())
	}
	g.timer.Record("decode", time.Since(start))
	if err != nil {
		return nil, err
	}

	candidates := make([]postprocess.Result, 0, len(slots))
	for i := range slots {
		if slots[i].valid {
			candidates = append(candidates, postprocess.Result{
				Box:   slots[i].box,
				Score: slots[i].score,
				Image: image,
				Group: group,
			})
		}
	}

	start = time.Now()
	postprocess.SortByScore(candidates)
	candidates = postprocess.Truncate(candidates, g.cfg.PreNMSTopK)
	g.timer.Record("sort", time.Since(start))

	start = time.Now()
	keep := postprocess.Suppress(candidates, g.cfg.IoUThreshold)
	g.timer.Record("nms", time.Since(start))

	if len(keep) > g.cfg.PostNMSTopK {
		keep = keep[:g.cfg.PostNMSTopK]
	}
	survivors := make([]postprocess.Result, 0, len(keep))
	for _, idx := range keep {
		survivors = append(survivors, candidates[idx])
	}
	return survivors, nil
}

// decodeRows is the sequential decode sweep over [rowStart, rowEnd). It is
// also the per-worker body of the parallel path: every candidate's
// threshold, decode, clip, and size filter is independent, and each slot
// is written by exactly one caller.
func (g *Generator) decodeRows(slots []candidate, scores, deltas []float32, image int, grid *anchors.Grid, imageWidth, imageHeight float32, rowStart, rowEnd int) error {
	h := grid.Height()
	w := grid.Width()
	a := grid.NumTemplates()
	plane := h * w
	scoreBase := image * a * plane
	deltaBase := image * 4 * a * plane

	for row := rowStart; row < rowEnd; row++ {
		for col := 0; col < w; col++ {
			cell := row*w + col
			slot := cell * a
			for k := 0; k < a; k++ {
				c := &slots[slot+k]
				c.valid = false

				score := scores[scoreBase+k*plane+cell]
				if math32.IsNaN(score) || math32.IsInf(score, 0) {
					return errors.Errorf("proposal: non-finite score at image %d cell (%d, %d) anchor %d",
						image, row, col, k)
				}
				if score < g.cfg.ScoreThreshold {
					continue
				}

				dx := deltas[deltaBase+(k*4+0)*plane+cell]
				dy := deltas[deltaBase+(k*4+1)*plane+cell]
				dw := deltas[deltaBase+(k*4+2)*plane+cell]
				dh := deltas[deltaBase+(k*4+3)*plane+cell]
				if !finite4(dx, dy, dw, dh) {
					return errors.Errorf("proposal: non-finite delta at image %d cell (%d, %d) anchor %d",
						image, row, col, k)
				}

				anchor := grid.At(row, col, k)
				aw := anchor.Width()
				ah := anchor.Height()
				cx := anchor.X1 + aw/2 + dx*aw
				cy := anchor.Y1 + ah/2 + dy*ah
				nw := aw * math32.Exp(dw)
				nh := ah * math32.Exp(dh)

				box := boxes.Box{
					X1: cx - nw/2,
					Y1: cy - nh/2,
					X2: cx + nw/2,
					Y2: cy + nh/2,
				}.Clip(imageWidth, imageHeight)

				if box.Width() <= 0 || box.Height() <= 0 {
					continue
				}
				if box.Width() < g.cfg.MinBoxSize || box.Height() < g.cfg.MinBoxSize {
					continue
				}
				if !g.cfg.AllowBorderBoxes && box.TouchesBorder(imageWidth, imageHeight) {
					continue
				}

				c.box = box
				c.score = score
				c.valid = true
			}
		}
	}
	return nil
}

// decodeParallel fans the decode sweep out over row chunks. Workers write
// disjoint slot ranges; the caller's read of slots after the wait is the
// synchronization barrier the subsequent sort and suppression require.
func (g *Generator) decodeParallel(slots []candidate, scores, deltas []float32, image int, grid *anchors.Grid, imageWidth, imageHeight float32) error {
	h := grid.Height()
	workers := g.cfg.Workers
	if workers > h {
		workers = h
	}
	chunk := (h + workers - 1) / workers

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for wi := 0; wi < workers; wi++ {
		rowStart := wi * chunk
		rowEnd := rowStart + chunk
		if rowEnd > h {
			rowEnd = h
		}
		if rowStart >= rowEnd {
			continue
		}

		wg.Add(1)
		go func(wi, rowStart, rowEnd int) {
			defer wg.Done()
			errs[wi] = g.decodeRows(slots, scores, deltas, image, grid, imageWidth, imageHeight, rowStart, rowEnd)
		}(wi, rowStart, rowEnd)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) acquireSlots(n int) []candidate {
	p := g.pool.Get().(*[]candidate)
	s := *p
	if cap(s) < n {
		s = make([]candidate, n)
	}
	return s[:n]
}

func (g *Generator) releaseSlots(s []candidate) {
	g.pool.Put(&s)
}

// validatePair checks one input pair's tensors against its grid.
func validatePair(p InputPair) (pairShape, error) {
	if p.Grid == nil {
		return pairShape{}, errors.New("anchor grid is nil")
	}
	if p.Scores == nil || p.Deltas == nil {
		return pairShape{}, errors.New("score and delta tensors are required")
	}
	if p.Scores.Dtype() != tensor.Float32 {
		return pairShape{}, errors.Errorf("score tensor must be float32, got %v", p.Scores.Dtype())
	}
	if p.Deltas.Dtype() != tensor.Float32 {
		return pairShape{}, errors.Errorf("delta tensor must be float32, got %v", p.Deltas.Dtype())
	}

	ss := p.Scores.Shape()
	ds := p.Deltas.Shape()
	if len(ss) != 4 || len(ds) != 4 {
		return pairShape{}, errors.Errorf("score/delta tensors must be 4D, got %v and %v", ss, ds)
	}

	a := p.Grid.NumTemplates()
	sh := pairShape{batch: ss[0], anchors: a, height: p.Grid.Height(), width: p.Grid.Width()}

	if ss[1] != a {
		return pairShape{}, errors.Errorf("score channels %d disagree with %d anchor templates", ss[1], a)
	}
	if ds[1] != 4*a {
		return pairShape{}, errors.Errorf("delta channels %d disagree with %d anchor templates", ds[1], a)
	}
	if ss[2] != sh.height || ss[3] != sh.width {
		return pairShape{}, errors.Errorf("score map %dx%d disagrees with grid %dx%d",
			ss[2], ss[3], sh.height, sh.width)
	}
	if ds[0] != ss[0] || ds[2] != sh.height || ds[3] != sh.width {
		return pairShape{}, errors.Errorf("delta shape %v disagrees with score shape %v", ds, ss)
	}
	return sh, nil
}

func float32Data(t *tensor.Dense) ([]float32, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.New("tensor backing is not []float32")
	}
	return data, nil
}

func finite4(a, b, c, d float32) bool {
	for _, v := range [4]float32{a, b, c, d} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}
