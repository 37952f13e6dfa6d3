// Command rpn-demo runs proposal generation over a still image and writes
// a copy with the top proposals drawn on it. Without a trained head the
// scores come from a synthetic feature pyramid, so the boxes show anchor
// coverage rather than real detections.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-rpn/anchors"
	"github.com/nvr-ai/go-rpn/featuremap"
	"github.com/nvr-ai/go-rpn/profiler"
	"github.com/nvr-ai/go-rpn/proposal"
)

func main() {
	inPath := flag.String("in", "", "input image path")
	outPath := flag.String("out", "proposals.jpg", "output image path")
	topK := flag.Int("top", 25, "proposals to keep after NMS")
	scoreThresh := flag.Float64("score", 0.3, "score threshold")
	iouThresh := flag.Float64("iou", 0.7, "NMS overlap threshold")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: rpn-demo -in image.jpg [-out proposals.jpg]")
		os.Exit(1)
	}

	mat := gocv.IMRead(*inPath, gocv.IMReadColor)
	if mat.Empty() {
		fmt.Fprintf(os.Stderr, "cannot read image %s\n", *inPath)
		os.Exit(1)
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		fmt.Fprintf(os.Stderr, "converting image: %v\n", err)
		os.Exit(1)
	}

	anchorConfigs := []anchors.Config{
		{BaseSize: 64, Ratios: []float32{0.5, 1, 2}, Scales: []float32{1, 2}, Stride: 16},
		{BaseSize: 128, Ratios: []float32{0.5, 1, 2}, Scales: []float32{1, 2}, Stride: 32},
	}

	levels, err := featuremap.Pyramid(img, []int{16, 32}, anchorConfigs[0].NumTemplates())
	if err != nil {
		fmt.Fprintf(os.Stderr, "building feature pyramid: %v\n", err)
		os.Exit(1)
	}

	pairs := make([]proposal.InputPair, len(levels))
	for i, lvl := range levels {
		shape := lvl.Scores.Shape()
		grid, err := anchors.GridFor(anchorConfigs[i], shape[2], shape[3])
		if err != nil {
			fmt.Fprintf(os.Stderr, "building anchor grid: %v\n", err)
			os.Exit(1)
		}
		pairs[i] = proposal.InputPair{Scores: lvl.Scores, Deltas: lvl.Deltas, Grid: grid}
	}

	gen, err := proposal.NewGenerator(proposal.Config{
		ScoreThreshold: float32(*scoreThresh),
		IoUThreshold:   float32(*iouThresh),
		PreNMSTopK:     6000,
		PostNMSTopK:    *topK,
		MinBoxSize:     4,
		MergeGroups:    true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuring generator: %v\n", err)
		os.Exit(1)
	}

	timer := profiler.NewStageTimer()
	gen.SetProfiler(timer)

	if err := gen.Setup(pairs); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}

	bounds := img.Bounds()
	out, err := gen.Forward(pairs, float32(bounds.Dx()), float32(bounds.Dy()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "forward: %v\n", err)
		os.Exit(1)
	}

	results := out.Results()
	fmt.Printf("kept %d proposals\n", len(results))
	for _, r := range results {
		rect := image.Rect(int(r.Box.X1), int(r.Box.Y1), int(r.Box.X2), int(r.Box.Y2))
		gocv.Rectangle(&mat, rect, colorForGroup(r.Group), 2)
	}

	if ok := gocv.IMWrite(*outPath, mat); !ok {
		fmt.Fprintf(os.Stderr, "cannot write image %s\n", *outPath)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *outPath)
	fmt.Print(timer.Report())
}

// colorForGroup cycles a small palette so proposals from different
// feature levels are distinguishable.
func colorForGroup(group int) color.RGBA {
	palette := []color.RGBA{
		{R: 0, G: 0, B: 255, A: 0},
		{R: 0, G: 255, B: 0, A: 0},
		{R: 255, G: 0, B: 0, A: 0},
		{R: 0, G: 255, B: 255, A: 0},
	}
	return palette[group%len(palette)]
}
