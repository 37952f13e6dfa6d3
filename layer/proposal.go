package layer

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-rpn/anchors"
	"github.com/nvr-ai/go-rpn/proposal"
)

// ProposalLayerType is the type name region proposal layers are
// registered and instantiated under.
const ProposalLayerType = "rpn_proposal"

func init() {
	Register(ProposalLayerType, newProposalLayer)
}

// proposalLayer adapts a proposal.Generator to the framework layer
// contract. Bottom tensors arrive in pairs, (scores, deltas) per
// feature-map scale, in the order of Config.Anchors.
type proposalLayer struct {
	cfg   Config
	gen   *proposal.Generator
	grids []*anchors.Grid
}

func newProposalLayer(cfg Config) (Layer, error) {
	if len(cfg.Anchors) == 0 {
		return nil, errors.New("layer: proposal layer requires at least one anchor configuration")
	}
	if cfg.ImageWidth <= 0 || cfg.ImageHeight <= 0 {
		return nil, errors.Errorf("layer: proposal layer image dimensions must be positive, got %fx%f",
			cfg.ImageWidth, cfg.ImageHeight)
	}
	for i, ac := range cfg.Anchors {
		if err := ac.Validate(); err != nil {
			return nil, errors.Wrapf(err, "layer: anchor configuration %d", i)
		}
	}

	gen, err := proposal.NewGenerator(cfg.Proposal)
	if err != nil {
		return nil, err
	}
	return &proposalLayer{cfg: cfg, gen: gen}, nil
}

func (l *proposalLayer) Type() string { return ProposalLayerType }

// Setup binds each bottom pair to a cached anchor grid sized from its
// score map and validates every shape against it.
func (l *proposalLayer) Setup(bottom []*tensor.Dense) error {
	pairs, grids, err := l.pairs(bottom, true)
	if err != nil {
		return err
	}
	if err := l.gen.Setup(pairs); err != nil {
		return err
	}
	l.grids = grids
	return nil
}

func (l *proposalLayer) Forward(bottom []*tensor.Dense) (*tensor.Dense, error) {
	if l.grids == nil {
		return nil, errors.New("layer: forward called before setup")
	}
	pairs, _, err := l.pairs(bottom, false)
	if err != nil {
		return nil, err
	}
	out, err := l.gen.Forward(pairs, l.cfg.ImageWidth, l.cfg.ImageHeight)
	if err != nil {
		return nil, err
	}
	return out.Tensor(), nil
}

// Backward zeroes the upstream gradient buffers; proposal selection is
// not differentiable.
func (l *proposalLayer) Backward(grads []*tensor.Dense) error {
	l.gen.Backward(grads)
	return nil
}

// pairs groups the bottom tensors into input pairs. When rebuild is set,
// grids are resolved (and cached) from the score map dimensions;
// otherwise the grids bound at setup are reused.
func (l *proposalLayer) pairs(bottom []*tensor.Dense, rebuild bool) ([]proposal.InputPair, []*anchors.Grid, error) {
	want := 2 * len(l.cfg.Anchors)
	if len(bottom) != want {
		return nil, nil, errors.Errorf("layer: proposal layer expects %d bottom tensors (a score/delta pair per scale), got %d",
			want, len(bottom))
	}

	pairs := make([]proposal.InputPair, len(l.cfg.Anchors))
	grids := make([]*anchors.Grid, len(l.cfg.Anchors))
	for i := range l.cfg.Anchors {
		scores := bottom[2*i]
		deltas := bottom[2*i+1]
		if scores == nil || deltas == nil {
			return nil, nil, errors.Errorf("layer: bottom pair %d has nil tensors", i)
		}

		var grid *anchors.Grid
		if rebuild {
			shape := scores.Shape()
			if len(shape) != 4 {
				return nil, nil, errors.Errorf("layer: bottom pair %d score tensor must be 4D, got %v", i, shape)
			}
			var err error
			grid, err = anchors.GridFor(l.cfg.Anchors[i], shape[2], shape[3])
			if err != nil {
				return nil, nil, errors.Wrapf(err, "layer: bottom pair %d", i)
			}
		} else {
			grid = l.grids[i]
		}

		pairs[i] = proposal.InputPair{Scores: scores, Deltas: deltas, Grid: grid}
		grids[i] = grid
	}
	return pairs, grids, nil
}
