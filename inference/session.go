// Package inference - ONNX Runtime sessions for RPN heads.
//
// A session wraps a region-proposal-network head exported to ONNX: one
// image input, and a (score, delta) output pair per feature-map scale.
// Run copies the raw head outputs into dense tensors ready for the
// proposal generator.
package inference

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Config describes the RPN head model and its tensor bindings.
type Config struct {
	// ModelPath is the ONNX model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LibraryPath overrides the ONNX Runtime shared library location.
	// Empty selects the platform default.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputName is the image input tensor name.
	InputName string `json:"input_name" yaml:"input_name"`
	// InputShape is the image input shape, e.g. (1, 3, 608, 800).
	InputShape []int64 `json:"input_shape" yaml:"input_shape"`
	// ScoreOutputs and DeltaOutputs name the head outputs pairwise, one
	// pair per feature-map scale.
	ScoreOutputs []string `json:"score_outputs" yaml:"score_outputs"`
	DeltaOutputs []string `json:"delta_outputs" yaml:"delta_outputs"`
	// ScoreShapes and DeltaShapes are the corresponding output shapes,
	// (batch, anchors, height, width) and (batch, anchors*4, height,
	// width).
	ScoreShapes [][]int64 `json:"score_shapes" yaml:"score_shapes"`
	DeltaShapes [][]int64 `json:"delta_shapes" yaml:"delta_shapes"`
	// IntraOpThreads and InterOpThreads tune onnxruntime parallelism.
	// Zero keeps the runtime defaults.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

func (c Config) validate() error {
	if c.ModelPath == "" {
		return errors.New("inference: model path is required")
	}
	if c.InputName == "" {
		return errors.New("inference: input name is required")
	}
	if len(c.InputShape) == 0 {
		return errors.New("inference: input shape is required")
	}
	if len(c.ScoreOutputs) == 0 || len(c.ScoreOutputs) != len(c.DeltaOutputs) {
		return errors.Errorf("inference: score/delta outputs must pair up, got %d and %d",
			len(c.ScoreOutputs), len(c.DeltaOutputs))
	}
	if len(c.ScoreShapes) != len(c.ScoreOutputs) || len(c.DeltaShapes) != len(c.DeltaOutputs) {
		return errors.New("inference: an output shape is required per named output")
	}
	return nil
}

// Session is an initialized RPN head session. It is safe for use from one
// goroutine at a time; the bound input/output tensors are reused across
// runs.
type Session struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	scores  []*ort.Tensor[float32]
	deltas  []*ort.Tensor[float32]
}

// NewSession loads the model and binds its input and output tensors.
//
// Arguments:
//   - config: Model location and tensor bindings.
//
// Returns:
//   - The ready session. Call Close when done.
//   - An error if the runtime library or model cannot be loaded.
func NewSession(config Config) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	libPath := config.LibraryPath
	if libPath == "" {
		libPath = sharedLibPath()
	}
	if _, err := os.Stat(libPath); os.IsNotExist(err) {
		return nil, errors.Errorf("inference: ONNX Runtime library not found at %s", libPath)
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "inference: initializing ORT environment")
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(config.InputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "inference: creating input tensor")
	}

	s := &Session{input: inputTensor}
	destroyAll := func() {
		inputTensor.Destroy()
		for _, t := range s.scores {
			t.Destroy()
		}
		for _, t := range s.deltas {
			t.Destroy()
		}
	}

	for i := range config.ScoreOutputs {
		scoreTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(config.ScoreShapes[i]...))
		if err != nil {
			destroyAll()
			return nil, errors.Wrapf(err, "inference: creating score tensor %d", i)
		}
		s.scores = append(s.scores, scoreTensor)

		deltaTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(config.DeltaShapes[i]...))
		if err != nil {
			destroyAll()
			return nil, errors.Wrapf(err, "inference: creating delta tensor %d", i)
		}
		s.deltas = append(s.deltas, deltaTensor)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		destroyAll()
		return nil, errors.Wrap(err, "inference: creating ORT session options")
	}
	defer options.Destroy()

	if config.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
			destroyAll()
			return nil, errors.Wrap(err, "inference: setting intra-op threads")
		}
	}
	if config.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(config.InterOpThreads); err != nil {
			destroyAll()
			return nil, errors.Wrap(err, "inference: setting inter-op threads")
		}
	}

	outputNames := make([]string, 0, 2*len(s.scores))
	outputTensors := make([]ort.ArbitraryTensor, 0, 2*len(s.scores))
	for i := range s.scores {
		outputNames = append(outputNames, config.ScoreOutputs[i], config.DeltaOutputs[i])
		outputTensors = append(outputTensors, s.scores[i], s.deltas[i])
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		outputNames,
		[]ort.ArbitraryTensor{inputTensor},
		outputTensors,
		options,
	)
	if err != nil {
		destroyAll()
		return nil, errors.Wrap(err, "inference: creating ORT session")
	}
	s.session = session
	return s, nil
}

// Run executes the head on one preprocessed image and returns the score
// and delta maps, pairwise per feature scale, copied into dense tensors.
//
// Arguments:
//   - input: The image data, matching the configured input shape.
//
// Returns:
//   - Score tensors, one per scale.
//   - Delta tensors, one per scale.
//   - An error if the input size mismatches or the run fails.
func (s *Session) Run(input []float32) ([]*tensor.Dense, []*tensor.Dense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, nil, errors.New("inference: session is closed")
	}

	dst := s.input.GetData()
	if len(input) != len(dst) {
		return nil, nil, errors.Errorf("inference: input has %d elements, model expects %d",
			len(input), len(dst))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, nil, errors.Wrap(err, "inference: running session")
	}

	scores := make([]*tensor.Dense, len(s.scores))
	deltas := make([]*tensor.Dense, len(s.deltas))
	for i := range s.scores {
		scores[i] = denseCopy(s.scores[i])
		deltas[i] = denseCopy(s.deltas[i])
	}
	return scores, deltas, nil
}

// Close releases the session and its bound tensors.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	for _, t := range s.scores {
		t.Destroy()
	}
	s.scores = nil
	for _, t := range s.deltas {
		t.Destroy()
	}
	s.deltas = nil
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// denseCopy snapshots an ORT tensor into a dense tensor the caller owns.
func denseCopy(t *ort.Tensor[float32]) *tensor.Dense {
	src := t.GetData()
	data := make([]float32, len(src))
	copy(data, src)

	dims64 := t.GetShape()
	dims := make([]int, len(dims64))
	for i, d := range dims64 {
		dims[i] = int(d)
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(dims...),
		tensor.WithBacking(data),
	)
}
