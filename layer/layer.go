// Package layer - Named layer registration and instantiation.
//
// The surrounding framework instantiates layers by the type-name string
// found in a model description. This package holds the registry mapping
// those names to factories, populated at process start, and the layer
// capability set: setup, forward, and a backward pass that most
// post-processing layers implement as a no-op.
package layer

import (
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-rpn/anchors"
	"github.com/nvr-ai/go-rpn/proposal"
)

// Config carries everything a layer factory needs to build one layer
// instance from a model description.
type Config struct {
	// Type is the registered layer type name.
	Type string `json:"type" yaml:"type"`
	// Anchors configures one anchor template set per (score, delta)
	// bottom tensor pair, in bottom order.
	Anchors []anchors.Config `json:"anchors" yaml:"anchors"`
	// Proposal is the generator configuration bundle.
	Proposal proposal.Config `json:"proposal" yaml:"proposal"`
	// ImageWidth is the input image width used for box clipping.
	ImageWidth float32 `json:"image_width" yaml:"image_width"`
	// ImageHeight is the input image height used for box clipping.
	ImageHeight float32 `json:"image_height" yaml:"image_height"`
}

// Layer is the capability set the framework drives: validate and bind
// input shapes once, then run forward passes; backward is part of the
// contract even when it is a no-op.
type Layer interface {
	// Type returns the registered type name of the layer.
	Type() string
	// Setup validates the bottom tensor shapes and prepares internal
	// state. Called once before the first Forward.
	Setup(bottom []*tensor.Dense) error
	// Forward consumes the bottom tensors and produces the layer output.
	Forward(bottom []*tensor.Dense) (*tensor.Dense, error)
	// Backward propagates (or zeroes) gradients for the bottom tensors.
	Backward(grads []*tensor.Dense) error
}

// Factory builds a layer instance from its configuration.
type Factory func(cfg Config) (Layer, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register associates a layer type name with its factory. Registration
// happens from package init functions; a duplicate name panics because it
// is a programming error, not a runtime condition.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic("layer: duplicate registration of type " + name)
	}
	registry[name] = factory
}

// New instantiates a registered layer by type name.
//
// Arguments:
//   - name: The registered type name.
//   - cfg: The layer configuration.
//
// Returns:
//   - The layer instance.
//   - An error if the name is unknown or the configuration is invalid.
func New(name string, cfg Config) (Layer, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("layer: unsupported layer type: %s", name)
	}
	cfg.Type = name
	return factory(cfg)
}

// Types returns the registered type names.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
