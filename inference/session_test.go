package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		ModelPath:    "model.onnx",
		InputName:    "images",
		InputShape:   []int64{1, 3, 608, 800},
		ScoreOutputs: []string{"rpn_cls_prob"},
		DeltaOutputs: []string{"rpn_bbox_pred"},
		ScoreShapes:  [][]int64{{1, 15, 38, 50}},
		DeltaShapes:  [][]int64{{1, 60, 38, 50}},
	}
	assert.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing model path", func(c *Config) { c.ModelPath = "" }},
		{"missing input name", func(c *Config) { c.InputName = "" }},
		{"missing input shape", func(c *Config) { c.InputShape = nil }},
		{"no outputs", func(c *Config) { c.ScoreOutputs = nil; c.DeltaOutputs = nil }},
		{"unpaired outputs", func(c *Config) { c.DeltaOutputs = nil }},
		{"missing score shape", func(c *Config) { c.ScoreShapes = nil }},
		{"missing delta shape", func(c *Config) { c.DeltaShapes = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestNewSessionMissingLibrary(t *testing.T) {
	cfg := Config{
		ModelPath:    "model.onnx",
		LibraryPath:  "/nonexistent/onnxruntime.so",
		InputName:    "images",
		InputShape:   []int64{1, 3, 608, 800},
		ScoreOutputs: []string{"rpn_cls_prob"},
		DeltaOutputs: []string{"rpn_bbox_pred"},
		ScoreShapes:  [][]int64{{1, 15, 38, 50}},
		DeltaShapes:  [][]int64{{1, 60, 38, 50}},
	}
	s, err := NewSession(cfg)
	assert.Error(t, err)
	assert.Nil(t, s)
}
