// Package config loads experiment configuration for nested optimization
// runs.
//
// Out-of-range values are clamped into their valid ranges rather than
// rejected, the same permissive policy the core applies at construction,
// so a hand-edited file never fails a run over a stray value.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root experiment configuration.
type Config struct {
	Levels           []LevelConfig   `yaml:"levels"`
	Optimizer        OptimizerConfig `yaml:"optimizer"`
	Memory           MemoryConfig    `yaml:"memory"`
	PropagateContext bool            `yaml:"propagate_context"`
	Steps            int             `yaml:"steps"`
}

// LevelConfig configures one optimization level.
type LevelConfig struct {
	Frequency       float32 `yaml:"frequency"`
	LearningRate    float32 `yaml:"learning_rate"`
	CompressionRate float32 `yaml:"compression_rate"`
}

// OptimizerConfig configures the DeepOptimizer and its update rule.
type OptimizerConfig struct {
	Rule           string  `yaml:"rule"` // "adam" (default) or "sgd"
	LR             float32 `yaml:"lr"`
	Beta1          float32 `yaml:"beta1"`
	Beta2          float32 `yaml:"beta2"`
	Eps            float32 `yaml:"eps"`
	WeightDecay    float32 `yaml:"weight_decay"`
	AMSGrad        bool    `yaml:"amsgrad"`
	ClipThreshold  float32 `yaml:"clip_threshold"`
	EnableClipping bool    `yaml:"enable_clipping"`
}

// MemoryConfig configures the surprise cache.
type MemoryConfig struct {
	Capacity          int     `yaml:"capacity"`
	SurpriseThreshold float32 `yaml:"surprise_threshold"`
	DecayRate         float32 `yaml:"decay_rate"`
}

// Default returns a three-level configuration with decade-spaced
// frequencies and a small surprise cache.
func Default() Config {
	return Config{
		Levels: []LevelConfig{
			{Frequency: 1.0, CompressionRate: 1.0},
			{Frequency: 0.1, CompressionRate: 1.0},
			{Frequency: 0.01, CompressionRate: 0.5},
		},
		Optimizer: OptimizerConfig{
			Rule: "adam",
			LR:   0.001,
		},
		Memory: MemoryConfig{
			Capacity:          64,
			SurpriseThreshold: 0.1,
			DecayRate:         0.05,
		},
		PropagateContext: true,
		Steps:            1000,
	}
}

// Load reads a YAML configuration file and clamps its values into range.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Clamp()
	return cfg, nil
}

// Clamp pulls every field into its valid range in place.
func (c *Config) Clamp() {
	for i := range c.Levels {
		l := &c.Levels[i]
		if l.Frequency <= 0 {
			l.Frequency = 0.0001
		}
		if l.Frequency > 1 {
			l.Frequency = 1
		}
		if l.LearningRate < 0 {
			l.LearningRate = 0
		}
		l.CompressionRate = clamp01(l.CompressionRate)
	}
	if c.Optimizer.Rule != "sgd" {
		c.Optimizer.Rule = "adam"
	}
	if c.Optimizer.LR <= 0 {
		c.Optimizer.LR = 0.001
	}
	if c.Optimizer.WeightDecay < 0 {
		c.Optimizer.WeightDecay = 0
	}
	if c.Optimizer.ClipThreshold < 0 {
		c.Optimizer.ClipThreshold = 0
	}
	if c.Memory.Capacity < 1 {
		c.Memory.Capacity = 1
	}
	c.Memory.SurpriseThreshold = clamp01(c.Memory.SurpriseThreshold)
	c.Memory.DecayRate = clamp01(c.Memory.DecayRate)
	if c.Steps < 1 {
		c.Steps = 1
	}
}

// Frequencies returns the per-level frequencies in level order.
func (c *Config) Frequencies() []float32 {
	out := make([]float32, len(c.Levels))
	for i, l := range c.Levels {
		out[i] = l.Frequency
	}
	return out
}

// LearningRates returns the per-level learning rates in level order.
func (c *Config) LearningRates() []float32 {
	out := make([]float32, len(c.Levels))
	for i, l := range c.Levels {
		out[i] = l.LearningRate
	}
	return out
}

// CompressionRates returns the per-level compression rates in level order.
func (c *Config) CompressionRates() []float32 {
	out := make([]float32, len(c.Levels))
	for i, l := range c.Levels {
		out[i] = l.CompressionRate
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
