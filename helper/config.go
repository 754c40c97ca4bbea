package helper

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// CognitiveConfig tunes the bounded learning loop.
type CognitiveConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	PatternCap        int     `mapstructure:"pattern_cap"`
	MergeThreshold    float64 `mapstructure:"merge_threshold"`
	DrainBatchSize    int     `mapstructure:"drain_batch_size"`
	DrainIntervalSecs int     `mapstructure:"drain_interval_secs"`
}

// VectorTierConfig sizes the in-process hot/warm cache in front of the
// durable pgvector-backed cold tier.
type VectorTierConfig struct {
	HotCapacity  int `mapstructure:"hot_capacity"`
	WarmCapacity int `mapstructure:"warm_capacity"`
}

// MemoryConfig aggregates every configuration surface of the memory
// core: database connection, embedding dimension/provider, the
// cognitive engine, and vector tier sizing.
type MemoryConfig struct {
	Database DatabaseConfiguration `mapstructure:"database"`

	EmbeddingDim      int    `mapstructure:"embedding_dim"`
	EmbeddingProvider string `mapstructure:"embedding_provider"` // "hashing" | "hugot"

	// EnableEntityExtraction turns on the NER-based entity/relation
	// enrichment during document ingest. Off by default: it requires
	// downloading an ONNX model on first use.
	EnableEntityExtraction bool `mapstructure:"enable_entity_extraction"`

	Cognitive CognitiveConfig  `mapstructure:"cognitive"`
	Tiers     VectorTierConfig `mapstructure:"tiers"`
}

// DefaultMemoryConfig returns the configuration used when no file or
// environment override is present.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		EmbeddingDim:      384,
		EmbeddingProvider: "hashing",
		Cognitive: CognitiveConfig{
			Enabled:           true,
			PatternCap:        1000,
			MergeThreshold:    0.85,
			DrainBatchSize:    32,
			DrainIntervalSecs: 30,
		},
		Tiers: VectorTierConfig{
			HotCapacity:  1000,
			WarmCapacity: 10000,
		},
	}
}

// LoadMemoryConfig reads configuration from an optional YAML file and
// KNOWLEDGE_-prefixed environment variables, falling back to defaults
// for anything unset. path may be empty to skip file loading entirely.
func LoadMemoryConfig(path string) (*MemoryConfig, error) {
	cfg := DefaultMemoryConfig()

	v := viper.New()
	v.SetEnvPrefix("KNOWLEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewError("read config file", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewError("unmarshal config", fmt.Errorf("%w", err))
	}

	return &cfg, nil
}
