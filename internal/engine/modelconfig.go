package engine

import (
	"encoding/json"
	"fmt"
	"os"
)

// ModelConfig is the subset of the engine's JSON model configuration the
// pipeline needs: output sample rate and speaker table.
type ModelConfig struct {
	Data struct {
		SamplingRate int `json:"sampling_rate"`
		HopLength    int `json:"hop_length"`
	} `json:"data"`
	Speakers map[string]int `json:"spk"`
}

// LoadModelConfig reads and validates the model configuration at path
func LoadModelConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config %s: %w", path, err)
	}

	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model config %s: %w", path, err)
	}

	if cfg.Data.SamplingRate <= 0 {
		return nil, fmt.Errorf("model config %s: data.sampling_rate must be positive, got %d", path, cfg.Data.SamplingRate)
	}

	if len(cfg.Speakers) == 0 {
		return nil, fmt.Errorf("model config %s: spk table is empty", path)
	}

	return &cfg, nil
}
