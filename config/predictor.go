package config

import (
	"context"
	"fmt"

	"github.com/kilianp07/erbalance/core/prediction"
)

// PredictorConfig selects the load model.
type PredictorConfig struct {
	// Type is "heuristic" or "linear".
	Type string `json:"type"`
	// SamplesPath points to newline delimited JSON training samples used by
	// the linear model. Reloading refits from this file.
	SamplesPath string  `json:"samples_path"`
	ICURatio    float64 `json:"icu_ratio"`
	VentRatio   float64 `json:"vent_ratio"`
}

func (c *PredictorConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "heuristic"
	}
	def := prediction.NewHeuristic()
	if c.ICURatio <= 0 {
		c.ICURatio = def.ICURatio
	}
	if c.VentRatio <= 0 {
		c.VentRatio = def.VentRatio
	}
}

func (c PredictorConfig) Validate() error {
	switch c.Type {
	case "heuristic":
		return nil
	case "linear":
		if c.SamplesPath == "" {
			return fmt.Errorf("predictor.samples_path is required for the linear model")
		}
		return nil
	default:
		return fmt.Errorf("unknown predictor type %q", c.Type)
	}
}

// Loader returns the function used to build, and rebuild, the predictor.
func (c PredictorConfig) Loader() prediction.Loader {
	return func(context.Context) (prediction.Predictor, error) {
		switch c.Type {
		case "linear":
			return prediction.TrainFromFile(c.SamplesPath)
		default:
			return prediction.Heuristic{ICURatio: c.ICURatio, VentRatio: c.VentRatio}, nil
		}
	}
}
