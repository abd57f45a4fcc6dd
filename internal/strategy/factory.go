package strategy

import "fmt"

// Config selects and parameterizes a strategy variant from configuration.
type Config struct {
	Variant    string           `yaml:"variant"` // oscillator|priority|model
	Oscillator OscillatorConfig `yaml:"oscillator"`
	Priority   PriorityConfig   `yaml:"priority"`
	Model      ModelConfig      `yaml:"model"`
}

// DefaultConfig returns an oscillator setup with stock thresholds.
func DefaultConfig() Config {
	return Config{
		Variant:    "oscillator",
		Oscillator: DefaultOscillatorConfig(),
		Priority:   DefaultPriorityConfig(),
		Model:      DefaultModelConfig(),
	}
}

// New builds the configured strategy variant. The scorer is only required
// for the model variant; it may be nil otherwise.
func New(cfg Config, scorer Scorer) (Strategy, error) {
	switch cfg.Variant {
	case "", "oscillator":
		return NewOscillator(cfg.Oscillator), nil
	case "priority":
		return NewPriority(cfg.Priority), nil
	case "model":
		if scorer == nil {
			return nil, fmt.Errorf("strategy: model variant requires a scorer")
		}
		return NewModel(cfg.Model, scorer), nil
	default:
		return nil, fmt.Errorf("strategy: unknown variant %q", cfg.Variant)
	}
}
