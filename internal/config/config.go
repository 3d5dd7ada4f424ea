package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the run configuration for the forecasting pipeline.
type Config struct {
	Horizon       int     `yaml:"horizon"`        // forecast days
	HighThreshold float64 `yaml:"high_threshold"` // sorties at or above this count a high-activity day
	MinSamples    int     `yaml:"min_samples"`    // minimum usable rows in the source series
	WindowSize    int     `yaml:"window_size"`    // trailing window seeded into the recursive forecaster
	LowerQuantile float64 `yaml:"lower_quantile"`
	UpperQuantile float64 `yaml:"upper_quantile"`
	DecayLambda   float64 `yaml:"decay_lambda"` // recency weight decay per day
	BandGrowth    float64 `yaml:"band_growth"`  // per-step geometric band widening
	Engine        string  `yaml:"engine"`       // gbrt | linear
	Seed          int64   `yaml:"seed"`

	Validation ValidationConfig `yaml:"validation"`
	Boost      BoostConfig      `yaml:"recency_boost"`
	GBRT       GBRTConfig       `yaml:"gbrt"`

	// Free-text matching for the political event table and the preferred
	// weather stations for the band adjustment lookup.
	EventTextColumn   string   `yaml:"event_text_column"`
	StatementKeywords []string `yaml:"statement_keywords"`
	WeatherCities     []string `yaml:"weather_cities"`
}

// ValidationConfig controls the walk-forward validator.
type ValidationConfig struct {
	Folds         int `yaml:"folds"`
	MinTrainRows  int `yaml:"min_train_rows"`
	EmbargoDays   int `yaml:"embargo_days"` // 0 = derive from the feature schema
	HorizonScored int `yaml:"horizon_scored"`
}

// BoostConfig replicates the most recent weeks of training rows before the
// final model fits. Factor 0 or 1 disables boosting.
type BoostConfig struct {
	Weeks  int `yaml:"weeks"`
	Factor int `yaml:"factor"`
}

// GBRTConfig holds gradient boosting hyperparameters.
type GBRTConfig struct {
	Iterations   int     `yaml:"iterations"`
	Depth        int     `yaml:"depth"`
	LearningRate float64 `yaml:"learning_rate"`
	MinLeaf      int     `yaml:"min_leaf"`
	Subsample    float64 `yaml:"subsample"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Horizon:       7,
		HighThreshold: 60,
		MinSamples:    60,
		WindowSize:    60,
		LowerQuantile: 0.05,
		UpperQuantile: 0.95,
		DecayLambda:   0.002,
		BandGrowth:    0.1,
		Engine:        "gbrt",
		Seed:          42,
		Validation: ValidationConfig{
			Folds:         5,
			MinTrainRows:  60,
			HorizonScored: 7,
		},
		Boost: BoostConfig{Weeks: 4, Factor: 1},
		GBRT: GBRTConfig{
			Iterations:   400,
			Depth:        6,
			LearningRate: 0.03,
			MinLeaf:      3,
			Subsample:    0.9,
		},
		EventTextColumn:   "Political_statement",
		StatementKeywords: []string{"中共", "中國", "中方", "國台辦"},
		WeatherCities:     []string{"福州", "廈門", "Fuzhou", "Xiamen"},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Horizon < 1 {
		return fmt.Errorf("horizon must be at least 1, got %d", c.Horizon)
	}
	if c.LowerQuantile <= 0 || c.UpperQuantile >= 1 || c.LowerQuantile >= c.UpperQuantile {
		return fmt.Errorf("quantiles must satisfy 0 < lower < upper < 1, got %.3f/%.3f",
			c.LowerQuantile, c.UpperQuantile)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size must be positive, got %d", c.WindowSize)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("min_samples must be positive, got %d", c.MinSamples)
	}
	if c.BandGrowth < 0 {
		return fmt.Errorf("band_growth must be non-negative, got %.3f", c.BandGrowth)
	}
	if c.Validation.Folds < 1 {
		return fmt.Errorf("validation folds must be positive, got %d", c.Validation.Folds)
	}
	return nil
}
