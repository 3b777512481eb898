package neat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Config stores the configuration parameters for the NEAT algorithm.
type Config struct {
	Neat         NeatConfig         `yaml:"neat"`
	Genome       GenomeConfig       `yaml:"genome"`
	Reproduction ReproductionConfig `yaml:"reproduction"`
	SpeciesSet   SpeciesSetConfig   `yaml:"species_set"`
	Stagnation   StagnationConfig   `yaml:"stagnation"`
}

// NeatConfig holds parameters of the generational loop itself.
type NeatConfig struct {
	PopSize              int           `ini:"pop_size" yaml:"pop_size"`
	MaxGenerations       int           `ini:"max_generations" yaml:"max_generations"`
	FitnessThreshold     float64       `ini:"fitness_threshold" yaml:"fitness_threshold"`
	NoFitnessTermination bool          `ini:"no_fitness_termination" yaml:"no_fitness_termination"`
	FailureFitness       float64       `ini:"failure_fitness" yaml:"failure_fitness"` // assigned when an evaluation fails
	EvaluationTimeout    time.Duration `ini:"evaluation_timeout" yaml:"evaluation_timeout"`
	EvaluationWorkers    int           `ini:"evaluation_workers" yaml:"evaluation_workers"`
	ReproductionWorkers  int           `ini:"reproduction_workers" yaml:"reproduction_workers"`
	Seed                 int64         `ini:"seed" yaml:"seed"`
}

// GenomeConfig holds parameters for genome structure, mutation and phenotype evaluation.
type GenomeConfig struct {
	NumInputs  int `ini:"num_inputs" yaml:"num_inputs"`
	NumOutputs int `ini:"num_outputs" yaml:"num_outputs"`

	// c1, c2, c3 of the compatibility distance.
	CompatibilityExcessCoefficient   float64 `ini:"compatibility_excess_coefficient" yaml:"compatibility_excess_coefficient"`
	CompatibilityDisjointCoefficient float64 `ini:"compatibility_disjoint_coefficient" yaml:"compatibility_disjoint_coefficient"`
	CompatibilityWeightCoefficient   float64 `ini:"compatibility_weight_coefficient" yaml:"compatibility_weight_coefficient"`
	// Genomes with fewer genes than this are compared with N = 1. Zero disables it.
	CompatibilityNormalizeThreshold int `ini:"compatibility_normalize_threshold" yaml:"compatibility_normalize_threshold"`

	WeightPerturbProb  float64 `ini:"weight_perturb_prob" yaml:"weight_perturb_prob"`
	WeightResetProb    float64 `ini:"weight_reset_prob" yaml:"weight_reset_prob"`
	WeightPerturbPower float64 `ini:"weight_perturb_power" yaml:"weight_perturb_power"`
	WeightInitRange    float64 `ini:"weight_init_range" yaml:"weight_init_range"` // fresh weights are uniform in [-r, r]
	WeightMaxValue     float64 `ini:"weight_max_value" yaml:"weight_max_value"`

	ConnAddProb      float64 `ini:"conn_add_prob" yaml:"conn_add_prob"`
	ConnAddAttempts  int     `ini:"conn_add_attempts" yaml:"conn_add_attempts"`
	NodeAddProb      float64 `ini:"node_add_prob" yaml:"node_add_prob"`
	ToggleEnableProb float64 `ini:"toggle_enable_prob" yaml:"toggle_enable_prob"`

	Activation           string  `ini:"activation" yaml:"activation"`
	ActivationSteepness  float64 `ini:"activation_steepness" yaml:"activation_steepness"`
	RecurrentEnabled     bool    `ini:"recurrent_enabled" yaml:"recurrent_enabled"`
	RelaxationIterations int     `ini:"relaxation_iterations" yaml:"relaxation_iterations"`
	RecurrentMemory      bool    `ini:"recurrent_memory" yaml:"recurrent_memory"` // carry node values across Compute calls
}

// ReproductionConfig holds parameters related to reproduction.
type ReproductionConfig struct {
	Elitism        int     `ini:"elitism" yaml:"elitism"`
	CrossoverRate  float64 `ini:"crossover_rate" yaml:"crossover_rate"`
	Selection      string  `ini:"selection" yaml:"selection"` // "roulette" or "tournament"
	TournamentSize int     `ini:"tournament_size" yaml:"tournament_size"`
	// Probability that a matching gene comes from the fitter parent. Ties always use 0.5.
	MatchingGeneFitterBias float64 `ini:"matching_gene_fitter_bias" yaml:"matching_gene_fitter_bias"`
}

// SpeciesSetConfig holds parameters related to speciation.
type SpeciesSetConfig struct {
	CompatibilityThreshold float64 `ini:"compatibility_threshold" yaml:"compatibility_threshold"`
	FitnessSharing         bool    `ini:"fitness_sharing" yaml:"fitness_sharing"`
}

// StagnationConfig holds parameters related to species stagnation.
type StagnationConfig struct {
	MaxStagnation int `ini:"max_stagnation" yaml:"max_stagnation"`
}

// ConfigError reports a configuration value outside its valid range.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s %s", e.Field, e.Reason)
}

// DefaultConfig returns a complete configuration for a network with the given
// number of inputs and outputs.
func DefaultConfig(numInputs, numOutputs int) *Config {
	return &Config{
		Neat: NeatConfig{
			PopSize:             150,
			MaxGenerations:      300,
			FitnessThreshold:    0.95,
			FailureFitness:      0,
			EvaluationTimeout:   10 * time.Second,
			EvaluationWorkers:   4,
			ReproductionWorkers: 1,
			Seed:                1,
		},
		Genome: GenomeConfig{
			NumInputs:                        numInputs,
			NumOutputs:                       numOutputs,
			CompatibilityExcessCoefficient:   1.0,
			CompatibilityDisjointCoefficient: 1.0,
			CompatibilityWeightCoefficient:   0.4,
			WeightPerturbProb:                0.8,
			WeightResetProb:                  0.1,
			WeightPerturbPower:               0.5,
			WeightInitRange:                  1.0,
			WeightMaxValue:                   30.0,
			ConnAddProb:                      0.1,
			ConnAddAttempts:                  20,
			NodeAddProb:                      0.03,
			ToggleEnableProb:                 0.01,
			Activation:                       "sigmoid",
			ActivationSteepness:              4.9,
			RelaxationIterations:             5,
		},
		Reproduction: ReproductionConfig{
			Elitism:                1,
			CrossoverRate:          0.75,
			Selection:              "roulette",
			TournamentSize:         3,
			MatchingGeneFitterBias: 0.5,
		},
		SpeciesSet: SpeciesSetConfig{
			CompatibilityThreshold: 3.0,
			FitnessSharing:         true,
		},
		Stagnation: StagnationConfig{
			MaxStagnation: 15,
		},
	}
}

// LoadConfig loads configuration parameters from an INI file, or from a YAML
// file when the extension is .yaml or .yml. Keys absent from the file keep
// their DefaultConfig values.
func LoadConfig(filePath string) (*Config, error) {
	config := DefaultConfig(0, 0)

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", filePath, err)
		}
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("failed to decode yaml config '%s': %w", filePath, err)
		}
	default:
		if err := loadIni(filePath, config); err != nil {
			return nil, err
		}
	}

	config.Genome.Activation = cleanIniString(config.Genome.Activation)
	config.Reproduction.Selection = cleanIniString(config.Reproduction.Selection)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadIni(filePath string, config *Config) error {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	sections := []struct {
		name   string
		target interface{}
	}{
		{"NEAT", &config.Neat},
		{"DefaultGenome", &config.Genome},
		{"DefaultReproduction", &config.Reproduction},
		{"DefaultSpeciesSet", &config.SpeciesSet},
		{"DefaultStagnation", &config.Stagnation},
	}
	for _, s := range sections {
		if !cfg.HasSection(s.name) {
			continue
		}
		if err := cfg.Section(s.name).MapTo(s.target); err != nil {
			return fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}
	return nil
}

// Validate checks every parameter against its valid range.
func (c *Config) Validate() error {
	probabilities := []struct {
		field string
		value float64
	}{
		{"weight_perturb_prob", c.Genome.WeightPerturbProb},
		{"weight_reset_prob", c.Genome.WeightResetProb},
		{"conn_add_prob", c.Genome.ConnAddProb},
		{"node_add_prob", c.Genome.NodeAddProb},
		{"toggle_enable_prob", c.Genome.ToggleEnableProb},
		{"crossover_rate", c.Reproduction.CrossoverRate},
		{"matching_gene_fitter_bias", c.Reproduction.MatchingGeneFitterBias},
	}
	for _, p := range probabilities {
		if p.value < 0 || p.value > 1 {
			return &ConfigError{Field: p.field, Reason: "must be between 0 and 1"}
		}
	}

	switch {
	case c.Neat.PopSize <= 0:
		return &ConfigError{Field: "pop_size", Reason: "must be positive"}
	case c.Neat.MaxGenerations <= 0:
		return &ConfigError{Field: "max_generations", Reason: "must be positive"}
	case c.Neat.EvaluationTimeout < 0:
		return &ConfigError{Field: "evaluation_timeout", Reason: "cannot be negative"}
	case c.Neat.EvaluationWorkers <= 0:
		return &ConfigError{Field: "evaluation_workers", Reason: "must be positive"}
	case c.Neat.ReproductionWorkers <= 0:
		return &ConfigError{Field: "reproduction_workers", Reason: "must be positive"}
	case c.Genome.NumInputs <= 0:
		return &ConfigError{Field: "num_inputs", Reason: "must be positive"}
	case c.Genome.NumOutputs <= 0:
		return &ConfigError{Field: "num_outputs", Reason: "must be positive"}
	case c.Genome.CompatibilityExcessCoefficient < 0:
		return &ConfigError{Field: "compatibility_excess_coefficient", Reason: "cannot be negative"}
	case c.Genome.CompatibilityDisjointCoefficient < 0:
		return &ConfigError{Field: "compatibility_disjoint_coefficient", Reason: "cannot be negative"}
	case c.Genome.CompatibilityWeightCoefficient < 0:
		return &ConfigError{Field: "compatibility_weight_coefficient", Reason: "cannot be negative"}
	case c.Genome.CompatibilityNormalizeThreshold < 0:
		return &ConfigError{Field: "compatibility_normalize_threshold", Reason: "cannot be negative"}
	case c.Genome.WeightPerturbPower < 0:
		return &ConfigError{Field: "weight_perturb_power", Reason: "cannot be negative"}
	case c.Genome.WeightInitRange <= 0:
		return &ConfigError{Field: "weight_init_range", Reason: "must be positive"}
	case c.Genome.WeightMaxValue < c.Genome.WeightInitRange:
		return &ConfigError{Field: "weight_max_value", Reason: "cannot be less than weight_init_range"}
	case c.Genome.ConnAddAttempts <= 0:
		return &ConfigError{Field: "conn_add_attempts", Reason: "must be positive"}
	case c.Genome.ActivationSteepness <= 0:
		return &ConfigError{Field: "activation_steepness", Reason: "must be positive"}
	case c.Genome.RelaxationIterations <= 0:
		return &ConfigError{Field: "relaxation_iterations", Reason: "must be positive"}
	case c.Reproduction.Elitism < 0:
		return &ConfigError{Field: "elitism", Reason: "cannot be negative"}
	case c.SpeciesSet.CompatibilityThreshold <= 0:
		return &ConfigError{Field: "compatibility_threshold", Reason: "must be positive"}
	case c.Stagnation.MaxStagnation <= 0:
		return &ConfigError{Field: "max_stagnation", Reason: "must be positive"}
	}

	if _, err := GetActivation(c.Genome.Activation); err != nil {
		return &ConfigError{Field: "activation", Reason: fmt.Sprintf("'%s' is not a known activation function", c.Genome.Activation)}
	}
	switch strings.ToLower(c.Reproduction.Selection) {
	case "roulette":
	case "tournament":
		if c.Reproduction.TournamentSize <= 0 {
			return &ConfigError{Field: "tournament_size", Reason: "must be positive"}
		}
	default:
		return &ConfigError{Field: "selection", Reason: fmt.Sprintf("'%s' must be one of 'roulette', 'tournament'", c.Reproduction.Selection)}
	}
	return nil
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
