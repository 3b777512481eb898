package neat

import (
	"log/slog"
)

// Stagnation manages the detection of stagnant species.
type Stagnation struct {
	Config *StagnationConfig
	Logger *slog.Logger
}

// NewStagnation creates a new stagnation manager.
func NewStagnation(config *StagnationConfig, logger *slog.Logger) *Stagnation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stagnation{Config: config, Logger: logger}
}

// StagnationInfo holds the results of the stagnation update for a single species.
type StagnationInfo struct {
	SpeciesID  int
	Species    *Species
	IsStagnant bool
	Protected  bool // the current best species; never stagnant
}

// Update records each species' best member fitness for this generation and
// reports which species have gone MaxStagnation generations without raising
// their BestFitnessEver. The species holding the best current fitness is
// protected. Results follow the species set order.
func (s *Stagnation) Update(speciesSet *SpeciesSet, generation int) []StagnationInfo {
	if len(speciesSet.Species) == 0 {
		return nil
	}

	var protected *Species
	for _, sp := range speciesSet.Species {
		sp.Fitness = MaxFloat(sp.GetFitnesses())
		if sp.Fitness > sp.BestFitnessEver {
			sp.BestFitnessEver = sp.Fitness
			sp.LastImproved = generation
			sp.GenerationsSinceImprovement = 0
		} else {
			sp.GenerationsSinceImprovement++
		}
		if protected == nil || sp.Fitness > protected.Fitness {
			protected = sp
		}
	}

	result := make([]StagnationInfo, 0, len(speciesSet.Species))
	for _, sp := range speciesSet.Species {
		info := StagnationInfo{
			SpeciesID: sp.ID,
			Species:   sp,
			Protected: sp == protected,
		}
		if sp.GenerationsSinceImprovement >= s.Config.MaxStagnation {
			if info.Protected {
				s.Logger.Debug("stagnant species spared as current best",
					"species", sp.ID, "fitness", sp.Fitness, "stagnant_for", sp.GenerationsSinceImprovement)
			} else {
				info.IsStagnant = true
			}
		}
		result = append(result, info)
	}
	return result
}
