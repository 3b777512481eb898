package neat

import (
	"log/slog"
	"math"
)

// Species represents a group of genetically similar genomes.
type Species struct {
	ID           int // Unique identifier for the species.
	Created      int // Generation number when the species was created.
	LastImproved int // Last generation where BestFitnessEver increased.

	// Representative is an owned copy, never one of the live members.
	Representative *Genome
	Members        []*Genome

	Fitness                     float64 // best member fitness in the current generation
	AdjustedFitness             float64 // mean adjusted fitness of the members
	BestFitnessEver             float64
	GenerationsSinceImprovement int
}

// NewSpecies creates a new species represented by a copy of the given genome.
func NewSpecies(id, generation int, representative *Genome) *Species {
	return &Species{
		ID:              id,
		Created:         generation,
		LastImproved:    generation,
		Representative:  representative.Copy(),
		BestFitnessEver: math.Inf(-1),
	}
}

// GetFitnesses returns a slice containing the fitness values of all members.
func (s *Species) GetFitnesses() []float64 {
	fitnesses := make([]float64, 0, len(s.Members))
	for _, g := range s.Members {
		fitnesses = append(fitnesses, g.Fitness)
	}
	return fitnesses
}

// Best returns the fittest member, preferring the lower genome id on ties.
func (s *Species) Best() *Genome {
	var best *Genome
	for _, g := range s.Members {
		if best == nil || g.Fitness > best.Fitness || (g.Fitness == best.Fitness && g.ID < best.ID) {
			best = g
		}
	}
	return best
}

// --------------------------- SpeciesSet ---------------------------

// SpeciesSet manages the collection of species within a population. Species
// are kept in ascending id order, which is also the order genomes are
// compared against them.
type SpeciesSet struct {
	Species []*Species
	NextID  int // Counter for assigning new species ids (starts at 1)

	Config       *SpeciesSetConfig
	GenomeConfig *GenomeConfig
	Logger       *slog.Logger
}

// NewSpeciesSet creates a new species set manager.
func NewSpeciesSet(config *Config, logger *slog.Logger) *SpeciesSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeciesSet{
		NextID:       1,
		Config:       &config.SpeciesSet,
		GenomeConfig: &config.Genome,
		Logger:       logger,
	}
}

// Speciate assigns every genome to exactly one species.
//
// Each genome joins the first species, by ascending id, whose representative
// lies within the compatibility threshold; otherwise it founds a new species.
// Representatives stay fixed for the whole pass. Species left without members
// are dropped. Afterwards every surviving species takes the member closest to
// its old representative as the representative for the next pass.
func (ss *SpeciesSet) Speciate(genomes []*Genome, generation int) {
	threshold := ss.Config.CompatibilityThreshold

	for _, s := range ss.Species {
		s.Members = nil
	}

	for _, g := range genomes {
		var home *Species
		for _, s := range ss.Species {
			if Distance(s.Representative, g, ss.GenomeConfig) < threshold {
				home = s
				break
			}
		}
		if home == nil {
			home = NewSpecies(ss.NextID, generation, g)
			ss.NextID++
			ss.Species = append(ss.Species, home)
			ss.Logger.Debug("created species", "species", home.ID, "generation", generation, "founder", g.ID)
		}
		home.Members = append(home.Members, g)
		g.SpeciesID = home.ID
	}

	alive := ss.Species[:0]
	for _, s := range ss.Species {
		if len(s.Members) == 0 {
			ss.Logger.Debug("species emptied", "species", s.ID, "generation", generation)
			continue
		}
		alive = append(alive, s)
	}
	for i := len(alive); i < len(ss.Species); i++ {
		ss.Species[i] = nil
	}
	ss.Species = alive

	for _, s := range ss.Species {
		var closest *Genome
		minDist := math.Inf(1)
		for _, g := range s.Members {
			if d := Distance(s.Representative, g, ss.GenomeConfig); d < minDist {
				minDist = d
				closest = g
			}
		}
		s.Representative = closest.Copy()
	}
}

// AdjustFitness sets each genome's adjusted fitness: raw fitness divided by
// the size of its species when sharing is enabled, raw fitness otherwise.
// It also records each species' mean adjusted fitness.
func (ss *SpeciesSet) AdjustFitness() {
	for _, s := range ss.Species {
		size := float64(len(s.Members))
		total := 0.0
		for _, g := range s.Members {
			if ss.Config.FitnessSharing {
				g.AdjustedFitness = g.Fitness / size
			} else {
				g.AdjustedFitness = g.Fitness
			}
			total += g.AdjustedFitness
		}
		s.AdjustedFitness = total / size
	}
}

// Get returns the species with the given id.
func (ss *SpeciesSet) Get(id int) (*Species, bool) {
	for _, s := range ss.Species {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Remove drops the species with the given id.
func (ss *SpeciesSet) Remove(id int) {
	for i, s := range ss.Species {
		if s.ID == id {
			ss.Species = append(ss.Species[:i], ss.Species[i+1:]...)
			return
		}
	}
}
