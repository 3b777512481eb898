package neat

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// Population holds the state of the NEAT evolutionary process for exactly one
// generation.
type Population struct {
	RunID        uuid.UUID
	Config       *Config
	Generation   int
	Genomes      []*Genome // ordered by id
	SpeciesSet   *SpeciesSet
	Registry     *InnovationRegistry
	NextGenomeID int
	BestGenome   *Genome // owned copy of the best genome found so far

	Logger *slog.Logger
}

// GenerationSeed derives the random seed used for one generation of a run, so
// that a run resumed from a checkpoint draws the same numbers it would have
// drawn without interruption.
func GenerationSeed(seed int64, generation int) int64 {
	// splitmix64 finalizer
	z := uint64(seed) + uint64(generation+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

// NewPopulation validates the configuration and creates generation 0: PopSize
// minimal genomes with ids 1..PopSize.
func NewPopulation(config *Config, logger *slog.Logger) (*Population, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	rng := rand.New(rand.NewSource(GenerationSeed(config.Neat.Seed, -1)))
	registry := NewInnovationRegistry(config.Genome.FirstHiddenID())
	registry.BeginGeneration(0)

	reproduction := NewReproduction(config, logger)
	genomes := reproduction.CreateNewPopulation(rng, registry, 1, config.Neat.PopSize)

	p := &Population{
		RunID:        uuid.New(),
		Config:       config,
		Genomes:      genomes,
		SpeciesSet:   NewSpeciesSet(config, logger),
		Registry:     registry,
		NextGenomeID: config.Neat.PopSize + 1,
		Logger:       logger,
	}
	return p, nil
}

// Clone returns a deep copy of the population. Species members of the clone
// point at the clone's genomes.
func (p *Population) Clone() *Population {
	c := &Population{
		RunID:        p.RunID,
		Config:       p.Config,
		Generation:   p.Generation,
		Genomes:      make([]*Genome, len(p.Genomes)),
		Registry:     p.Registry.Clone(),
		NextGenomeID: p.NextGenomeID,
		Logger:       p.Logger,
	}
	byID := make(map[int]*Genome, len(p.Genomes))
	for i, g := range p.Genomes {
		c.Genomes[i] = g.Copy()
		byID[g.ID] = c.Genomes[i]
	}
	if p.BestGenome != nil {
		c.BestGenome = p.BestGenome.Copy()
	}

	ss := *p.SpeciesSet
	ss.Species = make([]*Species, len(p.SpeciesSet.Species))
	for i, s := range p.SpeciesSet.Species {
		cs := *s
		cs.Representative = s.Representative.Copy()
		cs.Members = make([]*Genome, 0, len(s.Members))
		for _, m := range s.Members {
			if g, ok := byID[m.ID]; ok {
				cs.Members = append(cs.Members, g)
			}
		}
		ss.Species[i] = &cs
	}
	c.SpeciesSet = &ss
	return c
}

// Genome returns the genome with the given id.
func (p *Population) Genome(id int) (*Genome, bool) {
	i := sort.Search(len(p.Genomes), func(i int) bool { return p.Genomes[i].ID >= id })
	if i < len(p.Genomes) && p.Genomes[i].ID == id {
		return p.Genomes[i], true
	}
	return nil, false
}

// Best returns the fittest evaluated genome of the current generation,
// preferring the lower id on ties, or nil if nothing has been evaluated.
func (p *Population) Best() *Genome {
	var best *Genome
	for _, g := range p.Genomes {
		if !g.Evaluated {
			continue
		}
		if best == nil || g.Fitness > best.Fitness {
			best = g
		}
	}
	return best
}

// UpdateBest records the current generation's best genome if it beats the
// best found so far and reports whether it did.
func (p *Population) UpdateBest() bool {
	current := p.Best()
	if current == nil {
		return false
	}
	if p.BestGenome == nil || current.Fitness > p.BestGenome.Fitness {
		p.BestGenome = current.Copy()
		return true
	}
	return false
}

// Unevaluated returns the genomes that have no fitness for this generation.
func (p *Population) Unevaluated() []*Genome {
	var pending []*Genome
	for _, g := range p.Genomes {
		if !g.Evaluated {
			pending = append(pending, g)
		}
	}
	return pending
}

// Speciate assigns all genomes to species and computes adjusted fitness.
// Every genome must have been evaluated.
func (p *Population) Speciate() error {
	if pending := p.Unevaluated(); len(pending) > 0 {
		return fmt.Errorf("generation %d: %d genomes have not been evaluated", p.Generation, len(pending))
	}
	p.SpeciesSet.Speciate(p.Genomes, p.Generation)
	p.SpeciesSet.AdjustFitness()
	return nil
}

// Reproduce replaces the genomes with the next generation and advances the
// generation counter. The population must have been speciated.
func (p *Population) Reproduce(ctx context.Context, rng *rand.Rand, reproduction *Reproduction) (*ReproductionResult, error) {
	result, err := reproduction.Reproduce(ctx, rng, p.SpeciesSet, p.Registry, p.Generation, p.NextGenomeID)
	if err != nil {
		return nil, fmt.Errorf("reproduction failed in generation %d: %w", p.Generation, err)
	}

	genomes := make([]*Genome, len(result.Genomes))
	copy(genomes, result.Genomes)
	sort.Slice(genomes, func(i, j int) bool { return genomes[i].ID < genomes[j].ID })

	p.Genomes = genomes
	p.NextGenomeID = result.NextGenomeID
	p.Generation++

	// Species keep the members that carried over as elites until the next
	// Speciate rebuilds membership.
	for _, s := range p.SpeciesSet.Species {
		var kept []*Genome
		for _, m := range s.Members {
			if g, ok := p.Genome(m.ID); ok {
				kept = append(kept, g)
			}
		}
		s.Members = kept
	}
	return result, nil
}
