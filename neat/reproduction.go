package neat

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Reproduction handles the creation of new genomes, either from scratch or through crossover and mutation.
type Reproduction struct {
	Config     *Config
	Stagnation *Stagnation
	Logger     *slog.Logger
}

// ReproductionResult is the outcome of one reproduction pass.
type ReproductionResult struct {
	Genomes      []*Genome // elites first within each species, species in id order, reseeds last
	NextGenomeID int
	Spawn        map[int]int // species id -> offspring allocated
	Extinct      []int       // species removed for stagnation
	Reseeded     int
	Degenerate   bool // the target size could only be reached by reseeding
}

// NewReproduction creates a new reproduction manager.
func NewReproduction(config *Config, logger *slog.Logger) *Reproduction {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reproduction{
		Config:     config,
		Stagnation: NewStagnation(&config.Stagnation, logger),
		Logger:     logger,
	}
}

// CreateNewPopulation creates popSize minimal genomes with ids starting at firstID.
func (r *Reproduction) CreateNewPopulation(rng *rand.Rand, reg *InnovationRegistry, firstID, popSize int) []*Genome {
	genomes := make([]*Genome, 0, popSize)
	for i := 0; i < popSize; i++ {
		genomes = append(genomes, NewMinimalGenome(firstID+i, &r.Config.Genome, reg, rng))
	}
	return genomes
}

// Reproduce creates the next generation from a speciated species set whose
// members carry fitness and adjusted fitness.
//
// Stagnant species are removed first. Every surviving species receives
// offspring in proportion to its mean adjusted fitness and breeds them from its
// own random source, seeded from rng in species order, so the result does not
// depend on ReproductionWorkers. New genomes are numbered from nextGenomeID
// after all species have bred. Any shortfall is filled with minimal genomes.
func (r *Reproduction) Reproduce(ctx context.Context, rng *rand.Rand, speciesSet *SpeciesSet, reg *InnovationRegistry, generation, nextGenomeID int) (*ReproductionResult, error) {
	popSize := r.Config.Neat.PopSize
	result := &ReproductionResult{Spawn: make(map[int]int)}

	// --- Stagnation ---
	for _, info := range r.Stagnation.Update(speciesSet, generation) {
		if info.IsStagnant {
			r.Logger.Info("species extinct due to stagnation",
				"species", info.SpeciesID, "generation", generation,
				"best_fitness_ever", info.Species.BestFitnessEver)
			result.Extinct = append(result.Extinct, info.SpeciesID)
			speciesSet.Remove(info.SpeciesID)
		}
	}

	reg.BeginGeneration(generation + 1)

	// --- Spawn amounts ---
	survivors := speciesSet.Species
	var spawn []int
	if len(survivors) > 0 {
		fitnesses := make([]float64, len(survivors))
		best := 0
		for i, sp := range survivors {
			fitnesses[i] = sp.AdjustedFitness
			if sp.Fitness > survivors[best].Fitness {
				best = i
			}
		}
		spawn = computeSpawnAmounts(fitnesses, popSize, best)
	}

	// --- Breeding ---
	seeds := make([]int64, len(survivors))
	for i := range seeds {
		seeds[i] = rng.Int63()
	}
	elites := make([][]*Genome, len(survivors))
	children := make([][]*Genome, len(survivors))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.Config.Neat.ReproductionWorkers)
	for i, sp := range survivors {
		i, sp := i, sp
		result.Spawn[sp.ID] = spawn[i]
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			local := rand.New(rand.NewSource(seeds[i]))
			elites[i], children[i] = r.breed(local, sp, spawn[i], reg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// --- Assemble ---
	result.Genomes = make([]*Genome, 0, popSize)
	for i := range survivors {
		result.Genomes = append(result.Genomes, elites[i]...)
		for _, child := range children[i] {
			child.ID = nextGenomeID
			nextGenomeID++
			result.Genomes = append(result.Genomes, child)
		}
	}

	if shortfall := popSize - len(result.Genomes); shortfall > 0 {
		r.Logger.Warn("population collapsed, reseeding with minimal genomes",
			"generation", generation, "surviving_species", len(survivors), "reseeded", shortfall)
		result.Genomes = append(result.Genomes, r.CreateNewPopulation(rng, reg, nextGenomeID, shortfall)...)
		nextGenomeID += shortfall
		result.Reseeded = shortfall
		result.Degenerate = true
	}

	result.NextGenomeID = nextGenomeID
	return result, nil
}

// breed produces spawn genomes for one species: unchanged elite copies that
// keep their ids, then mutated children whose ids are assigned by the caller.
func (r *Reproduction) breed(rng *rand.Rand, sp *Species, spawn int, reg *InnovationRegistry) (elites, children []*Genome) {
	if spawn <= 0 || len(sp.Members) == 0 {
		return nil, nil
	}

	// Sort old members by fitness (descending) for elitism and parent selection.
	members := make([]*Genome, len(sp.Members))
	copy(members, sp.Members)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Fitness != members[j].Fitness {
			return members[i].Fitness > members[j].Fitness
		}
		return members[i].ID < members[j].ID
	})

	numElites := r.Config.Reproduction.Elitism
	if numElites > spawn {
		numElites = spawn
	}
	if numElites > len(members) {
		numElites = len(members)
	}
	for _, e := range members[:numElites] {
		elites = append(elites, e.Copy())
	}

	for k := numElites; k < spawn; k++ {
		var child *Genome
		if len(members) == 1 {
			child = members[0].Copy()
		} else {
			p1 := r.selectParent(rng, members)
			p2 := r.selectParent(rng, members)
			if rng.Float64() < r.Config.Reproduction.CrossoverRate {
				child = Crossover(rng, 0, p1, p2, r.Config.Reproduction.MatchingGeneFitterBias)
			} else if p2.Fitness > p1.Fitness {
				child = p2.Copy()
			} else {
				child = p1.Copy()
			}
		}
		child.ID = 0
		child.Fitness = 0
		child.AdjustedFitness = 0
		child.SpeciesID = 0
		child.Mutate(rng, reg)
		children = append(children, child)
	}
	return elites, children
}

// selectParent picks one member by the configured selection policy.
func (r *Reproduction) selectParent(rng *rand.Rand, members []*Genome) *Genome {
	if strings.EqualFold(r.Config.Reproduction.Selection, "tournament") {
		return tournamentSelect(rng, members, r.Config.Reproduction.TournamentSize)
	}
	return rouletteSelect(rng, members)
}

// rouletteSelect samples a member with probability proportional to its
// fitness. Negative fitness values are shifted up so the lowest is zero; an
// all-zero total degrades to uniform sampling.
func rouletteSelect(rng *rand.Rand, members []*Genome) *Genome {
	shift := 0.0
	for _, g := range members {
		if g.Fitness < -shift {
			shift = -g.Fitness
		}
	}
	total := 0.0
	for _, g := range members {
		total += g.Fitness + shift
	}
	if total <= 0 || !IsFinite(total) {
		return members[rng.Intn(len(members))]
	}

	pick := rng.Float64() * total
	for _, g := range members {
		pick -= g.Fitness + shift
		if pick < 0 {
			return g
		}
	}
	return members[len(members)-1]
}

// tournamentSelect draws size members with replacement and returns the fittest.
func tournamentSelect(rng *rand.Rand, members []*Genome, size int) *Genome {
	var best *Genome
	for i := 0; i < size; i++ {
		g := members[rng.Intn(len(members))]
		if best == nil || g.Fitness > best.Fitness {
			best = g
		}
	}
	return best
}

// computeSpawnAmounts splits popSize offspring between species in proportion to
// their mean adjusted fitness. Negative fitness values are shifted up so the
// lowest is zero; an all-zero total splits evenly. Shares are rounded by
// largest remainder, ties going to the species at index best and then to the
// lower index, so the result sums to popSize.
func computeSpawnAmounts(adjustedFitnesses []float64, popSize, best int) []int {
	spawnAmounts := make([]int, len(adjustedFitnesses))
	if len(adjustedFitnesses) == 0 {
		return spawnAmounts
	}

	shift := 0.0
	if m := MinFloat(adjustedFitnesses); m < 0 {
		shift = -m
	}
	total := 0.0
	for _, af := range adjustedFitnesses {
		total += af + shift
	}

	remainders := make([]float64, len(adjustedFitnesses))
	assigned := 0
	for i, af := range adjustedFitnesses {
		var share float64
		if total > 0 && IsFinite(total) {
			share = (af + shift) / total * float64(popSize)
		} else {
			share = float64(popSize) / float64(len(adjustedFitnesses))
		}
		spawnAmounts[i] = int(math.Floor(share))
		remainders[i] = share - math.Floor(share)
		assigned += spawnAmounts[i]
	}

	order := make([]int, len(adjustedFitnesses))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if remainders[i] != remainders[j] {
			return remainders[i] > remainders[j]
		}
		return i == best && j != best
	})
	for k := 0; assigned < popSize; k++ {
		spawnAmounts[order[k%len(order)]]++
		assigned++
	}
	return spawnAmounts
}
