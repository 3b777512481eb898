package evolve

import (
	"fmt"
	"sync"
	"time"

	"github.com/gosuri/uitable"

	"github.com/baldhumanity/neat-evo/neat"
)

// SpeciesStats summarizes one species of a generation.
type SpeciesStats struct {
	ID                          int
	Size                        int
	BestFitness                 float64
	AdjustedFitness             float64 // mean adjusted fitness of the members
	GenerationsSinceImprovement int
	Offspring                   int
}

// GenerationStats is the report produced for every completed generation.
type GenerationStats struct {
	Generation    int
	BestFitness   float64
	BestGenomeID  int
	MeanFitness   float64
	MedianFitness float64
	StdevFitness  float64
	Evaluated     int // genomes evaluated in this generation; elites carry their fitness over
	Failures      int
	Species       []SpeciesStats
	Extinct       []int // species removed for stagnation
	Reseeded      int
	Degenerate    bool // warning: the population had to be reseeded
	Solved        bool // the fitness target was reached
	Duration      time.Duration
}

func newGenerationStats(pop *neat.Population) GenerationStats {
	fitnesses := make([]float64, len(pop.Genomes))
	for i, g := range pop.Genomes {
		fitnesses[i] = g.Fitness
	}
	stats := GenerationStats{
		Generation:    pop.Generation,
		MeanFitness:   neat.Mean(fitnesses),
		MedianFitness: neat.Median(fitnesses),
		StdevFitness:  neat.Stdev(fitnesses),
	}
	if best := pop.Best(); best != nil {
		stats.BestFitness = best.Fitness
		stats.BestGenomeID = best.ID
	}
	return stats
}

func (gs *GenerationStats) addSpecies(ss *neat.SpeciesSet) {
	gs.Species = make([]SpeciesStats, 0, len(ss.Species))
	for _, s := range ss.Species {
		gs.Species = append(gs.Species, SpeciesStats{
			ID:              s.ID,
			Size:            len(s.Members),
			BestFitness:     neat.MaxFloat(s.GetFitnesses()),
			AdjustedFitness: s.AdjustedFitness,
		})
	}
}

func (gs *GenerationStats) addReproduction(ss *neat.SpeciesSet, res *neat.ReproductionResult) {
	for i := range gs.Species {
		sp := &gs.Species[i]
		sp.Offspring = res.Spawn[sp.ID]
		if s, ok := ss.Get(sp.ID); ok {
			sp.GenerationsSinceImprovement = s.GenerationsSinceImprovement
		}
	}
	gs.Extinct = res.Extinct
	gs.Reseeded = res.Reseeded
	gs.Degenerate = res.Degenerate
}

// History is the append-only list of generation reports of a run. It is safe
// for concurrent use.
type History struct {
	mu    sync.RWMutex
	stats []GenerationStats
}

// Add appends a generation report.
func (h *History) Add(gs GenerationStats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = append(h.stats, gs)
}

// All returns a copy of the recorded reports.
func (h *History) All() []GenerationStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]GenerationStats, len(h.stats))
	copy(out, h.stats)
	return out
}

// Last returns the most recent report.
func (h *History) Last() (GenerationStats, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.stats) == 0 {
		return GenerationStats{}, false
	}
	return h.stats[len(h.stats)-1], true
}

// Len returns the number of recorded generations.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.stats)
}

// Table renders one row per generation.
func (h *History) Table() string {
	table := uitable.New()
	table.MaxColWidth = 40
	table.Wrap = false
	table.AddRow("Generation", "Best", "BestGenome", "Mean", "Median", "Stdev", "Species", "Failures", "Extinct", "Note")
	for _, gs := range h.All() {
		note := ""
		switch {
		case gs.Solved:
			note = "solved"
		case gs.Degenerate:
			note = fmt.Sprintf("reseeded %d", gs.Reseeded)
		}
		table.AddRow(gs.Generation,
			fmt.Sprintf("%.4f", gs.BestFitness), gs.BestGenomeID,
			fmt.Sprintf("%.4f", gs.MeanFitness), fmt.Sprintf("%.4f", gs.MedianFitness),
			fmt.Sprintf("%.4f", gs.StdevFitness),
			len(gs.Species), gs.Failures, len(gs.Extinct), note)
	}
	return table.String()
}

// SpeciesTable renders one row per species of a generation report.
func (gs GenerationStats) SpeciesTable() string {
	table := uitable.New()
	table.MaxColWidth = 40
	table.Wrap = false
	table.AddRow("Species", "Size", "TopFitness", "AvgFitness.Adj", "Stagnancy", "Offspring")
	for _, s := range gs.Species {
		table.AddRow(s.ID, s.Size,
			fmt.Sprintf("%.4f", s.BestFitness), fmt.Sprintf("%.4f", s.AdjustedFitness),
			s.GenerationsSinceImprovement, s.Offspring)
	}
	return table.String()
}
