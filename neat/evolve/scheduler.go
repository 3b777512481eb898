// Package evolve drives the NEAT generational loop: evaluation, speciation,
// reproduction and reporting.
package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/baldhumanity/neat-evo/neat"
	"github.com/baldhumanity/neat-evo/neat/nn"
)

// CheckpointSink receives a checkpoint after every published generation.
type CheckpointSink interface {
	Save(ctx context.Context, cp *neat.Checkpoint) error
}

// Reporter is called with the report of every published generation.
type Reporter func(GenerationStats)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithCheckpointSink saves a checkpoint after every generation.
func WithCheckpointSink(sink CheckpointSink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithReporter registers a per-generation callback.
func WithReporter(r Reporter) Option {
	return func(s *Scheduler) { s.reporters = append(s.reporters, r) }
}

// Scheduler runs the generational loop. Each generation is computed on a
// private copy of the current population that is published only when the
// generation completes, so cancelling a run never leaves a half-built
// generation behind.
type Scheduler struct {
	config       *neat.Config
	evaluator    Evaluator
	reproduction *neat.Reproduction
	netOptions   nn.Options

	logger    *slog.Logger
	metrics   *Metrics
	sink      CheckpointSink
	reporters []Reporter

	mu       sync.RWMutex
	current  *neat.Population
	failures []EvaluationFailure
	history  History
	solved   bool
}

// Result is the outcome of Run.
type Result struct {
	Best        *neat.Genome
	Generations int  // generations evaluated, including those of a resumed run
	Solved      bool // the fitness target was reached
}

// New validates config and creates a scheduler with a fresh generation 0.
func New(config *neat.Config, evaluator Evaluator, opts ...Option) (*Scheduler, error) {
	s, err := newScheduler(config, evaluator, opts)
	if err != nil {
		return nil, err
	}
	pop, err := neat.NewPopulation(config, s.logger)
	if err != nil {
		return nil, err
	}
	s.current = pop
	return s, nil
}

// Resume creates a scheduler that continues the run captured in cp.
func Resume(config *neat.Config, cp *neat.Checkpoint, evaluator Evaluator, opts ...Option) (*Scheduler, error) {
	s, err := newScheduler(config, evaluator, opts)
	if err != nil {
		return nil, err
	}
	pop, err := neat.RestorePopulation(config, cp, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to resume run %s: %w", cp.RunID, err)
	}
	s.current = pop
	s.logger.Info("resumed run", "run", pop.RunID, "generation", pop.Generation, "genomes", len(pop.Genomes))
	return s, nil
}

func newScheduler(config *neat.Config, evaluator Evaluator, opts []Option) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	s := &Scheduler{
		config:    config,
		evaluator: evaluator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	netOptions, err := nn.OptionsFromConfig(&config.Genome)
	if err != nil {
		return nil, err
	}
	netOptions.Logger = s.logger
	s.netOptions = netOptions
	s.reproduction = neat.NewReproduction(config, s.logger)
	return s, nil
}

// Run steps generations until the fitness target is reached, MaxGenerations
// have been evaluated, or ctx is cancelled. On cancellation the last
// published generation stays current and ctx's error is returned.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	for {
		if s.Solved() || s.generation() >= s.config.Neat.MaxGenerations {
			break
		}
		if err := ctx.Err(); err != nil {
			return s.result(), err
		}
		if _, err := s.Step(ctx); err != nil {
			return s.result(), err
		}
	}
	return s.result(), nil
}

func (s *Scheduler) result() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := &Result{Generations: s.history.Len(), Solved: s.solved}
	if s.current.BestGenome != nil {
		r.Best = s.current.BestGenome.Copy()
	}
	if last, ok := s.history.Last(); ok {
		r.Generations = last.Generation + 1
	}
	return r
}

// Step evaluates the current generation and, unless the fitness target was
// reached, speciates and reproduces it into the next one. The new generation
// is published only if every phase completes.
func (s *Scheduler) Step(ctx context.Context) (GenerationStats, error) {
	start := time.Now()

	s.mu.RLock()
	inFlight := s.current.Clone()
	s.mu.RUnlock()
	gen := inFlight.Generation

	evaluated := len(inFlight.Unevaluated())
	failures, err := s.evaluatePopulation(ctx, inFlight)
	if err != nil {
		return GenerationStats{}, fmt.Errorf("generation %d: %w", gen, err)
	}
	inFlight.UpdateBest()

	stats := newGenerationStats(inFlight)
	stats.Evaluated = evaluated
	stats.Failures = len(failures)

	solved := !s.config.Neat.NoFitnessTermination && stats.BestFitness >= s.config.Neat.FitnessThreshold
	if solved {
		stats.Solved = true
	} else {
		if err := inFlight.Speciate(); err != nil {
			return GenerationStats{}, err
		}
		stats.addSpecies(inFlight.SpeciesSet)

		rng := rand.New(rand.NewSource(neat.GenerationSeed(s.config.Neat.Seed, gen)))
		res, err := inFlight.Reproduce(ctx, rng, s.reproduction)
		if err != nil {
			return GenerationStats{}, err
		}
		stats.addReproduction(inFlight.SpeciesSet, res)
	}
	stats.Duration = time.Since(start)

	s.mu.Lock()
	s.current = inFlight
	s.failures = append(s.failures, failures...)
	s.solved = solved
	s.mu.Unlock()
	s.history.Add(stats)

	s.report(stats)
	if s.sink != nil {
		if err := s.sink.Save(ctx, inFlight.Checkpoint()); err != nil {
			return stats, fmt.Errorf("failed to save checkpoint for generation %d: %w", gen, err)
		}
	}
	return stats, nil
}

func (s *Scheduler) report(stats GenerationStats) {
	if stats.Degenerate {
		s.logger.Warn("degenerate generation", "generation", stats.Generation, "reseeded", stats.Reseeded)
	}
	s.logger.Info("generation complete",
		"generation", stats.Generation,
		"best_fitness", stats.BestFitness,
		"best_genome", stats.BestGenomeID,
		"mean_fitness", stats.MeanFitness,
		"median_fitness", stats.MedianFitness,
		"species", len(stats.Species),
		"failures", stats.Failures,
		"solved", stats.Solved,
		"duration", stats.Duration)

	if m := s.metrics; m != nil {
		m.Generations.Inc()
		m.BestFitness.Set(stats.BestFitness)
		m.MeanFitness.Set(stats.MeanFitness)
		m.Species.Set(float64(len(stats.Species)))
		if stats.Degenerate {
			m.DegenerateGenerations.Inc()
		}
	}
	for _, r := range s.reporters {
		r(stats)
	}
}

// Population returns a copy of the current published population.
func (s *Scheduler) Population() *neat.Population {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Best returns a copy of the best genome found so far, or nil.
func (s *Scheduler) Best() *neat.Genome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.BestGenome == nil {
		return nil
	}
	return s.current.BestGenome.Copy()
}

// Failures returns every evaluation failure recorded so far.
func (s *Scheduler) Failures() []EvaluationFailure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EvaluationFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// History returns the per-generation reports.
func (s *Scheduler) History() *History {
	return &s.history
}

func (s *Scheduler) generation() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Generation
}

// Solved reports whether the fitness target has been reached.
func (s *Scheduler) Solved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.solved
}
