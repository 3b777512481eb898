package evolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baldhumanity/neat-evo/neat"
	"github.com/baldhumanity/neat-evo/neat/nn"
)

// Evaluator scores a phenotype. It is called concurrently from several
// workers, each with its own network instance. ctx carries the evaluation
// timeout; evaluators that can stop early should honor it.
type Evaluator interface {
	Evaluate(ctx context.Context, net nn.Network) (float64, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, net nn.Network) (float64, error)

// Evaluate calls f(ctx, net).
func (f EvaluatorFunc) Evaluate(ctx context.Context, net nn.Network) (float64, error) {
	return f(ctx, net)
}

var (
	// ErrEvaluationTimeout marks an evaluation that exceeded the configured timeout.
	ErrEvaluationTimeout = errors.New("evaluation timed out")
	// ErrNonFiniteFitness marks an evaluation that returned NaN or an infinity.
	ErrNonFiniteFitness = errors.New("non-finite fitness")
	// ErrEvaluatorPanic marks an evaluation whose evaluator panicked.
	ErrEvaluatorPanic = errors.New("evaluator panicked")
	// ErrPhenotype marks a genome that could not be turned into a network.
	ErrPhenotype = errors.New("phenotype construction failed")
)

// EvaluationFailure records a genome whose evaluation failed and which was
// assigned the failure fitness instead.
type EvaluationFailure struct {
	Generation int
	GenomeID   int
	Err        error
	Duration   time.Duration
}

// Reason is a short label for the failure, used as a metric label.
func (f EvaluationFailure) Reason() string {
	switch {
	case errors.Is(f.Err, ErrEvaluationTimeout):
		return "timeout"
	case errors.Is(f.Err, ErrNonFiniteFitness):
		return "non_finite"
	case errors.Is(f.Err, ErrEvaluatorPanic):
		return "panic"
	case errors.Is(f.Err, ErrPhenotype):
		return "phenotype"
	default:
		return "error"
	}
}

func (f EvaluationFailure) String() string {
	return fmt.Sprintf("generation %d genome %d: %v", f.Generation, f.GenomeID, f.Err)
}

type outcome struct {
	fitness  float64
	err      error
	duration time.Duration
}

// evaluatePopulation scores every genome without a fitness value using a
// bounded worker pool. Fitness values are written only after all workers have
// finished. A failed evaluation is recorded and the genome receives
// failureFitness. The only error returned is cancellation of ctx.
func (s *Scheduler) evaluatePopulation(ctx context.Context, pop *neat.Population) ([]EvaluationFailure, error) {
	pending := pop.Unevaluated()
	results := make([]outcome, len(pending))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Neat.EvaluationWorkers)
	for i, genome := range pending {
		i, genome := i, genome
		g.Go(func() error {
			start := time.Now()
			fitness, err := s.evaluateGenome(gCtx, genome)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			results[i] = outcome{fitness: fitness, err: err, duration: time.Since(start)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failures []EvaluationFailure
	for i, genome := range pending {
		r := results[i]
		if s.metrics != nil {
			s.metrics.EvaluationDuration.Observe(r.duration.Seconds())
		}
		genome.Evaluated = true
		if r.err == nil {
			genome.Fitness = r.fitness
			continue
		}
		genome.Fitness = s.config.Neat.FailureFitness
		failure := EvaluationFailure{
			Generation: pop.Generation,
			GenomeID:   genome.ID,
			Err:        r.err,
			Duration:   r.duration,
		}
		failures = append(failures, failure)
		s.logger.Warn("evaluation failed", "generation", pop.Generation, "genome", genome.ID,
			"reason", failure.Reason(), "error", r.err)
		if s.metrics != nil {
			s.metrics.EvaluationFailures.WithLabelValues(failure.Reason()).Inc()
		}
	}
	return failures, nil
}

// evaluateGenome builds the phenotype and runs the evaluator under the
// configured timeout. The evaluator runs in its own goroutine so a call that
// ignores ctx is abandoned, not waited for, once the timeout expires.
func (s *Scheduler) evaluateGenome(ctx context.Context, genome *neat.Genome) (float64, error) {
	net, err := nn.New(genome, s.netOptions)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPhenotype, err)
	}

	evalCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := s.config.Neat.EvaluationTimeout; timeout > 0 {
		evalCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrEvaluatorPanic, r)}
			}
		}()
		fitness, err := s.evaluator.Evaluate(evalCtx, net)
		done <- outcome{fitness: fitness, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return 0, fmt.Errorf("%w: %v", ErrEvaluationTimeout, r.err)
			}
			return 0, r.err
		}
		if !neat.IsFinite(r.fitness) {
			return 0, fmt.Errorf("%w: %v", ErrNonFiniteFitness, r.fitness)
		}
		return r.fitness, nil
	case <-evalCtx.Done():
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w after %s", ErrEvaluationTimeout, s.config.Neat.EvaluationTimeout)
	}
}
