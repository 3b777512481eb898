package evolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldhumanity/neat-evo/neat"
	"github.com/baldhumanity/neat-evo/neat/nn"
	"github.com/baldhumanity/neat-evo/neat/store"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() *neat.Config {
	config := neat.DefaultConfig(2, 1)
	config.Neat.PopSize = 24
	config.Neat.MaxGenerations = 3
	config.Neat.FitnessThreshold = 10
	config.Neat.EvaluationWorkers = 4
	config.Neat.EvaluationTimeout = time.Second
	config.Neat.Seed = 5
	config.Genome.NodeAddProb = 0.2
	config.Genome.ConnAddProb = 0.3
	return config
}

func xorFitness(_ context.Context, net nn.Network) (float64, error) {
	cases := [][3]float64{{0, 0, 0}, {0, 1, 1}, {1, 0, 1}, {1, 1, 0}}
	sse := 0.0
	for _, c := range cases {
		out, err := net.Compute([]float64{c[0], c[1]})
		if err != nil {
			return 0, err
		}
		d := out[0] - c[2]
		sse += d * d
	}
	return 1 / (1 + sse/4), nil
}

func TestRunStopsAtMaxGenerations(t *testing.T) {
	config := testConfig()
	var reported []int
	s, err := New(config, EvaluatorFunc(xorFitness), WithLogger(quietLogger),
		WithReporter(func(gs GenerationStats) { reported = append(reported, gs.Generation) }))
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Solved)
	assert.Equal(t, 3, result.Generations)
	require.NotNil(t, result.Best)
	assert.Greater(t, result.Best.Fitness, 0.0)

	assert.Equal(t, []int{0, 1, 2}, reported)
	assert.Equal(t, 3, s.History().Len())
	assert.Equal(t, 3, s.Population().Generation)
	assert.Len(t, s.Population().Genomes, config.Neat.PopSize)
	assert.Empty(t, s.Failures())

	for _, gs := range s.History().All() {
		assert.NotEmpty(t, gs.Species)
		offspring := 0
		for _, sp := range gs.Species {
			offspring += sp.Offspring
		}
		assert.Equal(t, config.Neat.PopSize, offspring+gs.Reseeded)
	}
}

func TestRunSolvedPublishesWithoutReproduction(t *testing.T) {
	config := testConfig()
	config.Neat.FitnessThreshold = 0.5
	s, err := New(config, EvaluatorFunc(func(context.Context, nn.Network) (float64, error) {
		return 1, nil
	}), WithLogger(quietLogger))
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Solved)
	assert.True(t, s.Solved())
	assert.Equal(t, 1, result.Generations)

	pop := s.Population()
	assert.Equal(t, 0, pop.Generation)
	for _, g := range pop.Genomes {
		assert.True(t, g.Evaluated)
		assert.Equal(t, 1.0, g.Fitness)
	}
	last, ok := s.History().Last()
	require.True(t, ok)
	assert.True(t, last.Solved)
	assert.Empty(t, last.Species)
}

func TestNoFitnessTermination(t *testing.T) {
	config := testConfig()
	config.Neat.FitnessThreshold = 0.5
	config.Neat.NoFitnessTermination = true
	s, err := New(config, EvaluatorFunc(func(context.Context, nn.Network) (float64, error) {
		return 1, nil
	}), WithLogger(quietLogger))
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Solved)
	assert.Equal(t, 3, result.Generations)
}

func TestEvaluationFailures(t *testing.T) {
	tests := []struct {
		name     string
		reason   string
		sentinel error
		eval     EvaluatorFunc
	}{
		{
			name:   "error",
			reason: "error",
			eval: func(context.Context, nn.Network) (float64, error) {
				return 0, errors.New("simulator crashed")
			},
		},
		{
			name:     "panic",
			reason:   "panic",
			sentinel: ErrEvaluatorPanic,
			eval: func(context.Context, nn.Network) (float64, error) {
				panic("boom")
			},
		},
		{
			name:     "nan",
			reason:   "non_finite",
			sentinel: ErrNonFiniteFitness,
			eval: func(context.Context, nn.Network) (float64, error) {
				return math.NaN(), nil
			},
		},
		{
			name:     "infinity",
			reason:   "non_finite",
			sentinel: ErrNonFiniteFitness,
			eval: func(context.Context, nn.Network) (float64, error) {
				return math.Inf(1), nil
			},
		},
		{
			name:     "timeout honoring context",
			reason:   "timeout",
			sentinel: ErrEvaluationTimeout,
			eval: func(ctx context.Context, _ nn.Network) (float64, error) {
				<-ctx.Done()
				return 0, ctx.Err()
			},
		},
		{
			name:     "timeout ignoring context",
			reason:   "timeout",
			sentinel: ErrEvaluationTimeout,
			eval: func(context.Context, nn.Network) (float64, error) {
				time.Sleep(500 * time.Millisecond)
				return 1, nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			config.Neat.PopSize = 8
			config.Neat.FailureFitness = -1
			config.Neat.EvaluationTimeout = 20 * time.Millisecond

			reg := prometheus.NewRegistry()
			s, err := New(config, tt.eval, WithLogger(quietLogger), WithMetrics(NewMetrics(reg)))
			require.NoError(t, err)

			stats, err := s.Step(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 8, stats.Failures)
			assert.Equal(t, -1.0, stats.BestFitness)

			failures := s.Failures()
			require.Len(t, failures, 8)
			for _, f := range failures {
				assert.Equal(t, tt.reason, f.Reason())
				assert.Equal(t, 0, f.Generation)
				if tt.sentinel != nil {
					assert.ErrorIs(t, f.Err, tt.sentinel)
				}
			}
			assert.Equal(t, 8.0, counterValue(t, reg, "neat_evaluation_failures_total"))

			// The next generation is still complete.
			assert.Len(t, s.Population().Genomes, 8)
			assert.Equal(t, 1, s.Population().Generation)
		})
	}
}

func TestCancelledStepKeepsPublishedGeneration(t *testing.T) {
	config := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cancelNow atomic.Bool
	s, err := New(config, EvaluatorFunc(func(ctx context.Context, net nn.Network) (float64, error) {
		if cancelNow.Load() {
			cancel()
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return xorFitness(ctx, net)
	}), WithLogger(quietLogger))
	require.NoError(t, err)

	_, err = s.Step(ctx)
	require.NoError(t, err)
	before := s.Population()
	require.Equal(t, 1, before.Generation)

	cancelNow.Store(true)
	_, err = s.Step(ctx)
	require.ErrorIs(t, err, context.Canceled)

	after := s.Population()
	assert.Equal(t, before.Generation, after.Generation)
	require.Len(t, after.Genomes, len(before.Genomes))
	for i, g := range before.Genomes {
		assert.Equal(t, g.String(), after.Genomes[i].String())
		assert.Equal(t, g.Evaluated, after.Genomes[i].Evaluated)
	}
	nextNode, nextInnov := before.Registry.Counters()
	gotNode, gotInnov := after.Registry.Counters()
	assert.Equal(t, nextNode, gotNode)
	assert.Equal(t, nextInnov, gotInnov)
	assert.Empty(t, s.Failures())
	assert.Equal(t, 1, s.History().Len())

	result, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Generations)
}

func TestMetrics(t *testing.T) {
	config := testConfig()
	config.Neat.MaxGenerations = 2
	reg := prometheus.NewRegistry()
	s, err := New(config, EvaluatorFunc(xorFitness), WithLogger(quietLogger), WithMetrics(NewMetrics(reg)))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, reg, "neat_generations_total"))
	last, ok := s.History().Last()
	require.True(t, ok)
	assert.Equal(t, last.BestFitness, gaugeValue(t, reg, "neat_best_fitness"))
	assert.Equal(t, float64(len(last.Species)), gaugeValue(t, reg, "neat_species"))
}

type recordingSink struct {
	saved []int
	err   error
}

func (r *recordingSink) Save(_ context.Context, cp *neat.Checkpoint) error {
	r.saved = append(r.saved, cp.Generation)
	return r.err
}

func TestCheckpointSink(t *testing.T) {
	sink := &recordingSink{}
	s, err := New(testConfig(), EvaluatorFunc(xorFitness), WithLogger(quietLogger), WithCheckpointSink(sink))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, sink.saved)

	failing := &recordingSink{err: errors.New("disk full")}
	s, err = New(testConfig(), EvaluatorFunc(xorFitness), WithLogger(quietLogger), WithCheckpointSink(failing))
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, failing.err)
	assert.Len(t, failing.saved, 1)
}

func TestResumeMatchesUninterruptedRun(t *testing.T) {
	config := testConfig()
	config.Neat.MaxGenerations = 4
	full, err := New(config, EvaluatorFunc(xorFitness), WithLogger(quietLogger))
	require.NoError(t, err)
	_, err = full.Run(context.Background())
	require.NoError(t, err)

	checkpoints := store.NewMemoryStore()
	require.NoError(t, checkpoints.Init(context.Background()))

	first := testConfig()
	first.Neat.MaxGenerations = 2
	interrupted, err := New(first, EvaluatorFunc(xorFitness), WithLogger(quietLogger), WithCheckpointSink(checkpoints))
	require.NoError(t, err)
	_, err = interrupted.Run(context.Background())
	require.NoError(t, err)

	cp, ok, err := checkpoints.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, cp.Generation)

	second := testConfig()
	second.Neat.MaxGenerations = 4
	second.Neat.Seed = 999 // replaced by the checkpoint's seed
	resumed, err := Resume(second, cp, EvaluatorFunc(xorFitness), WithLogger(quietLogger))
	require.NoError(t, err)
	result, err := resumed.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Generations)

	want, got := full.Population(), resumed.Population()
	assert.Equal(t, want.Generation, got.Generation)
	require.Len(t, got.Genomes, len(want.Genomes))
	for i := range want.Genomes {
		assert.Equal(t, want.Genomes[i].String(), got.Genomes[i].String())
	}
	assert.Equal(t, full.Best().Fitness, resumed.Best().Fitness)
}

func TestNewValidates(t *testing.T) {
	_, err := New(testConfig(), nil)
	assert.Error(t, err)

	config := testConfig()
	config.Neat.EvaluationWorkers = 0
	_, err = New(config, EvaluatorFunc(xorFitness))
	var cfgErr *neat.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestHistoryTables(t *testing.T) {
	s, err := New(testConfig(), EvaluatorFunc(xorFitness), WithLogger(quietLogger))
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	table := s.History().Table()
	assert.Contains(t, table, "Generation")
	assert.Contains(t, table, "Median")
	assert.Equal(t, 1+3, len(strings.Split(strings.TrimSpace(table), "\n")))

	last, ok := s.History().Last()
	require.True(t, ok)
	assert.Contains(t, last.SpeciesTable(), "Offspring")
}

func TestGenerationStatsMedianFitness(t *testing.T) {
	pop, err := neat.NewPopulation(testConfig(), quietLogger)
	require.NoError(t, err)
	for i, g := range pop.Genomes {
		g.Fitness = float64(i * i)
		g.Evaluated = true
	}

	stats := newGenerationStats(pop)
	assert.Equal(t, 132.5, stats.MedianFitness)
	assert.InDelta(t, 23.0*47.0/6.0, stats.MeanFitness, 1e-9)
	assert.Equal(t, 529.0, stats.BestFitness)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
