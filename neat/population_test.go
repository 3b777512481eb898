package neat

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPopulation(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.PopSize = 12

	pop, err := NewPopulation(config, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, pop.Generation)
	assert.Equal(t, 13, pop.NextGenomeID)
	require.Len(t, pop.Genomes, 12)
	for i, g := range pop.Genomes {
		assert.Equal(t, i+1, g.ID)
		assert.False(t, g.Evaluated)
	}
	assert.Len(t, pop.Unevaluated(), 12)
	assert.Nil(t, pop.Best())
}

func TestNewPopulationInvalidConfig(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.PopSize = 0
	_, err := NewPopulation(config, nil)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "pop_size", cfgErr.Field)
}

func TestNewPopulationDeterministic(t *testing.T) {
	config := DefaultConfig(3, 2)
	config.Neat.PopSize = 10
	a, err := NewPopulation(config, nil)
	require.NoError(t, err)
	b, err := NewPopulation(config, nil)
	require.NoError(t, err)

	for i := range a.Genomes {
		assert.Equal(t, a.Genomes[i].String(), b.Genomes[i].String())
	}
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestPopulationSpeciateRequiresEvaluation(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.PopSize = 5
	pop, err := NewPopulation(config, nil)
	require.NoError(t, err)
	assert.Error(t, pop.Speciate())
}

func TestPopulationUpdateBest(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.PopSize = 4
	pop, err := NewPopulation(config, nil)
	require.NoError(t, err)

	for i, g := range pop.Genomes {
		g.Fitness = float64(i)
		g.Evaluated = true
	}
	require.True(t, pop.UpdateBest())
	assert.Equal(t, 4, pop.BestGenome.ID)
	assert.NotSame(t, pop.Genomes[3], pop.BestGenome)

	pop.Genomes[3].Fitness = 0
	assert.False(t, pop.UpdateBest())
	assert.Equal(t, 3.0, pop.BestGenome.Fitness)
}

func TestPopulationCloneIsIndependent(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.PopSize = 10
	pop := speciatedPopulation(t, config)

	clone := pop.Clone()
	for i, s := range clone.SpeciesSet.Species {
		for j, m := range s.Members {
			g, ok := clone.Genome(m.ID)
			require.True(t, ok)
			assert.Same(t, g, m)
			assert.NotSame(t, pop.SpeciesSet.Species[i].Members[j], m)
		}
	}

	_, err := clone.Reproduce(context.Background(), rand.New(rand.NewSource(1)), NewReproduction(config, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, pop.Generation)
	assert.Equal(t, 11, pop.NextGenomeID)
	for _, g := range pop.Genomes {
		assert.True(t, g.Evaluated)
	}
}

func TestGenerationSeed(t *testing.T) {
	assert.Equal(t, GenerationSeed(1, 5), GenerationSeed(1, 5))
	assert.NotEqual(t, GenerationSeed(1, 5), GenerationSeed(1, 6))
	assert.NotEqual(t, GenerationSeed(1, 5), GenerationSeed(2, 5))
}
