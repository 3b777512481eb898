package neat

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.PopSize = 20
	config.Neat.Seed = 1234
	pop := speciatedPopulation(t, config)
	_, err := pop.Reproduce(context.Background(), rand.New(rand.NewSource(1)), NewReproduction(config, nil))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "checkpoint")
	require.NoError(t, SaveCheckpoint(path, pop.Checkpoint()))
	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)

	assert.Equal(t, CheckpointVersion, cp.Version)
	assert.Equal(t, pop.RunID, cp.RunID)
	assert.Equal(t, int64(1234), cp.Seed)
	assert.Equal(t, 1, cp.Generation)

	restoreConfig := DefaultConfig(2, 1)
	restoreConfig.Neat.PopSize = 20
	restored, err := RestorePopulation(restoreConfig, cp, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), restoreConfig.Neat.Seed)

	assert.Equal(t, pop.Generation, restored.Generation)
	assert.Equal(t, pop.NextGenomeID, restored.NextGenomeID)
	assert.Equal(t, pop.SpeciesSet.NextID, restored.SpeciesSet.NextID)
	require.Len(t, restored.Genomes, len(pop.Genomes))
	for i, g := range pop.Genomes {
		assert.Equal(t, g.String(), restored.Genomes[i].String())
		assert.Equal(t, g.Evaluated, restored.Genomes[i].Evaluated)
		assert.Same(t, &restoreConfig.Genome, restored.Genomes[i].Config)
	}

	require.Len(t, restored.SpeciesSet.Species, len(pop.SpeciesSet.Species))
	for i, s := range pop.SpeciesSet.Species {
		rs := restored.SpeciesSet.Species[i]
		assert.Equal(t, s.ID, rs.ID)
		assert.Equal(t, s.BestFitnessEver, rs.BestFitnessEver)
		assert.Equal(t, s.Representative.String(), rs.Representative.String())
		assert.Len(t, rs.Members, len(s.Members))
	}

	require.NotNil(t, restored.BestGenome)
	assert.Equal(t, pop.BestGenome.Fitness, restored.BestGenome.Fitness)

	wantNode, wantInnov := pop.Registry.Counters()
	gotNode, gotInnov := restored.Registry.Counters()
	assert.Equal(t, wantNode, gotNode)
	assert.Equal(t, wantInnov, gotInnov)
}

func TestDecodeCheckpointRejectsOtherVersion(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Neat.PopSize = 5
	pop, err := NewPopulation(config, nil)
	require.NoError(t, err)

	cp := pop.Checkpoint()
	cp.Version = CheckpointVersion + 1
	var buf bytes.Buffer
	require.NoError(t, cp.Encode(&buf))

	_, err = DecodeCheckpoint(&buf)
	assert.ErrorIs(t, err, ErrCheckpointVersion)

	_, err = RestorePopulation(config, cp, nil)
	assert.ErrorIs(t, err, ErrCheckpointVersion)
}

func TestDecodeCheckpointGarbage(t *testing.T) {
	_, err := DecodeCheckpoint(bytes.NewReader([]byte("not a checkpoint")))
	assert.Error(t, err)
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestGenomeRecordRejectsDuplicates(t *testing.T) {
	rec := GenomeRecord{
		ID:    1,
		Nodes: []NodeGene{{ID: 1, Kind: InputNode}, {ID: 1, Kind: OutputNode}},
	}
	_, err := rec.Genome(&DefaultConfig(1, 1).Genome)
	assert.Error(t, err)
}
