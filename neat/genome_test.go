package neat

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimalGenomeLayout(t *testing.T) {
	config := DefaultConfig(3, 2)
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	rng := rand.New(rand.NewSource(1))

	g := NewMinimalGenome(7, &config.Genome, reg, rng)
	require.Len(t, g.Nodes, 1+3+2)
	assert.Equal(t, BiasNode, g.Nodes[0].Kind)
	for _, id := range config.Genome.InputIDs() {
		n, ok := g.Node(id)
		require.True(t, ok)
		assert.Equal(t, InputNode, n.Kind)
	}
	for _, id := range config.Genome.OutputIDs() {
		n, ok := g.Node(id)
		require.True(t, ok)
		assert.Equal(t, OutputNode, n.Kind)
	}

	// Bias and every input feed every output.
	assert.Len(t, g.Connections, 4*2)
	for i, c := range g.Connections {
		assert.True(t, c.Enabled)
		assert.LessOrEqual(t, c.Weight, config.Genome.WeightInitRange)
		assert.GreaterOrEqual(t, c.Weight, -config.Genome.WeightInitRange)
		if i > 0 {
			assert.Greater(t, c.Innovation, g.Connections[i-1].Innovation)
		}
	}

	// A second minimal genome shares every innovation number.
	other := NewMinimalGenome(8, &config.Genome, reg, rng)
	cmp := CompareGenes(g, other)
	assert.Equal(t, len(g.Connections), cmp.Matching)
}

func TestMutateAddNodeSplitsConnection(t *testing.T) {
	config := DefaultConfig(1, 1)
	reg := NewInnovationRegistry(3)
	rng := rand.New(rand.NewSource(3))

	g := NewGenome(1, &config.Genome)
	g.AddNode(&NodeGene{ID: 1, Kind: InputNode})
	g.AddNode(&NodeGene{ID: 2, Kind: OutputNode})
	require.NoError(t, g.AddConnection(&ConnectionGene{
		Innovation: reg.ConnectionInnovation(1, 2),
		Key:        ConnectionKey{InNodeID: 1, OutNodeID: 2},
		Weight:     0.7,
		Enabled:    true,
	}))

	require.True(t, g.MutateAddNode(rng, reg))

	original, ok := g.Connection(ConnectionKey{InNodeID: 1, OutNodeID: 2})
	require.True(t, ok)
	assert.False(t, original.Enabled)

	require.Len(t, g.Nodes, 3)
	hidden := g.Nodes[2]
	assert.Equal(t, HiddenNode, hidden.Kind)
	assert.Equal(t, 3, hidden.ID)

	in, ok := g.Connection(ConnectionKey{InNodeID: 1, OutNodeID: hidden.ID})
	require.True(t, ok)
	assert.True(t, in.Enabled)
	assert.Equal(t, 1.0, in.Weight)

	out, ok := g.Connection(ConnectionKey{InNodeID: hidden.ID, OutNodeID: 2})
	require.True(t, ok)
	assert.True(t, out.Enabled)
	assert.Equal(t, 0.7, out.Weight)
}

func TestMutateAddNodeSharesSplitAcrossGenomes(t *testing.T) {
	config := DefaultConfig(1, 1)
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	rng := rand.New(rand.NewSource(5))

	build := func(id int) *Genome {
		g := NewGenome(id, &config.Genome)
		g.AddNode(&NodeGene{ID: 1, Kind: InputNode})
		g.AddNode(&NodeGene{ID: 2, Kind: OutputNode})
		require.NoError(t, g.AddConnection(&ConnectionGene{
			Innovation: reg.ConnectionInnovation(1, 2),
			Key:        ConnectionKey{InNodeID: 1, OutNodeID: 2},
			Weight:     0.3,
			Enabled:    true,
		}))
		return g
	}
	a, b := build(1), build(2)
	require.True(t, a.MutateAddNode(rng, reg))
	require.True(t, b.MutateAddNode(rng, reg))

	assert.Equal(t, a.Nodes[len(a.Nodes)-1].ID, b.Nodes[len(b.Nodes)-1].ID)
	assert.Equal(t, 3, CompareGenes(a, b).Matching)
}

func TestMutateAddNodeWithoutEnabledConnections(t *testing.T) {
	config := DefaultConfig(1, 1)
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	g := NewGenome(1, &config.Genome)
	g.AddNode(&NodeGene{ID: 1, Kind: InputNode})
	g.AddNode(&NodeGene{ID: 2, Kind: OutputNode})
	assert.False(t, g.MutateAddNode(rand.New(rand.NewSource(1)), reg))
}

func TestMutateAddConnectionRespectsNodeKinds(t *testing.T) {
	config := DefaultConfig(3, 2)
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	rng := rand.New(rand.NewSource(9))

	g := NewMinimalGenome(1, &config.Genome, reg, rng)
	for i := 0; i < 5; i++ {
		g.MutateAddNode(rng, reg)
	}
	for i := 0; i < 200; i++ {
		g.MutateAddConnection(rng, reg, config.Genome.ConnAddAttempts)
	}

	seen := make(map[ConnectionKey]bool)
	for _, c := range g.Connections {
		assert.False(t, seen[c.Key], "duplicate connection %v", c.Key)
		seen[c.Key] = true

		out, ok := g.Node(c.Key.OutNodeID)
		require.True(t, ok)
		assert.True(t, out.Kind.AcceptsIncoming(), "connection %v ends at a %s node", c.Key, out.Kind)
		_, ok = g.Node(c.Key.InNodeID)
		assert.True(t, ok)
	}
}

func TestMutateAddConnectionFeedForwardStaysAcyclic(t *testing.T) {
	config := DefaultConfig(2, 2)
	config.Genome.RecurrentEnabled = false
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	rng := rand.New(rand.NewSource(21))

	g := NewMinimalGenome(1, &config.Genome, reg, rng)
	for i := 0; i < 100; i++ {
		if rng.Float64() < 0.3 {
			g.MutateAddNode(rng, reg)
		}
		g.MutateAddConnection(rng, reg, config.Genome.ConnAddAttempts)
		g.MutateToggleEnable(rng, 0.2)
	}

	for _, c := range g.Connections {
		if !c.Enabled {
			continue
		}
		assert.NotEqual(t, c.Key.InNodeID, c.Key.OutNodeID)
		c.Enabled = false
		assert.False(t, createsCycle(g, c.Key.InNodeID, c.Key.OutNodeID), "connection %v closes a cycle", c.Key)
		c.Enabled = true
	}
}

func TestMutateAddConnectionFullyConnected(t *testing.T) {
	config := DefaultConfig(1, 1)
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	rng := rand.New(rand.NewSource(2))

	g := NewMinimalGenome(1, &config.Genome, reg, rng)
	// Only bias->output and input->output are legal and both exist.
	assert.False(t, g.MutateAddConnection(rng, reg, 50))
}

func TestMutateAddConnectionRecurrentSkipsSelfLoops(t *testing.T) {
	config := DefaultConfig(1, 1)
	config.Genome.RecurrentEnabled = true

	for seed := int64(0); seed < 200; seed++ {
		reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
		rng := rand.New(rand.NewSource(seed))
		g := NewMinimalGenome(1, &config.Genome, reg, rng)
		require.True(t, g.MutateAddNode(rng, reg))
		for i := 0; i < 5; i++ {
			g.MutateAddConnection(rng, reg, config.Genome.ConnAddAttempts)
		}
		for _, c := range g.Connections {
			assert.NotEqual(t, c.Key.InNodeID, c.Key.OutNodeID, "seed %d: self-loop %v", seed, c.Key)
		}
	}
}

func TestMutateAddConnectionSharesInnovationAcrossGenomes(t *testing.T) {
	config := DefaultConfig(1, 1)
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())

	// Input 1 to output 2 is the only connection either genome can add.
	build := func(id int) *Genome {
		g := NewGenome(id, &config.Genome)
		g.AddNode(&NodeGene{ID: 1, Kind: InputNode})
		g.AddNode(&NodeGene{ID: 2, Kind: OutputNode})
		return g
	}
	a, b := build(1), build(2)
	require.True(t, a.MutateAddConnection(rand.New(rand.NewSource(1)), reg, 50))
	reg.BeginGeneration(1)
	require.True(t, b.MutateAddConnection(rand.New(rand.NewSource(99)), reg, 50))

	require.Len(t, a.Connections, 1)
	require.Len(t, b.Connections, 1)
	assert.Equal(t, ConnectionKey{InNodeID: 1, OutNodeID: 2}, a.Connections[0].Key)
	assert.Equal(t, a.Connections[0].Key, b.Connections[0].Key)
	assert.Equal(t, a.Connections[0].Innovation, b.Connections[0].Innovation)
}

func TestMutateWeightsResetWinsAndSkipsDisabled(t *testing.T) {
	config := DefaultConfig(2, 1)
	config.Genome.WeightInitRange = 0.001
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	rng := rand.New(rand.NewSource(4))

	g := NewMinimalGenome(1, &config.Genome, reg, rng)
	for _, c := range g.Connections {
		c.Weight = 5
	}
	g.Connections[0].Enabled = false

	g.MutateWeights(rng, 1, 1, 10)
	assert.Equal(t, 5.0, g.Connections[0].Weight)
	for _, c := range g.Connections[1:] {
		assert.InDelta(t, 0, c.Weight, 0.001)
	}
}

func TestPerturbWeightClamps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		w := perturbWeight(rng, 2.9, 5, 3)
		assert.LessOrEqual(t, w, 3.0)
		assert.GreaterOrEqual(t, w, -3.0)
	}
}

func TestMutateToggleEnableRefusesCycle(t *testing.T) {
	build := func(recurrent bool) *Genome {
		config := DefaultConfig(1, 1)
		config.Genome.RecurrentEnabled = recurrent
		g := NewGenome(1, &config.Genome)
		g.AddNode(&NodeGene{ID: 1, Kind: InputNode})
		g.AddNode(&NodeGene{ID: 2, Kind: OutputNode})
		g.AddNode(&NodeGene{ID: 3, Kind: HiddenNode})
		require.NoError(t, g.AddConnection(&ConnectionGene{Innovation: 1, Key: ConnectionKey{InNodeID: 3, OutNodeID: 2}, Enabled: false}))
		require.NoError(t, g.AddConnection(&ConnectionGene{Innovation: 2, Key: ConnectionKey{InNodeID: 2, OutNodeID: 3}, Enabled: true}))
		return g
	}

	// While 2->3 is still enabled, re-enabling 3->2 would close a cycle.
	g := build(false)
	g.MutateToggleEnable(rand.New(rand.NewSource(1)), 1)
	assert.False(t, g.Connections[0].Enabled)
	assert.False(t, g.Connections[1].Enabled)

	g = build(true)
	g.MutateToggleEnable(rand.New(rand.NewSource(1)), 1)
	assert.True(t, g.Connections[0].Enabled)
	assert.False(t, g.Connections[1].Enabled)
}

func TestAddConnectionRejectsDuplicates(t *testing.T) {
	g := NewGenome(1, &DefaultConfig(1, 1).Genome)
	require.NoError(t, g.AddConnection(&ConnectionGene{Innovation: 2, Key: ConnectionKey{InNodeID: 1, OutNodeID: 2}}))
	assert.Error(t, g.AddConnection(&ConnectionGene{Innovation: 3, Key: ConnectionKey{InNodeID: 1, OutNodeID: 2}}))
	assert.Error(t, g.AddConnection(&ConnectionGene{Innovation: 2, Key: ConnectionKey{InNodeID: 0, OutNodeID: 2}}))
	require.NoError(t, g.AddConnection(&ConnectionGene{Innovation: 1, Key: ConnectionKey{InNodeID: 0, OutNodeID: 2}}))
	assert.Equal(t, 1, g.Connections[0].Innovation)
	assert.Equal(t, 2, g.MaxInnovation())
}

func TestGenomeCopyIsDeep(t *testing.T) {
	config := DefaultConfig(2, 1)
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	g := NewMinimalGenome(1, &config.Genome, reg, rand.New(rand.NewSource(1)))
	g.Fitness = 0.5

	c := g.Copy()
	c.Connections[0].Weight = 42
	c.Nodes[0].Kind = HiddenNode
	assert.NotEqual(t, 42.0, g.Connections[0].Weight)
	assert.Equal(t, BiasNode, g.Nodes[0].Kind)
	assert.Equal(t, 0.5, c.Fitness)
	assert.Equal(t, g.ID, c.ID)
}

func TestMutateClearsEvaluated(t *testing.T) {
	config := DefaultConfig(2, 1)
	reg := NewInnovationRegistry(config.Genome.FirstHiddenID())
	rng := rand.New(rand.NewSource(1))
	g := NewMinimalGenome(1, &config.Genome, reg, rng)
	g.Evaluated = true
	g.Mutate(rng, reg)
	assert.False(t, g.Evaluated)
}
