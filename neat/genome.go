package neat

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Genome represents an individual organism in the population.
// It consists of NodeGenes ordered by id and ConnectionGenes ordered by innovation.
type Genome struct {
	ID              int
	Nodes           []*NodeGene
	Connections     []*ConnectionGene
	Fitness         float64
	AdjustedFitness float64
	Evaluated       bool // Fitness holds a value for the current generation
	SpeciesID       int  // 0 until speciated; bookkeeping only

	// Config holds a reference to the genome configuration for mutation parameters.
	Config *GenomeConfig
}

// BiasNodeID is the id of the bias node in every genome built from a GenomeConfig.
const BiasNodeID = 0

// InputIDs returns the ids of the input nodes: 1..NumInputs.
func (gc *GenomeConfig) InputIDs() []int {
	ids := make([]int, gc.NumInputs)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

// OutputIDs returns the ids of the output nodes, directly after the inputs.
func (gc *GenomeConfig) OutputIDs() []int {
	ids := make([]int, gc.NumOutputs)
	for i := range ids {
		ids[i] = gc.NumInputs + i + 1
	}
	return ids
}

// FirstHiddenID is the first id the innovation registry may hand out for hidden nodes.
func (gc *GenomeConfig) FirstHiddenID() int {
	return gc.NumInputs + gc.NumOutputs + 1
}

// NewGenome creates an empty Genome with the specified id and config reference.
func NewGenome(id int, config *GenomeConfig) *Genome {
	return &Genome{
		ID:     id,
		Config: config,
	}
}

// NewMinimalGenome creates a genome with the bias, input and output nodes only,
// every sensor connected to every output with a random weight.
func NewMinimalGenome(id int, config *GenomeConfig, reg *InnovationRegistry, rng *rand.Rand) *Genome {
	g := NewGenome(id, config)
	sensors := append([]int{BiasNodeID}, config.InputIDs()...)

	g.AddNode(&NodeGene{ID: BiasNodeID, Kind: BiasNode})
	for _, in := range config.InputIDs() {
		g.AddNode(&NodeGene{ID: in, Kind: InputNode})
	}
	for _, out := range config.OutputIDs() {
		g.AddNode(&NodeGene{ID: out, Kind: OutputNode})
	}

	for _, in := range sensors {
		for _, out := range config.OutputIDs() {
			// Cannot fail: every pair is new to this genome.
			_ = g.AddConnection(&ConnectionGene{
				Innovation: reg.ConnectionInnovation(in, out),
				Key:        ConnectionKey{InNodeID: in, OutNodeID: out},
				Weight:     randomWeight(rng, config.WeightInitRange),
				Enabled:    true,
			})
		}
	}
	return g
}

// Copy creates a deep copy of the genome, including fitness and id.
func (g *Genome) Copy() *Genome {
	c := &Genome{
		ID:              g.ID,
		Nodes:           make([]*NodeGene, len(g.Nodes)),
		Connections:     make([]*ConnectionGene, len(g.Connections)),
		Fitness:         g.Fitness,
		AdjustedFitness: g.AdjustedFitness,
		Evaluated:       g.Evaluated,
		SpeciesID:       g.SpeciesID,
		Config:          g.Config,
	}
	for i, n := range g.Nodes {
		c.Nodes[i] = n.Copy()
	}
	for i, cg := range g.Connections {
		c.Connections[i] = cg.Copy()
	}
	return c
}

// String returns a multi-line representation of the genome.
func (g *Genome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Genome(ID: %d, Fitness: %.4f, Species: %d)\n", g.ID, g.Fitness, g.SpeciesID)
	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "  %s\n", n)
	}
	for _, c := range g.Connections {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	return b.String()
}

// Node returns the node gene with the given id.
func (g *Genome) Node(id int) (*NodeGene, bool) {
	i := sort.Search(len(g.Nodes), func(i int) bool { return g.Nodes[i].ID >= id })
	if i < len(g.Nodes) && g.Nodes[i].ID == id {
		return g.Nodes[i], true
	}
	return nil, false
}

// AddNode inserts a node gene keeping id order. It returns false if the id is taken.
func (g *Genome) AddNode(n *NodeGene) bool {
	i := sort.Search(len(g.Nodes), func(i int) bool { return g.Nodes[i].ID >= n.ID })
	if i < len(g.Nodes) && g.Nodes[i].ID == n.ID {
		return false
	}
	g.Nodes = append(g.Nodes, nil)
	copy(g.Nodes[i+1:], g.Nodes[i:])
	g.Nodes[i] = n
	return true
}

// Connection returns the connection gene between the given nodes.
func (g *Genome) Connection(key ConnectionKey) (*ConnectionGene, bool) {
	for _, c := range g.Connections {
		if c.Key == key {
			return c, true
		}
	}
	return nil, false
}

// AddConnection inserts a connection gene keeping innovation order. Duplicate
// (in, out) pairs and duplicate innovation numbers are rejected.
func (g *Genome) AddConnection(c *ConnectionGene) error {
	if _, exists := g.Connection(c.Key); exists {
		return fmt.Errorf("genome %d already has connection %d->%d", g.ID, c.Key.InNodeID, c.Key.OutNodeID)
	}
	i := sort.Search(len(g.Connections), func(i int) bool { return g.Connections[i].Innovation >= c.Innovation })
	if i < len(g.Connections) && g.Connections[i].Innovation == c.Innovation {
		return fmt.Errorf("genome %d already has innovation %d", g.ID, c.Innovation)
	}
	g.Connections = append(g.Connections, nil)
	copy(g.Connections[i+1:], g.Connections[i:])
	g.Connections[i] = c
	return nil
}

// MaxInnovation returns the highest innovation number in the genome, or 0.
func (g *Genome) MaxInnovation() int {
	if len(g.Connections) == 0 {
		return 0
	}
	return g.Connections[len(g.Connections)-1].Innovation
}

// Mutate applies every mutation operator once, each with its configured probability.
func (g *Genome) Mutate(rng *rand.Rand, reg *InnovationRegistry) {
	cfg := g.Config
	g.MutateWeights(rng, cfg.WeightPerturbProb, cfg.WeightResetProb, cfg.WeightPerturbPower)
	if rng.Float64() < cfg.ConnAddProb {
		g.MutateAddConnection(rng, reg, cfg.ConnAddAttempts)
	}
	if rng.Float64() < cfg.NodeAddProb {
		g.MutateAddNode(rng, reg)
	}
	g.MutateToggleEnable(rng, cfg.ToggleEnableProb)
	g.Evaluated = false
}

// MutateWeights perturbs or resets the weight of each enabled connection.
// Both checks are drawn independently; a reset wins over a perturbation.
func (g *Genome) MutateWeights(rng *rand.Rand, perturbProb, resetProb, perturbPower float64) {
	for _, c := range g.Connections {
		if !c.Enabled {
			continue
		}
		perturb := rng.Float64() < perturbProb
		reset := rng.Float64() < resetProb
		switch {
		case reset:
			c.Weight = randomWeight(rng, g.Config.WeightInitRange)
		case perturb:
			c.Weight = perturbWeight(rng, c.Weight, perturbPower, g.Config.WeightMaxValue)
		}
	}
}

// MutateAddConnection attempts to add a new connection between two distinct,
// previously unconnected nodes. It gives up after maxAttempts random picks and reports
// whether a connection was added.
func (g *Genome) MutateAddConnection(rng *rand.Rand, reg *InnovationRegistry, maxAttempts int) bool {
	possibleOutputs := make([]*NodeGene, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Kind.AcceptsIncoming() {
			possibleOutputs = append(possibleOutputs, n)
		}
	}
	if len(g.Nodes) == 0 || len(possibleOutputs) == 0 {
		return false
	}

	for i := 0; i < maxAttempts; i++ {
		in := g.Nodes[rng.Intn(len(g.Nodes))]
		out := possibleOutputs[rng.Intn(len(possibleOutputs))]
		if in.ID == out.ID {
			continue
		}
		key := ConnectionKey{InNodeID: in.ID, OutNodeID: out.ID}

		if _, exists := g.Connection(key); exists {
			continue
		}
		if !g.Config.RecurrentEnabled && createsCycle(g, in.ID, out.ID) {
			continue
		}

		c := &ConnectionGene{
			Innovation: reg.ConnectionInnovation(in.ID, out.ID),
			Key:        key,
			Weight:     randomWeight(rng, g.Config.WeightInitRange),
			Enabled:    true,
		}
		if err := g.AddConnection(c); err != nil {
			continue
		}
		return true
	}
	return false
}

// MutateAddNode splits a random enabled connection in two. The original
// connection is disabled; the incoming half gets weight 1 and the outgoing half
// inherits the original weight.
func (g *Genome) MutateAddNode(rng *rand.Rand, reg *InnovationRegistry) bool {
	enabled := make([]*ConnectionGene, 0, len(g.Connections))
	for _, c := range g.Connections {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	if len(enabled) == 0 {
		return false
	}
	split := enabled[rng.Intn(len(enabled))]

	nodeID := reg.SplitNode(split.Innovation)
	if _, exists := g.Node(nodeID); exists {
		// This genome already split the same connection earlier in the generation.
		nodeID = reg.NewNodeID()
	}

	split.Enabled = false
	g.AddNode(&NodeGene{ID: nodeID, Kind: HiddenNode})

	in, out := split.Key.InNodeID, split.Key.OutNodeID
	_ = g.AddConnection(&ConnectionGene{
		Innovation: reg.ConnectionInnovation(in, nodeID),
		Key:        ConnectionKey{InNodeID: in, OutNodeID: nodeID},
		Weight:     1.0,
		Enabled:    true,
	})
	_ = g.AddConnection(&ConnectionGene{
		Innovation: reg.ConnectionInnovation(nodeID, out),
		Key:        ConnectionKey{InNodeID: nodeID, OutNodeID: out},
		Weight:     split.Weight,
		Enabled:    true,
	})
	return true
}

// MutateToggleEnable flips the enabled flag of each connection with the given
// probability. Toggling is always allowed except that, without recurrent
// connections, a connection is not re-enabled if doing so would close a cycle.
func (g *Genome) MutateToggleEnable(rng *rand.Rand, probability float64) {
	for _, c := range g.Connections {
		if rng.Float64() >= probability {
			continue
		}
		if !c.Enabled && !g.Config.RecurrentEnabled && createsCycle(g, c.Key.InNodeID, c.Key.OutNodeID) {
			continue
		}
		c.Enabled = !c.Enabled
	}
}

// createsCycle reports whether adding in->out would close a cycle through
// the enabled connections of the genome.
func createsCycle(genome *Genome, inNode, outNode int) bool {
	if inNode == outNode {
		return true
	}

	visited := make(map[int]bool)
	queue := []int{outNode}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == inNode {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, c := range genome.Connections {
			if c.Enabled && c.Key.InNodeID == current {
				queue = append(queue, c.Key.OutNodeID)
			}
		}
	}
	return false
}
