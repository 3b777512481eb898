package neat

import (
	"math/rand"

	"github.com/campoy/unique"
)

// Crossover creates a child genome from two parents by aligning their
// connection genes on innovation number.
//
// Matching genes come from the fitter parent with probability
// matchingFitterBias, or 50/50 when fitness is tied. Disjoint and excess genes
// come only from the fitter parent; when fitness is tied each one is kept on
// its own coin flip. The child's node set is the union of both parents' nodes.
// Without recurrent connections, an inherited gene that would close a cycle is
// kept but disabled.
func Crossover(rng *rand.Rand, childID int, parentA, parentB *Genome, matchingFitterBias float64) *Genome {
	fitter, other := parentA, parentB
	tied := parentA.Fitness == parentB.Fitness
	if parentB.Fitness > parentA.Fitness {
		fitter, other = parentB, parentA
	}

	child := NewGenome(childID, parentA.Config)

	nodes := make([]*NodeGene, 0, len(parentA.Nodes)+len(parentB.Nodes))
	for _, n := range parentA.Nodes {
		nodes = append(nodes, n.Copy())
	}
	for _, n := range parentB.Nodes {
		nodes = append(nodes, n.Copy())
	}
	unique.Slice(&nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	child.Nodes = nodes

	inherit := func(gene *ConnectionGene) {
		c := gene.Copy()
		if c.Enabled && !child.Config.RecurrentEnabled && createsCycle(child, c.Key.InNodeID, c.Key.OutNodeID) {
			c.Enabled = false
		}
		// Duplicate pairs cannot occur: the registry maps each pair to one innovation.
		_ = child.AddConnection(c)
	}
	fromFitter := func(parent *Genome) bool {
		if tied {
			return rng.Float64() < 0.5
		}
		return parent == fitter
	}

	a, b := fitter.Connections, other.Connections
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i].Innovation < b[j].Innovation):
			if fromFitter(fitter) {
				inherit(a[i])
			}
			i++
		case i >= len(a) || b[j].Innovation < a[i].Innovation:
			if fromFitter(other) {
				inherit(b[j])
			}
			j++
		default:
			bias := matchingFitterBias
			if tied {
				bias = 0.5
			}
			if rng.Float64() < bias {
				inherit(a[i])
			} else {
				inherit(b[j])
			}
			i++
			j++
		}
	}
	return child
}
