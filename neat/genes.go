package neat

import (
	"fmt"
	"math/rand"
)

// NodeKind is the closed set of roles a node gene can take.
type NodeKind int

const (
	InputNode NodeKind = iota
	HiddenNode
	OutputNode
	BiasNode
)

// String returns the name of the node kind.
func (k NodeKind) String() string {
	switch k {
	case InputNode:
		return "input"
	case HiddenNode:
		return "hidden"
	case OutputNode:
		return "output"
	case BiasNode:
		return "bias"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// AcceptsIncoming reports whether a connection may end at a node of this kind.
func (k NodeKind) AcceptsIncoming() bool {
	switch k {
	case HiddenNode, OutputNode:
		return true
	case InputNode, BiasNode:
		return false
	default:
		return false
	}
}

// IsSensor reports whether the node's value is supplied rather than computed.
func (k NodeKind) IsSensor() bool {
	switch k {
	case InputNode, BiasNode:
		return true
	case HiddenNode, OutputNode:
		return false
	default:
		return false
	}
}

// --------------------------- NodeGene ---------------------------

// NodeGene represents a node (neuron) in the neural network genome.
type NodeGene struct {
	ID   int
	Kind NodeKind
}

// String returns a string representation of the NodeGene.
func (ng *NodeGene) String() string {
	return fmt.Sprintf("NodeGene(ID: %d, Kind: %s)", ng.ID, ng.Kind)
}

// Copy creates a deep copy of the NodeGene.
func (ng *NodeGene) Copy() *NodeGene {
	return &NodeGene{ID: ng.ID, Kind: ng.Kind}
}

// --------------------------- ConnectionGene ---------------------------

// ConnectionKey identifies the structural position of a connection.
type ConnectionKey struct {
	InNodeID  int
	OutNodeID int
}

// ConnectionGene represents a connection between two nodes in the genome.
type ConnectionGene struct {
	Innovation int
	Key        ConnectionKey
	Weight     float64
	Enabled    bool
}

// String returns a string representation of the ConnectionGene.
func (cg *ConnectionGene) String() string {
	return fmt.Sprintf("ConnGene(Innov: %d, Key: %d->%d, Weight: %.3f, Enabled: %t)",
		cg.Innovation, cg.Key.InNodeID, cg.Key.OutNodeID, cg.Weight, cg.Enabled)
}

// Copy creates a deep copy of the ConnectionGene.
func (cg *ConnectionGene) Copy() *ConnectionGene {
	c := *cg
	return &c
}

// --------------------------- Attribute Helpers ---------------------------

// randomWeight draws a fresh weight uniformly from [-r, r].
func randomWeight(rng *rand.Rand, r float64) float64 {
	return (rng.Float64()*2 - 1) * r
}

// perturbWeight adds uniform noise in [-power, power] and clamps the result.
func perturbWeight(rng *rand.Rand, w, power, maxValue float64) float64 {
	w += (rng.Float64()*2 - 1) * power
	if maxValue > 0 {
		w = clamp(w, -maxValue, maxValue)
	}
	return w
}
