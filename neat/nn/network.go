// Package nn builds evaluable networks (phenotypes) from NEAT genomes.
package nn

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/baldhumanity/neat-evo/neat"
)

// ErrInputCount is returned by Compute when the number of inputs does not
// match the number of input nodes.
var ErrInputCount = errors.New("input count mismatch")

// Network is an evaluable phenotype.
type Network interface {
	// Compute feeds one input vector through the network and returns the
	// output node values, ordered by output node id.
	Compute(inputs []float64) ([]float64, error)
	// Reset clears any state carried between Compute calls.
	Reset()
	// Recurrent reports whether the network is evaluated by relaxation.
	Recurrent() bool
}

// Options control how a genome is turned into a network.
type Options struct {
	Activation           neat.ActivationFunc // defaults to neat.Sigmoid
	Steepness            float64
	Recurrent            bool // cycles are expected; otherwise they are logged as a fallback
	RelaxationIterations int
	CarryState           bool // keep node values between Compute calls of a relaxation network
	Logger               *slog.Logger
}

// OptionsFromConfig derives network options from a genome configuration.
func OptionsFromConfig(config *neat.GenomeConfig) (Options, error) {
	act, err := neat.GetActivation(config.Activation)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Activation:           act,
		Steepness:            config.ActivationSteepness,
		Recurrent:            config.RecurrentEnabled,
		RelaxationIterations: config.RelaxationIterations,
		CarryState:           config.RecurrentMemory,
	}, nil
}

type link struct {
	from   int // index into the unit slice
	weight float64
}

type unit struct {
	id       int
	kind     neat.NodeKind
	incoming []link
}

// topology is the arena shared by both network kinds: units in id order,
// connections resolved to unit indices.
type topology struct {
	units   []unit
	inputs  []int // unit indices of input nodes, by id
	outputs []int // unit indices of output nodes, by id
	act     neat.ActivationFunc
	k       float64
}

// New builds a network from the enabled connections of g. An acyclic topology
// yields a FeedForwardNetwork; a cyclic one yields a RecurrentNetwork.
func New(g *neat.Genome, opts Options) (Network, error) {
	if opts.Activation == nil {
		opts.Activation = neat.Sigmoid
	}
	if opts.RelaxationIterations <= 0 {
		opts.RelaxationIterations = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t := &topology{
		units: make([]unit, len(g.Nodes)),
		act:   opts.Activation,
		k:     opts.Steepness,
	}
	index := make(map[int]int, len(g.Nodes))
	for i, n := range g.Nodes {
		t.units[i] = unit{id: n.ID, kind: n.Kind}
		index[n.ID] = i
		switch n.Kind {
		case neat.InputNode:
			t.inputs = append(t.inputs, i)
		case neat.OutputNode:
			t.outputs = append(t.outputs, i)
		case neat.BiasNode, neat.HiddenNode:
		}
	}

	dg := simple.NewDirectedGraph()
	for _, n := range g.Nodes {
		dg.AddNode(simple.Node(n.ID))
	}
	cyclic := false
	for _, c := range g.Connections {
		if !c.Enabled {
			continue
		}
		from, ok := index[c.Key.InNodeID]
		if !ok {
			return nil, fmt.Errorf("genome %d: connection %d references unknown node %d", g.ID, c.Innovation, c.Key.InNodeID)
		}
		to, ok := index[c.Key.OutNodeID]
		if !ok {
			return nil, fmt.Errorf("genome %d: connection %d references unknown node %d", g.ID, c.Innovation, c.Key.OutNodeID)
		}
		if t.units[to].kind.IsSensor() {
			return nil, fmt.Errorf("genome %d: connection %d ends at %s node %d", g.ID, c.Innovation, t.units[to].kind, c.Key.OutNodeID)
		}
		t.units[to].incoming = append(t.units[to].incoming, link{from: from, weight: c.Weight})

		// The graph rejects self-edges; a self-loop is a cycle on its own.
		if from == to {
			cyclic = true
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(c.Key.InNodeID), simple.Node(c.Key.OutNodeID)))
	}

	if !cyclic {
		sorted, err := topo.SortStabilized(dg, nil)
		if err == nil {
			order := make([]int, 0, len(sorted))
			for _, n := range sorted {
				if i := index[int(n.ID())]; !t.units[i].kind.IsSensor() {
					order = append(order, i)
				}
			}
			return &FeedForwardNetwork{topology: t, order: order}, nil
		}
		cyclic = true
	}

	if !opts.Recurrent {
		opts.Logger.Warn("cycle in feed-forward genome, falling back to relaxation",
			"genome", g.ID, "iterations", opts.RelaxationIterations)
	}
	return newRecurrentNetwork(t, opts.RelaxationIterations, opts.CarryState), nil
}

func (t *topology) checkInputs(inputs []float64) error {
	if len(inputs) != len(t.inputs) {
		return fmt.Errorf("%w: got %d values for %d input nodes", ErrInputCount, len(inputs), len(t.inputs))
	}
	return nil
}

// load writes the sensor values: inputs in id order, 1.0 for bias nodes.
func (t *topology) load(values, inputs []float64) {
	for i, u := range t.inputs {
		values[u] = inputs[i]
	}
	for i := range t.units {
		if t.units[i].kind == neat.BiasNode {
			values[i] = 1.0
		}
	}
}

// activate computes one unit's output from the given source values.
func (t *topology) activate(u *unit, values []float64) float64 {
	sum := 0.0
	for _, l := range u.incoming {
		sum += values[l.from] * l.weight
	}
	return t.act(sum, t.k)
}

func (t *topology) collect(values []float64) []float64 {
	out := make([]float64, len(t.outputs))
	for i, u := range t.outputs {
		out[i] = values[u]
	}
	return out
}
