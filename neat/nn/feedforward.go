package nn

// FeedForwardNetwork evaluates an acyclic topology in one pass over a
// topological order computed once at construction. It carries no state
// between calls and is safe for concurrent use.
type FeedForwardNetwork struct {
	*topology
	order []int // non-sensor unit indices in evaluation order
}

// Compute computes the network's output for a given slice of input values.
// The input slice must match the number of input nodes.
func (net *FeedForwardNetwork) Compute(inputs []float64) ([]float64, error) {
	if err := net.checkInputs(inputs); err != nil {
		return nil, err
	}

	values := make([]float64, len(net.units))
	net.load(values, inputs)
	for _, i := range net.order {
		values[i] = net.activate(&net.units[i], values)
	}
	return net.collect(values), nil
}

// Reset is a no-op; a feed-forward network has no carried state.
func (net *FeedForwardNetwork) Reset() {}

// Recurrent returns false.
func (net *FeedForwardNetwork) Recurrent() bool { return false }
