package nn

// RecurrentNetwork evaluates a topology that may contain cycles by a fixed
// number of relaxation iterations per Compute call. In each iteration every
// node recomputes its value from the previous iteration's values.
//
// With carried state, node values survive between Compute calls until Reset.
// A RecurrentNetwork is not safe for concurrent use.
type RecurrentNetwork struct {
	*topology
	iterations int
	carry      bool
	values     []float64
	next       []float64
}

func newRecurrentNetwork(t *topology, iterations int, carry bool) *RecurrentNetwork {
	return &RecurrentNetwork{
		topology:   t,
		iterations: iterations,
		carry:      carry,
		values:     make([]float64, len(t.units)),
		next:       make([]float64, len(t.units)),
	}
}

// Compute runs the relaxation iterations for one input vector.
func (net *RecurrentNetwork) Compute(inputs []float64) ([]float64, error) {
	if err := net.checkInputs(inputs); err != nil {
		return nil, err
	}
	if !net.carry {
		net.Reset()
	}

	net.load(net.values, inputs)
	for it := 0; it < net.iterations; it++ {
		copy(net.next, net.values)
		for i := range net.units {
			if net.units[i].kind.IsSensor() {
				continue
			}
			net.next[i] = net.activate(&net.units[i], net.values)
		}
		net.values, net.next = net.next, net.values
	}
	return net.collect(net.values), nil
}

// Reset sets every node value back to zero.
func (net *RecurrentNetwork) Reset() {
	for i := range net.values {
		net.values[i] = 0
	}
}

// Recurrent returns true.
func (net *RecurrentNetwork) Recurrent() bool { return true }
