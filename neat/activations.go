package neat

import (
	"fmt"
	"math"
	"sort"
)

// ActivationFunc maps a node's weighted input sum to its output value.
// Steepness is only used by functions that have a slope parameter.
type ActivationFunc func(x, steepness float64) float64

// ActivationFunctions maps function names to the actual activation functions.
// This allows configuration to specify activations by name.
var ActivationFunctions = map[string]ActivationFunc{
	"sigmoid":  Sigmoid,
	"tanh":     Tanh,
	"relu":     ReLU,
	"identity": Identity,
	"linear":   Identity, // alias for identity
	"clamped":  Clamped,
	"gaussian": Gaussian,
}

// GetActivation retrieves an activation function by name.
func GetActivation(name string) (ActivationFunc, error) {
	if fn, ok := ActivationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown activation function: %s (known: %v)", name, ActivationNames())
}

// ActivationNames returns the registered activation names in sorted order.
func ActivationNames() []string {
	names := make([]string, 0, len(ActivationFunctions))
	for name := range ActivationFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- Activation Function Implementations ---

// Sigmoid is the logistic function 1 / (1 + exp(-k*x)) with steepness k.
func Sigmoid(x, steepness float64) float64 {
	z := clamp(steepness*x, -60.0, 60.0)
	return 1.0 / (1.0 + math.Exp(-z))
}

// Tanh activation function.
func Tanh(x, _ float64) float64 {
	return math.Tanh(x)
}

// ReLU (Rectified Linear Unit) activation function.
func ReLU(x, _ float64) float64 {
	return math.Max(0, x)
}

// Identity activation function (linear).
func Identity(x, _ float64) float64 {
	return x
}

// Clamped activation function (clamps output between -1 and 1).
func Clamped(x, _ float64) float64 {
	return clamp(x, -1.0, 1.0)
}

// Gaussian activation function.
func Gaussian(x, _ float64) float64 {
	return math.Exp(-x * x / 2.0)
}
