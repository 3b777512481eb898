package neat

import "math"

// GeneComparison is the result of aligning two genomes by innovation number.
type GeneComparison struct {
	Matching   int
	Disjoint   int
	Excess     int
	WeightDiff float64 // sum of |wA - wB| over matching genes
}

// CompareGenes walks the connection genes of a and b in innovation order.
// A gene missing from the other genome is excess when its innovation is above
// the other genome's highest innovation, and disjoint otherwise.
func CompareGenes(a, b *Genome) GeneComparison {
	var cmp GeneComparison
	maxA, maxB := a.MaxInnovation(), b.MaxInnovation()

	unmatched := func(innovation, otherMax int) {
		if innovation > otherMax {
			cmp.Excess++
		} else {
			cmp.Disjoint++
		}
	}

	i, j := 0, 0
	for i < len(a.Connections) || j < len(b.Connections) {
		switch {
		case j >= len(b.Connections):
			unmatched(a.Connections[i].Innovation, maxB)
			i++
		case i >= len(a.Connections):
			unmatched(b.Connections[j].Innovation, maxA)
			j++
		case a.Connections[i].Innovation == b.Connections[j].Innovation:
			cmp.Matching++
			cmp.WeightDiff += math.Abs(a.Connections[i].Weight - b.Connections[j].Weight)
			i++
			j++
		case a.Connections[i].Innovation < b.Connections[j].Innovation:
			unmatched(a.Connections[i].Innovation, maxB)
			i++
		default:
			unmatched(b.Connections[j].Innovation, maxA)
			j++
		}
	}
	return cmp
}

// Distance computes the compatibility distance between two genomes:
//
//	c1*E/N + c2*D/N + c3*W/max(M,1)
//
// where N is the gene count of the larger genome. N is 1 when both genomes
// are below CompatibilityNormalizeThreshold.
func Distance(a, b *Genome, config *GenomeConfig) float64 {
	cmp := CompareGenes(a, b)

	n := len(a.Connections)
	if len(b.Connections) > n {
		n = len(b.Connections)
	}
	if t := config.CompatibilityNormalizeThreshold; t > 0 && len(a.Connections) < t && len(b.Connections) < t {
		n = 1
	}
	if n < 1 {
		n = 1
	}

	matching := cmp.Matching
	if matching < 1 {
		matching = 1
	}

	return config.CompatibilityExcessCoefficient*float64(cmp.Excess)/float64(n) +
		config.CompatibilityDisjointCoefficient*float64(cmp.Disjoint)/float64(n) +
		config.CompatibilityWeightCoefficient*(cmp.WeightDiff/float64(matching))
}
