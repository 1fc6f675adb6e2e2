// Package search implements the memetic multi-objective search loop and
// the contracts it consumes: a problem (fitness/gradient/Hessian/bounds
// over a mixed real/integer decision vector), an algorithm, and a
// population. These mirror the external evolutionary-optimization host
// named out of scope by the core specification; this package is the one
// concrete implementation needed to make the search buildable and
// testable without that host.
package search

// Problem is the evolutionary host's problem contract: fitness, gradient,
// and Hessian over a decision vector, plus the metadata a generic
// multi-objective algorithm needs (bounds, integer-suffix length,
// objective count, sparsity patterns, name/extra info). It intentionally
// returns no errors, matching the host's own error-free calling
// convention: an invalid decision vector must still yield a usable (if
// non-finite) result.
type Problem interface {
	Fitness(x []float64) []float64
	Gradient(x []float64) []float64
	Hessians(x []float64) [][]float64
	GradientSparsity() [][2]int
	HessiansSparsity() [][][2]int
	Bounds() (lo, hi []float64)
	NumIntegerVars() int
	NumObjectives() int
	Name() string
	ExtraInfo() string
}

// GraphMutator is the narrower, dCGP-specific capability the memetic
// search needs beyond the generic Problem contract: mutating the integer
// (graph) suffix of a decision vector in place. A generic pagmo-style
// problem has no notion of this; it is specific to a problem backed by an
// Expression.
type GraphMutator interface {
	NumConstants() int
	MutateActiveGenes(genes []float64, k int) ([]float64, error)
}

// SymbolicProblem is the concrete capability MemeticMOSearch requires: a
// Problem that is also graph-mutable.
type SymbolicProblem interface {
	Problem
	GraphMutator
}

// GenerationRecord is one entry of an Algorithm's accumulated log.
type GenerationRecord struct {
	Generation      int
	FEvals          int
	IdealLoss       float64
	NDFSize         int
	NadirComplexity float64
}

// Algorithm is the evolutionary host's algorithm contract.
type Algorithm interface {
	Evolve(pop Population) (Population, error)
	SetSeed(seed uint64)
	SetVerbosity(v int)
	Log() []GenerationRecord
}

// Population is the evolutionary host's population contract: an ordered
// sequence of (x, f) pairs with non-dominated queries.
type Population interface {
	PushBack(x, f []float64)
	SetXF(i int, x, f []float64)
	GetX() [][]float64
	GetF() [][]float64
	Len() int
	NonDominatedFront() []int
	SelectBestNMO(n int) []int
	Ideal() []float64
	Nadir() []float64
}
