package search_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcgp-go/dcgp"
	"github.com/dcgp-go/dcgp/gapop"
	"github.com/dcgp-go/dcgp/search"
	"github.com/dcgp-go/dcgp/symreg"
)

func quinticDataset() (points, labels [][]float64) {
	for i := -10; i <= 10; i++ {
		x := float64(i) / 10
		y := x*x*x*x*x - 2*x*x*x + x
		points = append(points, []float64{x})
		labels = append(labels, []float64{y})
	}
	return points, labels
}

func newQuinticSymbolicProblem(t *testing.T) *symreg.Problem {
	t.Helper()
	points, labels := quinticDataset()
	ks, err := dcgp.NewKernelSet("sum", "diff", "mul", "pdiv")
	require.NoError(t, err)
	p, err := symreg.New(1, 1, 1, 3, 4, 3, dcgp.UniformArity(4, 2), ks,
		points, labels, []float64{-5}, []float64{5}, 64, false, 1)
	require.NoError(t, err)
	return p
}

func seedPopulation(t *testing.T, p *symreg.Problem, n int, seed int64) *gapop.Population {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	lo, hi := p.Bounds()
	pop := gapop.New()
	for i := 0; i < n; i++ {
		x := make([]float64, len(lo))
		for j := range x {
			x[j] = lo[j] + rng.Float64()*(hi[j]-lo[j])
		}
		pop.PushBack(x, p.Fitness(x))
	}
	return pop
}

// TestEvolveMonotonicLoss reproduces spec scenario 6: over 100 generations of
// the memetic search with max_mut=2 on the Koza-quintic dataset, the ideal
// point's loss coordinate is non-increasing generation to generation.
func TestEvolveMonotonicLoss(t *testing.T) {
	p := newQuinticSymbolicProblem(t)
	pop := seedPopulation(t, p, 10, 42)

	alg := search.New(p, 1, 2, 7)
	alg.SetVerbosity(0)

	prevIdeal := pop.Ideal()[0]
	for g := 0; g < 100; g++ {
		result, err := alg.Evolve(pop)
		require.NoError(t, err)
		pop = result.(*gapop.Population)

		ideal := pop.Ideal()[0]
		require.LessOrEqual(t, ideal, prevIdeal+1e-9)
		prevIdeal = ideal
	}
}

// TestEvolveReturnsNonDominatedSubsetOfRequestedSize checks the
// non-domination property: a single generation's result is a non-dominated
// population of the same size as the input.
func TestEvolveReturnsNonDominatedSubsetOfRequestedSize(t *testing.T) {
	p := newQuinticSymbolicProblem(t)
	pop := seedPopulation(t, p, 8, 99)

	alg := search.New(p, 5, 2, 3)
	result, err := alg.Evolve(pop)
	require.NoError(t, err)

	require.Equal(t, 8, result.Len())
	require.Len(t, result.NonDominatedFront(), result.Len())
}

// TestEvolveRejectsDegenerateInputs checks the InvalidArgument guard on
// population size.
func TestEvolveRejectsDegenerateInputs(t *testing.T) {
	p := newQuinticSymbolicProblem(t)

	tooSmall := gapop.New()
	tooSmall.PushBack([]float64{0}, []float64{0, 0})
	alg := search.New(p, 1, 2, 1)
	_, err := alg.Evolve(tooSmall)
	require.Error(t, err)
}

// TestNewClampsNonPositiveMaxMut checks that a MemeticMOSearch built
// directly (bypassing config.Load's own validation) never panics on
// i % maxMut inside runGeneration.
func TestNewClampsNonPositiveMaxMut(t *testing.T) {
	p := newQuinticSymbolicProblem(t)
	pop := seedPopulation(t, p, 4, 5)

	alg := search.New(p, 1, 0, 1)
	_, err := alg.Evolve(pop)
	require.NoError(t, err)
}

// TestLogAccumulatesOneRecordPerGeneration checks the always-final-plus-
// periodic logging contract.
func TestLogAccumulatesOneRecordPerGeneration(t *testing.T) {
	p := newQuinticSymbolicProblem(t)
	pop := seedPopulation(t, p, 6, 11)

	alg := search.New(p, 4, 2, 2)
	alg.SetVerbosity(1)
	_, err := alg.Evolve(pop)
	require.NoError(t, err)

	log := alg.Log()
	require.Len(t, log, 4)
	for i, rec := range log {
		require.Equal(t, i+1, rec.Generation)
	}
}
