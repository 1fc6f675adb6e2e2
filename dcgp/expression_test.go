package dcgp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcgp-go/dcgp"
)

func mustKernelSet(t *testing.T, names ...string) *dcgp.KernelSet {
	t.Helper()
	ks, err := dcgp.NewKernelSet(names...)
	require.NoError(t, err)
	return ks
}

// TestExpressionGrammarCheck reproduces a minimal single-node grid: 2
// inputs, 2 outputs, 1 row, 1 column, levels-back 1, arity 2, kernels
// [sum, diff, mul, div]. The only node computes sum(x1, x1) == 2*x1, and
// both outputs select it, reproducing call([1,1]) == [2,2] and
// call([1,0]) == [0,0].
func TestExpressionGrammarCheck(t *testing.T) {
	ks := mustKernelSet(t, "sum", "diff", "mul", "div")
	expr, err := dcgp.NewExpression(2, 2, 1, 1, 1, dcgp.UniformArity(1, 2), ks, 42)
	require.NoError(t, err)

	chromosome := []uint{
		0, 1, 1, // node 2: sum(x1, x1)
		2, 2, // both outputs select node 2
	}
	require.Equal(t, expr.Len(), len(chromosome))

	err = expr.Set(chromosome)
	require.NoError(t, err)

	out, err := expr.CallFloat([]float64{1, 1})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{2, 2}, out, 1e-12)

	out, err = expr.CallFloat([]float64{1, 0})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0, 0}, out, 1e-12)
}

// TestExpressionProtectedDivision checks that pdiv returns 1 rather than
// +Inf/NaN when the denominator is within pdivEpsilon of zero, and behaves
// like ordinary division otherwise.
func TestExpressionProtectedDivision(t *testing.T) {
	ks := mustKernelSet(t, "pdiv")
	expr, err := dcgp.NewExpression(1, 1, 1, 1, 1, dcgp.UniformArity(1, 2), ks, 7)
	require.NoError(t, err)

	// single node: pdiv(x0, x0); output selects that node.
	chromosome := []uint{0, 0, 0, 1}
	require.NoError(t, expr.Set(chromosome))

	out, err := expr.CallFloat([]float64{0})
	require.NoError(t, err)
	require.InDelta(t, 1.0, out[0], 1e-12)

	out, err = expr.CallFloat([]float64{5})
	require.NoError(t, err)
	require.InDelta(t, 1.0, out[0], 1e-12)
}

func TestNewExpressionValidatesArguments(t *testing.T) {
	ks := mustKernelSet(t, "sum")
	_, err := dcgp.NewExpression(0, 1, 1, 1, 1, dcgp.UniformArity(1, 1), ks, 1)
	require.Error(t, err)

	_, err = dcgp.NewExpression(1, 1, 1, 1, 1, dcgp.UniformArity(1, 1), nil, 1)
	require.Error(t, err)

	_, err = dcgp.NewExpression(1, 1, 1, 1, 1, []int{0}, ks, 1)
	require.Error(t, err)
}

// TestExpressionValidityClosedUnderMutation exercises every mutation
// operator across many iterations and checks the chromosome always stays
// within its declared gene bounds - i.e. validity is closed under mutation.
func TestExpressionValidityClosedUnderMutation(t *testing.T) {
	ks := mustKernelSet(t, "sum", "diff", "mul", "pdiv", "tanh")
	expr, err := dcgp.NewExpression(3, 2, 4, 5, 2, dcgp.UniformArity(5, 2), ks, 123)
	require.NoError(t, err)

	ops := []func() error{
		func() error { return expr.MutateGene() },
		func() error { return expr.MutateGenes(3) },
		func() error { return expr.MutateRandom(5) },
		func() error { return expr.MutateActive(2) },
		func() error { return expr.MutateActiveFgene(2) },
		func() error { return expr.MutateActiveCgene(2) },
		func() error { return expr.MutateOutputGene(1) },
	}

	for i := 0; i < 200; i++ {
		op := ops[i%len(ops)]
		require.NoError(t, op())
		chromosome := expr.Chromosome()
		for pos, g := range chromosome {
			lo, hi := expr.GeneBounds(pos)
			require.GreaterOrEqual(t, g, lo)
			require.LessOrEqual(t, g, hi)
		}
	}
}

// TestExpressionActiveSetStability checks that recomputing the active set
// from an unchanged chromosome is idempotent.
func TestExpressionActiveSetStability(t *testing.T) {
	ks := mustKernelSet(t, "sum", "diff", "mul")
	expr, err := dcgp.NewExpression(2, 1, 3, 3, 1, dcgp.UniformArity(3, 2), ks, 99)
	require.NoError(t, err)

	before := expr.ActiveNodes()
	require.NoError(t, expr.Set(expr.Chromosome()))
	after := expr.ActiveNodes()
	require.Equal(t, before, after)
}

// TestExpressionEvaluationDeterminism checks that repeated evaluation of
// an unchanged expression at the same point always returns the same
// result.
func TestExpressionEvaluationDeterminism(t *testing.T) {
	ks := mustKernelSet(t, "sum", "diff", "mul", "div", "sin", "cos")
	expr, err := dcgp.NewExpression(3, 2, 4, 4, 2, dcgp.UniformArity(4, 2), ks, 55)
	require.NoError(t, err)

	point := []float64{1.5, -0.3, 2.7}
	first, err := expr.CallFloat(point)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := expr.CallFloat(point)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestExpressionCallFloatRejectsWrongArity(t *testing.T) {
	ks := mustKernelSet(t, "sum")
	expr, err := dcgp.NewExpression(2, 1, 1, 1, 1, dcgp.UniformArity(1, 2), ks, 1)
	require.NoError(t, err)
	_, err = expr.CallFloat([]float64{1, 2, 3})
	require.Error(t, err)
}

func TestExpressionSetOutputFunction(t *testing.T) {
	ks := mustKernelSet(t, "sum", "sig")
	expr, err := dcgp.NewExpression(2, 1, 2, 2, 1, dcgp.UniformArity(2, 2), ks, 3)
	require.NoError(t, err)
	require.NoError(t, expr.SetOutputFunction(1))
	out, err := expr.PrettyPrint()
	require.NoError(t, err)
	require.Contains(t, out[0], "sig(")
}
