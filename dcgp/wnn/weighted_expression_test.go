package wnn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcgp-go/dcgp"
	"github.com/dcgp-go/dcgp/wnn"
)

// TestForwardBitExact reproduces the canonical single-chain network:
// (n=1, m=1, r=1, c=2, L=1, arity=1, kernels=[tanh]), weights=[0.1,0.2],
// biases=[0.3,0.4]. call([0.23])[0] must equal
// tanh(0.4 + 0.2*tanh(0.23*0.1+0.3)) to within 1e-13.
func TestForwardBitExact(t *testing.T) {
	ks, err := dcgp.NewKernelSet("tanh")
	require.NoError(t, err)
	expr, err := dcgp.NewExpression(1, 1, 1, 2, 1, dcgp.UniformArity(2, 1), ks, 1)
	require.NoError(t, err)

	// node1 (col0): tanh(x0); node2 (col1): tanh(node1); output selects node2.
	require.NoError(t, expr.Set([]uint{0, 0, 0, 1, 2}))

	we, err := wnn.New(expr)
	require.NoError(t, err)
	require.NoError(t, we.SetWeights([]float64{0.1, 0.2}))
	require.NoError(t, we.SetBiases([]float64{0.3, 0.4}))

	out, err := we.Call([]float64{0.23})
	require.NoError(t, err)

	want := math.Tanh(0.4 + 0.2*math.Tanh(0.23*0.1+0.3))
	require.InDelta(t, want, out[0], 1e-13)
}

// TestPrettyPrintAffineForm reuses the canonical single-chain network from
// TestForwardBitExact and checks the symbolic form emits each node's affine
// pre-combination (bN + wN_J*arg) wrapped by the kernel's name.
func TestPrettyPrintAffineForm(t *testing.T) {
	ks, err := dcgp.NewKernelSet("tanh")
	require.NoError(t, err)
	expr, err := dcgp.NewExpression(1, 1, 1, 2, 1, dcgp.UniformArity(2, 1), ks, 1)
	require.NoError(t, err)
	require.NoError(t, expr.Set([]uint{0, 0, 0, 1, 2}))

	we, err := wnn.New(expr)
	require.NoError(t, err)
	require.NoError(t, we.SetWeights([]float64{0.1, 0.2}))
	require.NoError(t, we.SetBiases([]float64{0.3, 0.4}))

	out, err := we.PrettyPrint()
	require.NoError(t, err)
	require.Equal(t, []string{"tanh(b2+w2_0*tanh(b1+w1_0*x0))"}, out)
}

// centralDiffWeight perturbs weight i by +-h and returns the central
// difference estimate of d(loss)/d(weight_i).
func centralDiffWeight(t *testing.T, we *wnn.WeightedExpression, point, label []float64, kind wnn.LossKind, i int, h float64) float64 {
	t.Helper()
	weights := we.Weights()
	weights[i] += h
	require.NoError(t, we.SetWeights(weights))
	lp, err := we.Loss(point, label, kind)
	require.NoError(t, err)

	weights[i] -= 2 * h
	require.NoError(t, we.SetWeights(weights))
	lm, err := we.Loss(point, label, kind)
	require.NoError(t, err)

	weights[i] += h
	require.NoError(t, we.SetWeights(weights))
	return (lp - lm) / (2 * h)
}

func centralDiffBias(t *testing.T, we *wnn.WeightedExpression, point, label []float64, kind wnn.LossKind, i int, h float64) float64 {
	t.Helper()
	biases := we.Biases()
	biases[i] += h
	require.NoError(t, we.SetBiases(biases))
	lp, err := we.Loss(point, label, kind)
	require.NoError(t, err)

	biases[i] -= 2 * h
	require.NoError(t, we.SetBiases(biases))
	lm, err := we.Loss(point, label, kind)
	require.NoError(t, err)

	biases[i] += h
	require.NoError(t, we.SetBiases(biases))
	return (lp - lm) / (2 * h)
}

// TestGradientAgreement reproduces the large-network gradient-agreement
// scenario: (n=1, m=1, r=100, c=3, L=10, arity=1, kernels=[ReLu]), random
// weights/biases, input 0.22, target 0.23. Every analytic d(mse)/dw must
// agree with central differences at h=1e-8 to within 20% relative error;
// zero analytic gradients must correspond to zero numeric gradients.
func TestGradientAgreement(t *testing.T) {
	ks, err := dcgp.NewKernelSet("ReLu")
	require.NoError(t, err)
	expr, err := dcgp.NewExpression(1, 1, 100, 3, 10, dcgp.UniformArity(3, 1), ks, 17)
	require.NoError(t, err)

	we, err := wnn.New(expr)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	weights := we.Weights()
	biases := we.Biases()
	for i := range weights {
		weights[i] = rng.Float64()*2 - 1
	}
	for i := range biases {
		biases[i] = rng.Float64()*2 - 1
	}
	require.NoError(t, we.SetWeights(weights))
	require.NoError(t, we.SetBiases(biases))

	point := []float64{0.22}
	label := []float64{0.23}

	_, gradWeights, gradBiases, err := we.DLoss(point, label, wnn.MSE)
	require.NoError(t, err)

	const h = 1e-8
	for i := range gradWeights {
		numeric := centralDiffWeight(t, we, point, label, wnn.MSE, i, h)
		if gradWeights[i] == 0 {
			require.InDelta(t, 0.0, numeric, 1e-4)
			continue
		}
		relErr := math.Abs(numeric-gradWeights[i]) / math.Abs(gradWeights[i])
		require.Less(t, relErr, 0.2)
	}
	for i := range gradBiases {
		numeric := centralDiffBias(t, we, point, label, wnn.MSE, i, h)
		if gradBiases[i] == 0 {
			require.InDelta(t, 0.0, numeric, 1e-4)
			continue
		}
		relErr := math.Abs(numeric-gradBiases[i]) / math.Abs(gradBiases[i])
		require.Less(t, relErr, 0.2)
	}
}

func TestNewRejectsNonDifferentiableKernels(t *testing.T) {
	ks, err := dcgp.NewKernelSet("sum")
	require.NoError(t, err)
	expr, err := dcgp.NewExpression(2, 1, 1, 1, 1, dcgp.UniformArity(1, 2), ks, 1)
	require.NoError(t, err)
	_, err = wnn.New(expr)
	require.Error(t, err)
}

func TestSGDValidatesArguments(t *testing.T) {
	ks, err := dcgp.NewKernelSet("tanh")
	require.NoError(t, err)
	expr, err := dcgp.NewExpression(1, 1, 1, 1, 1, dcgp.UniformArity(1, 1), ks, 1)
	require.NoError(t, err)
	we, err := wnn.New(expr)
	require.NoError(t, err)

	points := [][]float64{{1}, {2}}
	labels := [][]float64{{1}, {2}}
	require.Error(t, we.SGD(points, labels, 0, 1, wnn.MSE))
	require.Error(t, we.SGD(points, labels, 0.1, 0, wnn.MSE))
	require.Error(t, we.SGD(points, labels[:1], 0.1, 1, wnn.MSE))
	require.Error(t, we.SGD(points, labels, 0.1, 1, "bogus"))
}

func TestSGDReducesLossOnLinearTarget(t *testing.T) {
	ks, err := dcgp.NewKernelSet("tanh")
	require.NoError(t, err)
	expr, err := dcgp.NewExpression(1, 1, 2, 2, 2, dcgp.UniformArity(2, 1), ks, 9)
	require.NoError(t, err)
	we, err := wnn.New(expr)
	require.NoError(t, err)

	points := [][]float64{{0.1}, {-0.2}, {0.3}, {0.4}}
	labels := [][]float64{{0.2}, {-0.1}, {0.25}, {0.5}}

	before, err := we.BatchLoss(points, labels, wnn.MSE)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, we.SGD(points, labels, 0.5, 2, wnn.MSE))
	}
	after, err := we.BatchLoss(points, labels, wnn.MSE)
	require.NoError(t, err)
	require.Less(t, after, before)
}
