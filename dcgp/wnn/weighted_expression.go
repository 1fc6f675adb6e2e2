// Package wnn implements the neural (weighted/biased) extension of an
// expression graph: per-edge weights, per-node biases, a forward pass with
// affine pre-combination, full reverse-mode backpropagation, loss
// evaluation, and mini-batch stochastic gradient descent.
//
// Backpropagation here is a mechanism independent of the taylor package's
// forward-mode automatic differentiation: activation derivatives are
// hand-written closed forms (activationDerivative below), never obtained
// by evaluating a node through taylor.Element. The two derivative paths
// are kept deliberately separate.
package wnn

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dcgp-go/dcgp"
)

// LossKind selects the per-sample loss function.
type LossKind string

const (
	MSE LossKind = "mse"
	CE  LossKind = "ce"
)

// WeightedExpression extends an Expression with a weight per incoming edge
// and a bias per internal node, restricted to the differentiable
// activation kernels (tanh, sig, ReLu, ELU, ISRU).
type WeightedExpression struct {
	*dcgp.Expression

	weights []float64
	biases  []float64

	// weightStart[nodeID-n] is the index into weights of that node's first
	// incoming edge weight; its remaining weights are contiguous.
	weightStart []int
}

// New builds a WeightedExpression over expr, 1-initializing every weight
// and 0-initializing every bias. Fails with InvalidArgument if expr uses
// any kernel outside the differentiable activation set.
func New(expr *dcgp.Expression) (*WeightedExpression, error) {
	if err := expr.Kernels().Validate(dcgp.DifferentiableActivations()); err != nil {
		return nil, err
	}

	n, r, c := expr.NumInputs(), expr.Rows(), expr.Cols()
	weightStart := make([]int, r*c)
	total := 0
	for col := 0; col < c; col++ {
		for row := 0; row < r; row++ {
			nodeID := n + col*r + row
			weightStart[nodeID-n] = total
			total += expr.Arity(col)
		}
	}

	weights := make([]float64, total)
	for i := range weights {
		weights[i] = 1.0
	}

	return &WeightedExpression{
		Expression:  expr,
		weights:     weights,
		biases:      make([]float64, r*c),
		weightStart: weightStart,
	}, nil
}

// Weights returns a copy of the flat weight vector.
func (w *WeightedExpression) Weights() []float64 { return append([]float64(nil), w.weights...) }

// Biases returns a copy of the flat bias vector.
func (w *WeightedExpression) Biases() []float64 { return append([]float64(nil), w.biases...) }

// SetWeights replaces the weight vector; fails with InvalidArgument on a
// size mismatch.
func (w *WeightedExpression) SetWeights(weights []float64) error {
	if len(weights) != len(w.weights) {
		return dcgp.NewInvalidArgument("weights length", "must match the expression's edge count")
	}
	w.weights = append([]float64(nil), weights...)
	return nil
}

// SetBiases replaces the bias vector; fails with InvalidArgument on a size
// mismatch.
func (w *WeightedExpression) SetBiases(biases []float64) error {
	if len(biases) != len(w.biases) {
		return dcgp.NewInvalidArgument("biases length", "must match the internal node count")
	}
	w.biases = append([]float64(nil), biases...)
	return nil
}

// SetWeight sets a single weight by flat index.
func (w *WeightedExpression) SetWeight(i int, v float64) error {
	if i < 0 || i >= len(w.weights) {
		return dcgp.NewInvalidArgument("weight index", "out of range")
	}
	w.weights[i] = v
	return nil
}

// SetBias sets a single bias by flat index.
func (w *WeightedExpression) SetBias(i int, v float64) error {
	if i < 0 || i >= len(w.biases) {
		return dcgp.NewInvalidArgument("bias index", "out of range")
	}
	w.biases[i] = v
	return nil
}

// weightIndex returns the flat weight index of nodeID's a-th incoming edge.
func (w *WeightedExpression) weightIndex(nodeID, a int) int {
	return w.weightStart[nodeID-w.NumInputs()] + a
}

// activationDerivative evaluates the closed-form first derivative of a
// differentiable activation kernel, given its pre-activation z and its
// post-activation value (whichever the formula needs).
func activationDerivative(name string, z, value float64) float64 {
	switch name {
	case "tanh":
		return 1 - value*value
	case "sig":
		return value * (1 - value)
	case "ReLu":
		if z > 0 {
			return 1
		}
		return 0
	case "ELU":
		if z > 0 {
			return 1
		}
		return value + 1
	case "ISRU":
		return math.Pow(1+z*z, -1.5)
	default:
		return 0
	}
}

// forwardState holds the per-node scratch computed by a single forward
// pass, reused by the backward pass.
type forwardState struct {
	value map[int]float64 // node id -> post-activation output value
	z     map[int]float64 // internal node id -> pre-activation
	out   []float64       // per-output value, length m
}

func (w *WeightedExpression) forward(point []float64) (*forwardState, error) {
	if len(point) != w.NumInputs() {
		return nil, dcgp.NewInvalidArgument("point size", "must equal the number of inputs")
	}
	n := w.NumInputs()
	active := w.ActiveNodes()
	st := &forwardState{value: make(map[int]float64, len(active)), z: make(map[int]float64)}

	for _, node := range active {
		if node < n {
			st.value[node] = point[node]
			continue
		}
		col := w.NodeColumn(node)
		arity := w.Arity(col)
		z := w.biases[node-n]
		for a := 0; a < arity; a++ {
			src := w.ConnectionSource(node, a)
			z += w.weights[w.weightIndex(node, a)] * st.value[src]
		}
		value := w.Kernels().EvalFloat(w.FunctionIndex(node), []float64{z})
		st.z[node] = z
		st.value[node] = value
	}

	out := make([]float64, w.NumOutputs())
	for k := 0; k < w.NumOutputs(); k++ {
		out[k] = st.value[w.OutputSource(k)]
	}
	st.out = out
	return st, nil
}

// Call evaluates the weighted expression at a point, returning the output
// vector.
func (w *WeightedExpression) Call(point []float64) ([]float64, error) {
	st, err := w.forward(point)
	if err != nil {
		return nil, err
	}
	return st.out, nil
}

// PrettyPrint renders the symbolic form of every output, walking active
// nodes the same way forward does but emitting each node's affine
// pre-combination (bᵢ + wᵢ_0·arg0 + wᵢ_1·arg1 + …) wrapped as
// "name(...)" with the kernel's name (the kernel's Print is not used),
// using the stable variable names "bN" and "wN_J" for node N's bias and
// J-th incoming edge weight.
func (w *WeightedExpression) PrettyPrint() ([]string, error) {
	n := w.NumInputs()
	strs := make(map[int]string, len(w.ActiveNodes()))

	for _, node := range w.ActiveNodes() {
		if node < n {
			strs[node] = fmt.Sprintf("x%d", node)
			continue
		}
		col := w.NodeColumn(node)
		arity := w.Arity(col)
		terms := make([]string, 0, arity+1)
		terms = append(terms, fmt.Sprintf("b%d", node))
		for a := 0; a < arity; a++ {
			src := w.ConnectionSource(node, a)
			terms = append(terms, fmt.Sprintf("w%d_%d*%s", node, a, strs[src]))
		}
		affine := strings.Join(terms, "+")
		name := w.Kernels().Name(w.FunctionIndex(node))
		strs[node] = name + "(" + affine + ")"
	}

	out := make([]string, w.NumOutputs())
	for k := 0; k < w.NumOutputs(); k++ {
		out[k] = strs[w.OutputSource(k)]
	}
	return out, nil
}

// seedOutputs computes, for MSE or CE, the per-output loss value and the
// dL/d(output value) sensitivity seeded onto each selected node.
func seedOutputs(out, label []float64, kind LossKind) (loss float64, seed []float64, err error) {
	if len(out) != len(label) {
		return 0, nil, dcgp.NewInvalidArgument("label length", "must match the number of outputs")
	}
	seed = make([]float64, len(out))
	switch kind {
	case MSE:
		for i := range out {
			diff := out[i] - label[i]
			loss += diff * diff
			seed[i] = 2 * diff
		}
		return loss, seed, nil
	case CE:
		maxOut := out[0]
		for _, v := range out[1:] {
			if v > maxOut {
				maxOut = v
			}
		}
		sumExp := 0.0
		exps := make([]float64, len(out))
		for i, v := range out {
			exps[i] = math.Exp(v - maxOut)
			sumExp += exps[i]
		}
		for i := range out {
			p := exps[i] / sumExp
			seed[i] = p - label[i]
			loss -= label[i] * math.Log(p)
		}
		return loss, seed, nil
	default:
		return 0, nil, dcgp.NewInvalidArgument("loss kind", "must be \"mse\" or \"ce\"")
	}
}

// consumerEdge is one (consumer node, weight index) pair depending on a
// source node's output value.
type consumerEdge struct {
	consumer  int
	weightIdx int
}

// DLoss computes the single-sample loss and the gradient of that loss with
// respect to every weight and bias (zero for inactive edges/nodes).
func (w *WeightedExpression) DLoss(point, label []float64, kind LossKind) (loss float64, gradWeights, gradBiases []float64, err error) {
	st, err := w.forward(point)
	if err != nil {
		return 0, nil, nil, err
	}
	loss, seed, err := seedOutputs(st.out, label, kind)
	if err != nil {
		return 0, nil, nil, err
	}

	n := w.NumInputs()
	active := w.ActiveNodes()

	nodeSeed := make(map[int]float64)
	for k := 0; k < w.NumOutputs(); k++ {
		outNode := w.OutputSource(k)
		if outNode >= n {
			nodeSeed[outNode] += seed[k]
		}
	}

	consumers := make(map[int][]consumerEdge)
	for _, node := range active {
		if node < n {
			continue
		}
		col := w.NodeColumn(node)
		for a := 0; a < w.Arity(col); a++ {
			src := w.ConnectionSource(node, a)
			consumers[src] = append(consumers[src], consumerEdge{consumer: node, weightIdx: w.weightIndex(node, a)})
		}
	}

	descending := append([]int(nil), active...)
	sort.Sort(sort.Reverse(sort.IntSlice(descending)))

	gradWeights = make([]float64, len(w.weights))
	gradBiases = make([]float64, len(w.biases))
	dNode := make(map[int]float64)

	for _, node := range descending {
		if node < n {
			continue
		}
		sum := nodeSeed[node]
		for _, e := range consumers[node] {
			sum += w.weights[e.weightIdx] * dNode[e.consumer]
		}
		kernelName := w.Kernels().Name(w.FunctionIndex(node))
		delta := sum * activationDerivative(kernelName, st.z[node], st.value[node])
		dNode[node] = delta

		gradBiases[node-n] = delta
		col := w.NodeColumn(node)
		for a := 0; a < w.Arity(col); a++ {
			src := w.ConnectionSource(node, a)
			gradWeights[w.weightIndex(node, a)] = delta * st.value[src]
		}
	}

	return loss, gradWeights, gradBiases, nil
}

// Loss returns the single-sample loss at point against label.
func (w *WeightedExpression) Loss(point, label []float64, kind LossKind) (float64, error) {
	st, err := w.forward(point)
	if err != nil {
		return 0, err
	}
	loss, _, err := seedOutputs(st.out, label, kind)
	return loss, err
}

// BatchLoss averages the per-sample loss over a batch, evaluated with a
// bounded worker pool; the reduction sums per-index into a fixed-size
// accumulator slice so parallel and sequential runs agree bit-for-bit.
func (w *WeightedExpression) BatchLoss(points, labels [][]float64, kind LossKind) (float64, error) {
	if len(points) != len(labels) || len(points) == 0 {
		return 0, dcgp.NewInvalidArgument("dataset size", "points and labels must be non-empty and equal length")
	}
	partial := make([]float64, len(points))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range points {
		i := i
		g.Go(func() error {
			l, err := w.Loss(points[i], labels[i], kind)
			if err != nil {
				return err
			}
			partial[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0.0
	for _, l := range partial {
		total += l
	}
	return total / float64(len(points)), nil
}

// BatchDLoss averages loss and gradients over a batch, worker-parallel with
// a deterministic fixed-order (index-ordered) reduction.
func (w *WeightedExpression) BatchDLoss(points, labels [][]float64, kind LossKind) (loss float64, gradWeights, gradBiases []float64, err error) {
	if len(points) != len(labels) || len(points) == 0 {
		return 0, nil, nil, dcgp.NewInvalidArgument("dataset size", "points and labels must be non-empty and equal length")
	}
	type sample struct {
		loss float64
		gw   []float64
		gb   []float64
	}
	partial := make([]sample, len(points))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range points {
		i := i
		g.Go(func() error {
			l, gw, gb, err := w.DLoss(points[i], labels[i], kind)
			if err != nil {
				return err
			}
			partial[i] = sample{loss: l, gw: gw, gb: gb}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, nil, err
	}

	gradWeights = make([]float64, len(w.weights))
	gradBiases = make([]float64, len(w.biases))
	total := 0.0
	for _, s := range partial {
		total += s.loss
		for i, v := range s.gw {
			gradWeights[i] += v
		}
		for i, v := range s.gb {
			gradBiases[i] += v
		}
	}
	nf := float64(len(points))
	loss = total / nf
	for i := range gradWeights {
		gradWeights[i] /= nf
	}
	for i := range gradBiases {
		gradBiases[i] /= nf
	}
	return loss, gradWeights, gradBiases, nil
}

// SGD runs one epoch of mini-batch stochastic gradient descent over the
// dataset, in contiguous batches (a trailing short batch is allowed),
// updating weights and biases in place by x <- x - (lr/batchSize)*g.
func (w *WeightedExpression) SGD(points, labels [][]float64, lr float64, batchSize int, kind LossKind) error {
	if len(points) != len(labels) || len(points) == 0 {
		return dcgp.NewInvalidArgument("dataset size", "points and labels must be non-empty and equal length")
	}
	if lr <= 0 {
		return dcgp.NewInvalidArgument("lr", "must be > 0")
	}
	if batchSize <= 0 {
		return dcgp.NewInvalidArgument("batch_size", "must be > 0")
	}
	if kind != MSE && kind != CE {
		return dcgp.NewInvalidArgument("loss kind", "must be \"mse\" or \"ce\"")
	}

	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}
		_, gw, gb, err := w.BatchDLoss(points[start:end], labels[start:end], kind)
		if err != nil {
			return err
		}
		// BatchDLoss already averages the gradient over the batch; per
		// spec the update additionally scales by lr/batch_size.
		step := lr / float64(batchSize)
		for i := range w.weights {
			w.weights[i] -= step * gw[i]
		}
		for i := range w.biases {
			w.biases[i] -= step * gb[i]
		}
	}
	return nil
}
