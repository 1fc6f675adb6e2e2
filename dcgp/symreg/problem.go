// Package symreg wraps an Expression with a reference dataset to expose a
// fitness, gradient, and Hessian over a mixed real/integer decision vector,
// satisfying the evolutionary host's Problem contract (see package
// search). Gradients and Hessians with respect to the embedded constants
// come from evaluating the Expression with the taylor package's degree-2
// elements - never from backpropagation, which is wnn's concern alone.
package symreg

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dcgp-go/dcgp"
	"github.com/dcgp-go/dcgp/taylor"
)

const defaultCacheSize = 256

// Problem wraps an Expression with a dataset, embedded constants, and an
// LRU fitness cache keyed on the decision vector's integer suffix.
type Problem struct {
	nIn, nE int
	points  [][]float64
	labels  [][]float64

	constLo, constHi []float64

	expr     *dcgp.Expression
	parallel bool

	cache *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	constants  []float64
	loss       float64
	complexity float64
	gradient   []float64 // length nE, dense
	hessian    []float64 // lower-triangular, length nE*(nE+1)/2
}

// New builds a symbolic-regression problem. nIn is the number of dataset
// input coordinates bound to the Expression's first nIn inputs; nE is the
// number of embedded real constants bound to the remaining inputs, so the
// Expression itself must have nIn+nE inputs. constLo/constHi bound the
// constants (length nE each). cacheSize <= 0 uses a small built-in default.
//
// Fails with InvalidArgument on empty points, mismatched point/label
// counts, ragged point or label rows, or anything NewExpression itself
// rejects (r=0, c=0, L=0, invalid arity, empty kernel set).
func New(nIn, nE, m, r, c, l int, arity []int, kernels *dcgp.KernelSet,
	points, labels [][]float64, constLo, constHi []float64, cacheSize int, parallel bool, seed uint64) (*Problem, error) {

	if len(points) == 0 {
		return nil, dcgp.NewInvalidArgument("points", "must be non-empty")
	}
	if len(points) != len(labels) {
		return nil, dcgp.NewInvalidArgument("points/labels", "must have the same length")
	}
	for i, p := range points {
		if len(p) != nIn {
			return nil, dcgp.NewInvalidArgument(fmt.Sprintf("points[%d]", i), "must have length n_in")
		}
	}
	for i, lab := range labels {
		if len(lab) != m {
			return nil, dcgp.NewInvalidArgument(fmt.Sprintf("labels[%d]", i), "must have length m")
		}
	}
	if len(constLo) != nE || len(constHi) != nE {
		return nil, dcgp.NewInvalidArgument("const bounds", "must have length n_e")
	}

	expr, err := dcgp.NewExpression(nIn+nE, m, r, c, l, arity, kernels, seed)
	if err != nil {
		return nil, err
	}

	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("building fitness cache: %w", err)
	}

	return &Problem{
		nIn: nIn, nE: nE,
		points: points, labels: labels,
		constLo: append([]float64(nil), constLo...),
		constHi: append([]float64(nil), constHi...),
		expr:     expr,
		parallel: parallel,
		cache:    cache,
	}, nil
}

// NumIntegerVars reports the integer-suffix length (get_nix): the
// Expression's chromosome length.
func (p *Problem) NumIntegerVars() int { return p.expr.Len() }

// NumConstants reports n_e, the number of embedded real constants.
func (p *Problem) NumConstants() int { return p.nE }

// MutateActiveGenes applies mutate_active(k) to the integer-gene suffix of
// a decision vector and returns the mutated genes (still real-cast). It is
// the one piece of the memetic search's graph-mutation step that must know
// about the Expression's chromosome; the rest of the search only sees the
// evolutionary host contract (Fitness/Gradient/Hessians/Bounds).
func (p *Problem) MutateActiveGenes(genes []float64, k int) ([]float64, error) {
	chromosome := chromosomeFromGenes(p, genes)
	if err := p.expr.Set(chromosome); err != nil {
		return nil, err
	}
	if err := p.expr.MutateActive(k); err != nil {
		return nil, err
	}
	mutated := p.expr.Chromosome()
	out := make([]float64, len(mutated))
	for i, g := range mutated {
		out[i] = float64(g)
	}
	return out, nil
}

// NumObjectives reports the fixed objective count: loss and complexity.
func (p *Problem) NumObjectives() int { return 2 }

// Bounds reports [lo, hi] for the full decision vector: the constant
// bounds followed by each graph gene's bound cast to float64.
func (p *Problem) Bounds() (lo, hi []float64) {
	lo = make([]float64, p.nE+p.expr.Len())
	hi = make([]float64, p.nE+p.expr.Len())
	copy(lo, p.constLo)
	copy(hi, p.constHi)
	for i := 0; i < p.expr.Len(); i++ {
		l, h := p.expr.GeneBounds(i)
		lo[p.nE+i] = float64(l)
		hi[p.nE+i] = float64(h)
	}
	return lo, hi
}

// Name reports a short identifier for logging/metadata.
func (p *Problem) Name() string { return "symbolic_regression" }

// ExtraInfo reports human-readable shape metadata.
func (p *Problem) ExtraInfo() string {
	return fmt.Sprintf("n_in=%d n_e=%d samples=%d chromosome_len=%d",
		p.nIn, p.nE, len(p.points), p.expr.Len())
}

func chromosomeFromGenes(p *Problem, genes []float64) []uint {
	chromosome := make([]uint, len(genes))
	for i, v := range genes {
		lo, hi := p.expr.GeneBounds(i)
		rounded := math.Round(v)
		if rounded < float64(lo) {
			rounded = float64(lo)
		}
		if rounded > float64(hi) {
			rounded = float64(hi)
		}
		chromosome[i] = uint(rounded)
	}
	return chromosome
}

func chromosomeKey(chromosome []uint) string {
	var b strings.Builder
	for i, g := range chromosome {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(g), 10))
	}
	return b.String()
}

func sameConstants(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hessianIndex(nE, i, j int) int {
	if i < j {
		i, j = j, i
	}
	return i*(i+1)/2 + j
}

// unitMultiIndex returns the degree-1 multi-index selecting d/dc_idx.
func unitMultiIndex(nE, idx int) []int {
	mi := make([]int, nE)
	mi[idx] = 1
	return mi
}

// pairMultiIndex returns the degree-2 multi-index selecting d2/dc_i dc_j.
func pairMultiIndex(nE, i, j int) []int {
	mi := make([]int, nE)
	if i == j {
		mi[i] = 2
	} else {
		mi[i]++
		mi[j]++
	}
	return mi
}

// evaluate computes (or retrieves from cache) the loss, complexity,
// gradient, and Hessian at decision vector x.
func (p *Problem) evaluate(x []float64) (cacheEntry, error) {
	if len(x) != p.nE+p.expr.Len() {
		return cacheEntry{}, dcgp.NewInvalidArgument("x length", "must equal n_e + chromosome length")
	}
	constants := x[:p.nE]
	genes := x[p.nE:]
	chromosome := chromosomeFromGenes(p, genes)
	key := chromosomeKey(chromosome)

	if entry, ok := p.cache.Get(key); ok && sameConstants(entry.constants, constants) {
		return entry, nil
	}

	if err := p.expr.Set(chromosome); err != nil {
		return cacheEntry{}, err
	}
	complexity := 0.0
	for _, node := range p.expr.ActiveNodes() {
		if node >= p.nIn+p.nE {
			complexity++
		}
	}

	type sampleResult struct {
		loss     float64
		gradient []float64
		hessian  []float64
	}
	results := make([]sampleResult, len(p.points))

	evalSample := func(i int) error {
		point := make([]taylor.Element, p.nIn+p.nE)
		for j := 0; j < p.nIn; j++ {
			point[j] = taylor.NewConstant(p.nE, p.points[i][j])
		}
		for j := 0; j < p.nE; j++ {
			point[p.nIn+j] = taylor.NewVariable(p.nE, j, constants[j])
		}
		out, err := p.expr.CallTaylor(point)
		if err != nil {
			return err
		}
		sum := taylor.NewConstant(p.nE, 0)
		for k, o := range out {
			diff := taylor.Sub(o, taylor.NewConstant(p.nE, p.labels[i][k]))
			sum = taylor.Add(sum, taylor.Mul(diff, diff))
		}
		grad := make([]float64, p.nE)
		for j := 0; j < p.nE; j++ {
			grad[j] = sum.GetDerivative(unitMultiIndex(p.nE, j))
		}
		hess := make([]float64, p.nE*(p.nE+1)/2)
		for i2 := 0; i2 < p.nE; i2++ {
			for j2 := 0; j2 <= i2; j2++ {
				hess[hessianIndex(p.nE, i2, j2)] = sum.GetDerivative(pairMultiIndex(p.nE, i2, j2))
			}
		}
		results[i] = sampleResult{loss: sum.ConstantCf(), gradient: grad, hessian: hess}
		return nil
	}

	if p.parallel {
		workers := runtime.GOMAXPROCS(0)
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range p.points {
			i := i
			g.Go(func() error { return evalSample(i) })
		}
		if err := g.Wait(); err != nil {
			return cacheEntry{}, err
		}
	} else {
		for i := range p.points {
			if err := evalSample(i); err != nil {
				return cacheEntry{}, err
			}
		}
	}

	loss := 0.0
	gradient := make([]float64, p.nE)
	hessian := make([]float64, p.nE*(p.nE+1)/2)
	for _, r := range results {
		loss += r.loss
		for j := range gradient {
			gradient[j] += r.gradient[j]
		}
		for j := range hessian {
			hessian[j] += r.hessian[j]
		}
	}
	nf := float64(len(p.points))
	loss /= nf
	for j := range gradient {
		gradient[j] /= nf
	}
	for j := range hessian {
		hessian[j] /= nf
	}

	entry := cacheEntry{
		constants:  append([]float64(nil), constants...),
		loss:       loss,
		complexity: complexity,
		gradient:   gradient,
		hessian:    hessian,
	}
	p.cache.Add(key, entry)
	return entry, nil
}

// Fitness returns [loss, complexity]. On an invalid decision vector it
// returns a non-finite fitness vector rather than erroring, consistent
// with the host contract's error-free signature; the memetic search
// discards non-finite candidates.
func (p *Problem) Fitness(x []float64) []float64 {
	entry, err := p.evaluate(x)
	if err != nil {
		return []float64{math.Inf(1), math.Inf(1)}
	}
	return []float64{entry.loss, entry.complexity}
}

// GradientSparsity reports the dense (objective 0, constant j) pairs; the
// complexity objective (1) has no gradient.
func (p *Problem) GradientSparsity() [][2]int {
	sp := make([][2]int, p.nE)
	for j := 0; j < p.nE; j++ {
		sp[j] = [2]int{0, j}
	}
	return sp
}

// Gradient returns the loss gradient with respect to the nE constants, in
// GradientSparsity order.
func (p *Problem) Gradient(x []float64) []float64 {
	entry, err := p.evaluate(x)
	if err != nil {
		return make([]float64, p.nE)
	}
	return entry.gradient
}

// HessiansSparsity reports, per objective, the lower-triangular (i, j)
// pairs over the nE constants; the complexity objective has none.
func (p *Problem) HessiansSparsity() [][][2]int {
	lossSparsity := make([][2]int, 0, p.nE*(p.nE+1)/2)
	for i := 0; i < p.nE; i++ {
		for j := 0; j <= i; j++ {
			lossSparsity = append(lossSparsity, [2]int{i, j})
		}
	}
	return [][][2]int{lossSparsity, nil}
}

// Hessians returns, per objective, the lower-triangular Hessian values in
// HessiansSparsity order; the complexity objective's slice is empty.
func (p *Problem) Hessians(x []float64) [][]float64 {
	entry, err := p.evaluate(x)
	if err != nil {
		return [][]float64{make([]float64, p.nE*(p.nE+1)/2), nil}
	}
	return [][]float64{entry.hessian, nil}
}

// Describe renders the symbolic form of the expression at x, with
// constants substituted as literal numbers rather than variable names.
func (p *Problem) Describe(x []float64) ([]string, error) {
	if len(x) != p.nE+p.expr.Len() {
		return nil, dcgp.NewInvalidArgument("x length", "must equal n_e + chromosome length")
	}
	constants := x[:p.nE]
	genes := x[p.nE:]
	chromosome := chromosomeFromGenes(p, genes)
	if err := p.expr.Set(chromosome); err != nil {
		return nil, err
	}
	vars := make([]string, p.nIn+p.nE)
	for i := 0; i < p.nIn; i++ {
		vars[i] = "x" + strconv.Itoa(i)
	}
	for i := 0; i < p.nE; i++ {
		vars[p.nIn+i] = strconv.FormatFloat(constants[i], 'g', -1, 64)
	}
	return p.expr.CallString(vars)
}
