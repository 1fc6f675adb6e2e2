package dcgp

import (
	"math/rand"
	"sort"
	"strconv"

	"github.com/dcgp-go/dcgp/taylor"
)

// Expression is the grid-encoded DAG described by the data model: n inputs,
// m outputs, r rows by c columns of internal nodes, with a levels-back
// parameter L bounding how far back a connection gene may reach. Node
// values during evaluation are never heap-linked objects; they live in a
// dense array indexed by node id (see callGeneric), and the graph topology is
// entirely carried by the chromosome.
type Expression struct {
	n, m, r, c, l int
	arity         []int // length c
	kernels       *KernelSet
	rng           *rand.Rand

	chromosome []uint
	geneLower  []uint
	geneUpper  []uint
	// geneNode[i] is the node id owning gene i (function or connection gene);
	// -1 for output genes.
	geneNode []int
	// geneIsFunc[i] is true iff gene i is a function gene.
	geneIsFunc []bool
	// funcGenePos[k] / connGenePosStart[k] index by internal-node offset
	// (nodeID - n).
	funcGenePos      []int
	connGenePosStart []int
	outGenePos       []int // length m

	active      []int // sorted active node ids
	activeGenes []int // sorted active gene positions
}

// UniformArity broadcasts a single arity value across c columns, resolving
// the scalar-vs-per-column ambiguity in the original source by treating the
// scalar case as the vector case applied uniformly to every column.
func UniformArity(c, arity int) []int {
	out := make([]int, c)
	for i := range out {
		out[i] = arity
	}
	return out
}

// NewExpression constructs an Expression with uniformly random genes. It
// fails with InvalidArgument when n, m, r, c, or l is zero, any column
// arity is below 1, or kernels is empty.
func NewExpression(n, m, r, c, l int, arity []int, kernels *KernelSet, seed uint64) (*Expression, error) {
	if n == 0 {
		return nil, NewInvalidArgument("n", "must be > 0")
	}
	if m == 0 {
		return nil, NewInvalidArgument("m", "must be > 0")
	}
	if r == 0 {
		return nil, NewInvalidArgument("r", "must be > 0")
	}
	if c == 0 {
		return nil, NewInvalidArgument("c", "must be > 0")
	}
	if l == 0 {
		return nil, NewInvalidArgument("L", "must be > 0")
	}
	if len(arity) != c {
		return nil, NewInvalidArgument("arity", "must have length c")
	}
	for _, a := range arity {
		if a < 1 {
			return nil, NewInvalidArgument("arity", "every column arity must be >= 1")
		}
	}
	if kernels == nil || kernels.Len() == 0 {
		return nil, NewInvalidArgument("kernels", "must be non-empty")
	}

	e := &Expression{
		n: n, m: m, r: r, c: c, l: l,
		arity:   append([]int(nil), arity...),
		kernels: kernels,
		rng:     rand.New(rand.NewSource(int64(seed))),
	}
	e.layout()

	chromosome := make([]uint, len(e.geneLower))
	for i := range chromosome {
		chromosome[i] = e.randomGene(i)
	}
	if err := e.Set(chromosome); err != nil {
		return nil, err
	}
	return e, nil
}

// layout precomputes, for every gene position, its owning node / kind and
// its bound, plus the index tables used to locate a node's genes quickly.
func (e *Expression) layout() {
	n, r, c := e.n, e.r, e.c
	numInternal := r * c

	e.funcGenePos = make([]int, numInternal)
	e.connGenePosStart = make([]int, numInternal)
	e.outGenePos = make([]int, e.m)

	total := 0
	for col := 0; col < c; col++ {
		total += r * (e.arity[col] + 1)
	}
	total += e.m

	e.geneLower = make([]uint, total)
	e.geneUpper = make([]uint, total)
	e.geneNode = make([]int, total)
	e.geneIsFunc = make([]bool, total)

	K := uint(e.kernels.Len())
	pos := 0
	for col := 0; col < c; col++ {
		lower, upper := e.columnConnectionBound(col)
		for row := 0; row < r; row++ {
			nodeID := n + col*r + row
			offset := nodeID - n

			e.funcGenePos[offset] = pos
			e.geneLower[pos] = 0
			e.geneUpper[pos] = K - 1
			e.geneNode[pos] = nodeID
			e.geneIsFunc[pos] = true
			pos++

			e.connGenePosStart[offset] = pos
			for a := 0; a < e.arity[col]; a++ {
				e.geneLower[pos] = lower
				e.geneUpper[pos] = upper
				e.geneNode[pos] = nodeID
				e.geneIsFunc[pos] = false
				pos++
			}
		}
	}

	outLower, outUpper := e.columnConnectionBound(c) // virtual column c
	for k := 0; k < e.m; k++ {
		e.outGenePos[k] = pos
		e.geneLower[pos] = outLower
		e.geneUpper[pos] = outUpper
		e.geneNode[pos] = -1
		e.geneIsFunc[pos] = false
		pos++
	}
}

// columnConnectionBound returns the [lower, upper] bound for a connection
// gene feeding column col (col == c is the virtual output column): the
// upper bound is the last node of column col-1 (or the last input if
// col==0); the lower bound is the first node of column col-L when
// col >= L, and 0 (the first input) when col < L, permitting skip
// connections within L columns and forbidding forward references (hence
// cycles).
func (e *Expression) columnConnectionBound(col int) (lower, upper uint) {
	n, r, l := e.n, e.r, e.l
	if col == 0 {
		upper = uint(n - 1)
	} else {
		upper = uint(n + col*r - 1)
	}
	if col < l {
		lower = 0
	} else {
		lower = uint(n + (col-l)*r)
	}
	return lower, upper
}

func (e *Expression) randomGene(pos int) uint {
	lo, hi := e.geneLower[pos], e.geneUpper[pos]
	return lo + uint(e.rng.Int63n(int64(hi-lo+1)))
}

// NumInputs, NumOutputs, Rows, Cols, LevelsBack expose the grid shape.
func (e *Expression) NumInputs() int   { return e.n }
func (e *Expression) NumOutputs() int  { return e.m }
func (e *Expression) Rows() int        { return e.r }
func (e *Expression) Cols() int        { return e.c }
func (e *Expression) LevelsBack() int  { return e.l }
func (e *Expression) Arity(col int) int { return e.arity[col] }
func (e *Expression) Kernels() *KernelSet { return e.kernels }
func (e *Expression) Len() int         { return len(e.geneLower) }

// Chromosome returns a copy of the current gene sequence.
func (e *Expression) Chromosome() []uint {
	return append([]uint(nil), e.chromosome...)
}

// GeneBounds returns the inclusive [lower, upper] bound of gene i.
func (e *Expression) GeneBounds(i int) (uint, uint) { return e.geneLower[i], e.geneUpper[i] }

// NodeColumn returns the column of an internal node id.
func (e *Expression) NodeColumn(nodeID int) int { return (nodeID - e.n) / e.r }

// FunctionGenePos returns the chromosome index of nodeID's function gene.
func (e *Expression) FunctionGenePos(nodeID int) int { return e.funcGenePos[nodeID-e.n] }

// ConnectionGenePos returns the chromosome index of nodeID's a-th
// connection gene.
func (e *Expression) ConnectionGenePos(nodeID, a int) int {
	return e.connGenePosStart[nodeID-e.n] + a
}

// OutputGenePos returns the chromosome index of the k-th output selector.
func (e *Expression) OutputGenePos(k int) int { return e.outGenePos[k] }

// FunctionIndex returns the kernel-set index selected by nodeID's function
// gene.
func (e *Expression) FunctionIndex(nodeID int) int {
	return int(e.chromosome[e.funcGenePos[nodeID-e.n]])
}

// ConnectionSource returns the node id feeding nodeID's a-th input.
func (e *Expression) ConnectionSource(nodeID, a int) int {
	return int(e.chromosome[e.connGenePosStart[nodeID-e.n]+a])
}

// OutputSource returns the node id selected by the k-th output.
func (e *Expression) OutputSource(k int) int {
	return int(e.chromosome[e.outGenePos[k]])
}

// ActiveNodes returns a sorted copy of the current active-node set.
func (e *Expression) ActiveNodes() []int { return append([]int(nil), e.active...) }

// ActiveGenes returns a sorted copy of the current active-gene positions.
func (e *Expression) ActiveGenes() []int { return append([]int(nil), e.activeGenes...) }

// validChromosome checks length and per-gene bounds.
func (e *Expression) validChromosome(chromosome []uint) error {
	if len(chromosome) != len(e.geneLower) {
		return NewInvalidArgument("chromosome length", "must equal "+strconv.Itoa(len(e.geneLower)))
	}
	for i, g := range chromosome {
		if g < e.geneLower[i] || g > e.geneUpper[i] {
			return NewInvalidArgument("gene "+strconv.Itoa(i), "out of bounds ["+
				strconv.FormatUint(uint64(e.geneLower[i]), 10)+", "+strconv.FormatUint(uint64(e.geneUpper[i]), 10)+"]")
		}
	}
	return nil
}

// Set replaces the chromosome after validating it, and recomputes the
// active-node / active-gene sets. Fails with InvalidArgument on wrong
// length or any out-of-bound gene; no partial update is committed.
func (e *Expression) Set(chromosome []uint) error {
	if err := e.validChromosome(chromosome); err != nil {
		return err
	}
	e.chromosome = append([]uint(nil), chromosome...)
	e.refreshActive()
	return nil
}

// refreshActive recomputes the active-node set via backward BFS from the
// output selectors, and derives the active-gene set from it. The result is
// a pure function of the chromosome: re-running it is idempotent.
func (e *Expression) refreshActive() {
	seen := make(map[int]bool)
	var frontier []int
	for k := 0; k < e.m; k++ {
		seen[int(e.chromosome[e.outGenePos[k]])] = true
		frontier = append(frontier, int(e.chromosome[e.outGenePos[k]]))
	}

	for len(frontier) > 0 {
		var next []int
		for _, node := range frontier {
			if node < e.n {
				continue // terminal input, already recorded
			}
			for a := 0; a < e.arity[e.NodeColumn(node)]; a++ {
				src := int(e.chromosome[e.ConnectionGenePos(node, a)])
				if !seen[src] {
					seen[src] = true
					next = append(next, src)
				}
			}
		}
		frontier = next
	}

	active := make([]int, 0, len(seen))
	for node := range seen {
		active = append(active, node)
	}
	sort.Ints(active)
	e.active = active

	genes := make(map[int]bool)
	for k := 0; k < e.m; k++ {
		genes[e.outGenePos[k]] = true
	}
	for _, node := range active {
		if node < e.n {
			continue
		}
		genes[e.FunctionGenePos(node)] = true
		for a := 0; a < e.arity[e.NodeColumn(node)]; a++ {
			genes[e.ConnectionGenePos(node, a)] = true
		}
	}
	activeGenes := make([]int, 0, len(genes))
	for g := range genes {
		activeGenes = append(activeGenes, g)
	}
	sort.Ints(activeGenes)
	e.activeGenes = activeGenes
}

// callGeneric walks the active nodes in ascending order and materializes
// node values in a dense array indexed by node id, dispatching each
// internal node's function gene through eval. This single generic core
// backs CallFloat, CallTaylor, and CallString (monomorphized per element
// type) without any node-object inheritance.
func callGeneric[E any](e *Expression, point []E, eval func(kernelIdx int, args []E) E) ([]E, error) {
	if len(point) != e.n {
		return nil, NewInvalidArgument("point size", "must equal n="+strconv.Itoa(e.n))
	}
	values := make([]E, e.n+e.r*e.c)
	for _, node := range e.active {
		if node < e.n {
			values[node] = point[node]
			continue
		}
		col := e.NodeColumn(node)
		arity := e.arity[col]
		args := make([]E, arity)
		for a := 0; a < arity; a++ {
			src := int(e.chromosome[e.ConnectionGenePos(node, a)])
			args[a] = values[src]
		}
		fn := int(e.chromosome[e.FunctionGenePos(node)])
		values[node] = eval(fn, args)
	}

	out := make([]E, e.m)
	for k := 0; k < e.m; k++ {
		out[k] = values[int(e.chromosome[e.outGenePos[k]])]
	}
	return out, nil
}

// CallFloat evaluates the expression at a plain-float point.
func (e *Expression) CallFloat(point []float64) ([]float64, error) {
	return callGeneric(e, point, e.kernels.EvalFloat)
}

// CallTaylor evaluates the expression over second-order Taylor elements,
// e.g. with constants lifted to indeterminates for gradient/Hessian
// extraction.
func (e *Expression) CallTaylor(point []taylor.Element) ([]taylor.Element, error) {
	return callGeneric(e, point, e.kernels.EvalTaylor)
}

// CallString renders the expression symbolically given a string for each
// input (e.g. "x0", "x1", ...). This is the symbolic-rendering evaluation
// path; it never affects numeric semantics.
func (e *Expression) CallString(vars []string) ([]string, error) {
	return callGeneric(e, vars, e.kernels.EvalString)
}

// PrettyPrint returns the symbolic form of every output using default
// variable names x0..x(n-1).
func (e *Expression) PrettyPrint() ([]string, error) {
	return e.CallString(formatFloatVars(e.n, "x"))
}

// SetOutputFunction rewrites the function gene of every node directly
// selected by an output selector to kernelIdx, pinning a classification or
// regression head.
func (e *Expression) SetOutputFunction(kernelIdx int) error {
	if kernelIdx < 0 || kernelIdx >= e.kernels.Len() {
		return NewInvalidArgument("kernelIdx", "out of kernel-set range")
	}
	chromosome := e.Chromosome()
	for k := 0; k < e.m; k++ {
		node := int(chromosome[e.outGenePos[k]])
		if node < e.n {
			continue // a pure input can't carry a function gene
		}
		chromosome[e.FunctionGenePos(node)] = uint(kernelIdx)
	}
	return e.Set(chromosome)
}
