package search

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/dcgp-go/dcgp"
	"github.com/dcgp-go/dcgp/gapop"
)

// MemeticMOSearch evolves a population of two-objective (loss,
// complexity) individuals: each generation mutates the graph part of
// every parent, refines its embedded constants with one damped Newton
// step using exact gradients/Hessians from the problem, evaluates and
// deduplicates the resulting candidates, and selects the best N by
// non-dominated sorting with crowding-distance tie-break.
type MemeticMOSearch struct {
	problem   SymbolicProblem
	gen       int
	maxMut    int
	verbosity int
	rng       *rand.Rand
	log       []GenerationRecord
	fevals    int
}

// New builds a memetic search over problem, running gen generations with
// mutation strengths in [0, maxMut). maxMut is clamped to 1 if given as
// non-positive, since runGeneration assigns strengths by i % maxMut and
// would otherwise divide by zero.
func New(problem SymbolicProblem, gen, maxMut int, seed uint64) *MemeticMOSearch {
	if maxMut <= 0 {
		maxMut = 1
	}
	return &MemeticMOSearch{
		problem: problem,
		gen:     gen,
		maxMut:  maxMut,
		rng:     rand.New(rand.NewSource(int64(seed))),
	}
}

// SetSeed reseeds the search's RNG.
func (m *MemeticMOSearch) SetSeed(seed uint64) { m.rng = rand.New(rand.NewSource(int64(seed))) }

// SetVerbosity sets the generation interval at which a log line is
// emitted; 0 disables periodic logging (a line for the final generation is
// always emitted, once).
func (m *MemeticMOSearch) SetVerbosity(v int) { m.verbosity = v }

// Log returns the accumulated per-generation records.
func (m *MemeticMOSearch) Log() []GenerationRecord { return append([]GenerationRecord(nil), m.log...) }

// Evolve runs the configured number of generations over pop, mutating it
// in place and returning it. Fails with InvalidArgument if pop has fewer
// than two individuals or the problem does not expose exactly two
// objectives.
func (m *MemeticMOSearch) Evolve(pop Population) (Population, error) {
	if pop.Len() < 2 {
		return nil, dcgp.NewInvalidArgument("population size", "must be >= 2")
	}
	if m.problem.NumObjectives() != 2 {
		return nil, dcgp.NewInvalidArgument("problem objective count", "must be 2")
	}

	for g := 1; g <= m.gen; g++ {
		m.runGeneration(pop)
		if m.verbosity > 0 && g%m.verbosity == 0 {
			m.emitLog(pop, g)
		}
	}
	if !(m.verbosity > 0 && m.gen > 0 && m.gen%m.verbosity == 0) {
		m.emitLog(pop, m.gen)
	}
	return pop, nil
}

// emitLog records (and prints) one generation's progress: generation
// number, cumulative fitness evaluations, best loss, Pareto-front size,
// and worst complexity on the front.
func (m *MemeticMOSearch) emitLog(pop Population, gen int) {
	ideal := pop.Ideal()
	nadir := pop.Nadir()
	ndf := pop.NonDominatedFront()
	rec := GenerationRecord{
		Generation:      gen,
		FEvals:          m.fevals,
		IdealLoss:       ideal[0],
		NDFSize:         len(ndf),
		NadirComplexity: nadir[1],
	}
	m.log = append(m.log, rec)
	fmt.Printf("gen: %d\tfevals: %d\tideal_loss: %g\tndf_size: %d\tnadir_complexity: %g\n",
		rec.Generation, rec.FEvals, rec.IdealLoss, rec.NDFSize, rec.NadirComplexity)
}

func fVecKey(f []float64) string {
	var b strings.Builder
	for i, v := range f {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

func finiteVec(f []float64) bool {
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (m *MemeticMOSearch) runGeneration(pop Population) {
	n := pop.Len()
	nE := m.problem.NumConstants()

	strengths := make([]int, n)
	for i := range strengths {
		strengths[i] = i % m.maxMut
	}
	m.rng.Shuffle(n, func(i, j int) { strengths[i], strengths[j] = strengths[j], strengths[i] })

	candidates := gapop.New()
	seen := make(map[string]bool, 2*n)
	for i := 0; i < n; i++ {
		x, f := pop.GetX()[i], pop.GetF()[i]
		candidates.PushBack(x, f)
		seen[fVecKey(f)] = true
	}

	for i := 0; i < n; i++ {
		parentX := pop.GetX()[i]
		constants := parentX[:nE]
		genes := parentX[nE:]

		mutatedGenes, err := m.problem.MutateActiveGenes(genes, strengths[i])
		if err != nil {
			continue
		}

		candidateX := make([]float64, nE+len(mutatedGenes))
		copy(candidateX[:nE], constants)
		copy(candidateX[nE:], mutatedGenes)

		// A NotApplicableError here just means the constants are left
		// unchanged (singular/indefinite/non-finite reduced Hessian); it
		// is never a hard failure for the search.
		refined, _ := newtonStep(m.problem, candidateX, nE)
		copy(candidateX[:nE], refined)

		f := m.problem.Fitness(candidateX)
		m.fevals++
		if !finiteVec(f) {
			continue
		}
		key := fVecKey(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates.PushBack(candidateX, f)
	}

	selected := candidates.SelectBestNMO(n)
	for i, idx := range selected {
		pop.SetXF(i, candidates.GetX()[idx], candidates.GetF()[idx])
	}
}

func hessianLowerIndex(i, j int) int {
	if i < j {
		i, j = j, i
	}
	return i*(i+1)/2 + j
}

// newtonStep computes the damped Newton refinement of the constants in x
// (the first nE coordinates), using the problem's gradient/Hessian of the
// loss objective (index 0). It returns the refined constants, and the
// original constants unchanged alongside a NotApplicableError if any guard
// fails (singular, indefinite, or non-finite reduced Hessian) - the caller
// treats that error as informational, never as a hard failure.
func newtonStep(problem SymbolicProblem, x []float64, nE int) ([]float64, error) {
	constants := append([]float64(nil), x[:nE]...)
	if nE == 0 {
		return constants, nil
	}
	grad := problem.Gradient(x)
	hessFlat := problem.Hessians(x)[0]

	var activeIdx []int
	for i, g := range grad {
		if g != 0 {
			activeIdx = append(activeIdx, i)
		}
	}
	if len(activeIdx) == 0 {
		return constants, dcgp.NewNotApplicable("gradient is zero everywhere")
	}
	for _, i := range activeIdx {
		if math.IsNaN(grad[i]) || math.IsInf(grad[i], 0) {
			return constants, dcgp.NewNotApplicable("non-finite gradient")
		}
	}

	if nE == 1 {
		h := hessFlat[0]
		if h == 0 || math.IsNaN(h) || math.IsInf(h, 0) {
			return constants, dcgp.NewNotApplicable("singular or non-finite Hessian")
		}
		constants[0] -= grad[0] / h
		return constants, nil
	}

	s := len(activeIdx)
	hs := mat.NewDense(s, s, nil)
	for a, i := range activeIdx {
		for b, j := range activeIdx {
			hs.Set(a, b, hessFlat[hessianLowerIndex(i, j)])
		}
	}
	gs := mat.NewVecDense(s, nil)
	for a, i := range activeIdx {
		gs.SetVec(a, grad[i])
	}

	var lu mat.LU
	lu.Factorize(hs)
	var u mat.TriDense
	lu.UTo(&u)
	for i := 0; i < s; i++ {
		d := u.At(i, i)
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return constants, dcgp.NewNotApplicable("reduced Hessian is not positive semidefinite")
		}
		if math.Abs(d) < 1e-300 {
			return constants, dcgp.NewNotApplicable("reduced Hessian is singular")
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(hs); err != nil {
		return constants, dcgp.NewNotApplicable("reduced Hessian is not invertible")
	}
	for i := 0; i < s; i++ {
		for j := 0; j < s; j++ {
			v := inv.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return constants, dcgp.NewNotApplicable("Hessian inverse is non-finite")
			}
		}
	}

	var delta mat.VecDense
	delta.MulVec(&inv, gs)
	for a, i := range activeIdx {
		constants[i] -= delta.AtVec(a)
	}
	return constants, nil
}

var _ Algorithm = (*MemeticMOSearch)(nil)
