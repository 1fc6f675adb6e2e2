// Package gapop is a minimal multi-objective population container: an
// ordered sequence of (x, f) pairs with non-dominated sorting and
// crowding-distance selection. It stands in for the external
// pagmo-like evolutionary host named out of scope by the core
// specification - it is peripheral infrastructure, not part of the graph /
// weighted-graph / memetic-search core.
package gapop

import (
	"math"
	"sort"
)

// Population is an ordered sequence of decision vectors and their
// objective vectors (all objectives minimized).
type Population struct {
	x [][]float64
	f [][]float64
}

// New returns an empty population.
func New() *Population { return &Population{} }

// PushBack appends a new (x, f) pair.
func (p *Population) PushBack(x, f []float64) {
	p.x = append(p.x, append([]float64(nil), x...))
	p.f = append(p.f, append([]float64(nil), f...))
}

// SetXF overwrites the i-th individual in place.
func (p *Population) SetXF(i int, x, f []float64) {
	p.x[i] = append([]float64(nil), x...)
	p.f[i] = append([]float64(nil), f...)
}

// GetX returns every decision vector.
func (p *Population) GetX() [][]float64 { return p.x }

// GetF returns every objective vector.
func (p *Population) GetF() [][]float64 { return p.f }

// Len returns the population size.
func (p *Population) Len() int { return len(p.x) }

// dominates reports whether a dominates b under minimization: no worse in
// every objective and strictly better in at least one.
func dominates(a, b []float64) bool {
	strictlyBetter := false
	for k := range a {
		if a[k] > b[k] {
			return false
		}
		if a[k] < b[k] {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// fronts runs the standard fast-non-dominated-sort, returning successive
// dominance layers as index slices; fronts[0] is the Pareto front.
func (p *Population) fronts() [][]int {
	n := p.Len()
	dominatedBy := make([][]int, n)
	dominationCount := make([]int, n)
	var fronts [][]int
	first := []int{}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			switch {
			case dominates(p.f[i], p.f[j]):
				dominatedBy[i] = append(dominatedBy[i], j)
			case dominates(p.f[j], p.f[i]):
				dominationCount[i]++
			}
		}
		if dominationCount[i] == 0 {
			first = append(first, i)
		}
	}
	fronts = append(fronts, first)

	for k := 0; len(fronts[k]) > 0; k++ {
		var next []int
		for _, i := range fronts[k] {
			for _, j := range dominatedBy[i] {
				dominationCount[j]--
				if dominationCount[j] == 0 {
					next = append(next, j)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		fronts = append(fronts, next)
	}
	return fronts
}

// NonDominatedFront returns the indices of the Pareto front (rank 0).
func (p *Population) NonDominatedFront() []int {
	fr := p.fronts()
	if len(fr) == 0 {
		return nil
	}
	return fr[0]
}

// crowdingDistance computes the NSGA-II crowding distance for each index
// in front, using the population's current objective vectors.
func (p *Population) crowdingDistance(front []int) map[int]float64 {
	dist := make(map[int]float64, len(front))
	for _, i := range front {
		dist[i] = 0
	}
	if len(front) <= 2 {
		for _, i := range front {
			dist[i] = math.Inf(1)
		}
		return dist
	}
	nobj := len(p.f[front[0]])
	for m := 0; m < nobj; m++ {
		sorted := append([]int(nil), front...)
		sort.Slice(sorted, func(a, b int) bool { return p.f[sorted[a]][m] < p.f[sorted[b]][m] })
		dist[sorted[0]] = math.Inf(1)
		dist[sorted[len(sorted)-1]] = math.Inf(1)
		lo, hi := p.f[sorted[0]][m], p.f[sorted[len(sorted)-1]][m]
		if hi == lo {
			continue
		}
		for k := 1; k < len(sorted)-1; k++ {
			dist[sorted[k]] += (p.f[sorted[k+1]][m] - p.f[sorted[k-1]][m]) / (hi - lo)
		}
	}
	return dist
}

// SelectBestNMO returns the indices of the best n individuals by
// non-dominated sorting with crowding-distance tie-break, front by front.
func (p *Population) SelectBestNMO(n int) []int {
	if n >= p.Len() {
		all := make([]int, p.Len())
		for i := range all {
			all[i] = i
		}
		return all
	}
	var selected []int
	for _, front := range p.fronts() {
		if len(selected)+len(front) <= n {
			selected = append(selected, front...)
			continue
		}
		remaining := n - len(selected)
		dist := p.crowdingDistance(front)
		sorted := append([]int(nil), front...)
		sort.Slice(sorted, func(a, b int) bool { return dist[sorted[a]] > dist[sorted[b]] })
		selected = append(selected, sorted[:remaining]...)
		break
	}
	return selected
}

// Ideal returns the coordinate-wise minimum objective vector over the
// current non-dominated front.
func (p *Population) Ideal() []float64 { return p.extremum(func(a, b float64) bool { return a < b }) }

// Nadir returns the coordinate-wise maximum objective vector over the
// current non-dominated front.
func (p *Population) Nadir() []float64 { return p.extremum(func(a, b float64) bool { return a > b }) }

func (p *Population) extremum(better func(a, b float64) bool) []float64 {
	front := p.NonDominatedFront()
	if len(front) == 0 {
		return nil
	}
	out := append([]float64(nil), p.f[front[0]]...)
	for _, i := range front[1:] {
		for k, v := range p.f[i] {
			if better(v, out[k]) {
				out[k] = v
			}
		}
	}
	return out
}
