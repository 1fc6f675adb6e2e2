package dcgp

// This file collects the mutation operators over an Expression's
// chromosome. Every operator redraws a gene uniformly from its legal bound
// (computed once at construction, see layout in expression.go), so the
// result is always a structurally valid chromosome - mutation can never
// produce an out-of-bounds connection or function gene.

// mutateGenePos redraws chromosome[pos] to a value different from its
// current one, by rejection sampling over the gene's bound. If the bound
// has only one legal value, the gene is left unchanged.
func (e *Expression) mutateGenePos(chromosome []uint, pos int) {
	lo, hi := e.geneLower[pos], e.geneUpper[pos]
	if lo == hi {
		return
	}
	current := chromosome[pos]
	for {
		candidate := lo + uint(e.rng.Int63n(int64(hi-lo+1)))
		if candidate != current {
			chromosome[pos] = candidate
			return
		}
	}
}

// MutateGene mutates a single gene chosen uniformly at random among all
// genes (active or not) and commits the result.
func (e *Expression) MutateGene() error {
	chromosome := e.Chromosome()
	pos := e.rng.Intn(len(chromosome))
	e.mutateGenePos(chromosome, pos)
	return e.Set(chromosome)
}

// MutateGenes mutates N distinct genes chosen uniformly at random among
// all genes, without replacement, and commits the result. Fails with
// InvalidArgument if N exceeds the chromosome length.
func (e *Expression) MutateGenes(nMutations int) error {
	if nMutations < 0 || nMutations > len(e.chromosome) {
		return NewInvalidArgument("nMutations", "must be between 0 and chromosome length")
	}
	chromosome := e.Chromosome()
	positions := e.rng.Perm(len(chromosome))[:nMutations]
	for _, pos := range positions {
		e.mutateGenePos(chromosome, pos)
	}
	return e.Set(chromosome)
}

// MutateRandom mutates nMutations genes chosen uniformly at random with
// replacement (the same position may be redrawn more than once).
func (e *Expression) MutateRandom(nMutations int) error {
	if nMutations < 0 {
		return NewInvalidArgument("nMutations", "must be >= 0")
	}
	chromosome := e.Chromosome()
	for i := 0; i < nMutations; i++ {
		pos := e.rng.Intn(len(chromosome))
		e.mutateGenePos(chromosome, pos)
	}
	return e.Set(chromosome)
}

// MutateActive mutates nMutations genes chosen uniformly at random among
// only the currently active genes, keeping inactive "junk DNA" genes
// untouched until they themselves become active. Each mutation is drawn
// against the active-gene set captured before any of this call's edits,
// with replacement (the same position may be redrawn more than once).
func (e *Expression) MutateActive(nMutations int) error {
	if nMutations < 0 {
		return NewInvalidArgument("nMutations", "must be >= 0")
	}
	if len(e.activeGenes) == 0 {
		return nil
	}
	chromosome := e.Chromosome()
	for i := 0; i < nMutations; i++ {
		pos := e.activeGenes[e.rng.Intn(len(e.activeGenes))]
		e.mutateGenePos(chromosome, pos)
	}
	return e.Set(chromosome)
}

// MutateActiveFgene mutates nMutations function genes chosen among the
// active nodes only.
func (e *Expression) MutateActiveFgene(nMutations int) error {
	return e.mutateActiveSubset(nMutations, true)
}

// MutateActiveCgene mutates nMutations connection genes chosen among the
// active nodes only.
func (e *Expression) MutateActiveCgene(nMutations int) error {
	return e.mutateActiveSubset(nMutations, false)
}

func (e *Expression) mutateActiveSubset(nMutations int, wantFunc bool) error {
	if nMutations < 0 {
		return NewInvalidArgument("nMutations", "must be >= 0")
	}
	var pool []int
	for _, pos := range e.activeGenes {
		if e.geneIsFunc[pos] == wantFunc && e.geneNode[pos] >= 0 {
			pool = append(pool, pos)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	chromosome := e.Chromosome()
	for i := 0; i < nMutations; i++ {
		pos := pool[e.rng.Intn(len(pool))]
		e.mutateGenePos(chromosome, pos)
	}
	return e.Set(chromosome)
}

// MutateOutputGene mutates nMutations of the m output selector genes,
// chosen uniformly at random with replacement.
func (e *Expression) MutateOutputGene(nMutations int) error {
	if nMutations < 0 {
		return NewInvalidArgument("nMutations", "must be >= 0")
	}
	chromosome := e.Chromosome()
	for i := 0; i < nMutations; i++ {
		pos := e.outGenePos[e.rng.Intn(len(e.outGenePos))]
		e.mutateGenePos(chromosome, pos)
	}
	return e.Set(chromosome)
}
