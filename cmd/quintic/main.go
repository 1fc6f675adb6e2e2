// Command quintic fits the Koza-quintic benchmark (x^5 - 2x^3 + x) with the
// memetic multi-objective search over graph topology and embedded
// constants: load configuration, build or restore a population, run
// generations, report the winner.
package main

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/dcgp-go/dcgp"
	"github.com/dcgp-go/dcgp/config"
	"github.com/dcgp-go/dcgp/gapop"
	"github.com/dcgp-go/dcgp/search"
	"github.com/dcgp-go/dcgp/symreg"
)

const populationSize = 20

// quinticDataset returns the Koza-quintic benchmark: x^5 - 2x^3 + x sampled
// over [-1, 1].
func quinticDataset() (points, labels [][]float64) {
	for i := -10; i <= 10; i++ {
		x := float64(i) / 10
		y := x*x*x*x*x - 2*x*x*x + x
		points = append(points, []float64{x})
		labels = append(labels, []float64{y})
	}
	return points, labels
}

// checkpointData is the subset of population state persisted across runs:
// decision/objective vectors and how many generations have elapsed.
type checkpointData struct {
	X          [][]float64
	F          [][]float64
	Generation int
}

func saveCheckpoint(path string, pop *gapop.Population, generation int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", path, err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	defer gz.Close()

	data := checkpointData{X: pop.GetX(), F: pop.GetF(), Generation: generation}
	if err := gob.NewEncoder(gz).Encode(data); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

func loadCheckpoint(path string) (*gapop.Population, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open checkpoint file '%s': %w", path, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gz.Close()

	var data checkpointData
	if err := gob.NewDecoder(gz).Decode(&data); err != nil {
		return nil, 0, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	pop := gapop.New()
	for i := range data.X {
		pop.PushBack(data.X[i], data.F[i])
	}
	return pop, data.Generation, nil
}

func newRandomPopulation(problem *symreg.Problem, n int, seed uint64) *gapop.Population {
	rng := rand.New(rand.NewSource(int64(seed)))
	lo, hi := problem.Bounds()
	pop := gapop.New()
	for i := 0; i < n; i++ {
		x := make([]float64, len(lo))
		for j := range x {
			x[j] = lo[j] + rng.Float64()*(hi[j]-lo[j])
		}
		pop.PushBack(x, problem.Fitness(x))
	}
	return pop
}

func main() {
	configPath := "./configs/quintic-config"
	checkpointFile := "quintic_checkpoint.gz"

	fmt.Printf("Loading configuration from: %s\n", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	kernels, err := dcgp.NewKernelSet(cfg.Kernels.Names...)
	if err != nil {
		log.Fatalf("Failed to build kernel set: %v", err)
	}

	points, labels := quinticDataset()
	problem, err := symreg.New(
		cfg.Graph.NumInputs, cfg.Graph.NumConstants, cfg.Graph.NumOutputs,
		cfg.Graph.Rows, cfg.Graph.Cols, cfg.Graph.LevelsBack,
		cfg.Graph.ResolvedArity(), kernels,
		points, labels,
		boundsFor(cfg.Graph.NumConstants, -5), boundsFor(cfg.Graph.NumConstants, 5),
		256, cfg.Graph.Parallel, cfg.Graph.Seed,
	)
	if err != nil {
		log.Fatalf("Failed to build symbolic regression problem: %v", err)
	}

	var pop *gapop.Population
	startGen := 0
	if _, err := os.Stat(checkpointFile); err == nil {
		fmt.Printf("Attempting to load population state from %s\n", checkpointFile)
		pop, startGen, err = loadCheckpoint(checkpointFile)
		if err != nil {
			log.Printf("WARN: Failed to load checkpoint: %v. Starting new search.\n", err)
			pop = nil
			startGen = 0
		}
	} else {
		fmt.Println("No checkpoint file found. Starting new search.")
	}
	if pop == nil {
		pop = newRandomPopulation(problem, populationSize, cfg.Graph.Seed)
	}

	remaining := cfg.Memetic.Gen - startGen
	if remaining <= 0 {
		fmt.Println("Loaded checkpoint is already at or beyond the configured number of generations.")
	} else {
		fmt.Printf("Running for %d generations (%d to %d)...\n", remaining, startGen+1, cfg.Memetic.Gen)
		alg := search.New(problem, remaining, cfg.Memetic.MaxMut, cfg.Graph.Seed)
		alg.SetVerbosity(cfg.Memetic.Verbosity)

		result, err := alg.Evolve(pop)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		pop = result.(*gapop.Population)

		if err := saveCheckpoint(checkpointFile, pop, cfg.Memetic.Gen); err != nil {
			log.Printf("WARN: Failed to save checkpoint: %v", err)
		}
	}

	reportWinner(problem, pop)
}

// boundsFor returns a length-n slice of the given bound, or an empty slice
// when n is zero (no embedded constants).
func boundsFor(n int, bound float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = bound
	}
	return out
}

func reportWinner(problem *symreg.Problem, pop *gapop.Population) {
	front := pop.NonDominatedFront()
	if len(front) == 0 {
		fmt.Println("No non-dominated individuals found.")
		return
	}

	best := front[0]
	bestLoss := pop.GetF()[best][0]
	for _, idx := range front[1:] {
		if f := pop.GetF()[idx][0]; f < bestLoss {
			best = idx
			bestLoss = f
		}
	}

	fmt.Println("\n--- Search Complete ---")
	fmt.Printf("Best individual: loss=%.6f complexity=%.0f\n", pop.GetF()[best][0], pop.GetF()[best][1])
	expr, err := problem.Describe(pop.GetX()[best])
	if err != nil {
		fmt.Printf("Failed to render winning expression: %v\n", err)
		return
	}
	for i, e := range expr {
		fmt.Printf("  y%d = %s\n", i, e)
	}
}
