package main

// Example command that loads the SSTA arrays, builds the windowed graph
// dataset and prints a summary of the graph, the first and last samples and
// the shapes of a batch converted into gomlx tensors.
//
// Usage:
//   go run ./datasets/example -data data -window 5 -lead 1
//
// The arrays are node_features.npy, edge_features.npy and y.npy. If -data
// does not hold them, a few common relative locations are tried.

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/Noofbiz/sstaGraph/datasets"
	"gonum.org/v1/gonum/mat"
)

func main() {
	dataDir := flag.String("data", "data", "directory holding the input arrays")
	window := flag.Int("window", 5, "window size in months")
	lead := flag.Int("lead", 1, "lead time in months")
	split := flag.Float64("train-split", 0.8, "fraction of samples used for training")
	batchSize := flag.Int("batch-size", 64, "batch size of the example tensors")
	flag.Parse()

	dir, err := datasets.FindDataDir([]string{*dataDir, filepath.Join("..", *dataDir), filepath.Join("..", "..", *dataDir)})
	if err != nil {
		log.Fatalf("failed to find data: %v", err)
	}
	arrays, err := datasets.LoadArrays(dir)
	if err != nil {
		log.Fatalf("failed to load arrays: %v", err)
	}
	fmt.Printf("Loaded arrays from %s\n", dir)
	fmt.Printf("  node features: [%d, %d]\n", arrays.NodeCount(), arrays.TimeLength())
	fmt.Printf("  edge features: [%d, %d]\n", arrays.NodeCount(), arrays.NodeCount())
	fmt.Printf("  targets:       [%d]\n", len(arrays.Targets))

	ds, err := datasets.NewGraphDatasetFromArrays(arrays, *window, *lead, 0)
	if err != nil {
		log.Fatalf("failed to build dataset: %v", err)
	}
	g := ds.Graph()
	fmt.Printf("Created %s with %d samples\n", ds.Name(), ds.Len())
	fmt.Printf("  graph: %d nodes, %d edges\n", g.NumNodes, g.NumEdges())

	for _, i := range []int{0, ds.Len() - 1} {
		s, err := ds.Example(i)
		if err != nil {
			log.Fatalf("failed to read sample %d: %v", i, err)
		}
		r, c := s.Features.Dims()
		fmt.Printf("Sample %d: window months [%d, %d), label y[%d] = %.4f\n", i, i, i+*window, ds.LabelIndex(i), s.Label)
		fmt.Printf("  features [%d, %d]:\n%v\n", r, c, mat.Formatted(s.Features, mat.Prefix("  "), mat.Excerpt(3)))
	}

	sp, err := datasets.SequentialSplit(ds.Len(), *split)
	if err != nil {
		log.Fatalf("failed to split: %v", err)
	}
	fmt.Printf("Split: %d train, %d test\n", len(sp.Train), len(sp.Test))

	train := datasets.NewSubset(ds, sp.Train, *batchSize)
	_, inputs, labels, err := train.Yield()
	if err != nil {
		log.Fatalf("failed to yield the first batch: %v", err)
	}
	fmt.Printf("First training batch as tensors: input=%v label=%v\n",
		inputs[0].Shape().Dimensions, labels[0].Shape().Dimensions)
	fmt.Printf("Training batches per epoch: %d\n", len(datasets.Batches(sp.Train, *batchSize)))
}
