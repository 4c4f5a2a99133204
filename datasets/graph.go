package datasets

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Graph is a directed graph stored as parallel source/destination lists.
type Graph struct {
	NumNodes int
	Src      []int
	Dst      []int
}

// NumEdges returns the number of directed edges.
func (g *Graph) NumEdges() int { return len(g.Src) }

// CompleteGraph returns the complete directed graph over n nodes without
// self loops. Edges are ordered by source node, then destination node,
// so edge k links k/(n-1) to the k%(n-1)-th node other than itself.
func CompleteGraph(n int) *Graph {
	g := &Graph{NumNodes: n}
	if n < 2 {
		return g
	}
	m := n * (n - 1)
	g.Src = make([]int, m)
	g.Dst = make([]int, m)
	for k := 0; k < m; k++ {
		src, dst := completeEdge(k, n)
		g.Src[k] = src
		g.Dst[k] = dst
	}
	return g
}

// completeEdge maps an edge index of the complete graph to its endpoints.
func completeEdge(k, n int) (src, dst int) {
	src = k / (n - 1)
	dst = k % (n - 1)
	if dst >= src {
		dst++
	}
	return src, dst
}

// EdgeIndex returns the position of edge (src, dst) in CompleteGraph(n), or
// -1 for self loops and out-of-range nodes.
func EdgeIndex(src, dst, n int) int {
	if src == dst || src < 0 || dst < 0 || src >= n || dst >= n {
		return -1
	}
	if dst > src {
		dst--
	}
	return src*(n-1) + dst
}

// FlattenEdgeWeights returns the off-diagonal entries of a square edge
// feature matrix in CompleteGraph order.
func FlattenEdgeWeights(edges mat.Matrix) ([]float64, error) {
	r, c := edges.Dims()
	if r != c {
		return nil, fmt.Errorf("edge features must be square, got %dx%d: %w", r, c, ErrShapeMismatch)
	}
	if r < 2 {
		return []float64{}, nil
	}
	w := make([]float64, r*(r-1))
	for k := range w {
		src, dst := completeEdge(k, r)
		w[k] = edges.At(src, dst)
	}
	return w, nil
}

// Adjacency returns the dense [n, n] adjacency matrix of g with unit weights.
func (g *Graph) Adjacency() *mat.Dense {
	a := mat.NewDense(g.NumNodes, g.NumNodes, nil)
	for k := range g.Src {
		a.Set(g.Src[k], g.Dst[k], 1)
	}
	return a
}
