package cluster

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

// Partition clusters a fixed article set as the connected components of the graph
// whose edges join articles with pairwise similarity at or above threshold.
// Unlike Corpus.Assign the result does not depend on input order: articles are
// sorted by ID, components are numbered by their smallest member ID and members
// are listed in ID order.
func Partition(articles []models.Article, threshold float64) ([]models.StoryCluster, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	sorted := make([]models.Article, len(articles))
	copy(sorted, articles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	vecs := make([][]float64, len(sorted))
	for i, a := range sorted {
		if vector.IsZero(a.Embedding) {
			return nil, fmt.Errorf("partition %s: %w", a.ID, ErrMissingEmbedding)
		}
		if i > 0 && a.ID == sorted[i-1].ID {
			return nil, fmt.Errorf("partition: duplicate article id %s", a.ID)
		}
		vecs[i] = a.Embedding
	}

	sim, err := vector.SimilarityMatrix(vecs)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}

	// node IDs are indices into sorted
	g := simple.NewUndirectedGraph()
	for i := range sorted {
		g.AddNode(simple.Node(int64(i)))
	}
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sim.At(i, j) >= threshold {
				g.SetEdge(simple.Edge{F: simple.Node(int64(i)), T: simple.Node(int64(j))})
			}
		}
	}

	components := make([][]int, 0, len(sorted))
	for _, nodes := range topo.ConnectedComponents(g) {
		idx := make([]int, len(nodes))
		for k, n := range nodes {
			idx[k] = int(n.ID())
		}
		sort.Ints(idx)
		components = append(components, idx)
	}
	sort.Slice(components, func(i, j int) bool { return components[i][0] < components[j][0] })

	out := make([]models.StoryCluster, 0, len(components))
	for n, idx := range components {
		members := make([]models.Article, len(idx))
		ids := make([]string, len(idx))
		memberVecs := make([][]float64, len(idx))
		for k, i := range idx {
			members[k] = sorted[i]
			ids[k] = sorted[i].ID
			memberVecs[k] = sorted[i].Embedding
		}
		centroid, err := vector.Mean(memberVecs)
		if err != nil {
			return nil, fmt.Errorf("partition: %w", err)
		}
		out = append(out, models.StoryCluster{
			ID:               int64(n + 1),
			Members:          ids,
			RepresentativeID: Representative(members).ID,
			Centroid:         centroid,
		})
	}
	return out, nil
}
